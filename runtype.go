/*
Copyright © 2019 the sospriors authors.
This file is part of sospriors.

sospriors is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

sospriors is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with sospriors.  If not, see <http://www.gnu.org/licenses/>.
*/

package sospriors

import (
	"fmt"
	"strings"
)

// RunType selects one of the two parallel groups of a SoS file.
type RunType int

const (
	Constrained RunType = iota + 1
	Unconstrained
)

// RunTypes lists the run types in the order they are processed.
var RunTypes = []RunType{Constrained, Unconstrained}

func (r RunType) String() string {
	switch r {
	case Constrained:
		return "constrained"
	case Unconstrained:
		return "unconstrained"
	}
	return fmt.Sprintf("RunType(%d)", int(r))
}

// ParseRunType converts the literal used in prior records and staging files.
func ParseRunType(s string) (RunType, error) {
	switch s {
	case "constrained":
		return Constrained, nil
	case "unconstrained":
		return Unconstrained, nil
	}
	return 0, fmt.Errorf("run_type must be 'constrained' or 'unconstrained', got %q", s)
}

// DataType is the numeric kind prior values are stored as.
type DataType int

const (
	Integer DataType = iota + 1
	Float
)

func (d DataType) String() string {
	switch d {
	case Integer:
		return "integer"
	case Float:
		return "float"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ParseDataType accepts the netCDF4-style type codes used by data providers
// (i4, f8, ...) as well as spelled-out names.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i2", "i4", "i8", "int", "integer":
		return Integer, nil
	case "f4", "f8", "float", "double":
		return Float, nil
	}
	return 0, fmt.Errorf("unrecognized data_type %q", s)
}

// zero returns the value cdf uses to pick the variable type.
func (d DataType) zero() interface{} {
	if d == Integer {
		return []int32{0}
	}
	return []float64{0}
}

// IDKind tells whether a record is indexed by reach or by node identifiers.
type IDKind int

const (
	Reach IDKind = iota + 1
	Node
)

func (k IDKind) String() string {
	switch k {
	case Reach:
		return "reach"
	case Node:
		return "node"
	}
	return fmt.Sprintf("IDKind(%d)", int(k))
}

// ParseIDKind is the inverse of IDKind.String.
func ParseIDKind(s string) (IDKind, error) {
	switch s {
	case "reach":
		return Reach, nil
	case "node":
		return Node, nil
	}
	return 0, fmt.Errorf("identifier kind must be 'reach' or 'node', got %q", s)
}

// dimName is the staging dimension holding identifiers of kind k.
func (k IDKind) dimName() string {
	if k == Node {
		return "num_nodes"
	}
	return "num_reaches"
}

// varName is the staging variable holding identifiers of kind k.
func (k IDKind) varName() string {
	if k == Node {
		return "node_id"
	}
	return "reach_id"
}
