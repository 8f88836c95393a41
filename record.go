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
	"math"

	"github.com/ctessum/sparse"
)

// maxExactID is the largest identifier magnitude a staging file stores
// without rounding.
const maxExactID = 1 << 53

// RawRecord is a prior record as supplied by a data provider. Exactly one of
// ReachIDs and NodeIDs is set; the other optional fields depend on the
// shape of Values.
type RawRecord struct {
	Prior string

	// Values has the identifiers along axis 0 and, optionally, a second
	// axis of months, probability bins or time steps.
	Values *sparse.DenseArray

	// ValueT holds time labels for the second axis of Values, either as a
	// single sequence or as one identical row per identifier.
	ValueT *sparse.DenseArray

	ReachIDs []int64
	NodeIDs  []int64

	// Indexes selects the destination slots of the columns of Values when
	// they do not cover the whole destination axis. Indexes with one entry
	// per identifier are row positions in the provider's copy of the SoS;
	// rows are resolved from the identifiers instead, so those are ignored.
	Indexes []int

	DataType string
	RunType  string
}

// Identifiers are the reach or node identifiers along axis 0 of a record.
type Identifiers struct {
	Kind IDKind
	IDs  []int64
}

// Shape is one of Scalar, Indexed or TimeSeries.
type Shape interface {
	// Data returns the values, with identifiers along axis 0.
	Data() *sparse.DenseArray
	isShape()
}

// Scalar holds one value per identifier.
type Scalar struct {
	Values *sparse.DenseArray
}

// Indexed holds a row of values per identifier. If Indexes is nil, the
// row covers the whole destination axis; otherwise column j is written to
// slot Indexes[j].
type Indexed struct {
	Values  *sparse.DenseArray
	Indexes []int
}

// TimeSeries holds a time series per identifier, labelled by Times.
type TimeSeries struct {
	Values *sparse.DenseArray
	Times  []float64
}

func (s Scalar) Data() *sparse.DenseArray     { return s.Values }
func (s Indexed) Data() *sparse.DenseArray    { return s.Values }
func (s TimeSeries) Data() *sparse.DenseArray { return s.Values }

func (Scalar) isShape()     {}
func (Indexed) isShape()    {}
func (TimeSeries) isShape() {}

// Record is a validated prior record.
type Record struct {
	Source   string
	Prior    string
	RunType  RunType
	DataType DataType
	IDs      Identifiers
	Shape    Shape
}

// key identifies the staging entry of r.
func (r *Record) key() string { return varPath(r.Source, r.Prior, r.RunType.String()) }

// width returns the length of the second axis of r's values, or zero.
func (r *Record) width() int {
	s := r.Shape.Data().Shape
	if len(s) < 2 {
		return 0
	}
	return s[1]
}

// row returns the identifier row of element i of r's values.
func (r *Record) row(i int) int {
	if w := r.width(); w > 0 {
		return i / w
	}
	return i
}

// validate checks raw against the record invariants and converts it into
// its typed shape.
func validate(source string, raw *RawRecord, l *Layout) (*Record, error) {
	r := &Record{Source: source, Prior: raw.Prior}
	fail := func(format string, args ...interface{}) error {
		return recordError(ErrValidation, r, format, args...)
	}
	if raw.Prior == "" {
		return nil, fail("prior name is empty")
	}
	var err error
	if r.RunType, err = ParseRunType(raw.RunType); err != nil {
		return nil, fail("%v", err)
	}
	if r.DataType, err = ParseDataType(raw.DataType); err != nil {
		return nil, fail("%v", err)
	}

	v := raw.Values
	if v == nil || len(v.Shape) == 0 {
		return nil, fail("no values")
	}
	if len(v.Shape) > 2 {
		return nil, fail("values have %d axes; at most 2 are supported", len(v.Shape))
	}
	if len(v.Shape) == 2 && v.Shape[1] == 0 {
		return nil, fail("second axis of values is empty")
	}
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	if n != len(v.Elements) {
		return nil, fail("values shape %v holds %d elements but %d were given", v.Shape, n, len(v.Elements))
	}

	switch {
	case raw.ReachIDs != nil && raw.NodeIDs != nil:
		return nil, fail("both reach_ids and node_ids are present")
	case raw.ReachIDs != nil:
		r.IDs = Identifiers{Kind: Reach, IDs: raw.ReachIDs}
	case raw.NodeIDs != nil:
		r.IDs = Identifiers{Kind: Node, IDs: raw.NodeIDs}
	default:
		return nil, fail("neither reach_ids nor node_ids are present")
	}
	if d, ok := l.Sources[source]; ok && d.Kind != r.IDs.Kind {
		return nil, fail("source %s is indexed by %s but the record carries %s identifiers", source, d.Kind, r.IDs.Kind)
	}
	if len(r.IDs.IDs) == 0 {
		return nil, fail("no identifiers")
	}
	if len(r.IDs.IDs) != v.Shape[0] {
		return nil, fail("%d %s identifiers for %d rows of values", len(r.IDs.IDs), r.IDs.Kind, v.Shape[0])
	}
	seen := make(map[int64]struct{}, len(r.IDs.IDs))
	for _, id := range r.IDs.IDs {
		if id > maxExactID || id < -maxExactID {
			return nil, fail("%s identifier %d cannot be stored exactly", r.IDs.Kind, id)
		}
		if _, ok := seen[id]; ok {
			return nil, fail("duplicate %s identifier %d", r.IDs.Kind, id)
		}
		seen[id] = struct{}{}
	}

	if r.DataType == Integer {
		for i, e := range v.Elements {
			if e != math.Trunc(e) || e > math.MaxInt32 || e < math.MinInt32 {
				return nil, fail("value %g at position %d is not a 32-bit integer", e, i)
			}
		}
	}

	switch {
	case raw.ValueT != nil:
		if len(v.Shape) != 2 {
			return nil, fail("value_t given for values without a time axis")
		}
		if raw.Indexes != nil && len(raw.Indexes) != len(r.IDs.IDs) {
			return nil, fail("indexes given for a time series")
		}
		times, err := collapseTimes(raw.ValueT, len(r.IDs.IDs))
		if err != nil {
			return nil, fail("%v", err)
		}
		if len(times) != v.Shape[1] {
			return nil, fail("%d time labels for a time axis of length %d", len(times), v.Shape[1])
		}
		r.Shape = TimeSeries{Values: v, Times: times}
	case len(v.Shape) == 2:
		idx := raw.Indexes
		if len(idx) != v.Shape[1] && len(idx) == len(r.IDs.IDs) {
			idx = nil
		}
		if idx != nil {
			if len(idx) != v.Shape[1] {
				return nil, fail("%d indexes for %d columns of values", len(idx), v.Shape[1])
			}
			used := make(map[int]struct{}, len(idx))
			for _, i := range idx {
				if i < 0 {
					return nil, fail("negative index %d", i)
				}
				if _, ok := used[i]; ok {
					return nil, fail("duplicate index %d", i)
				}
				used[i] = struct{}{}
			}
		}
		r.Shape = Indexed{Values: v, Indexes: idx}
	default:
		if raw.Indexes != nil && len(raw.Indexes) != len(r.IDs.IDs) {
			return nil, fail("indexes given for values without a second axis")
		}
		r.Shape = Scalar{Values: v}
	}
	return r, nil
}

// collapseTimes reduces per-identifier time label rows to a single row.
// A 2-D t must have one row per identifier.
func collapseTimes(t *sparse.DenseArray, ids int) ([]float64, error) {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	if n != len(t.Elements) || n == 0 {
		return nil, fmt.Errorf("value_t shape %v does not match its %d elements", t.Shape, len(t.Elements))
	}
	var times []float64
	switch len(t.Shape) {
	case 1:
		times = t.Elements
	case 2:
		if t.Shape[0] != ids {
			return nil, fmt.Errorf("value_t has %d rows for %d identifiers", t.Shape[0], ids)
		}
		nt := t.Shape[1]
		first := t.Elements[:nt]
		for row := 1; row < t.Shape[0]; row++ {
			r := t.Elements[row*nt : (row+1)*nt]
			for j := range r {
				if r[j] != first[j] {
					return nil, fmt.Errorf("value_t row %d differs from row 0", row)
				}
			}
		}
		times = first
	default:
		return nil, fmt.Errorf("value_t has %d axes", len(t.Shape))
	}
	seen := make(map[float64]struct{}, len(times))
	for _, x := range times {
		if _, ok := seen[x]; ok {
			return nil, fmt.Errorf("duplicate time label %g", x)
		}
		seen[x] = struct{}{}
	}
	return times, nil
}
