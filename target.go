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
	"strings"
)

// group is one run type group of an open SoS file. Identifier indexes are
// built on first use and then shared by every entry of the group.
type group struct {
	run   RunType
	nc    *ncFile
	index map[string]map[int64]int
}

func newGroup(run RunType, nc *ncFile) *group {
	return &group{run: run, nc: nc, index: make(map[string]map[int64]int)}
}

// name returns the flattened name of a variable inside the group.
func (g *group) name(path ...string) string {
	return varPath(append([]string{g.run.String()}, path...)...)
}

// rows returns the position of every identifier in the identifier
// variable v.
func (g *group) rows(v string) (map[int64]int, error) {
	if idx, ok := g.index[v]; ok {
		return idx, nil
	}
	if !g.nc.hasVar(v) {
		return nil, newError(ErrFormat, "identifier variable %s does not exist", v)
	}
	ids, shape, err := g.nc.readAll(v)
	if err != nil {
		return nil, &Error{Kind: ErrFormat, Detail: "reading identifiers", Err: err}
	}
	if len(shape) != 1 {
		return nil, newError(ErrFormat, "identifier variable %s has shape %v", v, shape)
	}
	idx := make(map[int64]int, len(ids))
	for i, id := range ids {
		if id != math.Trunc(id) {
			return nil, newError(ErrFormat, "%s[%d] = %g is not an identifier", v, i, id)
		}
		if j, ok := idx[int64(id)]; ok {
			return nil, newError(ErrFormat, "identifier %d appears at positions %d and %d of %s", int64(id), j, i, v)
		}
		idx[int64(id)] = i
	}
	g.index[v] = idx
	return idx, nil
}

// groupsIn returns the run type groups that have at least one variable
// in the file.
func groupsIn(nc *ncFile) map[RunType]bool {
	o := make(map[RunType]bool)
	for _, v := range nc.Header.Variables() {
		for _, rt := range RunTypes {
			if strings.HasPrefix(v, rt.String()+groupSep) {
				o[rt] = true
			}
		}
	}
	return o
}

// slot addresses one element of a destination variable; col is -1 for
// variables without a second axis.
type slot struct {
	name     string
	row, col int
}

// slab is a contiguous run of slots in one row.
type slab struct {
	begin, end []int
	vals       []float64
}

// plan resolves where every value of e goes in group g. No data is
// written.
func (g *group) plan(l *Layout, e *Entry) (string, []slab, error) {
	dest := l.Destination(e.Source, e.IDs.Kind)
	if dest.Kind != e.IDs.Kind {
		return "", nil, recordError(ErrFormat, e.Record, "staged %s identifiers but the layout places %s by %s", e.IDs.Kind, e.Source, dest.Kind)
	}
	name := g.name(dest.Group, e.Prior)
	if !g.nc.hasVar(name) {
		return "", nil, recordError(ErrUnknownVariable, e.Record, "no variable %s in the %s group", name, g.run)
	}
	shape := g.nc.lengths(name)
	idVar := g.name(dest.IDVar)
	rows, err := g.rows(idVar)
	if err != nil {
		if ee, ok := err.(*Error); ok {
			ee.Source, ee.Prior, ee.RunType = e.Source, e.Prior, e.RunType
		}
		return "", nil, err
	}
	if len(rows) != shape[0] {
		return "", nil, recordError(ErrFormat, e.Record, "%s has %d identifiers but %s has %d rows", idVar, len(rows), name, shape[0])
	}
	if e.DataType == Float && g.nc.isInteger(name) {
		return "", nil, recordError(ErrFormat, e.Record, "floating-point priors cannot be stored in integer variable %s", name)
	}
	data := e.Shape.Data().Elements
	for i, x := range data {
		if !g.nc.fits(name, x) {
			return "", nil, recordError(ErrFormat, e.Record, "value %g for %s %d does not fit in %s", x, e.IDs.Kind, e.IDs.IDs[e.row(i)], name)
		}
	}

	pos := make([]int, len(e.IDs.IDs))
	for i, id := range e.IDs.IDs {
		r, ok := rows[id]
		if !ok {
			return "", nil, recordError(ErrUnknownIdentifier, e.Record, "%s identifier %d is not in %s", e.IDs.Kind, id, idVar)
		}
		pos[i] = r
	}

	switch s := e.Shape.(type) {
	case Scalar:
		if len(shape) != 1 {
			return "", nil, recordError(ErrFormat, e.Record, "%s has shape %v but the prior has one value per %s", name, shape, e.IDs.Kind)
		}
		slabs := make([]slab, len(pos))
		for i, r := range pos {
			slabs[i] = slab{begin: []int{r}, end: []int{r}, vals: data[i : i+1]}
		}
		return name, slabs, nil
	case Indexed:
		if len(shape) != 2 {
			return "", nil, recordError(ErrFormat, e.Record, "%s has shape %v but the prior has a second axis", name, shape)
		}
		cols := s.Indexes
		if cols == nil {
			if e.width() != shape[1] {
				return "", nil, recordError(ErrFormat, e.Record, "%d columns staged without indexes but %s has %d", e.width(), name, shape[1])
			}
			cols = sequence(e.width())
		}
		for _, c := range cols {
			if c >= shape[1] {
				return "", nil, recordError(ErrFormat, e.Record, "index %d is outside the second axis of %s (length %d)", c, name, shape[1])
			}
		}
		return name, rowSlabs(pos, func(int) []int { return cols }, data, e.width()), nil
	case TimeSeries:
		if len(shape) != 2 {
			return "", nil, recordError(ErrFormat, e.Record, "%s has shape %v but the prior is a time series", name, shape)
		}
		colsOf, err := g.timeColumns(g.name(dest.Group, e.Prior+"t"), e, s, shape, pos)
		if err != nil {
			return "", nil, err
		}
		return name, rowSlabs(pos, colsOf, data, e.width()), nil
	}
	return "", nil, recordError(ErrFormat, e.Record, "unsupported record shape %T", e.Shape)
}

// timeColumns maps the time labels of s onto columns of the destination.
// If the SoS has a label variable next to the prior (shared by all rows or
// one row per identifier), labels are looked up there; otherwise the
// series is written from the first column on.
func (g *group) timeColumns(labelVar string, e *Entry, s TimeSeries, shape, pos []int) (func(int) []int, error) {
	if !g.nc.hasVar(labelVar) {
		if len(s.Times) > shape[1] {
			return nil, recordError(ErrFormat, e.Record, "%d time steps do not fit the %d columns of the destination", len(s.Times), shape[1])
		}
		cols := sequence(len(s.Times))
		return func(int) []int { return cols }, nil
	}
	labels, lshape, err := g.nc.readAll(labelVar)
	if err != nil {
		return nil, &Error{Kind: ErrFormat, Source: e.Source, Prior: e.Prior, RunType: e.RunType, Err: err}
	}
	lookup := func(row []float64) ([]int, error) {
		at := make(map[float64]int, len(row))
		for j, t := range row {
			if _, ok := at[t]; !ok {
				at[t] = j
			}
		}
		cols := make([]int, len(s.Times))
		for j, t := range s.Times {
			c, ok := at[t]
			if !ok {
				return nil, recordError(ErrUnknownIdentifier, e.Record, "time label %g is not in %s", t, labelVar)
			}
			cols[j] = c
		}
		return cols, nil
	}
	switch {
	case len(lshape) == 1 && lshape[0] == shape[1]:
		cols, err := lookup(labels)
		if err != nil {
			return nil, err
		}
		return func(int) []int { return cols }, nil
	case len(lshape) == 2 && lshape[0] == shape[0] && lshape[1] == shape[1]:
		perRow := make([][]int, len(pos))
		for i, r := range pos {
			cols, err := lookup(labels[r*shape[1] : (r+1)*shape[1]])
			if err != nil {
				return nil, err
			}
			perRow[i] = cols
		}
		return func(i int) []int { return perRow[i] }, nil
	}
	return nil, recordError(ErrFormat, e.Record, "time label variable %s has shape %v, destination has %v", labelVar, lshape, shape)
}

// rowSlabs splits every staged row into runs of consecutive destination
// columns.
func rowSlabs(pos []int, colsOf func(int) []int, data []float64, width int) []slab {
	var slabs []slab
	for i, r := range pos {
		cols := colsOf(i)
		vals := data[i*width : (i+1)*width]
		start := 0
		for j := 1; j <= len(cols); j++ {
			if j < len(cols) && cols[j] == cols[j-1]+1 {
				continue
			}
			slabs = append(slabs, slab{
				begin: []int{r, cols[start]},
				end:   []int{r, cols[j-1]},
				vals:  vals[start:j],
			})
			start = j
		}
	}
	return slabs
}

func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// slots lists the slots covered by a slab.
func (s slab) slots(name string) []slot {
	if len(s.begin) == 1 {
		return []slot{{name: name, row: s.begin[0], col: -1}}
	}
	o := make([]slot, 0, len(s.vals))
	for c := s.begin[1]; c <= s.end[1]; c++ {
		o = append(o, slot{name: name, row: s.begin[0], col: c})
	}
	return o
}

func (s slot) String() string {
	if s.col < 0 {
		return fmt.Sprintf("%s[%d]", s.name, s.row)
	}
	return fmt.Sprintf("%s[%d,%d]", s.name, s.row, s.col)
}
