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
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/sospriors/internal/hash"
)

// ProductionDateFormat is the layout of the production_date attribute.
const ProductionDateFormat = "02-Jan-2006 15:04:05"

const valuesSuffix = "prior_values"

// Entry is one staged record together with the placement information
// written next to it.
type Entry struct {
	*Record

	// Axis is the second axis of the values; zero for Scalar records.
	Axis Axis

	// Digest is a content digest of the record.
	Digest string
}

// Staging is the in-memory form of a staging file.
type Staging struct {
	Author  string
	Email   string
	SOSFile string // name of the SoS file the priors are meant for
	Created time.Time
	Entries []*Entry
}

type entryContent struct {
	Source, Prior, RunType, DataType, Kind string
	IDs                                    []int64
	Shape                                  []int
	Values                                 []float64
	Indexes                                []int
	Times                                  []float64
}

func (e *Entry) digest() string {
	c := entryContent{
		Source:   e.Source,
		Prior:    e.Prior,
		RunType:  e.RunType.String(),
		DataType: e.DataType.String(),
		Kind:     e.IDs.Kind.String(),
		IDs:      e.IDs.IDs,
		Shape:    e.Shape.Data().Shape,
		Values:   e.Shape.Data().Elements,
	}
	switch s := e.Shape.(type) {
	case Indexed:
		c.Indexes = s.Indexes
	case TimeSeries:
		c.Times = s.Times
	}
	return hash.Digest(c)
}

// names of the staging variables and dimensions of e.
func (e *Entry) idDim() string   { return varPath(e.key(), e.IDs.Kind.dimName()) }
func (e *Entry) axisDim() string { return varPath(e.key(), e.Axis.Name) }
func (e *Entry) valuesVar() string {
	return varPath(e.key(), valuesSuffix)
}
func (e *Entry) idVar() string { return varPath(e.key(), e.IDs.Kind.varName()) }

// Encode writes s to w in NetCDF classic format.
func (s *Staging) Encode(w cdf.ReaderWriterAt) error {
	var dims []string
	var lengths []int
	for _, e := range s.Entries {
		dims = append(dims, e.idDim())
		lengths = append(lengths, len(e.IDs.IDs))
		if wd := e.width(); wd > 0 {
			dims = append(dims, e.axisDim())
			lengths = append(lengths, wd)
		}
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "author", s.Author)
	h.AddAttribute("", "contact", s.Email)
	h.AddAttribute("", "sos_file", s.SOSFile)
	h.AddAttribute("", "production_date", s.Created.UTC().Format(ProductionDateFormat))

	for _, e := range s.Entries {
		valDims := []string{e.idDim()}
		if e.width() > 0 {
			valDims = append(valDims, e.axisDim())
		}
		h.AddVariable(e.valuesVar(), valDims, e.DataType.zero())
		h.AddAttribute(e.valuesVar(), "source", e.Source)
		h.AddAttribute(e.valuesVar(), "prior", e.Prior)
		h.AddAttribute(e.valuesVar(), "run_type", e.RunType.String())
		h.AddAttribute(e.valuesVar(), "digest", e.Digest)

		h.AddVariable(e.idVar(), []string{e.idDim()}, []float64{0})
		switch sh := e.Shape.(type) {
		case Indexed:
			if sh.Indexes != nil {
				h.AddVariable(varPath(e.key(), "indexes"), []string{e.axisDim()}, []int32{0})
			}
		case TimeSeries:
			h.AddVariable(varPath(e.key(), "value_t"), []string{e.axisDim()}, []float64{0})
		}
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return err
	}
	nc := &ncFile{File: f}
	write := func(v string, vals []float64) error {
		if len(vals) == 0 {
			return nil
		}
		l := f.Header.Lengths(v)
		begin := make([]int, len(l))
		end := make([]int, len(l))
		for i, d := range l {
			end[i] = d - 1
		}
		return nc.writeSlab(v, begin, end, vals)
	}
	for _, e := range s.Entries {
		if err := write(e.valuesVar(), e.Shape.Data().Elements); err != nil {
			return err
		}
		ids := make([]float64, len(e.IDs.IDs))
		for i, id := range e.IDs.IDs {
			ids[i] = float64(id)
		}
		if err := write(e.idVar(), ids); err != nil {
			return err
		}
		switch sh := e.Shape.(type) {
		case Indexed:
			if sh.Indexes != nil {
				idx := make([]float64, len(sh.Indexes))
				for i, x := range sh.Indexes {
					idx[i] = float64(x)
				}
				if err := write(varPath(e.key(), "indexes"), idx); err != nil {
					return err
				}
			}
		case TimeSeries:
			if err := write(varPath(e.key(), "value_t"), sh.Times); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadStaging reads the staging file at path. The file is closed before
// ReadStaging returns.
func ReadStaging(path string) (*Staging, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &Error{Kind: ErrNotFound, Detail: "staging file " + path, Err: err}
	} else if err != nil {
		return nil, &Error{Kind: ErrIO, Detail: "opening staging file " + path, Err: err}
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, &Error{Kind: ErrIO, Detail: "opening staging file " + path, Err: err}
	}
	return DecodeStaging(f, fi.Size())
}

// DecodeStaging reads a staging file of size bytes from r and checks the
// digest of every entry.
func DecodeStaging(r cdf.ReaderWriterAt, size int64) (*Staging, error) {
	f, err := openNC(r, size)
	if err != nil {
		return nil, &Error{Kind: ErrFormat, Detail: "staging file is not NetCDF classic", Err: err}
	}
	s := new(Staging)
	var ok bool
	for _, a := range []struct {
		name string
		dst  *string
	}{
		{"author", &s.Author},
		{"contact", &s.Email},
		{"sos_file", &s.SOSFile},
	} {
		if *a.dst, ok = f.attrString("", a.name); !ok {
			return nil, newError(ErrFormat, "staging file has no %s attribute", a.name)
		}
	}
	date, ok := f.attrString("", "production_date")
	if !ok {
		return nil, newError(ErrFormat, "staging file has no production_date attribute")
	}
	if s.Created, err = time.Parse(ProductionDateFormat, date); err != nil {
		return nil, &Error{Kind: ErrFormat, Detail: "parsing production_date", Err: err}
	}

	for _, v := range f.Header.Variables() {
		if !strings.HasSuffix(v, groupSep+valuesSuffix) {
			continue
		}
		e, err := decodeEntry(f, strings.TrimSuffix(v, groupSep+valuesSuffix))
		if err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}

func decodeEntry(f *ncFile, prefix string) (*Entry, error) {
	valVar := varPath(prefix, valuesSuffix)
	r := new(Record)
	var ok bool
	if r.Source, ok = f.attrString(valVar, "source"); !ok {
		return nil, newError(ErrFormat, "%s has no source attribute", valVar)
	}
	if r.Prior, ok = f.attrString(valVar, "prior"); !ok {
		return nil, newError(ErrFormat, "%s has no prior attribute", valVar)
	}
	rt, _ := f.attrString(valVar, "run_type")
	var err error
	if r.RunType, err = ParseRunType(rt); err != nil {
		return nil, recordError(ErrFormat, r, "%v", err)
	}
	if r.key() != prefix {
		return nil, recordError(ErrFormat, r, "attributes do not match variable name %s", valVar)
	}
	if f.isInteger(valVar) {
		r.DataType = Integer
	} else {
		r.DataType = Float
	}

	switch {
	case f.hasVar(varPath(prefix, Reach.varName())):
		r.IDs.Kind = Reach
	case f.hasVar(varPath(prefix, Node.varName())):
		r.IDs.Kind = Node
	default:
		return nil, recordError(ErrFormat, r, "no reach_id or node_id variable")
	}
	ids, _, err := f.readAll(varPath(prefix, r.IDs.Kind.varName()))
	if err != nil {
		return nil, &Error{Kind: ErrFormat, Source: r.Source, Prior: r.Prior, RunType: r.RunType, Err: err}
	}
	r.IDs.IDs = make([]int64, len(ids))
	for i, id := range ids {
		if id != math.Trunc(id) {
			return nil, recordError(ErrFormat, r, "identifier %g is not an integer", id)
		}
		r.IDs.IDs[i] = int64(id)
	}

	vals, shape, err := f.readAll(valVar)
	if err != nil {
		return nil, &Error{Kind: ErrFormat, Source: r.Source, Prior: r.Prior, RunType: r.RunType, Err: err}
	}
	if len(shape) == 0 || len(shape) > 2 || shape[0] != len(r.IDs.IDs) {
		return nil, recordError(ErrFormat, r, "values of shape %v do not match %d identifiers", shape, len(r.IDs.IDs))
	}
	data := sparse.ZerosDense(shape...)
	copy(data.Elements, vals)

	e := &Entry{Record: r}
	if len(shape) == 2 {
		e.Axis = Axis{Name: strings.TrimPrefix(f.Header.Dimensions(valVar)[1], prefix+groupSep), Size: shape[1]}
	}
	switch {
	case f.hasVar(varPath(prefix, "value_t")):
		times, _, err := f.readAll(varPath(prefix, "value_t"))
		if err != nil {
			return nil, &Error{Kind: ErrFormat, Source: r.Source, Prior: r.Prior, RunType: r.RunType, Err: err}
		}
		if len(shape) != 2 || len(times) != shape[1] {
			return nil, recordError(ErrFormat, r, "value_t does not match values of shape %v", shape)
		}
		e.Axis.Time = true
		r.Shape = TimeSeries{Values: data, Times: times}
	case len(shape) == 2:
		var indexes []int
		if f.hasVar(varPath(prefix, "indexes")) {
			idx, _, err := f.readAll(varPath(prefix, "indexes"))
			if err != nil {
				return nil, &Error{Kind: ErrFormat, Source: r.Source, Prior: r.Prior, RunType: r.RunType, Err: err}
			}
			if len(idx) != shape[1] {
				return nil, recordError(ErrFormat, r, "%d indexes for %d columns", len(idx), shape[1])
			}
			indexes = make([]int, len(idx))
			for i, x := range idx {
				indexes[i] = int(x)
			}
		}
		r.Shape = Indexed{Values: data, Indexes: indexes}
	default:
		r.Shape = Scalar{Values: data}
	}

	e.Digest, _ = f.attrString(valVar, "digest")
	if got := e.digest(); got != e.Digest {
		return nil, recordError(ErrFormat, r, "content digest %s does not match recorded digest %q", got, e.Digest)
	}
	return e, nil
}

func (s *Staging) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "staging file for %s by %s <%s>, %s\n", s.SOSFile, s.Author, s.Email,
		s.Created.UTC().Format(ProductionDateFormat))
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "\t%s: %d %s(s), shape %v\n", e.key(), len(e.IDs.IDs), e.IDs.Kind, e.Shape.Data().Shape)
	}
	return b.String()
}
