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
	"io"
	"math"

	"github.com/ctessum/cdf"
)

// ncFile is an open NetCDF classic file together with the number of records
// currently stored, which cdf derives from the file size.
type ncFile struct {
	*cdf.File
	numRecs int64
}

func openNC(rw cdf.ReaderWriterAt, size int64) (*ncFile, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, err
	}
	return &ncFile{File: f, numRecs: f.Header.NumRecs(size)}, nil
}

func (f *ncFile) hasVar(v string) bool { return f.Header.Lengths(v) != nil }

// lengths returns the shape of v, with the record dimension resolved.
func (f *ncFile) lengths(v string) []int {
	l := append([]int(nil), f.Header.Lengths(v)...)
	if f.Header.IsRecordVariable(v) {
		l[0] = int(f.numRecs)
	}
	return l
}

// readAll reads every element of v.
func (f *ncFile) readAll(v string) ([]float64, []int, error) {
	l := f.lengths(v)
	n := 1
	for _, d := range l {
		n *= d
	}
	if n == 0 {
		return nil, l, nil
	}
	begin := make([]int, len(l))
	end := make([]int, len(l))
	for i, d := range l {
		end[i] = d - 1
	}
	data, err := f.readSlab(v, begin, end, n)
	return data, l, err
}

// readSlab reads n contiguous elements of v from corner begin to corner
// end, both inclusive.
func (f *ncFile) readSlab(v string, begin, end []int, n int) ([]float64, error) {
	buf := f.Header.ZeroValue(v, n)
	if _, ok := buf.(string); ok || buf == nil {
		return nil, fmt.Errorf("variable %s is not numeric", v)
	}
	r := f.Reader(v, begin, end)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading %s: %v", v, err)
	}
	return toFloat64s(buf), nil
}

// writeSlab writes vals to v, starting at corner begin and ending at
// corner end, both inclusive. Values are converted to the type of v.
func (f *ncFile) writeSlab(v string, begin, end []int, vals []float64) error {
	buf := fromFloat64s(f.Header.ZeroValue(v, len(vals)), vals)
	if buf == nil {
		return fmt.Errorf("variable %s is not numeric", v)
	}
	w := f.Writer(v, begin, end)
	n, err := w.Write(buf)
	if n == len(vals) && (err == nil || err == io.EOF) {
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return fmt.Errorf("writing %s at %v: %v", v, begin, err)
}

// isInteger reports whether v is stored as an integer type.
func (f *ncFile) isInteger(v string) bool {
	switch f.Header.ZeroValue(v, 0).(type) {
	case []uint8, []int16, []int32:
		return true
	}
	return false
}

// fits reports whether x can be stored in v without wrapping or
// overflowing.
func (f *ncFile) fits(v string, x float64) bool {
	switch f.Header.ZeroValue(v, 0).(type) {
	case []uint8:
		x = math.Round(x)
		return x >= math.MinInt8 && x <= math.MaxInt8
	case []int16:
		x = math.Round(x)
		return x >= math.MinInt16 && x <= math.MaxInt16
	case []int32:
		x = math.Round(x)
		return x >= math.MinInt32 && x <= math.MaxInt32
	case []float32:
		return math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) <= math.MaxFloat32
	}
	return true
}

// attrString returns the text attribute a of variable v, or of the file if
// v is empty.
func (f *ncFile) attrString(v, a string) (string, bool) {
	s, ok := f.Header.GetAttribute(v, a).(string)
	return s, ok
}

func toFloat64s(buf interface{}) []float64 {
	switch b := buf.(type) {
	case []uint8:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(int8(x))
		}
		return o
	case []int16:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(x)
		}
		return o
	case []int32:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(x)
		}
		return o
	case []float32:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(x)
		}
		return o
	case []float64:
		return b
	}
	return nil
}

// fromFloat64s fills zero, a typed slice from cdf, with vals.
func fromFloat64s(zero interface{}, vals []float64) interface{} {
	switch b := zero.(type) {
	case []uint8:
		for i, x := range vals {
			b[i] = uint8(int8(math.Round(x)))
		}
		return b
	case []int16:
		for i, x := range vals {
			b[i] = int16(math.Round(x))
		}
		return b
	case []int32:
		for i, x := range vals {
			b[i] = int32(math.Round(x))
		}
		return b
	case []float32:
		for i, x := range vals {
			b[i] = float32(x)
		}
		return b
	case []float64:
		copy(b, vals)
		return b
	}
	return nil
}
