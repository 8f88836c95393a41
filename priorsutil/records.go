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

package priorsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/sospriors"
)

// jsonRecord is a prior record as written by data providers.
type jsonRecord struct {
	Values   interface{} `json:"values"`
	ValueT   interface{} `json:"value_t"`
	ReachIDs []int64     `json:"reach_ids"`
	NodeIDs  []int64     `json:"node_ids"`
	Indexes  []int       `json:"indexes"`
	DataType string      `json:"data_type"`
	RunType  string      `json:"run_type"`
}

// Source is the set of prior records of one data source.
type Source struct {
	Name    string
	Records []sospriors.RawRecord
}

// DecodeRecords reads prior records in the form
//
//	{"<source>": {"<prior>": <record> or [<record>, ...]}}
//
// from r. Values and time labels may be nested arrays of any depth.
// Sources, and the priors in each source, are returned sorted by name.
func DecodeRecords(r io.Reader) ([]Source, error) {
	var raw map[string]map[string]json.RawMessage
	d := json.NewDecoder(r)
	d.UseNumber()
	if err := d.Decode(&raw); err != nil {
		return nil, fmt.Errorf("priorsutil: decoding prior records: %v", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	o := make([]Source, 0, len(names))
	for _, name := range names {
		src := Source{Name: name}
		priors := make([]string, 0, len(raw[name]))
		for p := range raw[name] {
			priors = append(priors, p)
		}
		sort.Strings(priors)
		for _, p := range priors {
			recs, err := decodePrior(raw[name][p])
			if err != nil {
				return nil, fmt.Errorf("priorsutil: decoding %s/%s: %v", name, p, err)
			}
			for _, jr := range recs {
				rr, err := jr.raw(p)
				if err != nil {
					return nil, fmt.Errorf("priorsutil: decoding %s/%s: %v", name, p, err)
				}
				src.Records = append(src.Records, rr)
			}
		}
		o = append(o, src)
	}
	return o, nil
}

// ReadRecords reads prior records from the JSON file at path.
func ReadRecords(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &sospriors.Error{Kind: sospriors.ErrNotFound, Detail: "prior records " + path, Err: err}
		}
		return nil, &sospriors.Error{Kind: sospriors.ErrIO, Detail: "opening prior records " + path, Err: err}
	}
	defer f.Close()
	return DecodeRecords(f)
}

// decodePrior accepts a single record or a list of records.
func decodePrior(b json.RawMessage) ([]jsonRecord, error) {
	dec := func(v interface{}) error {
		d := json.NewDecoder(bytes.NewReader(b))
		d.UseNumber()
		return d.Decode(v)
	}
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '[' {
		var recs []jsonRecord
		err := dec(&recs)
		return recs, err
	}
	var rec jsonRecord
	if err := dec(&rec); err != nil {
		return nil, err
	}
	return []jsonRecord{rec}, nil
}

func (jr jsonRecord) raw(prior string) (sospriors.RawRecord, error) {
	r := sospriors.RawRecord{
		Prior:    prior,
		ReachIDs: jr.ReachIDs,
		NodeIDs:  jr.NodeIDs,
		Indexes:  jr.Indexes,
		DataType: jr.DataType,
		RunType:  jr.RunType,
	}
	var err error
	if jr.Values != nil {
		if r.Values, err = toDense(jr.Values); err != nil {
			return r, fmt.Errorf("values: %v", err)
		}
	}
	if jr.ValueT != nil {
		if r.ValueT, err = toDense(jr.ValueT); err != nil {
			return r, fmt.Errorf("value_t: %v", err)
		}
	}
	return r, nil
}

// toDense converts nested JSON arrays of numbers into a dense array.
func toDense(v interface{}) (*sparse.DenseArray, error) {
	var shape []int
	for x := v; ; {
		a, ok := x.([]interface{})
		if !ok {
			break
		}
		shape = append(shape, len(a))
		if len(a) == 0 {
			break
		}
		x = a[0]
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("expected an array, got %v", v)
	}
	out := sparse.ZerosDense(shape...)
	i := 0
	var walk func(x interface{}, depth int) error
	walk = func(x interface{}, depth int) error {
		if depth == len(shape) {
			n, ok := x.(json.Number)
			if !ok {
				return fmt.Errorf("expected a number, got %v", x)
			}
			f, err := n.Float64()
			if err != nil {
				return err
			}
			out.Elements[i] = f
			i++
			return nil
		}
		a, ok := x.([]interface{})
		if !ok || len(a) != shape[depth] {
			return fmt.Errorf("ragged array: axis %d should have length %d", depth, shape[depth])
		}
		for _, y := range a {
			if err := walk(y, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return nil, err
	}
	return out, nil
}
