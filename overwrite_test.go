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
	"bytes"
	"errors"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"testing"
)

// stage writes a staging file holding records for source.
func stage(t *testing.T, sources map[string][]RawRecord) string {
	t.Helper()
	p := newTestStore()
	for name, recs := range sources {
		if err := p.AddSource(name, recs); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), p.FileName())
	if err := p.Write(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func load(t *testing.T, target, staging string) *Overwrite {
	t.Helper()
	o, err := Load(target, staging, nil)
	if err != nil {
		t.Fatal(err)
	}
	o.Log = quietLog()
	return o
}

// changed returns the positions where a and b differ.
func changed(a, b []float64) []int {
	var o []int
	for i := range a {
		if a[i] != b[i] {
			o = append(o, i)
		}
	}
	return o
}

func scalarRecord(prior string, ids []int64, vals ...float64) RawRecord {
	return RawRecord{Prior: prior, Values: dense([]int{len(vals)}, vals...), ReachIDs: ids, DataType: "f8", RunType: "constrained"}
}

func TestApplyTimeSeries(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained, Unconstrained))
	const v = "constrained.model.grdc.grdc_q"
	before := readVar(t, target, v)
	otherBefore := readVar(t, target, "unconstrained.model.grdc.grdc_q")

	o := load(t, target, stage(t, map[string][]RawRecord{"grdc": grdcRecords()}))
	rep, err := o.Apply()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Entries != 1 || rep.Slots != 6 {
		t.Errorf("report: %+v", rep)
	}
	if err := o.Save(""); err != nil {
		t.Fatal(err)
	}

	after := readVar(t, target, v)
	if want := []int{12, 13, 14, 27, 28, 29}; !reflect.DeepEqual(changed(before, after), want) {
		t.Errorf("changed slots %v; want %v", changed(before, after), want)
	}
	if got, want := after[12:15], []float64{1.1, 1.2, 1.3}; !reflect.DeepEqual(got, want) {
		t.Errorf("reach 10: %v != %v", got, want)
	}
	if got, want := after[27:30], []float64{2.1, 2.2, 2.3}; !reflect.DeepEqual(got, want) {
		t.Errorf("reach 20: %v != %v", got, want)
	}
	if c := changed(otherBefore, readVar(t, target, "unconstrained.model.grdc.grdc_q")); c != nil {
		t.Errorf("unconstrained group changed at %v", c)
	}
}

func TestApplyIndexed(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained))
	const v = "constrained.model.monthly_q"
	before := readVar(t, target, v)

	o := load(t, target, stage(t, map[string][]RawRecord{"wbm": {{
		Prior: "monthly_q", Values: dense([]int{1, 2}, 7, 8), ReachIDs: []int64{20},
		Indexes: []int{2, 5}, DataType: "f8", RunType: "constrained",
	}}}))
	defer o.Close()
	rep, err := o.Apply()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Slots != 2 {
		t.Errorf("report: %+v", rep)
	}
	after := readVar(t, target, v)
	if want := []int{9*12 + 2, 9*12 + 5}; !reflect.DeepEqual(changed(before, after), want) {
		t.Errorf("changed slots %v; want %v", changed(before, after), want)
	}
	if after[9*12+2] != 7 || after[9*12+5] != 8 {
		t.Errorf("values: %v", after[9*12:10*12])
	}
}

func TestApplyMixed(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained, Unconstrained))
	o := load(t, target, stage(t, map[string][]RawRecord{
		"wbm": {
			scalarRecord("mean_q", []int64{20, 1}, 3.5, 4.5),
			{Prior: "q_count", Values: dense([]int{1}, 42), ReachIDs: []int64{10}, DataType: "i4", RunType: "unconstrained"},
			{Prior: "flow_duration_q", Values: dense([]int{1, 20}, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20),
				ReachIDs: []int64{3}, DataType: "f8", RunType: "constrained"},
		},
		"gbnode": {{Prior: "logWb_hat", Values: dense([]int{2}, 0.25, 0.5), NodeIDs: []int64{104, 102}, DataType: "f8", RunType: "constrained"}},
	}))
	rep, err := o.Apply()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Entries != 4 || rep.Slots != 2+1+20+2 {
		t.Errorf("report: %+v", rep)
	}
	if err := o.Save(target); err != nil {
		t.Fatal(err)
	}
	if m := readVar(t, target, "constrained.model.mean_q"); m[9] != 3.5 || m[0] != 4.5 {
		t.Errorf("mean_q: %v", m)
	}
	if c := readVar(t, target, "unconstrained.model.q_count"); c[4] != 42 {
		t.Errorf("q_count: %v", c)
	}
	if f := readVar(t, target, "constrained.model.flow_duration_q"); f[2*20] != 1 || f[2*20+19] != 20 {
		t.Errorf("flow_duration_q row 2: %v", f[40:60])
	}
	if w := readVar(t, target, "constrained.gbpriors.node.logWb_hat"); w[3] != 0.25 || w[1] != 0.5 {
		t.Errorf("logWb_hat: %v", w)
	}
}

func TestApplyIdempotent(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained, Unconstrained))
	staging := stage(t, map[string][]RawRecord{
		"grdc": grdcRecords(),
		"wbm":  {scalarRecord("mean_q", []int64{10}, 9)},
	})
	apply := func() []byte {
		o := load(t, target, staging)
		if _, err := o.Apply(); err != nil {
			t.Fatal(err)
		}
		if err := o.Save(""); err != nil {
			t.Fatal(err)
		}
		b, err := ioutil.ReadFile(target)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	first := apply()
	if second := apply(); !bytes.Equal(first, second) {
		t.Error("second application changed the file")
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		fx      *fixture
		sources map[string][]RawRecord
		kind    error
	}{
		{
			name:    "unknown identifier",
			fx:      sosFixture(Constrained),
			sources: map[string][]RawRecord{"wbm": {scalarRecord("mean_q", []int64{10, 99}, 1, 2)}},
			kind:    ErrUnknownIdentifier,
		},
		{
			name: "group mismatch",
			fx:   sosFixture(Constrained),
			sources: map[string][]RawRecord{"wbm": {{Prior: "mean_q", Values: dense([]int{1}, 1), ReachIDs: []int64{10},
				DataType: "f8", RunType: "unconstrained"}}},
			kind: ErrGroupMismatch,
		},
		{
			name:    "unknown variable",
			fx:      sosFixture(Constrained),
			sources: map[string][]RawRecord{"wbm": {scalarRecord("median_q", []int64{10}, 1)}},
			kind:    ErrUnknownVariable,
		},
		{
			name:    "float into integer",
			fx:      sosFixture(Constrained),
			sources: map[string][]RawRecord{"wbm": {scalarRecord("q_count", []int64{10}, 1)}},
			kind:    ErrFormat,
		},
		{
			name:    "unknown source at group root",
			fx:      sosFixture(Constrained),
			sources: map[string][]RawRecord{"hydroweb": {scalarRecord("mean_q", []int64{10}, 1)}},
			kind:    ErrUnknownVariable,
		},
		{
			name: "scalar into two axes",
			fx: func() *fixture {
				fx := sosFixture(Constrained)
				fx.add(fixtureVar{name: "constrained.model.seasonal_q", dims: []string{"num_reaches", "num_days"}, zero: []float64{0}})
				return fx
			}(),
			sources: map[string][]RawRecord{"wbm": {scalarRecord("seasonal_q", []int64{10}, 1)}},
			kind:    ErrFormat,
		},
		{
			name: "width mismatch",
			fx: func() *fixture {
				fx := sosFixture(Constrained)
				fx.add(fixtureVar{name: "constrained.model.seasonal_q", dims: []string{"num_reaches", "num_days"}, zero: []float64{0}})
				return fx
			}(),
			sources: map[string][]RawRecord{"wbm": {{Prior: "seasonal_q", Values: dense([]int{1, 2}, 1, 2),
				ReachIDs: []int64{10}, DataType: "f8", RunType: "constrained"}}},
			kind: ErrFormat,
		},
		{
			name: "duplicate authoritative identifiers",
			fx: func() *fixture {
				fx := sosFixture(Constrained)
				fx.set("constrained.reaches.reach_id", []float64{1, 2, 3, 4, 10, 5, 6, 7, 8, 10})
				return fx
			}(),
			sources: map[string][]RawRecord{"wbm": {scalarRecord("mean_q", []int64{10}, 1)}},
			kind:    ErrFormat,
		},
		{
			name: "conflict",
			fx:   sosFixture(Constrained),
			sources: map[string][]RawRecord{
				"grades": {scalarRecord("mean_q", []int64{10, 20}, 1, 2)},
				"wbm":    {scalarRecord("mean_q", []int64{20}, 3)},
			},
			kind: ErrConflict,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			target := writeSOS(t, test.fx)
			o := load(t, target, stage(t, test.sources))
			defer o.Close()
			if _, err := o.Apply(); !errors.Is(err, test.kind) {
				t.Errorf("want %v, got %v", test.kind, err)
			}
		})
	}
}

func TestApplyFailureWritesNothing(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained))
	before, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	o := load(t, target, stage(t, map[string][]RawRecord{"wbm": {scalarRecord("mean_q", []int64{10, 20, 99}, 1, 2, 3)}}))
	if _, err := o.Apply(); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("want unknown identifier, got %v", err)
	}
	if err := o.Save(""); err != nil {
		t.Fatal(err)
	}
	after, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("file changed after a failed entry")
	}
}

func TestApplyOutOfRangeWritesNothing(t *testing.T) {
	for _, test := range []struct {
		name   string
		source string
		rec    RawRecord
	}{
		{
			name:   "short",
			source: "wbm",
			rec:    RawRecord{Prior: "n_obs", Values: dense([]int{2}, 7, 40000), ReachIDs: []int64{20, 10}, DataType: "i4", RunType: "constrained"},
		},
		{
			name:   "byte",
			source: "wbm",
			rec:    RawRecord{Prior: "flag", Values: dense([]int{1}, -129), ReachIDs: []int64{1}, DataType: "i4", RunType: "constrained"},
		},
		{
			name:   "float",
			source: "gbnode",
			rec:    RawRecord{Prior: "logWb_hat", Values: dense([]int{2}, 0.5, 1e39), NodeIDs: []int64{101, 102}, DataType: "f8", RunType: "constrained"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			fx := sosFixture(Constrained)
			fx.add(fixtureVar{name: "constrained.model.n_obs", dims: []string{"num_reaches"}, zero: []int16{0}})
			fx.add(fixtureVar{name: "constrained.model.flag", dims: []string{"num_reaches"}, zero: []uint8{0}})
			target := writeSOS(t, fx)
			before, err := ioutil.ReadFile(target)
			if err != nil {
				t.Fatal(err)
			}
			o := load(t, target, stage(t, map[string][]RawRecord{test.source: {test.rec}}))
			if _, err := o.Apply(); !errors.Is(err, ErrFormat) {
				t.Fatalf("want format error, got %v", err)
			}
			if err := o.Save(""); err != nil {
				t.Fatal(err)
			}
			after, err := ioutil.ReadFile(target)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(before, after) {
				t.Error("file changed after a value out of range")
			}
		})
	}
}

func TestApplyInRangeShort(t *testing.T) {
	fx := sosFixture(Constrained)
	fx.add(fixtureVar{name: "constrained.model.n_obs", dims: []string{"num_reaches"}, zero: []int16{0}})
	target := writeSOS(t, fx)
	o := load(t, target, stage(t, map[string][]RawRecord{"wbm": {
		{Prior: "n_obs", Values: dense([]int{2}, -32768, 32767), ReachIDs: []int64{20, 10}, DataType: "i4", RunType: "constrained"},
	}}))
	if _, err := o.Apply(); err != nil {
		t.Fatal(err)
	}
	if err := o.Save(""); err != nil {
		t.Fatal(err)
	}
	if n := readVar(t, target, "constrained.model.n_obs"); n[9] != -32768 || n[4] != 32767 {
		t.Errorf("n_obs: %v", n)
	}
}

func TestApplyBothRunTypes(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained, Unconstrained))
	const c, u = "constrained.model.mean_q", "unconstrained.model.mean_q"
	cBefore, uBefore := readVar(t, target, c), readVar(t, target, u)

	unc := scalarRecord("mean_q", []int64{20}, 2)
	unc.RunType = "unconstrained"
	o := load(t, target, stage(t, map[string][]RawRecord{"wbm": {
		scalarRecord("mean_q", []int64{10}, 1),
		unc,
	}}))
	rep, err := o.Apply()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Entries != 2 || rep.Slots != 2 {
		t.Errorf("report: %+v", rep)
	}
	if err := o.Save(""); err != nil {
		t.Fatal(err)
	}
	cAfter, uAfter := readVar(t, target, c), readVar(t, target, u)
	if got := changed(cBefore, cAfter); !reflect.DeepEqual(got, []int{4}) || cAfter[4] != 1 {
		t.Errorf("constrained changed at %v: %v", got, cAfter)
	}
	if got := changed(uBefore, uAfter); !reflect.DeepEqual(got, []int{9}) || uAfter[9] != 2 {
		t.Errorf("unconstrained changed at %v: %v", got, uAfter)
	}
}

func TestApplyConflictKeepsFirst(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained))
	o := load(t, target, stage(t, map[string][]RawRecord{
		"grades": {scalarRecord("mean_q", []int64{10, 20}, 1, 2)},
		"wbm":    {scalarRecord("mean_q", []int64{1, 20}, 3, 4)},
	}))
	rep, err := o.Apply()
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	if rep.Entries != 1 {
		t.Errorf("report: %+v", rep)
	}
	o.Close()
	m := readVar(t, target, "constrained.model.mean_q")
	if m[4] != 1 || m[9] != 2 {
		t.Errorf("first entry: %v", m)
	}
	if m[0] == 3 {
		t.Error("conflicting entry was partly written")
	}
}

func TestApplyTimeLabels(t *testing.T) {
	record := func(times ...float64) map[string][]RawRecord {
		return map[string][]RawRecord{"grdc": {{
			Prior:    "grdc_q",
			Values:   dense([]int{1, len(times)}, 1.5, 2.5),
			ValueT:   dense([]int{len(times)}, times...),
			ReachIDs: []int64{20},
			DataType: "f8",
			RunType:  "constrained",
		}}}
	}
	t.Run("shared", func(t *testing.T) {
		fx := sosFixture(Constrained)
		fx.add(fixtureVar{name: "constrained.model.grdc.grdc_qt", dims: []string{"num_days"}, zero: []float64{0},
			data: []float64{730, 731, 732}})
		target := writeSOS(t, fx)
		o := load(t, target, stage(t, record(732, 731)))
		defer o.Close()
		if _, err := o.Apply(); err != nil {
			t.Fatal(err)
		}
		q := readVar(t, target, "constrained.model.grdc.grdc_q")
		if q[9*3+2] != 1.5 || q[9*3+1] != 2.5 {
			t.Errorf("reach 20: %v", q[27:30])
		}
	})
	t.Run("per reach", func(t *testing.T) {
		fx := sosFixture(Constrained)
		labels := make([]float64, len(reachIDs)*3)
		for i := range labels {
			labels[i] = float64(i)
		}
		fx.add(fixtureVar{name: "constrained.model.grdc.grdc_qt", dims: []string{"num_reaches", "num_days"}, zero: []float64{0},
			data: labels})
		target := writeSOS(t, fx)
		o := load(t, target, stage(t, record(27, 28)))
		defer o.Close()
		if _, err := o.Apply(); err != nil {
			t.Fatal(err)
		}
		q := readVar(t, target, "constrained.model.grdc.grdc_q")
		if q[27] != 1.5 || q[28] != 2.5 {
			t.Errorf("reach 20: %v", q[27:30])
		}
	})
	t.Run("unknown label", func(t *testing.T) {
		fx := sosFixture(Constrained)
		fx.add(fixtureVar{name: "constrained.model.grdc.grdc_qt", dims: []string{"num_days"}, zero: []float64{0},
			data: []float64{730, 731, 732}})
		target := writeSOS(t, fx)
		o := load(t, target, stage(t, record(731, 800)))
		defer o.Close()
		if _, err := o.Apply(); !errors.Is(err, ErrUnknownIdentifier) {
			t.Errorf("want unknown identifier, got %v", err)
		}
	})
}

func TestSaveCopy(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained))
	o := load(t, target, stage(t, map[string][]RawRecord{"wbm": {scalarRecord("mean_q", []int64{10}, 6.5)}}))
	if _, err := o.Apply(); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "sos_copy.nc")
	if err := o.Save(dest); err != nil {
		t.Fatal(err)
	}
	if m := readVar(t, dest, "constrained.model.mean_q"); m[4] != 6.5 {
		t.Errorf("copy: %v", m)
	}
	if err := o.Save(dest); !errors.Is(err, ErrIO) {
		t.Errorf("saving a closed file: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err := o.Apply(); !errors.Is(err, ErrIO) {
		t.Errorf("applying to a closed file: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	target := writeSOS(t, sosFixture(Constrained))
	staging := stage(t, map[string][]RawRecord{"grdc": grdcRecords()})
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.nc"), staging, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing target: %v", err)
	}
	if _, err := Load(target, filepath.Join(dir, "missing.nc"), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing staging: %v", err)
	}
	junk := filepath.Join(dir, "junk.nc")
	if err := ioutil.WriteFile(junk, []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(junk, staging, nil); !errors.Is(err, ErrFormat) {
		t.Errorf("junk target: %v", err)
	}
}

func TestLocate(t *testing.T) {
	staging := stage(t, map[string][]RawRecord{"grdc": grdcRecords()})
	got, err := Locate("/data/sos", staging)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/data/sos", "na_sword_v11_SOS_priors.nc"); got != want {
		t.Errorf("Locate() = %s; want %s", got, want)
	}
}

func TestDisplaySource(t *testing.T) {
	for source, want := range map[string]string{"grdc": "GRDC", "gbreach": "GBPRIORS", "gbnode": "GBPRIORS", "wbm": "WBM"} {
		if got := displaySource(source); got != want {
			t.Errorf("displaySource(%s) = %s", source, got)
		}
	}
}
