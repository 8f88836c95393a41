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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func dense(shape []int, vals ...float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, vals)
	return a
}

// fixtureVar is a variable of a NetCDF test file. Variables without data
// are filled with their fill value.
type fixtureVar struct {
	name string
	dims []string
	zero interface{}
	data []float64
}

type fixture struct {
	dims    []string
	lengths []int
	vars    []fixtureVar
}

func (fx *fixture) write(t *testing.T, path string) {
	t.Helper()
	h := cdf.NewHeader(fx.dims, fx.lengths)
	for _, v := range fx.vars {
		h.AddVariable(v.name, v.dims, v.zero)
	}
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	nc := &ncFile{File: cf}
	for _, v := range fx.vars {
		if v.data == nil {
			if err := cf.Fill(v.name); err != nil {
				t.Fatal(err)
			}
			continue
		}
		l := h.Lengths(v.name)
		begin := make([]int, len(l))
		end := make([]int, len(l))
		for i, d := range l {
			end[i] = d - 1
		}
		if err := nc.writeSlab(v.name, begin, end, v.data); err != nil {
			t.Fatal(err)
		}
	}
}

func (fx *fixture) set(name string, data []float64) {
	for i := range fx.vars {
		if fx.vars[i].name == name {
			fx.vars[i].data = data
			return
		}
	}
	panic("no fixture variable " + name)
}

func (fx *fixture) add(v fixtureVar) { fx.vars = append(fx.vars, v) }

// reachIDs is the authoritative reach list of the test SoS; ids 10 and 20
// are at rows 4 and 9.
var reachIDs = []float64{1, 2, 3, 4, 10, 5, 6, 7, 8, 20}

var nodeIDs = []float64{101, 102, 103, 104}

// sosFixture returns a small SoS file with the given run type groups.
func sosFixture(runTypes ...RunType) *fixture {
	fx := &fixture{
		dims:    []string{"num_reaches", "num_nodes", "num_months", "probability", "num_days"},
		lengths: []int{len(reachIDs), len(nodeIDs), 12, 20, 3},
	}
	for _, rt := range runTypes {
		g := func(p string) string { return varPath(rt.String(), p) }
		fx.add(fixtureVar{name: g("reaches.reach_id"), dims: []string{"num_reaches"}, zero: []float64{0}, data: reachIDs})
		fx.add(fixtureVar{name: g("nodes.node_id"), dims: []string{"num_nodes"}, zero: []float64{0}, data: nodeIDs})
		fx.add(fixtureVar{name: g("model.mean_q"), dims: []string{"num_reaches"}, zero: []float64{0}})
		fx.add(fixtureVar{name: g("model.min_q"), dims: []string{"num_reaches"}, zero: []float64{0}})
		fx.add(fixtureVar{name: g("model.q_count"), dims: []string{"num_reaches"}, zero: []int32{0}})
		fx.add(fixtureVar{name: g("model.monthly_q"), dims: []string{"num_reaches", "num_months"}, zero: []float64{0}})
		fx.add(fixtureVar{name: g("model.flow_duration_q"), dims: []string{"num_reaches", "probability"}, zero: []float64{0}})
		fx.add(fixtureVar{name: g("model.grdc.grdc_reach_id"), dims: []string{"num_reaches"}, zero: []float64{0}, data: reachIDs})
		fx.add(fixtureVar{name: g("model.grdc.grdc_q"), dims: []string{"num_reaches", "num_days"}, zero: []float64{0}})
		fx.add(fixtureVar{name: g("gbpriors.node.logWb_hat"), dims: []string{"num_nodes"}, zero: []float32{0}})
	}
	return fx
}

// writeSOS writes fx to a temporary directory and returns its path.
func writeSOS(t *testing.T, fx *fixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "na_sword_v11_SOS_priors.nc")
	fx.write(t, path)
	return path
}

// readVar returns the contents of variable v of the NetCDF file at path.
func readVar(t *testing.T, path, v string) []float64 {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	nc, err := openNC(f, fi.Size())
	if err != nil {
		t.Fatal(err)
	}
	data, _, err := nc.readAll(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
