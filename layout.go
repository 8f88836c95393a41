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
	"io"
	"strings"

	"github.com/BurntSushi/toml"
)

// groupSep joins group names in NetCDF classic files, which have no groups.
const groupSep = "."

// varPath joins the non-empty parts of a group path.
func varPath(parts ...string) string {
	p := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			p = append(p, s)
		}
	}
	return strings.Join(p, groupSep)
}

// Destination tells where the priors of one data source live inside a
// run type group of the SoS.
type Destination struct {
	Group string // group path of the prior variables, "" for the group root
	IDVar string // authoritative identifier variable for axis 0
	Kind  IDKind
}

// Axis describes the second axis of a prior variable.
type Axis struct {
	Name string // staging dimension name
	Size int    // expected length; zero if set by the data
	Time bool   // axis is addressed by time labels
}

// Layout maps data sources and prior names onto the SoS structure.
type Layout struct {
	Sources map[string]Destination
	Axes    map[string]Axis
}

// DefaultLayout returns the layout of the SWORD of Science files.
func DefaultLayout() *Layout {
	return &Layout{
		Sources: map[string]Destination{
			"wbm":     {Group: "model", IDVar: "reaches.reach_id", Kind: Reach},
			"grades":  {Group: "model", IDVar: "reaches.reach_id", Kind: Reach},
			"grdc":    {Group: "model.grdc", IDVar: "model.grdc.grdc_reach_id", Kind: Reach},
			"usgs":    {Group: "model.usgs", IDVar: "model.usgs.usgs_reach_id", Kind: Reach},
			"gbreach": {Group: "gbpriors.reach", IDVar: "reaches.reach_id", Kind: Reach},
			"gbnode":  {Group: "gbpriors.node", IDVar: "nodes.node_id", Kind: Node},
		},
		Axes: map[string]Axis{
			"monthly_q":       {Name: "num_months", Size: 12},
			"flow_duration_q": {Name: "probability", Size: 20},
			"grdc_q":          {Name: "num_days", Time: true},
			"usgs_q":          {Name: "num_days", Time: true},
		},
	}
}

// Destination returns the destination of source. Sources without an entry
// are stored at the group root and placed with the authoritative reach or
// node list, depending on kind.
func (l *Layout) Destination(source string, kind IDKind) Destination {
	if d, ok := l.Sources[source]; ok {
		return d
	}
	return Destination{IDVar: defaultIDVar(kind), Kind: kind}
}

// Axis returns the second axis of prior, if the layout knows it.
func (l *Layout) Axis(prior string) (Axis, bool) {
	a, ok := l.Axes[prior]
	return a, ok
}

func defaultIDVar(kind IDKind) string {
	if kind == Node {
		return "nodes.node_id"
	}
	return "reaches.reach_id"
}

// layoutFile is the TOML representation of a layout override.
type layoutFile struct {
	Sources map[string]struct {
		Group string
		IDVar string `toml:"id_var"`
		Kind  string
	}
	Axes map[string]struct {
		Name string
		Size int
		Time bool
	}
}

// LoadLayout reads a TOML layout from r. Entries in r are added to, or
// replace, those of DefaultLayout. For example:
//
//	[sources.hydroweb]
//	group = "model.hydroweb"
//	id_var = "model.hydroweb.hydroweb_reach_id"
//	kind = "reach"
//
//	[axes.hydroweb_q]
//	name = "num_days"
//	time = true
func LoadLayout(r io.Reader) (*Layout, error) {
	var f layoutFile
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, &Error{Kind: ErrConfig, Detail: "reading layout", Err: err}
	}
	l := DefaultLayout()
	for name, s := range f.Sources {
		kind, err := ParseIDKind(s.Kind)
		if err != nil {
			return nil, &Error{Kind: ErrConfig, Detail: "layout source " + name, Err: err}
		}
		if s.IDVar == "" {
			s.IDVar = defaultIDVar(kind)
		}
		l.Sources[name] = Destination{Group: s.Group, IDVar: s.IDVar, Kind: kind}
	}
	for prior, a := range f.Axes {
		if a.Name == "" {
			return nil, newError(ErrConfig, "layout axis for %s has no name", prior)
		}
		if a.Size < 0 {
			return nil, newError(ErrConfig, "layout axis for %s has negative size %d", prior, a.Size)
		}
		l.Axes[prior] = Axis{Name: a.Name, Size: a.Size, Time: a.Time}
	}
	return l, nil
}
