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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// PriorStore collects prior records from one or more data sources and
// turns them into a staging file.
type PriorStore struct {
	Author  string
	Email   string
	SOSFile string // name of the SoS file the priors are meant for
	Layout  *Layout

	// Log receives progress messages. It defaults to the logrus
	// standard logger.
	Log logrus.FieldLogger

	// now returns the production date; replaced in tests.
	now func() time.Time

	records []*Record
	staging *Staging
}

// NewPriorStore returns an empty store. If layout is nil, DefaultLayout
// is used.
func NewPriorStore(author, email, sosFile string, layout *Layout) *PriorStore {
	if layout == nil {
		layout = DefaultLayout()
	}
	return &PriorStore{
		Author:  author,
		Email:   email,
		SOSFile: sosFile,
		Layout:  layout,
		Log:     logrus.StandardLogger(),
		now:     time.Now,
	}
}

// AddSource validates records from the data source name. Either all
// records are added or, if any of them is invalid, none are.
func (p *PriorStore) AddSource(name string, records []RawRecord) error {
	if name == "" {
		return newError(ErrValidation, "data source name is empty")
	}
	valid := make([]*Record, 0, len(records))
	for i := range records {
		r, err := validate(name, &records[i], p.Layout)
		if err != nil {
			return err
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		p.Log.WithField("source", name).Debug("no prior records; skipping source")
		return nil
	}
	p.records = append(p.records, valid...)
	p.staging = nil
	p.Log.WithFields(logrus.Fields{
		"source":  name,
		"records": len(valid),
	}).Debug("added prior records")
	return nil
}

// Build creates the staging representation of the records added so far.
func (p *PriorStore) Build() (*Staging, error) {
	if len(p.records) == 0 {
		return nil, newError(ErrBuild, "no prior records have been added")
	}
	recs := append([]*Record(nil), p.records...)
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Source != recs[j].Source {
			return recs[i].Source < recs[j].Source
		}
		if recs[i].Prior != recs[j].Prior {
			return recs[i].Prior < recs[j].Prior
		}
		return recs[i].RunType < recs[j].RunType
	})

	s := &Staging{
		Author:  p.Author,
		Email:   p.Email,
		SOSFile: p.SOSFile,
		Created: p.now().UTC().Truncate(time.Second),
	}
	for i, r := range recs {
		if i > 0 && recs[i-1].key() == r.key() {
			return nil, recordError(ErrBuild, r, "record is staged more than once")
		}
		e, err := p.entry(r)
		if err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, e)
	}
	p.staging = s
	return s, nil
}

// entry declares the second axis of r and checks that the record carries
// the coordinates needed to place it.
func (p *PriorStore) entry(r *Record) (*Entry, error) {
	e := &Entry{Record: r}
	axis, known := p.Layout.Axis(r.Prior)
	switch s := r.Shape.(type) {
	case Scalar:
		if known {
			return nil, recordError(ErrBuild, r, "prior is stored on the %s axis but the record has one value per %s", axis.Name, r.IDs.Kind)
		}
	case TimeSeries:
		if !known {
			axis = Axis{Name: "num_days", Time: true}
		}
		if !axis.Time {
			return nil, recordError(ErrBuild, r, "prior is stored on the %s axis, which is not a time axis", axis.Name)
		}
		if axis.Size > 0 && len(s.Times) > axis.Size {
			return nil, recordError(ErrBuild, r, "%d time steps exceed the %s axis length %d", len(s.Times), axis.Name, axis.Size)
		}
		axis.Size = len(s.Times)
	case Indexed:
		k := r.width()
		if !known {
			axis = Axis{Name: "num_cols"}
		}
		if axis.Time {
			return nil, recordError(ErrBuild, r, "prior is stored on the time axis %s but the record has no value_t", axis.Name)
		}
		if axis.Size > 0 {
			if k > axis.Size {
				return nil, recordError(ErrBuild, r, "%d columns exceed the %s axis length %d", k, axis.Name, axis.Size)
			}
			if s.Indexes == nil && k < axis.Size {
				return nil, recordError(ErrBuild, r, "%d of %d %s slots are covered but the record has no indexes", k, axis.Size, axis.Name)
			}
			for _, i := range s.Indexes {
				if i >= axis.Size {
					return nil, recordError(ErrBuild, r, "index %d is outside the %s axis length %d", i, axis.Name, axis.Size)
				}
			}
		}
		axis.Size = k
	}
	if r.width() > 0 {
		e.Axis = axis
	}
	e.Digest = e.digest()
	return e, nil
}

// FileName returns the conventional name of the staging file: the
// author's name in lower case with spaces replaced by underscores,
// followed by the SoS file name up to its first underscore.
func (p *PriorStore) FileName() string {
	author := strings.ToLower(strings.Replace(p.Author, " ", "_", -1))
	sos := strings.SplitN(filepath.Base(p.SOSFile), "_", 2)[0]
	sos = strings.TrimSuffix(sos, filepath.Ext(sos))
	return fmt.Sprintf("%s_%s.nc", author, sos)
}

// Write writes the staging file to path, building it first if needed.
// The file is removed again if writing fails.
func (p *PriorStore) Write(path string) (err error) {
	s := p.staging
	if s == nil {
		if s, err = p.Build(); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return &Error{Kind: ErrIO, Detail: "creating staging file " + path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &Error{Kind: ErrIO, Detail: "closing staging file " + path, Err: cerr}
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	if err = s.Encode(f); err != nil {
		return &Error{Kind: ErrIO, Detail: "writing staging file " + path, Err: err}
	}
	if err = f.Sync(); err != nil {
		return &Error{Kind: ErrIO, Detail: "writing staging file " + path, Err: err}
	}
	p.Log.WithFields(logrus.Fields{
		"file":    path,
		"entries": len(s.Entries),
		"author":  s.Author,
	}).Info("wrote staging file")
	return nil
}
