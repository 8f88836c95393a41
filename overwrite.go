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
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// verifyTolerance is the relative tolerance used when reading written
// values back; it admits single-precision destinations.
const verifyTolerance = 1e-6

// Overwrite applies the priors in a staging file to an SoS file.
type Overwrite struct {
	Staging *Staging
	Layout  *Layout

	// Log receives one message per overwritten prior. It defaults to the
	// logrus standard logger.
	Log logrus.FieldLogger

	path   string
	file   *os.File
	nc     *ncFile
	groups map[RunType]bool
}

// Report summarizes an Apply run.
type Report struct {
	Entries int // staged entries written
	Slots   int // individual values written
}

// Load reads the staging file at stagingPath and opens the SoS file at
// targetPath for modification. If layout is nil, DefaultLayout is used.
func Load(targetPath, stagingPath string, layout *Layout) (*Overwrite, error) {
	s, err := ReadStaging(stagingPath)
	if err != nil {
		return nil, err
	}
	return Open(targetPath, s, layout)
}

// Open opens the SoS file at targetPath so that s can be applied to it.
func Open(targetPath string, s *Staging, layout *Layout) (*Overwrite, error) {
	if layout == nil {
		layout = DefaultLayout()
	}
	f, err := os.OpenFile(targetPath, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: ErrNotFound, Detail: "SoS file " + targetPath, Err: err}
		}
		return nil, &Error{Kind: ErrIO, Detail: "opening SoS file " + targetPath, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &Error{Kind: ErrIO, Detail: "opening SoS file " + targetPath, Err: err}
	}
	nc, err := openNC(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, &Error{Kind: ErrFormat, Detail: targetPath + " is not a NetCDF file", Err: err}
	}
	return &Overwrite{
		Staging: s,
		Layout:  layout,
		Log:     logrus.StandardLogger(),
		path:    targetPath,
		file:    f,
		nc:      nc,
		groups:  groupsIn(nc),
	}, nil
}

// TargetPath returns the location of the SoS file the staging file was
// built for, assuming it is in directory sosDir.
func (s *Staging) TargetPath(sosDir string) (string, error) {
	if s.SOSFile == "" {
		return "", newError(ErrFormat, "staging file does not name its SoS file")
	}
	return filepath.Join(sosDir, filepath.Base(s.SOSFile)), nil
}

// Locate returns the path of the SoS file in sosDir that the staging file
// at stagingPath was built for.
func Locate(sosDir, stagingPath string) (string, error) {
	s, err := ReadStaging(stagingPath)
	if err != nil {
		return "", err
	}
	return s.TargetPath(sosDir)
}

// Apply writes every staged entry into the SoS file, in staging order.
// Each entry is fully resolved before any of its values are written, so a
// failing entry leaves its destination untouched. Entries applied before
// the failure remain written.
func (o *Overwrite) Apply() (*Report, error) {
	if o.nc == nil {
		return nil, newError(ErrIO, "SoS file %s is closed", o.path)
	}
	rep := new(Report)
	groups := make(map[RunType]*group)
	written := make(map[slot]bool)
	for _, e := range o.Staging.Entries {
		g, ok := groups[e.RunType]
		if !ok {
			if !o.groups[e.RunType] {
				return rep, recordError(ErrGroupMismatch, e.Record, "%s has no %s group", o.path, e.RunType)
			}
			g = newGroup(e.RunType, o.nc)
			groups[e.RunType] = g
		}
		n, err := o.apply(g, e, written)
		if err != nil {
			return rep, err
		}
		rep.Entries++
		rep.Slots += n
	}
	return rep, nil
}

func (o *Overwrite) apply(g *group, e *Entry, written map[slot]bool) (int, error) {
	name, slabs, err := g.plan(o.Layout, e)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range slabs {
		for _, sl := range s.slots(name) {
			if written[sl] {
				return 0, recordError(ErrConflict, e.Record, "%v is written more than once", sl)
			}
			written[sl] = true
			n++
		}
	}
	for _, s := range slabs {
		if err := o.nc.writeSlab(name, s.begin, s.end, s.vals); err != nil {
			return 0, &Error{Kind: ErrIO, Source: e.Source, Prior: e.Prior, RunType: e.RunType, Err: err}
		}
	}
	for _, s := range slabs {
		got, err := o.nc.readSlab(name, s.begin, s.end, len(s.vals))
		if err != nil {
			return 0, &Error{Kind: ErrIO, Source: e.Source, Prior: e.Prior, RunType: e.RunType, Err: err}
		}
		if !floats.EqualApprox(got, s.vals, verifyTolerance) {
			return 0, recordError(ErrIO, e.Record, "%s at %v reads back as %v, not %v", name, s.begin, got, s.vals)
		}
	}
	o.Log.WithFields(logrus.Fields{
		"source":  e.Source,
		"prior":   e.Prior,
		"runtype": e.RunType.String(),
		"slots":   n,
	}).Infof("%s: '%s' has been overwritten in the SoS (%s).", displaySource(e.Source), e.Prior, e.RunType)
	return n, nil
}

// displaySource is the name under which a data source is reported.
func displaySource(source string) string {
	switch source {
	case "gbreach", "gbnode":
		return "GBPRIORS"
	}
	return strings.ToUpper(source)
}

// Save flushes the SoS file and closes it. If dest names a different file
// than the one that was opened, the modified file is also copied there.
func (o *Overwrite) Save(dest string) (err error) {
	if o.file == nil {
		return newError(ErrIO, "SoS file %s is closed", o.path)
	}
	defer func() {
		if cerr := o.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err = o.file.Sync(); err != nil {
		return &Error{Kind: ErrIO, Detail: "saving " + o.path, Err: err}
	}
	if dest == "" || o.isTarget(dest) {
		return nil
	}
	return o.copyTo(dest)
}

func (o *Overwrite) isTarget(path string) bool {
	a, err1 := filepath.Abs(path)
	b, err2 := filepath.Abs(o.path)
	if err1 == nil && err2 == nil && a == b {
		return true
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	ti, err := o.file.Stat()
	return err == nil && os.SameFile(fi, ti)
}

func (o *Overwrite) copyTo(dest string) (err error) {
	ti, err := o.file.Stat()
	if err != nil {
		return &Error{Kind: ErrIO, Detail: "saving " + dest, Err: err}
	}
	w, err := os.Create(dest)
	if err != nil {
		return &Error{Kind: ErrIO, Detail: "saving " + dest, Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &Error{Kind: ErrIO, Detail: "saving " + dest, Err: cerr}
		}
	}()
	if _, err = io.Copy(w, io.NewSectionReader(o.file, 0, ti.Size())); err != nil {
		return &Error{Kind: ErrIO, Detail: "saving " + dest, Err: err}
	}
	if err = w.Sync(); err != nil {
		return &Error{Kind: ErrIO, Detail: "saving " + dest, Err: err}
	}
	o.Log.WithField("file", dest).Info("saved SoS copy")
	return nil
}

// Close releases the SoS file without syncing. It may be called more than
// once.
func (o *Overwrite) Close() error {
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file, o.nc = nil, nil
	if err != nil {
		return &Error{Kind: ErrIO, Detail: "closing " + o.path, Err: err}
	}
	return nil
}
