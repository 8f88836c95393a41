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
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sospriors"
)

// Create builds a staging file from the prior record files named in the
// priors configuration variable and writes it to output_dir. It returns
// the location of the staging file.
func Create(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) (string, error) {
	author, err := requireString(cfg, "author")
	if err != nil {
		return "", err
	}
	email, err := requireString(cfg, "email")
	if err != nil {
		return "", err
	}
	target, err := requireString(cfg, "target_file")
	if err != nil {
		return "", err
	}
	priorFiles, err := requireStrings(cfg, "priors")
	if err != nil {
		return "", err
	}
	outputDir, err := requireString(cfg, "output_dir")
	if err != nil {
		return "", err
	}
	if err = checkOutputDir(ctx, outputDir); err != nil {
		return "", err
	}
	layout, err := loadLayout(cfg.GetString("layout"))
	if err != nil {
		return "", err
	}

	t := newTransfer(log)
	defer t.cleanup()

	p := sospriors.NewPriorStore(author, email, filepath.Base(target), layout)
	p.Log = log
	for _, f := range priorFiles {
		local, err := t.maybeDownload(ctx, f)
		if err != nil {
			return "", err
		}
		sources, err := ReadRecords(local)
		if err != nil {
			return "", err
		}
		for _, s := range sources {
			if err := p.AddSource(s.Name, s.Records); err != nil {
				return "", err
			}
		}
	}

	dest := joinPath(outputDir, p.FileName())
	local, err := t.maybeUpload(dest)
	if err != nil {
		return "", err
	}
	if err = p.Write(local); err != nil {
		return "", err
	}
	if err = t.upload(ctx); err != nil {
		return "", err
	}
	return dest, nil
}

// Overwrite applies the staging file named by the staging configuration
// variable to the SoS file named by target_file. If target_file is a
// directory, the SoS file is looked up there by the name recorded in the
// staging file. Unless inplace is set, the SoS file is first copied to
// output_dir and only the copy is modified. It returns the location of
// the modified SoS file.
func Overwrite(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) (string, error) {
	stagingPath, err := requireString(cfg, "staging")
	if err != nil {
		return "", err
	}
	target, err := requireString(cfg, "target_file")
	if err != nil {
		return "", err
	}
	inplace := cfg.GetBool("inplace")
	var outputDir string
	if !inplace {
		if outputDir, err = requireString(cfg, "output_dir"); err != nil {
			return "", err
		}
		if err = checkOutputDir(ctx, outputDir); err != nil {
			return "", err
		}
	}
	layout, err := loadLayout(cfg.GetString("layout"))
	if err != nil {
		return "", err
	}

	t := newTransfer(log)
	defer t.cleanup()

	localStaging, err := t.maybeDownload(ctx, stagingPath)
	if err != nil {
		return "", err
	}
	s, err := sospriors.ReadStaging(localStaging)
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		if target, err = s.TargetPath(target); err != nil {
			return "", err
		}
	}

	work, dest := target, target
	if !inplace {
		dest = joinPath(outputDir, filepath.Base(target))
		if work, err = t.maybeUpload(dest); err != nil {
			return "", err
		}
		if !samePath(work, target) {
			if err = copyFile(work, target); err != nil {
				return "", err
			}
		}
	}

	o, err := sospriors.Open(work, s, layout)
	if err != nil {
		return "", err
	}
	o.Log = log
	rep, err := o.Apply()
	if err != nil {
		o.Close()
		return "", err
	}
	if err = o.Save(""); err != nil {
		return "", err
	}
	if err = t.upload(ctx); err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{
		"sos":     dest,
		"entries": rep.Entries,
		"slots":   rep.Slots,
	}).Info("SoS priors overwritten")
	return dest, nil
}

func samePath(a, b string) bool {
	a, errA := filepath.Abs(a)
	b, errB := filepath.Abs(b)
	return errA == nil && errB == nil && a == b
}

// copyFile copies the file at src to dst.
func copyFile(dst, src string) (err error) {
	r, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return &sospriors.Error{Kind: sospriors.ErrNotFound, Detail: "SoS file " + src, Err: err}
		}
		return &sospriors.Error{Kind: sospriors.ErrIO, Detail: "opening " + src, Err: err}
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return &sospriors.Error{Kind: sospriors.ErrIO, Detail: "creating " + dst, Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &sospriors.Error{Kind: sospriors.ErrIO, Detail: "closing " + dst, Err: cerr}
		}
	}()
	if _, err = io.Copy(w, r); err != nil {
		return &sospriors.Error{Kind: sospriors.ErrIO, Detail: "copying " + src, Err: err}
	}
	return nil
}
