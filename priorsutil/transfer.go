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
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sospriors"
	"github.com/spatialmodel/sospriors/cloud"
)

// transfer stages files that live in blob storage in a local temporary
// directory.
type transfer struct {
	// uploads is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	uploads [][2]string
	dir     string
	log     logrus.FieldLogger
}

func newTransfer(log logrus.FieldLogger) *transfer {
	return &transfer{log: log}
}

func (t *transfer) tempDir() (string, error) {
	if t.dir == "" {
		dir, err := ioutil.TempDir("", "sospriors")
		if err != nil {
			return "", &sospriors.Error{Kind: sospriors.ErrIO, Detail: "creating temporary directory", Err: err}
		}
		t.dir = dir
	}
	return t.dir, nil
}

// maybeDownload returns p if it is a local file. If p refers to blob
// storage, the blob is downloaded and the path to the local copy is
// returned. A missing blob is ErrNotFound.
func (t *transfer) maybeDownload(ctx context.Context, p string) (string, error) {
	if !cloud.IsBlob(p) {
		return p, nil
	}
	ok, err := cloud.Exists(ctx, p)
	if err != nil {
		return "", &sospriors.Error{Kind: sospriors.ErrIO, Detail: "checking " + p, Err: err}
	}
	if !ok {
		return "", &sospriors.Error{Kind: sospriors.ErrNotFound, Detail: p + " does not exist"}
	}
	dir, err := t.tempDir()
	if err != nil {
		return "", err
	}
	local, err := cloud.Download(ctx, p, dir)
	if err != nil {
		return "", &sospriors.Error{Kind: sospriors.ErrIO, Detail: "downloading " + p, Err: err}
	}
	t.log.WithFields(logrus.Fields{"blob": p, "file": local}).Debug("downloaded")
	return local, nil
}

// maybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the upload method is run.
func (t *transfer) maybeUpload(p string) (string, error) {
	if !cloud.IsBlob(p) {
		return p, nil
	}
	dir, err := t.tempDir()
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, path.Base(p))
	t.uploads = append(t.uploads, [2]string{local, p})
	return local, nil
}

// upload copies pending output files to blob storage.
func (t *transfer) upload(ctx context.Context) error {
	for _, files := range t.uploads {
		if err := cloud.Upload(ctx, files[0], files[1]); err != nil {
			return &sospriors.Error{Kind: sospriors.ErrIO, Detail: fmt.Sprintf("uploading %s", files[1]), Err: err}
		}
		t.log.WithFields(logrus.Fields{"file": files[0], "blob": files[1]}).Debug("uploaded")
	}
	t.uploads = nil
	return nil
}

// cleanup removes the temporary directory, if one was created.
func (t *transfer) cleanup() {
	if t.dir != "" {
		os.RemoveAll(t.dir)
		t.dir = ""
	}
}
