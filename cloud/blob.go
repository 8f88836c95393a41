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

package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
)

// Upload copies the local file at localPath to the blob at blobPath,
// e.g. "gs://bucket/priors/jane_na.nc".
func Upload(ctx context.Context, localPath, blobPath string) error {
	bucketName, key, err := splitBlob(blobPath)
	if err != nil {
		return err
	}
	r, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %v", localPath, err)
	}
	defer r.Close()
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("cloud: opening bucket to upload file '%s': %v", blobPath, err)
	}
	defer bucket.Close()
	return writeBlob(ctx, bucket, key, r)
}

// Download copies the blob at blobPath into directory dir and returns
// the path of the local copy.
func Download(ctx context.Context, blobPath, dir string) (string, error) {
	bucketName, key, err := splitBlob(blobPath)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", fmt.Errorf("cloud: opening bucket to download file '%s': %v", blobPath, err)
	}
	defer bucket.Close()
	local := filepath.Join(dir, filepath.Base(key))
	w, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("cloud: creating file for download: %v", err)
	}
	if err = readBlob(ctx, bucket, key, w); err != nil {
		w.Close()
		os.Remove(local)
		return "", err
	}
	if err = w.Close(); err != nil {
		return "", fmt.Errorf("cloud: closing downloaded file '%s': %v", local, err)
	}
	return local, nil
}

// Exists reports whether the blob at blobPath exists.
func Exists(ctx context.Context, blobPath string) (bool, error) {
	bucketName, key, err := splitBlob(blobPath)
	if err != nil {
		return false, err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return false, err
	}
	defer bucket.Close()
	return bucket.Exists(ctx, key)
}

// readBlob copies the given blob from the given bucket to w.
func readBlob(ctx context.Context, bucket *blob.Bucket, key string, w io.Writer) error {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	if _, err = io.Copy(w, r); err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return nil
}

// writeBlob writes the contents of r to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, r io.Reader) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}
