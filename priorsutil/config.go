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
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/sospriors"
	"github.com/spatialmodel/sospriors/cloud"
	"github.com/spf13/cast"
)

func configError(format string, args ...interface{}) error {
	return &sospriors.Error{Kind: sospriors.ErrConfig, Detail: fmt.Sprintf(format, args...)}
}

// requireString returns the value of the configuration variable key with
// environment variables expanded, or an error if it is not set.
func requireString(cfg *viper.Viper, key string) (string, error) {
	s := os.ExpandEnv(strings.TrimSpace(cfg.GetString(key)))
	if s == "" {
		return "", configError("the %s configuration variable is required but not set", key)
	}
	return s, nil
}

// requireStrings is like requireString for lists. A single string is
// split on whitespace and commas.
func requireStrings(cfg *viper.Viper, key string) ([]string, error) {
	v := cfg.Get(key)
	if s, ok := v.(string); ok {
		v = strings.Fields(strings.Replace(s, ",", " ", -1))
	}
	ss, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, configError("reading the %s configuration variable: %v", key, err)
	}
	ss = expandStringSlice(ss)
	var o []string
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			o = append(o, s)
		}
	}
	if len(o) == 0 {
		return nil, configError("the %s configuration variable is required but not set", key)
	}
	return o, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputDir makes sure that the output directory exists, or, for blob
// storage, that its bucket can be opened.
func checkOutputDir(ctx context.Context, dir string) error {
	if cloud.IsBlob(dir) {
		bucket, err := cloud.OpenBucket(ctx, bucketOf(dir))
		if err != nil {
			return configError("checking output_dir location: %v", err)
		}
		return bucket.Close()
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return configError("the output_dir directory doesn't exist: %v", err)
	}
	if !fi.IsDir() {
		return configError("output_dir %s is not a directory", dir)
	}
	return nil
}

// bucketOf returns the 'provider://name' part of a blob path.
func bucketOf(p string) string {
	i := strings.Index(p, "://")
	rest := p[i+3:]
	if j := strings.Index(rest, "/"); j >= 0 {
		rest = rest[:j]
	}
	return p[:i+3] + rest
}

// joinPath joins a file name to a local directory or a blob path.
func joinPath(dir, name string) string {
	if cloud.IsBlob(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + path.Base(name)
	}
	return filepath.Join(dir, name)
}

// loadLayout reads the layout override file f, or returns the default
// layout if f is empty.
func loadLayout(f string) (*sospriors.Layout, error) {
	f = os.ExpandEnv(f)
	if f == "" {
		return sospriors.DefaultLayout(), nil
	}
	r, err := os.Open(f)
	if err != nil {
		return nil, configError("opening layout file: %v", err)
	}
	defer r.Close()
	return sospriors.LoadLayout(r)
}
