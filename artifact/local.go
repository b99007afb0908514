// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package artifact

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/esims/chainvault/errors"
)

// Local stores artifacts under a directory.
type Local struct {
	dir string
}

// NewLocal returns a store rooted at dir. The directory is created on
// first use.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Put implements Store. Data is written to a temporary file which is
// then hard-linked to its final name, so the final name either holds
// the complete artifact or does not exist.
func (l *Local) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.E(err, "writing artifact", name)
	}
	if clean := path.Clean(name); name == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.E(errors.Invalid, fmt.Sprintf("artifact name %q", name))
	}
	dst := filepath.Join(l.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", errors.E(err, "creating artifact directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return "", errors.E(err, "creating artifact")
	}
	defer os.Remove(tmp.Name()) // nolint: errcheck
	if err := writeSynced(tmp, data); err != nil {
		return "", errors.E(err, "writing artifact", name)
	}
	if err := os.Link(tmp.Name(), dst); err != nil {
		if os.IsExist(err) {
			return "", errors.E(errors.Exists, "artifact", dst)
		}
		return "", errors.E(err, "publishing artifact", name)
	}
	return dst, nil
}

func writeSynced(f *os.File, data []byte) (err error) {
	defer errors.CleanUp(f.Close, &err)
	if _, err = f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
