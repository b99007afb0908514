// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package keycrypt

import (
	"os"
	"path/filepath"

	"github.com/esims/chainvault/errors"
)

func init() {
	RegisterFunc("env", func(host string) Keycrypt { return envCrypt(host) })
	RegisterFunc("file", func(string) Keycrypt { return fileCrypt("/") })
}

// envCrypt serves env://NAME; the variable name is the URL host.
type envCrypt string

func (e envCrypt) Lookup(string) Secret { return envSecret(e) }

type envSecret string

func (e envSecret) Get() ([]byte, error) {
	v, ok := os.LookupEnv(string(e))
	if !ok || v == "" {
		return nil, ErrNoSuchSecret
	}
	return []byte(v), nil
}

func (e envSecret) Put(b []byte) error {
	return os.Setenv(string(e), string(b))
}

// fileCrypt serves file:///absolute/path.
type fileCrypt string

func (c fileCrypt) Lookup(name string) Secret {
	return fileSecret(filepath.Join(string(c), name))
}

type fileSecret string

func (f fileSecret) Get() ([]byte, error) {
	b, err := os.ReadFile(string(f))
	if os.IsNotExist(err) {
		return nil, ErrNoSuchSecret
	}
	if err != nil {
		return nil, errors.E("reading secret file", string(f), err)
	}
	return b, nil
}

func (f fileSecret) Put(b []byte) (err error) {
	dir := filepath.Dir(string(f))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.E("creating secret directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".secret-*")
	if err != nil {
		return errors.E("creating secret file", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return errors.E("restricting secret file", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.E("writing secret file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.E("writing secret file", err)
	}
	return os.Rename(tmp.Name(), string(f))
}
