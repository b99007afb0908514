// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config loads chainvault deployment settings. Settings are
// gathered into a profile from, in increasing order of precedence,
// profile files, the process environment and -set flags, and are then
// resolved into a Settings value that components take as an explicit
// dependency.
//
// Profile syntax
//
// A profile contains a set of param clauses. Each clause sets one or
// more parameters of a section. Clauses are interpreted in order,
// top-to-bottom, and later values override earlier ones:
//
//	param chain endpoint = "https://rpc.example.net"
//	param anchor (
//		chunk-size = 24576
//		max-per-tx = 4
//		register = true
//	)
//
// The values supported are integers, floats, booleans, strings and
// bare identifiers, which are read as strings. Profiles may also be
// written as YAML documents mapping section names to parameters; see
// ParseYAML.
//
// Parameters are set from the command line with -set section.key=value.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/esims/chainvault/errors"
)

// Profile stores a set of parameters grouped by section.
type Profile struct {
	// The following are used by the flag registration and
	// handling mechanism.
	flagDefaultPath string
	flagPaths       []string
	flagParams      []string
	flagDump        bool

	mu       sync.Mutex
	sections sections
}

// New creates an empty profile.
func New() *Profile {
	return &Profile{sections: make(sections)}
}

// Parse parses a profile from the provided reader into p. On
// success, the parameters defined in r override those in p.
func (p *Profile) Parse(r io.Reader) error {
	s, err := parse(r)
	if err != nil {
		return err
	}
	p.merge(s)
	return nil
}

// ParseYAML parses a YAML profile into p. The document maps section
// names to maps of parameters.
func (p *Profile) ParseYAML(r io.Reader) error {
	s, err := parseYAML(r)
	if err != nil {
		return err
	}
	p.merge(s)
	return nil
}

// ParseFile loads the profile at path, choosing the syntax by its
// extension: .yaml and .yml files are YAML.
func (p *Profile) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.E(err, "opening profile", path)
	}
	defer f.Close() // nolint: errcheck
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return p.ParseYAML(f)
	default:
		return p.Parse(f)
	}
}

func (p *Profile) merge(s sections) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections.Merge(s)
}

// Set sets the parameter at path, given as section.key, to value.
// Values are stored as strings and converted when read.
func (p *Profile) Set(path string, value string) error {
	i := strings.Index(path, ".")
	if i <= 0 || i == len(path)-1 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: parameter path must be section.key", path))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections.set(path[:i], path[i+1:], value)
	return nil
}

// Get returns the value of the parameter at the provided
// dot-separated path, rendered as in profile syntax.
func (p *Profile) Get(path string) (value string, ok bool) {
	i := strings.Index(path, ".")
	if i < 0 {
		return "", false
	}
	v, ok := p.lookup(path[:i], path[i+1:])
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%#v", v), true
}

func (p *Profile) lookup(section, key string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.sections[section][key]
	return v, ok
}

// PrintTo writes the profile in parseable form to w.
func (p *Profile) PrintTo(w io.Writer) error {
	p.mu.Lock()
	s := p.sections.SyntaxString()
	p.mu.Unlock()
	_, err := io.WriteString(w, s)
	return err
}

// reader reads typed parameters from one section of a profile. The
// first conversion error is retained in err.
type reader struct {
	p       *Profile
	section string
	err     error
}

func (p *Profile) reader(section string) *reader {
	return &reader{p: p, section: section}
}

func (r *reader) fail(key string, v interface{}, want string) {
	if r.err == nil {
		r.err = errors.E(errors.Invalid, fmt.Sprintf("param %s.%s: cannot use %#v as %s", r.section, key, v, want))
	}
}

func (r *reader) String(key, def string) string {
	v, ok := r.p.lookup(r.section, key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	case int, float64, bool:
		return fmt.Sprint(x)
	}
	r.fail(key, v, "string")
	return def
}

func (r *reader) Int(key string, def int) int {
	v, ok := r.p.lookup(r.section, key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 0, 64); err == nil {
			return int(n)
		}
	}
	r.fail(key, v, "int")
	return def
}

func (r *reader) Float(key string, def float64) float64 {
	v, ok := r.p.lookup(r.section, key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	r.fail(key, v, "float")
	return def
}

func (r *reader) Bool(key string, def bool) bool {
	v, ok := r.p.lookup(r.section, key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
	}
	r.fail(key, v, "bool")
	return def
}

// Duration reads a duration such as "20s"; plain integers are seconds.
func (r *reader) Duration(key string, def time.Duration) time.Duration {
	v, ok := r.p.lookup(r.section, key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return time.Duration(x) * time.Second
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(x)); err == nil {
			return d
		}
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	r.fail(key, v, "duration")
	return def
}
