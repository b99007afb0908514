// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

type listFlag struct {
	defaultValue string
	values       *[]string
	needEqual    bool
}

func (l *listFlag) String() string { return l.defaultValue }

func (l *listFlag) Set(value string) error {
	if l.needEqual && !strings.Contains(value, "=") {
		return fmt.Errorf("invalid flag value %s: missing '='", value)
	}
	*l.values = append(*l.values, value)
	return nil
}

// RegisterFlags registers a set of flags on the provided FlagSet.
// These flags configure the profile when ProcessFlags is called
// (after flag parsing). The flags are:
//
// 	-profile path
//		Parses and loads the profile at the given path. This flag may be
//		repeated, loading each profile in turn. If no -profile flags are
//		specified, then the provided default path is loaded instead. If
//		the default path does not exist, it is skipped; other profile loading
//		errors cause ProcessFlags to return an error.
//
//	-set section.key=value
//		Sets the value of the named parameter. This flag may be
//		repeated. Set parameters override the environment.
//
//	-profiledump
//		Writes the profile (after processing the above flags) to
//		the dump writer passed to ProcessFlags.
//
// The flag names are prefixed with the provided prefix.
func (p *Profile) RegisterFlags(fs *flag.FlagSet, prefix string, defaultProfilePath string) {
	p.flagDefaultPath = defaultProfilePath
	fs.Var(&listFlag{p.flagDefaultPath, &p.flagPaths, false}, prefix+"profile", "load the profile at the provided path; may be repeated")
	fs.Var(&listFlag{"", &p.flagParams, true}, prefix+"set", "set a profile parameter as section.key=value; may be repeated")
	fs.BoolVar(&p.flagDump, prefix+"profiledump", false, "dump the resolved profile and exit")
}

// ProcessFlags processes the flags as registered by RegisterFlags:
// profiles are loaded, the environment is applied through lookup
// (see ApplyEnv) and -set parameters are applied last. ProcessFlags
// reports dumped=true if the profile was written to dump.
func (p *Profile) ProcessFlags(lookup func(string) (string, bool), dump io.Writer) (dumped bool, err error) {
	if len(p.flagPaths) == 0 && p.flagDefaultPath != "" {
		if err := p.ParseFile(p.flagDefaultPath); err != nil {
			if _, statErr := os.Stat(p.flagDefaultPath); !os.IsNotExist(statErr) {
				return false, err
			}
		}
	}
	for _, path := range p.flagPaths {
		if err := p.ParseFile(path); err != nil {
			return false, err
		}
	}
	p.ApplyEnv(lookup)
	for _, param := range p.flagParams {
		elems := strings.SplitN(param, "=", 2)
		if len(elems) != 2 {
			panic(param)
		}
		if err := p.Set(elems[0], elems[1]); err != nil {
			return false, err
		}
	}
	if p.flagDump {
		return true, p.PrintTo(dump)
	}
	return false, nil
}
