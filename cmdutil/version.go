// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil

import (
	"fmt"
	"runtime"

	"v.io/x/lib/cmdline"
)

var (
	version = "(devel)"
	tags    = ""
)

// Version returns the version string of the binary:
//
//    <prefix>/<version> (<tag1>; <tag2>; ...)
//
// The version and tags are set at build time using something like:
//
//    go build -ldflags \
//     "-X github.com/esims/chainvault/cmdutil.version=$version \
//      -X github.com/esims/chainvault/cmdutil.tags=$tags"
func Version(prefix string) string {
	s := fmt.Sprintf("os=%s; arch=%s; %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
	if tags != "" {
		s = tags + "; " + s
	}
	return fmt.Sprintf("%s/%v (%v)", prefix, version, s)
}

// CreateVersionCommand creates a cmdline 'subcommand' to display version
// information.
func CreateVersionCommand(name, prefix string) *cmdline.Command {
	return &cmdline.Command{
		Runner: RunnerFunc(func(env *cmdline.Env, _ []string) error {
			fmt.Fprintln(env.Stdout, Version(prefix))
			return nil
		}),
		Name:  name,
		Short: "Display version information",
	}
}
