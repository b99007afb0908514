// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil

import (
	"fmt"
	"io"
	"os"

	"v.io/x/lib/textutil"
)

// WriteWrappedMessage writes the message to the specified io.Writer taking
// care to line wrap it appropriately for the terminal width. Messages to
// writers other than a terminal are written unwrapped.
func WriteWrappedMessage(w io.Writer, m string) {
	if f, ok := w.(*os.File); !ok || (f != os.Stdout && f != os.Stderr) {
		fmt.Fprintln(w, m)
		return
	}
	_, cols, err := textutil.TerminalSize()
	if err != nil {
		fmt.Fprintln(w, m)
		return
	}
	wrapped := textutil.NewUTF8WrapWriter(w, cols)
	fmt.Fprintln(wrapped, m)
	wrapped.Flush()
}

// Field writes a "name: value" line with the name padded to width.
func Field(w io.Writer, width int, name string, value interface{}) {
	fmt.Fprintf(w, "%-*s %v\n", width+1, name+":", value)
}
