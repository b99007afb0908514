// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package digest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/esims/chainvault/errors"
	"github.com/grailbio/testutil/expect"
	"pgregory.net/rapid"
)

const helloHex = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestFromBytes(t *testing.T) {
	expect.EQ(t, FromBytes([]byte("hello")).Hex(), helloHex)
	expect.EQ(t, FromBytes([]byte("hello")).Short(), helloHex[:12])
	expect.False(t, FromBytes(nil).IsZero())
}

func TestParse(t *testing.T) {
	for _, s := range []string{
		helloHex,
		"0x" + helloHex,
		strings.ToUpper(helloHex),
		"  " + helloHex + "\n",
	} {
		d, err := Parse(s)
		expect.NoError(t, err)
		expect.EQ(t, d, FromBytes([]byte("hello")))
	}
	for _, s := range []string{"", "0x", helloHex[:62], helloHex + "00", "zz" + helloHex[2:]} {
		_, err := Parse(s)
		expect.True(t, errors.Is(errors.Invalid, err), "input %q: %v", s, err)
	}
}

func TestWriter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.SliceOf(rapid.Byte()).Draw(t, "p")
		d, err := FromReader(bytes.NewReader(p))
		if err != nil {
			t.Fatal(err)
		}
		if d != FromBytes(p) {
			t.Fatalf("streamed digest %v != %v", d, FromBytes(p))
		}
		back, err := Parse(d.Hex())
		if err != nil || back != d {
			t.Fatalf("parse(%s) = %v, %v", d.Hex(), back, err)
		}
	})
}
