// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/scanner"
	"unicode"

	"github.com/esims/chainvault/errors"
)

// sections maps a section name (chain, keys, ...) to its parameters.
// Parameter values are bool, int, float64 or string.
type sections map[string]map[string]interface{}

// Merge sets every parameter of other in m; later values win.
func (m sections) Merge(other sections) {
	for name, params := range other {
		for k, v := range params {
			m.set(name, k, v)
		}
	}
}

func (m sections) set(section, key string, value interface{}) {
	if m[section] == nil {
		m[section] = make(map[string]interface{})
	}
	m[section][key] = value
}

// SyntaxString renders m in profile syntax, sorted by section and key.
func (m sections) SyntaxString() string {
	var b strings.Builder
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		params := m[name]
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "param %s (\n", name)
		for _, k := range keys {
			fmt.Fprintf(&b, "\t%s = %#v\n", k, params[k])
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// A parser stores parser state defines the productions
// in the profile grammar.
type parser struct {
	scanner scanner.Scanner
	errors  []string
	scanned rune
}

// parse parses a profile. If the reader r implements
//
//	Name() string
//
// then this is used as a filename to display positional information
// in error messages.
func parse(r io.Reader) (sections, error) {
	var p parser
	p.scanner.Init(r)
	// Init resets the mode and error handler; newlines stay whitespace.
	p.scanner.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanChars |
		scanner.ScanStrings | scanner.ScanRawStrings | scanner.ScanComments | scanner.SkipComments
	p.scanner.IsIdentRune = func(ch rune, i int) bool {
		return unicode.IsLetter(ch) || (unicode.IsDigit(ch) || ch == '_' || ch == '/' || ch == '-') && i > 0
	}
	if named, ok := r.(interface{ Name() string }); ok {
		filename := named.Name()
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, filename); err == nil && len(rel) < len(filename) {
				filename = rel
			}
		}
		p.scanner.Position.Filename = filename
	}
	p.scanner.Error = func(s *scanner.Scanner, msg string) {
		p.errors = append(p.errors, fmt.Sprintf("%s: %s", s.Position, msg))
	}
	if s, ok := p.toplevel(); ok && len(p.errors) == 0 {
		return s, nil
	}
	switch len(p.errors) {
	case 0:
		return nil, errors.E(errors.Invalid, "parse error")
	case 1:
		return nil, errors.E(errors.Invalid, "parse error: "+p.errors[0])
	default:
		return nil, errors.E(errors.Invalid, "parse error:\n"+strings.Join(p.errors, "\n"))
	}
}

// toplevel parses the profile grammar. It is as follows:
//
//	toplevel:
//		clause
//		clause ';' toplevel
//		<eof>
//
//	clause:
//		'param' ident assign
//		'param' ident assignlist
//
//	assign:
//		key = value
//
//	assignlist:
//		( list )
//
//	list:
//		assign
//		assign ';' list
//
//	value:
//		'true'
//		'false'
//		ident
//		integer
//		float
//		string
func (p *parser) toplevel() (s sections, ok bool) {
	s = make(sections)
	for {
		switch tok := p.next(); tok {
		case scanner.EOF:
			return s, true
		case ';':
		case scanner.Ident:
			if p.text() != "param" {
				p.errorf("unrecognized toplevel clause: %s", p.text())
				return nil, false
			}
			name, params, ok := p.param()
			if !ok {
				return nil, false
			}
			for k, v := range params {
				s.set(name, k, v)
			}
		default:
			p.errorf("unexpected: %s", scanner.TokenString(tok))
			return nil, false
		}
	}
}

// param:
//	ident assign
//	ident assignlist
func (p *parser) param() (section string, params map[string]interface{}, ok bool) {
	if p.next() != scanner.Ident {
		p.errorf("expected identifier")
		return
	}
	section = p.text()
	switch tok := p.peek(); tok {
	case scanner.Ident:
		var (
			key   string
			value interface{}
		)
		key, value, ok = p.assign()
		if !ok {
			return
		}
		params = map[string]interface{}{key: value}
	case '(':
		params, ok = p.assignlist()
	default:
		p.next()
		p.errorf("unexpected: %s", scanner.TokenString(tok))
	}
	return
}

// assign:
//	key = value
func (p *parser) assign() (key string, value interface{}, ok bool) {
	if p.next() != scanner.Ident {
		p.errorf("expected identifier")
		return
	}
	key = p.text()
	if p.next() != '=' {
		p.errorf(`expected "="`)
		return
	}
	value, ok = p.value()
	return
}

// assignlist:
//	( list )
//
// list:
//	assign
//	assign ';' list
func (p *parser) assignlist() (assigns map[string]interface{}, ok bool) {
	if p.next() != '(' {
		p.errorf(`expected "("`)
		return
	}
	assigns = make(map[string]interface{})
	for {
		switch p.peek() {
		default:
			var (
				key   string
				value interface{}
			)
			key, value, ok = p.assign()
			if !ok {
				return
			}
			assigns[key] = value
		case ';':
			p.next()
		case ')':
			p.next()
			ok = true
			return
		case scanner.EOF:
			p.errorf(`expected ")"`)
			return
		}
	}
}

// value:
//	'true'
//	'false'
//	identifier
//	integer
//	float
//	string
func (p *parser) value() (value interface{}, ok bool) {
	switch p.next() {
	case scanner.Ident:
		switch p.text() {
		case "true":
			return true, true
		case "false":
			return false, true
		default:
			return p.text(), true
		}
	case '-':
		switch v, ok := p.value(); x := v.(type) {
		case int:
			return -x, ok
		case float64:
			return -x, ok
		default:
			p.errorf("cannot negate %v", v)
			return nil, false
		}
	case scanner.Int:
		v, err := strconv.ParseInt(p.text(), 0, 64)
		if err != nil {
			p.errorf("could not parse integer: %v", err)
			return nil, false
		}
		return int(v), true
	case scanner.Float:
		v, err := strconv.ParseFloat(p.text(), 64)
		if err != nil {
			p.errorf("could not parse float: %v", err)
			return nil, false
		}
		return v, true
	case scanner.String, scanner.RawString:
		text, err := strconv.Unquote(p.text())
		if err != nil {
			p.errorf("could not parse string: %v", err)
			return nil, false
		}
		return text, true
	default:
		p.errorf("not a value")
		return nil, false
	}
}

func (p *parser) next() rune {
	tok := p.peek()
	p.scanned = 0
	return tok
}

func (p *parser) peek() rune {
	if p.scanned == 0 {
		p.scanned = p.scanner.Scan()
	}
	return p.scanned
}

func (p *parser) text() string {
	return p.scanner.TokenText()
}

func (p *parser) errorf(format string, args ...interface{}) {
	e := fmt.Sprintf("%s: %s", p.scanner.Position, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, e)
}
