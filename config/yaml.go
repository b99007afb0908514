// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"io"

	"github.com/esims/chainvault/errors"
	yaml "gopkg.in/yaml.v2"
)

// parseYAML reads a document of the form
//
//	chain:
//	  endpoint: https://rpc.example.net
//	anchor:
//	  max-per-tx: 4
func parseYAML(r io.Reader) (sections, error) {
	var doc map[string]map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.E(errors.Invalid, "parse error", err)
	}
	s := make(sections)
	for name, params := range doc {
		for k, v := range params {
			switch x := v.(type) {
			case nil:
				continue
			case string, bool, int, float64:
				s.set(name, k, x)
			case int64:
				s.set(name, k, int(x))
			case uint64:
				s.set(name, k, int(x))
			default:
				return nil, errors.E(errors.Invalid, fmt.Sprintf("param %s.%s: unsupported value %v", name, k, v))
			}
		}
	}
	return s, nil
}
