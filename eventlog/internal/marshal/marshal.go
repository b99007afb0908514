// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package marshal

import (
	"encoding/json"
	"fmt"

	"github.com/esims/chainvault/errors"
)

// Reserved field keys.
const (
	EventTypeKey = "eventType"
	RunIDKey     = "runID"
)

// Marshal renders an event as a JSON object. Field keys must be unique
// strings and may not be reserved; extra holds fields supplied by the
// eventer itself, such as the run id, and may use reserved keys.
func Marshal(typ string, fieldPairs []interface{}, extra map[string]interface{}) (string, error) {
	if len(fieldPairs)%2 != 0 {
		return "", errors.E(errors.Invalid, fmt.Sprintf("len(fieldPairs) must be even; %d is not even", len(fieldPairs)))
	}
	fields := make(map[string]interface{}, len(fieldPairs)/2+len(extra)+1)
	for i := 0; i < len(fieldPairs); i += 2 {
		key, ok := fieldPairs[i].(string)
		if !ok {
			return "", errors.E(errors.Invalid, fmt.Sprintf("field key at fieldPairs[%d] must be a string: %v", i, fieldPairs[i]))
		}
		if key == EventTypeKey || key == RunIDKey {
			return "", errors.E(errors.Invalid, fmt.Sprintf("field key at fieldPairs[%d] is %q, which is reserved", i, key))
		}
		if _, dup := fields[key]; dup {
			return "", errors.E(errors.Invalid, fmt.Sprintf("key %q at fieldPairs[%d] already used; duplicate keys not allowed", key, i))
		}
		fields[key] = fieldPairs[i+1]
	}
	for k, v := range extra {
		fields[k] = v
	}
	fields[EventTypeKey] = typ
	b, err := json.Marshal(fields)
	if err != nil {
		return "", errors.E(errors.Invalid, "marshaling event fields", err)
	}
	return string(b), nil
}
