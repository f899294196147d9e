/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

import (
	"encoding/json"
	"io"
)

// ErrorLogger logs errors met while writing command responses.
type ErrorLogger interface {
	Errorf(msg string, args ...interface{})
}

// WriteNillableResponse writes v to w as JSON. If v is nil then an empty object is written.
// Write failures are only logged since the response status is already committed.
func WriteNillableResponse(w io.Writer, v interface{}, l ErrorLogger) {
	obj := v
	if v == nil {
		obj = map[string]interface{}{}
	}

	if err := json.NewEncoder(w).Encode(obj); err != nil {
		l.Errorf("Unable to send response, %s", err)
	}
}
