/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failures raised while building, encoding or decoding a payload.
// Kind values and names are stable and safe to expose to remote callers.
type Kind int32

const (
	// MalformedEnvelope is raised when a structural invariant is violated or a required field is missing.
	MalformedEnvelope Kind = iota + 1
	// FormatMismatch is raised when bytes do not conform to the framing of the expected format.
	FormatMismatch
	// IndexOutOfRange is raised when a recipient index slot lies outside the combined keys.
	IndexOutOfRange
)

// Sentinel errors for errors.Is checks.
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrFormatMismatch    = errors.New("format mismatch")
	ErrIndexOutOfRange   = errors.New("index out of range")
)

// Code returns the stable numeric code of k.
func (k Kind) Code() int32 {
	return int32(k)
}

func (k Kind) String() string {
	switch k {
	case MalformedEnvelope:
		return "MalformedEnvelope"
	case FormatMismatch:
		return "FormatMismatch"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case MalformedEnvelope:
		return ErrMalformedEnvelope
	case FormatMismatch:
		return ErrFormatMismatch
	case IndexOutOfRange:
		return ErrIndexOutOfRange
	default:
		return nil
	}
}

// Error is returned by every failing operation of this package.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}

	if e.Err == nil {
		return msg
	}

	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of e's kind. An out of range slot is a structural violation as well,
// so IndexOutOfRange errors also match ErrMalformedEnvelope.
func (e *Error) Is(target error) bool {
	if s := e.Kind.sentinel(); s != nil && target == s {
		return true
	}

	return e.Kind == IndexOutOfRange && target == ErrMalformedEnvelope
}

// KindOf returns the Kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

func errorf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}
