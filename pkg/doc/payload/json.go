/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

// JSON field names.
const (
	fieldSender           = "sender"
	fieldNonce            = "nonce"
	fieldCombinedKeyNonce = "combinedKeyNonce"
	fieldCombinedKeys     = "combinedKeys"
	fieldCipherText       = "cipherText"
	fieldRecipientIndex   = "recipientIndex"
)

// rawJSONPayload is the JSON document written for a payload.
type rawJSONPayload struct {
	Sender           string            `json:"sender"`
	Nonce            string            `json:"nonce"`
	CombinedKeyNonce string            `json:"combinedKeyNonce"`
	CombinedKeys     []string          `json:"combinedKeys"`
	CipherText       string            `json:"cipherText"`
	RecipientIndex   *map[string]int64 `json:"recipientIndex,omitempty"`
}

type jsonBackend struct{}

func (jsonBackend) marshal(s *schema) ([]byte, error) {
	raw := rawJSONPayload{
		Sender:           encodeText(s.sender),
		Nonce:            encodeText(s.nonce),
		CombinedKeyNonce: encodeText(s.combinedKeyNonce),
		CombinedKeys:     make([]string, len(s.combinedKeys)),
		CipherText:       encodeText(s.cipherText),
	}

	for i, k := range s.combinedKeys {
		raw.CombinedKeys[i] = encodeText(k)
	}

	if s.recipientIndex != nil {
		index := make(map[string]int64, len(s.recipientIndex))
		for _, e := range s.recipientIndex {
			index[encodeText(e.key)] = e.slot
		}

		raw.RecipientIndex = &index
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errorf(MalformedEnvelope, "marshal json payload: %w", err)
	}

	return b, nil
}

// unmarshal reads the document field by field so that a missing field, an explicit null and an unknown field can
// be told apart.
func (jsonBackend) unmarshal(b []byte) (*schema, error) {
	fields, err := readJSONObject(b)
	if err != nil {
		return nil, err
	}

	for name := range fields {
		switch name {
		case fieldSender, fieldNonce, fieldCombinedKeyNonce, fieldCombinedKeys, fieldCipherText, fieldRecipientIndex:
		default:
			return nil, errorf(FormatMismatch, "unknown field %q", name)
		}
	}

	s := &schema{}

	for _, f := range []struct {
		name string
		dst  *[]byte
	}{
		{fieldSender, &s.sender},
		{fieldNonce, &s.nonce},
		{fieldCombinedKeyNonce, &s.combinedKeyNonce},
		{fieldCipherText, &s.cipherText},
	} {
		if *f.dst, err = requiredBytesField(fields, f.name); err != nil {
			return nil, err
		}
	}

	if s.combinedKeys, err = combinedKeysField(fields); err != nil {
		return nil, err
	}

	if s.recipientIndex, err = recipientIndexField(fields); err != nil {
		return nil, err
	}

	return s, nil
}

type jsonMember struct {
	name  string
	value json.RawMessage
}

// readJSONMembers returns the members of the JSON object in b in document order, repeated names included.
func readJSONMembers(b []byte) ([]jsonMember, error) {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return nil, errorf(FormatMismatch, "read json object: %w", err)
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errorf(FormatMismatch, "expected a json object")
	}

	var members []jsonMember

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, errorf(FormatMismatch, "read json object: %w", err)
		}

		name, ok := tok.(string)
		if !ok {
			return nil, errorf(FormatMismatch, "expected a json member name")
		}

		var value json.RawMessage

		if err = dec.Decode(&value); err != nil {
			return nil, errorf(FormatMismatch, "read json member %q: %w", name, err)
		}

		members = append(members, jsonMember{name: name, value: value})
	}

	if _, err = dec.Token(); err != nil {
		return nil, errorf(FormatMismatch, "read json object: %w", err)
	}

	if _, err = dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errorf(FormatMismatch, "unexpected data after json object")
	}

	return members, nil
}

func readJSONObject(b []byte) (map[string]json.RawMessage, error) {
	if isJSONNull(b) {
		return nil, errorf(MalformedEnvelope, "json payload is null")
	}

	members, err := readJSONMembers(b)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage, len(members))

	for _, m := range members {
		if _, dup := fields[m.name]; dup {
			return nil, errorf(FormatMismatch, "field %q appears more than once", m.name)
		}

		fields[m.name] = m.value
	}

	return fields, nil
}

func requiredField(fields map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := fields[name]
	if !ok || isJSONNull(raw) {
		return nil, errorf(MalformedEnvelope, "missing required field %q", name)
	}

	return raw, nil
}

func requiredBytesField(fields map[string]json.RawMessage, name string) ([]byte, error) {
	raw, err := requiredField(fields, name)
	if err != nil {
		return nil, err
	}

	return textField(raw, name)
}

func textField(raw json.RawMessage, name string) ([]byte, error) {
	var s string

	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errorf(FormatMismatch, "field %q is not a string: %w", name, err)
	}

	b, err := decodeText(s)
	if err != nil {
		return nil, errorf(FormatMismatch, "field %q: %w", name, err)
	}

	return b, nil
}

func combinedKeysField(fields map[string]json.RawMessage) ([][]byte, error) {
	raw, err := requiredField(fields, fieldCombinedKeys)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage

	if err = json.Unmarshal(raw, &items); err != nil {
		return nil, errorf(FormatMismatch, "field %q is not an array: %w", fieldCombinedKeys, err)
	}

	keys := make([][]byte, len(items))

	for i, item := range items {
		if isJSONNull(item) {
			return nil, errorf(MalformedEnvelope, "combined key %d is null", i)
		}

		if keys[i], err = textField(item, fieldCombinedKeys); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

func recipientIndexField(fields map[string]json.RawMessage) ([]indexEntry, error) {
	raw, ok := fields[fieldRecipientIndex]
	if !ok {
		return nil, nil
	}

	if isJSONNull(raw) {
		return nil, errorf(FormatMismatch, "field %q must be omitted rather than null", fieldRecipientIndex)
	}

	members, err := readJSONMembers(raw)
	if err != nil {
		return nil, errorf(FormatMismatch, "field %q is not a map of slots: %w", fieldRecipientIndex, err)
	}

	entries := make([]indexEntry, 0, len(members))

	for _, m := range members {
		key, keyErr := decodeText(m.name)
		if keyErr != nil {
			return nil, errorf(FormatMismatch, "recipient index key %q: %w", m.name, keyErr)
		}

		e, slotErr := jsonSlot(key, m.value)
		if slotErr != nil {
			return nil, slotErr
		}

		entries = append(entries, e)
	}

	sortEntries(entries)

	return entries, nil
}

// jsonSlot reads an integer slot. Integers outside the int64 range are kept as overflowing entries so that they fail
// as out of range rather than as unreadable.
func jsonSlot(key []byte, raw json.RawMessage) (indexEntry, error) {
	text := string(bytes.TrimSpace(raw))

	if text == "" || (text[0] != '-' && (text[0] < '0' || text[0] > '9')) {
		return indexEntry{}, errorf(FormatMismatch, "recipient index slot of %q is not a number", encodeText(key))
	}

	slot, err := strconv.ParseInt(text, 10, 64)

	switch {
	case err == nil:
		return indexEntry{key: key, slot: slot}, nil
	case errors.Is(err, strconv.ErrRange):
		return indexEntry{key: key, overflow: true}, nil
	default:
		return indexEntry{}, errorf(FormatMismatch, "recipient index slot of %q is not an integer", encodeText(key))
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
