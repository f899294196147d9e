/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// cborPayload is the binary layout: a six element array. The recipient index is null when absent and an array of
// [key, slot] pairs sorted by key otherwise.
type cborPayload struct {
	_                struct{} `cbor:",toarray"`
	Sender           []byte
	Nonce            []byte
	CombinedKeyNonce []byte
	CombinedKeys     [][]byte
	CipherText       []byte
	RecipientIndex   *[]cborIndexEntry
}

// cborIndexEntry keeps the slot raw so that integers outside the int64 range are still read as integers.
type cborIndexEntry struct {
	_    struct{} `cbor:",toarray"`
	Key  []byte
	Slot cbor.RawMessage
}

// CBOR major types of integer data items.
const (
	cborMajorUnsigned = 0
	cborMajorNegative = 1
)

// nolint:gochecknoglobals
var cborEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}

	return em
}

type cborBackend struct{}

func (cborBackend) marshal(s *schema) ([]byte, error) {
	raw := cborPayload{
		Sender:           nonNil(s.sender),
		Nonce:            nonNil(s.nonce),
		CombinedKeyNonce: nonNil(s.combinedKeyNonce),
		CombinedKeys:     make([][]byte, len(s.combinedKeys)),
		CipherText:       nonNil(s.cipherText),
	}

	for i, k := range s.combinedKeys {
		raw.CombinedKeys[i] = nonNil(k)
	}

	if s.recipientIndex != nil {
		entries := make([]cborIndexEntry, len(s.recipientIndex))
		for i, e := range s.recipientIndex {
			slot, err := cborEncMode.Marshal(e.slot)
			if err != nil {
				return nil, errorf(MalformedEnvelope, "marshal cbor slot: %w", err)
			}

			entries[i] = cborIndexEntry{Key: nonNil(e.key), Slot: slot}
		}

		raw.RecipientIndex = &entries
	}

	b, err := cborEncMode.Marshal(&raw)
	if err != nil {
		return nil, errorf(MalformedEnvelope, "marshal cbor payload: %w", err)
	}

	return b, nil
}

// unmarshal accepts the canonical encoding only: whatever decodes but would not be written back identically
// (nulls in byte fields, indefinite lengths, non shortest integers, trailing bytes) is a format mismatch.
func (b cborBackend) unmarshal(data []byte) (*schema, error) {
	var raw cborPayload

	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, errorf(FormatMismatch, "read cbor payload: %w", err)
	}

	s := &schema{
		sender:           raw.Sender,
		nonce:            raw.Nonce,
		combinedKeyNonce: raw.CombinedKeyNonce,
		combinedKeys:     raw.CombinedKeys,
		cipherText:       raw.CipherText,
	}

	overflow := false

	if raw.RecipientIndex != nil {
		s.recipientIndex = make([]indexEntry, len(*raw.RecipientIndex))

		for i, e := range *raw.RecipientIndex {
			entry, err := cborSlot(e.Key, e.Slot)
			if err != nil {
				return nil, err
			}

			overflow = overflow || entry.overflow
			s.recipientIndex[i] = entry

			if i == 0 {
				continue
			}

			switch c := bytes.Compare(s.recipientIndex[i-1].key, e.Key); {
			case c == 0:
				return nil, errorf(MalformedEnvelope, "recipient %s is indexed more than once", encodeText(e.Key))
			case c > 0:
				return nil, errorf(FormatMismatch, "recipient index entries are not sorted")
			}
		}
	}

	// an overflowing slot has no int64 form to re-encode; it fails as out of range instead.
	if overflow {
		return s, nil
	}

	canonical, err := b.marshal(s)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(canonical, data) {
		return nil, errorf(FormatMismatch, "non canonical cbor payload")
	}

	return s, nil
}

// cborSlot reads an integer slot. Integers outside the int64 range are kept as overflowing entries.
func cborSlot(key []byte, raw cbor.RawMessage) (indexEntry, error) {
	if len(raw) == 0 {
		return indexEntry{}, errorf(FormatMismatch, "recipient index slot of %s is missing", encodeText(key))
	}

	switch raw[0] >> 5 {
	case cborMajorUnsigned:
		var u uint64

		if err := cbor.Unmarshal(raw, &u); err != nil {
			return indexEntry{}, errorf(FormatMismatch, "read recipient index slot of %s: %w", encodeText(key), err)
		}

		if u > math.MaxInt64 {
			return indexEntry{key: key, overflow: true}, nil
		}

		return indexEntry{key: key, slot: int64(u)}, nil
	case cborMajorNegative:
		var n int64

		err := cbor.Unmarshal(raw, &n)
		if err == nil {
			return indexEntry{key: key, slot: n}, nil
		}

		var typeErr *cbor.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return indexEntry{key: key, overflow: true}, nil
		}

		return indexEntry{}, errorf(FormatMismatch, "read recipient index slot of %s: %w", encodeText(key), err)
	default:
		return indexEntry{}, errorf(FormatMismatch, "recipient index slot of %s is not an integer", encodeText(key))
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
