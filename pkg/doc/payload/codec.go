/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Format is a wire representation of an EncryptedPayload.
type Format int

const (
	// JSON is the human readable format. Byte fields are unpadded base64url strings.
	JSON Format = iota + 1
	// CBOR is the compact binary format.
	CBOR
)

// Media types of the supported formats.
const (
	JSONMediaType = "application/json"
	CBORMediaType = "application/cbor"
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// MediaType returns the media type tagging blobs of format f.
func (f Format) MediaType() string {
	switch f {
	case JSON:
		return JSONMediaType
	case CBOR:
		return CBORMediaType
	default:
		return ""
	}
}

// ParseFormat accepts a format name ("json", "cbor") or a media type, parameters included.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(strings.SplitN(s, ";", 2)[0])) //nolint:gomnd

	switch name {
	case "json", JSONMediaType:
		return JSON, nil
	case "cbor", CBORMediaType:
		return CBOR, nil
	default:
		return 0, errorf(FormatMismatch, "unsupported format %q", s)
	}
}

// schema is the logical field list shared by every wire format. Backends only move bytes in and out of it;
// invariants are checked once, in fromSchema.
type schema struct {
	sender           []byte
	nonce            []byte
	combinedKeyNonce []byte
	combinedKeys     [][]byte
	cipherText       []byte
	recipientIndex   []indexEntry // nil when absent
}

type indexEntry struct {
	key  []byte
	slot int64
	// overflow marks a slot read as an integer that does not fit in int64.
	overflow bool
}

type backend interface {
	marshal(s *schema) ([]byte, error)
	unmarshal(b []byte) (*schema, error)
}

// nolint:gochecknoglobals
var backends = map[Format]backend{
	JSON: jsonBackend{},
	CBOR: cborBackend{},
}

// Encode serializes p in format f.
func Encode(f Format, p *EncryptedPayload) ([]byte, error) {
	if p == nil {
		return nil, errorf(MalformedEnvelope, "payload is nil")
	}

	b, ok := backends[f]
	if !ok {
		return nil, errorf(FormatMismatch, "unsupported format %s", f)
	}

	return b.marshal(toSchema(p))
}

// Decode parses data in format f. Nothing is dropped or clamped: any structural, framing or slot problem fails the
// whole decode.
func Decode(f Format, data []byte) (*EncryptedPayload, error) {
	b, ok := backends[f]
	if !ok {
		return nil, errorf(FormatMismatch, "unsupported format %s", f)
	}

	s, err := b.unmarshal(data)
	if err != nil {
		return nil, err
	}

	return fromSchema(s)
}

// MarshalJSON implements json.Marshaler.
func (p *EncryptedPayload) MarshalJSON() ([]byte, error) {
	return Encode(JSON, p)
}

// UnmarshalJSON implements json.Unmarshaler. It is meant for zero values embedded in request bodies.
func (p *EncryptedPayload) UnmarshalJSON(data []byte) error {
	return p.decodeInto(JSON, data)
}

// MarshalBinary implements encoding.BinaryMarshaler using the CBOR format.
func (p *EncryptedPayload) MarshalBinary() ([]byte, error) {
	return Encode(CBOR, p)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using the CBOR format.
func (p *EncryptedPayload) UnmarshalBinary(data []byte) error {
	return p.decodeInto(CBOR, data)
}

func (p *EncryptedPayload) decodeInto(f Format, data []byte) error {
	decoded, err := Decode(f, data)
	if err != nil {
		return err
	}

	*p = *decoded

	return nil
}

func toSchema(p *EncryptedPayload) *schema {
	s := &schema{
		sender:           p.sender.Bytes(),
		nonce:            p.nonce.Bytes(),
		combinedKeyNonce: p.combinedKeyNonce.Bytes(),
		combinedKeys:     make([][]byte, len(p.combinedKeys)),
		cipherText:       p.cipherText.Bytes(),
	}

	for i, k := range p.combinedKeys {
		s.combinedKeys[i] = k.Bytes()
	}

	if p.indexed {
		s.recipientIndex = make([]indexEntry, 0, len(p.recipientIndex))
		for k, slot := range p.recipientIndex {
			s.recipientIndex = append(s.recipientIndex, indexEntry{key: k.Bytes(), slot: int64(slot)})
		}

		sortEntries(s.recipientIndex)
	}

	return s
}

func fromSchema(s *schema) (*EncryptedPayload, error) {
	combinedKeys := make([]CombinedKey, len(s.combinedKeys))
	for i, k := range s.combinedKeys {
		combinedKeys[i] = NewCombinedKey(k)
	}

	var opts []Opt

	if s.recipientIndex != nil {
		index := make(map[RecipientKey]int, len(s.recipientIndex))

		for _, e := range s.recipientIndex {
			k := NewRecipientKey(e.key)
			if _, dup := index[k]; dup {
				return nil, errorf(MalformedEnvelope, "recipient %s is indexed more than once", k)
			}

			if e.overflow {
				return nil, errorf(IndexOutOfRange, "slot of recipient %s is outside [0, %d)", k, len(combinedKeys))
			}

			if e.slot < 0 || e.slot >= int64(len(combinedKeys)) || e.slot > math.MaxInt32 {
				return nil, errorf(IndexOutOfRange, "slot %d of recipient %s is outside [0, %d)",
					e.slot, k, len(combinedKeys))
			}

			index[k] = int(e.slot)
		}

		opts = append(opts, WithRecipientIndex(index))
	}

	return New(NewSenderKey(s.sender), NewNonce(s.nonce), NewCombinedKeyNonce(s.combinedKeyNonce), combinedKeys,
		NewCipherText(s.cipherText), opts...)
}

// sortEntries orders index entries by key bytes so that encodings are deterministic.
func sortEntries(entries []indexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
}
