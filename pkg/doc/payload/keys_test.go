/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	t.Run("holds a copy of the input", func(t *testing.T) {
		raw := []byte("recipient-0")
		k := NewRecipientKey(raw)
		raw[0] = 'X'

		require.Equal(t, []byte("recipient-0"), k.Bytes())
		require.Equal(t, len("recipient-0"), k.Len())

		out := k.Bytes()
		out[0] = 'Y'
		require.Equal(t, []byte("recipient-0"), k.Bytes())
	})

	t.Run("equality is byte wise", func(t *testing.T) {
		a := NewRecipientKey([]byte("recipient-0"))
		b := NewRecipientKey([]byte("recipient-0"))
		c := NewRecipientKey([]byte("recipient-1"))

		require.True(t, a.Equal(b))
		require.True(t, a == b)
		require.False(t, a.Equal(c))

		m := map[RecipientKey]int{a: 1}
		require.Equal(t, 1, m[b])
	})

	t.Run("empty and nil are the same value", func(t *testing.T) {
		require.Equal(t, NewNonce(nil), NewNonce([]byte{}))
		require.Equal(t, 0, NewNonce(nil).Len())
	})

	t.Run("text form", func(t *testing.T) {
		k := NewSenderKey([]byte("sender-key"))
		require.Equal(t, "c2VuZGVyLWtleQ", k.String())

		parsed, err := ParseSenderKey(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)

		r, err := ParseRecipientKey("cmVjaXBpZW50LTA")
		require.NoError(t, err)
		require.Equal(t, NewRecipientKey([]byte("recipient-0")), r)
	})

	t.Run("invalid text form", func(t *testing.T) {
		for _, s := range []string{"c2VuZGVyLWtleQ==", "not base64!", "c2VuZGVyLWtle+/"} {
			_, err := ParseRecipientKey(s)
			require.Error(t, err, s)
			require.True(t, errors.Is(err, ErrFormatMismatch), s)
		}
	})
}
