/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-payload/pkg/enclave/sodium"
	mockstorage "github.com/hyperledger/aries-payload/pkg/mock/storage"
	payloadstore "github.com/hyperledger/aries-payload/pkg/store/payload"
	"github.com/hyperledger/aries-payload/pkg/transport/push"
)

func TestNewProvider(t *testing.T) {
	t.Run("test new with default", func(t *testing.T) {
		prov, err := New()
		require.NoError(t, err)
		require.NotNil(t, prov.StorageProvider())
		require.NotNil(t, prov.PayloadStore())
		require.NotNil(t, prov.Enclave())
		require.NotNil(t, prov.NodeKey())
		require.NotNil(t, prov.NodeKey().Private)
		require.Nil(t, prov.Pusher())
	})

	t.Run("test new with injected services", func(t *testing.T) {
		kp, err := sodium.GenerateKeyPair(rand.Reader)
		require.NoError(t, err)

		sp := mem.NewProvider()
		s, err := payloadstore.New(sp)
		require.NoError(t, err)

		e := sodium.New()
		pusher := push.New(push.Directory{kp.RecipientKey(): "http://localhost"})

		prov, err := New(WithStorageProvider(sp), WithPayloadStore(s), WithEnclave(e), WithPusher(pusher),
			WithNodeKey(kp))
		require.NoError(t, err)
		require.Equal(t, sp, prov.StorageProvider())
		require.Equal(t, s, prov.PayloadStore())
		require.Equal(t, e, prov.Enclave())
		require.Equal(t, pusher, prov.Pusher())
		require.Equal(t, kp, prov.NodeKey())
	})

	t.Run("test new with peers", func(t *testing.T) {
		kp, err := sodium.GenerateKeyPair(rand.Reader)
		require.NoError(t, err)

		prov, err := New(WithPeers(push.Directory{kp.RecipientKey(): "http://localhost"}, push.WithMaxRetries(1)))
		require.NoError(t, err)
		require.NotNil(t, prov.Pusher())

		prov, err = New(WithPeers(nil))
		require.NoError(t, err)
		require.Nil(t, prov.Pusher())
	})

	t.Run("test new with cache size", func(t *testing.T) {
		prov, err := New(WithCacheSize(0))
		require.NoError(t, err)
		require.NotNil(t, prov.PayloadStore())

		_, err = New(WithCacheSize(-1))
		require.EqualError(t, err, "option failed: invalid cache size -1")
	})

	t.Run("test error return from options", func(t *testing.T) {
		_, err := New(WithNodeKey(&sodium.KeyPair{}))
		require.EqualError(t, err, "option failed: node key pair needs a private key")

		_, err = New(WithNodeKey(nil))
		require.Error(t, err)
	})

	t.Run("test payload store open failure", func(t *testing.T) {
		sp := mockstorage.NewProvider()
		sp.ErrOpenStore = errors.New("open failed")

		_, err := New(WithStorageProvider(sp))
		require.Error(t, err)
		require.Contains(t, err.Error(), "initialize context payload store")
	})
}
