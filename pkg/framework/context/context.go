/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context creates the Provider context of a payload node and provides simple accessor methods to the
// services it holds.
package context

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	cmdpayload "github.com/hyperledger/aries-payload/pkg/controller/command/payload"
	"github.com/hyperledger/aries-payload/pkg/enclave/sodium"
	payloadstore "github.com/hyperledger/aries-payload/pkg/store/payload"
	"github.com/hyperledger/aries-payload/pkg/transport/push"
)

// Provider supplies the node configuration to client objects.
type Provider struct {
	storeProvider storage.Provider
	cacheSize     *int
	payloadStore  cmdpayload.Store
	enclave       cmdpayload.Enclave
	pusher        cmdpayload.Pusher
	nodeKey       *sodium.KeyPair
}

// ProviderOption configures the framework.
type ProviderOption func(opts *Provider) error

// New instantiates a new context provider. Services not injected through options get defaults: an in-memory
// storage provider, a sodium enclave and a freshly generated node key pair.
func New(opts ...ProviderOption) (*Provider, error) {
	ctxProvider := Provider{}

	for _, opt := range opts {
		err := opt(&ctxProvider)
		if err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	if ctxProvider.storeProvider == nil {
		ctxProvider.storeProvider = mem.NewProvider()
	}

	if ctxProvider.payloadStore == nil {
		var storeOpts []payloadstore.Opt
		if ctxProvider.cacheSize != nil {
			storeOpts = append(storeOpts, payloadstore.WithCacheSize(*ctxProvider.cacheSize))
		}

		s, err := payloadstore.New(ctxProvider.storeProvider, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("initialize context payload store: %w", err)
		}

		ctxProvider.payloadStore = s
	}

	if ctxProvider.enclave == nil {
		ctxProvider.enclave = sodium.New()
	}

	if ctxProvider.nodeKey == nil {
		kp, err := sodium.GenerateKeyPair(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate node key: %w", err)
		}

		ctxProvider.nodeKey = kp
	}

	return &ctxProvider, nil
}

// StorageProvider returns the storage provider backing the payload store.
func (p *Provider) StorageProvider() storage.Provider {
	return p.storeProvider
}

// PayloadStore returns the payload store.
func (p *Provider) PayloadStore() cmdpayload.Store {
	return p.payloadStore
}

// Enclave returns the enclave sealing and opening payloads.
func (p *Provider) Enclave() cmdpayload.Enclave {
	return p.enclave
}

// Pusher returns the pusher delivering payloads to peers, nil when the node has none.
func (p *Provider) Pusher() cmdpayload.Pusher {
	return p.pusher
}

// NodeKey returns the key pair of the node.
func (p *Provider) NodeKey() *sodium.KeyPair {
	return p.nodeKey
}

// WithStorageProvider injects a storage provider into the context.
func WithStorageProvider(s storage.Provider) ProviderOption {
	return func(opts *Provider) error {
		opts.storeProvider = s
		return nil
	}
}

// WithCacheSize sets the size of the payload store cache. Zero disables the cache.
func WithCacheSize(size int) ProviderOption {
	return func(opts *Provider) error {
		if size < 0 {
			return fmt.Errorf("invalid cache size %d", size)
		}

		opts.cacheSize = &size

		return nil
	}
}

// WithPayloadStore injects a payload store into the context.
func WithPayloadStore(s cmdpayload.Store) ProviderOption {
	return func(opts *Provider) error {
		opts.payloadStore = s
		return nil
	}
}

// WithEnclave injects an enclave into the context.
func WithEnclave(e cmdpayload.Enclave) ProviderOption {
	return func(opts *Provider) error {
		opts.enclave = e
		return nil
	}
}

// WithPusher injects a pusher into the context.
func WithPusher(pusher cmdpayload.Pusher) ProviderOption {
	return func(opts *Provider) error {
		opts.pusher = pusher
		return nil
	}
}

// WithPeers creates a pusher delivering payloads to the nodes listed in dir. An empty directory leaves the node
// without pusher.
func WithPeers(dir push.Directory, pushOpts ...push.Opt) ProviderOption {
	return func(opts *Provider) error {
		if len(dir) == 0 {
			return nil
		}

		opts.pusher = push.New(dir, pushOpts...)

		return nil
	}
}

// WithNodeKey injects the node key pair into the context.
func WithNodeKey(kp *sodium.KeyPair) ProviderOption {
	return func(opts *Provider) error {
		if kp == nil || kp.Private == nil {
			return errors.New("node key pair needs a private key")
		}

		opts.nodeKey = kp

		return nil
	}
}
