/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"errors"
	"fmt"

	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-payload/pkg/doc/payload"
)

const (
	// NameSpace for payload store.
	NameSpace = "payload"

	payloadTag = "payload"

	defaultCacheSize = 100
)

var logger = log.New("aries-payload/store")

// ErrPayloadNotFound signals that no payload is stored under the given key.
var ErrPayloadNotFound = errors.New("payload not found")

// Store keeps encrypted payloads keyed by their digest. Payloads are persisted in the binary format so that the
// recipient index of locally produced payloads survives.
type Store struct {
	store storage.Store
	cache gcache.Cache
}

type options struct {
	cacheSize int
}

// Opt configures the payload store.
type Opt func(opts *options)

// WithCacheSize sets the number of decoded payloads kept in memory. Zero disables the cache.
func WithCacheSize(size int) Opt {
	return func(opts *options) {
		opts.cacheSize = size
	}
}

// New returns a new payload store.
func New(p storage.Provider, opts ...Opt) (*Store, error) {
	o := &options{cacheSize: defaultCacheSize}

	for _, opt := range opts {
		opt(o)
	}

	store, err := p.OpenStore(NameSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload store: %w", err)
	}

	err = p.SetStoreConfig(NameSpace, storage.StoreConfiguration{TagNames: []string{payloadTag}})
	if err != nil {
		return nil, fmt.Errorf("failed to set store configuration: %w", err)
	}

	s := &Store{store: store}

	if o.cacheSize > 0 {
		s.cache = gcache.New(o.cacheSize).LRU().Build()
	}

	return s, nil
}

// Put stores p and returns its key.
func (s *Store) Put(p *payload.EncryptedPayload) (string, error) {
	data, err := payload.Encode(payload.CBOR, p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	key := p.Digest()

	if err = s.store.Put(key, data, storage.Tag{Name: payloadTag}); err != nil {
		return "", fmt.Errorf("failed to put payload: %w", err)
	}

	if s.cache != nil {
		s.cache.Remove(key)
	}

	logger.Debugf("stored payload %s for %d recipients", key, p.NumRecipients())

	return key, nil
}

// Get returns the payload stored under key.
func (s *Store) Get(key string) (*payload.EncryptedPayload, error) {
	if s.cache != nil {
		if v, err := s.cache.Get(key); err == nil {
			return v.(*payload.EncryptedPayload), nil // nolint:forcetypeassert
		}
	}

	data, err := s.store.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrPayloadNotFound, key, err)
		}

		return nil, fmt.Errorf("failed to get payload: %w", err)
	}

	p, err := payload.Decode(payload.CBOR, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload %s: %w", key, err)
	}

	if s.cache != nil {
		if err = s.cache.Set(key, p); err != nil {
			logger.Warnf("failed to cache payload %s: %s", key, err)
		}
	}

	return p, nil
}

// Delete removes the payload stored under key.
func (s *Store) Delete(key string) error {
	if s.cache != nil {
		s.cache.Remove(key)
	}

	if err := s.store.Delete(key); err != nil {
		return fmt.Errorf("failed to delete payload: %w", err)
	}

	return nil
}

// Keys returns the keys of every stored payload.
func (s *Store) Keys() ([]string, error) {
	iter, err := s.store.Query(payloadTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query payloads: %w", err)
	}

	defer storage.Close(iter, logger)

	var keys []string

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate payloads: %w", err)
		}

		if !ok {
			return keys, nil
		}

		key, err := iter.Key()
		if err != nil {
			return nil, fmt.Errorf("failed to read payload key: %w", err)
		}

		keys = append(keys, key)
	}
}
