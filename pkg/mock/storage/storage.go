/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperledger/aries-framework-go/spi/storage"
)

// Provider mock store provider.
type Provider struct {
	Store             *Store
	ErrOpenStore      error
	ErrSetStoreConfig error
	ErrClose          error
}

// NewProvider returns a provider backed by an empty mock store.
func NewProvider() *Provider {
	return &Provider{Store: NewStore()}
}

// OpenStore returns the mock store.
func (p *Provider) OpenStore(string) (storage.Store, error) {
	if p.ErrOpenStore != nil {
		return nil, p.ErrOpenStore
	}

	return p.Store, nil
}

// SetStoreConfig returns ErrSetStoreConfig.
func (p *Provider) SetStoreConfig(string, storage.StoreConfiguration) error {
	return p.ErrSetStoreConfig
}

// GetStoreConfig returns an empty configuration.
func (p *Provider) GetStoreConfig(string) (storage.StoreConfiguration, error) {
	return storage.StoreConfiguration{}, nil
}

// GetOpenStores returns the mock store.
func (p *Provider) GetOpenStores() []storage.Store {
	return []storage.Store{p.Store}
}

// Close returns ErrClose.
func (p *Provider) Close() error {
	return p.ErrClose
}

// Store mock store. Tags are ignored; Query iterates every entry.
type Store struct {
	Entries   map[string][]byte
	lock      sync.RWMutex
	ErrPut    error
	ErrGet    error
	ErrDelete error
	ErrQuery  error
}

// NewStore returns an empty mock store.
func NewStore() *Store {
	return &Store{Entries: make(map[string][]byte)}
}

// Put stores value under key.
func (s *Store) Put(key string, value []byte, _ ...storage.Tag) error {
	if s.ErrPut != nil {
		return s.ErrPut
	}

	s.lock.Lock()
	s.Entries[key] = value
	s.lock.Unlock()

	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	if s.ErrGet != nil {
		return nil, s.ErrGet
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.Entries[key]
	if !ok {
		return nil, storage.ErrDataNotFound
	}

	return v, nil
}

// GetTags is not supported.
func (s *Store) GetTags(string) ([]storage.Tag, error) {
	return nil, errors.New("not supported")
}

// GetBulk returns the values stored under keys.
func (s *Store) GetBulk(keys ...string) ([][]byte, error) {
	values := make([][]byte, len(keys))

	for i, k := range keys {
		v, err := s.Get(k)
		if err != nil && !errors.Is(err, storage.ErrDataNotFound) {
			return nil, err
		}

		values[i] = v
	}

	return values, nil
}

// Query returns an iterator over every entry, ordered by key.
func (s *Store) Query(string, ...storage.QueryOption) (storage.Iterator, error) {
	if s.ErrQuery != nil {
		return nil, s.ErrQuery
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	keys := make([]string, 0, len(s.Entries))
	for k := range s.Entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return &iterator{keys: keys, store: s, pos: -1}, nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	if s.ErrDelete != nil {
		return s.ErrDelete
	}

	s.lock.Lock()
	delete(s.Entries, key)
	s.lock.Unlock()

	return nil
}

// Batch is not supported.
func (s *Store) Batch([]storage.Operation) error {
	return errors.New("not supported")
}

// Flush does nothing.
func (s *Store) Flush() error {
	return nil
}

// Close does nothing.
func (s *Store) Close() error {
	return nil
}

type iterator struct {
	keys  []string
	store *Store
	pos   int
}

func (i *iterator) Next() (bool, error) {
	i.pos++

	return i.pos < len(i.keys), nil
}

func (i *iterator) Key() (string, error) {
	if i.pos < 0 || i.pos >= len(i.keys) {
		return "", fmt.Errorf("iterator position %d is invalid", i.pos)
	}

	return i.keys[i.pos], nil
}

func (i *iterator) Value() ([]byte, error) {
	k, err := i.Key()
	if err != nil {
		return nil, err
	}

	return i.store.Get(k)
}

func (i *iterator) Tags() ([]storage.Tag, error) {
	return nil, nil
}

func (i *iterator) TotalItems() (int, error) {
	return len(i.keys), nil
}

func (i *iterator) Close() error {
	return nil
}
