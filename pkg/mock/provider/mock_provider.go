/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"github.com/hyperledger/aries-payload/pkg/controller/command/payload"
	"github.com/hyperledger/aries-payload/pkg/enclave/sodium"
)

// Provider mocks provider needed for payload command initialization.
type Provider struct {
	PayloadStoreValue payload.Store
	EnclaveValue      payload.Enclave
	PusherValue       payload.Pusher
	NodeKeyValue      *sodium.KeyPair
}

// PayloadStore returns the payload store.
func (p *Provider) PayloadStore() payload.Store {
	return p.PayloadStoreValue
}

// Enclave returns the enclave.
func (p *Provider) Enclave() payload.Enclave {
	return p.EnclaveValue
}

// Pusher returns the pusher.
func (p *Provider) Pusher() payload.Pusher {
	return p.PusherValue
}

// NodeKey returns the node key pair.
func (p *Provider) NodeKey() *sodium.KeyPair {
	return p.NodeKeyValue
}
