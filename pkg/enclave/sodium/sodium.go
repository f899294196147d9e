/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sodium seals payloads for several recipients with NaCl primitives: the plain text is encrypted once with
// secretbox under a random data key, and the data key is boxed for every recipient from the sender's key pair.
package sodium

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/log"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/hyperledger/aries-payload/pkg/doc/payload"
)

const (
	// KeySize is the size of public and private Curve25519 keys in bytes.
	KeySize = 32
	// NonceSize is the size of both payload nonces in bytes.
	NonceSize = 24
)

var logger = log.New("aries-payload/enclave")

var (
	// ErrNoAccessibleKey is returned when none of the combined keys opens with the recipient's key pair.
	ErrNoAccessibleKey = errors.New("no combined key is accessible to the recipient")
	// ErrDecryptionFailed is returned when the cipher text does not open with the recovered data key.
	ErrDecryptionFailed = errors.New("payload decryption failed")
)

// KeyPair is a Curve25519 key pair.
type KeyPair struct {
	Public  *[KeySize]byte
	Private *[KeySize]byte
}

// GenerateKeyPair creates a key pair reading entropy from randSource.
func GenerateKeyPair(randSource io.Reader) (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(randSource)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromBytes builds a key pair from raw keys. priv may be nil for a public only key pair.
func KeyPairFromBytes(pub, priv []byte) (*KeyPair, error) {
	if len(pub) != KeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", KeySize, len(pub))
	}

	kp := &KeyPair{Public: new([KeySize]byte)}
	copy(kp.Public[:], pub)

	if priv == nil {
		return kp, nil
	}

	if len(priv) != KeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", KeySize, len(priv))
	}

	kp.Private = new([KeySize]byte)
	copy(kp.Private[:], priv)

	return kp, nil
}

// SenderKey returns the public key as the sender of a payload.
func (kp *KeyPair) SenderKey() payload.SenderKey {
	return payload.NewSenderKey(kp.Public[:])
}

// RecipientKey returns the public key as the recipient of a payload.
func (kp *KeyPair) RecipientKey() payload.RecipientKey {
	return payload.NewRecipientKey(kp.Public[:])
}

// Enclave encrypts and decrypts payloads.
type Enclave struct {
	randSource io.Reader
}

// Opt configures an Enclave.
type Opt func(e *Enclave)

// WithRandSource sets the entropy source used for data keys and nonces.
func WithRandSource(r io.Reader) Opt {
	return func(e *Enclave) {
		e.randSource = r
	}
}

// New returns an Enclave reading entropy from crypto/rand unless configured otherwise.
func New(opts ...Opt) *Enclave {
	e := &Enclave{randSource: rand.Reader}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Encrypt seals plaintext for every recipient. The result carries a recipient index covering all recipients;
// a recipient listed twice gets a single slot.
func (e *Enclave) Encrypt(plaintext []byte, sender *KeyPair,
	recipients []payload.RecipientKey) (*payload.EncryptedPayload, error) {
	if sender == nil || sender.Public == nil || sender.Private == nil {
		return nil, errors.New("sender key pair is incomplete")
	}

	var dataKey [KeySize]byte

	nonce, err := e.nonce()
	if err != nil {
		return nil, err
	}

	combinedKeyNonce, err := e.nonce()
	if err != nil {
		return nil, err
	}

	if _, err = io.ReadFull(e.randSource, dataKey[:]); err != nil {
		return nil, fmt.Errorf("read data key: %w", err)
	}

	index := make(map[payload.RecipientKey]int, len(recipients))
	combinedKeys := make([]payload.CombinedKey, 0, len(recipients))

	for _, r := range recipients {
		if _, ok := index[r]; ok {
			continue
		}

		if r.Len() != KeySize {
			return nil, fmt.Errorf("recipient %s: public key must be %d bytes", base58.Encode(r.Bytes()), KeySize)
		}

		var pub [KeySize]byte

		copy(pub[:], r.Bytes())

		sealed := box.Seal(nil, dataKey[:], combinedKeyNonce, &pub, sender.Private)

		index[r] = len(combinedKeys)
		combinedKeys = append(combinedKeys, payload.NewCombinedKey(sealed))
	}

	cipherText := secretbox.Seal(nil, plaintext, nonce, &dataKey)

	logger.Debugf("sealed payload from %s for %d recipients", base58.Encode(sender.Public[:]), len(combinedKeys))

	return payload.New(sender.SenderKey(), payload.NewNonce(nonce[:]), payload.NewCombinedKeyNonce(combinedKeyNonce[:]),
		combinedKeys, payload.NewCipherText(cipherText), payload.WithRecipientIndex(index))
}

// Decrypt recovers the plain text for recipient. The recipient index is used when it knows the recipient,
// otherwise every combined key is tried.
func (e *Enclave) Decrypt(p *payload.EncryptedPayload, recipient *KeyPair) ([]byte, error) {
	if recipient == nil || recipient.Public == nil || recipient.Private == nil {
		return nil, errors.New("recipient key pair is incomplete")
	}

	sender, err := KeyPairFromBytes(p.Sender().Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	combinedKeyNonce, err := toNonce(p.CombinedKeyNonce().Bytes())
	if err != nil {
		return nil, err
	}

	nonce, err := toNonce(p.Nonce().Bytes())
	if err != nil {
		return nil, err
	}

	kid := base58.Encode(recipient.Public[:])

	slots := make([]int, 0, p.NumRecipients())
	if slot, ok := p.SlotFor(recipient.RecipientKey()); ok {
		slots = append(slots, slot)
	} else {
		for i := 0; i < p.NumRecipients(); i++ {
			slots = append(slots, i)
		}
	}

	for _, slot := range slots {
		ck, _ := p.CombinedKey(slot)

		dataKey, ok := box.Open(nil, ck.Bytes(), combinedKeyNonce, sender.Public, recipient.Private)
		if !ok || len(dataKey) != KeySize {
			logger.Debugf("combined key %d of payload %s does not open for %s", slot, p.Digest(), kid)

			continue
		}

		var key [KeySize]byte

		copy(key[:], dataKey)

		plaintext, ok := secretbox.Open(nil, p.CipherText().Bytes(), nonce, &key)
		if !ok {
			return nil, fmt.Errorf("%w: cipher text does not open for %s", ErrDecryptionFailed, kid)
		}

		logger.Debugf("opened payload %s with combined key %d", p.Digest(), slot)

		return plaintext, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoAccessibleKey, kid)
}

func (e *Enclave) nonce() (*[NonceSize]byte, error) {
	var n [NonceSize]byte

	if _, err := io.ReadFull(e.randSource, n[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	return &n, nil
}

func toNonce(b []byte) (*[NonceSize]byte, error) {
	if len(b) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecryptionFailed, NonceSize, len(b))
	}

	var n [NonceSize]byte

	copy(n[:], b)

	return &n, nil
}
