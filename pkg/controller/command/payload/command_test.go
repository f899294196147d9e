/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-payload/pkg/controller/command"
	"github.com/hyperledger/aries-payload/pkg/doc/payload"
	"github.com/hyperledger/aries-payload/pkg/enclave/sodium"
	mockstorage "github.com/hyperledger/aries-payload/pkg/mock/storage"
	payloadstore "github.com/hyperledger/aries-payload/pkg/store/payload"
)

type mockPusher struct {
	pushed []*payload.EncryptedPayload
	err    error
}

func (m *mockPusher) Push(_ context.Context, p *payload.EncryptedPayload) error {
	m.pushed = append(m.pushed, p)

	return m.err
}

type mockEnclave struct {
	*sodium.Enclave
	encryptErr error
}

func (m *mockEnclave) Encrypt(plaintext []byte, sender *sodium.KeyPair,
	recipients []payload.RecipientKey) (*payload.EncryptedPayload, error) {
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}

	return m.Enclave.Encrypt(plaintext, sender, recipients)
}

type mockProvider struct {
	store   Store
	enclave Enclave
	pusher  Pusher
	nodeKey *sodium.KeyPair
}

func (m *mockProvider) PayloadStore() Store { return m.store }
func (m *mockProvider) Enclave() Enclave { return m.enclave }
func (m *mockProvider) Pusher() Pusher { return m.pusher }
func (m *mockProvider) NodeKey() *sodium.KeyPair { return m.nodeKey }

func newKeyPair(t *testing.T) *sodium.KeyPair {
	t.Helper()

	kp, err := sodium.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	return kp
}

func newProvider(t *testing.T) *mockProvider {
	t.Helper()

	s, err := payloadstore.New(mem.NewProvider())
	require.NoError(t, err)

	return &mockProvider{
		store:   s,
		enclave: &mockEnclave{Enclave: sodium.New()},
		pusher:  &mockPusher{},
		nodeKey: newKeyPair(t),
	}
}

func newCommand(t *testing.T, p Provider) *Command {
	t.Helper()

	cmd, err := New(p)
	require.NoError(t, err)

	return cmd
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return bytes.NewBuffer(b)
}

func send(t *testing.T, cmd *Command, msg string, to ...string) string {
	t.Helper()

	var rw bytes.Buffer

	cmdErr := cmd.Send(&rw, toJSON(t, &SendRequest{
		Payload: base64.RawURLEncoding.EncodeToString([]byte(msg)),
		To:      to,
	}))
	require.NoError(t, cmdErr)

	var response KeyResponse

	require.NoError(t, json.Unmarshal(rw.Bytes(), &response))
	require.NotEmpty(t, response.Key)

	return response.Key
}

func requireCommandError(t *testing.T, err command.Error, code command.Code, errType command.Type) {
	t.Helper()

	require.Error(t, err)
	require.Equal(t, code, err.Code(), err.Error())
	require.Equal(t, errType, err.Type(), err.Error())
}

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cmd := newCommand(t, newProvider(t))
		require.Len(t, cmd.GetHandlers(), 7)
	})

	t.Run("node key is mandatory", func(t *testing.T) {
		p := newProvider(t)
		p.nodeKey = nil

		_, err := New(p)
		require.EqualError(t, err, "node key pair is mandatory")

		p.nodeKey = &sodium.KeyPair{Public: newKeyPair(t).Public}

		_, err = New(p)
		require.Error(t, err)
	})
}

func TestCommand_SendReceive(t *testing.T) {
	p := newProvider(t)
	cmd := newCommand(t, p)
	peer := newKeyPair(t)

	key := send(t, cmd, "hello", peer.RecipientKey().String())

	pusher := p.pusher.(*mockPusher) // nolint:forcetypeassert
	require.Len(t, pusher.pushed, 1)
	require.Equal(t, key, pusher.pushed[0].Digest())

	slot, ok := pusher.pushed[0].SlotFor(peer.RecipientKey())
	require.True(t, ok)
	require.Equal(t, 1, slot)

	t.Run("receive with node key", func(t *testing.T) {
		var rw bytes.Buffer

		cmdErr := cmd.Receive(&rw, toJSON(t, &ReceiveRequest{Key: key, To: p.nodeKey.RecipientKey().String()}))
		require.NoError(t, cmdErr)

		var response ReceiveResponse

		require.NoError(t, json.Unmarshal(rw.Bytes(), &response))
		require.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("hello")), response.Payload)
	})

	t.Run("receive for another key", func(t *testing.T) {
		var rw bytes.Buffer

		cmdErr := cmd.Receive(&rw, toJSON(t, &ReceiveRequest{Key: key, To: peer.RecipientKey().String()}))
		requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)
	})

	t.Run("receive unknown key", func(t *testing.T) {
		var rw bytes.Buffer

		cmdErr := cmd.Receive(&rw, toJSON(t, &ReceiveRequest{Key: "unknown"}))
		requireCommandError(t, cmdErr, PayloadNotFoundErrorCode, command.NotFoundError)
	})

	t.Run("receive payload not addressed to the node", func(t *testing.T) {
		other := newCommand(t, &mockProvider{store: p.store, enclave: p.enclave, nodeKey: peer})
		otherKey := send(t, other, "not for you", newKeyPair(t).RecipientKey().String())

		var rw bytes.Buffer

		cmdErr := cmd.Receive(&rw, toJSON(t, &ReceiveRequest{Key: otherKey}))
		requireCommandError(t, cmdErr, ReceivePayloadErrorCode, command.ExecuteError)
		require.True(t, errors.Is(cmdErr, sodium.ErrNoAccessibleKey))
	})

	t.Run("receive invalid request", func(t *testing.T) {
		var rw bytes.Buffer

		cmdErr := cmd.Receive(&rw, bytes.NewBufferString("{"))
		requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)

		cmdErr = cmd.Receive(&rw, toJSON(t, &ReceiveRequest{}))
		requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)
	})
}

func TestCommand_Send(t *testing.T) {
	peer := newKeyPair(t).RecipientKey().String()
	plaintext := base64.RawURLEncoding.EncodeToString([]byte("msg"))

	t.Run("without pusher", func(t *testing.T) {
		p := newProvider(t)
		p.pusher = nil

		send(t, newCommand(t, p), "msg", peer)
	})

	t.Run("from the node key", func(t *testing.T) {
		p := newProvider(t)
		cmd := newCommand(t, p)

		var rw bytes.Buffer

		cmdErr := cmd.Send(&rw, toJSON(t, &SendRequest{
			Payload: plaintext, From: p.nodeKey.RecipientKey().String(), To: []string{peer},
		}))
		require.NoError(t, cmdErr)

		cmdErr = cmd.Send(&rw, toJSON(t, &SendRequest{Payload: plaintext, From: peer, To: []string{peer}}))
		requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)
	})

	tests := []struct {
		name    string
		request interface{}
	}{
		{"invalid json", "{"},
		{"no recipients", &SendRequest{Payload: plaintext}},
		{"invalid payload encoding", &SendRequest{Payload: "a+b=", To: []string{peer}}},
		{"invalid recipient", &SendRequest{Payload: plaintext, To: []string{"!!"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newCommand(t, newProvider(t))

			var rw bytes.Buffer

			cmdErr := cmd.Send(&rw, toJSON(t, tc.request))
			requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)
		})
	}

	t.Run("encrypt error", func(t *testing.T) {
		p := newProvider(t)
		p.enclave = &mockEnclave{Enclave: sodium.New(), encryptErr: errors.New("encrypt error")}

		var rw bytes.Buffer

		cmdErr := newCommand(t, p).Send(&rw, toJSON(t, &SendRequest{Payload: plaintext, To: []string{peer}}))
		requireCommandError(t, cmdErr, SendPayloadErrorCode, command.ExecuteError)
		require.Contains(t, cmdErr.Error(), "encrypt error")
	})

	t.Run("push error", func(t *testing.T) {
		p := newProvider(t)
		p.pusher = &mockPusher{err: errors.New("peer down")}

		var rw bytes.Buffer

		cmdErr := newCommand(t, p).Send(&rw, toJSON(t, &SendRequest{Payload: plaintext, To: []string{peer}}))
		requireCommandError(t, cmdErr, SendPayloadErrorCode, command.ExecuteError)
		require.Contains(t, cmdErr.Error(), "peer down")

		keys, err := p.store.Keys()
		require.NoError(t, err)
		require.Len(t, keys, 1)
		require.Contains(t, cmdErr.Error(), keys[0])

		_, err = p.store.Get(keys[0])
		require.NoError(t, err)
	})

	t.Run("store error", func(t *testing.T) {
		store := mockstorage.NewStore()
		store.ErrPut = errors.New("put error")

		s, err := payloadstore.New(&mockstorage.Provider{Store: store})
		require.NoError(t, err)

		p := newProvider(t)
		p.store = s

		var rw bytes.Buffer

		cmdErr := newCommand(t, p).Send(&rw, toJSON(t, &SendRequest{Payload: plaintext, To: []string{peer}}))
		requireCommandError(t, cmdErr, StorePayloadErrorCode, command.ExecuteError)
	})
}

func TestCommand_Push(t *testing.T) {
	sender := newCommand(t, newProvider(t))
	receiverProvider := newProvider(t)
	receiver := newCommand(t, receiverProvider)

	var rw bytes.Buffer

	key := send(t, sender, "pushed", receiverProvider.nodeKey.RecipientKey().String())
	require.NoError(t, sender.Get(&rw, toJSON(t, &GetRequest{Key: key})))

	var stored GetResponse

	require.NoError(t, json.Unmarshal(rw.Bytes(), &stored))

	t.Run("stores without index", func(t *testing.T) {
		stripped, ok := stored.Payload.StripFor(receiverProvider.nodeKey.RecipientKey())
		require.True(t, ok)

		rw.Reset()

		cmdErr := receiver.Push(&rw, toJSON(t, &PushRequest{Payload: stored.Payload}))
		require.NoError(t, cmdErr)

		var response KeyResponse

		require.NoError(t, json.Unmarshal(rw.Bytes(), &response))
		require.Equal(t, key, response.Key)

		got, err := receiverProvider.store.Get(key)
		require.NoError(t, err)

		_, indexed := got.RecipientIndex()
		require.False(t, indexed)

		cmdErr = receiver.Push(&rw, toJSON(t, &PushRequest{Payload: stripped}))
		require.NoError(t, cmdErr)

		rw.Reset()

		cmdErr = receiver.Receive(&rw, toJSON(t, &ReceiveRequest{Key: key}))
		require.NoError(t, cmdErr)

		var received ReceiveResponse

		require.NoError(t, json.Unmarshal(rw.Bytes(), &received))
		require.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("pushed")), received.Payload)
	})

	t.Run("encoded", func(t *testing.T) {
		for _, f := range []payload.Format{payload.JSON, payload.CBOR} {
			data, err := payload.Encode(f, stored.Payload)
			require.NoError(t, err)

			rw.Reset()

			require.NoError(t, receiver.PushEncoded(f)(&rw, bytes.NewReader(data)))

			cmdErr := receiver.PushEncoded(f)(&rw, bytes.NewReader(data[:len(data)-1]))
			requireCommandError(t, cmdErr, FormatMismatchErrorCode, command.ValidationError)
		}
	})

	tests := []struct {
		name string
		body string
		code command.Code
	}{
		{"invalid json", `{`, InvalidRequestErrorCode},
		{"missing payload", `{}`, InvalidRequestErrorCode},
		{"malformed payload", `{"payload":{"sender":"c2VuZGVy"}}`, MalformedPayloadErrorCode},
		{"format mismatch", `{"payload":{"sender":"c2VuZGVy==","nonce":"","combinedKeyNonce":"",` +
			`"combinedKeys":[],"cipherText":""}}`, FormatMismatchErrorCode},
		{"index out of range", `{"payload":{"sender":"","nonce":"","combinedKeyNonce":"",` +
			`"combinedKeys":[],"cipherText":"","recipientIndex":{"cjA":0}}}`, IndexOutOfRangeErrorCode},
		{"slot beyond int64", `{"payload":{"sender":"","nonce":"","combinedKeyNonce":"",` +
			`"combinedKeys":[""],"cipherText":"","recipientIndex":{"cjA":9223372036854775808}}}`,
			IndexOutOfRangeErrorCode},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmdErr := receiver.Push(&rw, bytes.NewBufferString(tc.body))
			requireCommandError(t, cmdErr, tc.code, command.ValidationError)
		})
	}
}

func TestCommand_Get(t *testing.T) {
	p := newProvider(t)
	cmd := newCommand(t, p)
	key := send(t, cmd, "msg", newKeyPair(t).RecipientKey().String())

	t.Run("json payload", func(t *testing.T) {
		var rw bytes.Buffer

		require.NoError(t, cmd.Get(&rw, toJSON(t, &GetRequest{Key: key})))

		var response GetResponse

		require.NoError(t, json.Unmarshal(rw.Bytes(), &response))
		require.Equal(t, key, response.Payload.Digest())
		require.Empty(t, response.Encoded)

		_, indexed := response.Payload.RecipientIndex()
		require.True(t, indexed)
	})

	t.Run("encoded payload", func(t *testing.T) {
		for _, f := range []string{"json", "cbor"} {
			var rw bytes.Buffer

			require.NoError(t, cmd.Get(&rw, toJSON(t, &GetRequest{Key: key, Format: f})))

			var response GetResponse

			require.NoError(t, json.Unmarshal(rw.Bytes(), &response))

			data, err := base64.RawURLEncoding.DecodeString(response.Encoded)
			require.NoError(t, err)

			format, err := payload.ParseFormat(f)
			require.NoError(t, err)

			decoded, err := payload.Decode(format, data)
			require.NoError(t, err)
			require.True(t, response.Payload.Equal(decoded))

			raw, cmdErr := cmd.GetEncoded(key, f)
			require.NoError(t, cmdErr)
			require.Equal(t, data, raw)
		}
	})

	t.Run("errors", func(t *testing.T) {
		var rw bytes.Buffer

		requireCommandError(t, cmd.Get(&rw, bytes.NewBufferString("{")), InvalidRequestErrorCode,
			command.ValidationError)
		requireCommandError(t, cmd.Get(&rw, toJSON(t, &GetRequest{Key: key, Format: "xml"})),
			FormatMismatchErrorCode, command.ValidationError)
		requireCommandError(t, cmd.Get(&rw, toJSON(t, &GetRequest{Key: "unknown"})),
			PayloadNotFoundErrorCode, command.NotFoundError)

		_, cmdErr := cmd.GetEncoded("unknown", "json")
		requireCommandError(t, cmdErr, PayloadNotFoundErrorCode, command.NotFoundError)
	})

	t.Run("store error", func(t *testing.T) {
		store := mockstorage.NewStore()
		store.ErrGet = errors.New("get error")

		s, err := payloadstore.New(&mockstorage.Provider{Store: store})
		require.NoError(t, err)

		p := newProvider(t)
		p.store = s

		var rw bytes.Buffer

		cmdErr := newCommand(t, p).Get(&rw, toJSON(t, &GetRequest{Key: key}))
		requireCommandError(t, cmdErr, StorePayloadErrorCode, command.ExecuteError)
	})
}

func TestCommand_SlotFor(t *testing.T) {
	p := newProvider(t)
	cmd := newCommand(t, p)
	peer := newKeyPair(t).RecipientKey()
	key := send(t, cmd, "msg", peer.String())

	tests := []struct {
		recipient string
		slot      int
		found     bool
	}{
		{p.nodeKey.RecipientKey().String(), 0, true},
		{peer.String(), 1, true},
		{newKeyPair(t).RecipientKey().String(), 0, false},
	}

	for i, tc := range tests {
		t.Run(fmt.Sprintf("recipient %d", i), func(t *testing.T) {
			var rw bytes.Buffer

			require.NoError(t, cmd.SlotFor(&rw, toJSON(t, &SlotForRequest{Key: key, Recipient: tc.recipient})))

			var response SlotForResponse

			require.NoError(t, json.Unmarshal(rw.Bytes(), &response))
			require.Equal(t, tc.slot, response.Slot)
			require.Equal(t, tc.found, response.Found)
		})
	}

	t.Run("errors", func(t *testing.T) {
		var rw bytes.Buffer

		requireCommandError(t, cmd.SlotFor(&rw, bytes.NewBufferString("{")), InvalidRequestErrorCode,
			command.ValidationError)
		requireCommandError(t, cmd.SlotFor(&rw, toJSON(t, &SlotForRequest{Key: key, Recipient: "!!"})),
			InvalidRequestErrorCode, command.ValidationError)
		requireCommandError(t, cmd.SlotFor(&rw, toJSON(t, &SlotForRequest{Key: "unknown",
			Recipient: peer.String()})), PayloadNotFoundErrorCode, command.NotFoundError)
	})
}

func TestCommand_DeleteAndList(t *testing.T) {
	p := newProvider(t)
	cmd := newCommand(t, p)

	var rw bytes.Buffer

	require.NoError(t, cmd.List(&rw, nil))
	require.JSONEq(t, `{"keys":[]}`, rw.String())

	first := send(t, cmd, "first", newKeyPair(t).RecipientKey().String())
	second := send(t, cmd, "second", newKeyPair(t).RecipientKey().String())

	list := func() []string {
		rw.Reset()
		require.NoError(t, cmd.List(&rw, nil))

		var response ListResponse

		require.NoError(t, json.Unmarshal(rw.Bytes(), &response))

		return response.Keys
	}

	require.ElementsMatch(t, []string{first, second}, list())

	t.Run("delete", func(t *testing.T) {
		rw.Reset()

		require.NoError(t, cmd.Delete(&rw, toJSON(t, &DeleteRequest{Key: first})))
		require.Equal(t, []string{second}, list())

		cmdErr := cmd.Get(&rw, toJSON(t, &GetRequest{Key: first}))
		requireCommandError(t, cmdErr, PayloadNotFoundErrorCode, command.NotFoundError)

		cmdErr = cmd.Delete(&rw, toJSON(t, &DeleteRequest{Key: first}))
		requireCommandError(t, cmdErr, PayloadNotFoundErrorCode, command.NotFoundError)
	})

	t.Run("invalid requests", func(t *testing.T) {
		cmdErr := cmd.Delete(&rw, bytes.NewBufferString("{"))
		requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)

		cmdErr = cmd.Delete(&rw, toJSON(t, &DeleteRequest{}))
		requireCommandError(t, cmdErr, InvalidRequestErrorCode, command.ValidationError)
	})

	t.Run("store errors", func(t *testing.T) {
		store := mockstorage.NewStore()

		s, err := payloadstore.New(&mockstorage.Provider{Store: store})
		require.NoError(t, err)

		errProvider := newProvider(t)
		errProvider.store = s
		errCmd := newCommand(t, errProvider)

		key := send(t, errCmd, "msg", newKeyPair(t).RecipientKey().String())

		store.ErrDelete = errors.New("delete error")
		store.ErrQuery = errors.New("query error")

		cmdErr := errCmd.Delete(&rw, toJSON(t, &DeleteRequest{Key: key}))
		requireCommandError(t, cmdErr, StorePayloadErrorCode, command.ExecuteError)
		require.Contains(t, cmdErr.Error(), "delete error")

		cmdErr = errCmd.List(&rw, nil)
		requireCommandError(t, cmdErr, StorePayloadErrorCode, command.ExecuteError)
		require.Contains(t, cmdErr.Error(), "query error")
	})
}
