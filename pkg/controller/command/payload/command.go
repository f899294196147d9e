/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-payload/pkg/controller/command"
	"github.com/hyperledger/aries-payload/pkg/controller/internal/cmdutil"
	"github.com/hyperledger/aries-payload/pkg/doc/payload"
	"github.com/hyperledger/aries-payload/pkg/enclave/sodium"
	"github.com/hyperledger/aries-payload/pkg/internal/logutil"
	payloadstore "github.com/hyperledger/aries-payload/pkg/store/payload"
)

var logger = log.New("aries-payload/command/payload")

// Error codes.
const (
	// InvalidRequestErrorCode is typically a code for invalid requests.
	InvalidRequestErrorCode = command.Code(iota + command.Payload)
	// MalformedPayloadErrorCode is for payloads violating a structural invariant.
	MalformedPayloadErrorCode
	// FormatMismatchErrorCode is for payload bytes not matching the expected format.
	FormatMismatchErrorCode
	// IndexOutOfRangeErrorCode is for recipient index slots outside the combined keys.
	IndexOutOfRangeErrorCode
	// PayloadNotFoundErrorCode is for lookups of unknown payload keys.
	PayloadNotFoundErrorCode
	// SendPayloadErrorCode is for failures while encrypting or pushing a payload.
	SendPayloadErrorCode
	// ReceivePayloadErrorCode is for failures while decrypting a payload.
	ReceivePayloadErrorCode
	// StorePayloadErrorCode is for storage failures.
	StorePayloadErrorCode
)

// constants for payload commands.
const (
	// command name.
	CommandName = "payload"

	// command methods.
	SendCommandMethod    = "Send"
	ReceiveCommandMethod = "Receive"
	PushCommandMethod    = "Push"
	GetCommandMethod     = "Get"
	SlotForCommandMethod = "SlotFor"
	DeleteCommandMethod  = "Delete"
	ListCommandMethod    = "List"

	// error messages.
	errEmptyKey        = "payload key is mandatory"
	errEmptyRecipients = "at least one recipient is mandatory"
	errEmptyPayload    = "payload is mandatory"
	errUnknownKey      = "only the node key %s can be used"

	keyLogField = "key"
)

// Store persists payloads.
type Store interface {
	Put(p *payload.EncryptedPayload) (string, error)
	Get(key string) (*payload.EncryptedPayload, error)
	Delete(key string) error
	Keys() ([]string, error)
}

// Enclave seals and opens payloads.
type Enclave interface {
	Encrypt(plaintext []byte, sender *sodium.KeyPair,
		recipients []payload.RecipientKey) (*payload.EncryptedPayload, error)
	Decrypt(p *payload.EncryptedPayload, recipient *sodium.KeyPair) ([]byte, error)
}

// Pusher delivers locally produced payloads to the nodes of their recipients.
type Pusher interface {
	Push(ctx context.Context, p *payload.EncryptedPayload) error
}

// Provider contains dependencies for the payload command. Pusher may return nil when the node has no peers.
type Provider interface {
	PayloadStore() Store
	Enclave() Enclave
	Pusher() Pusher
	NodeKey() *sodium.KeyPair
}

// Command contains command operations provided by the payload controller.
type Command struct {
	store   Store
	enclave Enclave
	pusher  Pusher
	nodeKey *sodium.KeyPair
}

// New returns new payload command instance.
func New(p Provider) (*Command, error) {
	if p.NodeKey() == nil || p.NodeKey().Private == nil {
		return nil, errors.New("node key pair is mandatory")
	}

	return &Command{
		store:   p.PayloadStore(),
		enclave: p.Enclave(),
		pusher:  p.Pusher(),
		nodeKey: p.NodeKey(),
	}, nil
}

// GetHandlers returns list of all commands supported by this controller command.
func (c *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, SendCommandMethod, c.Send),
		cmdutil.NewCommandHandler(CommandName, ReceiveCommandMethod, c.Receive),
		cmdutil.NewCommandHandler(CommandName, PushCommandMethod, c.Push),
		cmdutil.NewCommandHandler(CommandName, GetCommandMethod, c.Get),
		cmdutil.NewCommandHandler(CommandName, SlotForCommandMethod, c.SlotFor),
		cmdutil.NewCommandHandler(CommandName, DeleteCommandMethod, c.Delete),
		cmdutil.NewCommandHandler(CommandName, ListCommandMethod, c.List),
	}
}

// Send encrypts a plain text for the given recipients, stores the payload and pushes it to the recipients' nodes.
// The node key is always added to the recipients. A failed push leaves the payload stored; the returned error
// names its key.
func (c *Command) Send(rw io.Writer, req io.Reader) command.Error {
	var request SendRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, SendCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if len(request.To) == 0 {
		logutil.LogDebug(logger, CommandName, SendCommandMethod, errEmptyRecipients)

		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyRecipients))
	}

	if request.From != "" {
		if cmdErr := c.checkNodeKey(SendCommandMethod, request.From); cmdErr != nil {
			return cmdErr
		}
	}

	plaintext, err := base64.RawURLEncoding.DecodeString(request.Payload)
	if err != nil {
		logutil.LogInfo(logger, CommandName, SendCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("invalid payload encoding: %w", err))
	}

	recipients := []payload.RecipientKey{c.nodeKey.RecipientKey()}

	for _, to := range request.To {
		r, parseErr := payload.ParseRecipientKey(to)
		if parseErr != nil {
			logutil.LogInfo(logger, CommandName, SendCommandMethod, parseErr.Error())

			return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("invalid recipient %q: %w", to, parseErr))
		}

		recipients = append(recipients, r)
	}

	p, err := c.enclave.Encrypt(plaintext, c.nodeKey, recipients)
	if err != nil {
		logutil.LogError(logger, CommandName, SendCommandMethod, err.Error())

		return command.NewExecuteError(SendPayloadErrorCode, fmt.Errorf("encrypt payload: %w", err))
	}

	key, cmdErr := c.put(SendCommandMethod, p)
	if cmdErr != nil {
		return cmdErr
	}

	if c.pusher != nil {
		if err = c.pusher.Push(context.Background(), p); err != nil {
			logutil.LogError(logger, CommandName, SendCommandMethod, err.Error(),
				logutil.CreateKeyValueString(keyLogField, key))

			return command.NewExecuteError(SendPayloadErrorCode, fmt.Errorf("push payload %s: %w", key, err))
		}
	}

	command.WriteNillableResponse(rw, &KeyResponse{Key: key}, logger)

	logutil.LogDebug(logger, CommandName, SendCommandMethod, "success",
		logutil.CreateKeyValueString(keyLogField, key))

	return nil
}

// Receive decrypts a stored payload with the node key.
func (c *Command) Receive(rw io.Writer, req io.Reader) command.Error {
	var request ReceiveRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, ReceiveCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if request.To != "" {
		if cmdErr := c.checkNodeKey(ReceiveCommandMethod, request.To); cmdErr != nil {
			return cmdErr
		}
	}

	p, cmdErr := c.get(ReceiveCommandMethod, request.Key)
	if cmdErr != nil {
		return cmdErr
	}

	plaintext, err := c.enclave.Decrypt(p, c.nodeKey)
	if err != nil {
		logutil.LogError(logger, CommandName, ReceiveCommandMethod, err.Error(),
			logutil.CreateKeyValueString(keyLogField, request.Key))

		return command.NewExecuteError(ReceivePayloadErrorCode, fmt.Errorf("decrypt payload: %w", err))
	}

	command.WriteNillableResponse(rw, &ReceiveResponse{
		Payload: base64.RawURLEncoding.EncodeToString(plaintext),
	}, logger)

	logutil.LogDebug(logger, CommandName, ReceiveCommandMethod, "success",
		logutil.CreateKeyValueString(keyLogField, request.Key))

	return nil
}

// Push stores a payload produced by another node. Any recipient index it carries is dropped.
func (c *Command) Push(rw io.Writer, req io.Reader) command.Error {
	var request PushRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, PushCommandMethod, err.Error())

		return payloadError(err)
	}

	if request.Payload == nil {
		logutil.LogDebug(logger, CommandName, PushCommandMethod, errEmptyPayload)

		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyPayload))
	}

	return c.StorePushed(rw, request.Payload)
}

// PushEncoded returns a command storing a payload pushed by another node as raw bytes in format f.
func (c *Command) PushEncoded(f payload.Format) command.Exec {
	return func(rw io.Writer, req io.Reader) command.Error {
		data, err := io.ReadAll(req)
		if err != nil {
			logutil.LogInfo(logger, CommandName, PushCommandMethod, err.Error())

			return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request read : %w", err))
		}

		p, err := payload.Decode(f, data)
		if err != nil {
			logutil.LogInfo(logger, CommandName, PushCommandMethod, err.Error())

			return payloadError(err)
		}

		return c.StorePushed(rw, p)
	}
}

// StorePushed stores a payload received from another node and writes its key.
func (c *Command) StorePushed(rw io.Writer, p *payload.EncryptedPayload) command.Error {
	key, cmdErr := c.put(PushCommandMethod, p.WithoutRecipientIndex())
	if cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &KeyResponse{Key: key}, logger)

	logutil.LogDebug(logger, CommandName, PushCommandMethod, "success",
		logutil.CreateKeyValueString(keyLogField, key))

	return nil
}

// Get returns a stored payload, optionally encoded in the requested format.
func (c *Command) Get(rw io.Writer, req io.Reader) command.Error {
	var request GetRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, GetCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	p, cmdErr := c.get(GetCommandMethod, request.Key)
	if cmdErr != nil {
		return cmdErr
	}

	response := &GetResponse{Payload: p}

	if request.Format != "" {
		data, cmdErr := c.encode(request.Format, p)
		if cmdErr != nil {
			return cmdErr
		}

		response.Encoded = base64.RawURLEncoding.EncodeToString(data)
	}

	command.WriteNillableResponse(rw, response, logger)

	logutil.LogDebug(logger, CommandName, GetCommandMethod, "success",
		logutil.CreateKeyValueString(keyLogField, request.Key))

	return nil
}

// GetEncoded returns the stored payload under key encoded in the format named by format.
func (c *Command) GetEncoded(key, format string) ([]byte, command.Error) {
	p, cmdErr := c.get(GetCommandMethod, key)
	if cmdErr != nil {
		return nil, cmdErr
	}

	return c.encode(format, p)
}

// SlotFor looks up the combined key slot of a recipient in a stored payload.
func (c *Command) SlotFor(rw io.Writer, req io.Reader) command.Error {
	var request SlotForRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, SlotForCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	recipient, err := payload.ParseRecipientKey(request.Recipient)
	if err != nil {
		logutil.LogInfo(logger, CommandName, SlotForCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("invalid recipient: %w", err))
	}

	p, cmdErr := c.get(SlotForCommandMethod, request.Key)
	if cmdErr != nil {
		return cmdErr
	}

	slot, found := p.SlotFor(recipient)

	command.WriteNillableResponse(rw, &SlotForResponse{Slot: slot, Found: found}, logger)

	logutil.LogDebug(logger, CommandName, SlotForCommandMethod, "success",
		logutil.CreateKeyValueString(keyLogField, request.Key))

	return nil
}

// Delete removes a stored payload.
func (c *Command) Delete(rw io.Writer, req io.Reader) command.Error {
	var request DeleteRequest

	if err := json.NewDecoder(req).Decode(&request); err != nil {
		logutil.LogInfo(logger, CommandName, DeleteCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	if _, cmdErr := c.get(DeleteCommandMethod, request.Key); cmdErr != nil {
		return cmdErr
	}

	if err := c.store.Delete(request.Key); err != nil {
		logutil.LogError(logger, CommandName, DeleteCommandMethod, err.Error(),
			logutil.CreateKeyValueString(keyLogField, request.Key))

		return command.NewExecuteError(StorePayloadErrorCode, err)
	}

	command.WriteNillableResponse(rw, nil, logger)

	logutil.LogDebug(logger, CommandName, DeleteCommandMethod, "success",
		logutil.CreateKeyValueString(keyLogField, request.Key))

	return nil
}

// List returns the keys of every stored payload.
func (c *Command) List(rw io.Writer, _ io.Reader) command.Error {
	keys, err := c.store.Keys()
	if err != nil {
		logutil.LogError(logger, CommandName, ListCommandMethod, err.Error())

		return command.NewExecuteError(StorePayloadErrorCode, err)
	}

	if keys == nil {
		keys = []string{}
	}

	command.WriteNillableResponse(rw, &ListResponse{Keys: keys}, logger)

	logutil.LogDebug(logger, CommandName, ListCommandMethod, "success")

	return nil
}

func (c *Command) checkNodeKey(method, key string) command.Error {
	if key == c.nodeKey.RecipientKey().String() {
		return nil
	}

	msg := fmt.Sprintf(errUnknownKey, c.nodeKey.RecipientKey())
	logutil.LogDebug(logger, CommandName, method, msg)

	return command.NewValidationError(InvalidRequestErrorCode, errors.New(msg))
}

func (c *Command) put(method string, p *payload.EncryptedPayload) (string, command.Error) {
	key, err := c.store.Put(p)
	if err != nil {
		logutil.LogError(logger, CommandName, method, err.Error())

		return "", command.NewExecuteError(StorePayloadErrorCode, err)
	}

	return key, nil
}

func (c *Command) get(method, key string) (*payload.EncryptedPayload, command.Error) {
	if key == "" {
		logutil.LogDebug(logger, CommandName, method, errEmptyKey)

		return nil, command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyKey))
	}

	p, err := c.store.Get(key)
	if err != nil {
		if errors.Is(err, payloadstore.ErrPayloadNotFound) {
			logutil.LogDebug(logger, CommandName, method, err.Error())

			return nil, command.NewNotFoundError(PayloadNotFoundErrorCode, err)
		}

		logutil.LogError(logger, CommandName, method, err.Error(), logutil.CreateKeyValueString(keyLogField, key))

		return nil, command.NewExecuteError(StorePayloadErrorCode, err)
	}

	return p, nil
}

func (c *Command) encode(format string, p *payload.EncryptedPayload) ([]byte, command.Error) {
	f, err := payload.ParseFormat(format)
	if err != nil {
		return nil, payloadError(err)
	}

	data, err := payload.Encode(f, p)
	if err != nil {
		return nil, payloadError(err)
	}

	return data, nil
}

// payloadError maps payload failures to command errors. Anything else is an invalid request.
func payloadError(err error) command.Error {
	kind, ok := payload.KindOf(err)
	if !ok {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf("failed request decode : %w", err))
	}

	switch kind {
	case payload.FormatMismatch:
		return command.NewValidationError(FormatMismatchErrorCode, err)
	case payload.IndexOutOfRange:
		return command.NewValidationError(IndexOutOfRangeErrorCode, err)
	default:
		return command.NewValidationError(MalformedPayloadErrorCode, err)
	}
}
