/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-payload/pkg/controller/command"
	cmdpayload "github.com/hyperledger/aries-payload/pkg/controller/command/payload"
	"github.com/hyperledger/aries-payload/pkg/controller/internal/cmdutil"
	"github.com/hyperledger/aries-payload/pkg/controller/rest"
	"github.com/hyperledger/aries-payload/pkg/doc/payload"
	"github.com/hyperledger/aries-payload/pkg/transport/push"
)

// constants for payload operations.
const (
	PayloadOperationID = "/payload"
	SendPath           = PayloadOperationID + "/send"
	ReceivePath        = PayloadOperationID + "/receive"
	PushPath           = PayloadOperationID + "/push"
	GetPath            = PayloadOperationID + "/get"
	SlotForPath        = PayloadOperationID + "/slot"
	DeletePath         = PayloadOperationID + "/delete"
	ListPath           = PayloadOperationID
	GetByKeyPath       = PayloadOperationID + "/{key}"
	RawPushPath        = push.Path
)

var logger = log.New("aries-payload/rest/payload")

type payloadCommand interface {
	Send(rw io.Writer, req io.Reader) command.Error
	Receive(rw io.Writer, req io.Reader) command.Error
	Push(rw io.Writer, req io.Reader) command.Error
	PushEncoded(f payload.Format) command.Exec
	Get(rw io.Writer, req io.Reader) command.Error
	GetEncoded(key, format string) ([]byte, command.Error)
	SlotFor(rw io.Writer, req io.Reader) command.Error
	Delete(rw io.Writer, req io.Reader) command.Error
	List(rw io.Writer, req io.Reader) command.Error
}

// Operation contains payload operations provided by controller REST API.
type Operation struct {
	handlers []rest.Handler
	command  payloadCommand
}

// New returns new payload operations rest client instance.
func New(p cmdpayload.Provider) (*Operation, error) {
	cmd, err := cmdpayload.New(p)
	if err != nil {
		return nil, err
	}

	o := &Operation{command: cmd}
	o.registerHandler()

	return o, nil
}

// GetRESTHandlers get all controller API handler available for this service.
func (o *Operation) GetRESTHandlers() []rest.Handler {
	return o.handlers
}

// registerHandler register handlers to be exposed from this protocol service as REST API endpoints.
func (o *Operation) registerHandler() {
	o.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(SendPath, http.MethodPost, o.Send),
		cmdutil.NewHTTPHandler(ReceivePath, http.MethodPost, o.Receive),
		cmdutil.NewHTTPHandler(PushPath, http.MethodPost, o.Push),
		cmdutil.NewHTTPHandler(GetPath, http.MethodPost, o.Get),
		cmdutil.NewHTTPHandler(SlotForPath, http.MethodPost, o.SlotFor),
		cmdutil.NewHTTPHandler(DeletePath, http.MethodPost, o.Delete),
		cmdutil.NewHTTPHandler(ListPath, http.MethodGet, o.List),
		cmdutil.NewHTTPHandler(GetByKeyPath, http.MethodGet, o.GetByKey),
		cmdutil.NewHTTPHandler(RawPushPath, http.MethodPost, o.RawPush),
	}
}

// Send swagger:route POST /payload/send payload sendPayload
//
// Encrypts a payload for its recipients, stores it and pushes it to their nodes.
//
// Responses:
//    default: genericError
//        200: keyRes
func (o *Operation) Send(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Send, rw, req.Body)
}

// Receive swagger:route POST /payload/receive payload receivePayload
//
// Decrypts a stored payload with the node key.
//
// Responses:
//    default: genericError
//        200: receiveRes
func (o *Operation) Receive(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Receive, rw, req.Body)
}

// Push swagger:route POST /payload/push payload pushPayload
//
// Stores a payload produced by another node.
//
// Responses:
//    default: genericError
//        200: keyRes
func (o *Operation) Push(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Push, rw, req.Body)
}

// Get swagger:route POST /payload/get payload getPayload
//
// Returns a stored payload.
//
// Responses:
//    default: genericError
//        200: getRes
func (o *Operation) Get(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Get, rw, req.Body)
}

// SlotFor swagger:route POST /payload/slot payload slotFor
//
// Looks up the combined key slot of a recipient.
//
// Responses:
//    default: genericError
//        200: slotForRes
func (o *Operation) SlotFor(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.SlotFor, rw, req.Body)
}

// Delete swagger:route POST /payload/delete payload deletePayload
//
// Removes a stored payload.
//
// Responses:
//    default: genericError
func (o *Operation) Delete(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Delete, rw, req.Body)
}

// List swagger:route GET /payload payload listPayloads
//
// Returns the keys of every stored payload.
//
// Responses:
//    default: genericError
//        200: listRes
func (o *Operation) List(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.List, rw, req.Body)
}

// GetByKey swagger:route GET /payload/{key} payload getPayloadByKey
//
// Returns a stored payload encoded in the first format of the Accept header it supports, JSON by default.
//
// Responses:
//    default: genericError
func (o *Operation) GetByKey(rw http.ResponseWriter, req *http.Request) {
	format := acceptedFormat(req.Header.Get("Accept"))

	data, cmdErr := o.command.GetEncoded(mux.Vars(req)["key"], format)
	if cmdErr != nil {
		rest.SendError(rw, cmdErr)

		return
	}

	f, _ := payload.ParseFormat(format) // nolint:errcheck

	rw.Header().Set("Content-Type", f.MediaType())

	if _, err := rw.Write(data); err != nil {
		logger.Errorf("Unable to send response, %s", err)
	}
}

// acceptedFormat returns the first media type of an Accept header that names a payload format. An empty header or
// a wildcard selects JSON. The header is returned unchanged when nothing in it is supported.
func acceptedFormat(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return payload.JSONMediaType
	}

	for _, mediaRange := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(mediaRange, ";", 2)[0])
		if mediaType == "*/*" {
			return payload.JSONMediaType
		}

		if f, err := payload.ParseFormat(mediaType); err == nil {
			return f.MediaType()
		}
	}

	return accept
}

// RawPush swagger:route POST /push payload rawPush
//
// Node to node entry point. The body is a payload encoded in the format named by the Content-Type header.
//
// Responses:
//    default: genericError
//        200: keyRes
func (o *Operation) RawPush(rw http.ResponseWriter, req *http.Request) {
	f, err := payload.ParseFormat(req.Header.Get("Content-Type"))
	if err != nil {
		rest.SendError(rw, command.NewValidationError(cmdpayload.FormatMismatchErrorCode, err))

		return
	}

	rest.Execute(o.command.PushEncoded(f), rw, req.Body)
}
