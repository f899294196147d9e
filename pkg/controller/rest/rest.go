/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-payload/pkg/controller/command"
)

// RequestIDHeader carries the id correlating a request with its log entries.
const RequestIDHeader = "X-Request-ID"

var logger = log.New("aries-payload/rest")

// Handler http handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// genericErrorBody is the body of every failed response.
type genericErrorBody struct {
	Code    command.Code `json:"code"`
	Message string       `json:"message"`
}

// RequestID echoes the request id of incoming requests in the response, generating one when the client sent none.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		rw.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(rw, req)
	})
}

// Execute executes given command with args provided and writes command response to the response writer.
func Execute(exec command.Exec, rw http.ResponseWriter, req io.Reader) {
	var buf bytes.Buffer

	if err := exec(&buf, req); err != nil {
		SendError(rw, err)

		return
	}

	rw.Header().Set("Content-Type", "application/json")

	if _, err := rw.Write(buf.Bytes()); err != nil {
		logger.Errorf("Unable to send response, %s", err)
	}
}

// SendError sends the status code matching the command error type. Lookups of missing entries are expected and only
// logged at debug level.
func SendError(rw http.ResponseWriter, err command.Error) {
	var status int

	switch err.Type() {
	case command.ValidationError:
		status = http.StatusBadRequest
	case command.NotFoundError:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	id := rw.Header().Get(RequestIDHeader)
	if id == "" {
		id = uuid.New().String()
		rw.Header().Set(RequestIDHeader, id)
	}

	if status == http.StatusNotFound {
		logger.Debugf("request=[%s] status=[%d] code=[%d] %s", id, status, err.Code(), err)
	} else {
		logger.Errorf("request=[%s] status=[%d] code=[%d] cause=[%s]", id, status, err.Code(), err)
	}

	SendHTTPStatusError(rw, status, err.Code(), err)
}

// SendHTTPStatusError sends given http status code to response with error body.
func SendHTTPStatusError(rw http.ResponseWriter, httpStatus int, code command.Code, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(httpStatus)

	if e := json.NewEncoder(rw).Encode(genericErrorBody{
		Code:    code,
		Message: err.Error(),
	}); e != nil {
		logger.Errorf("Unable to send error response, %s", e)
	}
}
