/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmdutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-payload/pkg/controller/command"
)

func TestHTTPHandler(t *testing.T) {
	h := NewHTTPHandler("/payload/send", http.MethodPost, func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(http.StatusAccepted)
	})

	require.Equal(t, "/payload/send", h.Path())
	require.Equal(t, http.MethodPost, h.Method())

	rr := httptest.NewRecorder()
	h.Handle()(rr, httptest.NewRequest(http.MethodPost, "/payload/send", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestCommandHandler(t *testing.T) {
	called := false

	h := NewCommandHandler("payload", "Send", func(io.Writer, io.Reader) command.Error {
		called = true
		return nil
	})

	require.Equal(t, "payload", h.Name())
	require.Equal(t, "Send", h.Method())
	require.Equal(t, "payload.Send", h.String())
	require.Nil(t, h.Handle()(nil, nil))
	require.True(t, called)
}
