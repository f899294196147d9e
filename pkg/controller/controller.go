/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"fmt"

	"github.com/hyperledger/aries-payload/pkg/controller/command"
	cmdpayload "github.com/hyperledger/aries-payload/pkg/controller/command/payload"
	"github.com/hyperledger/aries-payload/pkg/controller/rest"
	restpayload "github.com/hyperledger/aries-payload/pkg/controller/rest/payload"
)

// GetRESTHandlers returns all REST handlers provided by controller.
func GetRESTHandlers(ctx cmdpayload.Provider) ([]rest.Handler, error) {
	// payload REST operation
	payloadOp, err := restpayload.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create payload rest command : %w", err)
	}

	var allHandlers []rest.Handler
	allHandlers = append(allHandlers, payloadOp.GetRESTHandlers()...)

	return allHandlers, nil
}

// GetCommandHandlers returns all command handlers provided by controller.
func GetCommandHandlers(ctx cmdpayload.Provider) ([]command.Handler, error) {
	// payload command operation
	payloadcmd, err := cmdpayload.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create payload command : %w", err)
	}

	var allHandlers []command.Handler
	allHandlers = append(allHandlers, payloadcmd.GetHandlers()...)

	return allHandlers, nil
}
