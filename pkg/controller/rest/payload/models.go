/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"github.com/hyperledger/aries-payload/pkg/controller/command/payload"
)

// sendReq model
//
// This is used for sending a payload.
//
// swagger:parameters sendPayload
type sendReq struct { // nolint: unused,deadcode
	// in: body
	payload.SendRequest
}

// keyRes model
//
// This is used for returning the key of a stored payload.
//
// swagger:response keyRes
type keyRes struct { // nolint: unused,deadcode
	// in: body
	payload.KeyResponse
}

// receiveReq model
//
// swagger:parameters receivePayload
type receiveReq struct { // nolint: unused,deadcode
	// in: body
	payload.ReceiveRequest
}

// receiveRes model
//
// swagger:response receiveRes
type receiveRes struct { // nolint: unused,deadcode
	// in: body
	payload.ReceiveResponse
}

// pushReq model
//
// swagger:parameters pushPayload
type pushReq struct { // nolint: unused,deadcode
	// in: body
	payload.PushRequest
}

// getReq model
//
// swagger:parameters getPayload
type getReq struct { // nolint: unused,deadcode
	// in: body
	payload.GetRequest
}

// getRes model
//
// swagger:response getRes
type getRes struct { // nolint: unused,deadcode
	// in: body
	payload.GetResponse
}

// getByKeyReq model
//
// swagger:parameters getPayloadByKey
type getByKeyReq struct { // nolint: unused,deadcode
	// Payload key.
	//
	// in: path
	// required: true
	Key string `json:"key"`
}

// slotForReq model
//
// swagger:parameters slotFor
type slotForReq struct { // nolint: unused,deadcode
	// in: body
	payload.SlotForRequest
}

// slotForRes model
//
// swagger:response slotForRes
type slotForRes struct { // nolint: unused,deadcode
	// in: body
	payload.SlotForResponse
}

// deleteReq model
//
// swagger:parameters deletePayload
type deleteReq struct { // nolint: unused,deadcode
	// in: body
	payload.DeleteRequest
}

// listRes model
//
// swagger:response listRes
type listRes struct { // nolint: unused,deadcode
	// in: body
	payload.ListResponse
}
