/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logutil

import (
	"testing"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/stretchr/testify/require"
)

func TestCreateKeyValueString(t *testing.T) {
	require.Equal(t, "key=[digest]", CreateKeyValueString("key", "digest"))
	require.Equal(t, "key=[]", CreateKeyValueString("key", ""))
}

func TestLogHelpers(t *testing.T) {
	logger := log.New("aries-payload/logutil-test")

	require.NotPanics(t, func() {
		LogError(logger, "payload", "Send", "failed", CreateKeyValueString("key", "k"))
		LogDebug(logger, "payload", "Send", "success")
		LogInfo(logger, "payload", "Send", "decode")
	})
}
