/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
)

func newVerKey(t *testing.T) string {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return base58.Encode(pub)
}

func TestCreateDestination(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		verKey := newVerKey(t)
		routingKey := newVerKey(t)

		didKey, err := legacydid.DIDKey(routingKey)
		require.NoError(t, err)

		doc := legacydid.New("did:sov:abc", verKey, "https://localhost:8090", []string{didKey})

		dest, err := CreateDestination(doc)
		require.NoError(t, err)
		require.Equal(t, []string{verKey}, dest.RecipientKeys)
		require.Equal(t, []string{routingKey}, dest.RoutingKeys)
		require.Equal(t, "https://localhost:8090", dest.ServiceEndpoint)
	})

	t.Run("missing doc", func(t *testing.T) {
		_, err := CreateDestination(nil)
		require.EqualError(t, err, "create destination: missing DID doc")
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := CreateDestination(&legacydid.Doc{ID: "did:sov:abc"})
		require.EqualError(t, err, "create destination: missing DID doc service")
	})

	t.Run("missing endpoint", func(t *testing.T) {
		doc := legacydid.New("did:sov:abc", newVerKey(t), "", nil)

		_, err := CreateDestination(doc)
		require.Contains(t, err.Error(), "no service endpoint")
	})

	t.Run("bad routing key", func(t *testing.T) {
		doc := legacydid.New("did:sov:abc", newVerKey(t), "https://localhost:8090", []string{"abc"})

		_, err := CreateDestination(doc)
		require.ErrorIs(t, err, legacydid.ErrInvalidKey)
	})
}
