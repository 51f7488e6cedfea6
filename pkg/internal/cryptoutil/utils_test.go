/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestVerifyRecipients(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	require.ErrorIs(t, VerifyRecipients(nil), errEmptyRecipients)
	require.ErrorIs(t, VerifyRecipients([]string{"abc"}), ErrInvalidKey)
	require.NoError(t, VerifyRecipients([]string{base58.Encode(pub)}))
}

func TestEd25519toCurve25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	curvePub, err := PublicEd25519toCurve25519(pub)
	require.NoError(t, err)

	curvePriv, err := SecretEd25519toCurve25519(priv)
	require.NoError(t, err)

	derived, err := curve25519.X25519(curvePriv[:], curve25519.Basepoint)
	require.NoError(t, err)
	require.Equal(t, curvePub[:], derived)

	_, err = PublicEd25519toCurve25519(nil)
	require.EqualError(t, err, "key is nil")

	_, err = PublicEd25519toCurve25519([]byte("short"))
	require.EqualError(t, err, "5-byte key size is invalid")

	_, err = SecretEd25519toCurve25519(nil)
	require.EqualError(t, err, "key is nil")

	_, err = SecretEd25519toCurve25519(pub)
	require.EqualError(t, err, "32-byte key size is invalid")

	require.True(t, IsChachaKeyValid(curvePub[:]))
}
