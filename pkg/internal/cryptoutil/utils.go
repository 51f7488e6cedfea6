/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cryptoutil

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/agl/ed25519/extra25519"
	"github.com/btcsuite/btcutil/base58"
	chacha "golang.org/x/crypto/chacha20poly1305"
)

// Curve25519KeySize number of bytes in a Curve25519 public or private key.
const Curve25519KeySize = 32

// NonceSize size of a nonce used by Box encryption (XSalsa20Poly1305).
const NonceSize = 24

// ErrKeyNotFound is returned when key not found.
var ErrKeyNotFound = errors.New("key not found")

// ErrInvalidKey is used when a key is invalid.
var ErrInvalidKey = errors.New("invalid key")

// errEmptyRecipients is used when recipients list is empty.
var errEmptyRecipients = errors.New("empty recipients")

// IsChachaKeyValid will return true if key size is the same as chacha20poly1305.keySize
// false otherwise.
func IsChachaKeyValid(key []byte) bool {
	return len(key) == chacha.KeySize
}

// VerifyRecipients is a utility function that verifies every recipient verkey is a base58 ed25519 public key.
func VerifyRecipients(recipients []string) error {
	if len(recipients) == 0 {
		return errEmptyRecipients
	}

	for _, k := range recipients {
		if len(base58.Decode(k)) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: recipient %s", ErrInvalidKey, k)
		}
	}

	return nil
}

// PublicEd25519toCurve25519 takes an Ed25519 public key and provides the corresponding Curve25519 public key
//
//	This function wraps PublicKeyToCurve25519 from Adam Langley's ed25519 repo: https://github.com/agl/ed25519
func PublicEd25519toCurve25519(pub []byte) (*[Curve25519KeySize]byte, error) {
	if len(pub) == 0 {
		return nil, errors.New("key is nil")
	}

	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%d-byte key size is invalid", len(pub))
	}

	pkOut := new([Curve25519KeySize]byte)
	pKIn := new([Curve25519KeySize]byte)
	copy(pKIn[:], pub)

	success := extra25519.PublicKeyToCurve25519(pkOut, pKIn)
	if !success {
		return nil, errors.New("error converting public key")
	}

	return pkOut, nil
}

// SecretEd25519toCurve25519 converts a secret key from Ed25519 to curve25519 format
//
//	This function wraps PrivateKeyToCurve25519 from Adam Langley's ed25519 repo: https://github.com/agl/ed25519
func SecretEd25519toCurve25519(priv []byte) (*[Curve25519KeySize]byte, error) {
	if len(priv) == 0 {
		return nil, errors.New("key is nil")
	}

	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%d-byte key size is invalid", len(priv))
	}

	sKIn := new([ed25519.PrivateKeySize]byte)
	copy(sKIn[:], priv)

	sKOut := new([Curve25519KeySize]byte)
	extra25519.PrivateKeyToCurve25519(sKOut, sKIn)

	return sKOut, nil
}
