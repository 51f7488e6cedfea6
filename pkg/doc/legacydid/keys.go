/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacydid

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/multiformats/go-multibase"
)

const (
	didKeyPrefix = "did:key:"

	// multicodec ed25519-pub, varint encoded.
	ed25519CodecHi = 0xed
	ed25519CodecLo = 0x01

	indyDIDLength = 16
)

// ErrInvalidKey is returned for keys that are not 32 byte ed25519 public keys.
var ErrInvalidKey = errors.New("invalid ed25519 key")

// ToVerKey normalizes a raw base58 verkey or a did:key into a base58 verkey.
func ToVerKey(key string) (string, error) {
	if strings.HasPrefix(key, didKeyPrefix) {
		fingerprint := strings.TrimPrefix(key, didKeyPrefix)
		if i := strings.Index(fingerprint, "#"); i >= 0 {
			fingerprint = fingerprint[:i]
		}

		_, raw, err := multibase.Decode(fingerprint)
		if err != nil {
			return "", fmt.Errorf("decode did:key fingerprint: %w", err)
		}

		if len(raw) != ed25519.PublicKeySize+2 || raw[0] != ed25519CodecHi || raw[1] != ed25519CodecLo {
			return "", fmt.Errorf("%w: did:key is not an ed25519 key", ErrInvalidKey)
		}

		return base58.Encode(raw[2:]), nil
	}

	raw := base58.Decode(key)
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %d byte key", ErrInvalidKey, len(raw))
	}

	return key, nil
}

// DIDKey encodes a base58 verkey as a did:key.
func DIDKey(verKey string) (string, error) {
	raw := base58.Decode(verKey)
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %d byte key", ErrInvalidKey, len(raw))
	}

	fingerprint, err := multibase.Encode(multibase.Base58BTC, append([]byte{ed25519CodecHi, ed25519CodecLo}, raw...))
	if err != nil {
		return "", fmt.Errorf("encode did:key fingerprint: %w", err)
	}

	return didKeyPrefix + fingerprint, nil
}

// DIDFromVerKey derives an unqualified indy DID (first 16 bytes of the verkey) from a raw public key.
func DIDFromVerKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub[:indyDIDLength])
}
