/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package wallet defines the key management capability protocol engines consume.
package wallet

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when the wallet holds no private key for a verkey.
var ErrKeyNotFound = errors.New("key not found")

// Wallet interface.
type Wallet interface {
	Signer
	Crypto
	DIDCreator
}

// Signer interface provides signing capabilities.
type Signer interface {
	// Sign signs data using the private key associated with a given verification key.
	//
	// Args:
	//
	// verKey: base58 verkey whose private key signs
	//
	// data: the data to sign
	//
	// Returns:
	//
	// []byte: the ed25519 signature
	//
	// error: ErrKeyNotFound or any other error
	Sign(ctx context.Context, verKey string, data []byte) ([]byte, error)

	// Verify checks an ed25519 signature of data against a base58 verkey. A malformed key is an error, a
	// signature that does not match is (false, nil).
	Verify(ctx context.Context, verKey string, data, signature []byte) (bool, error)
}

// Crypto interface provides DIDComm envelope encryption.
type Crypto interface {
	// PackMessage packs payload for one or more recipients.
	//
	// Args:
	//
	// senderVerKey: authcrypt sender, anoncrypt when empty
	//
	// recipientVerKeys: base58 verkeys of the recipients
	//
	// payload: the plaintext message
	//
	// Returns:
	//
	// []byte: the JSON envelope
	//
	// error: error
	PackMessage(ctx context.Context, senderVerKey string, recipientVerKeys []string, payload []byte) ([]byte, error)

	// UnpackMessage decrypts an envelope addressed to one of the wallet keys.
	UnpackMessage(ctx context.Context, envelope []byte) (*Unpacked, error)
}

// DIDCreator provides DID creation.
type DIDCreator interface {
	// CreateAndStoreDID creates an ed25519 key pair (deterministic when seed is 32 bytes), stores it and returns
	// the unqualified DID derived from the verkey along with the verkey.
	CreateAndStoreDID(ctx context.Context, seed []byte) (did, verKey string, err error)
}

// Unpacked is a decrypted envelope.
type Unpacked struct {
	Message []byte
	// SenderVerKey is empty for anoncrypted envelopes.
	SenderVerKey    string
	RecipientVerKey string
}
