/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package localwallet is a wallet.Wallet keeping ed25519 keys in an aries storage provider.
package localwallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
)

var logger = log.New("aries-framework/wallet/localwallet")

// StoreName is the name of the store keys are kept in.
const StoreName = "localwallet"

// keyPair is the stored form of a key.
type keyPair struct {
	DID  string `json:"did"`
	Pub  []byte `json:"pub"`
	Priv []byte `json:"priv"`
}

// BaseWallet wallet implementation.
type BaseWallet struct {
	store storage.Store
}

// New return new instance of wallet implementation.
func New(storeProvider storage.Provider) (*BaseWallet, error) {
	store, err := storeProvider.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &BaseWallet{store: store}, nil
}

// CreateAndStoreDID creates a new ed25519 key pair, deterministic when seed is given.
func (w *BaseWallet) CreateAndStoreDID(_ context.Context, seed []byte) (string, string, error) {
	var (
		pub  ed25519.PublicKey
		priv ed25519.PrivateKey
		err  error
	)

	switch len(seed) {
	case 0:
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", "", fmt.Errorf("failed to GenerateKey: %w", err)
		}
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(seed)
		pub = priv.Public().(ed25519.PublicKey) // nolint: forcetypeassert
	default:
		return "", "", fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	did := legacydid.DIDFromVerKey(pub)
	verKey := base58.Encode(pub)

	if err := w.persistKey(verKey, &keyPair{DID: did, Pub: pub, Priv: priv}); err != nil {
		return "", "", err
	}

	logger.Debugf("created DID %s", did)

	return did, verKey, nil
}

// Sign signs data with the private key of verKey.
func (w *BaseWallet) Sign(_ context.Context, verKey string, data []byte) ([]byte, error) {
	kp, err := w.getKey(verKey)
	if err != nil {
		return nil, fmt.Errorf("failed from getKey: %w", err)
	}

	return ed25519.Sign(kp.Priv, data), nil
}

// Verify checks signature of data against verKey.
func (w *BaseWallet) Verify(_ context.Context, verKey string, data, signature []byte) (bool, error) {
	pub := base58.Decode(verKey)
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("verify: invalid verkey %s", verKey)
	}

	return ed25519.Verify(pub, data, signature), nil
}

// persistKey save key in storage.
func (w *BaseWallet) persistKey(verKey string, value *keyPair) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	err = w.store.Put(verKey, bytes)
	if err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}

	return nil
}

// getKey get key.
func (w *BaseWallet) getKey(verKey string) (*keyPair, error) {
	bytes, err := w.store.Get(verKey)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%s: %w", verKey, wallet.ErrKeyNotFound)
		}

		return nil, err
	}

	var key keyPair
	if err := json.Unmarshal(bytes, &key); err != nil {
		return nil, fmt.Errorf("failed unmarshal to key struct: %w", err)
	}

	return &key, nil
}
