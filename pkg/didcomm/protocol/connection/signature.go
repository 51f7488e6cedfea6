/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
)

// ErrInvalidSignature is returned when a connection~sig does not verify.
var ErrInvalidSignature = errors.New("invalid connection signature")

// signConnection signs the connection block with verKey. The signed data is an 8 byte big-endian unix
// timestamp followed by the JSON connection block.
func signConnection(ctx context.Context, signer wallet.Signer, conn *Connection, verKey string,
	now time.Time) (*ConnectionSignature, error) {
	connBytes, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connection: %w", err)
	}

	timestampBuf := make([]byte, timestampLength)
	binary.BigEndian.PutUint64(timestampBuf, uint64(now.Unix()))

	signData := append(timestampBuf, connBytes...) // nolint: gocritic

	signature, err := signer.Sign(ctx, verKey, signData)
	if err != nil {
		return nil, fmt.Errorf("signing data: %w", err)
	}

	return &ConnectionSignature{
		Type:       signatureType,
		SignedData: base64.URLEncoding.EncodeToString(signData),
		SignVerKey: verKey,
		Signature:  base64.URLEncoding.EncodeToString(signature),
	}, nil
}

// verifyConnection verifies connSignature against recipientKey, the invitation key, and returns the signed
// connection block.
func verifyConnection(ctx context.Context, signer wallet.Signer, connSignature *ConnectionSignature,
	recipientKey string) (*Connection, error) {
	if connSignature == nil {
		return nil, fmt.Errorf("%w: missing connection~sig", ErrInvalidSignature)
	}

	sigData, err := base64.URLEncoding.DecodeString(connSignature.SignedData)
	if err != nil {
		return nil, fmt.Errorf("%w: decode signature data: %v", ErrInvalidSignature, err)
	}

	if len(sigData) <= timestampLength {
		return nil, fmt.Errorf("%w: missing connection attribute bytes", ErrInvalidSignature)
	}

	signature, err := base64.URLEncoding.DecodeString(connSignature.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: decode signature: %v", ErrInvalidSignature, err)
	}

	// The signature must verify against the invitation's recipient key for continuity.
	verKey, err := legacydid.ToVerKey(recipientKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invitation key: %v", ErrInvalidSignature, err)
	}

	ok, err := signer.Verify(ctx, verKey, sigData, signature)
	if err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: signature does not match key %s", ErrInvalidSignature, verKey)
	}

	conn := &Connection{}
	if err = json.Unmarshal(sigData[timestampLength:], conn); err != nil {
		return nil, fmt.Errorf("%w: JSON unmarshalling of connection: %v", ErrInvalidSignature, err)
	}

	return conn, nil
}
