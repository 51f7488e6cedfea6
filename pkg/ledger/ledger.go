/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger defines the verifiable data registry capability: reads and writes of anoncreds artefacts and
// DIDs.
package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
)

// ErrNotFound marks a permanent lookup failure: the object does not exist on the ledger.
var ErrNotFound = errors.New("not found on ledger")

// Read is the read side of the ledger.
type Read interface {
	GetSchema(ctx context.Context, id string) (json.RawMessage, error)
	GetCredDef(ctx context.Context, id string) (json.RawMessage, error)
	GetRevRegDef(ctx context.Context, id string) (json.RawMessage, error)
	// GetRevRegDelta returns the accumulated delta of registry id over [from, to] and the timestamp of the
	// latest entry included. A zero to means now.
	GetRevRegDelta(ctx context.Context, id string, from, to int64) (json.RawMessage, int64, error)
	// GetRevReg returns the registry state valid at timestamp and the timestamp of that state.
	GetRevReg(ctx context.Context, id string, timestamp int64) (json.RawMessage, int64, error)
	ResolveDID(ctx context.Context, did string) (*legacydid.Doc, error)
}

// Write is the write side of the ledger.
type Write interface {
	PublishSchema(ctx context.Context, id string, schema json.RawMessage) error
	PublishCredDef(ctx context.Context, id string, credDef json.RawMessage) error
	PublishRevRegDef(ctx context.Context, id string, revRegDef json.RawMessage) error
	// PublishRevRegDelta appends delta to registry id and returns the ledger timestamp of the entry.
	PublishRevRegDelta(ctx context.Context, id string, delta json.RawMessage) (int64, error)
	PublishDID(ctx context.Context, doc *legacydid.Doc) error
}

// ReadWriter is a ledger that can be read and written.
type ReadWriter interface {
	Read
	Write
}
