/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package storeledger is a ledger.ReadWriter kept in an aries storage provider. It serves agents that run
// against a private registry and tests.
package storeledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
)

var logger = log.New("aries-framework/ledger/storeledger")

const (
	// StoreName is the name of the store ledger objects are kept in.
	StoreName = "ledger"

	revRegTagName = "revreg"

	schemaPrefix    = "schema_"
	credDefPrefix   = "creddef_"
	revRegDefPrefix = "revregdef_"
	revRegPrefix    = "revreg_"
	didPrefix       = "did_"
)

// revRegEntry is one published registry delta.
type revRegEntry struct {
	Timestamp int64           `json:"timestamp"`
	Delta     json.RawMessage `json:"delta"`
}

// Opt configures the ledger.
type Opt func(*Ledger)

// WithClock sets the time source of entry timestamps.
func WithClock(now func() time.Time) Opt {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger stores ledger objects. Registry deltas are appended per registry; a published delta is expected to be
// cumulative, so the latest entry at a time is both the delta and the state at that time.
type Ledger struct {
	store storage.Store
	now   func() time.Time
	mu    sync.Mutex
}

// New opens the ledger store.
func New(provider storage.Provider, opts ...Opt) (*Ledger, error) {
	store, err := provider.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = provider.SetStoreConfig(StoreName, storage.StoreConfiguration{TagNames: []string{revRegTagName}})
	if err != nil {
		return nil, fmt.Errorf("failed to set store config: %w", err)
	}

	l := &Ledger{store: store, now: time.Now}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// GetSchema reads a schema.
func (l *Ledger) GetSchema(_ context.Context, id string) (json.RawMessage, error) {
	return l.get(schemaPrefix + id)
}

// GetCredDef reads a credential definition.
func (l *Ledger) GetCredDef(_ context.Context, id string) (json.RawMessage, error) {
	return l.get(credDefPrefix + id)
}

// GetRevRegDef reads a revocation registry definition.
func (l *Ledger) GetRevRegDef(_ context.Context, id string) (json.RawMessage, error) {
	return l.get(revRegDefPrefix + id)
}

// GetRevRegDelta returns the latest delta of registry id published at or before to (now when zero).
func (l *Ledger) GetRevRegDelta(_ context.Context, id string, from, to int64) (json.RawMessage, int64, error) {
	if to == 0 {
		to = l.now().Unix()
	}

	if from > to {
		return nil, 0, fmt.Errorf("invalid interval [%d, %d]", from, to)
	}

	entry, err := l.latestEntry(id, to)
	if err != nil {
		return nil, 0, err
	}

	return entry.Delta, entry.Timestamp, nil
}

// GetRevReg returns the registry state valid at timestamp.
func (l *Ledger) GetRevReg(_ context.Context, id string, timestamp int64) (json.RawMessage, int64, error) {
	entry, err := l.latestEntry(id, timestamp)
	if err != nil {
		return nil, 0, err
	}

	return entry.Delta, entry.Timestamp, nil
}

// ResolveDID reads a DID document.
func (l *Ledger) ResolveDID(_ context.Context, did string) (*legacydid.Doc, error) {
	b, err := l.get(didPrefix + legacydid.Qualify(did))
	if err != nil {
		return nil, err
	}

	doc := &legacydid.Doc{}
	if err = json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("unmarshal DID document: %w", err)
	}

	return doc, nil
}

// PublishSchema writes a schema.
func (l *Ledger) PublishSchema(_ context.Context, id string, schema json.RawMessage) error {
	return l.put(schemaPrefix+id, schema)
}

// PublishCredDef writes a credential definition.
func (l *Ledger) PublishCredDef(_ context.Context, id string, credDef json.RawMessage) error {
	return l.put(credDefPrefix+id, credDef)
}

// PublishRevRegDef writes a revocation registry definition.
func (l *Ledger) PublishRevRegDef(_ context.Context, id string, revRegDef json.RawMessage) error {
	return l.put(revRegDefPrefix+id, revRegDef)
}

// PublishRevRegDelta appends a delta to registry id.
func (l *Ledger) PublishRevRegDelta(_ context.Context, id string, delta json.RawMessage) (int64, error) {
	if _, err := l.get(revRegDefPrefix + id); err != nil {
		return 0, fmt.Errorf("publish delta: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.entries(id)
	if err != nil {
		return 0, err
	}

	ts := l.now().Unix()
	if n := len(entries); n > 0 && entries[n-1].Timestamp >= ts {
		ts = entries[n-1].Timestamp + 1
	}

	b, err := json.Marshal(revRegEntry{Timestamp: ts, Delta: delta})
	if err != nil {
		return 0, fmt.Errorf("marshal delta: %w", err)
	}

	key := revRegPrefix + id + "_" + strconv.FormatInt(ts, 10)

	if err = l.store.Put(key, b, storage.Tag{Name: revRegTagName, Value: tagValue(id)}); err != nil {
		return 0, fmt.Errorf("store delta: %w", err)
	}

	logger.Debugf("published delta of %s at %d", id, ts)

	return ts, nil
}

// PublishDID writes a DID document.
func (l *Ledger) PublishDID(_ context.Context, doc *legacydid.Doc) error {
	if doc == nil || doc.ID == "" {
		return errors.New("publish DID: missing document id")
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal DID document: %w", err)
	}

	return l.put(didPrefix+legacydid.Qualify(doc.ID), b)
}

func (l *Ledger) get(key string) (json.RawMessage, error) {
	b, err := l.store.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ledger.ErrNotFound)
		}

		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	return b, nil
}

func (l *Ledger) put(key string, value json.RawMessage) error {
	if len(value) == 0 {
		return fmt.Errorf("put %s: empty value", key)
	}

	if err := l.store.Put(key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	return nil
}

func (l *Ledger) latestEntry(id string, at int64) (*revRegEntry, error) {
	entries, err := l.entries(id)
	if err != nil {
		return nil, err
	}

	var latest *revRegEntry

	for i := range entries {
		if entries[i].Timestamp > at {
			break
		}

		latest = &entries[i]
	}

	if latest == nil {
		return nil, fmt.Errorf("registry %s at %d: %w", id, at, ledger.ErrNotFound)
	}

	return latest, nil
}

// entries returns the deltas of registry id ordered by timestamp.
func (l *Ledger) entries(id string) ([]revRegEntry, error) {
	iter, err := l.store.Query(revRegTagName + ":" + tagValue(id))
	if err != nil {
		return nil, fmt.Errorf("query registry %s: %w", id, err)
	}

	defer func() {
		if errClose := iter.Close(); errClose != nil {
			logger.Errorf("failed to close iterator: %s", errClose.Error())
		}
	}()

	var entries []revRegEntry

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate registry %s: %w", id, err)
		}

		if !ok {
			break
		}

		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read registry %s: %w", id, err)
		}

		var e revRegEntry
		if err = json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("unmarshal registry entry: %w", err)
		}

		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })

	return entries, nil
}

// tagValue encodes id for use as a tag value, which may not contain ':'.
func tagValue(id string) string {
	return base58.Encode([]byte(id))
}
