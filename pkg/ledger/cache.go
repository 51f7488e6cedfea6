/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bluele/gcache"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
)

const (
	defaultCacheSize = 100
	defaultCacheTTL  = 10 * time.Minute
)

// CacheOpt configures a CachedReader.
type CacheOpt func(*CachedReader)

// WithCacheSize sets the number of cached objects.
func WithCacheSize(size int) CacheOpt {
	return func(c *CachedReader) {
		c.size = size
	}
}

// WithCacheTTL sets how long an object stays cached.
func WithCacheTTL(ttl time.Duration) CacheOpt {
	return func(c *CachedReader) {
		c.ttl = ttl
	}
}

// CachedReader caches the immutable ledger objects (schemas, credential definitions, registry definitions and
// DID documents) of an underlying reader. Registry deltas and states change and are always read through.
type CachedReader struct {
	Read

	size  int
	ttl   time.Duration
	cache gcache.Cache
}

// NewCachedReader wraps r with an LRU cache.
func NewCachedReader(r Read, opts ...CacheOpt) *CachedReader {
	c := &CachedReader{
		Read: r,
		size: defaultCacheSize,
		ttl:  defaultCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.cache = gcache.New(c.size).LRU().Expiration(c.ttl).Build()

	return c
}

// GetSchema returns the cached schema or reads it.
func (c *CachedReader) GetSchema(ctx context.Context, id string) (json.RawMessage, error) {
	return c.raw(ctx, "schema:"+id, func() (json.RawMessage, error) { return c.Read.GetSchema(ctx, id) })
}

// GetCredDef returns the cached credential definition or reads it.
func (c *CachedReader) GetCredDef(ctx context.Context, id string) (json.RawMessage, error) {
	return c.raw(ctx, "creddef:"+id, func() (json.RawMessage, error) { return c.Read.GetCredDef(ctx, id) })
}

// GetRevRegDef returns the cached registry definition or reads it.
func (c *CachedReader) GetRevRegDef(ctx context.Context, id string) (json.RawMessage, error) {
	return c.raw(ctx, "revregdef:"+id, func() (json.RawMessage, error) { return c.Read.GetRevRegDef(ctx, id) })
}

// ResolveDID returns the cached DID document or resolves it.
func (c *CachedReader) ResolveDID(ctx context.Context, did string) (*legacydid.Doc, error) {
	key := "did:" + did

	if v, err := c.cache.Get(key); err == nil {
		if doc, ok := v.(*legacydid.Doc); ok {
			return doc, nil
		}
	}

	doc, err := c.Read.ResolveDID(ctx, did)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(key, doc) // nolint: errcheck

	return doc, nil
}

func (c *CachedReader) raw(_ context.Context, key string, read func() (json.RawMessage, error)) (json.RawMessage,
	error) {
	if v, err := c.cache.Get(key); err == nil {
		if b, ok := v.(json.RawMessage); ok {
			return b, nil
		}
	}

	b, err := read()
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(key, b) // nolint: errcheck

	return b, nil
}

// Purge empties the cache.
func (c *CachedReader) Purge() {
	c.cache.Purge()
}
