/*
 *
 * Copyright SecureKey Technologies Inc. All Rights Reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 * /
 *
 */

package connection

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

// NewRecorder returns new connection recorder.
// Recorder is read-write connection store which provides
// write features on top query features from Lookup.
func NewRecorder(p storage.Provider) (*Recorder, error) {
	lookup, err := NewLookup(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create new connection recorder : %w", err)
	}

	return &Recorder{lookup}, nil
}

// Recorder is read-write connection store.
type Recorder struct {
	*Lookup
}

// SaveConnectionRecord saves given connection record in underlying store.
func (c *Recorder) SaveConnectionRecord(record *Record) error {
	if err := isValidConnection(record); err != nil {
		return fmt.Errorf("validation failed while saving connection record: %w", err)
	}

	tags := []storage.Tag{{Name: connIDKeyPrefix}}
	if record.TheirVerKey != "" {
		tags = append(tags, storage.Tag{Name: theirKeyTag, Value: tagValue(record.TheirVerKey)})
	}

	if err := marshalAndSave(getConnectionKeyPrefix()(record.ConnectionID), record, c.store, tags...); err != nil {
		return fmt.Errorf("save connection record in permanent store: %w", err)
	}

	return nil
}

// RemoveConnectionRecord removes the record of connectionID.
func (c *Recorder) RemoveConnectionRecord(connectionID string) error {
	if err := c.store.Delete(getConnectionKeyPrefix()(connectionID)); err != nil {
		return fmt.Errorf("remove connection record: %w", err)
	}

	return nil
}

func marshalAndSave(k string, v interface{}, store storage.Store, tags ...storage.Tag) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("save connection record: %w", err)
	}

	return store.Put(k, bytes, tags...)
}

// isValidConnection validates connection record.
func isValidConnection(r *Record) error {
	if r == nil {
		return errors.New("connection record is nil")
	}

	if r.ThreadID == "" || r.ConnectionID == "" {
		return fmt.Errorf("input parameters thid : %s and connectionId : %s cannot be empty",
			r.ThreadID, r.ConnectionID)
	}

	return nil
}

// tagValue makes a key usable as a tag value, which must not contain ':'.
func tagValue(key string) string {
	return base58.Encode([]byte(key))
}
