/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package protocolstate keeps a journal of the protocol threads an agent runs: which state every thread is in
// and when it last moved. Live machines stay in memory; the journal is for inspection.
package protocolstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// StoreName is the store name used in the storage provider.
	StoreName = "protocolstate"

	namespaceTag = "ns"
	keyPattern   = "%s_%s"
)

// ErrRecordNotFound is returned when a thread has no journal record.
var ErrRecordNotFound = errors.New("protocol state record not found")

var logger = log.New("aries-framework/store/protocolstate")

// Record is the journal entry of one thread. ReboundTo names the thread a machine moved to when it left this
// one.
type Record struct {
	Namespace string    `json:"namespace"`
	ThreadID  string    `json:"thid"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	Terminal  bool      `json:"terminal"`
	Code      string    `json:"code,omitempty"`
	ReboundTo string    `json:"rebound_to,omitempty"`
	Updated   time.Time `json:"updated"`
}

// Journal stores records in an aries storage provider.
type Journal struct {
	store storage.Store
	now   func() time.Time
}

// New opens the journal of provider.
func New(provider storage.Provider) (*Journal, error) {
	store, err := provider.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("failed to open protocol state store: %w", err)
	}

	err = provider.SetStoreConfig(StoreName, storage.StoreConfiguration{TagNames: []string{namespaceTag}})
	if err != nil {
		return nil, fmt.Errorf("failed to set protocol state store config: %w", err)
	}

	return &Journal{store: store, now: time.Now}, nil
}

// Put writes rec, stamping its update time.
func (j *Journal) Put(rec Record) error {
	if rec.Namespace == "" || rec.ThreadID == "" {
		return errors.New("namespace and thread id are required")
	}

	rec.Updated = j.now().UTC()

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = j.store.Put(key(rec.Namespace, rec.ThreadID), b,
		storage.Tag{Name: namespaceTag, Value: base58.Encode([]byte(rec.Namespace))})
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", rec.Namespace, rec.ThreadID, err)
	}

	logger.Debugf("%s thread %s is now %s", rec.Namespace, rec.ThreadID, rec.State)

	return nil
}

// Get returns the record of thid in namespace.
func (j *Journal) Get(namespace, thid string) (*Record, error) {
	b, err := j.store.Get(key(namespace, thid))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, namespace, thid)
		}

		return nil, fmt.Errorf("get record %s/%s: %w", namespace, thid, err)
	}

	var rec Record
	if err = json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	return &rec, nil
}

// List returns the records of namespace, most recently updated first.
func (j *Journal) List(namespace string) ([]Record, error) {
	iter, err := j.store.Query(namespaceTag + ":" + base58.Encode([]byte(namespace)))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	defer func() {
		if errClose := iter.Close(); errClose != nil {
			logger.Errorf("failed to close iterator: %s", errClose.Error())
		}
	}()

	records := []Record{}

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate records: %w", err)
		}

		if !ok {
			break
		}

		b, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		var rec Record
		if err = json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}

		records = append(records, rec)
	}

	sort.Slice(records, func(i, k int) bool {
		if records[i].Updated.Equal(records[k].Updated) {
			return records[i].ThreadID < records[k].ThreadID
		}

		return records[i].Updated.After(records[k].Updated)
	})

	return records, nil
}

// Delete removes the record of thid in namespace.
func (j *Journal) Delete(namespace, thid string) error {
	if err := j.store.Delete(key(namespace, thid)); err != nil {
		return fmt.Errorf("delete record %s/%s: %w", namespace, thid, err)
	}

	return nil
}

func key(namespace, thid string) string {
	return fmt.Sprintf(keyPattern, namespace, thid)
}
