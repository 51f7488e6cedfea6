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
	"sort"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is namespace of connection store name.
	Namespace       = "connections"
	keyPattern      = "%s_%s"
	connIDKeyPrefix = "conn"
	theirKeyTag     = "theirkey"
	keySeparator    = "_"
)

// ErrNotFound is returned when no connection record matches.
var ErrNotFound = errors.New("connection record not found")

var logger = log.New("aries-framework/store/connection")

// KeyPrefix is prefix builder for storage keys.
type KeyPrefix func(...string) string

// Record contain info about an established connection.
type Record struct {
	ConnectionID    string
	State           string
	ThreadID        string
	ParentThreadID  string
	Role            string
	TheirLabel      string
	TheirDID        string
	MyDID           string
	MyVerKey        string
	TheirVerKey     string
	ServiceEndPoint string
	RecipientKeys   []string
	RoutingKeys     []string
	InvitationID    string
	Protocols       []string
}

// NewLookup returns new connection lookup instance.
// Lookup is read only connection store. It provides connection record related query features.
func NewLookup(p storage.Provider) (*Lookup, error) {
	store, err := p.OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open permanent store to create new connection recorder: %w", err)
	}

	err = p.SetStoreConfig(Namespace, storage.StoreConfiguration{TagNames: []string{connIDKeyPrefix, theirKeyTag}})
	if err != nil {
		return nil, fmt.Errorf("failed to set store config in permanent store: %w", err)
	}

	return &Lookup{store: store}, nil
}

// Lookup takes care of connection related persistence features.
type Lookup struct {
	store storage.Store
}

// GetConnectionRecord return connection record based on the connection ID.
func (c *Lookup) GetConnectionRecord(connectionID string) (*Record, error) {
	var rec Record

	if err := getAndUnmarshal(getConnectionKeyPrefix()(connectionID), &rec, c.store); err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, connectionID)
		}

		return nil, err
	}

	return &rec, nil
}

// GetConnectionRecordByTheirKey returns the connection whose counterparty uses verKey.
func (c *Lookup) GetConnectionRecordByTheirKey(verKey string) (*Record, error) {
	records, err := c.query(theirKeyTag + ":" + tagValue(verKey))
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: their key %s", ErrNotFound, verKey)
	}

	return records[0], nil
}

// QueryConnectionRecords returns every connection record, sorted by connection id.
func (c *Lookup) QueryConnectionRecords() ([]*Record, error) {
	records, err := c.query(connIDKeyPrefix)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ConnectionID < records[j].ConnectionID })

	return records, nil
}

func (c *Lookup) query(expression string) ([]*Record, error) {
	itr, err := c.store.Query(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection store: %w", err)
	}

	defer func() {
		if errClose := itr.Close(); errClose != nil {
			logger.Errorf("failed to close iterator: %s", errClose.Error())
		}
	}()

	var records []*Record

	more, err := itr.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to get next set of data from iterator: %w", err)
	}

	for more {
		value, err := itr.Value()
		if err != nil {
			return nil, fmt.Errorf("failed to get value from iterator: %w", err)
		}

		var record Record
		if errUnmarshal := json.Unmarshal(value, &record); errUnmarshal != nil {
			return nil, fmt.Errorf("query connection records: %w", errUnmarshal)
		}

		records = append(records, &record)

		more, err = itr.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to get next set of data from iterator: %w", err)
		}
	}

	return records, nil
}

func getAndUnmarshal(key string, target interface{}, store storage.Store) error {
	bytes, err := store.Get(key)
	if err != nil {
		return err
	}

	err = json.Unmarshal(bytes, target)
	if err != nil {
		return err
	}

	return nil
}

// getConnectionKeyPrefix key prefix for connection record persisted.
func getConnectionKeyPrefix() KeyPrefix {
	return func(key ...string) string {
		return fmt.Sprintf(keyPattern, connIDKeyPrefix, strings.Join(key, keySeparator))
	}
}
