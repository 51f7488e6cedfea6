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
	"errors"
	"fmt"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
)

const (
	threadIDFmt  = "thID-%v"
	connIDFmt    = "connValue-%v"
	sampleErrMsg = "sample-error-message"
)

func TestNewRecorder(t *testing.T) {
	t.Run("create new connection recorder", func(t *testing.T) {
		recorder, err := NewRecorder(mem.NewProvider())
		require.NoError(t, err)
		require.NotNil(t, recorder)
		require.NotNil(t, recorder.store)
	})

	t.Run("create new connection recorder failure due to store error", func(t *testing.T) {
		recorder, err := NewRecorder(&mockProvider{storeError: errors.New(sampleErrMsg)})
		require.Error(t, err)
		require.Contains(t, err.Error(), sampleErrMsg)
		require.Nil(t, recorder)
	})

	t.Run("create new connection recorder failure due to store config error", func(t *testing.T) {
		recorder, err := NewRecorder(&mockProvider{Provider: mem.NewProvider(), storeConfError: errors.New(sampleErrMsg)})
		require.Error(t, err)
		require.Contains(t, err.Error(), sampleErrMsg)
		require.Nil(t, recorder)
	})
}

func TestConnectionRecorder_SaveConnectionRecord(t *testing.T) {
	t.Run("save and lookup", func(t *testing.T) {
		recorder, err := NewRecorder(mem.NewProvider())
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, recorder.SaveConnectionRecord(&Record{
				ConnectionID: fmt.Sprintf(connIDFmt, i),
				ThreadID:     fmt.Sprintf(threadIDFmt, i),
				State:        "completed",
				TheirVerKey:  fmt.Sprintf("key-%d", i),
			}))
		}

		rec, err := recorder.GetConnectionRecord(fmt.Sprintf(connIDFmt, 1))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf(threadIDFmt, 1), rec.ThreadID)

		rec, err = recorder.GetConnectionRecordByTheirKey("key-2")
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf(connIDFmt, 2), rec.ConnectionID)

		records, err := recorder.QueryConnectionRecords()
		require.NoError(t, err)
		require.Len(t, records, 3)
		require.Equal(t, fmt.Sprintf(connIDFmt, 0), records[0].ConnectionID)

		require.NoError(t, recorder.RemoveConnectionRecord(fmt.Sprintf(connIDFmt, 0)))

		_, err = recorder.GetConnectionRecord(fmt.Sprintf(connIDFmt, 0))
		require.ErrorIs(t, err, ErrNotFound)

		_, err = recorder.GetConnectionRecordByTheirKey("key-0")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid records", func(t *testing.T) {
		recorder, err := NewRecorder(mem.NewProvider())
		require.NoError(t, err)

		require.Error(t, recorder.SaveConnectionRecord(nil))

		err = recorder.SaveConnectionRecord(&Record{ConnectionID: "c"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "cannot be empty")
	})

	t.Run("store put error", func(t *testing.T) {
		recorder, err := NewRecorder(&mockProvider{Provider: mem.NewProvider(), putErr: errors.New(sampleErrMsg)})
		require.NoError(t, err)

		err = recorder.SaveConnectionRecord(&Record{ConnectionID: "c", ThreadID: "t"})
		require.Error(t, err)
		require.Contains(t, err.Error(), sampleErrMsg)
	})
}

type mockProvider struct {
	storage.Provider
	storeError     error
	storeConfError error
	putErr         error
}

func (p *mockProvider) OpenStore(name string) (storage.Store, error) {
	if p.storeError != nil {
		return nil, p.storeError
	}

	s, err := p.Provider.OpenStore(name)
	if err != nil {
		return nil, err
	}

	return &mockStore{Store: s, putErr: p.putErr}, nil
}

func (p *mockProvider) SetStoreConfig(name string, config storage.StoreConfiguration) error {
	if p.storeConfError != nil {
		return p.storeConfError
	}

	return p.Provider.SetStoreConfig(name, config)
}

type mockStore struct {
	storage.Store
	putErr error
}

func (s *mockStore) Put(key string, value []byte, tags ...storage.Tag) error {
	if s.putErr != nil {
		return s.putErr
	}

	return s.Store.Put(key, value, tags...)
}
