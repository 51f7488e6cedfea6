/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is the store name used in the storage provider.
	Namespace = "mediator"

	accountKeyPrefix   = "acct_"
	recipientKeyPrefix = "rcpt_"
	messageKeyPrefix   = "msg_"

	accountTag   = "acct"
	recipientTag = "rcptacct"
	messageTag   = "msgacct"
	tagSeparator = ":"
)

var logger = log.New("aries-framework/store/mediator")

var _ Persistence = (*Store)(nil)

type recipientRecord struct {
	AccountID    string `json:"account_id"`
	RecipientKey string `json:"recipient_key"`
}

type messageRecord struct {
	Message
	AccountID string `json:"account_id"`
	Seq       int64  `json:"seq"`
}

// Store is a Persistence kept in an aries storage provider.
type Store struct {
	store storage.Store
	mu    sync.Mutex
	seq   int64
	now   func() time.Time
}

// NewStore opens the mediator store of provider.
func NewStore(provider storage.Provider) (*Store, error) {
	store, err := provider.OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open mediator store: %w", err)
	}

	err = provider.SetStoreConfig(Namespace,
		storage.StoreConfiguration{TagNames: []string{accountTag, recipientTag, messageTag}})
	if err != nil {
		return nil, fmt.Errorf("failed to set mediator store config: %w", err)
	}

	return &Store{store: store, now: time.Now}, nil
}

// CreateAccount creates the account of authKey.
func (s *Store) CreateAccount(_ context.Context, authKey, ourSigningKey string,
	didDoc json.RawMessage) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.account(authKey)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, authKey)
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	acct := &Account{
		ID:            uuid.New().String(),
		AuthKey:       authKey,
		OurSigningKey: ourSigningKey,
		DIDDoc:        didDoc,
		Created:       s.now().UTC(),
	}

	if err = s.put(accountKeyPrefix+authKey, acct, storage.Tag{Name: accountTag}); err != nil {
		return nil, err
	}

	return acct, nil
}

// GetAccountID returns the account id of authKey.
func (s *Store) GetAccountID(_ context.Context, authKey string) (string, error) {
	acct, err := s.account(authKey)
	if err != nil {
		return "", err
	}

	return acct.ID, nil
}

// GetAccount returns the account of authKey.
func (s *Store) GetAccount(_ context.Context, authKey string) (*Account, error) {
	return s.account(authKey)
}

// ListAccounts returns every account, oldest first.
func (s *Store) ListAccounts(_ context.Context) ([]Account, error) {
	var accounts []Account

	err := s.query(accountTag, func(value []byte) error {
		var acct Account
		if err := json.Unmarshal(value, &acct); err != nil {
			return fmt.Errorf("unmarshal account: %w", err)
		}

		accounts = append(accounts, acct)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Created.Equal(accounts[j].Created) {
			return accounts[i].AuthKey < accounts[j].AuthKey
		}

		return accounts[i].Created.Before(accounts[j].Created)
	})

	return accounts, nil
}

// AddRecipient routes recipientKey to the account of authKey.
func (s *Store) AddRecipient(_ context.Context, authKey, recipientKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.account(authKey)
	if err != nil {
		return err
	}

	_, err = s.recipient(recipientKey)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrRecipientExists, recipientKey)
	}

	if !errors.Is(err, ErrRecipientNotFound) {
		return err
	}

	return s.put(recipientKeyPrefix+recipientKey, &recipientRecord{AccountID: acct.ID, RecipientKey: recipientKey},
		storage.Tag{Name: recipientTag, Value: tagValue(acct.ID)})
}

// RemoveRecipient stops routing recipientKey to the account of authKey.
func (s *Store) RemoveRecipient(_ context.Context, authKey, recipientKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.account(authKey)
	if err != nil {
		return err
	}

	rec, err := s.recipient(recipientKey)
	if err != nil {
		return err
	}

	if rec.AccountID != acct.ID {
		return fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientKey)
	}

	if err = s.store.Delete(recipientKeyPrefix + recipientKey); err != nil {
		return fmt.Errorf("delete recipient %s: %w", recipientKey, err)
	}

	return nil
}

// ListRecipientKeys returns the keys routed to the account of authKey, sorted.
func (s *Store) ListRecipientKeys(_ context.Context, authKey string) ([]string, error) {
	acct, err := s.account(authKey)
	if err != nil {
		return nil, err
	}

	keys := []string{}

	err = s.query(recipientTag+tagSeparator+tagValue(acct.ID), func(value []byte) error {
		var rec recipientRecord
		if e := json.Unmarshal(value, &rec); e != nil {
			return fmt.Errorf("unmarshal recipient: %w", e)
		}

		keys = append(keys, rec.RecipientKey)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	return keys, nil
}

// PersistForwardMessage stores msg for the account recipientKey is routed to.
func (s *Store) PersistForwardMessage(_ context.Context, recipientKey string, msg []byte) (string, error) {
	rec, err := s.recipient(recipientKey)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return "", fmt.Errorf("%w: no account for recipient %s", ErrAccountNotFound, recipientKey)
		}

		return "", err
	}

	record := &messageRecord{
		Message: Message{
			ID:           uuid.New().String(),
			RecipientKey: recipientKey,
			Data:         append(json.RawMessage(nil), msg...),
		},
		AccountID: rec.AccountID,
		Seq:       s.nextSeq(),
	}

	err = s.put(messageKeyPrefix+record.ID, record, storage.Tag{Name: messageTag, Value: tagValue(rec.AccountID)})
	if err != nil {
		return "", err
	}

	logger.Debugf("persisted message %s for recipient %s", record.ID, recipientKey)

	return record.ID, nil
}

// RetrievePendingMessageCount counts the pending messages of the account of authKey.
func (s *Store) RetrievePendingMessageCount(_ context.Context, authKey, recipientKey string) (int, error) {
	msgs, err := s.messages(authKey, recipientKey)
	if err != nil {
		return 0, err
	}

	return len(msgs), nil
}

// RetrievePendingMessages returns up to limit pending messages, oldest first.
func (s *Store) RetrievePendingMessages(_ context.Context, authKey string, limit int,
	recipientKey string) ([]Message, error) {
	msgs, err := s.messages(authKey, recipientKey)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Message
	}

	return out, nil
}

// DeleteMessages removes the listed messages of the account of authKey.
func (s *Store) DeleteMessages(_ context.Context, authKey string, ids []string) (int, error) {
	msgs, err := s.messages(authKey, "")
	if err != nil {
		return 0, err
	}

	owned := make(map[string]struct{}, len(msgs))
	for i := range msgs {
		owned[msgs[i].ID] = struct{}{}
	}

	var ops []storage.Operation

	for _, id := range ids {
		if _, ok := owned[id]; !ok {
			continue
		}

		delete(owned, id)

		ops = append(ops, storage.Operation{Key: messageKeyPrefix + id})
	}

	if len(ops) == 0 {
		return 0, nil
	}

	if err = s.store.Batch(ops); err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	return len(ops), nil
}

func (s *Store) messages(authKey, recipientKey string) ([]messageRecord, error) {
	acct, err := s.account(authKey)
	if err != nil {
		return nil, err
	}

	var msgs []messageRecord

	err = s.query(messageTag+tagSeparator+tagValue(acct.ID), func(value []byte) error {
		var rec messageRecord
		if e := json.Unmarshal(value, &rec); e != nil {
			return fmt.Errorf("unmarshal message: %w", e)
		}

		if recipientKey == "" || rec.RecipientKey == recipientKey {
			msgs = append(msgs, rec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	return msgs, nil
}

func (s *Store) account(authKey string) (*Account, error) {
	var acct Account

	if err := s.get(accountKeyPrefix+authKey, &acct); err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, authKey)
		}

		return nil, err
	}

	return &acct, nil
}

func (s *Store) recipient(recipientKey string) (*recipientRecord, error) {
	var rec recipientRecord

	if err := s.get(recipientKeyPrefix+recipientKey, &rec); err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientKey)
		}

		return nil, err
	}

	return &rec, nil
}

// nextSeq orders messages by arrival, also across restarts of a persistent provider.
func (s *Store) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.now().UnixNano()
	if seq <= s.seq {
		seq = s.seq + 1
	}

	s.seq = seq

	return seq
}

func (s *Store) get(key string, v interface{}) error {
	b, err := s.store.Get(key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}

	if err = json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}

	return nil
}

func (s *Store) put(key string, v interface{}, tags ...storage.Tag) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if err = s.store.Put(key, b, tags...); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	return nil
}

func (s *Store) query(expression string, fn func(value []byte) error) error {
	iter, err := s.store.Query(expression)
	if err != nil {
		return fmt.Errorf("query %s: %w", expression, err)
	}

	defer func() {
		if errClose := iter.Close(); errClose != nil {
			logger.Errorf("failed to close iterator: %s", errClose.Error())
		}
	}()

	for {
		ok, err := iter.Next()
		if err != nil {
			return fmt.Errorf("iterate %s: %w", expression, err)
		}

		if !ok {
			return nil
		}

		value, err := iter.Value()
		if err != nil {
			return fmt.Errorf("read %s: %w", expression, err)
		}

		if err = fn(value); err != nil {
			return err
		}
	}
}

// tagValue makes an identifier usable as a tag value, which must not contain the tag separator.
func tagValue(id string) string {
	return base58.Encode([]byte(id))
}
