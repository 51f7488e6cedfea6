/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package postgres is a mediator.Persistence kept in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
)

const uniqueViolation = "23505"

var _ mediator.Persistence = (*Persistence)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS mediator_accounts (
	account_id      TEXT PRIMARY KEY,
	auth_pubkey     TEXT NOT NULL UNIQUE,
	our_signing_key TEXT NOT NULL,
	did_doc         BYTEA,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mediator_recipients (
	recipient_key TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES mediator_accounts (account_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS mediator_messages (
	seq           BIGSERIAL PRIMARY KEY,
	message_id    TEXT NOT NULL UNIQUE,
	account_id    TEXT NOT NULL REFERENCES mediator_accounts (account_id) ON DELETE CASCADE,
	recipient_key TEXT NOT NULL,
	message_data  BYTEA NOT NULL,
	received_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS mediator_messages_account_idx ON mediator_messages (account_id, seq);
`

// Persistence implements mediator.Persistence on a pgx pool.
type Persistence struct {
	pool *pgxpool.Pool
}

// NewPool creates a pgx connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	return pgxpool.NewWithConfig(ctx, config)
}

// New returns a persistence on pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Persistence {
	return &Persistence{pool: pool}
}

// Migrate creates the mediator tables when missing.
func (p *Persistence) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create mediator tables: %w", err)
	}

	return nil
}

// Ping checks the database is reachable.
func (p *Persistence) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *Persistence) Close() {
	p.pool.Close()
}

// CreateAccount creates the account of authKey.
func (p *Persistence) CreateAccount(ctx context.Context, authKey, ourSigningKey string,
	didDoc json.RawMessage) (*mediator.Account, error) {
	acct := &mediator.Account{
		ID:            uuid.New().String(),
		AuthKey:       authKey,
		OurSigningKey: ourSigningKey,
		DIDDoc:        didDoc,
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO mediator_accounts (account_id, auth_pubkey, our_signing_key, did_doc)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, acct.ID, authKey, ourSigningKey, []byte(didDoc)).Scan(&acct.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", mediator.ErrAccountExists, authKey)
		}

		return nil, fmt.Errorf("insert account: %w", err)
	}

	return acct, nil
}

// GetAccountID returns the account id of authKey.
func (p *Persistence) GetAccountID(ctx context.Context, authKey string) (string, error) {
	var id string

	err := p.pool.QueryRow(ctx, `SELECT account_id FROM mediator_accounts WHERE auth_pubkey = $1`, authKey).Scan(&id)
	if err != nil {
		return "", accountErr(err, authKey)
	}

	return id, nil
}

// GetAccount returns the account of authKey.
func (p *Persistence) GetAccount(ctx context.Context, authKey string) (*mediator.Account, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT account_id, auth_pubkey, our_signing_key, did_doc, created_at
		FROM mediator_accounts WHERE auth_pubkey = $1
	`, authKey)

	acct, err := scanAccount(row)
	if err != nil {
		return nil, accountErr(err, authKey)
	}

	return acct, nil
}

// ListAccounts returns every account, oldest first.
func (p *Persistence) ListAccounts(ctx context.Context) ([]mediator.Account, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT account_id, auth_pubkey, our_signing_key, did_doc, created_at
		FROM mediator_accounts ORDER BY created_at, auth_pubkey
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []mediator.Account

	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		out = append(out, *acct)
	}

	return out, rows.Err()
}

// AddRecipient routes recipientKey to the account of authKey.
func (p *Persistence) AddRecipient(ctx context.Context, authKey, recipientKey string) error {
	id, err := p.GetAccountID(ctx, authKey)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `INSERT INTO mediator_recipients (recipient_key, account_id) VALUES ($1, $2)`,
		recipientKey, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", mediator.ErrRecipientExists, recipientKey)
		}

		return fmt.Errorf("insert recipient: %w", err)
	}

	return nil
}

// RemoveRecipient stops routing recipientKey to the account of authKey.
func (p *Persistence) RemoveRecipient(ctx context.Context, authKey, recipientKey string) error {
	id, err := p.GetAccountID(ctx, authKey)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `DELETE FROM mediator_recipients WHERE account_id = $1 AND recipient_key = $2`,
		id, recipientKey)
	if err != nil {
		return fmt.Errorf("delete recipient: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", mediator.ErrRecipientNotFound, recipientKey)
	}

	return nil
}

// ListRecipientKeys returns the keys routed to the account of authKey, sorted.
func (p *Persistence) ListRecipientKeys(ctx context.Context, authKey string) ([]string, error) {
	id, err := p.GetAccountID(ctx, authKey)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT recipient_key FROM mediator_recipients WHERE account_id = $1 ORDER BY recipient_key
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	keys := []string{}

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}

		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// PersistForwardMessage stores msg for the account recipientKey is routed to.
func (p *Persistence) PersistForwardMessage(ctx context.Context, recipientKey string, msg []byte) (string, error) {
	id := uuid.New().String()

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO mediator_messages (message_id, account_id, recipient_key, message_data)
		SELECT $1, account_id, recipient_key, $3 FROM mediator_recipients WHERE recipient_key = $2
	`, id, recipientKey, msg)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: no account for recipient %s", mediator.ErrAccountNotFound, recipientKey)
	}

	return id, nil
}

// RetrievePendingMessageCount counts the pending messages of the account of authKey.
func (p *Persistence) RetrievePendingMessageCount(ctx context.Context, authKey, recipientKey string) (int, error) {
	id, err := p.GetAccountID(ctx, authKey)
	if err != nil {
		return 0, err
	}

	var count int

	err = p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM mediator_messages
		WHERE account_id = $1 AND ($2 = '' OR recipient_key = $2)
	`, id, recipientKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

// RetrievePendingMessages returns up to limit pending messages, oldest first.
func (p *Persistence) RetrievePendingMessages(ctx context.Context, authKey string, limit int,
	recipientKey string) ([]mediator.Message, error) {
	id, err := p.GetAccountID(ctx, authKey)
	if err != nil {
		return nil, err
	}

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT message_id, recipient_key, message_data FROM mediator_messages
		WHERE account_id = $1 AND ($2 = '' OR recipient_key = $2)
		ORDER BY seq LIMIT $3
	`, id, recipientKey, lim)
	if err != nil {
		return nil, fmt.Errorf("retrieve messages: %w", err)
	}
	defer rows.Close()

	var out []mediator.Message

	for rows.Next() {
		var (
			msg  mediator.Message
			data []byte
		)

		if err := rows.Scan(&msg.ID, &msg.RecipientKey, &data); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.Data = data
		out = append(out, msg)
	}

	return out, rows.Err()
}

// DeleteMessages removes the listed messages of the account of authKey.
func (p *Persistence) DeleteMessages(ctx context.Context, authKey string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	id, err := p.GetAccountID(ctx, authKey)
	if err != nil {
		return 0, err
	}

	tag, err := p.pool.Exec(ctx, `
		DELETE FROM mediator_messages WHERE account_id = $1 AND message_id = ANY($2)
	`, id, ids)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func scanAccount(row pgx.Row) (*mediator.Account, error) {
	var (
		acct   mediator.Account
		didDoc []byte
	)

	if err := row.Scan(&acct.ID, &acct.AuthKey, &acct.OurSigningKey, &didDoc, &acct.Created); err != nil {
		return nil, err
	}

	if len(didDoc) > 0 {
		acct.DIDDoc = didDoc
	}

	return &acct, nil
}

func accountErr(err error, authKey string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", mediator.ErrAccountNotFound, authKey)
	}

	return fmt.Errorf("get account: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
