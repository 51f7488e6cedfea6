/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator holds the mediator persistence capability: the accounts of the agents a mediator serves,
// the recipient keys routed to each account and the forwarded messages waiting for pickup.
package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound is returned when no account exists for an auth key or recipient key.
	ErrAccountNotFound = errors.New("mediator account not found")
	// ErrAccountExists is returned by CreateAccount when the auth key already has an account.
	ErrAccountExists = errors.New("mediator account already exists")
	// ErrRecipientExists is returned by AddRecipient when the key is already routed.
	ErrRecipientExists = errors.New("recipient key already registered")
	// ErrRecipientNotFound is returned by RemoveRecipient when the key is not routed to the account.
	ErrRecipientNotFound = errors.New("recipient key not registered")
)

// Account is a mediated agent, identified by the key it authenticates its envelopes with.
type Account struct {
	ID            string          `json:"id"`
	AuthKey       string          `json:"auth_pubkey"`
	OurSigningKey string          `json:"our_signing_key"`
	DIDDoc        json.RawMessage `json:"did_doc,omitempty"`
	Created       time.Time       `json:"created"`
}

// Message is a forwarded message waiting for pickup.
type Message struct {
	ID           string          `json:"id"`
	RecipientKey string          `json:"recipient_key"`
	Data         json.RawMessage `json:"data"`
}

// Persistence is the storage used by the mediator and pickup services. Implementations must be safe for
// concurrent use. Pending messages are returned oldest first.
type Persistence interface {
	CreateAccount(ctx context.Context, authKey, ourSigningKey string, didDoc json.RawMessage) (*Account, error)
	GetAccountID(ctx context.Context, authKey string) (string, error)
	GetAccount(ctx context.Context, authKey string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	AddRecipient(ctx context.Context, authKey, recipientKey string) error
	RemoveRecipient(ctx context.Context, authKey, recipientKey string) error
	ListRecipientKeys(ctx context.Context, authKey string) ([]string, error)

	// PersistForwardMessage stores msg for the account recipientKey is routed to and returns the message id.
	PersistForwardMessage(ctx context.Context, recipientKey string, msg []byte) (string, error)
	// RetrievePendingMessageCount counts the account's messages, restricted to recipientKey when not empty.
	RetrievePendingMessageCount(ctx context.Context, authKey, recipientKey string) (int, error)
	// RetrievePendingMessages returns up to limit messages without removing them. A limit <= 0 means all.
	RetrievePendingMessages(ctx context.Context, authKey string, limit int, recipientKey string) ([]Message, error)
	// DeleteMessages removes the given messages of the account and returns how many were removed. Unknown ids
	// and ids of other accounts are ignored.
	DeleteMessages(ctx context.Context, authKey string, ids []string) (int, error)
}
