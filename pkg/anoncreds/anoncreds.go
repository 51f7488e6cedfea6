/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package anoncreds defines the anonymous credentials capability. All credential artefacts cross the interface
// as opaque JSON; identifiers are opaque strings.
package anoncreds

import (
	"context"
	"encoding/json"
)

// LinkSecretID is the link secret every credential request and presentation is bound to.
const LinkSecretID = "main"

// IssuedCredential is the result of CreateCredential.
type IssuedCredential struct {
	Credential json.RawMessage
	// CredRevID is set for revocable credentials.
	CredRevID string
	// RevRegDelta is the registry delta to publish for revocable credentials.
	RevRegDelta json.RawMessage
}

// CredentialInfo identifies a stored credential selected for a presentation referent.
type CredentialInfo struct {
	Referent     string `json:"referent"`
	CredentialID string `json:"cred_id"`
	SchemaID     string `json:"schema_id"`
	CredDefID    string `json:"cred_def_id"`
	RevRegID     string `json:"rev_reg_id,omitempty"`
	CredRevID    string `json:"cred_rev_id,omitempty"`
	TailsFile    string `json:"tails_file,omitempty"`
	Revealed     bool   `json:"revealed,omitempty"`
}

// LedgerObjects are the ledger artefacts a presentation is built or verified against, keyed by identifier.
type LedgerObjects struct {
	Schemas    map[string]json.RawMessage
	CredDefs   map[string]json.RawMessage
	RevRegDefs map[string]json.RawMessage
	// RevRegs maps a registry id to its state per timestamp.
	RevRegs map[string]map[int64]json.RawMessage
}

// NewLedgerObjects returns empty, ready to fill LedgerObjects.
func NewLedgerObjects() *LedgerObjects {
	return &LedgerObjects{
		Schemas:    map[string]json.RawMessage{},
		CredDefs:   map[string]json.RawMessage{},
		RevRegDefs: map[string]json.RawMessage{},
		RevRegs:    map[string]map[int64]json.RawMessage{},
	}
}

// RevocationStates maps a registry id to the prover's revocation state per timestamp.
type RevocationStates map[string]map[int64]json.RawMessage

// AnonCreds is the anoncreds capability.
type AnonCreds interface {
	// CreateCredentialOffer creates an offer for a credential of credDefID.
	CreateCredentialOffer(ctx context.Context, credDefID string) (json.RawMessage, error)

	// CreateCredentialRequest creates the holder's request for offer, bound to proverDID and linkSecretID.
	CreateCredentialRequest(ctx context.Context, proverDID string, offer, credDef json.RawMessage,
		linkSecretID string) (request, metadata json.RawMessage, err error)

	// CreateCredential issues a credential with values. revRegID and tailsFile are empty for non revocable
	// credential definitions.
	CreateCredential(ctx context.Context, offer, request json.RawMessage, values map[string]string,
		revRegID, tailsFile string) (*IssuedCredential, error)

	// StoreCredential stores an issued credential and returns its id. revRegDef is nil for non revocable
	// credentials.
	StoreCredential(ctx context.Context, credID string, requestMetadata, credential, credDef,
		revRegDef json.RawMessage) (string, error)

	// SelectCredentials picks one stored credential per referent of a presentation request.
	SelectCredentials(ctx context.Context, request json.RawMessage) (map[string]CredentialInfo, error)

	// CreatePresentation creates a presentation for request from the selected credentials.
	CreatePresentation(ctx context.Context, request json.RawMessage, selected map[string]CredentialInfo,
		linkSecretID string, objects *LedgerObjects, states RevocationStates) (json.RawMessage, error)

	// VerifyPresentation verifies presentation against request. It returns false, not an error, for a
	// presentation that does not verify.
	VerifyPresentation(ctx context.Context, request, presentation json.RawMessage,
		objects *LedgerObjects) (bool, error)

	// CreateOrUpdateRevocationState computes the prover's witness for credRevID at timestamp.
	CreateOrUpdateRevocationState(ctx context.Context, tailsFile string, revRegDef, revRegDelta json.RawMessage,
		timestamp int64, credRevID string) (json.RawMessage, error)

	// RevokeCredential revokes credRevID in revRegID and returns the registry delta to publish.
	RevokeCredential(ctx context.Context, tailsFile, revRegID, credRevID string) (json.RawMessage, error)
}
