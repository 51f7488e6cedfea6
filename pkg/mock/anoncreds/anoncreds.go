/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package anoncreds is an in-memory anoncreds.AnonCreds for tests. Artefacts are plain JSON documents with the
// fields the protocols read; nothing is signed.
package anoncreds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
)

// Offer is the offer document.
type Offer struct {
	SchemaID  string `json:"schema_id"`
	CredDefID string `json:"cred_def_id"`
	Nonce     string `json:"nonce"`
}

// Request is the credential request document.
type Request struct {
	ProverDID string `json:"prover_did"`
	CredDefID string `json:"cred_def_id"`
	Nonce     string `json:"nonce"`
}

// Credential is the credential document.
type Credential struct {
	SchemaID  string                            `json:"schema_id"`
	CredDefID string                            `json:"cred_def_id"`
	RevRegID  string                            `json:"rev_reg_id,omitempty"`
	CredRevID string                            `json:"cred_rev_id,omitempty"`
	Values    map[string]anoncreds.RevealedAttr `json:"values"`
}

// AttrInfo is a requested attribute of a presentation request.
type AttrInfo struct {
	Name string `json:"name"`
}

// PresentationRequest is the presentation request document.
type PresentationRequest struct {
	Nonce               string              `json:"nonce"`
	Name                string              `json:"name,omitempty"`
	RequestedAttributes map[string]AttrInfo `json:"requested_attributes"`
	NonRevoked          *NonRevoked         `json:"non_revoked,omitempty"`
}

// NonRevoked is the interval a presentation request asks non revocation for.
type NonRevoked struct {
	From int64 `json:"from,omitempty"`
	To   int64 `json:"to,omitempty"`
}

// Presentation is the presentation document.
type Presentation struct {
	Nonce          string                 `json:"nonce"`
	Identifiers    []anoncreds.Identifier `json:"identifiers"`
	RequestedProof RequestedProof         `json:"requested_proof"`
}

// RequestedProof holds the revealed attributes of a presentation.
type RequestedProof struct {
	RevealedAttrs map[string]anoncreds.RevealedAttr `json:"revealed_attrs"`
}

// AnonCreds keeps issued and stored credentials in memory. Errors set on the Err* fields are returned by the
// matching call.
type AnonCreds struct {
	ErrCreateOffer        error
	ErrCreateRequest      error
	ErrCreateCredential   error
	ErrStoreCredential    error
	ErrCreatePresentation error
	ErrVerify             error
	ErrRevoke             error

	mu       sync.Mutex
	stored   map[string]Credential
	revIndex map[string]int
	revoked  map[string][]string
}

// New returns an empty AnonCreds.
func New() *AnonCreds {
	return &AnonCreds{
		stored:   map[string]Credential{},
		revIndex: map[string]int{},
		revoked:  map[string][]string{},
	}
}

// SchemaIDOf is the schema id offers of credDefID carry.
func SchemaIDOf(credDefID string) string {
	return credDefID + ":schema"
}

// CreateCredentialOffer implements anoncreds.AnonCreds.
func (a *AnonCreds) CreateCredentialOffer(_ context.Context, credDefID string) (json.RawMessage, error) {
	if a.ErrCreateOffer != nil {
		return nil, a.ErrCreateOffer
	}

	return json.Marshal(Offer{SchemaID: SchemaIDOf(credDefID), CredDefID: credDefID, Nonce: uuid.New().String()})
}

// CreateCredentialRequest implements anoncreds.AnonCreds.
func (a *AnonCreds) CreateCredentialRequest(_ context.Context, proverDID string, offer, _ json.RawMessage,
	linkSecretID string) (json.RawMessage, json.RawMessage, error) {
	if a.ErrCreateRequest != nil {
		return nil, nil, a.ErrCreateRequest
	}

	var o Offer
	if err := json.Unmarshal(offer, &o); err != nil {
		return nil, nil, fmt.Errorf("unmarshal offer: %w", err)
	}

	req, err := json.Marshal(Request{ProverDID: proverDID, CredDefID: o.CredDefID, Nonce: o.Nonce})
	if err != nil {
		return nil, nil, err
	}

	meta, err := json.Marshal(map[string]string{"link_secret_name": linkSecretID, "nonce": o.Nonce})
	if err != nil {
		return nil, nil, err
	}

	return req, meta, nil
}

// CreateCredential implements anoncreds.AnonCreds. Credentials of a registry get consecutive revocation ids
// starting at 1.
func (a *AnonCreds) CreateCredential(_ context.Context, offer, request json.RawMessage, values map[string]string,
	revRegID, _ string) (*anoncreds.IssuedCredential, error) {
	if a.ErrCreateCredential != nil {
		return nil, a.ErrCreateCredential
	}

	var o Offer
	if err := json.Unmarshal(offer, &o); err != nil {
		return nil, fmt.Errorf("unmarshal offer: %w", err)
	}

	var r Request
	if err := json.Unmarshal(request, &r); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	if r.Nonce != o.Nonce {
		return nil, errors.New("request does not answer the offer")
	}

	cred := Credential{
		SchemaID:  o.SchemaID,
		CredDefID: o.CredDefID,
		RevRegID:  revRegID,
		Values:    map[string]anoncreds.RevealedAttr{},
	}

	for name, raw := range values {
		cred.Values[name] = anoncreds.RevealedAttr{Raw: raw, Encoded: anoncreds.EncodeValue(raw)}
	}

	issued := &anoncreds.IssuedCredential{}

	if revRegID != "" {
		a.mu.Lock()
		a.revIndex[revRegID]++
		cred.CredRevID = strconv.Itoa(a.revIndex[revRegID])
		issued.RevRegDelta = a.delta(revRegID)
		a.mu.Unlock()

		issued.CredRevID = cred.CredRevID
	}

	b, err := json.Marshal(cred)
	if err != nil {
		return nil, err
	}

	issued.Credential = b

	return issued, nil
}

// StoreCredential implements anoncreds.AnonCreds.
func (a *AnonCreds) StoreCredential(_ context.Context, credID string, _, credential, _,
	_ json.RawMessage) (string, error) {
	if a.ErrStoreCredential != nil {
		return "", a.ErrStoreCredential
	}

	var cred Credential
	if err := json.Unmarshal(credential, &cred); err != nil {
		return "", fmt.Errorf("unmarshal credential: %w", err)
	}

	if credID == "" {
		credID = uuid.New().String()
	}

	a.mu.Lock()
	a.stored[credID] = cred
	a.mu.Unlock()

	return credID, nil
}

// Credential returns a stored credential.
func (a *AnonCreds) Credential(credID string) (Credential, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred, ok := a.stored[credID]

	return cred, ok
}

// SelectCredentials implements anoncreds.AnonCreds. It picks, per referent, the stored credential with the
// smallest id holding the requested attribute.
func (a *AnonCreds) SelectCredentials(_ context.Context, request json.RawMessage) (map[string]anoncreds.CredentialInfo,
	error) {
	var req PresentationRequest
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("unmarshal presentation request: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.stored))
	for id := range a.stored {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	selected := map[string]anoncreds.CredentialInfo{}

	for referent, attr := range req.RequestedAttributes {
		for _, id := range ids {
			cred := a.stored[id]
			if _, ok := cred.Values[attr.Name]; !ok {
				continue
			}

			selected[referent] = anoncreds.CredentialInfo{
				Referent:     referent,
				CredentialID: id,
				SchemaID:     cred.SchemaID,
				CredDefID:    cred.CredDefID,
				RevRegID:     cred.RevRegID,
				CredRevID:    cred.CredRevID,
				Revealed:     true,
			}

			break
		}

		if _, ok := selected[referent]; !ok {
			return nil, fmt.Errorf("no credential for referent %s", referent)
		}
	}

	return selected, nil
}

// CreatePresentation implements anoncreds.AnonCreds. Revocable credentials take the timestamp of the first
// revocation state given for their registry.
func (a *AnonCreds) CreatePresentation(_ context.Context, request json.RawMessage,
	selected map[string]anoncreds.CredentialInfo, _ string, _ *anoncreds.LedgerObjects,
	states anoncreds.RevocationStates) (json.RawMessage, error) {
	if a.ErrCreatePresentation != nil {
		return nil, a.ErrCreatePresentation
	}

	var req PresentationRequest
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("unmarshal presentation request: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pres := Presentation{
		Nonce:          req.Nonce,
		RequestedProof: RequestedProof{RevealedAttrs: map[string]anoncreds.RevealedAttr{}},
	}

	referents := make([]string, 0, len(selected))
	for referent := range selected {
		referents = append(referents, referent)
	}

	sort.Strings(referents)

	seen := map[string]bool{}

	for _, referent := range referents {
		info := selected[referent]

		cred, ok := a.stored[info.CredentialID]
		if !ok {
			return nil, fmt.Errorf("credential %s not found", info.CredentialID)
		}

		pres.RequestedProof.RevealedAttrs[referent] = cred.Values[req.RequestedAttributes[referent].Name]

		if seen[info.CredentialID] {
			continue
		}

		seen[info.CredentialID] = true

		id := anoncreds.Identifier{SchemaID: cred.SchemaID, CredDefID: cred.CredDefID, RevRegID: cred.RevRegID}

		for ts := range states[cred.RevRegID] {
			id.Timestamp = ts

			break
		}

		pres.Identifiers = append(pres.Identifiers, id)
	}

	return json.Marshal(pres)
}

// VerifyPresentation implements anoncreds.AnonCreds: the nonce must match, every requested attribute must be
// revealed and every credential definition must be among objects.
func (a *AnonCreds) VerifyPresentation(_ context.Context, request, presentation json.RawMessage,
	objects *anoncreds.LedgerObjects) (bool, error) {
	if a.ErrVerify != nil {
		return false, a.ErrVerify
	}

	var req PresentationRequest
	if err := json.Unmarshal(request, &req); err != nil {
		return false, fmt.Errorf("unmarshal presentation request: %w", err)
	}

	var pres Presentation
	if err := json.Unmarshal(presentation, &pres); err != nil {
		return false, fmt.Errorf("unmarshal presentation: %w", err)
	}

	if pres.Nonce != req.Nonce {
		return false, nil
	}

	for referent := range req.RequestedAttributes {
		if _, ok := pres.RequestedProof.RevealedAttrs[referent]; !ok {
			return false, nil
		}
	}

	for _, id := range pres.Identifiers {
		if _, ok := objects.CredDefs[id.CredDefID]; !ok {
			return false, nil
		}

		if id.RevRegID != "" && revoked(objects.RevRegs[id.RevRegID][id.Timestamp]) {
			return false, nil
		}
	}

	return true, nil
}

// revoked tells whether a registry state revokes any credential.
func revoked(state json.RawMessage) bool {
	var delta struct {
		Value struct {
			Revoked []string `json:"revoked"`
		} `json:"value"`
	}

	if len(state) == 0 || json.Unmarshal(state, &delta) != nil {
		return false
	}

	return len(delta.Value.Revoked) > 0
}

// CreateOrUpdateRevocationState implements anoncreds.AnonCreds.
func (a *AnonCreds) CreateOrUpdateRevocationState(_ context.Context, _ string, _, revRegDelta json.RawMessage,
	timestamp int64, credRevID string) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{
		"timestamp":   timestamp,
		"cred_rev_id": credRevID,
		"delta":       revRegDelta,
	})
}

// RevokeCredential implements anoncreds.AnonCreds. The returned delta is cumulative.
func (a *AnonCreds) RevokeCredential(_ context.Context, _, revRegID, credRevID string) (json.RawMessage, error) {
	if a.ErrRevoke != nil {
		return nil, a.ErrRevoke
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.revoked[revRegID] = append(a.revoked[revRegID], credRevID)

	return a.delta(revRegID), nil
}

func (a *AnonCreds) delta(revRegID string) json.RawMessage {
	issued := make([]string, 0, a.revIndex[revRegID])
	for i := 1; i <= a.revIndex[revRegID]; i++ {
		issued = append(issued, strconv.Itoa(i))
	}

	revoked := append([]string{}, a.revoked[revRegID]...)

	b, _ := json.Marshal(map[string]interface{}{ // nolint: errcheck
		"value": map[string]interface{}{"issued": issued, "revoked": revoked},
	})

	return b
}
