/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package legacydid implements the DID document shape exchanged by the Aries connection protocol
// (RFC 0160) and the key helpers needed to read its recipient keys.
package legacydid

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// Context is the JSON-LD context of a legacy DID document.
	Context = "https://w3id.org/did/v1"

	// Ed25519VerificationKey2018 is the public key type used by legacy documents.
	Ed25519VerificationKey2018 = "Ed25519VerificationKey2018"
	// Ed25519SignatureAuthentication2018 is the authentication type used by legacy documents.
	Ed25519SignatureAuthentication2018 = "Ed25519SignatureAuthentication2018"

	// IndyAgentServiceType is the non-standard service type used by legacy agents.
	IndyAgentServiceType = "IndyAgent"
	// DIDCommServiceType is the standard DIDComm service type.
	DIDCommServiceType = "did-communication"

	didSovPrefix = "did:sov:"
)

// ErrInvalidDoc is returned when a DID document fails validation.
var ErrInvalidDoc = errors.New("invalid DID document")

// PublicKey is a key entry of the document.
type PublicKey struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

// Authentication references a public key used for authentication.
type Authentication struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey"`
}

// Service is a DIDComm service block.
type Service struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Priority        int      `json:"priority,omitempty"`
	RecipientKeys   []string `json:"recipientKeys"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
}

// Doc is a legacy DID document.
type Doc struct {
	Context        string           `json:"@context"`
	ID             string           `json:"id"`
	PublicKey      []PublicKey      `json:"publicKey,omitempty"`
	Authentication []Authentication `json:"authentication,omitempty"`
	Service        []Service        `json:"service,omitempty"`
}

// New builds a document for did with a single ed25519 verkey and one IndyAgent service block.
func New(did, verKey, endpoint string, routingKeys []string) *Doc {
	qualified := Qualify(did)
	keyID := qualified + "#1"

	return &Doc{
		Context: Context,
		ID:      qualified,
		PublicKey: []PublicKey{{
			ID:              keyID,
			Type:            Ed25519VerificationKey2018,
			Controller:      qualified,
			PublicKeyBase58: verKey,
		}},
		Authentication: []Authentication{{
			Type:      Ed25519SignatureAuthentication2018,
			PublicKey: keyID,
		}},
		Service: []Service{{
			ID:              qualified + ";indy",
			Type:            IndyAgentServiceType,
			RecipientKeys:   []string{verKey},
			RoutingKeys:     routingKeys,
			ServiceEndpoint: endpoint,
		}},
	}
}

// Qualify prefixes an unqualified (indy style) DID with did:sov.
func Qualify(did string) string {
	if strings.HasPrefix(did, "did:") {
		return did
	}

	return didSovPrefix + did
}

// Validate checks that the document is usable as a connection counterparty document: it must have an id and
// at least one DIDComm service with an endpoint and decodable recipient keys.
func (d *Doc) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: missing document", ErrInvalidDoc)
	}

	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDoc)
	}

	svc, ok := d.DIDCommService()
	if !ok {
		return fmt.Errorf("%w: no DIDComm service", ErrInvalidDoc)
	}

	if svc.ServiceEndpoint == "" {
		return fmt.Errorf("%w: service %s has no endpoint", ErrInvalidDoc, svc.ID)
	}

	if len(svc.RecipientKeys) == 0 {
		return fmt.Errorf("%w: service %s has no recipient keys", ErrInvalidDoc, svc.ID)
	}

	for _, k := range svc.RecipientKeys {
		if _, err := d.resolveKey(k); err != nil {
			return fmt.Errorf("%w: recipient key %s: %v", ErrInvalidDoc, k, err)
		}
	}

	return nil
}

// DIDCommService returns the preferred DIDComm service block. Standard did-communication services win over
// IndyAgent ones, and lower priority values win within a type.
func (d *Doc) DIDCommService() (Service, bool) {
	var candidates []Service

	for _, s := range d.Service {
		if s.Type == DIDCommServiceType || s.Type == IndyAgentServiceType {
			candidates = append(candidates, s)
		}
	}

	if len(candidates) == 0 {
		return Service{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Type != candidates[j].Type {
			return candidates[i].Type == DIDCommServiceType
		}

		return candidates[i].Priority < candidates[j].Priority
	})

	return candidates[0], true
}

// RecipientKeys returns the recipient keys of the DIDComm service as raw base58 verkeys.
func (d *Doc) RecipientKeys() ([]string, error) {
	svc, ok := d.DIDCommService()
	if !ok {
		return nil, fmt.Errorf("%w: no DIDComm service", ErrInvalidDoc)
	}

	keys := make([]string, 0, len(svc.RecipientKeys))

	for _, k := range svc.RecipientKeys {
		vk, err := d.resolveKey(k)
		if err != nil {
			return nil, err
		}

		keys = append(keys, vk)
	}

	return keys, nil
}

// resolveKey turns a recipient key reference (raw base58, did:key or a reference to a publicKey entry) into a
// base58 verkey.
func (d *Doc) resolveKey(ref string) (string, error) {
	if strings.Contains(ref, "#") && !strings.HasPrefix(ref, "did:key:") {
		for _, pk := range d.PublicKey {
			if pk.ID == ref || strings.HasSuffix(ref, pk.ID) {
				return pk.PublicKeyBase58, nil
			}
		}

		return "", fmt.Errorf("key reference %s not found", ref)
	}

	return ToVerKey(ref)
}
