/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"encoding/json"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
)

const (
	stateNameStart              = "start"
	stateNameProposalReceived   = "proposal-received"
	stateNameOfferSent          = "offer-sent"
	stateNameRequestReceived    = "request-received"
	stateNameCredentialIssued   = "credential-issued"
	stateNameProposalSent       = "proposal-sent"
	stateNameOfferReceived      = "offer-received"
	stateNameRequestSent        = "request-sent"
	stateNameDone               = "done"
	stateNameAbandoned          = "abandoned"
	stateNameDeclined           = "declined"
	propertyCredID              = "credID"
	propertyRevRegID            = "revRegID"
	propertyCredRevID           = "credRevID"
	propertyStatus              = "status"
	propertyAckRequested        = "ackRequested"
	propertyProblemReportCode   = "code"
	propertyCredDefID           = "credDefID"
	propertyProposedAttrs       = "proposedAttributes"
	propertyOfferedCredDefID    = "offeredCredDefID"
	propertyOfferedRevocability = "revocable"
)

// Status of a finished thread.
type Status string

// Statuses.
const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusDeclined Status = "declined"
)

// State is an issue-credential state. Issuer and holder have distinct variants; Finished is shared.
type State interface {
	Name() string
	Terminal() bool
	issueCredentialState()
}

// OfferInfo is what the issuer needs to issue the credential it offered.
type OfferInfo struct {
	CredDefID string            `json:"cred_def_id"`
	Values    map[string]string `json:"values"`
	RevRegID  string            `json:"rev_reg_id,omitempty"`
	TailsFile string            `json:"tails_file,omitempty"`
}

// RevocationInfo locates an issued credential in its revocation registry.
type RevocationInfo struct {
	CredRevID string `json:"cred_rev_id"`
	RevRegID  string `json:"rev_reg_id"`
	TailsFile string `json:"tails_file,omitempty"`
}

// IssuerInitial is the issuer before anything happened on the thread.
type IssuerInitial struct{}

// IssuerProposalReceived holds a holder's proposal the issuer did not answer yet.
type IssuerProposalReceived struct {
	Proposal *ProposeCredential
}

// IssuerOfferSent waits for the holder's request.
type IssuerOfferSent struct {
	Offer *OfferCredential
	// OfferJSON is the anoncreds offer.
	OfferJSON json.RawMessage
	Info      OfferInfo
}

// IssuerRequestReceived holds a request waiting for Issue.
type IssuerRequestReceived struct {
	Offer     *OfferCredential
	OfferJSON json.RawMessage
	Request   json.RawMessage
	Info      OfferInfo
}

// IssuerCredentialSent waits for the holder's ack.
type IssuerCredentialSent struct {
	Credential *IssueCredential
	Revocation *RevocationInfo
}

// HolderInitial is the holder before anything happened on the thread.
type HolderInitial struct{}

// HolderProposalSent waits for an offer.
type HolderProposalSent struct {
	Proposal *ProposeCredential
}

// HolderOfferReceived holds an offer the holder did not answer yet.
type HolderOfferReceived struct {
	Offer     *OfferCredential
	OfferJSON json.RawMessage
	CredDefID string
	CredDef   json.RawMessage
	Revocable bool
}

// HolderRequestSent waits for the credential.
type HolderRequestSent struct {
	Offer           *OfferCredential
	OfferJSON       json.RawMessage
	Request         json.RawMessage
	RequestMetadata json.RawMessage
	CredDefID       string
	CredDef         json.RawMessage
}

// Finished is the terminal state of both roles.
type Finished struct {
	Status Status
	Report *model.ProblemReport
	// Holder side.
	CredID       string
	Credential   json.RawMessage
	RevRegID     string
	CredRevID    string
	AckRequested bool
	// Issuer side, set for revocable credentials.
	Revocation *RevocationInfo
}

// Name implements engine.State.
func (*IssuerInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*IssuerInitial) Terminal() bool { return false }

func (*IssuerInitial) issueCredentialState() {}

// Name implements engine.State.
func (*IssuerProposalReceived) Name() string { return stateNameProposalReceived }

// Terminal implements engine.State.
func (*IssuerProposalReceived) Terminal() bool { return false }

// Properties exposes the proposed credential.
func (s *IssuerProposalReceived) Properties() map[string]interface{} {
	props := map[string]interface{}{propertyCredDefID: s.Proposal.CredDefID}

	if s.Proposal.CredentialProposal != nil {
		attrs := map[string]string{}
		for _, a := range s.Proposal.CredentialProposal.Attributes {
			attrs[a.Name] = a.Value
		}

		props[propertyProposedAttrs] = attrs
	}

	return props
}

func (*IssuerProposalReceived) issueCredentialState() {}

// Name implements engine.State.
func (*IssuerOfferSent) Name() string { return stateNameOfferSent }

// Terminal implements engine.State.
func (*IssuerOfferSent) Terminal() bool { return false }

func (*IssuerOfferSent) issueCredentialState() {}

// Name implements engine.State.
func (*IssuerRequestReceived) Name() string { return stateNameRequestReceived }

// Terminal implements engine.State.
func (*IssuerRequestReceived) Terminal() bool { return false }

func (*IssuerRequestReceived) issueCredentialState() {}

// Name implements engine.State.
func (*IssuerCredentialSent) Name() string { return stateNameCredentialIssued }

// Terminal implements engine.State.
func (*IssuerCredentialSent) Terminal() bool { return false }

func (*IssuerCredentialSent) issueCredentialState() {}

// Name implements engine.State.
func (*HolderInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*HolderInitial) Terminal() bool { return false }

func (*HolderInitial) issueCredentialState() {}

// Name implements engine.State.
func (*HolderProposalSent) Name() string { return stateNameProposalSent }

// Terminal implements engine.State.
func (*HolderProposalSent) Terminal() bool { return false }

func (*HolderProposalSent) issueCredentialState() {}

// Name implements engine.State.
func (*HolderOfferReceived) Name() string { return stateNameOfferReceived }

// Terminal implements engine.State.
func (*HolderOfferReceived) Terminal() bool { return false }

// Properties exposes the offer so the host can decide whether to request the credential.
func (s *HolderOfferReceived) Properties() map[string]interface{} {
	attrs := map[string]string{}
	for _, a := range s.Offer.CredentialPreview.Attributes {
		attrs[a.Name] = a.Value
	}

	return map[string]interface{}{
		propertyOfferedCredDefID:    s.CredDefID,
		propertyOfferedRevocability: s.Revocable,
		propertyProposedAttrs:       attrs,
	}
}

func (*HolderOfferReceived) issueCredentialState() {}

// Name implements engine.State.
func (*HolderRequestSent) Name() string { return stateNameRequestSent }

// Terminal implements engine.State.
func (*HolderRequestSent) Terminal() bool { return false }

func (*HolderRequestSent) issueCredentialState() {}

// Name implements engine.State.
func (s *Finished) Name() string {
	switch s.Status {
	case StatusSuccess:
		return stateNameDone
	case StatusDeclined:
		return stateNameDeclined
	default:
		return stateNameAbandoned
	}
}

// Terminal implements engine.State.
func (*Finished) Terminal() bool { return true }

// ProblemReport returns the report a failed or declined thread ended with.
func (s *Finished) ProblemReport() *model.ProblemReport { return s.Report }

// Properties exposes the outcome of the thread.
func (s *Finished) Properties() map[string]interface{} {
	props := map[string]interface{}{propertyStatus: string(s.Status)}

	if s.CredID != "" {
		props[propertyCredID] = s.CredID
		props[propertyAckRequested] = s.AckRequested
	}

	if s.RevRegID != "" {
		props[propertyRevRegID] = s.RevRegID
		props[propertyCredRevID] = s.CredRevID
	}

	if s.Revocation != nil {
		props[propertyRevRegID] = s.Revocation.RevRegID
		props[propertyCredRevID] = s.Revocation.CredRevID
	}

	if s.Report != nil {
		props[propertyProblemReportCode] = s.Report.Code()
	}

	return props
}

func (*Finished) issueCredentialState() {}
