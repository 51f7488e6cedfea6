/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
)

// Config of the issue-credential protocol.
type Config struct {
	// AutoIssue makes the issuer answer a request with the credential without waiting for Issue.
	AutoIssue bool
	Policy    problemreport.Policy
}

// protocol implements engine.Protocol[State].
type protocol struct {
	anoncreds anoncreds.AnonCreds
	read      ledger.Read
	write     ledger.Write
	config    Config
}

// Name implements engine.Protocol.
func (p *protocol) Name() string { return Name }

// Timeout implements engine.Protocol.
func (p *protocol) Timeout(current State, thid string) State {
	if current.Terminal() {
		return current
	}

	return &Finished{Status: StatusFailed, Report: p.config.Policy.Timeout(thid)}
}

// Transition implements engine.Protocol.
func (p *protocol) Transition(ctx context.Context, current State, in engine.Input) (State, []service.DIDCommMsgMap,
	error) {
	if pr, ok := in.(*ProblemReport); ok && !current.Terminal() && !initial(current) {
		report, out := p.config.Policy.Remote(pr.ProblemReport)

		return &Finished{Status: StatusFailed, Report: report}, out, nil
	}

	switch s := current.(type) {
	case *IssuerInitial:
		switch msg := in.(type) {
		case *SendOffer:
			return p.sendOffer(ctx, msg.ThreadID, "", msg)
		case *ProposeCredential:
			return &IssuerProposalReceived{Proposal: msg}, nil, nil
		}
	case *IssuerProposalReceived:
		switch msg := in.(type) {
		case *SendOffer:
			return p.sendOffer(ctx, "", threadOf(s.Proposal.ID, &s.Proposal.Decorators), msg)
		case *Decline:
			report, out := p.config.Policy.Declined(threadOf(s.Proposal.ID, &s.Proposal.Decorators), msg.Comment)

			return &Finished{Status: StatusDeclined, Report: report}, out, nil
		}
	case *IssuerOfferSent:
		switch msg := in.(type) {
		case *SendOffer:
			return p.sendOffer(ctx, "", threadOf(s.Offer.ID, &s.Offer.Decorators), msg)
		case *ProposeCredential:
			return &IssuerProposalReceived{Proposal: msg}, nil, nil
		case *RequestCredential:
			return p.handleRequest(ctx, s, msg)
		}
	case *IssuerRequestReceived:
		if _, ok := in.(*Issue); ok {
			return p.issue(ctx, s)
		}
	case *IssuerCredentialSent:
		if _, ok := in.(*Ack); ok {
			return &Finished{Status: StatusSuccess, Revocation: s.Revocation}, nil, nil
		}
	case *HolderInitial:
		switch msg := in.(type) {
		case *SendProposal:
			return p.sendProposal(msg.ThreadID, "", msg)
		case *OfferCredential:
			return p.handleOffer(ctx, msg)
		}
	case *HolderProposalSent:
		if msg, ok := in.(*OfferCredential); ok {
			return p.handleOffer(ctx, msg)
		}
	case *HolderOfferReceived:
		thid := threadOf(s.Offer.ID, &s.Offer.Decorators)

		switch msg := in.(type) {
		case *SendRequest:
			return p.sendRequest(ctx, s, msg)
		case *SendProposal:
			return p.sendProposal("", thid, msg)
		case *Decline:
			report, out := p.config.Policy.Declined(thid, msg.Comment)

			return &Finished{Status: StatusDeclined, Report: report}, out, nil
		}
	case *HolderRequestSent:
		if msg, ok := in.(*IssueCredential); ok {
			return p.handleCredential(ctx, s, msg)
		}
	}

	return nil, nil, engine.NewUnexpected(Name, current, in)
}

// sendOffer creates an offer. A new thread is named by newThread; a thread already running is continued
// with thid.
func (p *protocol) sendOffer(ctx context.Context, newThread, thid string, cmd *SendOffer) (State,
	[]service.DIDCommMsgMap, error) {
	offer := &OfferCredential{
		Type:              OfferCredentialMsgType,
		ID:                uuid.New().String(),
		Comment:           cmd.Comment,
		CredentialPreview: preview(cmd.Attributes),
	}

	if thid == "" {
		if newThread != "" {
			offer.ID = newThread
		}

		thid = offer.ID
	} else {
		offer.Decorators = decorator.OnThread(thid, "")
	}

	if _, err := p.read.GetCredDef(ctx, cmd.CredDefID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			report, out := p.config.Policy.Local(thid, problemreport.CodeLedgerLookupFailed,
				fmt.Errorf("credential definition %s not found on ledger", cmd.CredDefID))

			return &Finished{Status: StatusFailed, Report: report}, out, nil
		}

		return nil, nil, fmt.Errorf("get credential definition %s: %w", cmd.CredDefID, err)
	}

	offerJSON, err := p.anoncreds.CreateCredentialOffer(ctx, cmd.CredDefID)
	if err != nil {
		return nil, nil, fmt.Errorf("create credential offer: %w", err)
	}

	offer.OffersAttach = []decorator.Attachment{decorator.NewBase64Attachment(offerAttachID, offerJSON)}

	return &IssuerOfferSent{
		Offer:     offer,
		OfferJSON: offerJSON,
		Info: OfferInfo{
			CredDefID: cmd.CredDefID,
			Values:    maps.Clone(cmd.Attributes),
			RevRegID:  cmd.RevRegID,
			TailsFile: cmd.TailsFile,
		},
	}, engine.Outbound(offer), nil
}

func (p *protocol) handleRequest(ctx context.Context, s *IssuerOfferSent, msg *RequestCredential) (State,
	[]service.DIDCommMsgMap, error) {
	request, err := decorator.FindAttachment(msg.RequestsAttach, "")
	if err != nil {
		report, out := p.config.Policy.Local(msg.ThreadID(), problemreport.CodeInvalidMessage,
			fmt.Errorf("credential request: %w", err))

		return &Finished{Status: StatusFailed, Report: report}, out, nil
	}

	received := &IssuerRequestReceived{Offer: s.Offer, OfferJSON: s.OfferJSON, Request: request, Info: s.Info}

	if !p.config.AutoIssue {
		return received, nil, nil
	}

	return p.issue(ctx, received)
}

func (p *protocol) issue(ctx context.Context, s *IssuerRequestReceived) (State, []service.DIDCommMsgMap, error) {
	thid := threadOf(s.Offer.ID, &s.Offer.Decorators)

	issued, err := p.anoncreds.CreateCredential(ctx, s.OfferJSON, s.Request, s.Info.Values, s.Info.RevRegID,
		s.Info.TailsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("create credential: %w", err)
	}

	var rev *RevocationInfo

	if issued.CredRevID != "" {
		if p.write == nil {
			return nil, nil, errors.New("revocable credential issued without a ledger writer")
		}

		if _, err = p.write.PublishRevRegDelta(ctx, s.Info.RevRegID, issued.RevRegDelta); err != nil {
			return nil, nil, fmt.Errorf("publish registry delta: %w", err)
		}

		rev = &RevocationInfo{CredRevID: issued.CredRevID, RevRegID: s.Info.RevRegID, TailsFile: s.Info.TailsFile}
	}

	msg := &IssueCredential{
		Type:              IssueCredentialMsgType,
		ID:                uuid.New().String(),
		CredentialsAttach: []decorator.Attachment{decorator.NewBase64Attachment(credentialAttachID, issued.Credential)},
		Decorators:        decorator.OnThread(thid, ""),
	}
	msg.PleaseAck = &decorator.PleaseAck{On: []string{decorator.AckOnOutcome}}

	return &IssuerCredentialSent{Credential: msg, Revocation: rev}, engine.Outbound(msg), nil
}

func (p *protocol) sendProposal(newThread, thid string, cmd *SendProposal) (State, []service.DIDCommMsgMap, error) {
	pc := preview(cmd.Attributes)

	proposal := &ProposeCredential{
		Type:               ProposeCredentialMsgType,
		ID:                 uuid.New().String(),
		Comment:            cmd.Comment,
		CredentialProposal: &pc,
		SchemaID:           cmd.SchemaID,
		CredDefID:          cmd.CredDefID,
	}

	switch {
	case thid != "":
		proposal.Decorators = decorator.OnThread(thid, "")
	case newThread != "":
		proposal.ID = newThread
	}

	return &HolderProposalSent{Proposal: proposal}, engine.Outbound(proposal), nil
}

func (p *protocol) handleOffer(ctx context.Context, msg *OfferCredential) (State, []service.DIDCommMsgMap, error) {
	thid := threadOf(msg.ID, &msg.Decorators)

	offerJSON, err := decorator.FindAttachment(msg.OffersAttach, "")
	if err != nil {
		return p.invalid(thid, fmt.Errorf("credential offer: %w", err))
	}

	credDefID, err := anoncreds.CredDefID(offerJSON)
	if err != nil {
		return p.invalid(thid, err)
	}

	credDef, err := p.read.GetCredDef(ctx, credDefID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			report, out := p.config.Policy.Local(thid, problemreport.CodeLedgerLookupFailed,
				fmt.Errorf("credential definition %s not found on ledger", credDefID))

			return &Finished{Status: StatusFailed, Report: report}, out, nil
		}

		return nil, nil, fmt.Errorf("get credential definition %s: %w", credDefID, err)
	}

	return &HolderOfferReceived{
		Offer:     msg,
		OfferJSON: offerJSON,
		CredDefID: credDefID,
		CredDef:   credDef,
		Revocable: anoncreds.Revocable(credDef),
	}, nil, nil
}

func (p *protocol) sendRequest(ctx context.Context, s *HolderOfferReceived, cmd *SendRequest) (State,
	[]service.DIDCommMsgMap, error) {
	request, metadata, err := p.anoncreds.CreateCredentialRequest(ctx, cmd.ProverDID, s.OfferJSON, s.CredDef,
		anoncreds.LinkSecretID)
	if err != nil {
		return nil, nil, fmt.Errorf("create credential request: %w", err)
	}

	msg := &RequestCredential{
		Type:           RequestCredentialMsgType,
		ID:             uuid.New().String(),
		RequestsAttach: []decorator.Attachment{decorator.NewBase64Attachment(requestAttachID, request)},
		Decorators:     decorator.OnThread(threadOf(s.Offer.ID, &s.Offer.Decorators), ""),
	}

	return &HolderRequestSent{
		Offer:           s.Offer,
		OfferJSON:       s.OfferJSON,
		Request:         request,
		RequestMetadata: metadata,
		CredDefID:       s.CredDefID,
		CredDef:         s.CredDef,
	}, engine.Outbound(msg), nil
}

func (p *protocol) handleCredential(ctx context.Context, s *HolderRequestSent, msg *IssueCredential) (State,
	[]service.DIDCommMsgMap, error) {
	thid := threadOf(s.Offer.ID, &s.Offer.Decorators)

	credential, err := decorator.FindAttachment(msg.CredentialsAttach, "")
	if err != nil {
		return p.invalid(thid, fmt.Errorf("credential: %w", err))
	}

	if !json.Valid(credential) {
		return p.invalid(thid, errors.New("credential is not a JSON document"))
	}

	revRegID, err := anoncreds.RevRegID(credential)
	if err != nil {
		return p.invalid(thid, err)
	}

	var (
		revRegDef json.RawMessage
		credRevID string
	)

	if revRegID != "" {
		if credRevID, err = anoncreds.CredRevID(credential); err != nil {
			return p.invalid(thid, err)
		}

		revRegDef, err = p.read.GetRevRegDef(ctx, revRegID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				report, out := p.config.Policy.Local(thid, problemreport.CodeLedgerLookupFailed,
					fmt.Errorf("revocation registry %s not found on ledger", revRegID))

				return &Finished{Status: StatusFailed, Report: report}, out, nil
			}

			return nil, nil, fmt.Errorf("get revocation registry definition %s: %w", revRegID, err)
		}
	}

	credID, err := p.anoncreds.StoreCredential(ctx, "", s.RequestMetadata, credential, s.CredDef, revRegDef)
	if err != nil {
		return nil, nil, fmt.Errorf("store credential: %w", err)
	}

	finished := &Finished{
		Status:       StatusSuccess,
		CredID:       credID,
		Credential:   credential,
		RevRegID:     revRegID,
		CredRevID:    credRevID,
		AckRequested: msg.AckRequested(),
	}

	if !finished.AckRequested {
		return finished, nil, nil
	}

	return finished, engine.Outbound(model.NewAck(AckMsgType, thid, model.AckStatusOK)), nil
}

func (p *protocol) invalid(thid string, err error) (State, []service.DIDCommMsgMap, error) {
	report, out := p.config.Policy.Local(thid, problemreport.CodeInvalidMessage, err)

	return &Finished{Status: StatusFailed, Report: report}, out, nil
}

func initial(s State) bool {
	switch s.(type) {
	case *IssuerInitial, *HolderInitial:
		return true
	}

	return false
}

func sortedKeys(m map[string]string) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)

	return keys
}
