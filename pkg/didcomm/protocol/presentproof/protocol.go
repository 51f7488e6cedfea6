/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
)

// DefaultTimestampTolerance is how far in the future a proof timestamp may lie.
const DefaultTimestampTolerance = 100 * time.Second

// Config configures the present-proof protocol.
type Config struct {
	// AutoPresent makes a prover create and send the presentation for every request it receives.
	AutoPresent bool
	// TimestampTolerance bounds the clock skew accepted on proof timestamps. Zero means
	// DefaultTimestampTolerance.
	TimestampTolerance time.Duration
	// Workers is the number of presentations created concurrently. Zero means one.
	Workers int
	Policy  problemreport.Policy
	// Now is the verifier's clock. Nil means time.Now.
	Now func() time.Time
}

type protocol struct {
	anoncreds anoncreds.AnonCreds
	read      ledger.Read
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
	case *VerifierInitial:
		switch msg := in.(type) {
		case *SendRequest:
			return p.sendRequest(msg.ThreadID, "", msg)
		case *ProposePresentation:
			return &VerifierProposalReceived{Proposal: msg}, nil, nil
		}
	case *VerifierProposalReceived:
		thid := threadOf(s.Proposal.ID, &s.Proposal.Decorators)

		switch msg := in.(type) {
		case *SendRequest:
			return p.sendRequest("", thid, msg)
		case *Decline:
			report, out := p.config.Policy.Declined(thid, msg.Comment)

			return &Finished{Status: StatusDeclined, Report: report}, out, nil
		}
	case *VerifierRequestSent:
		switch msg := in.(type) {
		case *ProposePresentation:
			return &VerifierProposalReceived{Proposal: msg}, nil, nil
		case *Presentation:
			return p.verify(ctx, s, msg)
		}
	case *ProverInitial:
		switch msg := in.(type) {
		case *SendProposal:
			return p.sendProposal(msg.ThreadID, "", msg)
		case *RequestPresentation:
			return p.handleRequest(msg)
		}
	case *ProverProposalSent:
		if msg, ok := in.(*RequestPresentation); ok {
			return p.handleRequest(msg)
		}
	case *ProverRequestReceived:
		thid := threadOf(s.Request.ID, &s.Request.Decorators)

		switch msg := in.(type) {
		case *PresentationResult:
			return p.prepared(thid, s, msg)
		case *SendProposal:
			return p.sendProposal("", thid, msg)
		case *Decline:
			report, out := p.config.Policy.Declined(thid, msg.Comment)

			return &Finished{Status: StatusDeclined, Report: report}, out, nil
		}
	case *ProverPresentationPrepared:
		thid := threadOf(s.Request.ID, &s.Request.Decorators)

		switch msg := in.(type) {
		case *SendPresentation:
			return p.sendPresentation(thid, s, msg)
		case *Decline:
			report, out := p.config.Policy.Declined(thid, msg.Comment)

			return &Finished{Status: StatusDeclined, Report: report}, out, nil
		}
	case *ProverPresentationSent:
		if _, ok := in.(*Ack); ok {
			return &Finished{Status: StatusSuccess}, nil, nil
		}
	}

	return nil, nil, engine.NewUnexpected(Name, current, in)
}

func (p *protocol) sendRequest(newThread, thid string, cmd *SendRequest) (State, []service.DIDCommMsgMap, error) {
	if !json.Valid(cmd.PresentationRequest) {
		return nil, nil, errors.New("presentation request is not a JSON document")
	}

	request := &RequestPresentation{
		Type:    RequestPresentationMsgType,
		ID:      uuid.New().String(),
		Comment: cmd.Comment,
		RequestPresentations: []decorator.Attachment{
			decorator.NewBase64Attachment(requestAttachID, cmd.PresentationRequest),
		},
	}

	switch {
	case thid != "":
		request.Decorators = decorator.OnThread(thid, "")
	case newThread != "":
		request.ID = newThread
	}

	return &VerifierRequestSent{Request: request, RequestJSON: cmd.PresentationRequest}, engine.Outbound(request), nil
}

// verify checks a presentation against the ledger objects it names.
func (p *protocol) verify(ctx context.Context, s *VerifierRequestSent, msg *Presentation) (State,
	[]service.DIDCommMsgMap, error) {
	thid := threadOf(s.Request.ID, &s.Request.Decorators)

	presentation, err := decorator.FindAttachment(msg.Presentations, "")
	if err != nil {
		return p.fail(thid, problemreport.CodeInvalidMessage, fmt.Errorf("presentation: %w", err))
	}

	if !json.Valid(presentation) {
		return p.fail(thid, problemreport.CodeInvalidMessage, errors.New("presentation is not a JSON document"))
	}

	ids, err := anoncreds.Identifiers(presentation)
	if err != nil {
		return p.fail(thid, problemreport.CodeInvalidMessage, err)
	}

	if err = anoncreds.CheckRevealedAttrs(presentation); err != nil {
		return p.fail(thid, problemreport.CodeVerificationFailed, err)
	}

	latest := p.now().Add(p.tolerance()).Unix()
	objects := anoncreds.NewLedgerObjects()

	for _, id := range ids {
		if id.Timestamp > latest {
			return p.fail(thid, problemreport.CodeVerificationFailed,
				fmt.Errorf("timestamp %d of registry %s lies in the future", id.Timestamp, id.RevRegID))
		}

		if err = p.resolve(ctx, objects, id); err != nil {
			return p.lookupFailed(thid, err)
		}
	}

	ok, err := p.anoncreds.VerifyPresentation(ctx, s.RequestJSON, presentation, objects)
	if err != nil {
		return nil, nil, fmt.Errorf("verify presentation: %w", err)
	}

	if !ok {
		return p.fail(thid, problemreport.CodeVerificationFailed, errors.New("presentation does not verify"))
	}

	revealed, err := anoncreds.RevealedAttrs(presentation)
	if err != nil {
		return p.fail(thid, problemreport.CodeInvalidMessage, err)
	}

	return &Finished{
		Status:       StatusSuccess,
		Verified:     true,
		Presentation: presentation,
		Revealed:     revealed,
	}, engine.Outbound(model.NewAck(AckMsgType, thid, model.AckStatusOK)), nil
}

// resolve adds the ledger objects id refers to.
func (p *protocol) resolve(ctx context.Context, objects *anoncreds.LedgerObjects, id anoncreds.Identifier) error {
	if _, ok := objects.Schemas[id.SchemaID]; !ok {
		schema, err := p.read.GetSchema(ctx, id.SchemaID)
		if err != nil {
			return fmt.Errorf("get schema %s: %w", id.SchemaID, err)
		}

		objects.Schemas[id.SchemaID] = schema
	}

	if _, ok := objects.CredDefs[id.CredDefID]; !ok {
		credDef, err := p.read.GetCredDef(ctx, id.CredDefID)
		if err != nil {
			return fmt.Errorf("get credential definition %s: %w", id.CredDefID, err)
		}

		objects.CredDefs[id.CredDefID] = credDef
	}

	if id.RevRegID == "" {
		return nil
	}

	if id.Timestamp == 0 {
		return fmt.Errorf("%w: registry %s without timestamp", anoncreds.ErrMalformed, id.RevRegID)
	}

	if _, ok := objects.RevRegDefs[id.RevRegID]; !ok {
		def, err := p.read.GetRevRegDef(ctx, id.RevRegID)
		if err != nil {
			return fmt.Errorf("get revocation registry definition %s: %w", id.RevRegID, err)
		}

		objects.RevRegDefs[id.RevRegID] = def
		objects.RevRegs[id.RevRegID] = map[int64]json.RawMessage{}
	}

	state, _, err := p.read.GetRevReg(ctx, id.RevRegID, id.Timestamp)
	if err != nil {
		return fmt.Errorf("get revocation registry %s at %d: %w", id.RevRegID, id.Timestamp, err)
	}

	objects.RevRegs[id.RevRegID][id.Timestamp] = state

	return nil
}

func (p *protocol) sendProposal(newThread, thid string, cmd *SendProposal) (State, []service.DIDCommMsgMap, error) {
	preview := cmd.Preview
	preview.Type = PresentationPreviewMsgType

	if preview.Attributes == nil {
		preview.Attributes = []Attribute{}
	}

	if preview.Predicates == nil {
		preview.Predicates = []Predicate{}
	}

	proposal := &ProposePresentation{
		Type:                 ProposePresentationMsgType,
		ID:                   uuid.New().String(),
		Comment:              cmd.Comment,
		PresentationProposal: preview,
	}

	switch {
	case thid != "":
		proposal.Decorators = decorator.OnThread(thid, "")
	case newThread != "":
		proposal.ID = newThread
	}

	return &ProverProposalSent{Proposal: proposal}, engine.Outbound(proposal), nil
}

func (p *protocol) handleRequest(msg *RequestPresentation) (State, []service.DIDCommMsgMap, error) {
	thid := threadOf(msg.ID, &msg.Decorators)

	request, err := decorator.FindAttachment(msg.RequestPresentations, "")
	if err != nil {
		return p.fail(thid, problemreport.CodeInvalidMessage, fmt.Errorf("presentation request: %w", err))
	}

	if !json.Valid(request) {
		return p.fail(thid, problemreport.CodeInvalidMessage,
			errors.New("presentation request is not a JSON document"))
	}

	return &ProverRequestReceived{Request: msg, RequestJSON: request}, nil, nil
}

func (p *protocol) prepared(thid string, s *ProverRequestReceived, res *PresentationResult) (State,
	[]service.DIDCommMsgMap, error) {
	if res.Err != nil {
		if errors.Is(res.Err, ledger.ErrNotFound) {
			return p.fail(thid, problemreport.CodeLedgerLookupFailed, res.Err)
		}

		return p.fail(thid, problemreport.CodePresentationFailed, res.Err)
	}

	if !json.Valid(res.Presentation) {
		return p.fail(thid, problemreport.CodePresentationFailed, errors.New("presentation is not a JSON document"))
	}

	return &ProverPresentationPrepared{
		Request:      s.Request,
		RequestJSON:  s.RequestJSON,
		Presentation: res.Presentation,
	}, nil, nil
}

func (p *protocol) sendPresentation(thid string, s *ProverPresentationPrepared, cmd *SendPresentation) (State,
	[]service.DIDCommMsgMap, error) {
	msg := &Presentation{
		Type:          PresentationMsgType,
		ID:            uuid.New().String(),
		Comment:       cmd.Comment,
		Presentations: []decorator.Attachment{decorator.NewBase64Attachment(presentationAttachID, s.Presentation)},
		Decorators:    decorator.OnThread(thid, ""),
	}
	msg.PleaseAck = &decorator.PleaseAck{On: []string{decorator.AckOnOutcome}}

	return &ProverPresentationSent{Presentation: msg}, engine.Outbound(msg), nil
}

// lookupFailed turns a ledger resolution error into a failed thread. Transient errors are returned.
func (p *protocol) lookupFailed(thid string, err error) (State, []service.DIDCommMsgMap, error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return p.fail(thid, problemreport.CodeLedgerLookupFailed, err)
	case errors.Is(err, anoncreds.ErrMalformed):
		return p.fail(thid, problemreport.CodeInvalidMessage, err)
	}

	return nil, nil, err
}

func (p *protocol) fail(thid, code string, err error) (State, []service.DIDCommMsgMap, error) {
	report, out := p.config.Policy.Local(thid, code, err)

	return &Finished{Status: StatusFailed, Report: report}, out, nil
}

func (p *protocol) now() time.Time {
	if p.config.Now == nil {
		return time.Now()
	}

	return p.config.Now()
}

func (p *protocol) tolerance() time.Duration {
	if p.config.TimestampTolerance <= 0 {
		return DefaultTimestampTolerance
	}

	return p.config.TimestampTolerance
}

func initial(s State) bool {
	switch s.(type) {
	case *VerifierInitial, *ProverInitial:
		return true
	}

	return false
}
