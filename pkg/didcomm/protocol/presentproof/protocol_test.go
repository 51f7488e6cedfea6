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
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger/storeledger"
	mockanoncreds "github.com/hyperledger/aries-protocol-engine/pkg/mock/anoncreds"
)

const (
	credDefID          = "CD1"
	revocableCredDefID = "CD2"
	revRegID           = "RR1"

	requestJSON = `{"nonce":"123","name":"proof","requested_attributes":{"attr1":{"name":"name"}}}`
)

// base is the time of both the ledger and the verifier in these tests.
var base = time.Unix(1700000000, 0)

func newLedger(t *testing.T) *storeledger.Ledger {
	t.Helper()

	ctx := context.Background()

	l, err := storeledger.New(mem.NewProvider(), storeledger.WithClock(func() time.Time { return base }))
	require.NoError(t, err)

	require.NoError(t, l.PublishSchema(ctx, mockanoncreds.SchemaIDOf(credDefID),
		json.RawMessage(`{"name":"person","attrNames":["name"]}`)))
	require.NoError(t, l.PublishSchema(ctx, mockanoncreds.SchemaIDOf(revocableCredDefID),
		json.RawMessage(`{"name":"member","attrNames":["name"]}`)))
	require.NoError(t, l.PublishCredDef(ctx, credDefID, json.RawMessage(`{"id":"CD1","value":{"primary":{}}}`)))
	require.NoError(t, l.PublishCredDef(ctx, revocableCredDefID,
		json.RawMessage(`{"id":"CD2","value":{"primary":{},"revocation":{}}}`)))
	require.NoError(t, l.PublishRevRegDef(ctx, revRegID, json.RawMessage(`{"id":"RR1","credDefId":"CD2"}`)))

	return l
}

// issue stores a credential of credDefID in ac. Credentials of a registry have their delta published.
func issue(t *testing.T, ac *mockanoncreds.AnonCreds, l *storeledger.Ledger, credDefID, revRegID,
	name string) string {
	t.Helper()

	ctx := context.Background()

	offer, err := ac.CreateCredentialOffer(ctx, credDefID)
	require.NoError(t, err)

	request, meta, err := ac.CreateCredentialRequest(ctx, "did:sov:prover", offer, nil, anoncreds.LinkSecretID)
	require.NoError(t, err)

	issued, err := ac.CreateCredential(ctx, offer, request, map[string]string{"name": name}, revRegID, "")
	require.NoError(t, err)

	if revRegID != "" {
		_, err = l.PublishRevRegDelta(ctx, revRegID, issued.RevRegDelta)
		require.NoError(t, err)
	}

	credID, err := ac.StoreCredential(ctx, "", meta, issued.Credential, nil, nil)
	require.NoError(t, err)

	return credID
}

func newTestProtocol(t *testing.T) (*protocol, *mockanoncreds.AnonCreds, *storeledger.Ledger) {
	t.Helper()

	ac := mockanoncreds.New()
	l := newLedger(t)

	return &protocol{
		anoncreds: ac,
		read:      l,
		config: Config{
			Policy: problemreport.Default(ProblemReportMsgType),
			Now:    func() time.Time { return base },
		},
	}, ac, l
}

type fixture struct {
	p *protocol

	verifierProposal *VerifierProposalReceived
	verifierRequest  *VerifierRequestSent
	proverProposal   *ProverProposalSent
	proverRequest    *ProverRequestReceived
	proverPrepared   *ProverPresentationPrepared
	proverSent       *ProverPresentationSent

	proposal     *ProposePresentation
	request      *RequestPresentation
	presentation *Presentation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	p, ac, l := newTestProtocol(t)
	issue(t, ac, l, credDefID, "", "Alice")

	f := &fixture{p: p}

	next, _, err := p.Transition(ctx, &ProverInitial{}, &SendProposal{
		ThreadID: "thread", Preview: PresentationPreview{Attributes: []Attribute{{Name: "name"}}},
	})
	require.NoError(t, err)

	f.proverProposal = next.(*ProverProposalSent)
	f.proposal = f.proverProposal.Proposal

	next, _, err = p.Transition(ctx, &VerifierInitial{}, f.proposal)
	require.NoError(t, err)

	f.verifierProposal = next.(*VerifierProposalReceived)

	next, out, err := p.Transition(ctx, &VerifierInitial{}, &SendRequest{
		ThreadID: "thread", PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	f.verifierRequest = next.(*VerifierRequestSent)
	f.request = &RequestPresentation{}
	require.NoError(t, out[0].Decode(f.request))

	next, _, err = p.Transition(ctx, &ProverInitial{}, f.request)
	require.NoError(t, err)

	f.proverRequest = next.(*ProverRequestReceived)

	presentation, err := p.prepare(ctx, f.proverRequest.RequestJSON)
	require.NoError(t, err)

	next, _, err = p.Transition(ctx, f.proverRequest, &PresentationResult{Presentation: presentation})
	require.NoError(t, err)

	f.proverPrepared = next.(*ProverPresentationPrepared)

	next, out, err = p.Transition(ctx, f.proverPrepared, &SendPresentation{})
	require.NoError(t, err)
	require.Len(t, out, 1)

	f.proverSent = next.(*ProverPresentationSent)
	f.presentation = &Presentation{}
	require.NoError(t, out[0].Decode(f.presentation))

	return f
}

// presentationOf wraps a presentation document into a presentation message on thread.
func presentationOf(doc string) *Presentation {
	return &Presentation{
		Type:          PresentationMsgType,
		ID:            "presentation",
		Presentations: []decorator.Attachment{decorator.NewBase64Attachment(presentationAttachID, []byte(doc))},
		Decorators:    decorator.OnThread("thread", ""),
	}
}

func revealed(raw string) string {
	return fmt.Sprintf(`{"attr1":{"raw":%q,"encoded":%q}}`, raw, anoncreds.EncodeValue(raw))
}

func requireFailed(t *testing.T, next State, out []service.DIDCommMsgMap, code string) {
	t.Helper()

	finished, ok := next.(*Finished)
	require.True(t, ok, "not finished: %T", next)
	require.Equal(t, StatusFailed, finished.Status)
	require.Equal(t, code, finished.Report.Code())
	require.Len(t, out, 1)

	pr := &model.ProblemReport{}
	require.NoError(t, out[0].Decode(pr))
	require.Equal(t, code, pr.Code())
	require.Equal(t, "thread", pr.ThreadID())
}

func TestProtocol_TransitionTotality(t *testing.T) {
	f := newFixture(t)

	states := []State{
		&VerifierInitial{}, f.verifierProposal, f.verifierRequest,
		&ProverInitial{}, f.proverProposal, f.proverRequest, f.proverPrepared, f.proverSent,
		&Finished{Status: StatusSuccess},
	}

	inputs := []engine.Input{
		&SendRequest{PresentationRequest: json.RawMessage(requestJSON)},
		&SendProposal{},
		&PresentationResult{Presentation: f.proverPrepared.Presentation},
		&SendPresentation{},
		&Decline{Comment: "no"},
		f.proposal,
		f.request,
		f.presentation,
		&Ack{Ack: model.NewAck(AckMsgType, "", model.AckStatusOK)},
		&ProblemReport{ProblemReport: model.NewProblemReport(ProblemReportMsgType, "", "other", "")},
	}

	accepted := map[string]bool{
		"*presentproof.VerifierInitial/send-request":                 true,
		"*presentproof.VerifierInitial/propose-presentation":         true,
		"*presentproof.VerifierProposalReceived/send-request":        true,
		"*presentproof.VerifierProposalReceived/decline":             true,
		"*presentproof.VerifierProposalReceived/problem-report":      true,
		"*presentproof.VerifierRequestSent/propose-presentation":     true,
		"*presentproof.VerifierRequestSent/presentation":             true,
		"*presentproof.VerifierRequestSent/problem-report":           true,
		"*presentproof.ProverInitial/send-proposal":                  true,
		"*presentproof.ProverInitial/request-presentation":           true,
		"*presentproof.ProverProposalSent/request-presentation":      true,
		"*presentproof.ProverProposalSent/problem-report":            true,
		"*presentproof.ProverRequestReceived/presentation-result":    true,
		"*presentproof.ProverRequestReceived/send-proposal":          true,
		"*presentproof.ProverRequestReceived/decline":                true,
		"*presentproof.ProverRequestReceived/problem-report":         true,
		"*presentproof.ProverPresentationPrepared/send-presentation": true,
		"*presentproof.ProverPresentationPrepared/decline":           true,
		"*presentproof.ProverPresentationPrepared/problem-report":    true,
		"*presentproof.ProverPresentationSent/ack":                   true,
		"*presentproof.ProverPresentationSent/problem-report":        true,
	}

	for _, state := range states {
		for _, in := range inputs {
			key := fmt.Sprintf("%T/%s", state, in.InputName())

			t.Run(key, func(t *testing.T) {
				m := engine.New[State](f.p, "", engine.RoleVerifier, state)

				next, _, err := m.Transition(context.Background(), in)
				if accepted[key] {
					require.NoError(t, err)
					require.NotNil(t, next.State())

					return
				}

				require.ErrorIs(t, err, engine.ErrUnexpected)
				require.Equal(t, m, next)
			})
		}
	}
}

func TestProtocol_VerifierFlow(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, "thread", f.request.ID)
	require.Equal(t, "thread", f.presentation.ThreadID())
	require.True(t, f.presentation.AckRequested())

	next, out, err := f.p.Transition(context.Background(), f.verifierRequest, f.presentation)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, AckMsgType, out[0].Type())

	thid, err := out[0].ThreadID()
	require.NoError(t, err)
	require.Equal(t, "thread", thid)

	finished := next.(*Finished)
	require.Equal(t, StatusSuccess, finished.Status)
	require.True(t, finished.Verified)
	require.Equal(t, "done", finished.Name())
	require.Equal(t, "Alice", finished.Revealed["attr1"].Raw)
	require.Equal(t, map[string]interface{}{
		propertyStatus:   "success",
		propertyVerified: true,
		propertyRevealed: map[string]string{"attr1": "Alice"},
	}, finished.Properties())
}

func TestProtocol_ProverFlow(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, "proof", f.proverRequest.Properties()[propertyRequestName])
	require.Equal(t, []string{"name"}, f.verifierProposal.Properties()[propertyProposedAttrs])

	next, out, err := f.p.Transition(context.Background(), f.proverSent,
		&Ack{Ack: model.NewAck(AckMsgType, "thread", model.AckStatusOK)})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, &Finished{Status: StatusSuccess}, next)
}

func TestProtocol_RequestAnswersProposal(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, "thread", f.proposal.ID)
	require.Equal(t, PresentationPreviewMsgType, f.proposal.PresentationProposal.Type)
	require.NotNil(t, f.proposal.PresentationProposal.Predicates)

	next, out, err := f.p.Transition(context.Background(), f.verifierProposal, &SendRequest{
		ThreadID: "ignored", PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	request := next.(*VerifierRequestSent).Request
	require.NotEqual(t, "ignored", request.ID)
	require.Equal(t, "thread", request.ThreadID())

	next, out, err = f.p.Transition(context.Background(), f.proverProposal, request)
	require.NoError(t, err)
	require.Empty(t, out)
	require.IsType(t, &ProverRequestReceived{}, next)
}

func TestProtocol_CounterProposal(t *testing.T) {
	f := newFixture(t)

	next, out, err := f.p.Transition(context.Background(), f.proverRequest, &SendProposal{
		Preview: PresentationPreview{Attributes: []Attribute{{Name: "age"}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	proposal := next.(*ProverProposalSent).Proposal
	require.Equal(t, "thread", proposal.ThreadID())

	next, out, err = f.p.Transition(context.Background(), f.verifierRequest, proposal)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, []string{"age"}, next.(*VerifierProposalReceived).Properties()[propertyProposedAttrs])
}

func TestProtocol_InvalidPresentationRequest(t *testing.T) {
	p, _, _ := newTestProtocol(t)

	_, _, err := p.Transition(context.Background(), &VerifierInitial{}, &SendRequest{
		ThreadID: "thread", PresentationRequest: json.RawMessage(`{`),
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, engine.ErrUnexpected)

	next, out, err := p.Transition(context.Background(), &ProverInitial{}, &RequestPresentation{
		Type: RequestPresentationMsgType, ID: "thread",
	})
	require.NoError(t, err)
	requireFailed(t, next, out, problemreport.CodeInvalidMessage)
}

func TestProtocol_MalformedPresentation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		msg  *Presentation
		code string
	}{
		{
			name: "no attachment",
			msg:  &Presentation{Type: PresentationMsgType, Decorators: decorator.OnThread("thread", "")},
			code: problemreport.CodeInvalidMessage,
		},
		{
			name: "not JSON",
			msg:  presentationOf(`{`),
			code: problemreport.CodeInvalidMessage,
		},
		{
			name: "no identifiers",
			msg:  presentationOf(`{"nonce":"123"}`),
			code: problemreport.CodeInvalidMessage,
		},
		{
			name: "encoded value does not match",
			msg: presentationOf(`{"nonce":"123","identifiers":[{"schema_id":"CD1:schema","cred_def_id":"CD1"}],` +
				`"requested_proof":{"revealed_attrs":{"attr1":{"raw":"Alice","encoded":"1"}}}}`),
			code: problemreport.CodeVerificationFailed,
		},
		{
			name: "wrong nonce",
			msg: presentationOf(`{"nonce":"456","identifiers":[{"schema_id":"CD1:schema","cred_def_id":"CD1"}],` +
				`"requested_proof":{"revealed_attrs":` + revealed("Alice") + `}}`),
			code: problemreport.CodeVerificationFailed,
		},
		{
			name: "unknown credential definition",
			msg: presentationOf(`{"nonce":"123","identifiers":[{"schema_id":"CD1:schema","cred_def_id":"CD9"}],` +
				`"requested_proof":{"revealed_attrs":` + revealed("Alice") + `}}`),
			code: problemreport.CodeLedgerLookupFailed,
		},
		{
			name: "registry without timestamp",
			msg: presentationOf(`{"nonce":"123","identifiers":[{"schema_id":"CD2:schema","cred_def_id":"CD2",` +
				`"rev_reg_id":"RR1"}],"requested_proof":{"revealed_attrs":` + revealed("Alice") + `}}`),
			code: problemreport.CodeInvalidMessage,
		},
		{
			name: "timestamp beyond tolerance",
			msg: presentationOf(fmt.Sprintf(`{"nonce":"123","identifiers":[{"schema_id":"CD2:schema",`+
				`"cred_def_id":"CD2","rev_reg_id":"RR1","timestamp":%d}],"requested_proof":{"revealed_attrs":%s}}`,
				base.Add(DefaultTimestampTolerance+time.Second).Unix(), revealed("Alice"))),
			code: problemreport.CodeVerificationFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, out, err := f.p.Transition(context.Background(), f.verifierRequest, tc.msg)
			require.NoError(t, err)
			requireFailed(t, next, out, tc.code)
		})
	}
}

func TestProtocol_RevocableCredential(t *testing.T) {
	ctx := context.Background()
	p, ac, l := newTestProtocol(t)
	issue(t, ac, l, revocableCredDefID, revRegID, "Bob")

	presentation, err := p.prepare(ctx, json.RawMessage(requestJSON))
	require.NoError(t, err)

	ids, err := anoncreds.Identifiers(presentation)
	require.NoError(t, err)
	require.Equal(t, []anoncreds.Identifier{{
		SchemaID: "CD2:schema", CredDefID: revocableCredDefID, RevRegID: revRegID, Timestamp: base.Unix(),
	}}, ids)

	s := &VerifierRequestSent{
		Request:     &RequestPresentation{ID: "thread"},
		RequestJSON: json.RawMessage(requestJSON),
	}

	next, out, err := p.Transition(ctx, s, presentationOf(string(presentation)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, StatusSuccess, next.(*Finished).Status)
	require.Equal(t, "Bob", next.(*Finished).Revealed["attr1"].Raw)
}

func TestProtocol_RevokedCredentialFailsVerification(t *testing.T) {
	ctx := context.Background()
	p, ac, l := newTestProtocol(t)
	issue(t, ac, l, revocableCredDefID, revRegID, "Bob")

	delta, err := ac.RevokeCredential(ctx, revocableCredDefID, revRegID, "1")
	require.NoError(t, err)

	revokedAt, err := l.PublishRevRegDelta(ctx, revRegID, delta)
	require.NoError(t, err)

	request := fmt.Sprintf(`{"nonce":"123","requested_attributes":{"attr1":{"name":"name"}},`+
		`"non_revoked":{"to":%d}}`, base.Add(10*time.Second).Unix())

	presentation, err := p.prepare(ctx, json.RawMessage(request))
	require.NoError(t, err)

	ids, err := anoncreds.Identifiers(presentation)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, revokedAt, ids[0].Timestamp)

	s := &VerifierRequestSent{Request: &RequestPresentation{ID: "thread"}, RequestJSON: json.RawMessage(request)}

	next, out, err := p.Transition(ctx, s, presentationOf(string(presentation)))
	require.NoError(t, err)
	requireFailed(t, next, out, problemreport.CodeVerificationFailed)
}

type flakyLedger struct {
	*storeledger.Ledger
	err error
}

func (l *flakyLedger) GetCredDef(context.Context, string) (json.RawMessage, error) {
	return nil, l.err
}

func TestProtocol_TransientLedgerError(t *testing.T) {
	f := newFixture(t)
	errLedger := errors.New("ledger unavailable")
	f.p.read = &flakyLedger{Ledger: newLedger(t), err: errLedger}

	_, _, err := f.p.Transition(context.Background(), f.verifierRequest, f.presentation)
	require.ErrorIs(t, err, errLedger)
}

func TestProtocol_PresentationResultError(t *testing.T) {
	f := newFixture(t)

	next, out, err := f.p.Transition(context.Background(), f.proverRequest, &PresentationResult{
		Err: fmt.Errorf("get schema: %w", ledger.ErrNotFound),
	})
	require.NoError(t, err)
	requireFailed(t, next, out, problemreport.CodeLedgerLookupFailed)

	next, out, err = f.p.Transition(context.Background(), f.proverRequest, &PresentationResult{
		Err: errors.New("no credential for referent attr1"),
	})
	require.NoError(t, err)
	requireFailed(t, next, out, problemreport.CodePresentationFailed)

	next, out, err = f.p.Transition(context.Background(), f.proverRequest, &PresentationResult{
		Presentation: json.RawMessage(`{`),
	})
	require.NoError(t, err)
	requireFailed(t, next, out, problemreport.CodePresentationFailed)
}

func TestProtocol_Decline(t *testing.T) {
	f := newFixture(t)

	for _, s := range []State{f.verifierProposal, f.proverRequest, f.proverPrepared} {
		next, out, err := f.p.Transition(context.Background(), s, &Decline{Comment: "not now"})
		require.NoError(t, err)
		require.Len(t, out, 1)

		finished := next.(*Finished)
		require.Equal(t, StatusDeclined, finished.Status)
		require.Equal(t, "declined", finished.Name())
		require.Equal(t, problemreport.CodeDeclined, finished.Report.Code())
		require.Equal(t, "not now", finished.Report.Comment())
	}
}

func TestProtocol_RemoteProblemReport(t *testing.T) {
	f := newFixture(t)
	pr := model.NewProblemReport(ProblemReportMsgType, "thread", problemreport.CodeDeclined, "no")

	next, out, err := f.p.Transition(context.Background(), f.proverSent, &ProblemReport{ProblemReport: pr})
	require.NoError(t, err)
	require.Empty(t, out)

	finished := next.(*Finished)
	require.Equal(t, StatusFailed, finished.Status)
	require.Equal(t, "abandoned", finished.Name())
	require.Equal(t, map[string]interface{}{
		propertyStatus:            "failed",
		propertyProblemReportCode: problemreport.CodeDeclined,
	}, finished.Properties())
}

func TestProtocol_NoLocalReportWithoutNotification(t *testing.T) {
	f := newFixture(t)
	f.p.config.Policy.NotifyOnLocalFailure = false

	next, out, err := f.p.Transition(context.Background(), f.verifierRequest, presentationOf(`{`))
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, problemreport.CodeInvalidMessage, next.(*Finished).Report.Code())
}

func TestProtocol_Timeout(t *testing.T) {
	f := newFixture(t)

	next := f.p.Timeout(f.verifierRequest, "thread")
	require.Equal(t, StatusFailed, next.(*Finished).Status)
	require.Equal(t, problemreport.CodeTimeout, next.(*Finished).Report.Code())

	done := &Finished{Status: StatusSuccess}
	require.Equal(t, done, f.p.Timeout(done, "thread"))
}

func TestProtocol_TimestampTolerance(t *testing.T) {
	p, _, _ := newTestProtocol(t)
	require.Equal(t, DefaultTimestampTolerance, p.tolerance())

	p.config.TimestampTolerance = time.Second
	require.Equal(t, time.Second, p.tolerance())
}
