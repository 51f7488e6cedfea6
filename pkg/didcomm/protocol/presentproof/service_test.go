/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/registry"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger/storeledger"
	mockanoncreds "github.com/hyperledger/aries-protocol-engine/pkg/mock/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/mock/messenger"
)

const waitTimeout = 5 * time.Second

var errCreatePresentation = errors.New("wallet locked")

type agent struct {
	*Service
	anoncreds *mockanoncreds.AnonCreds
	queue     *messenger.Queue
	events    chan service.StateMsg
	// conn is the connection to the other agent.
	conn *service.Connection
}

func newAgent(t *testing.T, l *storeledger.Ledger, config Config, myKey, theirKey string) *agent {
	t.Helper()

	if config.Now == nil {
		config.Now = func() time.Time { return base }
	}

	ac := mockanoncreds.New()
	queue := &messenger.Queue{}

	svc := New(ac, l, config, runner.WithMessenger(queue), runner.WithTimeout(time.Minute))
	t.Cleanup(svc.Close)

	events := make(chan service.StateMsg, 50)
	require.NoError(t, svc.RegisterMsgEvent(events))

	return &agent{
		Service:   svc,
		anoncreds: ac,
		queue:     queue,
		events:    events,
		conn: &service.Connection{
			ID:          "conn",
			MyVerKey:    myKey,
			TheirVerKey: theirKey,
			Destination: &service.Destination{RecipientKeys: []string{theirKey}, ServiceEndpoint: "http://" + theirKey},
		},
	}
}

// newPair returns a verifier and a prover holding a credential of CD1 for Alice.
func newPair(t *testing.T, proverConfig Config) (verifier, prover *agent) {
	t.Helper()

	l := newLedger(t)

	verifier = newAgent(t, l, Config{}, "verifier-key", "prover-key")
	prover = newAgent(t, l, proverConfig, "prover-key", "verifier-key")

	issue(t, prover.anoncreds, l, credDefID, "", "Alice")

	return verifier, prover
}

// deliver moves the oldest message sent by from over the wire to to. Workers send asynchronously, so it waits
// for the message to be queued.
func deliver(t *testing.T, from, to *agent) service.DIDCommMsgMap {
	t.Helper()

	require.Eventually(t, func() bool { return from.queue.Len() > 0 }, waitTimeout, 10*time.Millisecond,
		"no message sent")

	e, ok := from.queue.Pop()
	require.True(t, ok)
	require.Equal(t, to.conn.MyVerKey, e.Destination.RecipientKeys[0])

	msg, err := messenger.Wire(e.Msg)
	require.NoError(t, err)

	require.NoError(t, to.HandleInbound(context.Background(), msg, service.InboundContext{
		SenderVerKey:    e.SenderVerKey,
		RecipientVerKey: to.conn.MyVerKey,
		Connection:      to.conn,
	}))

	return msg
}

// await waits for thid to reach stateID.
func await(t *testing.T, events chan service.StateMsg, thid, stateID string) service.StateMsg {
	t.Helper()

	timeout := time.After(waitTimeout)

	for {
		select {
		case e := <-events:
			if e.ThreadID == thid && e.StateID == stateID {
				return e
			}
		case <-timeout:
			require.FailNow(t, "timed out", "thread %s did not reach %s", thid, stateID)
		}
	}
}

func TestService_PresentProof(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})

	thid, err := verifier.SendRequest(ctx, verifier.conn, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)
	require.True(t, verifier.HasThread(thid))

	request := deliver(t, verifier, prover)
	require.Equal(t, RequestPresentationMsgType, request.Type())
	require.Equal(t, thid, request.ID())

	received := await(t, prover.events, thid, stateNameRequestReceived)
	require.Equal(t, "proof", received.Properties[propertyRequestName])

	require.NoError(t, prover.AcceptRequest(ctx, thid))
	await(t, prover.events, thid, stateNamePresentationPrepared)
	require.Zero(t, prover.queue.Len())

	require.NoError(t, prover.SendPresentation(ctx, thid, "here"))

	presentation := deliver(t, prover, verifier)
	require.Equal(t, PresentationMsgType, presentation.Type())
	require.False(t, verifier.HasThread(thid))
	require.True(t, verifier.Closed(thid))

	done := await(t, verifier.events, thid, stateNameDone)
	require.True(t, done.Terminal)
	require.Equal(t, true, done.Properties[propertyVerified])
	require.Equal(t, map[string]string{"attr1": "Alice"}, done.Properties[propertyRevealed])

	ack := deliver(t, verifier, prover)
	require.Equal(t, AckMsgType, ack.Type())
	require.False(t, prover.HasThread(thid))
	await(t, prover.events, thid, stateNameDone)

	// a redelivered presentation is dropped without an answer
	require.NoError(t, verifier.HandleInbound(ctx, presentation, service.InboundContext{Connection: verifier.conn}))
	require.Zero(t, verifier.queue.Len())
}

func TestService_AutoPresent(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{AutoPresent: true, Workers: 2})

	thid, err := verifier.SendRequest(ctx, verifier.conn, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)

	deliver(t, verifier, prover)
	await(t, prover.events, thid, stateNamePresentationSent)

	deliver(t, prover, verifier)
	await(t, verifier.events, thid, stateNameDone)

	deliver(t, verifier, prover)
	await(t, prover.events, thid, stateNameDone)
}

func TestService_ProposalFlow(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})

	thid, err := prover.SendProposal(ctx, prover.conn, SendProposal{
		Preview: PresentationPreview{Attributes: []Attribute{{Name: "name", CredDefID: credDefID}}},
	})
	require.NoError(t, err)

	deliver(t, prover, verifier)

	proposed := await(t, verifier.events, thid, stateNameProposalReceived)
	require.Equal(t, []string{"name"}, proposed.Properties[propertyProposedAttrs])

	require.NoError(t, verifier.AcceptProposal(ctx, thid, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	}))

	request := deliver(t, verifier, prover)
	reqThid, err := request.ThreadID()
	require.NoError(t, err)
	require.Equal(t, thid, reqThid)

	require.NoError(t, prover.AcceptRequest(ctx, thid))
	await(t, prover.events, thid, stateNamePresentationPrepared)
	require.NoError(t, prover.SendPresentation(ctx, thid, ""))

	deliver(t, prover, verifier)
	await(t, verifier.events, thid, stateNameDone)
}

func TestService_DeclinedRequest(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})

	thid, err := verifier.SendRequest(ctx, verifier.conn, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)

	deliver(t, verifier, prover)
	require.NoError(t, prover.Decline(ctx, thid, "not now"))
	await(t, prover.events, thid, stateNameDeclined)

	report := deliver(t, prover, verifier)
	require.Equal(t, ProblemReportMsgType, report.Type())

	abandoned := await(t, verifier.events, thid, stateNameAbandoned)
	require.Equal(t, problemreport.CodeDeclined, abandoned.Properties[propertyProblemReportCode])
	require.False(t, verifier.HasThread(thid))
}

func TestService_PresentationFailure(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})
	prover.anoncreds.ErrCreatePresentation = errCreatePresentation

	thid, err := verifier.SendRequest(ctx, verifier.conn, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)

	deliver(t, verifier, prover)
	require.NoError(t, prover.AcceptRequest(ctx, thid))

	abandoned := await(t, prover.events, thid, stateNameAbandoned)
	require.Equal(t, problemreport.CodePresentationFailed, abandoned.Properties[propertyProblemReportCode])

	deliver(t, prover, verifier)
	await(t, verifier.events, thid, stateNameAbandoned)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})

	err := verifier.HandleInbound(ctx, service.DIDCommMsgMap{"@type": Spec + "unknown", "@id": "x"},
		service.InboundContext{})
	require.Error(t, err)

	ack := service.NewDIDCommMsgMap(model.NewAck(AckMsgType, "missing", model.AckStatusOK))
	err = prover.HandleInbound(ctx, ack, service.InboundContext{})
	require.ErrorIs(t, err, registry.ErrThreadNotFound)

	err = prover.AcceptRequest(ctx, "missing")
	require.ErrorIs(t, err, registry.ErrThreadNotFound)

	thid, err := prover.SendProposal(ctx, prover.conn, SendProposal{})
	require.NoError(t, err)

	err = prover.AcceptRequest(ctx, thid)
	require.ErrorIs(t, err, engine.ErrUnexpected)

	_, err = prover.SendProposal(ctx, prover.conn, SendProposal{ThreadID: thid})
	require.Error(t, err)

	_, err = verifier.SendRequest(ctx, verifier.conn, SendRequest{PresentationRequest: json.RawMessage(`{`)})
	require.Error(t, err)
	require.Zero(t, verifier.Threads().Len())

	require.True(t, verifier.Accept(PresentationMsgType))
	require.False(t, verifier.Accept("https://didcomm.org/issue-credential/1.0/offer-credential"))
}

func TestService_AcceptRequestOnce(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})

	thid, err := verifier.SendRequest(ctx, verifier.conn, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)

	deliver(t, verifier, prover)

	t.Run("while a job is pending", func(t *testing.T) {
		require.True(t, prover.reserve(thid))

		err := prover.AcceptRequest(ctx, thid)
		require.ErrorIs(t, err, ErrPresentationPending)

		prover.release(thid)
	})

	require.NoError(t, prover.AcceptRequest(ctx, thid))

	err = prover.AcceptRequest(ctx, thid)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPresentationPending) || errors.Is(err, engine.ErrUnexpected), err)

	await(t, prover.events, thid, stateNamePresentationPrepared)

	require.Never(t, func() bool {
		select {
		case e := <-prover.events:
			return e.ThreadID == thid
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond, "one presentation per thread")
}

func TestService_Close(t *testing.T) {
	ctx := context.Background()
	verifier, prover := newPair(t, Config{})

	thid, err := verifier.SendRequest(ctx, verifier.conn, SendRequest{
		PresentationRequest: json.RawMessage(requestJSON),
	})
	require.NoError(t, err)

	deliver(t, verifier, prover)

	prover.Close()
	prover.Close()

	require.ErrorIs(t, prover.AcceptRequest(ctx, thid), ErrClosed)
}
