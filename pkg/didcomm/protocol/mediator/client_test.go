/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/mock/messenger"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
)

const waitTimeout = 5 * time.Second

func newTestProtocol() *protocol {
	return &protocol{config: ClientConfig{Policy: problemreport.Default(ProblemReportMsgType)}}
}

func TestProtocol_TransitionTotality(t *testing.T) {
	p := newTestProtocol()

	states := []ClientState{
		&RecipientInitial{}, &Requested{ThreadID: "thread"}, &Granted{ThreadID: "thread"}, &Failed{Denied: true},
	}

	inputs := []engine.Input{
		&RequestMediation{ThreadID: "thread"},
		&GrantMsg{Grant: &Grant{Endpoint: ENDPOINT}},
		&DenyMsg{Deny: &Deny{}},
		&UpdateKeys{Updates: []Update{{RecipientKey: rk1, Action: ActionAdd}}},
		&KeylistUpdateResponseMsg{KeylistUpdateResponse: &KeylistUpdateResponse{}},
		&QueryKeys{},
		&KeylistMsg{Keylist: &Keylist{}},
		&ProblemReport{ProblemReport: model.NewProblemReport(ProblemReportMsgType, "", "other", "")},
	}

	accepted := map[string]bool{
		"*mediator.RecipientInitial/request-mediation": true,
		"*mediator.RecipientInitial/problem-report":    true,
		"*mediator.Requested/mediate-grant":            true,
		"*mediator.Requested/mediate-deny":             true,
		"*mediator.Requested/problem-report":           true,
		"*mediator.Granted/update-keys":                true,
		"*mediator.Granted/keylist-update-response":    true,
		"*mediator.Granted/query-keys":                 true,
		"*mediator.Granted/keylist":                    true,
		"*mediator.Granted/problem-report":             true,
	}

	for _, state := range states {
		for _, in := range inputs {
			key := fmt.Sprintf("%T/%s", state, in.InputName())

			t.Run(key, func(t *testing.T) {
				m := engine.New[ClientState](p, "", engine.RoleRecipient, state)

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

func TestProtocol_Mediation(t *testing.T) {
	p := newTestProtocol()
	ctx := context.Background()

	next, out, err := p.Transition(ctx, &RecipientInitial{}, &RequestMediation{ThreadID: "thread"})
	require.NoError(t, err)
	require.Equal(t, &Requested{ThreadID: "thread"}, next)
	require.Len(t, out, 1)
	require.Equal(t, RequestMsgType, out[0].Type())
	require.Equal(t, "thread", out[0].ID())

	next, out, err = p.Transition(ctx, next, &GrantMsg{Grant: &Grant{Endpoint: ENDPOINT,
		RoutingKeys: []string{routingKey}}})
	require.NoError(t, err)
	require.Empty(t, out)

	granted, ok := next.(*Granted)
	require.True(t, ok)
	require.Equal(t, ENDPOINT, granted.Config().Endpoint())
	require.Equal(t, []string{routingKey}, granted.Config().Keys())
	require.True(t, granted.Settled())

	next, out, err = p.Transition(ctx, granted, &UpdateKeys{ID: "upd", Updates: []Update{
		{RecipientKey: rk1, Action: ActionAdd}, {RecipientKey: rk2, Action: ActionAdd},
	}})
	require.NoError(t, err)
	require.Same(t, granted, next)
	require.Len(t, out, 1)
	require.Equal(t, KeylistUpdateMsgType, out[0].Type())
	require.Equal(t, "upd", out[0].ID())

	thid, err := out[0].ThreadID()
	require.NoError(t, err)
	require.Equal(t, "thread", thid)

	next, _, err = p.Transition(ctx, granted, &KeylistUpdateResponseMsg{KeylistUpdateResponse: &KeylistUpdateResponse{
		Updated: []UpdateResponse{
			{RecipientKey: rk1, Action: ActionAdd, Result: ResultSuccess},
			{RecipientKey: rk2, Action: ActionAdd, Result: ResultServerError},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, []string{rk1}, next.(*Granted).Keys)
	require.Empty(t, granted.Keys)

	next, _, err = p.Transition(ctx, next, &KeylistUpdateResponseMsg{KeylistUpdateResponse: &KeylistUpdateResponse{
		Updated: []UpdateResponse{{RecipientKey: rk1, Action: ActionRemove, Result: ResultNoChange}},
	}})
	require.NoError(t, err)
	require.Empty(t, next.(*Granted).Keys)

	_, out, err = p.Transition(ctx, next, &QueryKeys{Paginate: &Paginate{Limit: 10}})
	require.NoError(t, err)
	require.Equal(t, KeylistQueryMsgType, out[0].Type())

	next, _, err = p.Transition(ctx, next, &KeylistMsg{Keylist: &Keylist{Keys: []KeylistKey{{RecipientKey: "K1"}}}})
	require.NoError(t, err)
	require.Equal(t, []string{"K1"}, next.(*Granted).Keys)

	next, _, err = p.Transition(ctx, next, &KeylistMsg{Keylist: &Keylist{
		Keys:       []KeylistKey{{RecipientKey: "K2"}, {RecipientKey: "K1"}},
		Pagination: &Pagination{Count: 2, Offset: 1},
	}})
	require.NoError(t, err)
	require.Equal(t, []string{"K1", "K2"}, next.(*Granted).Keys)

	t.Run("invalid updates", func(t *testing.T) {
		for _, updates := range [][]Update{
			nil,
			{{Action: ActionAdd}},
			{{RecipientKey: rk1, Action: "rotate"}},
		} {
			_, _, err := p.Transition(ctx, granted, &UpdateKeys{Updates: updates})
			require.Error(t, err)
			require.NotErrorIs(t, err, engine.ErrUnexpected)
		}
	})

	t.Run("denied", func(t *testing.T) {
		next, out, err := p.Transition(ctx, &Requested{ThreadID: "thread"}, &DenyMsg{Deny: &Deny{}})
		require.NoError(t, err)
		require.Empty(t, out)
		require.Equal(t, stateNameDenied, next.Name())
		require.True(t, next.Terminal())
	})

	t.Run("timeout", func(t *testing.T) {
		failed := p.Timeout(&Requested{ThreadID: "thread"}, "thread")
		require.Equal(t, stateNameAbandoned, failed.Name())
		require.Equal(t, problemreport.CodeTimeout, failed.(*Failed).ProblemReport().Code())

		final := &Failed{Denied: true}
		require.Same(t, final, p.Timeout(final, "thread"))
	})
}

type pair struct {
	client      *Client
	mediator    *Service
	store       *mediatorstore.Store
	clientQueue *messenger.Queue
	medQueue    *messenger.Queue
	clientConn  *service.Connection
	medConn     *service.Connection
}

func newPair(t *testing.T, opts ...Opt) *pair {
	t.Helper()

	p := &pair{
		store:       newMediatorStore(t),
		clientQueue: &messenger.Queue{},
		medQueue:    &messenger.Queue{},
		clientConn: &service.Connection{
			ID:          "conn",
			MyVerKey:    recipientAuth,
			TheirVerKey: mediatorKey,
			Destination: &service.Destination{RecipientKeys: []string{mediatorKey}, ServiceEndpoint: ENDPOINT},
		},
		medConn: &service.Connection{
			ID:          "conn",
			MyVerKey:    mediatorKey,
			TheirVerKey: recipientAuth,
			Destination: &service.Destination{RecipientKeys: []string{recipientAuth}, ServiceEndpoint: "http://r"},
		},
	}

	p.client = NewClient(ClientConfig{}, runner.WithMessenger(p.clientQueue), runner.WithTimeout(time.Minute))
	p.mediator = newMediator(t, p.store, append([]Opt{WithMessenger(p.medQueue)}, opts...)...)

	return p
}

func wire(t *testing.T, queue *messenger.Queue) (service.DIDCommMsgMap, string) {
	t.Helper()

	require.Eventually(t, func() bool { return queue.Len() > 0 }, waitTimeout, 10*time.Millisecond)

	e, ok := queue.Pop()
	require.True(t, ok)

	msg, err := messenger.Wire(e.Msg)
	require.NoError(t, err)

	return msg, e.SenderVerKey
}

// toMediator delivers the client's next message to the mediator.
func (p *pair) toMediator(t *testing.T) service.DIDCommMsgMap {
	t.Helper()

	msg, sender := wire(t, p.clientQueue)

	require.NoError(t, p.mediator.HandleInbound(context.Background(), msg,
		service.InboundContext{SenderVerKey: sender, RecipientVerKey: mediatorKey, Connection: p.medConn}))

	return msg
}

// toClient delivers the mediator's next message to the client.
func (p *pair) toClient(t *testing.T) service.DIDCommMsgMap {
	t.Helper()

	msg, sender := wire(t, p.medQueue)

	require.NoError(t, p.client.HandleInbound(context.Background(), msg,
		service.InboundContext{SenderVerKey: sender, RecipientVerKey: recipientAuth, Connection: p.clientConn}))

	return msg
}

func TestClient_Mediation(t *testing.T) {
	ctx := context.Background()
	p := newPair(t)

	events := make(chan service.StateMsg, 10)
	require.NoError(t, p.client.RegisterMsgEvent(events))

	thid, err := p.client.RequestMediation(ctx, p.clientConn)
	require.NoError(t, err)
	require.True(t, p.client.HasThread(thid))

	conn, ok := p.client.Connection(thid)
	require.True(t, ok)
	require.Equal(t, p.clientConn, conn)

	_, err = p.client.Config(ctx, thid)
	require.ErrorIs(t, err, ErrRouterNotRegistered)

	require.Equal(t, RequestMsgType, p.toMediator(t).Type())
	grant := p.toClient(t)
	require.Equal(t, GrantMsgType, grant.Type())

	config, err := p.client.Config(ctx, thid)
	require.NoError(t, err)
	require.Equal(t, ENDPOINT, config.Endpoint())
	require.Equal(t, []string{routingKey}, config.Keys())
	require.Equal(t, []string{thid}, p.client.Mediations(ctx))

	require.Equal(t, stateNameRequested, (<-events).StateID)
	require.Equal(t, stateNameGranted, (<-events).StateID)

	t.Run("add key", func(t *testing.T) {
		done := make(chan error, 1)

		go func() { done <- p.client.AddKey(ctx, thid, rk1) }()

		require.Equal(t, KeylistUpdateMsgType, p.toMediator(t).Type())
		require.Equal(t, KeylistUpdateResponseMsgType, p.toClient(t).Type())

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitTimeout):
			require.FailNow(t, "AddKey did not return")
		}

		m, err := p.client.Get(ctx, thid)
		require.NoError(t, err)
		require.Equal(t, []string{rk1}, m.State().(*Granted).Keys)

		keys, err := p.store.ListRecipientKeys(ctx, recipientAuth)
		require.NoError(t, err)
		require.Equal(t, []string{rk1}, keys)
	})

	t.Run("query keys", func(t *testing.T) {
		require.NoError(t, p.store.AddRecipient(ctx, recipientAuth, rk2))
		require.NoError(t, p.client.QueryKeys(ctx, thid, nil))

		require.Equal(t, KeylistQueryMsgType, p.toMediator(t).Type())
		require.Equal(t, KeylistMsgType, p.toClient(t).Type())

		m, err := p.client.Get(ctx, thid)
		require.NoError(t, err)
		require.Equal(t, []string{rk1, rk2}, m.State().(*Granted).Keys)
	})

	t.Run("redelivered grant is dropped", func(t *testing.T) {
		require.NoError(t, p.client.HandleInbound(ctx, grant, service.InboundContext{}))

		m, err := p.client.Get(ctx, thid)
		require.NoError(t, err)
		require.Equal(t, stateNameGranted, m.State().Name())
	})

	t.Run("granted mediation does not time out", func(t *testing.T) {
		require.Zero(t, p.client.SweepExpired(time.Now().Add(time.Hour)))
		require.True(t, p.client.HasThread(thid))
	})
}

func TestClient_Register(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	t.Run("granted", func(t *testing.T) {
		p := newPair(t)

		type result struct {
			thid   string
			config *Config
			err    error
		}

		done := make(chan result, 1)

		go func() {
			thid, config, err := p.client.Register(ctx, p.clientConn)
			done <- result{thid: thid, config: config, err: err}
		}()

		p.toMediator(t)
		p.toClient(t)

		res := <-done
		require.NoError(t, res.err)
		require.NotEmpty(t, res.thid)
		require.Equal(t, ENDPOINT, res.config.Endpoint())
	})

	t.Run("denied", func(t *testing.T) {
		policy, err := NewGrantPolicy("false")
		require.NoError(t, err)

		p := newPair(t, WithGrantPolicy(policy))

		done := make(chan error, 1)

		go func() {
			_, _, err := p.client.Register(ctx, p.clientConn)
			done <- err
		}()

		p.toMediator(t)
		require.Equal(t, DenyMsgType, p.toClient(t).Type())

		require.ErrorIs(t, <-done, ErrMediationDenied)
	})

	t.Run("context done", func(t *testing.T) {
		p := newPair(t)

		short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancelShort()

		_, _, err := p.client.Register(short, p.clientConn)
		require.Error(t, err)
	})

	t.Run("send error", func(t *testing.T) {
		p := newPair(t)
		p.clientQueue.Err = fmt.Errorf("offline")

		_, _, err := p.client.Register(ctx, p.clientConn)
		require.Error(t, err)
		require.Contains(t, err.Error(), "offline")
	})
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	p := newPair(t)

	t.Run("add key without mediation", func(t *testing.T) {
		err := p.client.AddKey(ctx, "unknown", rk1)
		require.ErrorIs(t, err, ErrRouterNotRegistered)
	})

	t.Run("add key timeout", func(t *testing.T) {
		thid, err := p.client.RequestMediation(ctx, p.clientConn)
		require.NoError(t, err)

		p.toMediator(t)
		p.toClient(t)

		p.client.updateTimeout = 20 * time.Millisecond

		err = p.client.AddKey(ctx, thid, rk1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "timeout waiting for keylist update response")
	})

	t.Run("message without thread", func(t *testing.T) {
		msg := service.NewDIDCommMsgMap(&Deny{Type: DenyMsgType})
		err := p.client.HandleInbound(ctx, msg, service.InboundContext{})
		require.ErrorIs(t, err, service.ErrThreadIDNotFound)
	})

	t.Run("unsupported type", func(t *testing.T) {
		msg := service.NewDIDCommMsgMap(&Request{Type: RequestMsgType, ID: "r"})
		require.Error(t, p.client.HandleInbound(ctx, msg, service.InboundContext{}))
	})

	t.Run("problem report ends the mediation", func(t *testing.T) {
		thid, err := p.client.RequestMediation(ctx, p.clientConn)
		require.NoError(t, err)

		pr := service.NewDIDCommMsgMap(model.NewProblemReport(ProblemReportMsgType, thid, "request_not_accepted", ""))
		require.NoError(t, p.client.HandleInbound(ctx, pr, service.InboundContext{}))
		require.False(t, p.client.HasThread(thid))

		final, ok := p.client.Final(thid)
		require.True(t, ok)
		require.Equal(t, stateNameAbandoned, final.Name())
	})

	t.Run("response on an unknown thread fails", func(t *testing.T) {
		thid, err := p.client.RequestMediation(ctx, p.clientConn)
		require.NoError(t, err)

		grant := service.NewDIDCommMsgMap(&Grant{Type: GrantMsgType, ID: "g",
			Decorators: decorator.OnThread("other", "")})
		require.Error(t, p.client.HandleInbound(ctx, grant, service.InboundContext{}))
		require.True(t, p.client.HasThread(thid))
	})
}

func TestClient_Accept(t *testing.T) {
	c := NewClient(ClientConfig{})

	for _, msgType := range []string{GrantMsgType, DenyMsgType, KeylistUpdateResponseMsgType, KeylistMsgType,
		ProblemReportMsgType} {
		require.True(t, c.Accept(msgType), msgType)
	}

	require.False(t, c.Accept(RequestMsgType))
	require.Equal(t, Coordination, c.Name())
}
