/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/issuecredential"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/presentproof"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/revocationnotification"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger/storeledger"
	mockanoncreds "github.com/hyperledger/aries-protocol-engine/pkg/mock/anoncreds"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
)

const (
	loopScheme = "loop://"
	credDefID  = "CD1"
	waitFor    = 5 * time.Second
	tick       = 10 * time.Millisecond
)

// network delivers envelopes between in-process agents by endpoint.
type network struct {
	mu     sync.Mutex
	agents map[string]*Agent
	errs   []error
}

func newNetwork() *network {
	return &network{agents: map[string]*Agent{}}
}

func (n *network) Accept(endpoint string) bool {
	return strings.HasPrefix(endpoint, loopScheme)
}

func (n *network) Send(_ context.Context, data []byte, endpoint string) ([]byte, error) {
	n.mu.Lock()
	a, ok := n.agents[endpoint]
	n.mu.Unlock()

	if !ok {
		// nobody listens, the envelope is lost
		return nil, nil
	}

	go func() {
		if err := a.Receive(context.Background(), data); err != nil {
			n.mu.Lock()
			n.errs = append(n.errs, err)
			n.mu.Unlock()
		}
	}()

	return nil, nil
}

func (n *network) join(t *testing.T, name string, opts ...Option) *Agent {
	t.Helper()

	endpoint := loopScheme + name

	a, err := New(append([]Option{
		WithLabel(name),
		WithEndpoint(endpoint),
		WithOutboundTransports(n),
	}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, a.Close()) })

	n.mu.Lock()
	n.agents[endpoint] = a
	n.mu.Unlock()

	return a
}

// connect runs the connection protocol between inviter and invitee and returns the connection id.
func connect(t *testing.T, inviter, invitee *Agent, mediationID string) string {
	t.Helper()

	ctx := context.Background()

	inv, err := inviter.CreateInvitation(ctx, "", mediationID)
	require.NoError(t, err)

	_, err = invitee.Connections().ReceiveInvitation(ctx, inv)
	require.NoError(t, err)

	connID, err := invitee.Connections().AcceptInvitation(ctx, inv.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, connID)

	return connID
}

func established(a *Agent, connID string) func() bool {
	return func() bool {
		_, err := a.Connections().Connection(connID)
		return err == nil
	}
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)

		require.NotNil(t, a.Wallet())
		require.NotNil(t, a.Messenger())
		require.NotNil(t, a.Journal())
		require.NotNil(t, a.Connections())
		require.NotNil(t, a.Revocations())
		require.NotNil(t, a.MediationClient())
		require.NotNil(t, a.Pickup())
		require.Nil(t, a.Credentials())
		require.Nil(t, a.Proofs())
		require.Nil(t, a.Mediator())
		require.Empty(t, a.RoutingKeys())

		require.NoError(t, a.Start())
		require.NoError(t, a.Close())
	})

	t.Run("mediator and anoncreds", func(t *testing.T) {
		store, err := mediatorstore.NewStore(mem.NewProvider())
		require.NoError(t, err)

		policy, err := mediator.NewGrantPolicy("account_count < 10")
		require.NoError(t, err)

		seed := []byte("00000000000000000000000000000001")

		a, err := New(WithStoreProvider(mem.NewProvider()), WithMediatorPersistence(store),
			WithGrantPolicy(policy), WithRoutingKeySeed(seed), WithAnonCreds(mockanoncreds.New()),
			WithAutoIssue(), WithAutoPresent(), WithSweepInterval(time.Second),
			WithPickupInterval(time.Second, 5), WithTransportReturnRoute("all"))
		require.NoError(t, err)
		require.NotNil(t, a.Mediator())
		require.NotNil(t, a.Credentials())
		require.NotNil(t, a.Proofs())
		require.Len(t, a.RoutingKeys(), 1)

		b, err := New(WithMediatorPersistence(store), WithRoutingKeySeed(seed))
		require.NoError(t, err)
		require.Equal(t, a.RoutingKeys(), b.RoutingKeys())

		require.NoError(t, a.Start())
		require.NoError(t, a.Close())
		require.NoError(t, b.Close())
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := New(WithTransportReturnRoute("sometimes"))
		require.ErrorContains(t, err, "invalid transport return route option")

		_, err = New(WithProtocolTimeout(0))
		require.ErrorContains(t, err, "protocol timeout must be positive")

		_, err = New(WithLedger(nil))
		require.ErrorContains(t, err, "ledger is nil")
	})
}

func TestCanonicalVersions(t *testing.T) {
	a, err := New(WithAnonCreds(mockanoncreds.New()))
	require.NoError(t, err)

	defer func() { require.NoError(t, a.Close()) }()

	specs := supportedSpecs(a.handlers)
	require.Contains(t, specs, connection.Spec)
	require.Contains(t, specs, issuecredential.Spec)
	require.Contains(t, specs, presentproof.Spec)
	require.Contains(t, specs, revocationnotification.Spec)
	require.Contains(t, specs, mediator.CoordinationSpec)
	require.Contains(t, specs, messagepickup.Spec)

	versions := canonicalVersions(specs)
	require.Equal(t, "1.0", versions["connections"])
	require.Equal(t, "2.0", versions["revocation_notification"])
	require.Equal(t, "2.0", versions["messagepickup"])
	require.NotContains(t, versions, "routing")
}

func TestAgent_Route(t *testing.T) {
	net := newNetwork()
	a := net.join(t, "alice")

	t.Run("by family", func(t *testing.T) {
		h, err := a.route(service.DIDCommMsgMap{"@type": connection.PingMsgType, "@id": "1"})
		require.NoError(t, err)
		require.Equal(t, connection.Name, h.Name())

		h, err = a.route(service.DIDCommMsgMap{"@type": messagepickup.StatusRequestMsgType, "@id": "2"})
		require.NoError(t, err)
		require.Equal(t, messagepickup.MessagePickup, h.Name())
	})

	t.Run("generic problem report goes to the thread owner", func(t *testing.T) {
		ctx := context.Background()

		_, myKey, err := a.Wallet().CreateAndStoreDID(ctx, nil)
		require.NoError(t, err)

		_, theirKey, err := a.Wallet().CreateAndStoreDID(ctx, nil)
		require.NoError(t, err)

		thid, err := a.MediationClient().RequestMediation(ctx, &service.Connection{
			ID:          "conn",
			MyVerKey:    myKey,
			Destination: &service.Destination{RecipientKeys: []string{theirKey}, ServiceEndpoint: "loop://nobody"},
		})
		require.NoError(t, err)
		require.True(t, a.MediationClient().HasThread(thid))

		report := service.NewDIDCommMsgMap(model.NewProblemReport(model.ProblemReportMsgType, thid, "x", ""))

		h, err := a.route(report)
		require.NoError(t, err)
		require.Equal(t, mediator.Coordination, h.Name())

		report = service.NewDIDCommMsgMap(model.NewProblemReport(model.ProblemReportMsgType, "other", "x", ""))

		h, err = a.route(report)
		require.NoError(t, err)
		require.Equal(t, connection.Name, h.Name())
	})

	t.Run("unknown family", func(t *testing.T) {
		_, err := a.route(service.DIDCommMsgMap{"@type": "https://didcomm.org/unknown/1.0/x", "@id": "3"})
		require.ErrorIs(t, err, ErrNoHandler)
	})
}

func TestAgent_Receive(t *testing.T) {
	ctx := context.Background()
	net := newNetwork()
	alice := net.join(t, "alice")

	t.Run("not an envelope", func(t *testing.T) {
		require.ErrorContains(t, alice.Receive(ctx, []byte("{}")), "unpack inbound envelope")
	})

	t.Run("not a message", func(t *testing.T) {
		_, key, err := alice.Wallet().CreateAndStoreDID(ctx, nil)
		require.NoError(t, err)

		envelope, err := alice.Wallet().PackMessage(ctx, "", []string{key}, []byte(`[1]`))
		require.NoError(t, err)

		require.ErrorContains(t, alice.Receive(ctx, envelope), "parse inbound message")
	})

	t.Run("unknown message type", func(t *testing.T) {
		_, key, err := alice.Wallet().CreateAndStoreDID(ctx, nil)
		require.NoError(t, err)

		payload, err := json.Marshal(map[string]string{"@type": "https://didcomm.org/unknown/1.0/x", "@id": "1"})
		require.NoError(t, err)

		envelope, err := alice.Wallet().PackMessage(ctx, "", []string{key}, payload)
		require.NoError(t, err)

		require.ErrorIs(t, alice.Receive(ctx, envelope), ErrNoHandler)
	})
}

func TestAgent_Connection(t *testing.T) {
	ctx := context.Background()
	net := newNetwork()
	alice := net.join(t, "alice")
	bob := net.join(t, "bob")

	connID := connect(t, alice, bob, "")

	require.Eventually(t, established(bob, connID), waitFor, tick)
	require.Eventually(t, established(alice, connID), waitFor, tick)

	_, err := bob.Connections().Ping(ctx, connID, "hello")
	require.NoError(t, err)

	require.NoError(t, bob.Connections().QueryFeatures(ctx, connID, "*"))

	require.Eventually(t, func() bool {
		rec, err := bob.Connections().Lookup().GetConnectionRecord(connID)
		if err != nil {
			return false
		}

		for _, pid := range rec.Protocols {
			if pid == messagepickup.Spec {
				return true
			}
		}

		return false
	}, waitFor, tick)

	records, err := alice.Journal().List(connection.Name)
	require.NoError(t, err)
	require.NotEmpty(t, records)
}

func TestAgent_IssueCredential(t *testing.T) {
	ctx := context.Background()

	l, err := storeledger.New(mem.NewProvider())
	require.NoError(t, err)
	require.NoError(t, l.PublishCredDef(ctx, credDefID, json.RawMessage(`{"id":"CD1","value":{"primary":{}}}`)))

	// both sides share the anoncreds wallet so the holder can store what the issuer created
	ac := mockanoncreds.New()

	net := newNetwork()
	issuer := net.join(t, "issuer", WithLedger(l), WithAnonCreds(ac), WithAutoIssue())
	holder := net.join(t, "holder", WithLedger(l), WithAnonCreds(ac))

	connID := connect(t, issuer, holder, "")
	require.Eventually(t, established(issuer, connID), waitFor, tick)

	conn, err := issuer.Connections().Connection(connID)
	require.NoError(t, err)

	thid, err := issuer.Credentials().SendOffer(ctx, conn, issuecredential.SendOffer{
		CredDefID: credDefID, Attributes: map[string]string{"name": "Alice"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return holder.Credentials().HasThread(thid) }, waitFor, tick)
	require.NoError(t, holder.Credentials().AcceptOffer(ctx, thid, "did:sov:holder"))

	require.Eventually(t, func() bool { return issuer.Credentials().Closed(thid) }, waitFor, tick)
	require.Eventually(t, func() bool { return holder.Credentials().Closed(thid) }, waitFor, tick)

	rec, err := issuer.Journal().Get(issuecredential.Name, thid)
	require.NoError(t, err)
	require.True(t, rec.Terminal)

	// the credential is not revocable, a notification about a revocable one is refused
	notice, err := issuer.Revocations().Notify(ctx, conn, revocationnotification.Notify{
		RevRegID: "RR1", CredRevID: "1", AckRequested: true,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return holder.Revocations().Closed(notice) }, waitFor, tick)

	rec, err = holder.Journal().Get(revocationnotification.Name, notice)
	require.NoError(t, err)
	require.Equal(t, problemreport.CodeInvalidMessage, rec.Code)
}

func TestAgent_Mediation(t *testing.T) {
	ctx := context.Background()

	store, err := mediatorstore.NewStore(mem.NewProvider())
	require.NoError(t, err)

	net := newNetwork()
	router := net.join(t, "router", WithMediatorPersistence(store))
	recipient := net.join(t, "recipient")
	sender := net.join(t, "sender")

	routerConn := connect(t, router, recipient, "")
	require.Eventually(t, established(recipient, routerConn), waitFor, tick)
	require.Eventually(t, established(router, routerConn), waitFor, tick)

	mediationID, config, err := recipient.RequestMediation(ctx, routerConn)
	require.NoError(t, err)
	require.Equal(t, "loop://router", config.Endpoint())
	require.Equal(t, router.RoutingKeys(), config.Keys())

	inv, err := recipient.CreateInvitation(ctx, "", mediationID)
	require.NoError(t, err)
	require.Equal(t, "loop://router", inv.ServiceEndpoint)
	require.Equal(t, router.RoutingKeys(), inv.RoutingKeys)

	_, err = sender.Connections().ReceiveInvitation(ctx, inv)
	require.NoError(t, err)

	connID, err := sender.Connections().AcceptInvitation(ctx, inv.ID, "")
	require.NoError(t, err)

	// the request waits with the router until the recipient picks it up
	require.Eventually(t, func() bool {
		n, err := recipient.PickupFrom(ctx, mediationID)
		return err == nil && n == 1
	}, waitFor, tick)

	require.Eventually(t, established(recipient, connID), waitFor, tick)
	require.Eventually(t, established(sender, connID), waitFor, tick)

	n, err := recipient.PickupFrom(ctx, mediationID)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = recipient.PickupFrom(ctx, "unknown")
	require.ErrorIs(t, err, mediator.ErrRouterNotRegistered)
}
