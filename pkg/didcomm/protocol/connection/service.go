/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package connection implements the Aries connection protocol (RFC 0160) with trust ping and discover
// features on established connections.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/registry"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
	connstore "github.com/hyperledger/aries-protocol-engine/pkg/store/connection"
)

var logger = log.New("aries-framework/protocol/connection")

// ErrConnectionNotFound is returned when no established connection matches.
var ErrConnectionNotFound = errors.New("connection not found")

// Service runs connection protocol machines.
type Service struct {
	*runner.Runner[State]
	protocol *protocol
	recorder *connstore.Recorder

	mu sync.Mutex
	// keys maps invitation keys and counterparty keys to the thread they belong to.
	keys map[string]string

	// answering serializes inputs on established connections.
	answering sync.Mutex
}

// New returns the connection service. Records of established connections are kept in provider.
func New(w Wallet, provider storage.Provider, config Config, opts ...runner.Opt) (*Service, error) {
	recorder, err := connstore.NewRecorder(provider)
	if err != nil {
		return nil, fmt.Errorf("new connection service: %w", err)
	}

	if config.Policy.MsgType == "" {
		config.Policy = problemreport.Default(ProblemReportMsgType)
	}

	p := newProtocol(w, config)

	opts = append(opts, runner.WithRebind(rebind))

	return &Service{
		Runner:   runner.New[State](p, opts...),
		protocol: p,
		recorder: recorder,
		keys:     map[string]string{},
	}, nil
}

// rebind moves both sides to the request id once the request is known.
func rebind(state engine.State) string {
	switch s := state.(type) {
	case *InviterResponded:
		return s.Request.ID
	case *InviteeRequested:
		return s.Request.ID
	}

	return ""
}

// Accept tells whether msgType belongs to the connection, trust ping or discover features families.
func (s *Service) Accept(msgType string) bool {
	return strings.HasPrefix(msgType, Spec) || strings.HasPrefix(msgType, TrustPingSpec) ||
		strings.HasPrefix(msgType, DiscoverFeaturesSpec) || msgType == AckMsgType ||
		msgType == model.ProblemReportMsgType
}

// HasThread tells whether a live machine runs on thid.
func (s *Service) HasThread(thid string) bool {
	_, ok := s.Threads().LookupRole(thid)

	return ok
}

// HandleInbound handles an inbound connection protocol message. Messages the addressed machine does not expect
// are dropped.
func (s *Service) HandleInbound(ctx context.Context, msg service.DIDCommMsgMap, ic service.InboundContext) error {
	err := s.dispatch(runner.WithInbound(ctx, msg), msg, ic)
	if errors.Is(err, engine.ErrUnexpected) {
		return nil
	}

	return err
}

func (s *Service) dispatch(ctx context.Context, msg service.DIDCommMsgMap, ic service.InboundContext) error {
	switch msg.Type() {
	case InvitationMsgType:
		inv := &Invitation{}
		if err := msg.Decode(inv); err != nil {
			return fmt.Errorf("decode invitation: %w", err)
		}

		_, err := s.ReceiveInvitation(ctx, inv)

		return err
	case RequestMsgType:
		req := &Request{}
		if err := msg.Decode(req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		thid := req.ThreadID()
		if thid == "" {
			thid = s.threadOfKey(ic.RecipientVerKey)
		}

		return s.handle(ctx, thid, req)
	case ResponseMsgType:
		resp := &Response{}
		if err := msg.Decode(resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		return s.handle(ctx, resp.ThreadID(), resp)
	case AckMsgType:
		ack := &Ack{}
		if err := msg.Decode(ack); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}

		return s.handle(ctx, ack.ThreadID(), ack)
	case ProblemReportMsgType, model.ProblemReportMsgType:
		pr := &model.ProblemReport{}
		if err := msg.Decode(pr); err != nil {
			return fmt.Errorf("decode problem report: %w", err)
		}

		return s.handle(ctx, pr.ThreadID(), &ProblemReport{ProblemReport: pr})
	case PingMsgType:
		ping := &Ping{}
		if err := msg.Decode(ping); err != nil {
			return fmt.Errorf("decode ping: %w", err)
		}

		return s.handleOnConnection(ctx, ic, ping)
	case QueryMsgType:
		query := &Query{}
		if err := msg.Decode(query); err != nil {
			return fmt.Errorf("decode query: %w", err)
		}

		return s.handleOnConnection(ctx, ic, query)
	case DiscloseMsgType:
		disclose := &Disclose{}
		if err := msg.Decode(disclose); err != nil {
			return fmt.Errorf("decode disclose: %w", err)
		}

		return s.handleOnConnection(ctx, ic, disclose)
	case PingResponseMsgType:
		logger.Debugf("ping response received from %s", ic.SenderVerKey)

		return nil
	}

	return fmt.Errorf("%s: unsupported message type %s", Name, msg.Type())
}

// CreateInvitation starts an inviter machine and returns the invitation to hand to the invitee out of band.
func (s *Service) CreateInvitation(ctx context.Context, cmd *CreateInvitation) (*Invitation, error) {
	c := *cmd
	if c.InvitationID == "" {
		c.InvitationID = uuid.New().String()
	}

	m, _, err := s.Start(ctx, c.InvitationID, engine.RoleInviter, &InviterInitial{}, &c, nil)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	invited, ok := m.State().(*InviterInvited)
	if !ok {
		return nil, fmt.Errorf("create invitation: unexpected state %s", m.State().Name())
	}

	s.index(invited.MyKey, m.ThreadID())

	return invited.Invitation, nil
}

// ReceiveInvitation starts an invitee machine on inv. An invalid invitation fails the machine; the failed
// machine is returned without error.
func (s *Service) ReceiveInvitation(ctx context.Context, inv *Invitation) (engine.Machine[State], error) {
	m, _, err := s.Start(ctx, inv.ID, engine.RoleInvitee, &InviteeInitial{}, inv, nil)
	if err != nil {
		return m, fmt.Errorf("receive invitation: %w", err)
	}

	return m, nil
}

// AcceptInvitation answers the invitation received on thid with a request. The machine moves to the request
// id, which is returned as the connection id.
func (s *Service) AcceptInvitation(ctx context.Context, thid, label string) (string, error) {
	if err := s.handle(ctx, thid, &Accept{Label: label}); err != nil {
		return "", fmt.Errorf("accept invitation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.keys[acceptedKey(thid)], nil
}

// Ping sends a trust ping on an established connection and returns the ping id.
func (s *Service) Ping(ctx context.Context, connectionID, comment string) (string, error) {
	conn, err := s.Connection(connectionID)
	if err != nil {
		return "", err
	}

	ping := &Ping{
		Type:              PingMsgType,
		ID:                uuid.New().String(),
		Comment:           comment,
		ResponseRequested: true,
	}

	if err = s.Send(ctx, connectionID, engine.Outbound(ping), conn); err != nil {
		return "", fmt.Errorf("ping: %w", err)
	}

	return ping.ID, nil
}

// QueryFeatures asks the counterparty of an established connection which protocols it supports. The answer
// is recorded on the connection.
func (s *Service) QueryFeatures(ctx context.Context, connectionID, query string) error {
	conn, err := s.Connection(connectionID)
	if err != nil {
		return err
	}

	q := &Query{Type: QueryMsgType, ID: uuid.New().String(), Query: query}

	if err = s.Send(ctx, connectionID, engine.Outbound(q), conn); err != nil {
		return fmt.Errorf("query features: %w", err)
	}

	return nil
}

// Connection returns the established connection connectionID in the form other protocols use.
func (s *Service) Connection(connectionID string) (*service.Connection, error) {
	rec, err := s.recorder.GetConnectionRecord(connectionID)
	if err != nil {
		if errors.Is(err, connstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
		}

		return nil, err
	}

	return toConnection(rec), nil
}

// ConnectionByTheirKey returns the established connection whose counterparty uses verKey.
func (s *Service) ConnectionByTheirKey(verKey string) (*service.Connection, error) {
	rec, err := s.recorder.GetConnectionRecordByTheirKey(verKey)
	if err != nil {
		if errors.Is(err, connstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: their key %s", ErrConnectionNotFound, verKey)
		}

		return nil, err
	}

	return toConnection(rec), nil
}

// Lookup returns the connection record store.
func (s *Service) Lookup() *connstore.Lookup {
	return s.recorder.Lookup
}

func (s *Service) handle(ctx context.Context, thid string, in engine.Input) error {
	if thid == "" {
		return fmt.Errorf("%s: %s carries no thread id: %w", Name, in.InputName(), service.ErrThreadIDNotFound)
	}

	prev, err := s.Get(ctx, thid)
	if err != nil {
		if !errors.Is(err, registry.ErrThreadNotFound) {
			return err
		}

		// finished and rebound threads reject in as unexpected
		_, _, err = s.Handle(ctx, thid, in, nil)

		return err
	}

	next, out, err := s.Handle(ctx, thid, in, nil)
	if err != nil {
		return err
	}

	s.committed(thid, next)

	return s.Send(ctx, next.ThreadID(), out, destination(prev.State(), next.State(), in))
}

// handleOnConnection applies in to the connection the sender belongs to. An inviter still waiting for the
// invitee's confirmation completes on it; established connections answer from their record.
func (s *Service) handleOnConnection(ctx context.Context, ic service.InboundContext, in engine.Input) error {
	thid := ""
	if ic.Connection != nil {
		thid = ic.Connection.ID
	}

	if thid == "" {
		thid = s.threadOfKey(ic.SenderVerKey)
	}

	if thid == "" {
		rec, err := s.recorder.GetConnectionRecordByTheirKey(ic.SenderVerKey)
		if err != nil {
			return fmt.Errorf("%s from unknown sender: %w", in.InputName(), err)
		}

		thid = rec.ConnectionID
	}

	if s.HasThread(thid) {
		return s.handle(ctx, thid, in)
	}

	return s.answer(ctx, thid, in)
}

// answer applies in to the established connection connectionID as recorded. Established connections hold no
// machine in the registry.
func (s *Service) answer(ctx context.Context, connectionID string, in engine.Input) error {
	s.answering.Lock()
	defer s.answering.Unlock()

	rec, err := s.recorder.GetConnectionRecord(connectionID)
	if err != nil {
		if errors.Is(err, connstore.ErrNotFound) {
			return fmt.Errorf("%s: %w: %s", in.InputName(), ErrConnectionNotFound, connectionID)
		}

		return err
	}

	current := established(rec)

	next, out, err := s.protocol.completed(current, in)
	if err != nil {
		return err
	}

	s.index(rec.TheirVerKey, connectionID)

	if st, ok := next.(*Completed); ok && st != current {
		m := engine.New[State](s.protocol, connectionID, engine.Role(rec.Role), next)
		if err = s.save(m, st); err != nil {
			return fmt.Errorf("save connection %s: %w", connectionID, err)
		}
	}

	return s.Send(ctx, connectionID, out, toConnection(rec))
}

// established restores the completed state of a recorded connection.
func established(rec *connstore.Record) *Completed {
	protocols := make([]Protocol, 0, len(rec.Protocols))
	for _, pid := range rec.Protocols {
		protocols = append(protocols, Protocol{PID: pid})
	}

	return &Completed{
		MyKey:        rec.MyVerKey,
		TheirKey:     rec.TheirVerKey,
		InvitationID: rec.InvitationID,
		TheirLabel:   rec.TheirLabel,
		Protocols:    protocols,
	}
}

// committed keeps the key index and the connection records in line with a committed machine.
func (s *Service) committed(thid string, m engine.Machine[State]) {
	switch st := m.State().(type) {
	case *InviterResponded:
		if keys, err := st.TheirDoc.RecipientKeys(); err == nil {
			for _, k := range keys {
				s.index(k, m.ThreadID())
			}
		}
	case *InviteeRequested:
		s.index(acceptedKey(thid), m.ThreadID())
	case *Completed:
		s.index(st.TheirKey, m.ThreadID())

		if err := s.save(m, st); err != nil {
			logger.Errorf("save connection %s: %s", m.ThreadID(), err)
		}
	case *Failed:
		s.unindex(m.ThreadID())
	}
}

func (s *Service) save(m engine.Machine[State], st *Completed) error {
	pids := make([]string, 0, len(st.Protocols))
	for _, pr := range st.Protocols {
		pids = append(pids, pr.PID)
	}

	if st.TheirDoc == nil {
		rec, err := s.recorder.GetConnectionRecord(m.ThreadID())
		if err != nil {
			return err
		}

		rec.Protocols = pids

		return s.recorder.SaveConnectionRecord(rec)
	}

	dest, err := service.CreateDestination(st.TheirDoc)
	if err != nil {
		return err
	}

	rec := &connstore.Record{
		ConnectionID:    m.ThreadID(),
		State:           st.Name(),
		ThreadID:        m.ThreadID(),
		ParentThreadID:  st.InvitationID,
		Role:            string(m.Role()),
		TheirLabel:      st.TheirLabel,
		TheirDID:        st.TheirDoc.ID,
		MyVerKey:        st.MyKey,
		TheirVerKey:     st.TheirKey,
		ServiceEndPoint: dest.ServiceEndpoint,
		RecipientKeys:   dest.RecipientKeys,
		RoutingKeys:     dest.RoutingKeys,
		InvitationID:    st.InvitationID,
		Protocols:       pids,
	}

	if st.MyDoc != nil {
		rec.MyDID = st.MyDoc.ID
	}

	return s.recorder.SaveConnectionRecord(rec)
}

func (s *Service) index(key, thid string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	s.keys[key] = thid
	s.mu.Unlock()
}

func (s *Service) unindex(thid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.keys {
		if v == thid {
			delete(s.keys, k)
		}
	}
}

func (s *Service) threadOfKey(key string) string {
	if key == "" {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.keys[key]
}

// acceptedKey indexes the connection id an invitation was accepted under.
func acceptedKey(invitationID string) string {
	return "accepted_" + invitationID
}

// destination returns where the messages of a transition from prev to next go and the key they are sent
// with, nil when they stay local.
func destination(prev, next State, in engine.Input) *service.Connection {
	switch st := next.(type) {
	case *InviterResponded:
		return docConnection(st.MyKey, st.TheirDoc)
	case *InviteeRequested:
		dest, err := invitationDestination(st.Invitation)
		if err != nil {
			return nil
		}

		return &service.Connection{MyVerKey: st.MyKey, Destination: dest}
	case *Completed:
		return docConnection(st.MyKey, st.TheirDoc)
	case *Failed:
		return failedDestination(prev, in)
	}

	return nil
}

func failedDestination(prev State, in engine.Input) *service.Connection {
	switch st := prev.(type) {
	case *InviterInvited:
		if req, ok := in.(*Request); ok && req.Connection != nil {
			return docConnection(st.MyKey, req.Connection.DIDDoc)
		}
	case *InviterResponded:
		return docConnection(st.MyKey, st.TheirDoc)
	case *InviteeRequested:
		dest, err := invitationDestination(st.Invitation)
		if err != nil {
			return nil
		}

		return &service.Connection{MyVerKey: st.MyKey, Destination: dest}
	}

	return nil
}

func docConnection(myKey string, doc *legacydid.Doc) *service.Connection {
	if doc == nil {
		return nil
	}

	dest, err := service.CreateDestination(doc)
	if err != nil {
		return nil
	}

	return &service.Connection{MyVerKey: myKey, TheirVerKey: dest.RecipientKeys[0], Destination: dest}
}

func toConnection(rec *connstore.Record) *service.Connection {
	return &service.Connection{
		ID:          rec.ConnectionID,
		MyVerKey:    rec.MyVerKey,
		TheirVerKey: rec.TheirVerKey,
		Destination: &service.Destination{
			RecipientKeys:   rec.RecipientKeys,
			ServiceEndpoint: rec.ServiceEndPoint,
			RoutingKeys:     rec.RoutingKeys,
		},
	}
}
