/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
)

// Wallet is what the connection protocol needs from the wallet.
type Wallet interface {
	wallet.Signer
	wallet.DIDCreator
}

// Config of the connection protocol.
type Config struct {
	// Label announced in invitations and requests.
	Label string
	// Endpoint is the local service endpoint put in invitations and DID documents.
	Endpoint string
	// RoutingKeys are the mediator keys put in invitations and DID documents.
	RoutingKeys []string
	// Protocols are disclosed to counterparties querying features.
	Protocols []Protocol
	Policy    problemreport.Policy
}

// protocol implements engine.Protocol[State].
type protocol struct {
	wallet Wallet
	config Config
	now    func() time.Time
}

func newProtocol(w Wallet, config Config) *protocol {
	return &protocol{wallet: w, config: config, now: time.Now}
}

// Name implements engine.Protocol.
func (p *protocol) Name() string { return Name }

// Timeout implements engine.Protocol.
func (p *protocol) Timeout(current State, thid string) State {
	if current.Terminal() {
		return current
	}

	return &Failed{Report: p.config.Policy.Timeout(thid)}
}

// Transition implements engine.Protocol.
func (p *protocol) Transition(ctx context.Context, current State, in engine.Input) (State, []service.DIDCommMsgMap,
	error) {
	if pr, ok := in.(*ProblemReport); ok {
		if _, done := current.(*Completed); done {
			return nil, nil, engine.NewUnexpected(Name, current, in)
		}

		report, out := p.config.Policy.Remote(pr.ProblemReport)

		return &Failed{Report: report}, out, nil
	}

	switch s := current.(type) {
	case *InviterInitial:
		if cmd, ok := in.(*CreateInvitation); ok {
			return p.createInvitation(ctx, cmd)
		}
	case *InviterInvited:
		if req, ok := in.(*Request); ok {
			return p.handleRequest(ctx, s, req)
		}
	case *InviterResponded:
		switch msg := in.(type) {
		case *Ack:
			return s.complete(), nil, nil
		case *Ping:
			return s.complete(), engine.Outbound(pingResponse(msg)), nil
		}
	case *InviteeInitial:
		if inv, ok := in.(*Invitation); ok {
			return p.handleInvitation(inv)
		}
	case *InviteeInvited:
		if cmd, ok := in.(*Accept); ok {
			return p.accept(ctx, s, cmd)
		}
	case *InviteeRequested:
		if resp, ok := in.(*Response); ok {
			return p.handleResponse(ctx, s, resp)
		}
	case *Completed:
		return p.completed(s, in)
	}

	return nil, nil, engine.NewUnexpected(Name, current, in)
}

func (p *protocol) createInvitation(ctx context.Context, cmd *CreateInvitation) (State, []service.DIDCommMsgMap,
	error) {
	_, verKey, err := p.wallet.CreateAndStoreDID(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create invitation key: %w", err)
	}

	inv := &Invitation{
		Type:            InvitationMsgType,
		ID:              cmd.InvitationID,
		Label:           firstNonEmpty(cmd.Label, p.config.Label),
		RecipientKeys:   []string{verKey},
		ServiceEndpoint: firstNonEmpty(cmd.Endpoint, p.config.Endpoint),
		RoutingKeys:     cmd.RoutingKeys,
	}

	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}

	if inv.RoutingKeys == nil {
		inv.RoutingKeys = p.config.RoutingKeys
	}

	return &InviterInvited{Invitation: inv, MyKey: verKey}, engine.Outbound(inv), nil
}

func (p *protocol) handleRequest(ctx context.Context, s *InviterInvited, req *Request) (State,
	[]service.DIDCommMsgMap, error) {
	if err := validateRequest(req); err != nil {
		report, out := p.config.Policy.Local(req.ID, problemreport.CodeRequestNotAccepted, err)
		bindParent(out, s.Invitation.ID)

		return &Failed{Report: report}, out, nil
	}

	did, verKey, err := p.wallet.CreateAndStoreDID(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create pairwise DID: %w", err)
	}

	myDoc := legacydid.New(did, verKey, p.config.Endpoint, p.config.RoutingKeys)

	sig, err := signConnection(ctx, p.wallet, &Connection{DID: myDoc.ID, DIDDoc: myDoc}, s.MyKey, p.now())
	if err != nil {
		return nil, nil, err
	}

	resp := &Response{
		Type:                ResponseMsgType,
		ID:                  uuid.New().String(),
		ConnectionSignature: sig,
		Decorators:          decorator.OnThread(req.ID, s.Invitation.ID),
	}
	resp.PleaseAck = &decorator.PleaseAck{On: []string{decorator.AckOnReceipt}}

	return &InviterResponded{
		Invitation: s.Invitation,
		Request:    req,
		TheirDoc:   req.Connection.DIDDoc,
		MyDoc:      myDoc,
		Response:   resp,
		MyKey:      verKey,
	}, engine.Outbound(resp), nil
}

func (p *protocol) handleInvitation(inv *Invitation) (State, []service.DIDCommMsgMap, error) {
	if err := validateInvitation(inv); err != nil {
		report, _ := p.config.Policy.Local(inv.ID, problemreport.CodeInvalidMessage, err)

		return &Failed{Report: report}, nil, nil
	}

	return &InviteeInvited{Invitation: inv}, nil, nil
}

func (p *protocol) accept(ctx context.Context, s *InviteeInvited, cmd *Accept) (State, []service.DIDCommMsgMap,
	error) {
	did, verKey, err := p.wallet.CreateAndStoreDID(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create pairwise DID: %w", err)
	}

	myDoc := legacydid.New(did, verKey, p.config.Endpoint, p.config.RoutingKeys)

	req := &Request{
		Type:       RequestMsgType,
		ID:         uuid.New().String(),
		Label:      firstNonEmpty(cmd.Label, p.config.Label),
		Connection: &Connection{DID: myDoc.ID, DIDDoc: myDoc},
		Decorators: decorator.OnThread("", s.Invitation.ID),
	}

	return &InviteeRequested{Invitation: s.Invitation, Request: req, MyDoc: myDoc, MyKey: verKey},
		engine.Outbound(req), nil
}

func (p *protocol) handleResponse(ctx context.Context, s *InviteeRequested, resp *Response) (State,
	[]service.DIDCommMsgMap, error) {
	invitationKey, err := invitationKey(s.Invitation)
	if err != nil {
		return p.rejectResponse(s, err)
	}

	conn, err := verifyConnection(ctx, p.wallet, resp.ConnectionSignature, invitationKey)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			return p.rejectResponse(s, err)
		}

		return nil, nil, err
	}

	if conn.DIDDoc == nil {
		return p.rejectResponse(s, errors.New("connection block carries no DID document"))
	}

	if err = conn.DIDDoc.Validate(); err != nil {
		return p.rejectResponse(s, err)
	}

	theirKeys, err := conn.DIDDoc.RecipientKeys()
	if err != nil {
		return p.rejectResponse(s, err)
	}

	ack := &Ack{
		Type:       AckMsgType,
		ID:         uuid.New().String(),
		Status:     model.AckStatusOK,
		Decorators: decorator.OnThread(s.Request.ID, ""),
	}

	return &Completed{
		TheirDoc:     conn.DIDDoc,
		MyDoc:        s.MyDoc,
		BootstrapDoc: bootstrapDoc(s.Invitation),
		MyKey:        s.MyKey,
		TheirKey:     theirKeys[0],
		InvitationID: s.Invitation.ID,
		TheirLabel:   s.Invitation.Label,
	}, engine.Outbound(ack), nil
}

func (p *protocol) rejectResponse(s *InviteeRequested, err error) (State, []service.DIDCommMsgMap, error) {
	report, out := p.config.Policy.Local(s.Request.ID, problemreport.CodeResponseNotAccepted, err)

	return &Failed{Report: report}, out, nil
}

func (p *protocol) completed(s *Completed, in engine.Input) (State, []service.DIDCommMsgMap, error) {
	switch msg := in.(type) {
	case *Ping:
		if !msg.ResponseRequested {
			return s, nil, nil
		}

		return s, engine.Outbound(pingResponse(msg)), nil
	case *Query:
		disclose := &Disclose{
			Type:       DiscloseMsgType,
			ID:         uuid.New().String(),
			Protocols:  matchProtocols(p.config.Protocols, msg.Query),
			Decorators: decorator.OnThread(msg.ID, ""),
		}

		return s, engine.Outbound(disclose), nil
	case *Disclose:
		next := *s
		next.Protocols = append([]Protocol(nil), msg.Protocols...)

		return &next, nil, nil
	}

	return nil, nil, engine.NewUnexpected(Name, s, in)
}

func (s *InviterResponded) complete() *Completed {
	theirKey := ""
	if keys, err := s.TheirDoc.RecipientKeys(); err == nil && len(keys) > 0 {
		theirKey = keys[0]
	}

	return &Completed{
		TheirDoc:     s.TheirDoc,
		MyDoc:        s.MyDoc,
		MyKey:        s.MyKey,
		TheirKey:     theirKey,
		InvitationID: s.Invitation.ID,
		TheirLabel:   s.Request.Label,
	}
}

func pingResponse(ping *Ping) *PingResponse {
	return &PingResponse{
		Type:       PingResponseMsgType,
		ID:         uuid.New().String(),
		Decorators: decorator.OnThread(ping.ID, ""),
	}
}

func validateRequest(req *Request) error {
	if req.ID == "" {
		return errors.New("request has no id")
	}

	if req.Connection == nil || req.Connection.DIDDoc == nil {
		return errors.New("request carries no DID document")
	}

	if err := req.Connection.DIDDoc.Validate(); err != nil {
		return err
	}

	if _, err := service.CreateDestination(req.Connection.DIDDoc); err != nil {
		return err
	}

	return nil
}

func validateInvitation(inv *Invitation) error {
	if inv.ID == "" {
		return errors.New("invitation has no id")
	}

	if inv.DID != "" {
		return nil
	}

	if inv.ServiceEndpoint == "" {
		return errors.New("invitation has no service endpoint")
	}

	if _, err := invitationKey(inv); err != nil {
		return err
	}

	for _, k := range inv.RoutingKeys {
		if _, err := legacydid.ToVerKey(k); err != nil {
			return fmt.Errorf("invitation routing key: %w", err)
		}
	}

	return nil
}

func invitationKey(inv *Invitation) (string, error) {
	if len(inv.RecipientKeys) == 0 {
		return "", errors.New("invitation has no recipient keys")
	}

	return legacydid.ToVerKey(inv.RecipientKeys[0])
}

// bootstrapDoc builds the inviter document implied by an inline invitation.
func bootstrapDoc(inv *Invitation) *legacydid.Doc {
	key, err := invitationKey(inv)
	if err != nil {
		return nil
	}

	routingKeys := make([]string, 0, len(inv.RoutingKeys))

	for _, k := range inv.RoutingKeys {
		if vk, e := legacydid.ToVerKey(k); e == nil {
			routingKeys = append(routingKeys, vk)
		}
	}

	return legacydid.New(inv.ID, key, inv.ServiceEndpoint, routingKeys)
}

// invitationDestination is where an invitee sends its request.
func invitationDestination(inv *Invitation) (*service.Destination, error) {
	doc := bootstrapDoc(inv)
	if doc == nil {
		return nil, errors.New("invitation has no usable recipient key")
	}

	return service.CreateDestination(doc)
}

// matchProtocols returns the protocols matching query, a protocol id optionally ending with "*".
func matchProtocols(protocols []Protocol, query string) []Protocol {
	matched := []Protocol{}

	for _, pr := range protocols {
		if query == "*" || pr.PID == query ||
			(strings.HasSuffix(query, "*") && strings.HasPrefix(pr.PID, strings.TrimSuffix(query, "*"))) {
			matched = append(matched, pr)
		}
	}

	return matched
}

// bindParent sets the parent thread of outbound reports.
func bindParent(out []service.DIDCommMsgMap, pthid string) {
	for _, msg := range out {
		thid, err := msg.ThreadID()
		if err != nil {
			continue
		}

		msg.SetThread(thid, pthid)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
