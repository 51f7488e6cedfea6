/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package issuecredential implements the Aries issue credential protocol 1.0 (RFC 0036) for anoncreds
// credentials, in the issuer and holder roles.
package issuecredential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
)

var logger = log.New("aries-framework/protocol/issuecredential")

const (
	// StoreName is the store issued credential revocation info is kept in.
	StoreName = "issuecredential"

	revocationKeyPrefix = "revocation_"
	heldKeyPrefix       = "held_"
)

var (
	// ErrNotRevocable is returned by Revoke for a thread that did not issue a revocable credential.
	ErrNotRevocable = errors.New("no revocable credential issued on thread")
	// ErrAlreadyRevoked is returned by Revoke for a credential revoked before.
	ErrAlreadyRevoked = errors.New("credential already revoked")
)

// revocationRecord is kept per issuer thread that issued a revocable credential.
type revocationRecord struct {
	RevocationInfo
	Revoked bool `json:"revoked,omitempty"`
}

// Service runs issue-credential machines.
type Service struct {
	*runner.Runner[State]
	protocol *protocol
	store    storage.Store

	mu    sync.Mutex
	conns map[string]*service.Connection
}

// New returns the issue-credential service. write may be nil for agents that never issue revocable
// credentials.
func New(ac anoncreds.AnonCreds, read ledger.Read, write ledger.Write, provider storage.Provider, config Config,
	opts ...runner.Opt) (*Service, error) {
	store, err := provider.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("open issue-credential store: %w", err)
	}

	if config.Policy.MsgType == "" {
		config.Policy = problemreport.Default(ProblemReportMsgType)
	}

	p := &protocol{anoncreds: ac, read: read, write: write, config: config}

	return &Service{
		Runner:   runner.New[State](p, opts...),
		protocol: p,
		store:    store,
		conns:    map[string]*service.Connection{},
	}, nil
}

// Accept tells whether msgType belongs to the issue-credential family.
func (s *Service) Accept(msgType string) bool {
	return strings.HasPrefix(msgType, Spec)
}

// HasThread tells whether a live machine runs on thid.
func (s *Service) HasThread(thid string) bool {
	_, ok := s.Threads().LookupRole(thid)

	return ok
}

// HandleInbound handles an inbound issue-credential message. Messages the addressed machine does not expect,
// such as redelivered ones, are dropped.
func (s *Service) HandleInbound(ctx context.Context, msg service.DIDCommMsgMap, ic service.InboundContext) error {
	err := s.dispatch(runner.WithInbound(ctx, msg), msg, ic)
	if errors.Is(err, engine.ErrUnexpected) {
		logger.Debugf("dropped %s: %s", msg.Type(), err)

		return nil
	}

	return err
}

func (s *Service) dispatch(ctx context.Context, msg service.DIDCommMsgMap, ic service.InboundContext) error {
	switch msg.Type() {
	case ProposeCredentialMsgType:
		proposal := &ProposeCredential{}
		if err := msg.Decode(proposal); err != nil {
			return fmt.Errorf("decode proposal: %w", err)
		}

		return s.startOrHandle(ctx, threadOf(proposal.ID, &proposal.Decorators), engine.RoleIssuer,
			&IssuerInitial{}, proposal, ic.Connection)
	case OfferCredentialMsgType:
		offer := &OfferCredential{}
		if err := msg.Decode(offer); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}

		return s.startOrHandle(ctx, threadOf(offer.ID, &offer.Decorators), engine.RoleHolder, &HolderInitial{},
			offer, ic.Connection)
	case RequestCredentialMsgType:
		request := &RequestCredential{}
		if err := msg.Decode(request); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		return s.handle(ctx, request.ThreadID(), request, ic.Connection)
	case IssueCredentialMsgType:
		issue := &IssueCredential{}
		if err := msg.Decode(issue); err != nil {
			return fmt.Errorf("decode credential: %w", err)
		}

		return s.handle(ctx, issue.ThreadID(), issue, ic.Connection)
	case AckMsgType, model.AckMsgType:
		ack := &model.Ack{}
		if err := msg.Decode(ack); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}

		return s.handle(ctx, ack.ThreadID(), &Ack{Ack: ack}, ic.Connection)
	case ProblemReportMsgType, model.ProblemReportMsgType:
		pr := &model.ProblemReport{}
		if err := msg.Decode(pr); err != nil {
			return fmt.Errorf("decode problem report: %w", err)
		}

		return s.handle(ctx, pr.ThreadID(), &ProblemReport{ProblemReport: pr}, ic.Connection)
	}

	return fmt.Errorf("%s: unsupported message type %s", Name, msg.Type())
}

// SendOffer starts an issuer thread with an offer to conn and returns the thread id.
func (s *Service) SendOffer(ctx context.Context, conn *service.Connection, cmd SendOffer) (string, error) {
	if cmd.ThreadID == "" {
		cmd.ThreadID = uuid.New().String()
	}

	if err := s.start(ctx, cmd.ThreadID, engine.RoleIssuer, &IssuerInitial{}, &cmd, conn); err != nil {
		return "", fmt.Errorf("send offer: %w", err)
	}

	return cmd.ThreadID, nil
}

// SendProposal starts a holder thread with a proposal to conn and returns the thread id.
func (s *Service) SendProposal(ctx context.Context, conn *service.Connection, cmd SendProposal) (string, error) {
	if cmd.ThreadID == "" {
		cmd.ThreadID = uuid.New().String()
	}

	if err := s.start(ctx, cmd.ThreadID, engine.RoleHolder, &HolderInitial{}, &cmd, conn); err != nil {
		return "", fmt.Errorf("send proposal: %w", err)
	}

	return cmd.ThreadID, nil
}

// AcceptProposal answers the proposal received on thid with an offer. It also replaces an offer the holder did
// not answer yet.
func (s *Service) AcceptProposal(ctx context.Context, thid string, cmd SendOffer) error {
	return s.handle(ctx, thid, &cmd, nil)
}

// AcceptOffer requests the credential offered on thid.
func (s *Service) AcceptOffer(ctx context.Context, thid, proverDID string) error {
	return s.handle(ctx, thid, &SendRequest{ProverDID: proverDID}, nil)
}

// NegotiateOffer answers the offer received on thid with a counter proposal.
func (s *Service) NegotiateOffer(ctx context.Context, thid string, cmd SendProposal) error {
	return s.handle(ctx, thid, &cmd, nil)
}

// AcceptRequest issues the credential requested on thid. Services configured with AutoIssue never need it.
func (s *Service) AcceptRequest(ctx context.Context, thid string) error {
	return s.handle(ctx, thid, &Issue{}, nil)
}

// Decline refuses the proposal or offer received on thid.
func (s *Service) Decline(ctx context.Context, thid, comment string) error {
	return s.handle(ctx, thid, &Decline{Comment: comment}, nil)
}

// Revoke revokes the credential issued on thid and publishes the resulting registry delta. The returned info
// identifies the credential for a revocation notification.
func (s *Service) Revoke(ctx context.Context, thid string) (*RevocationInfo, error) {
	rec, err := s.revocation(thid)
	if err != nil {
		return nil, err
	}

	if rec.Revoked {
		return nil, fmt.Errorf("%w: thread %s", ErrAlreadyRevoked, thid)
	}

	if s.protocol.write == nil {
		return nil, errors.New("revoke: no ledger writer configured")
	}

	delta, err := s.protocol.anoncreds.RevokeCredential(ctx, rec.TailsFile, rec.RevRegID, rec.CredRevID)
	if err != nil {
		return nil, fmt.Errorf("revoke credential: %w", err)
	}

	if _, err = s.protocol.write.PublishRevRegDelta(ctx, rec.RevRegID, delta); err != nil {
		return nil, fmt.Errorf("publish registry delta: %w", err)
	}

	rec.Revoked = true

	if err = s.putRevocation(thid, rec); err != nil {
		logger.Errorf("thread %s: credential revoked but not recorded: %s", thid, err)
	}

	info := rec.RevocationInfo

	return &info, nil
}

func (s *Service) startOrHandle(ctx context.Context, thid string, role engine.Role, initial State,
	in engine.Input, conn *service.Connection) error {
	if s.HasThread(thid) {
		return s.handle(ctx, thid, in, conn)
	}

	return s.start(ctx, thid, role, initial, in, conn)
}

func (s *Service) start(ctx context.Context, thid string, role engine.Role, initial State, in engine.Input,
	conn *service.Connection) error {
	m, _, err := s.Start(ctx, thid, role, initial, in, conn)
	if m.ThreadID() != "" && (m.Terminal() || s.HasThread(m.ThreadID())) {
		s.committed(m, conn)
	}

	return err
}

func (s *Service) handle(ctx context.Context, thid string, in engine.Input, conn *service.Connection) error {
	if thid == "" {
		return fmt.Errorf("%s: %s carries no thread id: %w", Name, in.InputName(), service.ErrThreadIDNotFound)
	}

	if conn == nil {
		conn = s.connection(thid)
	}

	next, _, err := s.Handle(ctx, thid, in, conn)
	if next.ThreadID() != "" {
		s.committed(next, conn)
	}

	return err
}

// committed keeps track of the counterparty of live threads and records revocation info of issued
// credentials.
func (s *Service) committed(m engine.Machine[State], conn *service.Connection) {
	thid := m.ThreadID()

	if !m.Terminal() {
		if conn != nil {
			s.mu.Lock()
			s.conns[thid] = conn
			s.mu.Unlock()
		}

		return
	}

	s.mu.Lock()
	delete(s.conns, thid)
	s.mu.Unlock()

	st, ok := m.State().(*Finished)
	if !ok || st.Status != StatusSuccess {
		return
	}

	if st.Revocation != nil {
		if err := s.putRevocation(thid, &revocationRecord{RevocationInfo: *st.Revocation}); err != nil {
			logger.Errorf("thread %s: record revocation info: %s", thid, err)
		}
	}

	if st.RevRegID != "" && st.CredRevID != "" {
		if err := s.store.Put(heldKey(st.RevRegID, st.CredRevID), []byte(thid)); err != nil {
			logger.Errorf("thread %s: record held credential: %s", thid, err)
		}
	}
}

// Holds tells whether a revocable credential with index credRevID in registry revRegID was received as
// holder.
func (s *Service) Holds(revRegID, credRevID string) (bool, error) {
	_, err := s.store.Get(heldKey(revRegID, credRevID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("get held credential: %w", err)
	}

	return true, nil
}

func heldKey(revRegID, credRevID string) string {
	return heldKeyPrefix + revRegID + "::" + credRevID
}

func (s *Service) connection(thid string) *service.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conns[thid]
}

func (s *Service) revocation(thid string) (*revocationRecord, error) {
	b, err := s.store.Get(revocationKeyPrefix + thid)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: thread %s", ErrNotRevocable, thid)
		}

		return nil, fmt.Errorf("get revocation info: %w", err)
	}

	rec := &revocationRecord{}
	if err = json.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("unmarshal revocation info: %w", err)
	}

	return rec, nil
}

func (s *Service) putRevocation(thid string, rec *revocationRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.store.Put(revocationKeyPrefix+thid, b)
}
