/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package presentproof implements the Aries present proof protocol 1.0 (RFC 0037) for anoncreds presentations,
// in the verifier and prover roles.
package presentproof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
)

var logger = log.New("aries-framework/protocol/presentproof")

const (
	// Name defines the protocol name.
	Name = "present-proof"
	// Spec defines the protocol spec.
	Spec = "https://didcomm.org/present-proof/1.0/"
	// ProposePresentationMsgType defines the protocol propose-presentation message type.
	ProposePresentationMsgType = Spec + "propose-presentation"
	// RequestPresentationMsgType defines the protocol request-presentation message type.
	RequestPresentationMsgType = Spec + "request-presentation"
	// PresentationMsgType defines the protocol presentation message type.
	PresentationMsgType = Spec + "presentation"
	// AckMsgType defines the protocol ack message type.
	AckMsgType = Spec + "ack"
	// ProblemReportMsgType defines the protocol problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"
	// PresentationPreviewMsgType defines the protocol presentation-preview inner object type.
	PresentationPreviewMsgType = Spec + "presentation-preview"

	queueSize = 64
)

var (
	// ErrClosed is returned for presentations requested after Close.
	ErrClosed = errors.New("present-proof service closed")
	// ErrPresentationPending is returned by AcceptRequest while the presentation of the thread is being created.
	ErrPresentationPending = errors.New("presentation already being created")
)

// job is a presentation to create for the prover thread thid.
type job struct {
	thid     string
	request  json.RawMessage
	deadline time.Time
}

// Service runs present-proof machines. Presentations are created by a pool of workers and fed back to their
// thread as a PresentationResult.
type Service struct {
	*runner.Runner[State]
	protocol *protocol

	mu    sync.Mutex
	conns map[string]*service.Connection
	// pending holds the threads a presentation job was submitted for.
	pending map[string]struct{}

	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns the present-proof service and starts its workers. Close stops them.
func New(ac anoncreds.AnonCreds, read ledger.Read, config Config, opts ...runner.Opt) *Service {
	if config.Policy.MsgType == "" {
		config.Policy = problemreport.Default(ProblemReportMsgType)
	}

	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}

	p := &protocol{anoncreds: ac, read: read, config: config}

	s := &Service{
		Runner:   runner.New[State](p, opts...),
		protocol: p,
		conns:    map[string]*service.Connection{},
		pending:  map[string]struct{}{},
		jobs:     make(chan job, queueSize),
		done:     make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)

		go s.work()
	}

	return s
}

// Close stops the workers. Queued presentations are abandoned; their threads time out.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()
}

// Accept tells whether msgType belongs to the present-proof family.
func (s *Service) Accept(msgType string) bool {
	return strings.HasPrefix(msgType, Spec)
}

// HasThread tells whether a live machine runs on thid.
func (s *Service) HasThread(thid string) bool {
	_, ok := s.Threads().LookupRole(thid)

	return ok
}

// HandleInbound handles an inbound present-proof message. Messages the addressed machine does not expect, such
// as a presentation arriving after the thread finished, are dropped.
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
	case ProposePresentationMsgType:
		proposal := &ProposePresentation{}
		if err := msg.Decode(proposal); err != nil {
			return fmt.Errorf("decode proposal: %w", err)
		}

		_, err := s.startOrHandle(ctx, threadOf(proposal.ID, &proposal.Decorators), engine.RoleVerifier,
			&VerifierInitial{}, proposal, ic.Connection)

		return err
	case RequestPresentationMsgType:
		request := &RequestPresentation{}
		if err := msg.Decode(request); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		m, err := s.startOrHandle(ctx, threadOf(request.ID, &request.Decorators), engine.RoleProver,
			&ProverInitial{}, request, ic.Connection)
		if err != nil {
			return err
		}

		if st, ok := m.State().(*ProverRequestReceived); ok && s.protocol.config.AutoPresent {
			return s.submit(ctx, job{thid: m.ThreadID(), request: st.RequestJSON, deadline: m.Deadline()})
		}

		return nil
	case PresentationMsgType:
		presentation := &Presentation{}
		if err := msg.Decode(presentation); err != nil {
			return fmt.Errorf("decode presentation: %w", err)
		}

		return s.handle(ctx, presentation.ThreadID(), presentation, ic.Connection)
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

// SendRequest starts a verifier thread with a presentation request to conn and returns the thread id.
func (s *Service) SendRequest(ctx context.Context, conn *service.Connection, cmd SendRequest) (string, error) {
	if cmd.ThreadID == "" {
		cmd.ThreadID = uuid.New().String()
	}

	if _, err := s.start(ctx, cmd.ThreadID, engine.RoleVerifier, &VerifierInitial{}, &cmd, conn); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	return cmd.ThreadID, nil
}

// SendProposal starts a prover thread with a proposal to conn and returns the thread id.
func (s *Service) SendProposal(ctx context.Context, conn *service.Connection, cmd SendProposal) (string, error) {
	if cmd.ThreadID == "" {
		cmd.ThreadID = uuid.New().String()
	}

	if _, err := s.start(ctx, cmd.ThreadID, engine.RoleProver, &ProverInitial{}, &cmd, conn); err != nil {
		return "", fmt.Errorf("send proposal: %w", err)
	}

	return cmd.ThreadID, nil
}

// AcceptProposal answers the proposal received on thid with a request.
func (s *Service) AcceptProposal(ctx context.Context, thid string, cmd SendRequest) error {
	return s.handle(ctx, thid, &cmd, nil)
}

// AcceptRequest has the presentation requested on thid created. The thread moves on once a worker is done.
func (s *Service) AcceptRequest(ctx context.Context, thid string) error {
	m, err := s.Get(ctx, thid)
	if err != nil {
		return err
	}

	st, ok := m.State().(*ProverRequestReceived)
	if !ok {
		return fmt.Errorf("accept request: thread %s in state %s: %w", thid, m.State().Name(), engine.ErrUnexpected)
	}

	if !s.reserve(thid) {
		return fmt.Errorf("accept request: thread %s: %w", thid, ErrPresentationPending)
	}

	if err = s.submit(ctx, job{thid: thid, request: st.RequestJSON, deadline: m.Deadline()}); err != nil {
		s.release(thid)

		return err
	}

	return nil
}

// reserve marks thid as having a presentation job, false when it already has one.
func (s *Service) reserve(thid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[thid]; ok {
		return false
	}

	s.pending[thid] = struct{}{}

	return true
}

func (s *Service) release(thid string) {
	s.mu.Lock()
	delete(s.pending, thid)
	s.mu.Unlock()
}

// SendPresentation sends the presentation prepared on thid.
func (s *Service) SendPresentation(ctx context.Context, thid, comment string) error {
	return s.handle(ctx, thid, &SendPresentation{Comment: comment}, nil)
}

// NegotiateRequest answers the request received on thid with a counter proposal.
func (s *Service) NegotiateRequest(ctx context.Context, thid string, cmd SendProposal) error {
	return s.handle(ctx, thid, &cmd, nil)
}

// Decline refuses the proposal or request received on thid.
func (s *Service) Decline(ctx context.Context, thid, comment string) error {
	return s.handle(ctx, thid, &Decline{Comment: comment}, nil)
}

func (s *Service) submit(ctx context.Context, j job) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.jobs <- j:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) work() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case j := <-s.jobs:
			s.run(j)
		}
	}
}

// run creates one presentation under the deadline of its thread and feeds the result back.
func (s *Service) run(j job) {
	defer s.release(j.thid)

	ctx := context.Background()

	if !j.deadline.IsZero() {
		var cancel context.CancelFunc

		ctx, cancel = context.WithDeadline(ctx, j.deadline)
		defer cancel()
	}

	presentation, err := s.protocol.prepare(ctx, j.request)
	if err != nil {
		logger.Warnf("thread %s: create presentation: %s", j.thid, err)
	}

	m, err := s.apply(context.Background(), j.thid, &PresentationResult{Presentation: presentation, Err: err}, nil)
	if err != nil {
		logger.Errorf("thread %s: presentation result: %s", j.thid, err)

		return
	}

	if m.Terminal() || !s.protocol.config.AutoPresent {
		return
	}

	if _, err = s.apply(context.Background(), j.thid, &SendPresentation{}, nil); err != nil {
		logger.Errorf("thread %s: send presentation: %s", j.thid, err)
	}
}

func (s *Service) startOrHandle(ctx context.Context, thid string, role engine.Role, initial State,
	in engine.Input, conn *service.Connection) (engine.Machine[State], error) {
	if s.HasThread(thid) {
		return s.apply(ctx, thid, in, conn)
	}

	return s.start(ctx, thid, role, initial, in, conn)
}

func (s *Service) start(ctx context.Context, thid string, role engine.Role, initial State, in engine.Input,
	conn *service.Connection) (engine.Machine[State], error) {
	m, _, err := s.Start(ctx, thid, role, initial, in, conn)
	if m.ThreadID() != "" && (m.Terminal() || s.HasThread(m.ThreadID())) {
		s.committed(m, conn)
	}

	return m, err
}

func (s *Service) handle(ctx context.Context, thid string, in engine.Input, conn *service.Connection) error {
	_, err := s.apply(ctx, thid, in, conn)

	return err
}

func (s *Service) apply(ctx context.Context, thid string, in engine.Input,
	conn *service.Connection) (engine.Machine[State], error) {
	if thid == "" {
		var zero engine.Machine[State]

		return zero, fmt.Errorf("%s: %s carries no thread id: %w", Name, in.InputName(),
			service.ErrThreadIDNotFound)
	}

	if conn == nil {
		conn = s.connection(thid)
	}

	next, _, err := s.Handle(ctx, thid, in, conn)
	if next.ThreadID() != "" {
		s.committed(next, conn)
	}

	return next, err
}

// committed keeps track of the counterparty of live threads.
func (s *Service) committed(m engine.Machine[State], conn *service.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Terminal() {
		delete(s.conns, m.ThreadID())

		return
	}

	if conn != nil {
		s.conns[m.ThreadID()] = conn
	}
}

func (s *Service) connection(thid string) *service.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conns[thid]
}
