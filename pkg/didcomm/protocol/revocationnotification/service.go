/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package revocationnotification implements the Aries revocation notification protocol 2.0 (RFC 0721) in the
// sender and receiver roles. 1.0 notifications are adapted at the boundary, see Adaptation10.
package revocationnotification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
)

var logger = log.New("aries-framework/protocol/revocationnotification")

const (
	// Name defines the protocol name.
	Name = "revocation_notification"
	// Spec defines the protocol spec.
	Spec = "https://didcomm.org/revocation_notification/2.0/"
	// RevokeMsgType defines the protocol revoke message type.
	RevokeMsgType = Spec + "revoke"
	// AckMsgType defines the protocol ack message type.
	AckMsgType = Spec + "ack"
	// ProblemReportMsgType defines the protocol problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"
)

// Service runs revocation notification machines.
type Service struct {
	*runner.Runner[State]

	mu    sync.Mutex
	conns map[string]*service.Connection
}

// New returns the revocation notification service.
func New(config Config, opts ...runner.Opt) *Service {
	if config.Policy.MsgType == "" {
		config.Policy = problemreport.Default(ProblemReportMsgType)
	}

	return &Service{
		Runner: runner.New[State](&protocol{config: config}, opts...),
		conns:  map[string]*service.Connection{},
	}
}

// Accept tells whether msgType belongs to the revocation notification family.
func (s *Service) Accept(msgType string) bool {
	return strings.HasPrefix(msgType, Spec)
}

// HasThread tells whether a live machine runs on thid.
func (s *Service) HasThread(thid string) bool {
	_, ok := s.Threads().LookupRole(thid)

	return ok
}

// HandleInbound handles an inbound revocation notification message. Redelivered notifications are dropped.
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
	case RevokeMsgType:
		revoke := &Revoke{}
		if err := msg.Decode(revoke); err != nil {
			return fmt.Errorf("decode revoke: %w", err)
		}

		_, _, err := s.Start(ctx, threadOf(revoke.ID, &revoke.Decorators), engine.RoleReceiver, &ReceiverInitial{},
			revoke, ic.Connection)

		return err
	case AckMsgType, model.AckMsgType:
		ack := &model.Ack{}
		if err := msg.Decode(ack); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}

		return s.handle(ctx, ack.ThreadID(), &Ack{Ack: ack})
	case ProblemReportMsgType, model.ProblemReportMsgType:
		pr := &model.ProblemReport{}
		if err := msg.Decode(pr); err != nil {
			return fmt.Errorf("decode problem report: %w", err)
		}

		return s.handle(ctx, pr.ThreadID(), &ProblemReport{ProblemReport: pr})
	}

	return fmt.Errorf("%s: unsupported message type %s", Name, msg.Type())
}

// Notify tells the holder on conn that a credential was revoked and returns the thread id.
func (s *Service) Notify(ctx context.Context, conn *service.Connection, cmd Notify) (string, error) {
	if cmd.ThreadID == "" {
		cmd.ThreadID = uuid.New().String()
	}

	m, _, err := s.Start(ctx, cmd.ThreadID, engine.RoleSender, &SenderInitial{}, &cmd, conn)
	if err != nil {
		return "", fmt.Errorf("notify: %w", err)
	}

	if !m.Terminal() {
		s.mu.Lock()
		s.conns[cmd.ThreadID] = conn
		s.mu.Unlock()
	}

	return cmd.ThreadID, nil
}

func (s *Service) handle(ctx context.Context, thid string, in engine.Input) error {
	if thid == "" {
		return fmt.Errorf("%s: %s carries no thread id: %w", Name, in.InputName(), service.ErrThreadIDNotFound)
	}

	s.mu.Lock()
	conn := s.conns[thid]
	s.mu.Unlock()

	next, _, err := s.Handle(ctx, thid, in, conn)
	if next.ThreadID() != "" && next.Terminal() {
		s.mu.Lock()
		delete(s.conns, thid)
		s.mu.Unlock()
	}

	return err
}
