/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package revocationnotification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
)

// Holdings tells which revocable credentials the agent received as holder.
type Holdings interface {
	Holds(revRegID, credRevID string) (bool, error)
}

// Config configures the revocation notification protocol.
type Config struct {
	Policy problemreport.Policy
	// Holdings, when set, rejects notifications about credentials the receiver does not hold.
	Holdings Holdings
}

type protocol struct {
	config Config
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
func (p *protocol) Transition(_ context.Context, current State, in engine.Input) (State, []service.DIDCommMsgMap,
	error) {
	switch current.(type) {
	case *SenderInitial:
		if cmd, ok := in.(*Notify); ok {
			return p.notify(cmd)
		}
	case *SenderSent:
		switch msg := in.(type) {
		case *Ack:
			return &Finished{Status: StatusSuccess}, nil, nil
		case *ProblemReport:
			report, out := p.config.Policy.Remote(msg.ProblemReport)

			return &Finished{Status: StatusFailed, Report: report}, out, nil
		}
	case *ReceiverInitial:
		if msg, ok := in.(*Revoke); ok {
			return p.receive(msg)
		}
	}

	return nil, nil, engine.NewUnexpected(Name, current, in)
}

func (p *protocol) notify(cmd *Notify) (State, []service.DIDCommMsgMap, error) {
	if cmd.RevRegID == "" || cmd.CredRevID == "" {
		return nil, nil, errors.New("notify: registry and revocation id are required")
	}

	msg := &Revoke{
		Type:             RevokeMsgType,
		ID:               cmd.ThreadID,
		RevocationFormat: FormatIndyAnoncreds,
		CredentialID:     CredentialID(cmd.RevRegID, cmd.CredRevID),
		Comment:          cmd.Comment,
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if !cmd.AckRequested {
		return &Finished{Status: StatusSuccess}, engine.Outbound(msg), nil
	}

	msg.PleaseAck = &decorator.PleaseAck{On: []string{decorator.AckOnReceipt}}

	return &SenderSent{Revoke: msg}, engine.Outbound(msg), nil
}

func (p *protocol) receive(msg *Revoke) (State, []service.DIDCommMsgMap, error) {
	thid := threadOf(msg.ID, &msg.Decorators)

	if msg.RevocationFormat != FormatIndyAnoncreds {
		report, out := p.config.Policy.Local(thid, problemreport.CodeInvalidMessage,
			fmt.Errorf("unsupported revocation format %q", msg.RevocationFormat))

		return &Finished{Status: StatusFailed, Report: report}, out, nil
	}

	revRegID, credRevID, err := ParseCredentialID(msg.CredentialID)
	if err != nil {
		report, out := p.config.Policy.Local(thid, problemreport.CodeInvalidMessage, err)

		return &Finished{Status: StatusFailed, Report: report}, out, nil
	}

	if p.config.Holdings != nil {
		held, err := p.config.Holdings.Holds(revRegID, credRevID)
		if err != nil {
			return nil, nil, fmt.Errorf("look up credential %s: %w", msg.CredentialID, err)
		}

		if !held {
			report, out := p.config.Policy.Local(thid, problemreport.CodeInvalidMessage,
				fmt.Errorf("no credential %s is held", msg.CredentialID))

			return &Finished{Status: StatusFailed, Report: report}, out, nil
		}
	}

	finished := &Finished{
		Status:       StatusSuccess,
		Notification: &Notification{RevRegID: revRegID, CredRevID: credRevID, Comment: msg.Comment},
	}

	if !msg.AckRequested() {
		return finished, nil, nil
	}

	return finished, engine.Outbound(model.NewAck(AckMsgType, thid, model.AckStatusOK)), nil
}
