/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package engine is the generic protocol state machine shared by every DIDComm protocol. A protocol supplies
// its state variants and a single transition function; the engine binds a thread id, a role and a deadline to
// them and makes every transition all-or-nothing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
)

// Role the local agent plays in a protocol run.
type Role string

// Roles.
const (
	RoleInviter   Role = "inviter"
	RoleInvitee   Role = "invitee"
	RoleIssuer    Role = "issuer"
	RoleHolder    Role = "holder"
	RoleVerifier  Role = "verifier"
	RoleProver    Role = "prover"
	RoleMediator  Role = "mediator"
	RoleRecipient Role = "recipient"
	RoleSender    Role = "sender"
	RoleReceiver  Role = "receiver"
)

// State is one variant of a protocol's state union.
type State interface {
	Name() string
	Terminal() bool
}

// Input drives a transition. It is either an inbound Message or a local command.
type Input interface {
	InputName() string
}

// Message is an inbound protocol message.
type Message interface {
	Input
	ThreadID() string
}

// Protocol is the definition of one protocol: its transition table and its timeout transition.
type Protocol[S State] interface {
	Name() string
	// Transition computes the next state and the messages to send. It must not mutate current.
	Transition(ctx context.Context, current S, in Input) (S, []service.DIDCommMsgMap, error)
	// Timeout returns the failed state for a timed out machine, or current when it is terminal.
	Timeout(current S, thid string) S
}

// ErrorKind classifies transition errors.
type ErrorKind int

const (
	// Unexpected means the (state, input) pair is not in the transition table.
	Unexpected ErrorKind = iota
)

// ErrUnexpected matches every TransitionError of kind Unexpected.
var ErrUnexpected = errors.New("unexpected input")

// TransitionError is returned when a protocol rejects an input.
type TransitionError struct {
	Kind     ErrorKind
	Protocol string
	State    string
	Input    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: unexpected input %s in state %s", e.Protocol, e.Input, e.State)
}

// Is makes errors.Is(err, ErrUnexpected) work.
func (e *TransitionError) Is(target error) bool {
	return target == ErrUnexpected && e.Kind == Unexpected // nolint: errorlint
}

// NewUnexpected builds the error for an input the current state does not accept.
func NewUnexpected(protocol string, current State, in Input) error {
	e := &TransitionError{Kind: Unexpected, Protocol: protocol}

	if current != nil {
		e.State = current.Name()
	}

	if in != nil {
		e.Input = in.InputName()
	}

	return e
}

// Opt configures a machine.
type Opt func(*options)

type options struct {
	deadline time.Time
}

// WithTimeout sets the machine deadline to now plus d.
func WithTimeout(d time.Duration) Opt {
	return func(o *options) {
		if d > 0 {
			o.deadline = time.Now().Add(d)
		}
	}
}

// WithDeadline sets the machine deadline.
func WithDeadline(t time.Time) Opt {
	return func(o *options) {
		o.deadline = t
	}
}

// Machine is one protocol run bound to a thread. It is a value: transitions return a new machine and leave the
// receiver untouched.
type Machine[S State] struct {
	protocol Protocol[S]
	thid     string
	role     Role
	state    S
	deadline time.Time
}

// New creates a machine in its initial state.
func New[S State](p Protocol[S], thid string, role Role, initial S, opts ...Opt) Machine[S] {
	o := &options{}

	for _, opt := range opts {
		opt(o)
	}

	return Machine[S]{
		protocol: p,
		thid:     thid,
		role:     role,
		state:    initial,
		deadline: o.deadline,
	}
}

// ThreadID returns the thread the machine is bound to.
func (m Machine[S]) ThreadID() string { return m.thid }

// Role returns the local role.
func (m Machine[S]) Role() Role { return m.role }

// State returns the current state.
func (m Machine[S]) State() S { return m.state }

// Deadline returns the deadline, zero when the machine never times out.
func (m Machine[S]) Deadline() time.Time { return m.deadline }

// Terminal tells whether the machine reached a final state.
func (m Machine[S]) Terminal() bool { return m.state.Terminal() }

// ProtocolName returns the name of the protocol the machine runs.
func (m Machine[S]) ProtocolName() string { return m.protocol.Name() }

// WithThreadID returns the machine rebound to thid.
func (m Machine[S]) WithThreadID(thid string) Machine[S] {
	m.thid = thid

	return m
}

// WithDeadline returns the machine with a new deadline.
func (m Machine[S]) WithDeadline(t time.Time) Machine[S] {
	m.deadline = t

	return m
}

// Transition applies in to the machine. On error the returned machine is m unchanged and nothing is to be sent.
func (m Machine[S]) Transition(ctx context.Context, in Input) (Machine[S], []service.DIDCommMsgMap, error) {
	if m.state.Terminal() {
		return m, nil, NewUnexpected(m.protocol.Name(), m.state, in)
	}

	if msg, ok := in.(Message); ok {
		if thid := msg.ThreadID(); thid != "" && m.thid != "" && thid != m.thid {
			return m, nil, NewUnexpected(m.protocol.Name(), m.state, in)
		}
	}

	if !m.deadline.IsZero() {
		var cancel context.CancelFunc

		ctx, cancel = context.WithDeadline(ctx, m.deadline)
		defer cancel()
	}

	next, out, err := m.protocol.Transition(ctx, m.state, in)
	if err != nil {
		return m, nil, err
	}

	n := m
	n.state = next

	return n, out, nil
}

// Timeout forces the protocol's timeout transition. Terminal machines are returned unchanged.
func (m Machine[S]) Timeout() Machine[S] {
	if m.state.Terminal() {
		return m
	}

	n := m
	n.state = m.protocol.Timeout(m.state, m.thid)

	return n
}

// Expired tells whether the machine has a deadline that passed at now.
func Expired[S State](m Machine[S], now time.Time) bool {
	return !m.deadline.IsZero() && now.After(m.deadline)
}

// Outbound converts typed messages to their map form, skipping nils.
func Outbound(msgs ...interface{}) []service.DIDCommMsgMap {
	out := make([]service.DIDCommMsgMap, 0, len(msgs))

	for _, msg := range msgs {
		if msg == nil {
			continue
		}

		if m := service.NewDIDCommMsgMap(msg); m != nil {
			out = append(out, m)
		}
	}

	return out
}
