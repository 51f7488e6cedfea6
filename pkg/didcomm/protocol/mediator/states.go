/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
)

const (
	stateNameStart     = "start"
	stateNameRequested = "requested"
	stateNameGranted   = "granted"
	stateNameDenied    = "denied"
	stateNameAbandoned = "abandoned"
)

// ClientState is a recipient side mediation state.
type ClientState interface {
	Name() string
	Terminal() bool
	mediationState()
}

// RecipientInitial is the recipient before asking for mediation.
type RecipientInitial struct{}

// Requested waits for the mediator's grant or deny.
type Requested struct {
	ThreadID string
}

// Granted is an active mediation. Keys are the recipient keys the mediator confirmed routing.
type Granted struct {
	ThreadID    string
	Endpoint    string
	RoutingKeys []string
	Keys        []string
}

// Failed ends a mediation that was denied, reported or timed out.
type Failed struct {
	Denied bool
	Report *model.ProblemReport
}

// Name implements engine.State.
func (*RecipientInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*RecipientInitial) Terminal() bool { return false }

func (*RecipientInitial) mediationState() {}

// Name implements engine.State.
func (*Requested) Name() string { return stateNameRequested }

// Terminal implements engine.State.
func (*Requested) Terminal() bool { return false }

func (*Requested) mediationState() {}

// Name implements engine.State.
func (*Granted) Name() string { return stateNameGranted }

// Terminal implements engine.State.
func (*Granted) Terminal() bool { return false }

// Settled keeps granted mediations from timing out.
func (*Granted) Settled() bool { return true }

// Config returns the routing configuration of the mediation.
func (s *Granted) Config() *Config { return NewConfig(s.Endpoint, s.RoutingKeys) }

// Properties exposes the mediation to event consumers.
func (s *Granted) Properties() map[string]interface{} {
	return map[string]interface{}{
		"endpoint":      s.Endpoint,
		"routingKeys":   s.RoutingKeys,
		"recipientKeys": s.Keys,
	}
}

func (s *Granted) with(keys []string) *Granted {
	next := *s
	next.Keys = keys

	return &next
}

func (*Granted) mediationState() {}

// Name implements engine.State.
func (s *Failed) Name() string {
	if s.Denied {
		return stateNameDenied
	}

	return stateNameAbandoned
}

// Terminal implements engine.State.
func (*Failed) Terminal() bool { return true }

// ProblemReport returns the report the mediation ended with.
func (s *Failed) ProblemReport() *model.ProblemReport { return s.Report }

func (*Failed) mediationState() {}
