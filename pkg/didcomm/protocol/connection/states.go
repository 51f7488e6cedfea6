/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
)

const (
	// StateIDInitial marks a machine that did not start yet.
	StateIDInitial = "initial"
	// StateIDInvited marks the invited phase of the connection protocol.
	StateIDInvited = "invited"
	// StateIDRequested marks the requested phase of the connection protocol.
	StateIDRequested = "requested"
	// StateIDResponded marks the responded phase of the connection protocol.
	StateIDResponded = "responded"
	// StateIDCompleted marks the completed phase of the connection protocol.
	StateIDCompleted = "completed"
	// StateIDFailed marks a connection that failed.
	StateIDFailed = "failed"
)

// State is a connection protocol state. Inviter and invitee have distinct variants; Completed and Failed are
// shared.
type State interface {
	Name() string
	Terminal() bool
	connectionState()
}

// InviterInitial is the inviter before it created an invitation.
type InviterInitial struct{}

// InviterInvited is the inviter waiting for a request on its invitation.
type InviterInvited struct {
	Invitation *Invitation
	// MyKey is the invitation key. It signs the connection block of the response.
	MyKey string
}

// InviterResponded is the inviter waiting for the invitee to confirm its response.
type InviterResponded struct {
	Invitation *Invitation
	Request    *Request
	TheirDoc   *legacydid.Doc
	MyDoc      *legacydid.Doc
	Response   *Response
	MyKey      string
}

// InviteeInitial is the invitee before it received an invitation.
type InviteeInitial struct{}

// InviteeInvited is the invitee holding an invitation it did not answer yet.
type InviteeInvited struct {
	Invitation *Invitation
}

// InviteeRequested is the invitee waiting for the inviter's response.
type InviteeRequested struct {
	Invitation *Invitation
	Request    *Request
	MyDoc      *legacydid.Doc
	MyKey      string
}

// Completed is an established connection.
type Completed struct {
	TheirDoc *legacydid.Doc
	MyDoc    *legacydid.Doc
	// BootstrapDoc is the invitee's view of the inviter before the exchange, built from the invitation.
	BootstrapDoc *legacydid.Doc
	MyKey        string
	TheirKey     string
	InvitationID string
	TheirLabel   string
	// Protocols are the protocols the counterparty disclosed.
	Protocols []Protocol
}

// Failed is a connection that will not complete.
type Failed struct {
	Report *model.ProblemReport
}

// Name implements engine.State.
func (*InviterInitial) Name() string { return StateIDInitial }

// Terminal implements engine.State.
func (*InviterInitial) Terminal() bool { return false }

func (*InviterInitial) connectionState() {}

// Name implements engine.State.
func (*InviterInvited) Name() string { return StateIDInvited }

// Terminal implements engine.State.
func (*InviterInvited) Terminal() bool { return false }

func (*InviterInvited) connectionState() {}

// Name implements engine.State.
func (*InviterResponded) Name() string { return StateIDResponded }

// Terminal implements engine.State.
func (*InviterResponded) Terminal() bool { return false }

func (*InviterResponded) connectionState() {}

// Name implements engine.State.
func (*InviteeInitial) Name() string { return StateIDInitial }

// Terminal implements engine.State.
func (*InviteeInitial) Terminal() bool { return false }

func (*InviteeInitial) connectionState() {}

// Name implements engine.State.
func (*InviteeInvited) Name() string { return StateIDInvited }

// Terminal implements engine.State.
func (*InviteeInvited) Terminal() bool { return false }

func (*InviteeInvited) connectionState() {}

// Name implements engine.State.
func (*InviteeRequested) Name() string { return StateIDRequested }

// Terminal implements engine.State.
func (*InviteeRequested) Terminal() bool { return false }

func (*InviteeRequested) connectionState() {}

// Name implements engine.State.
func (*Completed) Name() string { return StateIDCompleted }

// Terminal implements engine.State. Pings and feature queries on a completed connection are answered from its
// record.
func (*Completed) Terminal() bool { return true }

// Properties exposes the connection keys to event consumers.
func (s *Completed) Properties() map[string]interface{} {
	props := map[string]interface{}{
		"myVerKey":    s.MyKey,
		"theirVerKey": s.TheirKey,
	}

	if s.TheirDoc != nil {
		props["theirDID"] = s.TheirDoc.ID
	}

	if s.MyDoc != nil {
		props["myDID"] = s.MyDoc.ID
	}

	return props
}

func (*Completed) connectionState() {}

// Name implements engine.State.
func (*Failed) Name() string { return StateIDFailed }

// Terminal implements engine.State.
func (*Failed) Terminal() bool { return true }

// ProblemReport returns the report the connection failed with.
func (s *Failed) ProblemReport() *model.ProblemReport { return s.Report }

func (*Failed) connectionState() {}
