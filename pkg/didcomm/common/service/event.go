/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "errors"

// ErrNilChannel error when a nil channel is registered.
var ErrNilChannel = errors.New("channel is nil")

// StateMsg is sent to registered consumers after a protocol machine changed state.
type StateMsg struct {
	// Name of the protocol family, e.g. "issue-credential".
	ProtocolName string

	ThreadID string

	// Role the local agent plays on the thread.
	Role string

	// StateID is the name of the state the machine moved to.
	StateID string

	// Terminal is true when the machine finished and was dropped from its registry.
	Terminal bool

	// Msg is the inbound message that caused the transition, nil for local commands and timeouts.
	Msg DIDCommMsgMap

	// Properties contains values specific to the protocol, e.g. the stored credential id.
	Properties map[string]interface{}
}

// Event event related apis.
type Event interface {
	// RegisterMsgEvent on protocol state changes.
	RegisterMsgEvent(ch chan<- StateMsg) error

	// UnregisterMsgEvent on protocol state changes. Refer RegisterMsgEvent().
	UnregisterMsgEvent(ch chan<- StateMsg) error
}
