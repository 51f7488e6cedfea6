/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "context"

// Messenger sends protocol messages to a counterparty. Implementations take care of packing, routing through
// mediators and the wire transport.
type Messenger interface {
	// Send packs msg for dest, authcrypted with senderVerKey when set, and delivers it.
	Send(ctx context.Context, msg DIDCommMsgMap, senderVerKey string, dest *Destination) error
}

// InboundContext carries what the transport layer learned about an inbound message.
type InboundContext struct {
	// SenderVerKey is the authcrypt sender key, empty for anoncrypted messages.
	SenderVerKey string
	// RecipientVerKey is the local key the message was encrypted for.
	RecipientVerKey string
	// Connection is the established connection the sender key belongs to, if any.
	Connection *Connection
}

// InboundHandler is implemented by protocol services.
type InboundHandler interface {
	// Name of the protocol family handled.
	Name() string
	// Accept tells whether the handler handles msgType.
	Accept(msgType string) bool
	// HandleInbound processes a canonicalized inbound message.
	HandleInbound(ctx context.Context, msg DIDCommMsgMap, ic InboundContext) error
}
