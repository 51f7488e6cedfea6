/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package messenger delivers protocol messages: it packs them for the recipient, wraps them in forward messages
// for every routing key of the destination and hands the envelope to the outbound transport accepting the
// service endpoint.
package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
)

var logger = log.New("aries-framework/didcomm/messenger")

// transportDecorator is the message field carrying the transport decorator.
const transportDecorator = "~transport"

// Opt configures the messenger.
type Opt func(*Messenger)

// WithReturnRoute asks the receiving agent to answer on the same transport connection. value is one of "all" or
// "thread"; answers are passed to WithResponseHandler.
func WithReturnRoute(value string) Opt {
	return func(m *Messenger) {
		m.returnRoute = value
	}
}

// WithResponseHandler receives envelopes returned synchronously by the outbound transport.
func WithResponseHandler(h transport.InboundMessageHandler) Opt {
	return func(m *Messenger) {
		m.onResponse = h
	}
}

// Messenger implements service.Messenger.
type Messenger struct {
	crypto      wallet.Crypto
	outbounds   []transport.Outbound
	returnRoute string
	onResponse  transport.InboundMessageHandler
}

var _ service.Messenger = (*Messenger)(nil)

// New returns a messenger packing with crypto and sending over the first of outbounds accepting a destination.
func New(crypto wallet.Crypto, outbounds []transport.Outbound, opts ...Opt) *Messenger {
	m := &Messenger{crypto: crypto, outbounds: outbounds}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Send sends the message after packing with the sender key and recipient keys.
func (m *Messenger) Send(ctx context.Context, msg service.DIDCommMsgMap, senderVerKey string,
	dest *service.Destination) error {
	if dest == nil || len(dest.RecipientKeys) == 0 {
		return errors.New("messenger send: destination has no recipient keys")
	}

	outbound, err := transport.Select(dest.ServiceEndpoint, m.outbounds...)
	if err != nil {
		return fmt.Errorf("messenger send: %w", err)
	}

	// update the outbound message with transport return route option [all or thread]
	if m.returnRoute != "" {
		msg = msg.Clone()
		msg[transportDecorator] = map[string]interface{}{"return_route": m.returnRoute}
	}

	req, err := msg.MarshalPayload()
	if err != nil {
		return fmt.Errorf("messenger send: failed marshal to bytes: %w", err)
	}

	packed, err := m.crypto.PackMessage(ctx, senderVerKey, dest.RecipientKeys, req)
	if err != nil {
		return fmt.Errorf("messenger send: failed to pack msg: %w", err)
	}

	packed, err = m.createForwardMessage(ctx, packed, dest)
	if err != nil {
		return fmt.Errorf("messenger send: failed to create forward msg: %w", err)
	}

	resp, err := outbound.Send(ctx, packed, dest.ServiceEndpoint)
	if err != nil {
		return fmt.Errorf("messenger send: failed to send msg using outbound transport: %w", err)
	}

	logger.Debugf("sent %s to %s", msg.Type(), dest.ServiceEndpoint)

	if len(resp) > 0 && m.onResponse != nil {
		if err = m.onResponse(ctx, resp); err != nil {
			logger.Warnf("handling the response of %s: %s", dest.ServiceEndpoint, err)
		}
	}

	return nil
}

// Forward delivers an already packed envelope, wrapped for the routing keys of dest. Mediators use it to push
// stored messages to recipients with a live endpoint.
func (m *Messenger) Forward(ctx context.Context, envelope []byte, dest *service.Destination) error {
	if dest == nil || len(dest.RecipientKeys) == 0 {
		return errors.New("messenger forward: destination has no recipient keys")
	}

	outbound, err := transport.Select(dest.ServiceEndpoint, m.outbounds...)
	if err != nil {
		return fmt.Errorf("messenger forward: %w", err)
	}

	packed, err := m.createForwardMessage(ctx, envelope, dest)
	if err != nil {
		return fmt.Errorf("messenger forward: failed to create forward msg: %w", err)
	}

	if _, err = outbound.Send(ctx, packed, dest.ServiceEndpoint); err != nil {
		return fmt.Errorf("messenger forward: failed to send msg using outbound transport: %w", err)
	}

	return nil
}

// createForwardMessage nests msg in one forward per routing key. The innermost forward is addressed to the first
// recipient key and packed for the first routing key; every further routing key wraps the previous layer.
func (m *Messenger) createForwardMessage(ctx context.Context, msg []byte, dest *service.Destination) ([]byte,
	error) {
	if len(dest.RoutingKeys) == 0 {
		return msg, nil
	}

	fwdKeys := append([]string{dest.RecipientKeys[0]}, dest.RoutingKeys...)

	for i, key := range fwdKeys {
		if i+1 >= len(fwdKeys) {
			break
		}

		// create forward message
		req, err := json.Marshal(&model.Forward{
			Type: model.ForwardMsgType,
			ID:   uuid.New().String(),
			To:   key,
			Msg:  msg,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal forward: %w", err)
		}

		// forwards are anoncrypted
		msg, err = m.crypto.PackMessage(ctx, "", []string{fwdKeys[i+1]}, req)
		if err != nil {
			return nil, fmt.Errorf("failed to pack forward msg: %w", err)
		}
	}

	return msg, nil
}
