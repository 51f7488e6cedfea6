/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package messenger provides a service.Messenger that queues messages for tests to deliver by hand.
package messenger

import (
	"context"
	"sync"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
)

// Envelope is one sent message.
type Envelope struct {
	Msg          service.DIDCommMsgMap
	SenderVerKey string
	Destination  *service.Destination
}

// Queue records sent messages in order. Send fails with Err when it is set.
type Queue struct {
	Err error

	mu    sync.Mutex
	queue []Envelope
}

// Send implements service.Messenger.
func (q *Queue) Send(_ context.Context, msg service.DIDCommMsgMap, senderVerKey string,
	dest *service.Destination) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Err != nil {
		return q.Err
	}

	q.queue = append(q.queue, Envelope{Msg: msg, SenderVerKey: senderVerKey, Destination: dest})

	return nil
}

// Pop removes and returns the oldest message.
func (q *Queue) Pop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return Envelope{}, false
	}

	e := q.queue[0]
	q.queue = q.queue[1:]

	return e, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.queue)
}

// Wire returns msg as the receiving side parses it.
func Wire(msg service.DIDCommMsgMap) (service.DIDCommMsgMap, error) {
	payload, err := msg.MarshalPayload()
	if err != nil {
		return nil, err
	}

	return service.ParseDIDCommMsgMap(payload)
}
