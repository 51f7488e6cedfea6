/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"github.com/google/uuid"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

const (
	// AckMsgType is the generic notification ack type. Protocols may adopt it under their own family.
	AckMsgType = "https://didcomm.org/notification/1.0/ack"

	// AckStatusOK the message was accepted.
	AckStatusOK = "OK"
	// AckStatusPending the message was received but the outcome is not final yet.
	AckStatusPending = "PENDING"
	// AckStatusFail the message was received and processing failed.
	AckStatusFail = "FAIL"
)

// Ack acknowledgement struct.
type Ack struct {
	Type   string `json:"@type,omitempty"`
	ID     string `json:"@id,omitempty"`
	Status string `json:"status,omitempty"`
	decorator.Decorators
}

// NewAck builds an ack of msgType for thid.
func NewAck(msgType, thid, status string) *Ack {
	return &Ack{
		Type:       msgType,
		ID:         uuid.New().String(),
		Status:     status,
		Decorators: decorator.OnThread(thid, ""),
	}
}
