/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"context"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
)

// ProtocolService service interface for message pickup.
type ProtocolService interface {
	StatusRequest(ctx context.Context, conn *service.Connection, recipientKey string) (*Status, error)
	Pickup(ctx context.Context, conn *service.Connection, recipientKey string, limit int) (int, error)
}

// InboundHandler receives a picked up envelope as if it arrived on a transport.
type InboundHandler func(ctx context.Context, envelope []byte) error
