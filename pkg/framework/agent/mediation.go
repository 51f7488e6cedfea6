/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"fmt"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/mediator"
)

// CreateInvitation creates a connection invitation. When mediationID names a granted mediation the invitation
// carries the mediator endpoint and routing keys and the invitation key is registered with the mediator.
func (a *Agent) CreateInvitation(ctx context.Context, label, mediationID string) (*connection.Invitation, error) {
	endpoint, routingKeys, err := mediator.GetRouterConfig(ctx, a.mediationClient, mediationID, a.endpoint)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	inv, err := a.connections.CreateInvitation(ctx, &connection.CreateInvitation{
		Label:       label,
		Endpoint:    endpoint,
		RoutingKeys: routingKeys,
	})
	if err != nil {
		return nil, err
	}

	for _, key := range inv.RecipientKeys {
		if err = mediator.AddKeyToRouter(ctx, a.mediationClient, mediationID, key); err != nil {
			return nil, fmt.Errorf("create invitation: %w", err)
		}
	}

	return inv, nil
}

// RequestMediation asks the counterparty of connectionID for mediation and blocks until it is granted. It
// returns the mediation id and the granted routing configuration.
func (a *Agent) RequestMediation(ctx context.Context, connectionID string) (string, *mediator.Config, error) {
	conn, err := a.connections.Connection(connectionID)
	if err != nil {
		return "", nil, fmt.Errorf("request mediation: %w", err)
	}

	return a.mediationClient.Register(ctx, conn)
}

// PickupFrom collects the messages waiting with the mediator of mediationID and handles them as inbound
// envelopes. It returns the number of messages handled.
func (a *Agent) PickupFrom(ctx context.Context, mediationID string) (int, error) {
	conn, ok := a.mediationClient.Connection(mediationID)
	if !ok {
		return 0, fmt.Errorf("pickup from %s: %w", mediationID, mediator.ErrRouterNotRegistered)
	}

	total := 0

	for {
		n, err := a.pickup.Pickup(ctx, conn, "", a.pickupLimit)
		total += n

		if err != nil {
			return total, fmt.Errorf("pickup from %s: %w", mediationID, err)
		}

		if n < a.pickupLimit {
			return total, nil
		}
	}
}

func (a *Agent) pollMediators() {
	ctx := context.Background()

	for _, thid := range a.mediationClient.Mediations(ctx) {
		n, err := a.PickupFrom(ctx, thid)
		if err != nil {
			logger.Warnf("poll mediator: %s", err)

			continue
		}

		if n > 0 {
			logger.Debugf("picked up %d messages from mediation %s", n, thid)
		}
	}
}
