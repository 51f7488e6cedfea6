/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport defines how packed envelopes travel between agents.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoTransport is returned when no outbound transport accepts an endpoint.
var ErrNoTransport = errors.New("no outbound transport")

// Outbound interface definition for transport layer
// This is the client side of the agent.
type Outbound interface {
	// Send sends packed data to endpoint and returns the synchronous response body, if any.
	Send(ctx context.Context, data []byte, endpoint string) ([]byte, error)
	// Accept tells whether the transport handles endpoint.
	Accept(endpoint string) bool
}

// InboundMessageHandler handles the inbound envelopes. Envelopes are still packed.
type InboundMessageHandler func(ctx context.Context, envelope []byte) error

// Select returns the first outbound transport accepting endpoint.
func Select(endpoint string, outbounds ...Outbound) (Outbound, error) {
	for _, o := range outbounds {
		if o.Accept(endpoint) {
			return o, nil
		}
	}

	return nil, fmt.Errorf("%w for endpoint %q", ErrNoTransport, endpoint)
}
