/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import "context"

// ProtocolService service interface for router.
type ProtocolService interface {
	// AddKey adds agents recKey to the router of the mediation thid
	AddKey(ctx context.Context, thid, recKey string) error

	// Config gives back the router configuration
	Config(ctx context.Context, thid string) (*Config, error)
}
