/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"errors"
	"fmt"
)

// GetRouterConfig util to get the router configuration. The endpoint is overridden with the router's endpoint
// and the routing keys are set when a mediation is active on thid.
func GetRouterConfig(ctx context.Context, routeSvc ProtocolService, thid, endpoint string) (string, []string,
	error) {
	if thid == "" {
		return endpoint, nil, nil
	}

	config, err := routeSvc.Config(ctx, thid)
	if err != nil {
		if errors.Is(err, ErrRouterNotRegistered) {
			return endpoint, nil, nil
		}

		return "", nil, fmt.Errorf("fetch router config: %w", err)
	}

	return config.Endpoint(), config.Keys(), nil
}

// AddKeyToRouter util to add the recipient keys to the router.
func AddKeyToRouter(ctx context.Context, routeSvc ProtocolService, thid, recKey string) error {
	if thid == "" {
		return nil
	}

	if err := routeSvc.AddKey(ctx, thid, recKey); err != nil && !errors.Is(err, ErrRouterNotRegistered) {
		return fmt.Errorf("addKey: %w", err)
	}

	return nil
}
