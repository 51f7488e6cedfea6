/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
)

// prepare creates the presentation request asks for from the stored credentials. Revocable credentials are
// proven against the registry state at the end of the requested non-revocation interval.
func (p *protocol) prepare(ctx context.Context, request json.RawMessage) (json.RawMessage, error) {
	selected, err := p.anoncreds.SelectCredentials(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("select credentials: %w", err)
	}

	to := nonRevokedTo(request)
	objects := anoncreds.NewLedgerObjects()
	states := anoncreds.RevocationStates{}

	for _, info := range selected {
		err = p.resolve(ctx, objects, anoncreds.Identifier{SchemaID: info.SchemaID, CredDefID: info.CredDefID})
		if err != nil {
			return nil, err
		}

		if info.RevRegID == "" {
			continue
		}

		if _, ok := objects.RevRegDefs[info.RevRegID]; !ok {
			def, errDef := p.read.GetRevRegDef(ctx, info.RevRegID)
			if errDef != nil {
				return nil, fmt.Errorf("get revocation registry definition %s: %w", info.RevRegID, errDef)
			}

			objects.RevRegDefs[info.RevRegID] = def
			objects.RevRegs[info.RevRegID] = map[int64]json.RawMessage{}
			states[info.RevRegID] = map[int64]json.RawMessage{}
		}

		delta, ts, errDelta := p.read.GetRevRegDelta(ctx, info.RevRegID, 0, to)
		if errDelta != nil {
			return nil, fmt.Errorf("get revocation registry delta %s: %w", info.RevRegID, errDelta)
		}

		state, errState := p.anoncreds.CreateOrUpdateRevocationState(ctx, info.TailsFile,
			objects.RevRegDefs[info.RevRegID], delta, ts, info.CredRevID)
		if errState != nil {
			return nil, fmt.Errorf("create revocation state of %s: %w", info.RevRegID, errState)
		}

		objects.RevRegs[info.RevRegID][ts] = delta
		states[info.RevRegID][ts] = state
	}

	presentation, err := p.anoncreds.CreatePresentation(ctx, request, selected, anoncreds.LinkSecretID, objects,
		states)
	if err != nil {
		return nil, fmt.Errorf("create presentation: %w", err)
	}

	return presentation, nil
}

// nonRevokedTo returns the end of the non-revocation interval of request, 0 (now) when it has none.
func nonRevokedTo(request json.RawMessage) int64 {
	v, err := anoncreds.Select(request, "$.non_revoked.to")
	if err != nil {
		return 0
	}

	to, ok := v.(float64)
	if !ok {
		return 0
	}

	return int64(to)
}
