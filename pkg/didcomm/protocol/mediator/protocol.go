/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
)

// ClientConfig configures the recipient side.
type ClientConfig struct {
	Policy problemreport.Policy
}

type protocol struct {
	config ClientConfig
}

// Name implements engine.Protocol.
func (p *protocol) Name() string { return Coordination }

// Timeout implements engine.Protocol.
func (p *protocol) Timeout(current ClientState, thid string) ClientState {
	if current.Terminal() {
		return current
	}

	return &Failed{Report: p.config.Policy.Timeout(thid)}
}

// Transition implements engine.Protocol.
func (p *protocol) Transition(_ context.Context, current ClientState, in engine.Input) (ClientState,
	[]service.DIDCommMsgMap, error) {
	if pr, ok := in.(*ProblemReport); ok {
		report, out := p.config.Policy.Remote(pr.ProblemReport)

		return &Failed{Report: report}, out, nil
	}

	switch s := current.(type) {
	case *RecipientInitial:
		if cmd, ok := in.(*RequestMediation); ok {
			return &Requested{ThreadID: cmd.ThreadID}, engine.Outbound(&Request{
				Type: RequestMsgType,
				ID:   cmd.ThreadID,
			}), nil
		}
	case *Requested:
		switch msg := in.(type) {
		case *GrantMsg:
			return &Granted{ThreadID: s.ThreadID, Endpoint: msg.Endpoint, RoutingKeys: msg.RoutingKeys}, nil, nil
		case *DenyMsg:
			return &Failed{Denied: true}, nil, nil
		}
	case *Granted:
		return p.granted(s, in)
	}

	return nil, nil, engine.NewUnexpected(Coordination, current, in)
}

func (p *protocol) granted(s *Granted, in engine.Input) (ClientState, []service.DIDCommMsgMap, error) {
	switch msg := in.(type) {
	case *UpdateKeys:
		if err := validateUpdates(msg.Updates); err != nil {
			return nil, nil, err
		}

		update := &KeylistUpdate{
			Type:       KeylistUpdateMsgType,
			ID:         msg.ID,
			Updates:    msg.Updates,
			Decorators: decorator.OnThread(s.ThreadID, ""),
		}

		if update.ID == "" {
			update.ID = uuid.New().String()
		}

		return s, engine.Outbound(update), nil
	case *KeylistUpdateResponseMsg:
		return s.with(applyUpdated(s.Keys, msg.Updated)), nil, nil
	case *QueryKeys:
		return s, engine.Outbound(&KeylistQuery{
			Type:       KeylistQueryMsgType,
			ID:         uuid.New().String(),
			Paginate:   msg.Paginate,
			Decorators: decorator.OnThread(s.ThreadID, ""),
		}), nil
	case *KeylistMsg:
		var keys []string

		if msg.Pagination != nil && msg.Pagination.Offset > 0 {
			keys = append(keys, s.Keys...)
		}

		for _, k := range msg.Keys {
			keys = addKey(keys, k.RecipientKey)
		}

		return s.with(keys), nil, nil
	}

	return nil, nil, engine.NewUnexpected(Coordination, s, in)
}

func validateUpdates(updates []Update) error {
	if len(updates) == 0 {
		return errors.New("keylist update: no updates")
	}

	for _, u := range updates {
		if u.RecipientKey == "" {
			return errors.New("keylist update: missing recipient key")
		}

		if u.Action != ActionAdd && u.Action != ActionRemove {
			return errors.Errorf("keylist update: unsupported action %q", u.Action)
		}
	}

	return nil
}

// applyUpdated applies the confirmed entries of a keylist-update-response to keys.
func applyUpdated(keys []string, updated []UpdateResponse) []string {
	next := append([]string(nil), keys...)

	for _, u := range updated {
		if u.Result != ResultSuccess && u.Result != ResultNoChange {
			continue
		}

		switch u.Action {
		case ActionAdd:
			next = addKey(next, u.RecipientKey)
		case ActionRemove:
			next = removeKey(next, u.RecipientKey)
		}
	}

	return next
}

func addKey(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}

	return append(keys, key)
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]

	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}

	return out
}
