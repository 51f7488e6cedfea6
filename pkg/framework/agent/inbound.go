/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/issuecredential"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/presentproof"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/revocationnotification"
)

const routingSpec = "https://didcomm.org/routing/1.0/"

// ErrNoHandler is returned for inbound messages no protocol service accepts.
var ErrNoHandler = errors.New("no protocol service handles the message")

// threadOwner is implemented by the services that can claim generic acks and problem reports.
type threadOwner interface {
	HasThread(thid string) bool
}

// Receive unpacks an inbound envelope and hands the message to the protocol service owning its family. It is the
// handler of the inbound transports.
func (a *Agent) Receive(ctx context.Context, envelope []byte) error {
	unpacked, err := a.wallet.UnpackMessage(ctx, envelope)
	if err != nil {
		return fmt.Errorf("unpack inbound envelope: %w", err)
	}

	msg, err := service.ParseDIDCommMsgMap(unpacked.Message)
	if err != nil {
		return fmt.Errorf("parse inbound message: %w", err)
	}

	msg, err = a.adapter.Canonicalize(msg)
	if err != nil {
		return fmt.Errorf("canonicalize inbound message: %w", err)
	}

	ic := service.InboundContext{
		SenderVerKey:    unpacked.SenderVerKey,
		RecipientVerKey: unpacked.RecipientVerKey,
	}

	if ic.SenderVerKey != "" {
		conn, connErr := a.connections.ConnectionByTheirKey(ic.SenderVerKey)
		if connErr != nil && !errors.Is(connErr, connection.ErrConnectionNotFound) {
			return fmt.Errorf("look up the connection of %s: %w", ic.SenderVerKey, connErr)
		}

		ic.Connection = conn
	}

	h, err := a.route(msg)
	if err != nil {
		return err
	}

	logger.Debugf("inbound %s [%s] to %s", msg.Type(), msg.ID(), h.Name())

	if err = h.HandleInbound(ctx, msg, ic); err != nil {
		return fmt.Errorf("%s: %w", h.Name(), err)
	}

	return nil
}

// route picks the service of msg. Generic acks and problem reports go to the service running their thread.
func (a *Agent) route(msg service.DIDCommMsgMap) (service.InboundHandler, error) {
	if t := msg.Type(); t == model.AckMsgType || t == model.ProblemReportMsgType {
		if thid, err := msg.ThreadID(); err == nil {
			for _, h := range a.handlers {
				if owner, ok := h.(threadOwner); ok && owner.HasThread(thid) {
					return h, nil
				}
			}
		}
	}

	for _, h := range a.handlers {
		if h.Accept(msg.Type()) {
			return h, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoHandler, msg.Type())
}

// supportedSpecs lists the message family prefixes served by handlers.
func supportedSpecs(handlers []service.InboundHandler) []string {
	specs := []string{connection.Spec, connection.TrustPingSpec, connection.DiscoverFeaturesSpec}
	seen := map[string]bool{}

	for _, s := range specs {
		seen[s] = true
	}

	for _, h := range handlers {
		for _, s := range specsOf(h) {
			if !seen[s] {
				seen[s] = true
				specs = append(specs, s)
			}
		}
	}

	return specs
}

func specsOf(h service.InboundHandler) []string {
	switch h.(type) {
	case *issuecredential.Service:
		return []string{issuecredential.Spec}
	case *presentproof.Service:
		return []string{presentproof.Spec}
	case *revocationnotification.Service:
		return []string{revocationnotification.Spec}
	case *mediator.Service:
		return []string{mediator.CoordinationSpec, routingSpec}
	case *mediator.Client:
		return []string{mediator.CoordinationSpec}
	case *messagepickup.Service:
		return []string{messagepickup.Spec}
	}

	return nil
}

// canonicalVersions maps the family of each spec prefix to its version.
func canonicalVersions(specs []string) map[string]string {
	versions := make(map[string]string, len(specs))

	for _, spec := range specs {
		mt, err := service.ParseMessageType(spec + "_")
		if err != nil {
			logger.Warnf("skip canonical version of %s: %s", spec, err)

			continue
		}

		versions[mt.Family] = mt.Version
	}

	return versions
}
