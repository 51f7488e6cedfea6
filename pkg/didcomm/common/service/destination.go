/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"fmt"

	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
)

// Destination provides the recipientKeys, routingKeys, and serviceEndpoint for an outbound message.
type Destination struct {
	RecipientKeys   []string
	ServiceEndpoint string
	RoutingKeys     []string
}

// CreateDestination makes a DIDComm Destination from a DID document as per the DIDComm service conventions:
// https://github.com/hyperledger/aries-rfcs/blob/master/features/0067-didcomm-diddoc-conventions/README.md.
// Keys are normalized to raw base58 verkeys.
func CreateDestination(doc *legacydid.Doc) (*Destination, error) {
	if doc == nil {
		return nil, fmt.Errorf("create destination: missing DID doc")
	}

	svc, ok := doc.DIDCommService()
	if !ok {
		return nil, fmt.Errorf("create destination: missing DID doc service")
	}

	if svc.ServiceEndpoint == "" {
		return nil, fmt.Errorf("create destination: no service endpoint on didcomm service block in diddoc %s", doc.ID)
	}

	recipientKeys, err := doc.RecipientKeys()
	if err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("create destination: no recipient keys on didcomm service block in diddoc %s", doc.ID)
	}

	routingKeys := make([]string, 0, len(svc.RoutingKeys))

	for _, k := range svc.RoutingKeys {
		vk, err := legacydid.ToVerKey(k)
		if err != nil {
			return nil, fmt.Errorf("create destination: routing key: %w", err)
		}

		routingKeys = append(routingKeys, vk)
	}

	return &Destination{
		RecipientKeys:   recipientKeys,
		ServiceEndpoint: svc.ServiceEndpoint,
		RoutingKeys:     routingKeys,
	}, nil
}

// Connection is what a protocol service needs to know about the pairwise relationship a protocol run happens on.
type Connection struct {
	// ID is the thread id of the connection protocol run that established the relationship.
	ID          string
	MyVerKey    string
	TheirVerKey string
	Destination *Destination
}
