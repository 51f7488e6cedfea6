/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

// Request is the mediate-request a recipient sends to a mediator.
type Request struct {
	Type string `json:"@type,omitempty"`
	ID   string `json:"@id,omitempty"`
	decorator.Decorators
}

// Grant is the mediator's positive answer to a mediate-request.
type Grant struct {
	Type        string   `json:"@type,omitempty"`
	ID          string   `json:"@id,omitempty"`
	Endpoint    string   `json:"endpoint,omitempty"`
	RoutingKeys []string `json:"routing_keys,omitempty"`
	decorator.Decorators
}

// Deny is the mediator's negative answer to a mediate-request.
type Deny struct {
	Type string `json:"@type,omitempty"`
	ID   string `json:"@id,omitempty"`
	decorator.Decorators
}

// KeylistUpdate adds or removes the recipient keys routed to the sender.
type KeylistUpdate struct {
	Type    string   `json:"@type,omitempty"`
	ID      string   `json:"@id,omitempty"`
	Updates []Update `json:"updates,omitempty"`
	decorator.Decorators
}

// Update is one keylist-update entry.
type Update struct {
	RecipientKey string `json:"recipient_key,omitempty"`
	Action       string `json:"action,omitempty"`
}

// KeylistUpdateResponse reports the outcome of each keylist-update entry.
type KeylistUpdateResponse struct {
	Type    string           `json:"@type,omitempty"`
	ID      string           `json:"@id,omitempty"`
	Updated []UpdateResponse `json:"updated,omitempty"`
	decorator.Decorators
}

// UpdateResponse is the outcome of one keylist-update entry.
type UpdateResponse struct {
	RecipientKey string `json:"recipient_key,omitempty"`
	Action       string `json:"action,omitempty"`
	Result       string `json:"result,omitempty"`
}

// KeylistQuery asks the mediator for the keys routed to the sender.
type KeylistQuery struct {
	Type     string    `json:"@type,omitempty"`
	ID       string    `json:"@id,omitempty"`
	Paginate *Paginate `json:"paginate,omitempty"`
	decorator.Decorators
}

// Paginate selects a page of a keylist.
type Paginate struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Keylist answers a keylist-query.
type Keylist struct {
	Type       string       `json:"@type,omitempty"`
	ID         string       `json:"@id,omitempty"`
	Keys       []KeylistKey `json:"keys"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	decorator.Decorators
}

// KeylistKey is one routed key.
type KeylistKey struct {
	RecipientKey string `json:"recipient_key"`
}

// Pagination describes the page a keylist holds.
type Pagination struct {
	Count     int `json:"count"`
	Offset    int `json:"offset"`
	Remaining int `json:"remaining"`
}

// Client inputs.

// GrantMsg is an inbound mediate-grant.
type GrantMsg struct {
	*Grant
}

// DenyMsg is an inbound mediate-deny.
type DenyMsg struct {
	*Deny
}

// KeylistUpdateResponseMsg is an inbound keylist-update-response.
type KeylistUpdateResponseMsg struct {
	*KeylistUpdateResponse
}

// KeylistMsg is an inbound keylist.
type KeylistMsg struct {
	*Keylist
}

// ProblemReport is a coordinate-mediation problem report.
type ProblemReport struct {
	*model.ProblemReport
}

// RequestMediation makes a recipient ask for mediation.
type RequestMediation struct {
	ThreadID string
}

// UpdateKeys makes a granted recipient change the keys routed to it.
type UpdateKeys struct {
	ID      string
	Updates []Update
}

// QueryKeys makes a granted recipient ask for its routed keys.
type QueryKeys struct {
	Paginate *Paginate
}

// InputName implements engine.Input.
func (*GrantMsg) InputName() string { return "mediate-grant" }

// ThreadID implements engine.Message.
func (m *GrantMsg) ThreadID() string { return m.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*DenyMsg) InputName() string { return "mediate-deny" }

// ThreadID implements engine.Message.
func (m *DenyMsg) ThreadID() string { return m.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*KeylistUpdateResponseMsg) InputName() string { return "keylist-update-response" }

// ThreadID implements engine.Message.
func (m *KeylistUpdateResponseMsg) ThreadID() string { return m.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*KeylistMsg) InputName() string { return "keylist" }

// ThreadID implements engine.Message.
func (m *KeylistMsg) ThreadID() string { return m.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*ProblemReport) InputName() string { return "problem-report" }

// InputName implements engine.Input.
func (*RequestMediation) InputName() string { return "request-mediation" }

// InputName implements engine.Input.
func (*UpdateKeys) InputName() string { return "update-keys" }

// InputName implements engine.Input.
func (*QueryKeys) InputName() string { return "query-keys" }
