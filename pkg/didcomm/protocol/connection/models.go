/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/doc/legacydid"
)

const (
	// Name of the connection protocol.
	Name = "connections"
	// Spec is the connection protocol message family.
	Spec = "https://didcomm.org/connections/1.0/"
	// InvitationMsgType is the invitation message type.
	InvitationMsgType = Spec + "invitation"
	// RequestMsgType is the request message type.
	RequestMsgType = Spec + "request"
	// ResponseMsgType is the response message type.
	ResponseMsgType = Spec + "response"
	// ProblemReportMsgType is the problem report message type.
	ProblemReportMsgType = Spec + "problem_report"
	// AckMsgType acknowledges a response.
	AckMsgType = model.AckMsgType

	// TrustPingSpec is the trust ping message family.
	TrustPingSpec = "https://didcomm.org/trust_ping/1.0/"
	// PingMsgType is the ping message type.
	PingMsgType = TrustPingSpec + "ping"
	// PingResponseMsgType is the ping response message type.
	PingResponseMsgType = TrustPingSpec + "ping_response"

	// DiscoverFeaturesSpec is the discover features message family.
	DiscoverFeaturesSpec = "https://didcomm.org/discover-features/1.0/"
	// QueryMsgType is the discover features query message type.
	QueryMsgType = DiscoverFeaturesSpec + "query"
	// DiscloseMsgType is the discover features disclose message type.
	DiscloseMsgType = DiscoverFeaturesSpec + "disclose"

	signatureType   = "https://didcomm.org/signature/1.0/ed25519Sha512_single"
	timestampLength = 8
)

// Invitation defines Connection protocol invitation message
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0160-connection-protocol#0-invitation-to-connect
type Invitation struct {
	// the Type of the connection invitation
	Type string `json:"@type,omitempty"`

	// the ID of the connection invitation
	ID string `json:"@id,omitempty"`

	// the Label of the connection invitation
	Label string `json:"label,omitempty"`

	// the RecipientKeys for the connection invitation
	RecipientKeys []string `json:"recipientKeys,omitempty"`

	// the Service endpoint of the connection invitation
	ServiceEndpoint string `json:"serviceEndpoint,omitempty"`

	// the RoutingKeys of the connection invitation
	RoutingKeys []string `json:"routingKeys,omitempty"`

	// the DID of the connection invitation
	DID string `json:"did,omitempty"`
}

// Request defines a2a Connection request
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0160-connection-protocol#1-connection-request
type Request struct {
	Type       string      `json:"@type,omitempty"`
	ID         string      `json:"@id,omitempty"`
	Label      string      `json:"label"`
	Connection *Connection `json:"connection,omitempty"`
	decorator.Decorators
}

// Response defines a2a Connection response
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0160-connection-protocol#2-connection-response
type Response struct {
	Type                string               `json:"@type,omitempty"`
	ID                  string               `json:"@id,omitempty"`
	ConnectionSignature *ConnectionSignature `json:"connection~sig,omitempty"`
	decorator.Decorators
}

// ConnectionSignature connection signature.
type ConnectionSignature struct {
	Type       string `json:"@type,omitempty"`
	Signature  string `json:"signature,omitempty"`
	SignedData string `json:"sig_data,omitempty"`
	SignVerKey string `json:"signer,omitempty"`
}

// Connection defines connection body of connection request.
type Connection struct {
	DID    string         `json:"DID,omitempty"`
	DIDDoc *legacydid.Doc `json:"DIDDoc,omitempty"`
}

// Ack acknowledges a connection response.
type Ack struct {
	Type   string `json:"@type,omitempty"`
	ID     string `json:"@id,omitempty"`
	Status string `json:"status,omitempty"`
	decorator.Decorators
}

// ProblemReport is a connection problem report.
type ProblemReport struct {
	*model.ProblemReport
}

// Ping is a trust ping.
type Ping struct {
	Type              string `json:"@type,omitempty"`
	ID                string `json:"@id,omitempty"`
	Comment           string `json:"comment,omitempty"`
	ResponseRequested bool   `json:"response_requested"`
	decorator.Decorators
}

// PingResponse answers a trust ping.
type PingResponse struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Comment string `json:"comment,omitempty"`
	decorator.Decorators
}

// Query asks which protocols the counterparty supports. Query is a protocol id, optionally ending with "*".
type Query struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Query   string `json:"query"`
	Comment string `json:"comment,omitempty"`
	decorator.Decorators
}

// Disclose lists supported protocols.
type Disclose struct {
	Type      string     `json:"@type,omitempty"`
	ID        string     `json:"@id,omitempty"`
	Protocols []Protocol `json:"protocols"`
	decorator.Decorators
}

// Protocol describes one supported protocol.
type Protocol struct {
	PID   string   `json:"pid"`
	Roles []string `json:"roles,omitempty"`
}

// Commands.

// CreateInvitation makes an inviter publish a new invitation. Empty fields fall back to the service
// configuration.
type CreateInvitation struct {
	InvitationID string
	Label        string
	Endpoint     string
	RoutingKeys  []string
}

// Accept makes an invitee answer its invitation with a request.
type Accept struct {
	Label string
}

// InputName implements engine.Input.
func (*Invitation) InputName() string { return "invitation" }

// ThreadID implements engine.Message. An invitation starts a thread.
func (*Invitation) ThreadID() string { return "" }

// InputName implements engine.Input.
func (*Request) InputName() string { return "request" }

// ThreadID implements engine.Message. A request is bound to the invitation it answers.
func (r *Request) ThreadID() string { return r.Decorators.ParentThreadID() }

// InputName implements engine.Input.
func (*Response) InputName() string { return "response" }

// ThreadID implements engine.Message.
func (r *Response) ThreadID() string { return r.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*Ack) InputName() string { return "ack" }

// ThreadID implements engine.Message.
func (a *Ack) ThreadID() string { return a.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*ProblemReport) InputName() string { return "problem_report" }

// InputName implements engine.Input.
func (*Ping) InputName() string { return "ping" }

// ThreadID implements engine.Message. Pings travel on their own thread, routed by connection.
func (*Ping) ThreadID() string { return "" }

// InputName implements engine.Input.
func (*Query) InputName() string { return "query" }

// ThreadID implements engine.Message.
func (*Query) ThreadID() string { return "" }

// InputName implements engine.Input.
func (*Disclose) InputName() string { return "disclose" }

// ThreadID implements engine.Message.
func (*Disclose) ThreadID() string { return "" }

// InputName implements engine.Input.
func (*CreateInvitation) InputName() string { return "create-invitation" }

// InputName implements engine.Input.
func (*Accept) InputName() string { return "accept" }
