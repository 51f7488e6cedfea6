/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"encoding/json"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

const (
	requestAttachID      = "libindy-request-presentation-0"
	presentationAttachID = "libindy-presentation-0"
)

// ProposePresentation is an optional message sent by the Prover to the verifier to initiate a proof
// presentation process, or in response to a request-presentation message when the Prover wants to
// propose using a different presentation format.
type ProposePresentation struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Comment string `json:"comment,omitempty"`
	// PresentationProposal represents the presentation example that Prover wants to provide.
	PresentationProposal PresentationPreview `json:"presentation_proposal"`
	decorator.Decorators
}

// RequestPresentation describes values that need to be revealed and predicates that need to be fulfilled.
type RequestPresentation struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Comment string `json:"comment,omitempty"`
	// RequestPresentations carries the anoncreds presentation request.
	RequestPresentations []decorator.Attachment `json:"request_presentations~attach"`
	decorator.Decorators
}

// Presentation is a response to a RequestPresentation message and contains signed presentations.
type Presentation struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Comment string `json:"comment,omitempty"`
	// Presentations carries the anoncreds presentation.
	Presentations []decorator.Attachment `json:"presentations~attach"`
	decorator.Decorators
}

// PresentationPreview is used to construct a preview of the data for the presentation.
type PresentationPreview struct {
	Type       string      `json:"@type,omitempty"`
	Attributes []Attribute `json:"attributes"`
	Predicates []Predicate `json:"predicates"`
}

// Attribute describes an attribute for the PresentationPreview.
type Attribute struct {
	Name      string `json:"name"`
	CredDefID string `json:"cred_def_id,omitempty"`
	MimeType  string `json:"mime-type,omitempty"`
	Value     string `json:"value,omitempty"`
	Referent  string `json:"referent,omitempty"`
}

// Predicate describes a predicate for the PresentationPreview.
type Predicate struct {
	Name      string `json:"name"`
	CredDefID string `json:"cred_def_id,omitempty"`
	Predicate string `json:"predicate"`
	Threshold int64  `json:"threshold"`
}

// Ack acknowledges a verified presentation.
type Ack struct {
	*model.Ack
}

// ProblemReport is a present-proof problem report.
type ProblemReport struct {
	*model.ProblemReport
}

// Commands.

// SendRequest makes a verifier request a presentation. PresentationRequest is the anoncreds request.
type SendRequest struct {
	// ThreadID names a new thread. It is ignored when the request answers a proposal.
	ThreadID            string
	PresentationRequest json.RawMessage
	Comment             string
}

// SendProposal makes a prover propose a presentation.
type SendProposal struct {
	ThreadID string
	Preview  PresentationPreview
	Comment  string
}

// PresentationResult is the outcome of creating the presentation a request asks for.
type PresentationResult struct {
	Presentation json.RawMessage
	Err          error
}

// SendPresentation makes a prover send the presentation it prepared.
type SendPresentation struct {
	Comment string
}

// Decline makes either side refuse the thread.
type Decline struct {
	Comment string
}

// InputName implements engine.Input.
func (*ProposePresentation) InputName() string { return "propose-presentation" }

// ThreadID implements engine.Message.
func (p *ProposePresentation) ThreadID() string { return p.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*RequestPresentation) InputName() string { return "request-presentation" }

// ThreadID implements engine.Message.
func (r *RequestPresentation) ThreadID() string { return r.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*Presentation) InputName() string { return "presentation" }

// ThreadID implements engine.Message.
func (p *Presentation) ThreadID() string { return p.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*Ack) InputName() string { return "ack" }

// InputName implements engine.Input.
func (*ProblemReport) InputName() string { return "problem-report" }

// InputName implements engine.Input.
func (*SendRequest) InputName() string { return "send-request" }

// InputName implements engine.Input.
func (*SendProposal) InputName() string { return "send-proposal" }

// InputName implements engine.Input.
func (*PresentationResult) InputName() string { return "presentation-result" }

// InputName implements engine.Input.
func (*SendPresentation) InputName() string { return "send-presentation" }

// InputName implements engine.Input.
func (*Decline) InputName() string { return "decline" }

func threadOf(id string, d *decorator.Decorators) string {
	if thid := d.ThreadID(); thid != "" {
		return thid
	}

	return id
}
