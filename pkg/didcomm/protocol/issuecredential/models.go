/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"golang.org/x/exp/maps"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

const (
	// Name defines the protocol name.
	Name = "issue-credential"
	// Spec defines the protocol spec (version 1.0).
	Spec = "https://didcomm.org/issue-credential/1.0/"
	// ProposeCredentialMsgType defines the protocol propose-credential message type.
	ProposeCredentialMsgType = Spec + "propose-credential"
	// OfferCredentialMsgType defines the protocol offer-credential message type.
	OfferCredentialMsgType = Spec + "offer-credential"
	// RequestCredentialMsgType defines the protocol request-credential message type.
	RequestCredentialMsgType = Spec + "request-credential"
	// IssueCredentialMsgType defines the protocol issue-credential message type.
	IssueCredentialMsgType = Spec + "issue-credential"
	// AckMsgType defines the protocol ack message type.
	AckMsgType = Spec + "ack"
	// ProblemReportMsgType defines the protocol problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"
	// CredentialPreviewMsgType defines the protocol credential-preview inner object type.
	CredentialPreviewMsgType = Spec + "credential-preview"

	// SpecV2 is the 2.0 family, adapted to Spec at the boundary.
	SpecV2 = "https://didcomm.org/issue-credential/2.0/"

	offerAttachID      = "libindy-cred-offer-0"
	requestAttachID    = "libindy-cred-request-0"
	credentialAttachID = "libindy-cred-0"
)

// PreviewCredential is used to construct a preview of the data for the credential that is to be issued.
type PreviewCredential struct {
	Type       string      `json:"@type,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute describes an attribute for a Preview Credential.
type Attribute struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime-type,omitempty"`
	Value    string `json:"value,omitempty"`
}

// ProposeCredential is sent by the potential Holder to start the protocol or to answer an offer with the
// adjustments it wants.
type ProposeCredential struct {
	Type               string             `json:"@type,omitempty"`
	ID                 string             `json:"@id,omitempty"`
	Comment            string             `json:"comment,omitempty"`
	CredentialProposal *PreviewCredential `json:"credential_proposal,omitempty"`
	SchemaID           string             `json:"schema_id,omitempty"`
	CredDefID          string             `json:"cred_def_id,omitempty"`
	decorator.Decorators
}

// OfferCredential is sent by the Issuer to the potential Holder, describing the credential it intends to
// offer. offers~attach carries the anoncreds offer.
type OfferCredential struct {
	Type              string                 `json:"@type,omitempty"`
	ID                string                 `json:"@id,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CredentialPreview PreviewCredential      `json:"credential_preview"`
	OffersAttach      []decorator.Attachment `json:"offers~attach"`
	decorator.Decorators
}

// RequestCredential is a message sent by the potential Holder to the Issuer, to request the issuance of a
// credential.
type RequestCredential struct {
	Type           string                 `json:"@type,omitempty"`
	ID             string                 `json:"@id,omitempty"`
	Comment        string                 `json:"comment,omitempty"`
	RequestsAttach []decorator.Attachment `json:"requests~attach"`
	decorator.Decorators
}

// IssueCredential contains as attached payload the credential being issued.
type IssueCredential struct {
	Type              string                 `json:"@type,omitempty"`
	ID                string                 `json:"@id,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CredentialsAttach []decorator.Attachment `json:"credentials~attach"`
	decorator.Decorators
}

// Ack acknowledges an issued credential.
type Ack struct {
	*model.Ack
}

// ProblemReport is an issue-credential problem report.
type ProblemReport struct {
	*model.ProblemReport
}

// Commands.

// SendOffer makes an issuer offer a credential of CredDefID with Attributes. RevRegID and TailsFile are set for
// revocable credential definitions.
type SendOffer struct {
	// ThreadID names a new thread. It is ignored when the offer answers a proposal.
	ThreadID   string
	CredDefID  string
	Attributes map[string]string
	RevRegID   string
	TailsFile  string
	Comment    string
}

// SendProposal makes a holder propose a credential.
type SendProposal struct {
	ThreadID   string
	CredDefID  string
	SchemaID   string
	Attributes map[string]string
	Comment    string
}

// SendRequest makes a holder request the offered credential.
type SendRequest struct {
	ProverDID string
}

// Issue makes an issuer answer a received request.
type Issue struct{}

// Decline makes either side refuse the thread.
type Decline struct {
	Comment string
}

// InputName implements engine.Input.
func (*ProposeCredential) InputName() string { return "propose-credential" }

// ThreadID implements engine.Message.
func (p *ProposeCredential) ThreadID() string { return p.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*OfferCredential) InputName() string { return "offer-credential" }

// ThreadID implements engine.Message.
func (o *OfferCredential) ThreadID() string { return o.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*RequestCredential) InputName() string { return "request-credential" }

// ThreadID implements engine.Message.
func (r *RequestCredential) ThreadID() string { return r.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*IssueCredential) InputName() string { return "issue-credential" }

// ThreadID implements engine.Message.
func (i *IssueCredential) ThreadID() string { return i.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*Ack) InputName() string { return "ack" }

// InputName implements engine.Input.
func (*ProblemReport) InputName() string { return "problem-report" }

// InputName implements engine.Input.
func (*SendOffer) InputName() string { return "send-offer" }

// InputName implements engine.Input.
func (*SendProposal) InputName() string { return "send-proposal" }

// InputName implements engine.Input.
func (*SendRequest) InputName() string { return "send-request" }

// InputName implements engine.Input.
func (*Issue) InputName() string { return "issue" }

// InputName implements engine.Input.
func (*Decline) InputName() string { return "decline" }

// threadOf returns the thread a message starts or continues.
func threadOf(id string, d *decorator.Decorators) string {
	if thid := d.ThreadID(); thid != "" {
		return thid
	}

	return id
}

func preview(attrs map[string]string) PreviewCredential {
	p := PreviewCredential{Type: CredentialPreviewMsgType, Attributes: []Attribute{}}

	for _, name := range sortedKeys(attrs) {
		p.Attributes = append(p.Attributes, Attribute{Name: name, Value: attrs[name]})
	}

	return p
}

// AdaptationV2 maps 2.0 messages onto the 1.0 shapes: the format list is dropped and the preview is retyped.
// Attachments keep their ids and are read by position.
func AdaptationV2() service.Adaptation {
	return service.Adaptation{
		Family: Name,
		From:   "2.0",
		To:     "1.0",
		Convert: func(name string, msg service.DIDCommMsgMap) (string, service.DIDCommMsgMap) {
			delete(msg, "formats")

			for _, key := range []string{"credential_preview", "credential_proposal"} {
				if p, ok := msg[key].(map[string]interface{}); ok {
					p = maps.Clone(p)
					p["@type"] = CredentialPreviewMsgType
					msg[key] = p
				}
			}

			return name, msg
		},
	}
}
