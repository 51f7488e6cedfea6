/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"encoding/json"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
)

const (
	// common states.
	stateNameStart     = "start"
	stateNameAbandoned = "abandoned"
	stateNameDeclined  = "declined"
	stateNameDone      = "done"

	// states for Verifier.
	stateNameRequestSent      = "request-sent"
	stateNameProposalReceived = "proposal-received"

	// states for Prover.
	stateNameRequestReceived      = "request-received"
	stateNamePresentationPrepared = "presentation-prepared"
	stateNamePresentationSent     = "presentation-sent"
	stateNameProposalSent         = "proposal-sent"
)

const (
	propertyStatus            = "status"
	propertyVerified          = "verified"
	propertyRevealed          = "revealedAttributes"
	propertyProposedAttrs     = "proposedAttributes"
	propertyRequestName       = "requestName"
	propertyProblemReportCode = "code"
)

// Status of a finished thread.
type Status string

// Statuses.
const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusDeclined Status = "declined"
)

// State is a present-proof state. Verifier and prover have distinct variants; Finished is shared.
type State interface {
	Name() string
	Terminal() bool
	presentProofState()
}

// VerifierInitial is the verifier before anything happened on the thread.
type VerifierInitial struct{}

// VerifierProposalReceived holds a prover's proposal the verifier did not answer yet.
type VerifierProposalReceived struct {
	Proposal *ProposePresentation
}

// VerifierRequestSent waits for the presentation.
type VerifierRequestSent struct {
	Request *RequestPresentation
	// RequestJSON is the anoncreds presentation request.
	RequestJSON json.RawMessage
}

// ProverInitial is the prover before anything happened on the thread.
type ProverInitial struct{}

// ProverProposalSent waits for a request.
type ProverProposalSent struct {
	Proposal *ProposePresentation
}

// ProverRequestReceived holds a request while its presentation is created.
type ProverRequestReceived struct {
	Request     *RequestPresentation
	RequestJSON json.RawMessage
}

// ProverPresentationPrepared holds a created presentation until it is sent.
type ProverPresentationPrepared struct {
	Request      *RequestPresentation
	RequestJSON  json.RawMessage
	Presentation json.RawMessage
}

// ProverPresentationSent waits for the verifier's ack.
type ProverPresentationSent struct {
	Presentation *Presentation
}

// Finished is the terminal state of both roles.
type Finished struct {
	Status Status
	Report *model.ProblemReport
	// Verifier side.
	Verified     bool
	Presentation json.RawMessage
	Revealed     map[string]anoncreds.RevealedAttr
}

// Name implements engine.State.
func (*VerifierInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*VerifierInitial) Terminal() bool { return false }

func (*VerifierInitial) presentProofState() {}

// Name implements engine.State.
func (*VerifierProposalReceived) Name() string { return stateNameProposalReceived }

// Terminal implements engine.State.
func (*VerifierProposalReceived) Terminal() bool { return false }

// Properties exposes the proposed attribute names.
func (s *VerifierProposalReceived) Properties() map[string]interface{} {
	names := make([]string, 0, len(s.Proposal.PresentationProposal.Attributes))
	for _, a := range s.Proposal.PresentationProposal.Attributes {
		names = append(names, a.Name)
	}

	return map[string]interface{}{propertyProposedAttrs: names}
}

func (*VerifierProposalReceived) presentProofState() {}

// Name implements engine.State.
func (*VerifierRequestSent) Name() string { return stateNameRequestSent }

// Terminal implements engine.State.
func (*VerifierRequestSent) Terminal() bool { return false }

func (*VerifierRequestSent) presentProofState() {}

// Name implements engine.State.
func (*ProverInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*ProverInitial) Terminal() bool { return false }

func (*ProverInitial) presentProofState() {}

// Name implements engine.State.
func (*ProverProposalSent) Name() string { return stateNameProposalSent }

// Terminal implements engine.State.
func (*ProverProposalSent) Terminal() bool { return false }

func (*ProverProposalSent) presentProofState() {}

// Name implements engine.State.
func (*ProverRequestReceived) Name() string { return stateNameRequestReceived }

// Terminal implements engine.State.
func (*ProverRequestReceived) Terminal() bool { return false }

// Properties exposes the name of the request.
func (s *ProverRequestReceived) Properties() map[string]interface{} {
	name, _ := anoncreds.OptionalString(s.RequestJSON, "$.name") // nolint: errcheck

	return map[string]interface{}{propertyRequestName: name}
}

func (*ProverRequestReceived) presentProofState() {}

// Name implements engine.State.
func (*ProverPresentationPrepared) Name() string { return stateNamePresentationPrepared }

// Terminal implements engine.State.
func (*ProverPresentationPrepared) Terminal() bool { return false }

func (*ProverPresentationPrepared) presentProofState() {}

// Name implements engine.State.
func (*ProverPresentationSent) Name() string { return stateNamePresentationSent }

// Terminal implements engine.State.
func (*ProverPresentationSent) Terminal() bool { return false }

func (*ProverPresentationSent) presentProofState() {}

// Name implements engine.State.
func (s *Finished) Name() string {
	switch s.Status {
	case StatusSuccess:
		return stateNameDone
	case StatusDeclined:
		return stateNameDeclined
	default:
		return stateNameAbandoned
	}
}

// Terminal implements engine.State.
func (*Finished) Terminal() bool { return true }

// ProblemReport returns the report a failed or declined thread ended with.
func (s *Finished) ProblemReport() *model.ProblemReport { return s.Report }

// Properties exposes the outcome of the thread. Revealed values are given raw.
func (s *Finished) Properties() map[string]interface{} {
	props := map[string]interface{}{propertyStatus: string(s.Status)}

	if s.Verified {
		props[propertyVerified] = true

		revealed := make(map[string]string, len(s.Revealed))
		for referent, attr := range s.Revealed {
			revealed[referent] = attr.Raw
		}

		props[propertyRevealed] = revealed
	}

	if s.Report != nil {
		props[propertyProblemReportCode] = s.Report.Code()
	}

	return props
}

func (*Finished) presentProofState() {}
