/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"github.com/google/uuid"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

// ProblemReportMsgType is the generic report-problem type.
const ProblemReportMsgType = "https://didcomm.org/report-problem/1.0/problem-report"

// ProblemReport problem report definition.
type ProblemReport struct {
	Type        string      `json:"@type"`
	ID          string      `json:"@id"`
	Description Code        `json:"description"`
	WebRedirect interface{} `json:"~web-redirect,omitempty"`
	decorator.Decorators
}

// Code represents a problem report code with its human readable comment.
type Code struct {
	Code    string `json:"code"`
	Comment string `json:"en,omitempty"`
}

// NewProblemReport builds a report of msgType on thid.
func NewProblemReport(msgType, thid, code, comment string) *ProblemReport {
	return &ProblemReport{
		Type:        msgType,
		ID:          uuid.New().String(),
		Description: Code{Code: code, Comment: comment},
		Decorators:  decorator.OnThread(thid, ""),
	}
}

// ThreadID returns the thread the report refers to.
func (p *ProblemReport) ThreadID() string {
	return p.Decorators.ThreadID()
}

// Code returns the problem code.
func (p *ProblemReport) Code() string {
	return p.Description.Code
}

// Comment returns the human readable explanation.
func (p *ProblemReport) Comment() string {
	return p.Description.Comment
}
