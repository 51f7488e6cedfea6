/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package problemreport decides how protocol failures are reported: what a remote report does to the local
// machine and whether a local failure is announced to the counterparty.
package problemreport

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
)

// Problem codes.
const (
	CodeTimeout             = "timeout"
	CodeAbandoned           = "abandoned"
	CodeRequestNotAccepted  = "request_not_accepted"
	CodeResponseNotAccepted = "response_not_accepted"
	CodeInvalidMessage      = "invalid-message"
	CodeLedgerLookupFailed  = "ledger-lookup-failed"
	CodeVerificationFailed  = "verification-failed"
	CodeDeclined            = "declined"
	CodeIssuanceFailed      = "issuance-failed"
	CodePresentationFailed  = "presentation-failed"
)

// Policy is the problem report policy of a protocol service.
type Policy struct {
	// NotifyOnLocalFailure sends a problem report to the counterparty when the local side fails a thread.
	NotifyOnLocalFailure bool
	// MsgType is the type of reports built by Local and Timeout. Protocols adopting the report under their own
	// family set it, e.g. "https://didcomm.org/issue-credential/1.0/problem-report".
	MsgType string
}

// Default returns the policy used when a service is not configured otherwise.
func Default(msgType string) Policy {
	return Policy{NotifyOnLocalFailure: true, MsgType: msgType}
}

// Remote absorbs a report received from the counterparty: it becomes the terminal report of the thread and
// nothing is sent back.
func (p Policy) Remote(pr *model.ProblemReport) (*model.ProblemReport, []service.DIDCommMsgMap) {
	return pr, nil
}

// Local builds the report for a local failure on thid. The report is also returned as an outbound message
// when the policy notifies the counterparty.
func (p Policy) Local(thid, code string, err error) (*model.ProblemReport, []service.DIDCommMsgMap) {
	comment := ""
	if err != nil {
		comment = err.Error()
	}

	return p.report(thid, code, comment)
}

// Declined builds the report sent when the local side declines a thread.
func (p Policy) Declined(thid, comment string) (*model.ProblemReport, []service.DIDCommMsgMap) {
	return p.report(thid, CodeDeclined, comment)
}

// Timeout builds the terminal report of a timed out thread. It is never sent: a timed out counterparty is
// assumed to be gone.
func (p Policy) Timeout(thid string) *model.ProblemReport {
	return model.NewProblemReport(p.msgType(), thid, CodeTimeout, "protocol timed out")
}

func (p Policy) report(thid, code, comment string) (*model.ProblemReport, []service.DIDCommMsgMap) {
	pr := model.NewProblemReport(p.msgType(), thid, code, comment)

	if !p.NotifyOnLocalFailure {
		return pr, nil
	}

	return pr, []service.DIDCommMsgMap{service.NewDIDCommMsgMap(pr)}
}

func (p Policy) msgType() string {
	if p.MsgType == "" {
		return model.ProblemReportMsgType
	}

	return p.MsgType
}
