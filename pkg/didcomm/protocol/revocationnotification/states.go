/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package revocationnotification

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
)

const (
	stateNameStart     = "start"
	stateNameSent      = "notification-sent"
	stateNameDone      = "done"
	stateNameAbandoned = "abandoned"
)

const (
	propertyRevRegID          = "revRegId"
	propertyCredRevID         = "credRevId"
	propertyComment           = "comment"
	propertyProblemReportCode = "code"
)

// Status of a finished thread.
type Status string

// Statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// State is a revocation notification state.
type State interface {
	Name() string
	Terminal() bool
	revocationNotificationState()
}

// SenderInitial is the sender before the notification.
type SenderInitial struct{}

// SenderSent waits for the ack the notification asked for.
type SenderSent struct {
	Revoke *Revoke
}

// ReceiverInitial is the holder before the notification.
type ReceiverInitial struct{}

// Finished is the terminal state of both roles. Notification is set on the receiver side.
type Finished struct {
	Status       Status
	Report       *model.ProblemReport
	Notification *Notification
}

// Name implements engine.State.
func (*SenderInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*SenderInitial) Terminal() bool { return false }

func (*SenderInitial) revocationNotificationState() {}

// Name implements engine.State.
func (*SenderSent) Name() string { return stateNameSent }

// Terminal implements engine.State.
func (*SenderSent) Terminal() bool { return false }

func (*SenderSent) revocationNotificationState() {}

// Name implements engine.State.
func (*ReceiverInitial) Name() string { return stateNameStart }

// Terminal implements engine.State.
func (*ReceiverInitial) Terminal() bool { return false }

func (*ReceiverInitial) revocationNotificationState() {}

// Name implements engine.State.
func (s *Finished) Name() string {
	if s.Status == StatusSuccess {
		return stateNameDone
	}

	return stateNameAbandoned
}

// Terminal implements engine.State.
func (*Finished) Terminal() bool { return true }

// ProblemReport returns the report a failed thread ended with.
func (s *Finished) ProblemReport() *model.ProblemReport { return s.Report }

// Properties exposes the revoked credential to the holder.
func (s *Finished) Properties() map[string]interface{} {
	props := map[string]interface{}{}

	if s.Notification != nil {
		props[propertyRevRegID] = s.Notification.RevRegID
		props[propertyCredRevID] = s.Notification.CredRevID
		props[propertyComment] = s.Notification.Comment
	}

	if s.Report != nil {
		props[propertyProblemReportCode] = s.Report.Code()
	}

	return props
}

func (*Finished) revocationNotificationState() {}
