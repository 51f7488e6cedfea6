/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package revocationnotification

import (
	"fmt"
	"strings"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

const (
	// FormatIndyAnoncreds is the only supported revocation format.
	FormatIndyAnoncreds = "indy-anoncreds"

	credentialIDSeparator = "::"
	legacyThreadPrefix    = "indy" + credentialIDSeparator
)

// Revoke notifies a holder that a credential was revoked.
type Revoke struct {
	Type             string `json:"@type,omitempty"`
	ID               string `json:"@id,omitempty"`
	RevocationFormat string `json:"revocation_format"`
	// CredentialID is "<rev_reg_id>::<cred_rev_id>" for indy-anoncreds.
	CredentialID string `json:"credential_id"`
	Comment      string `json:"comment,omitempty"`
	decorator.Decorators
}

// Ack acknowledges a revocation notification.
type Ack struct {
	*model.Ack
}

// ProblemReport is a revocation notification problem report.
type ProblemReport struct {
	*model.ProblemReport
}

// Notification is what a holder learns from a revocation notification.
type Notification struct {
	RevRegID  string
	CredRevID string
	Comment   string
}

// Notify makes a sender notify the holder of a revoked credential.
type Notify struct {
	ThreadID     string
	RevRegID     string
	CredRevID    string
	Comment      string
	AckRequested bool
}

// InputName implements engine.Input.
func (*Revoke) InputName() string { return "revoke" }

// ThreadID implements engine.Message.
func (r *Revoke) ThreadID() string { return r.Decorators.ThreadID() }

// InputName implements engine.Input.
func (*Ack) InputName() string { return "ack" }

// InputName implements engine.Input.
func (*ProblemReport) InputName() string { return "problem-report" }

// InputName implements engine.Input.
func (*Notify) InputName() string { return "notify" }

// CredentialID builds the indy-anoncreds credential id of a revoked credential.
func CredentialID(revRegID, credRevID string) string {
	return revRegID + credentialIDSeparator + credRevID
}

// ParseCredentialID splits an indy-anoncreds credential id.
func ParseCredentialID(id string) (revRegID, credRevID string, err error) {
	i := strings.LastIndex(id, credentialIDSeparator)
	if i < 0 {
		return "", "", fmt.Errorf("credential id %q lacks the %q separator", id, credentialIDSeparator)
	}

	revRegID, credRevID = id[:i], id[i+len(credentialIDSeparator):]
	if revRegID == "" || credRevID == "" {
		return "", "", fmt.Errorf("credential id %q lacks a registry or revocation id", id)
	}

	return revRegID, credRevID, nil
}

// Adaptation10 maps 1.0 messages onto 2.0. A 1.0 revoke names the credential in its thread_id as
// "indy::<rev_reg_id>::<cred_rev_id>".
func Adaptation10() service.Adaptation {
	return service.Adaptation{
		Family: Name,
		From:   "1.0",
		To:     "2.0",
		Convert: func(name string, msg service.DIDCommMsgMap) (string, service.DIDCommMsgMap) {
			if name != "revoke" {
				return name, msg
			}

			if thid, ok := msg["thread_id"].(string); ok {
				msg["credential_id"] = strings.TrimPrefix(thid, legacyThreadPrefix)
				msg["revocation_format"] = FormatIndyAnoncreds

				delete(msg, "thread_id")
			}

			return name, msg
		},
	}
}

func threadOf(id string, d *decorator.Decorators) string {
	if thid := d.ThreadID(); thid != "" {
		return thid
	}

	return id
}
