/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package decorator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// TransportReturnRouteNone return route option none.
	TransportReturnRouteNone = "none"
	// TransportReturnRouteAll return route option all.
	TransportReturnRouteAll = "all"
	// TransportReturnRouteThread return route option thread.
	TransportReturnRouteThread = "thread"

	// AckOnReceipt asks for an ack once the message is received.
	AckOnReceipt = "RECEIPT"
	// AckOnOutcome asks for an ack once the message has been processed.
	AckOnOutcome = "OUTCOME"
)

// Thread thread data.
type Thread struct {
	ID             string         `json:"thid,omitempty"`
	PID            string         `json:"pthid,omitempty"`
	SenderOrder    int            `json:"sender_order,omitempty"`
	ReceivedOrders map[string]int `json:"received_orders,omitempty"`
}

// Timing keeps expiration time.
type Timing struct {
	OutTime     time.Time `json:"out_time,omitempty"`
	ExpiresTime time.Time `json:"expires_time,omitempty"`
}

// PleaseAck asks the counterparty for an acknowledgement.
type PleaseAck struct {
	On []string `json:"on,omitempty"`
}

// Transport transport decorator. ReturnRoute accepts "none", "all" or "thread".
type Transport struct {
	ReturnRoute string `json:"return_route,omitempty"`
}

// Decorators is the set of optional decorators shared by every protocol message. Messages embed it so the
// decorators are inlined next to the message fields.
type Decorators struct {
	Thread    *Thread    `json:"~thread,omitempty"`
	Timing    *Timing    `json:"~timing,omitempty"`
	PleaseAck *PleaseAck `json:"~please_ack,omitempty"`
	Transport *Transport `json:"~transport,omitempty"`
}

// ThreadID returns the thread id of the decorators, or "" when there is no thread decorator.
func (d *Decorators) ThreadID() string {
	if d == nil || d.Thread == nil {
		return ""
	}

	return d.Thread.ID
}

// ParentThreadID returns the parent thread id of the decorators.
func (d *Decorators) ParentThreadID() string {
	if d == nil || d.Thread == nil {
		return ""
	}

	return d.Thread.PID
}

// AckRequested tells whether the message carries a please_ack decorator.
func (d *Decorators) AckRequested() bool {
	return d != nil && d.PleaseAck != nil
}

// OnThread returns decorators bound to thid (and optionally pthid), stamped with the current out time.
func OnThread(thid, pthid string) Decorators {
	return Decorators{
		Thread: &Thread{ID: thid, PID: pthid},
		Timing: &Timing{OutTime: time.Now().UTC()},
	}
}

// Attachment is intended to provide the possibility to include files, links or even JSON payload to the message.
// To find out more please visit https://github.com/hyperledger/aries-rfcs/tree/master/concepts/0017-attachments
type Attachment struct {
	// ID is a JSON-LD construction that uniquely identifies attached content within the scope of a given message.
	ID string `json:"@id,omitempty"`
	// Description is an optional human-readable description of the content.
	Description string `json:"description,omitempty"`
	// FileName is a hint about the name that might be used if this attachment is persisted as a file.
	FileName string `json:"filename,omitempty"`
	// MimeType describes the MIME type of the attached content. Optional but recommended.
	MimeType string `json:"mime-type,omitempty"`
	// LastModTime is a hint about when the content in this attachment was last modified.
	LastModTime time.Time `json:"lastmod_time,omitempty"`
	// ByteCount is an optional, and mostly relevant when content is included by reference instead of by value.
	ByteCount int64 `json:"byte_count,omitempty"`
	// Data is a JSON object that gives access to the actual content of the attachment.
	Data AttachmentData `json:"data,omitempty"`
}

// AttachmentData contains attachment payload.
type AttachmentData struct {
	// Sha256 is a hash of the content. Optional.
	Sha256 string `json:"sha256,omitempty"`
	// Links is a list of zero or more locations at which the content may be fetched. Optional.
	Links []string `json:"links,omitempty"`
	// Base64 encoded data, when representing arbitrary content inline instead of via links. Optional.
	Base64 string `json:"base64,omitempty"`
	// JSON is a directly embedded JSON data, when representing content inline instead of via links,
	// and when the content is natively conveyable as JSON. Optional.
	JSON interface{} `json:"json,omitempty"`
}

// ErrEmptyAttachment is returned when an attachment carries neither inline JSON nor base64 data.
var ErrEmptyAttachment = errors.New("no contents in this attachment")

// Fetch returns the inline contents of the attachment.
func (d *AttachmentData) Fetch() ([]byte, error) {
	if d.JSON != nil {
		bits, err := json.Marshal(d.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal json contents: %w", err)
		}

		return bits, nil
	}

	if d.Base64 != "" {
		bits, err := base64.StdEncoding.DecodeString(d.Base64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 contents: %w", err)
		}

		return bits, nil
	}

	return nil, ErrEmptyAttachment
}

// NewBase64Attachment builds a JSON attachment carrying data base64 encoded.
func NewBase64Attachment(id string, data []byte) Attachment {
	return Attachment{
		ID:       id,
		MimeType: "application/json",
		Data:     AttachmentData{Base64: base64.StdEncoding.EncodeToString(data)},
	}
}

// FindAttachment returns the contents of the attachment with the given id, or of the first attachment when id
// is empty.
func FindAttachment(attachments []Attachment, id string) ([]byte, error) {
	for i := range attachments {
		if id == "" || attachments[i].ID == id {
			return attachments[i].Data.Fetch()
		}
	}

	return nil, fmt.Errorf("attachment %q not found", id)
}
