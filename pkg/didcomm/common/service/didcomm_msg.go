/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

const (
	jsonID             = "@id"
	jsonType           = "@type"
	jsonThread         = "~thread"
	jsonThreadID       = "thid"
	jsonParentThreadID = "pthid"
	jsonMetadata       = "_internal_metadata"
)

var (
	// ErrThreadIDNotFound error when message does not carry a thread id and no message id.
	ErrThreadIDNotFound = errors.New("threadID not found")
	// ErrInvalidMessage error when the message can not be parsed as a DIDComm message.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNilMessage error when the message is nil.
	ErrNilMessage = errors.New("message is nil")
)

// DIDCommMsg describes message interface.
type DIDCommMsg interface {
	ID() string
	Type() string
	ThreadID() (string, error)
	ParentThreadID() string
	Clone() DIDCommMsgMap
	Metadata() map[string]interface{}
	Decode(v interface{}) error
}

// DIDCommMsgMap is a message in its JSON map form. It is the shape every protocol message has at the engine
// boundary: {"@id", "@type", ...fields, "~thread": {"thid", "pthid"}}.
type DIDCommMsgMap map[string]interface{}

// ParseDIDCommMsgMap parses bytes into a DIDCommMsgMap.
func ParseDIDCommMsgMap(payload []byte) (DIDCommMsgMap, error) {
	var msg DIDCommMsgMap

	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if msg == nil {
		return nil, ErrNilMessage
	}

	return msg, nil
}

// NewDIDCommMsgMap converts a typed message into its map form.
func NewDIDCommMsgMap(v interface{}) DIDCommMsgMap {
	switch m := v.(type) {
	case DIDCommMsgMap:
		return m.Clone()
	case *DIDCommMsgMap:
		return m.Clone()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var msg DIDCommMsgMap

	if err = json.Unmarshal(b, &msg); err != nil {
		return nil
	}

	return msg
}

// ID returns the message id.
func (m DIDCommMsgMap) ID() string {
	if m == nil {
		return ""
	}

	res, _ := m[jsonID].(string) // nolint: errcheck

	return res
}

// SetID sets the message id.
func (m DIDCommMsgMap) SetID(id string) {
	if m == nil {
		return
	}

	m[jsonID] = id
}

// Type returns the message type.
func (m DIDCommMsgMap) Type() string {
	if m == nil {
		return ""
	}

	res, _ := m[jsonType].(string) // nolint: errcheck

	return res
}

// SetType sets the message type.
func (m DIDCommMsgMap) SetType(t string) {
	if m == nil {
		return
	}

	m[jsonType] = t
}

// thread decodes the ~thread decorator, tolerating unexpected shapes.
func (m DIDCommMsgMap) thread() decorator.Thread {
	var thread decorator.Thread

	raw, ok := m[jsonThread]
	if !ok || raw == nil {
		return thread
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &thread,
	})
	if err != nil {
		return thread
	}

	if err = decoder.Decode(raw); err != nil {
		return decorator.Thread{}
	}

	return thread
}

// ThreadID returns the message thread id. A message without a thread decorator starts a new thread whose id
// is the message id.
func (m DIDCommMsgMap) ThreadID() (string, error) {
	if m == nil {
		return "", ErrThreadIDNotFound
	}

	if thid := m.thread().ID; thid != "" {
		return thid, nil
	}

	if id := m.ID(); id != "" {
		return id, nil
	}

	return "", ErrThreadIDNotFound
}

// ParentThreadID returns the message parent thread id.
func (m DIDCommMsgMap) ParentThreadID() string {
	if m == nil {
		return ""
	}

	return m.thread().PID
}

// SetThread sets the thread decorator, keeping any other thread fields.
func (m DIDCommMsgMap) SetThread(thid, pthid string) {
	if m == nil {
		return
	}

	thread, ok := m[jsonThread].(map[string]interface{})
	if !ok {
		thread = map[string]interface{}{}
	}

	if thid != "" {
		thread[jsonThreadID] = thid
	}

	if pthid != "" {
		thread[jsonParentThreadID] = pthid
	}

	m[jsonThread] = thread
}

// Metadata returns message metadata. Metadata never leaves the agent.
func (m DIDCommMsgMap) Metadata() map[string]interface{} {
	if m[jsonMetadata] == nil {
		return map[string]interface{}{}
	}

	metadata, ok := m[jsonMetadata].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}

	return metadata
}

// Decode converts the message into the given struct.
func (m DIDCommMsgMap) Decode(v interface{}) error {
	b, err := json.Marshal(m.withoutMetadata())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err = json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return nil
}

// MarshalPayload returns the wire form of the message.
func (m DIDCommMsgMap) MarshalPayload() ([]byte, error) {
	return json.Marshal(m.withoutMetadata())
}

// Clone copies first level keys-values into another map (DIDCommMsgMap).
func (m DIDCommMsgMap) Clone() DIDCommMsgMap {
	if m == nil {
		return nil
	}

	msg := DIDCommMsgMap{}
	for k, v := range m {
		msg[k] = v
	}

	return msg
}

func (m DIDCommMsgMap) withoutMetadata() DIDCommMsgMap {
	if _, ok := m[jsonMetadata]; !ok {
		return m
	}

	msg := m.Clone()
	delete(msg, jsonMetadata)

	return msg
}
