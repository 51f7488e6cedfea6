/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"fmt"
	"strings"
)

const (
	// DIDCommPrefix is the canonical message type prefix.
	DIDCommPrefix = "https://didcomm.org/"
	// LegacyDIDCommPrefix is the message type prefix used by older agents.
	LegacyDIDCommPrefix = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/"
)

// MessageType is a parsed "@type" value: <prefix><family>/<version>/<name>.
type MessageType struct {
	Prefix  string
	Family  string
	Version string
	Name    string
}

// ParseMessageType splits a message type into its parts.
func ParseMessageType(t string) (MessageType, error) {
	prefix := DIDCommPrefix

	switch {
	case strings.HasPrefix(t, DIDCommPrefix):
		t = strings.TrimPrefix(t, DIDCommPrefix)
	case strings.HasPrefix(t, LegacyDIDCommPrefix):
		prefix = LegacyDIDCommPrefix
		t = strings.TrimPrefix(t, LegacyDIDCommPrefix)
	default:
		return MessageType{}, fmt.Errorf("%w: unsupported message type prefix in %q", ErrInvalidMessage, t)
	}

	parts := strings.Split(t, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" { // nolint: gomnd
		return MessageType{}, fmt.Errorf("%w: malformed message type %q", ErrInvalidMessage, t)
	}

	return MessageType{Prefix: prefix, Family: parts[0], Version: parts[1], Name: parts[2]}, nil
}

// String returns the canonical form of the type.
func (t MessageType) String() string {
	return DIDCommPrefix + t.Family + "/" + t.Version + "/" + t.Name
}

// FamilyVersion returns "<family>/<version>".
func (t MessageType) FamilyVersion() string {
	return t.Family + "/" + t.Version
}

// Major returns the major part of the version.
func (t MessageType) Major() string {
	if i := strings.Index(t.Version, "."); i >= 0 {
		return t.Version[:i]
	}

	return t.Version
}

// Adaptation maps the messages of one wire version of a protocol family onto the canonical version the
// protocol engine works with.
type Adaptation struct {
	Family string
	From   string
	To     string
	// Convert optionally rewrites the payload. It receives a clone and returns the canonical message name and
	// payload. When nil, only the version is rewritten.
	Convert func(name string, msg DIDCommMsgMap) (string, DIDCommMsgMap)
}

// VersionAdapter converts inbound messages to canonical typed shapes before they reach a protocol engine.
type VersionAdapter struct {
	adaptations map[string]Adaptation
	canonical   map[string]string
}

// NewVersionAdapter creates an adapter. canonical maps each family to its canonical version; minor versions of
// the same major are folded onto it.
func NewVersionAdapter(canonical map[string]string, adaptations ...Adaptation) *VersionAdapter {
	a := &VersionAdapter{
		adaptations: make(map[string]Adaptation),
		canonical:   make(map[string]string),
	}

	for family, version := range canonical {
		a.canonical[family] = version
	}

	for _, ad := range adaptations {
		a.adaptations[ad.Family+"/"+ad.From] = ad
	}

	return a
}

// Canonicalize returns msg rewritten to the canonical prefix and family version. Messages the adapter does not
// know are returned with only the prefix normalized.
func (a *VersionAdapter) Canonicalize(msg DIDCommMsgMap) (DIDCommMsgMap, error) {
	mt, err := ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	out := msg.Clone()

	if ad, ok := a.adaptations[mt.FamilyVersion()]; ok {
		name := mt.Name

		if ad.Convert != nil {
			name, out = ad.Convert(name, out)
		}

		mt.Version, mt.Name = ad.To, name
		out.SetType(mt.String())

		return out, nil
	}

	if version, ok := a.canonical[mt.Family]; ok && mt.Version != version {
		canonical := MessageType{Family: mt.Family, Version: version}
		if canonical.Major() == mt.Major() {
			mt.Version = version
		}
	}

	out.SetType(mt.String())

	return out, nil
}
