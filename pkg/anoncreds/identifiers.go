/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package anoncreds

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// ErrMalformed is returned when an anoncreds artefact lacks a required field.
var ErrMalformed = errors.New("malformed anoncreds data")

// Identifier is one entry of a presentation's identifiers list.
type Identifier struct {
	SchemaID  string `json:"schema_id"`
	CredDefID string `json:"cred_def_id"`
	RevRegID  string `json:"rev_reg_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RevealedAttr is a revealed attribute of a presentation.
type RevealedAttr struct {
	Raw     string `json:"raw"`
	Encoded string `json:"encoded"`
}

// nolint:gochecknoglobals
var builder = gval.Full(jsonpath.PlaceholderExtension())

// Select evaluates a JSONPath expression against a JSON document.
func Select(doc json.RawMessage, path string) (interface{}, error) {
	var v interface{}

	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	eval, err := builder.NewEvaluable(path)
	if err != nil {
		return nil, fmt.Errorf("failed to build new json path evaluator: %w", err)
	}

	res, err := eval(context.Background(), v)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to evaluate json path [%s]: %v", ErrMalformed, path, err)
	}

	return res, nil
}

// SelectString returns the string found at path. Missing or non string values are ErrMalformed.
func SelectString(doc json.RawMessage, path string) (string, error) {
	res, err := Select(doc, path)
	if err != nil {
		return "", err
	}

	s, ok := res.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformed, path)
	}

	return s, nil
}

// OptionalString returns the string found at path, or "" when it is absent or null.
func OptionalString(doc json.RawMessage, path string) (string, error) {
	res, err := jsonpath.Get(path, decode(doc))
	if err != nil || res == nil {
		return "", nil // nolint: nilerr
	}

	s, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformed, path)
	}

	return s, nil
}

func decode(doc json.RawMessage) interface{} {
	var v interface{}

	_ = json.Unmarshal(doc, &v) // nolint: errcheck

	return v
}

// CredDefID returns the credential definition id of an offer or credential.
func CredDefID(doc json.RawMessage) (string, error) {
	return SelectString(doc, "$.cred_def_id")
}

// SchemaID returns the schema id of an offer or credential.
func SchemaID(doc json.RawMessage) (string, error) {
	return SelectString(doc, "$.schema_id")
}

// RevRegID returns the revocation registry id of a credential, "" for non revocable credentials.
func RevRegID(credential json.RawMessage) (string, error) {
	return OptionalString(credential, "$.rev_reg_id")
}

// CredRevID returns the index of a credential in its revocation registry, "" for non revocable credentials.
// Indy credentials carry it as the index of their revocation signature.
func CredRevID(credential json.RawMessage) (string, error) {
	id, err := OptionalString(credential, "$.cred_rev_id")
	if err != nil || id != "" {
		return id, err
	}

	res, err := jsonpath.Get("$.signature.r_credential.i", decode(credential))
	if err != nil || res == nil {
		return "", nil // nolint: nilerr
	}

	i, ok := res.(float64)
	if !ok {
		return "", fmt.Errorf("%w: revocation index is not a number", ErrMalformed)
	}

	return strconv.FormatInt(int64(i), 10), nil
}

// Revocable tells whether a credential definition supports revocation.
func Revocable(credDef json.RawMessage) bool {
	res, err := jsonpath.Get("$.value.revocation", decode(credDef))

	return err == nil && res != nil
}

// Identifiers returns the identifiers a presentation was built from.
func Identifiers(presentation json.RawMessage) ([]Identifier, error) {
	res, err := Select(presentation, "$.identifiers")
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ids []Identifier

	if err = json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: identifiers: %v", ErrMalformed, err)
	}

	for i := range ids {
		if ids[i].SchemaID == "" || ids[i].CredDefID == "" {
			return nil, fmt.Errorf("%w: identifier %d lacks schema or cred def id", ErrMalformed, i)
		}
	}

	return ids, nil
}

// RevealedAttrs returns the revealed attributes of a presentation keyed by referent.
func RevealedAttrs(presentation json.RawMessage) (map[string]RevealedAttr, error) {
	res, err := jsonpath.Get("$.requested_proof.revealed_attrs", decode(presentation))
	if err != nil || res == nil {
		return map[string]RevealedAttr{}, nil // nolint: nilerr
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	attrs := map[string]RevealedAttr{}

	if err = json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("%w: revealed attributes: %v", ErrMalformed, err)
	}

	return attrs, nil
}

// EncodeValue encodes a raw attribute value the way anoncreds credentials carry it: 32 bit integers as
// themselves, anything else as the decimal big-endian integer of its SHA-256 digest.
func EncodeValue(raw string) string {
	if i, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return strconv.FormatInt(i, 10)
	}

	digest := sha256.Sum256([]byte(raw))

	return new(big.Int).SetBytes(digest[:]).String()
}

// CheckRevealedAttrs verifies that every revealed raw value matches its encoded value.
func CheckRevealedAttrs(presentation json.RawMessage) error {
	attrs, err := RevealedAttrs(presentation)
	if err != nil {
		return err
	}

	for referent, attr := range attrs {
		if EncodeValue(attr.Raw) != attr.Encoded {
			return fmt.Errorf("%w: encoded value of %s does not match raw value", ErrMalformed, referent)
		}
	}

	return nil
}
