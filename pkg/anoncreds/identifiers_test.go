/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package anoncreds

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const presentation = `{
  "requested_proof": {
    "revealed_attrs": {
      "attr1_referent": {"sub_proof_index": 0, "raw": "Alice", "encoded": "%s"},
      "attr2_referent": {"sub_proof_index": 0, "raw": "25", "encoded": "25"}
    }
  },
  "identifiers": [
    {"schema_id": "S1", "cred_def_id": "CD1", "rev_reg_id": "RR1", "timestamp": 1700000000},
    {"schema_id": "S2", "cred_def_id": "CD2", "rev_reg_id": null, "timestamp": null}
  ]
}`

func TestIdentifiers(t *testing.T) {
	ids, err := Identifiers(json.RawMessage(fmtPresentation(EncodeValue("Alice"))))
	require.NoError(t, err)
	require.Equal(t, []Identifier{
		{SchemaID: "S1", CredDefID: "CD1", RevRegID: "RR1", Timestamp: 1700000000},
		{SchemaID: "S2", CredDefID: "CD2"},
	}, ids)

	_, err = Identifiers(json.RawMessage(`{"identifiers":[{"schema_id":"S1"}]}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Identifiers(json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Identifiers(json.RawMessage(`{`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCheckRevealedAttrs(t *testing.T) {
	require.NoError(t, CheckRevealedAttrs(json.RawMessage(fmtPresentation(EncodeValue("Alice")))))
	require.ErrorIs(t, CheckRevealedAttrs(json.RawMessage(fmtPresentation("1"))), ErrMalformed)
	require.NoError(t, CheckRevealedAttrs(json.RawMessage(`{}`)))
}

func TestEncodeValue(t *testing.T) {
	require.Equal(t, "25", EncodeValue("25"))
	require.Equal(t, "-3", EncodeValue("-3"))
	require.Equal(t,
		"27034640024117331033063128044004318218486816931520886405535659934417438781507", EncodeValue("Alice"))
	require.NotEqual(t, "4294967296", EncodeValue("4294967296"))
}

func TestIdentifierHelpers(t *testing.T) {
	offer := json.RawMessage(`{"schema_id":"S1","cred_def_id":"CD1","nonce":"1"}`)

	credDefID, err := CredDefID(offer)
	require.NoError(t, err)
	require.Equal(t, "CD1", credDefID)

	schemaID, err := SchemaID(offer)
	require.NoError(t, err)
	require.Equal(t, "S1", schemaID)

	_, err = CredDefID(json.RawMessage(`{"cred_def_id":1}`))
	require.ErrorIs(t, err, ErrMalformed)

	revRegID, err := RevRegID(json.RawMessage(`{"rev_reg_id":"RR1"}`))
	require.NoError(t, err)
	require.Equal(t, "RR1", revRegID)

	revRegID, err = RevRegID(json.RawMessage(`{"rev_reg_id":null}`))
	require.NoError(t, err)
	require.Empty(t, revRegID)

	revRegID, err = RevRegID(json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Empty(t, revRegID)

	credRevID, err := CredRevID(json.RawMessage(`{"rev_reg_id":"RR1","cred_rev_id":"7"}`))
	require.NoError(t, err)
	require.Equal(t, "7", credRevID)

	credRevID, err = CredRevID(json.RawMessage(`{"rev_reg_id":"RR1","signature":{"r_credential":{"i":12}}}`))
	require.NoError(t, err)
	require.Equal(t, "12", credRevID)

	credRevID, err = CredRevID(json.RawMessage(`{"signature":{"r_credential":null}}`))
	require.NoError(t, err)
	require.Empty(t, credRevID)

	_, err = CredRevID(json.RawMessage(`{"signature":{"r_credential":{"i":"x"}}}`))
	require.ErrorIs(t, err, ErrMalformed)

	require.True(t, Revocable(json.RawMessage(`{"value":{"primary":{},"revocation":{"g":"1"}}}`)))
	require.False(t, Revocable(json.RawMessage(`{"value":{"primary":{}}}`)))
	require.False(t, Revocable(json.RawMessage(`{`)))
}

func fmtPresentation(encoded string) string {
	return fmt.Sprintf(presentation, encoded)
}
