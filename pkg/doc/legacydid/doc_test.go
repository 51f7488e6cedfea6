/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacydid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"
)

func newVerKey(t *testing.T) (string, ed25519.PublicKey) {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return base58.Encode(pub), pub
}

func TestNew(t *testing.T) {
	vk, pub := newVerKey(t)
	did := DIDFromVerKey(pub)

	doc := New(did, vk, "https://agent.example.com", []string{"routing"})
	require.Equal(t, "did:sov:"+did, doc.ID)
	require.NoError(t, doc.Validate())

	keys, err := doc.RecipientKeys()
	require.NoError(t, err)
	require.Equal(t, []string{vk}, keys)

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var parsed Doc
	require.NoError(t, json.Unmarshal(b, &parsed))
	require.Equal(t, doc, &parsed)
}

func TestDoc_Validate(t *testing.T) {
	vk, pub := newVerKey(t)
	did := DIDFromVerKey(pub)

	tests := []struct {
		name   string
		mutate func(d *Doc)
		errMsg string
	}{
		{name: "missing id", mutate: func(d *Doc) { d.ID = "" }, errMsg: "missing id"},
		{name: "no service", mutate: func(d *Doc) { d.Service = nil }, errMsg: "no DIDComm service"},
		{name: "no endpoint", mutate: func(d *Doc) { d.Service[0].ServiceEndpoint = "" }, errMsg: "has no endpoint"},
		{name: "no keys", mutate: func(d *Doc) { d.Service[0].RecipientKeys = nil }, errMsg: "no recipient keys"},
		{name: "bad key", mutate: func(d *Doc) { d.Service[0].RecipientKeys = []string{"abc"} }, errMsg: "recipient key"},
		{
			name:   "dangling reference",
			mutate: func(d *Doc) { d.Service[0].RecipientKeys = []string{d.ID + "#9"} },
			errMsg: "not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := New(did, vk, "https://agent.example.com", nil)
			tc.mutate(doc)

			err := doc.Validate()
			require.ErrorIs(t, err, ErrInvalidDoc)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}

	t.Run("nil doc", func(t *testing.T) {
		var doc *Doc
		require.ErrorIs(t, doc.Validate(), ErrInvalidDoc)
	})

	t.Run("key reference", func(t *testing.T) {
		doc := New(did, vk, "https://agent.example.com", nil)
		doc.Service[0].RecipientKeys = []string{doc.PublicKey[0].ID}
		require.NoError(t, doc.Validate())

		keys, err := doc.RecipientKeys()
		require.NoError(t, err)
		require.Equal(t, []string{vk}, keys)
	})
}

func TestDoc_DIDCommService(t *testing.T) {
	doc := &Doc{ID: "did:sov:abc", Service: []Service{
		{ID: "a", Type: IndyAgentServiceType, Priority: 0},
		{ID: "b", Type: DIDCommServiceType, Priority: 2},
		{ID: "c", Type: DIDCommServiceType, Priority: 1},
		{ID: "d", Type: "LinkedDomains"},
	}}

	svc, ok := doc.DIDCommService()
	require.True(t, ok)
	require.Equal(t, "c", svc.ID)

	_, ok = (&Doc{}).DIDCommService()
	require.False(t, ok)
}

func TestDIDKey(t *testing.T) {
	vk, _ := newVerKey(t)

	didKey, err := DIDKey(vk)
	require.NoError(t, err)
	require.Contains(t, didKey, "did:key:z")

	back, err := ToVerKey(didKey)
	require.NoError(t, err)
	require.Equal(t, vk, back)

	back, err = ToVerKey(didKey + "#" + didKey[len("did:key:"):])
	require.NoError(t, err)
	require.Equal(t, vk, back)

	_, err = DIDKey("abc")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ToVerKey("did:key:z6")
	require.Error(t, err)

	_, err = ToVerKey("did:key:!!!")
	require.Error(t, err)
}

func TestQualify(t *testing.T) {
	require.Equal(t, "did:sov:abc", Qualify("abc"))
	require.Equal(t, "did:peer:abc", Qualify("did:peer:abc"))
}
