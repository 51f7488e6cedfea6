/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantPolicy(t *testing.T) {
	params := map[string]interface{}{
		ParamAuthKey:      "key",
		ParamAccountCount: 3,
		ParamHasDIDDoc:    true,
		ParamRenewal:      false,
	}

	tests := []struct {
		name  string
		expr  string
		allow bool
	}{
		{name: "empty", expr: "  ", allow: true},
		{name: "account limit reached", expr: "account_count < 3", allow: false},
		{name: "account limit not reached", expr: "account_count < 4 && has_did_doc", allow: true},
		{name: "key allow list", expr: "auth_key == 'other'", allow: false},
		{name: "renewals only", expr: "renewal", allow: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewGrantPolicy(tc.expr)
			require.NoError(t, err)

			allow, err := p.Allow(params)
			require.NoError(t, err)
			require.Equal(t, tc.allow, allow)
		})
	}

	t.Run("nil policy grants", func(t *testing.T) {
		var p *GrantPolicy

		allow, err := p.Allow(nil)
		require.NoError(t, err)
		require.True(t, allow)
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := NewGrantPolicy("account_count <")
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse grant policy")
	})

	t.Run("non boolean result", func(t *testing.T) {
		p, err := NewGrantPolicy("account_count + 1")
		require.NoError(t, err)

		_, err = p.Allow(params)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not bool")
	})

	t.Run("unknown parameter", func(t *testing.T) {
		p, err := NewGrantPolicy("tenant == 'x'")
		require.NoError(t, err)

		_, err = p.Allow(params)
		require.Error(t, err)
	})
}
