/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"
)

// Grant policy parameters.
const (
	ParamAuthKey      = "auth_key"
	ParamAccountCount = "account_count"
	ParamHasDIDDoc    = "has_did_doc"
	ParamRenewal      = "renewal"
)

// GrantPolicy decides mediate-request outcomes with a boolean expression over the request parameters, for
// example `account_count < 1000 && has_did_doc`.
type GrantPolicy struct {
	expr *govaluate.EvaluableExpression
}

// NewGrantPolicy parses expression. An empty expression grants every request.
func NewGrantPolicy(expression string) (*GrantPolicy, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &GrantPolicy{}, nil
	}

	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, errors.Wrap(err, "parse grant policy")
	}

	return &GrantPolicy{expr: expr}, nil
}

// Allow evaluates the policy against params.
func (p *GrantPolicy) Allow(params map[string]interface{}) (bool, error) {
	if p == nil || p.expr == nil {
		return true, nil
	}

	result, err := p.expr.Evaluate(params)
	if err != nil {
		return false, errors.Wrap(err, "evaluate grant policy")
	}

	allow, ok := result.(bool)
	if !ok {
		return false, errors.Errorf("grant policy evaluated to %T, not bool", result)
	}

	return allow, nil
}
