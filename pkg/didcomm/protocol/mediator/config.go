/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

// Config is the routing granted by a mediator: the endpoint senders deliver forwards to and the routing keys
// wrapping them.
type Config struct {
	endpoint    string
	routingKeys []string
}

// NewConfig creates the routing config of endpoint and keys.
func NewConfig(endpoint string, keys []string) *Config {
	return &Config{endpoint: endpoint, routingKeys: append([]string(nil), keys...)}
}

// Endpoint returns the mediator endpoint.
func (c *Config) Endpoint() string {
	return c.endpoint
}

// Keys returns the routing keys.
func (c *Config) Keys() []string {
	return c.routingKeys
}
