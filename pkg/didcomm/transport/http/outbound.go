/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
)

const (
	defaultRetries  = 2
	defaultInterval = 200 * time.Millisecond
)

// outboundCommHTTPOpts holds options for the HTTP transport implementation of CommTransport
// it has an http.Client instance.
type outboundCommHTTPOpts struct {
	client   *http.Client
	retries  uint64
	interval time.Duration
}

// OutboundHTTPOpt is an outbound HTTP transport option.
type OutboundHTTPOpt func(opts *outboundCommHTTPOpts)

// WithOutboundHTTPClient option is for creating an Outbound HTTP transport using an http.Client instance.
func WithOutboundHTTPClient(client *http.Client) OutboundHTTPOpt {
	return func(opts *outboundCommHTTPOpts) {
		opts.client = client
	}
}

// WithOutboundTimeout option is for creating an Outbound HTTP transport using a client timeout value.
func WithOutboundTimeout(timeout time.Duration) OutboundHTTPOpt {
	return func(opts *outboundCommHTTPOpts) {
		opts.client.Timeout = timeout
	}
}

// WithOutboundTLSConfig option is for creating an Outbound HTTP transport using a tls.Config instance.
func WithOutboundTLSConfig(tlsConfig *tls.Config) OutboundHTTPOpt {
	return func(opts *outboundCommHTTPOpts) {
		opts.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}
}

// WithOutboundRetry sets how often a failed POST is retried and the initial wait between attempts. Requests the
// remote agent rejects with a 4xx status are not retried.
func WithOutboundRetry(retries uint64, interval time.Duration) OutboundHTTPOpt {
	return func(opts *outboundCommHTTPOpts) {
		opts.retries = retries
		opts.interval = interval
	}
}

// OutboundHTTPClient represents the Outbound HTTP transport instance.
type OutboundHTTPClient struct {
	client   *http.Client
	retries  uint64
	interval time.Duration
}

var _ transport.Outbound = (*OutboundHTTPClient)(nil)

// NewOutbound creates a new instance of Outbound HTTP transport to Post requests to other Agents.
// An http.Client or tls.Config options is mandatory to create a transport instance.
func NewOutbound(opts ...OutboundHTTPOpt) (*OutboundHTTPClient, error) {
	clOpts := &outboundCommHTTPOpts{retries: defaultRetries, interval: defaultInterval}
	// Apply options
	for _, opt := range opts {
		opt(clOpts)
	}

	if clOpts.client == nil {
		return nil, errors.New("creation of outbound transport requires an HTTP client")
	}

	return &OutboundHTTPClient{
		client:   clOpts.client,
		retries:  clOpts.retries,
		interval: clOpts.interval,
	}, nil
}

// Send sends a2a exchange data via HTTP (client side).
func (cs *OutboundHTTPClient) Send(ctx context.Context, data []byte, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("url is mandatory")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cs.interval

	var respData []byte

	err := backoff.RetryNotify(func() error {
		var err error

		respData, err = cs.post(ctx, data, url)

		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, cs.retries), ctx), func(err error, wait time.Duration) {
		logger.Debugf("posting DIDComm envelope to [%s] failed, retrying in %s: %s", url, wait, err)
	})
	if err != nil {
		logger.Errorf("posting DIDComm envelope to agent at [%s]: %v", url, err)

		return nil, err
	}

	return respData, nil
}

func (cs *OutboundHTTPClient) post(ctx context.Context, data []byte, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("new request: %w", err))
	}

	req.Header.Set("Content-Type", transport.ContentTypeEnvelope)

	resp, err := cs.client.Do(req)
	if err != nil {
		return nil, err
	}

	// handle response
	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Errorf("HTTP Transport - Error closing response body: %v", e)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("received unsuccessful POST HTTP status from agent at [%s]: %s", url, resp.Status)
	default:
		return nil, backoff.Permanent(fmt.Errorf(
			"received unsuccessful POST HTTP status from agent at [%s]: %s", url, resp.Status))
	}
}

// Accept url.
func (cs *OutboundHTTPClient) Accept(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
