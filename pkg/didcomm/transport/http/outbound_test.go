/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
)

type mockHTTPHandler struct {
	calls  int32
	status func(call int32, body []byte) int
}

func (m *mockHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := atomic.AddInt32(&m.calls, 1)

	body, err := io.ReadAll(r.Body)
	if err != nil || r.Header.Get("Content-Type") != transport.ContentTypeEnvelope {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	status := m.status(call, body)
	w.WriteHeader(status)

	if status == http.StatusOK {
		_, _ = w.Write([]byte("ack:" + string(body))) //nolint:errcheck
	}
}

func TestWithOutboundOpts(t *testing.T) {
	opt := WithOutboundHTTPClient(nil)
	require.NotNil(t, opt)

	clOpts := &outboundCommHTTPOpts{}
	opt(clOpts)

	opt = WithOutboundTimeout(clientTimeout)
	require.NotNil(t, opt)

	clOpts = &outboundCommHTTPOpts{}
	// opt.client is nil, so setting timeout should panic
	require.Panics(t, func() { opt(clOpts) })

	opt = WithOutboundTLSConfig(nil)
	require.NotNil(t, opt)

	clOpts = &outboundCommHTTPOpts{}
	opt(clOpts)
	require.NotNil(t, clOpts.client)

	WithOutboundRetry(5, time.Second)(clOpts)
	require.EqualValues(t, 5, clOpts.retries)
	require.Equal(t, time.Second, clOpts.interval)
}

func TestOutboundHTTPTransport(t *testing.T) {
	handler := &mockHTTPHandler{status: func(_ int32, body []byte) int {
		if string(body) == "bad" {
			return http.StatusBadRequest
		}

		return http.StatusOK
	}}

	// prepare http server
	server := httptest.NewTLSServer(handler)
	defer server.Close()

	// create a new invalid Outbound transport instance
	_, err := NewOutbound()
	require.EqualError(t, err, "creation of outbound transport requires an HTTP client")

	// now create a new valid Outbound transport instance and test its Send() call
	ot, err := NewOutbound(WithOutboundHTTPClient(server.Client()), WithOutboundTimeout(clientTimeout),
		WithOutboundRetry(1, time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, ot)

	ctx := context.Background()

	// first with an empty url
	r, e := ot.Send(ctx, []byte("Hello World"), "")
	require.Error(t, e)
	require.Empty(t, r)

	// now try a bad url
	r, e = ot.Send(ctx, []byte("Hello World"), "https://badurl.invalid")
	require.Error(t, e)
	require.Empty(t, r)

	// and try with a 'bad' payload with a valid url..
	calls := atomic.LoadInt32(&handler.calls)
	r, e = ot.Send(ctx, []byte("bad"), server.URL)
	require.Error(t, e)
	require.Empty(t, r)
	require.Contains(t, e.Error(), "received unsuccessful POST HTTP status from agent")
	require.EqualValues(t, calls+1, atomic.LoadInt32(&handler.calls), "4xx is not retried")

	// finally using a valid url
	r, e = ot.Send(ctx, []byte("Hello World"), server.URL)
	require.NoError(t, e)
	require.Equal(t, "ack:Hello World", string(r))

	require.True(t, ot.Accept("http://example.com"))
	require.True(t, ot.Accept("https://example.com"))
	require.False(t, ot.Accept("ws://example.com"))
	require.False(t, ot.Accept("123:22"))
}

func TestOutboundHTTPTransport_Retry(t *testing.T) {
	handler := &mockHTTPHandler{status: func(call int32, _ []byte) int {
		if call < 3 {
			return http.StatusServiceUnavailable
		}

		return http.StatusAccepted
	}}

	server := httptest.NewServer(handler)
	defer server.Close()

	t.Run("recovers", func(t *testing.T) {
		ot, err := NewOutbound(WithOutboundHTTPClient(server.Client()), WithOutboundRetry(3, time.Millisecond))
		require.NoError(t, err)

		_, err = ot.Send(context.Background(), []byte("envelope"), server.URL)
		require.NoError(t, err)
		require.EqualValues(t, 3, atomic.LoadInt32(&handler.calls))
	})

	t.Run("gives up", func(t *testing.T) {
		atomic.StoreInt32(&handler.calls, 0)

		ot, err := NewOutbound(WithOutboundHTTPClient(server.Client()), WithOutboundRetry(1, time.Millisecond))
		require.NoError(t, err)

		_, err = ot.Send(context.Background(), []byte("envelope"), server.URL)
		require.ErrorContains(t, err, "503")
		require.EqualValues(t, 2, atomic.LoadInt32(&handler.calls))
	})

	t.Run("context canceled", func(t *testing.T) {
		ot, err := NewOutbound(WithOutboundHTTPClient(server.Client()))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = ot.Send(ctx, []byte("envelope"), server.URL)
		require.Error(t, err)
	})
}
