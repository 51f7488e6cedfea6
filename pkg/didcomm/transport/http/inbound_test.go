/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
)

const clientTimeout = 5 * time.Second

func TestInboundHandler(t *testing.T) {
	// test inboundHandler with empty args should fail
	inHandler, err := NewInboundHandler(nil)
	require.Error(t, err)
	require.Nil(t, inHandler)

	received := make(chan []byte, 1)

	// now create a valid inboundHandler to continue testing..
	inHandler, err = NewInboundHandler(func(_ context.Context, envelope []byte) error {
		received <- envelope

		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, inHandler)

	server := httptest.NewTLSServer(inHandler)
	defer server.Close()

	client := server.Client()
	client.Timeout = clientTimeout

	// test http.Get should should fail (not supported)
	rs, err := client.Get(server.URL + "/")
	require.NoError(t, err)
	require.NoError(t, rs.Body.Close())
	require.Equal(t, http.StatusMethodNotAllowed, rs.StatusCode)

	// test accepted HTTP method (POST) but with bad content type
	rs, err = client.Post(server.URL+"/", "bad-content-type", bytes.NewBufferString("Hello World"))
	require.NoError(t, err)
	require.NoError(t, rs.Body.Close())
	require.Equal(t, http.StatusUnsupportedMediaType, rs.StatusCode)

	// test with nil body ..
	rs, err = client.Post(server.URL+"/", transport.ContentTypeEnvelope, nil)
	require.NoError(t, err)
	require.NoError(t, rs.Body.Close())
	require.Equal(t, http.StatusBadRequest, rs.StatusCode)

	// finally test successful POST requests
	rs, err = client.Post(server.URL+"/", transport.ContentTypeEnvelope, bytes.NewBufferString("success"))
	require.NoError(t, err)
	require.NoError(t, rs.Body.Close())
	require.Equal(t, http.StatusAccepted, rs.StatusCode)

	select {
	case envelope := <-received:
		require.Equal(t, "success", string(envelope))
	case <-time.After(clientTimeout):
		require.Fail(t, "envelope not handled")
	}
}

func TestInboundHandler_HandlerError(t *testing.T) {
	done := make(chan struct{})

	inHandler, err := NewInboundHandler(func(context.Context, []byte) error {
		defer close(done)

		return errors.New("unpack failed")
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("envelope"))
	req.Header.Set("Content-Type", transport.MediaTypeV1EncryptedEnvelope)

	inHandler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-done:
	case <-time.After(clientTimeout):
		require.Fail(t, "envelope not handled")
	}
}
