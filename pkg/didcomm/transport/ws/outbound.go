/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
)

const webSocketScheme = "ws"

// OutboundClient websocket outbound.
type OutboundClient struct{}

var _ transport.Outbound = (*OutboundClient)(nil)

// NewOutbound creates a client for Outbound WS transport.
func NewOutbound() *OutboundClient {
	return &OutboundClient{}
}

// Send sends a2a data via WS. It opens a connection per envelope and returns the answering frame.
func (cs *OutboundClient) Send(ctx context.Context, data []byte, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("url is mandatory")
	}

	client, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket client : %w", err)
	}

	defer closeConn(client)

	err = client.Write(ctx, websocket.MessageText, data)
	if err != nil {
		return nil, fmt.Errorf("websocket write message : %w", err)
	}

	messageType, message, err := client.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read message : %w", err)
	}

	if messageType != websocket.MessageText {
		return nil, errors.New("message type is not text message")
	}

	if string(message) == processFailureErrMsg {
		return nil, fmt.Errorf("remote agent at [%s]: %s", url, processFailureErrMsg)
	}

	return message, nil
}

// Accept checks for the url scheme.
func (cs *OutboundClient) Accept(url string) bool {
	return strings.HasPrefix(url, webSocketScheme+"://") || strings.HasPrefix(url, webSocketScheme+"s://")
}
