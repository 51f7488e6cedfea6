/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ws implements the DIDComm WebSocket transport. Every envelope written by a client is answered with
// one text frame: empty on success, an error notice otherwise.
package ws

import (
	"errors"
	"net/http"

	"github.com/hyperledger/aries-framework-go/component/log"
	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
)

var logger = log.New("aries-framework/transport/ws")

const processFailureErrMsg = "failed to process the message"

// InboundOpt configures the inbound handler.
type InboundOpt func(*websocket.AcceptOptions)

// WithOriginPatterns allows cross origin upgrades from the listed host patterns.
func WithOriginPatterns(patterns ...string) InboundOpt {
	return func(opts *websocket.AcceptOptions) {
		opts.OriginPatterns = append(opts.OriginPatterns, patterns...)
	}
}

// NewInboundHandler returns a handler upgrading requests to WebSocket connections and passing every envelope read
// to msgHandler.
func NewInboundHandler(msgHandler transport.InboundMessageHandler, opts ...InboundOpt) (http.Handler, error) {
	if msgHandler == nil {
		logger.Errorf("Error creating a new inbound handler: message handler function is nil")

		return nil, errors.New("creation of inbound handler failed")
	}

	acceptOpts := &websocket.AcceptOptions{}

	for _, opt := range opts {
		opt(acceptOpts)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processRequest(w, r, msgHandler, acceptOpts)
	}), nil
}

func processRequest(w http.ResponseWriter, r *http.Request, msgHandler transport.InboundMessageHandler,
	opts *websocket.AcceptOptions) {
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		logger.Errorf("failed to upgrade the connection : %v", err)

		return
	}

	defer closeConn(c)

	ctx := r.Context()

	for {
		_, message, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Errorf("Error reading request message: %v", err)
			}

			break
		}

		resp := ""

		if err = msgHandler(ctx, message); err != nil {
			logger.Errorf("incoming msg processing failed: %v", err)

			resp = processFailureErrMsg
		}

		if err = c.Write(ctx, websocket.MessageText, []byte(resp)); err != nil {
			logger.Errorf("error writing the message: %v", err)

			break
		}
	}
}

func closeConn(conn *websocket.Conn) {
	if err := conn.Close(websocket.StatusNormalClosure,
		"closing the connection"); err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		logger.Debugf("connection close: %v", err)
	}
}
