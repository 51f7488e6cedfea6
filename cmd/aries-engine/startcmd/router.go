/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
	arieshttp "github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport/ws"
	"github.com/hyperledger/aries-protocol-engine/pkg/framework/agent"
	"github.com/hyperledger/aries-protocol-engine/pkg/store/protocolstate"
)

const (
	inboundPath   = "/"
	websocketPath = "/ws"
	threadsPath   = "/threads/{namespace}"
)

// newRouter serves the inbound transports of a and the read-only admin routes.
func newRouter(a *agent.Agent, origins []string) (http.Handler, error) {
	var receive transport.InboundMessageHandler = a.Receive

	httpHandler, err := arieshttp.NewInboundHandler(receive)
	if err != nil {
		return nil, fmt.Errorf("http inbound transport initialization failed : %w", err)
	}

	var wsOpts []ws.InboundOpt
	if len(origins) > 0 {
		wsOpts = append(wsOpts, ws.WithOriginPatterns(origins...))
	}

	wsHandler, err := ws.NewInboundHandler(receive, wsOpts...)
	if err != nil {
		return nil, fmt.Errorf("ws inbound transport initialization failed : %w", err)
	}

	router := mux.NewRouter()

	router.Handle(websocketPath, wsHandler)
	router.HandleFunc(threadsPath, threadsHandler(a.Journal())).Methods(http.MethodGet)
	router.Handle(inboundPath, httpHandler).Methods(http.MethodPost)

	corsOpts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
	}

	if len(origins) > 0 {
		corsOpts.AllowedOrigins = origins
	}

	return cors.New(corsOpts).Handler(router), nil
}

func threadsHandler(journal *protocolstate.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := mux.Vars(r)["namespace"]

		records, err := journal.List(namespace)
		if err != nil {
			logger.Errorf("list threads of %s: %s", namespace, err)
			http.Error(w, "failed to list threads", http.StatusInternalServerError)

			return
		}

		if records == nil {
			records = []protocolstate.Record{}
		}

		w.Header().Set("Content-Type", "application/json")

		if err = json.NewEncoder(w).Encode(records); err != nil {
			logger.Errorf("write threads of %s: %s", namespace, err)
		}
	}
}
