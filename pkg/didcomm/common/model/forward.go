/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import "encoding/json"

// ForwardMsgType is the DIDComm V1 routing forward type.
const ForwardMsgType = "https://didcomm.org/routing/1.0/forward"

// Forward wraps a packed message for the next hop. To is the recipient key the hop routes on; Msg is opaque to
// every hop but the recipient.
type Forward struct {
	Type string          `json:"@type,omitempty"`
	ID   string          `json:"@id,omitempty"`
	To   string          `json:"to,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}
