/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
)

// StatusRequest sent by the recipient to the message holder to request a status message.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#status-request
type StatusRequest struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	RecipientKey string `json:"recipient_key,omitempty"`
	decorator.Decorators
}

// Status details about pending messages.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#status
type Status struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	RecipientKey string `json:"recipient_key,omitempty"`
	MessageCount int    `json:"message_count"`
	LiveDelivery bool   `json:"live_delivery"`
	decorator.Decorators
}

// DeliveryRequest asks for up to Limit waiting messages.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#delivery-request
type DeliveryRequest struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	Limit        int    `json:"limit"`
	RecipientKey string `json:"recipient_key,omitempty"`
	decorator.Decorators
}

// Delivery carries waiting messages, one attachment per message. The attachment id is the message id.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#message-delivery
type Delivery struct {
	Type         string                 `json:"@type,omitempty"`
	ID           string                 `json:"@id,omitempty"`
	RecipientKey string                 `json:"recipient_key,omitempty"`
	Attachments  []decorator.Attachment `json:"~attach"`
	decorator.Decorators
}

// MessagesReceived acknowledges delivered messages. The message holder deletes them.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#messages-received
type MessagesReceived struct {
	Type          string   `json:"@type,omitempty"`
	ID            string   `json:"@id,omitempty"`
	MessageIDList []string `json:"message_id_list"`
	decorator.Decorators
}
