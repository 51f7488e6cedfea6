/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import "strings"

const (
	// ContentTypeEnvelope is the content type inbound HTTP endpoints expect.
	ContentTypeEnvelope = "application/didcomm-envelope-enc"
	// MediaTypeV1EncryptedEnvelope is the media type for DIDComm V1 encrypted envelopes as per Aries RFC 0044.
	MediaTypeV1EncryptedEnvelope = "application/didcomm-enc-env"
	// MediaTypeV1PlaintextPayload is the media type for DIDComm V1 JWE payloads as per Aries RFC 0044.
	MediaTypeV1PlaintextPayload = "application/json;flavor=didcomm-msg"
)

// AcceptsContentType tells whether an inbound request with content type ct carries a DIDComm V1 envelope.
// Parameters such as charset are ignored.
func AcceptsContentType(ct string) bool {
	if i := strings.Index(ct, ";"); i >= 0 && !strings.Contains(ct, "flavor") {
		ct = ct[:i]
	}

	switch strings.TrimSpace(strings.ToLower(ct)) {
	case ContentTypeEnvelope, MediaTypeV1EncryptedEnvelope:
		return true
	}

	return false
}
