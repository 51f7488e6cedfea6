/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package localwallet

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	chacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/internal/cryptoutil"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
)

const (
	// encodingType is the `typ` string identifier in a message that identifies the format as being legacy.
	encodingType = "JWM/1.0"
	encAlgorithm = "chacha20poly1305_ietf"

	algAuthcrypt = "Authcrypt"
	algAnoncrypt = "Anoncrypt"
)

// protected is the protected header of the JSON envelope.
type protected struct {
	Enc        string      `json:"enc,omitempty"`
	Typ        string      `json:"typ,omitempty"`
	Alg        string      `json:"alg,omitempty"`
	Recipients []recipient `json:"recipients,omitempty"`
}

// recipient holds the data for a recipient in the envelope header.
type recipient struct {
	EncryptedKey string          `json:"encrypted_key,omitempty"`
	Header       recipientHeader `json:"header,omitempty"`
}

// recipientHeader holds the header data for a recipient.
type recipientHeader struct {
	KID    string `json:"kid,omitempty"`
	Sender string `json:"sender,omitempty"`
	IV     string `json:"iv,omitempty"`
}

// PackMessage packs payload in a legacy Aries envelope (chacha20poly1305 content encryption, CEK sealed per
// recipient with a NaCl box). An empty senderVerKey produces an anoncrypt envelope.
func (w *BaseWallet) PackMessage(_ context.Context, senderVerKey string, recipientVerKeys []string,
	payload []byte) ([]byte, error) {
	if err := cryptoutil.VerifyRecipients(recipientVerKeys); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	var sender *keyPair

	if senderVerKey != "" {
		kp, err := w.getKey(senderVerKey)
		if err != nil {
			return nil, fmt.Errorf("failed from getKey: %w", err)
		}

		sender = kp
	}

	cek := new([chacha.KeySize]byte)
	if _, err := io.ReadFull(rand.Reader, cek[:]); err != nil {
		return nil, fmt.Errorf("pack: generate cek: %w", err)
	}

	recipients, err := buildRecipients(cek, sender, senderVerKey, recipientVerKeys)
	if err != nil {
		return nil, err
	}

	alg := algAnoncrypt
	if sender != nil {
		alg = algAuthcrypt
	}

	header, err := json.Marshal(protected{Enc: encAlgorithm, Typ: encodingType, Alg: alg, Recipients: recipients})
	if err != nil {
		return nil, fmt.Errorf("pack: marshal protected header: %w", err)
	}

	b64Protected := base64.URLEncoding.EncodeToString(header)

	return encodeCipherText(cek, b64Protected, payload)
}

func buildRecipients(cek *[chacha.KeySize]byte, sender *keyPair, senderVerKey string,
	recipientVerKeys []string) ([]recipient, error) {
	var senderCurvePriv *[cryptoutil.Curve25519KeySize]byte

	if sender != nil {
		priv, err := cryptoutil.SecretEd25519toCurve25519(sender.Priv)
		if err != nil {
			return nil, fmt.Errorf("pack: sender key: %w", err)
		}

		senderCurvePriv = priv
	}

	recipients := make([]recipient, 0, len(recipientVerKeys))

	for _, verKey := range recipientVerKeys {
		recCurvePub, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(verKey))
		if err != nil {
			return nil, fmt.Errorf("pack: recipient key %s: %w", verKey, err)
		}

		if senderCurvePriv == nil {
			encCEK, err := box.SealAnonymous(nil, cek[:], recCurvePub, rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("pack: seal cek: %w", err)
			}

			recipients = append(recipients, recipient{
				EncryptedKey: base64.URLEncoding.EncodeToString(encCEK),
				Header:       recipientHeader{KID: verKey},
			})

			continue
		}

		nonce := new([cryptoutil.NonceSize]byte)
		if _, err = io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return nil, fmt.Errorf("pack: generate nonce: %w", err)
		}

		encCEK := box.Seal(nil, cek[:], nonce, recCurvePub, senderCurvePriv)

		encSender, err := box.SealAnonymous(nil, []byte(senderVerKey), recCurvePub, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("pack: seal sender: %w", err)
		}

		recipients = append(recipients, recipient{
			EncryptedKey: base64.URLEncoding.EncodeToString(encCEK),
			Header: recipientHeader{
				KID:    verKey,
				Sender: base64.URLEncoding.EncodeToString(encSender),
				IV:     base64.URLEncoding.EncodeToString(nonce[:]),
			},
		})
	}

	return recipients, nil
}

func encodeCipherText(cek *[chacha.KeySize]byte, b64Protected string, payload []byte) ([]byte, error) {
	chachaCipher, err := chacha.New(cek[:])
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	nonce := make([]byte, chacha.NonceSize)
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("pack: generate iv: %w", err)
	}

	sealed := chachaCipher.Seal(nil, nonce, payload, []byte(b64Protected))
	tagStart := len(sealed) - chachaCipher.Overhead()

	return json.Marshal(model.Envelope{
		Protected:  b64Protected,
		IV:         base64.URLEncoding.EncodeToString(nonce),
		CipherText: base64.URLEncoding.EncodeToString(sealed[:tagStart]),
		Tag:        base64.URLEncoding.EncodeToString(sealed[tagStart:]),
	})
}

// UnpackMessage decrypts an envelope addressed to one of the wallet keys.
func (w *BaseWallet) UnpackMessage(_ context.Context, envelope []byte) (*wallet.Unpacked, error) {
	var envelopeData model.Envelope

	if err := json.Unmarshal(envelope, &envelopeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	protectedBytes, err := base64.URLEncoding.DecodeString(envelopeData.Protected)
	if err != nil {
		return nil, fmt.Errorf("unpack: decode protected header: %w", err)
	}

	var protectedData protected

	if err = json.Unmarshal(protectedBytes, &protectedData); err != nil {
		return nil, fmt.Errorf("unpack: unmarshal protected header: %w", err)
	}

	if protectedData.Typ != encodingType {
		return nil, fmt.Errorf("message type %s not supported", protectedData.Typ)
	}

	if protectedData.Alg != algAuthcrypt && protectedData.Alg != algAnoncrypt {
		return nil, fmt.Errorf("message format %s not supported", protectedData.Alg)
	}

	var keysNotFound []string

	for _, recip := range protectedData.Recipients {
		kp, err := w.getKey(recip.Header.KID)
		if err != nil {
			if errors.Is(err, wallet.ErrKeyNotFound) {
				keysNotFound = append(keysNotFound, recip.Header.KID)

				continue
			}

			return nil, fmt.Errorf("failed from getKey: %w", err)
		}

		cek, senderVerKey, err := openCEK(recip, kp, protectedData.Alg == algAuthcrypt)
		if err != nil {
			return nil, err
		}

		message, err := decodeCipherText(cek, &envelopeData)
		if err != nil {
			return nil, err
		}

		return &wallet.Unpacked{
			Message:         message,
			SenderVerKey:    senderVerKey,
			RecipientVerKey: recip.Header.KID,
		}, nil
	}

	return nil, fmt.Errorf("no corresponding recipient key found in %v: %w", keysNotFound, wallet.ErrKeyNotFound)
}

func openCEK(recip recipient, kp *keyPair, authcrypt bool) (*[chacha.KeySize]byte, string, error) {
	recCurvePub, err := cryptoutil.PublicEd25519toCurve25519(kp.Pub)
	if err != nil {
		return nil, "", err
	}

	recCurvePriv, err := cryptoutil.SecretEd25519toCurve25519(kp.Priv)
	if err != nil {
		return nil, "", err
	}

	encCEK, err := base64.URLEncoding.DecodeString(recip.EncryptedKey)
	if err != nil {
		return nil, "", fmt.Errorf("unpack: decode encrypted key: %w", err)
	}

	var (
		cekSlice     []byte
		senderVerKey string
		ok           bool
	)

	if authcrypt {
		senderVerKey, cekSlice, err = openAuthcryptCEK(recip, encCEK, recCurvePub, recCurvePriv)
		if err != nil {
			return nil, "", err
		}
	} else {
		cekSlice, ok = box.OpenAnonymous(nil, encCEK, recCurvePub, recCurvePriv)
		if !ok {
			return nil, "", errors.New("failed to decrypt CEK")
		}
	}

	if !cryptoutil.IsChachaKeyValid(cekSlice) {
		return nil, "", errors.New("unpack: invalid CEK size")
	}

	var cek [chacha.KeySize]byte

	copy(cek[:], cekSlice)

	return &cek, senderVerKey, nil
}

func openAuthcryptCEK(recip recipient, encCEK []byte, recCurvePub,
	recCurvePriv *[cryptoutil.Curve25519KeySize]byte) (string, []byte, error) {
	encSender, err := base64.URLEncoding.DecodeString(recip.Header.Sender)
	if err != nil {
		return "", nil, fmt.Errorf("unpack: decode sender: %w", err)
	}

	senderVerKey, ok := box.OpenAnonymous(nil, encSender, recCurvePub, recCurvePriv)
	if !ok {
		return "", nil, errors.New("failed to decrypt sender key")
	}

	senderCurvePub, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(string(senderVerKey)))
	if err != nil {
		return "", nil, fmt.Errorf("unpack: sender key: %w", err)
	}

	nonceSlice, err := base64.URLEncoding.DecodeString(recip.Header.IV)
	if err != nil || len(nonceSlice) != cryptoutil.NonceSize {
		return "", nil, errors.New("unpack: invalid recipient iv")
	}

	nonce := new([cryptoutil.NonceSize]byte)
	copy(nonce[:], nonceSlice)

	cek, ok := box.Open(nil, encCEK, nonce, senderCurvePub, recCurvePriv)
	if !ok {
		return "", nil, errors.New("failed to decrypt CEK")
	}

	return string(senderVerKey), cek, nil
}

// decodeCipherText decodes (from base64) and decrypts the ciphertext using chacha20poly1305.
func decodeCipherText(cek *[chacha.KeySize]byte, envelope *model.Envelope) ([]byte, error) {
	cipherText, err := base64.URLEncoding.DecodeString(envelope.CipherText)
	if err != nil {
		return nil, fmt.Errorf("unpack: decode ciphertext: %w", err)
	}

	nonce, err := base64.URLEncoding.DecodeString(envelope.IV)
	if err != nil || len(nonce) != chacha.NonceSize {
		return nil, errors.New("unpack: invalid iv")
	}

	tag, err := base64.URLEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, fmt.Errorf("unpack: decode tag: %w", err)
	}

	chachaCipher, err := chacha.New(cek[:])
	if err != nil {
		return nil, err
	}

	payload := append(cipherText, tag...) // nolint: gocritic

	message, err := chachaCipher.Open(nil, nonce, payload, []byte(envelope.Protected))
	if err != nil {
		return nil, fmt.Errorf("unpack: decrypt payload: %w", err)
	}

	return message, nil
}
