/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package revocationnotification

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
)

func newTestProtocol() *protocol {
	return &protocol{config: Config{Policy: problemreport.Default(ProblemReportMsgType)}}
}

func TestProtocol_TransitionTotality(t *testing.T) {
	p := newTestProtocol()

	states := []State{
		&SenderInitial{}, &SenderSent{Revoke: &Revoke{ID: "thread"}}, &ReceiverInitial{},
		&Finished{Status: StatusSuccess},
	}

	inputs := []engine.Input{
		&Notify{RevRegID: "RR1", CredRevID: "1"},
		&Revoke{ID: "thread", RevocationFormat: FormatIndyAnoncreds, CredentialID: "RR1::1"},
		&Ack{Ack: model.NewAck(AckMsgType, "", model.AckStatusOK)},
		&ProblemReport{ProblemReport: model.NewProblemReport(ProblemReportMsgType, "", "other", "")},
	}

	accepted := map[string]bool{
		"*revocationnotification.SenderInitial/notify":      true,
		"*revocationnotification.SenderSent/ack":            true,
		"*revocationnotification.SenderSent/problem-report": true,
		"*revocationnotification.ReceiverInitial/revoke":    true,
	}

	for _, state := range states {
		for _, in := range inputs {
			key := fmt.Sprintf("%T/%s", state, in.InputName())

			t.Run(key, func(t *testing.T) {
				m := engine.New[State](p, "", engine.RoleSender, state)

				next, _, err := m.Transition(context.Background(), in)
				if accepted[key] {
					require.NoError(t, err)
					require.NotNil(t, next.State())

					return
				}

				require.ErrorIs(t, err, engine.ErrUnexpected)
				require.Equal(t, m, next)
			})
		}
	}
}

func TestProtocol_Notify(t *testing.T) {
	p := newTestProtocol()

	next, out, err := p.Transition(context.Background(), &SenderInitial{}, &Notify{
		ThreadID: "thread", RevRegID: "RR1", CredRevID: "7", Comment: "revoked", AckRequested: true,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, RevokeMsgType, out[0].Type())
	require.Equal(t, "thread", out[0].ID())

	revoke := &Revoke{}
	require.NoError(t, out[0].Decode(revoke))
	require.Equal(t, FormatIndyAnoncreds, revoke.RevocationFormat)
	require.Equal(t, "RR1::7", revoke.CredentialID)
	require.True(t, revoke.AckRequested())
	require.IsType(t, &SenderSent{}, next)

	next, out, err = p.Transition(context.Background(), &SenderInitial{}, &Notify{RevRegID: "RR1", CredRevID: "7"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, &Finished{Status: StatusSuccess}, next)
	require.NotEmpty(t, out[0].ID())

	_, _, err = p.Transition(context.Background(), &SenderInitial{}, &Notify{RevRegID: "RR1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, engine.ErrUnexpected)
}

func TestProtocol_Receive(t *testing.T) {
	p := newTestProtocol()

	tests := []struct {
		name   string
		revoke *Revoke
		status Status
		acked  bool
	}{
		{
			name:   "acked",
			revoke: &Revoke{ID: "thread", RevocationFormat: FormatIndyAnoncreds, CredentialID: "RR1::7"},
			status: StatusSuccess,
			acked:  true,
		},
		{
			name:   "no ack requested",
			revoke: &Revoke{ID: "thread", RevocationFormat: FormatIndyAnoncreds, CredentialID: "RR1::7"},
			status: StatusSuccess,
		},
		{
			name:   "unsupported format",
			revoke: &Revoke{ID: "thread", RevocationFormat: "anoncreds", CredentialID: "RR1::7"},
			status: StatusFailed,
		},
		{
			name:   "malformed credential id",
			revoke: &Revoke{ID: "thread", RevocationFormat: FormatIndyAnoncreds, CredentialID: "RR1"},
			status: StatusFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.acked {
				tc.revoke.PleaseAck = &decorator.PleaseAck{On: []string{decorator.AckOnReceipt}}
			}

			next, out, err := p.Transition(context.Background(), &ReceiverInitial{}, tc.revoke)
			require.NoError(t, err)

			finished := next.(*Finished)
			require.Equal(t, tc.status, finished.Status)

			switch {
			case tc.status == StatusFailed:
				require.Len(t, out, 1)
				require.Equal(t, ProblemReportMsgType, out[0].Type())
				require.Equal(t, problemreport.CodeInvalidMessage, finished.Report.Code())
				require.Nil(t, finished.Notification)
			case tc.acked:
				require.Len(t, out, 1)
				require.Equal(t, AckMsgType, out[0].Type())

				thid, err := out[0].ThreadID()
				require.NoError(t, err)
				require.Equal(t, "thread", thid)
			default:
				require.Empty(t, out)
			}

			if tc.status == StatusSuccess {
				require.Equal(t, &Notification{RevRegID: "RR1", CredRevID: "7"}, finished.Notification)
				require.Equal(t, "RR1", finished.Properties()[propertyRevRegID])
			}
		})
	}
}

type holdings map[string]bool

func (h holdings) Holds(revRegID, credRevID string) (bool, error) {
	if revRegID == "broken" {
		return false, errors.New("store closed")
	}

	return h[CredentialID(revRegID, credRevID)], nil
}

func TestProtocol_ReceiveHeldCredentials(t *testing.T) {
	p := newTestProtocol()
	p.config.Holdings = holdings{"RR1::7": true}

	revoke := func(credentialID string) *Revoke {
		return &Revoke{
			ID: "thread", RevocationFormat: FormatIndyAnoncreds, CredentialID: credentialID,
			Decorators: decorator.Decorators{PleaseAck: &decorator.PleaseAck{On: []string{decorator.AckOnReceipt}}},
		}
	}

	next, out, err := p.Transition(context.Background(), &ReceiverInitial{}, revoke("RR1::7"))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, next.(*Finished).Status)
	require.Equal(t, AckMsgType, out[0].Type())

	next, out, err = p.Transition(context.Background(), &ReceiverInitial{}, revoke("RR1::8"))
	require.NoError(t, err)

	finished := next.(*Finished)
	require.Equal(t, StatusFailed, finished.Status)
	require.Equal(t, problemreport.CodeInvalidMessage, finished.Report.Code())
	require.Nil(t, finished.Notification)
	require.Len(t, out, 1)
	require.Equal(t, ProblemReportMsgType, out[0].Type())

	_, _, err = p.Transition(context.Background(), &ReceiverInitial{}, revoke("broken::1"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "store closed")
}

func TestProtocol_Timeout(t *testing.T) {
	p := newTestProtocol()

	next := p.Timeout(&SenderSent{}, "thread")
	require.Equal(t, problemreport.CodeTimeout, next.(*Finished).Report.Code())
	require.Equal(t, "abandoned", next.Name())

	done := &Finished{Status: StatusSuccess}
	require.Equal(t, done, p.Timeout(done, "thread"))
}

func TestParseCredentialID(t *testing.T) {
	revRegID, credRevID, err := ParseCredentialID(CredentialID("did:4:did:3:CL:1:tag:CL_ACCUM:r1", "12"))
	require.NoError(t, err)
	require.Equal(t, "did:4:did:3:CL:1:tag:CL_ACCUM:r1", revRegID)
	require.Equal(t, "12", credRevID)

	for _, id := range []string{"", "RR1", "::1", "RR1::"} {
		_, _, err = ParseCredentialID(id)
		require.Error(t, err, id)
	}
}

func TestAdaptation10(t *testing.T) {
	adapter := service.NewVersionAdapter(map[string]string{Name: "2.0"}, Adaptation10())

	msg, err := adapter.Canonicalize(service.DIDCommMsgMap{
		"@type":     "https://didcomm.org/revocation_notification/1.0/revoke",
		"@id":       "n1",
		"thread_id": "indy::RR1::3",
		"comment":   "revoked",
	})
	require.NoError(t, err)
	require.Equal(t, RevokeMsgType, msg.Type())

	revoke := &Revoke{}
	require.NoError(t, msg.Decode(revoke))
	require.Equal(t, "RR1::3", revoke.CredentialID)
	require.Equal(t, FormatIndyAnoncreds, revoke.RevocationFormat)
	require.NotContains(t, msg, "thread_id")

	msg, err = adapter.Canonicalize(service.DIDCommMsgMap{
		"@type": service.LegacyDIDCommPrefix + "revocation_notification/1.0/ack",
		"@id":   "a1",
	})
	require.NoError(t, err)
	require.Equal(t, AckMsgType, msg.Type())
}
