/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator implements Aries coordinate-mediation 1.0 (RFC 0211) and routing forward (RFC 0094).
// Service is the mediator side, a request/response service over the mediator persistence. Client is the
// recipient side, a registry-backed state machine per mediation.
package mediator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/internal/logutil"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
)

var logger = log.New("aries-framework/protocol/mediator")

// constants for route coordination spec types.
const (
	// Coordination route coordination protocol.
	Coordination = "coordinate-mediation"

	// CoordinationSpec defines the route coordination spec.
	CoordinationSpec = "https://didcomm.org/coordinate-mediation/1.0/"

	// RequestMsgType defines the route coordination request message type.
	RequestMsgType = CoordinationSpec + "mediate-request"

	// GrantMsgType defines the route coordination request grant message type.
	GrantMsgType = CoordinationSpec + "mediate-grant"

	// DenyMsgType defines the route coordination request deny message type.
	DenyMsgType = CoordinationSpec + "mediate-deny"

	// KeylistUpdateMsgType defines the route coordination key list update message type.
	KeylistUpdateMsgType = CoordinationSpec + "keylist-update"

	// KeylistUpdateResponseMsgType defines the route coordination key list update message response type.
	KeylistUpdateResponseMsgType = CoordinationSpec + "keylist-update-response"

	// KeylistQueryMsgType defines the route coordination key list query message type.
	KeylistQueryMsgType = CoordinationSpec + "keylist-query"

	// KeylistMsgType defines the route coordination key list message type.
	KeylistMsgType = CoordinationSpec + "keylist"

	// ProblemReportMsgType defines the route coordination problem report message type.
	ProblemReportMsgType = CoordinationSpec + "problem-report"

	// ForwardAckMsgType acknowledges a forward.
	ForwardAckMsgType = "https://didcomm.org/routing/1.0/ack"
)

// constants for key list update processing
// https://github.com/hyperledger/aries-rfcs/tree/master/features/0211-route-coordination#keylist-update
const (
	// ActionAdd adds the key to the store.
	ActionAdd = "add"

	// ActionRemove removes the key from the store.
	ActionRemove = "remove"

	// ResultSuccess key update success.
	ResultSuccess = "success"

	// ResultNoChange the key already was in the requested state.
	ResultNoChange = "no_change"

	// ResultClientError the entry could not be applied because of the request.
	ResultClientError = "client_error"

	// ResultServerError server error while storing the key.
	ResultServerError = "server_error"
)

const (
	defaultForwardRetries  = 3
	defaultForwardInterval = 100 * time.Millisecond
)

// ErrNotAuthenticated is returned for coordination messages that were not authcrypted.
var ErrNotAuthenticated = errors.New("coordination message is not authcrypted")

// Opt configures the mediator service.
type Opt func(*Service)

// WithGrantPolicy decides mediate-requests with p. Without a policy every request is granted.
func WithGrantPolicy(p *GrantPolicy) Opt {
	return func(s *Service) {
		s.policy = p
	}
}

// WithMessenger sends the responses with m. Without a messenger responses are only returned by Respond.
func WithMessenger(m service.Messenger) Opt {
	return func(s *Service) {
		s.messenger = m
	}
}

// WithSigningKey sets the key the mediator signs for its accounts with.
func WithSigningKey(verKey string) Opt {
	return func(s *Service) {
		s.signingKey = verKey
	}
}

// WithForwardRetry retries failed forward persistence retries times, interval apart.
func WithForwardRetry(interval time.Duration, retries uint64) Opt {
	return func(s *Service) {
		s.forwardInterval = interval
		s.forwardRetries = retries
	}
}

// Service for Route Coordination protocol, mediator side.
// https://github.com/hyperledger/aries-rfcs/tree/master/features/0211-route-coordination
type Service struct {
	store           mediatorstore.Persistence
	config          *Config
	policy          *GrantPolicy
	messenger       service.Messenger
	signingKey      string
	forwardInterval time.Duration
	forwardRetries  uint64
}

// New returns the mediator service granting config to the recipients it accepts.
func New(store mediatorstore.Persistence, config *Config, opts ...Opt) *Service {
	s := &Service{
		store:           store,
		config:          config,
		forwardInterval: defaultForwardInterval,
		forwardRetries:  defaultForwardRetries,
	}

	for _, opt := range opts {
		opt(s)
	}

	logger.Debugf("default endpoint: %s", config.Endpoint())

	return s
}

// Name of the service.
func (s *Service) Name() string {
	return Coordination
}

// Accept checks whether the service can handle the message type.
func (s *Service) Accept(msgType string) bool {
	switch msgType {
	case RequestMsgType, KeylistUpdateMsgType, KeylistQueryMsgType, model.ForwardMsgType:
		return true
	}

	return false
}

// HandleInbound handles inbound mediator messages and sends the response back on ic.Connection.
func (s *Service) HandleInbound(ctx context.Context, msg service.DIDCommMsgMap, ic service.InboundContext) error {
	reply, err := s.Respond(ctx, msg, ic)

	logFields := []string{
		logutil.CreateKeyValueString("msgType", msg.Type()),
		logutil.CreateKeyValueString("msgID", msg.ID()),
	}

	// forward messages don't have a connection established with the sender
	if ic.Connection != nil && msg.Type() != model.ForwardMsgType {
		logFields = append(logFields, logutil.CreateKeyValueString("connectionID", ic.Connection.ID))
	}

	if err != nil {
		logutil.LogError(logger, Coordination, "processMessage", err.Error(), logFields...)
	} else {
		logutil.LogDebug(logger, Coordination, "processMessage", "success", logFields...)
	}

	if reply == nil {
		return err
	}

	if sendErr := s.reply(ctx, reply, ic); sendErr != nil {
		logutil.LogError(logger, Coordination, "sendReply", sendErr.Error(), logFields...)

		if err == nil {
			err = sendErr
		}
	}

	return err
}

// Respond processes msg and returns the message to answer it with. A forward that could not be persisted is
// answered with a PENDING ack and the persistence error.
func (s *Service) Respond(ctx context.Context, msg service.DIDCommMsgMap,
	ic service.InboundContext) (service.DIDCommMsgMap, error) {
	thid, err := msg.ThreadID()
	if err != nil {
		return nil, errors.Wrap(err, "mediator")
	}

	var reply interface{}

	switch msg.Type() {
	case RequestMsgType:
		reply, err = s.handleRequest(ctx, thid, ic)
	case KeylistUpdateMsgType:
		reply, err = s.handleKeylistUpdate(ctx, msg, thid, ic)
	case KeylistQueryMsgType:
		reply, err = s.handleKeylistQuery(ctx, msg, thid, ic)
	case model.ForwardMsgType:
		reply, err = s.handleForward(ctx, msg, thid)
	default:
		return nil, errors.Errorf("invalid or unsupported message type %s", msg.Type())
	}

	if reply == nil {
		return nil, err
	}

	return service.NewDIDCommMsgMap(reply), err
}

func (s *Service) reply(ctx context.Context, reply service.DIDCommMsgMap, ic service.InboundContext) error {
	if s.messenger == nil || ic.Connection == nil || ic.Connection.Destination == nil {
		logger.Debugf("no route back for %s", reply.Type())

		return nil
	}

	return errors.Wrap(s.messenger.Send(ctx, reply, ic.Connection.MyVerKey, ic.Connection.Destination),
		"send "+reply.Type())
}

func (s *Service) handleRequest(ctx context.Context, thid string, ic service.InboundContext) (interface{}, error) {
	if ic.SenderVerKey == "" {
		return nil, errors.Wrap(ErrNotAuthenticated, "mediate-request")
	}

	_, err := s.store.GetAccount(ctx, ic.SenderVerKey)
	renewal := err == nil

	if err != nil && !errors.Is(err, mediatorstore.ErrAccountNotFound) {
		return nil, errors.Wrap(err, "mediate-request: account lookup")
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "mediate-request: list accounts")
	}

	didDoc := didDocOf(ic.Connection)

	allow, err := s.policy.Allow(map[string]interface{}{
		ParamAuthKey:      ic.SenderVerKey,
		ParamAccountCount: len(accounts),
		ParamHasDIDDoc:    len(didDoc) > 0,
		ParamRenewal:      renewal,
	})
	if err != nil {
		logger.Warnf("deny mediation to %s: %s", ic.SenderVerKey, err)
	}

	if !allow {
		logutil.LogInfo(logger, Coordination, "handleRequest", "denied",
			logutil.CreateKeyValueString("authKey", ic.SenderVerKey))

		return &Deny{Type: DenyMsgType, ID: uuid.New().String(), Decorators: decorator.OnThread(thid, "")}, nil
	}

	if !renewal {
		if _, err = s.store.CreateAccount(ctx, ic.SenderVerKey, s.signingKey, didDoc); err != nil {
			return nil, errors.Wrap(err, "mediate-request: create account")
		}
	}

	return outboundGrant(thid, s.config), nil
}

func outboundGrant(thid string, config *Config) *Grant {
	grant := &Grant{
		Type:        GrantMsgType,
		ID:          uuid.New().String(),
		Endpoint:    config.Endpoint(),
		RoutingKeys: config.Keys(),
		Decorators:  decorator.OnThread(thid, ""),
	}

	logger.Debugf("outbound grant: %+v", grant)

	return grant
}

func (s *Service) handleKeylistUpdate(ctx context.Context, msg service.DIDCommMsgMap, thid string,
	ic service.InboundContext) (interface{}, error) {
	if ic.SenderVerKey == "" {
		return nil, errors.Wrap(ErrNotAuthenticated, "keylist-update")
	}

	// unmarshal the payload
	keyUpdate := &KeylistUpdate{}

	if err := msg.Decode(keyUpdate); err != nil {
		return nil, errors.Wrap(err, "route key list update message unmarshal")
	}

	updates := make([]UpdateResponse, 0, len(keyUpdate.Updates))

	for _, v := range keyUpdate.Updates {
		updates = append(updates, UpdateResponse{
			RecipientKey: v.RecipientKey,
			Action:       v.Action,
			Result:       s.applyUpdate(ctx, ic.SenderVerKey, v),
		})
	}

	return &KeylistUpdateResponse{
		Type:       KeylistUpdateResponseMsgType,
		ID:         uuid.New().String(),
		Updated:    updates,
		Decorators: decorator.OnThread(thid, ""),
	}, nil
}

func (s *Service) applyUpdate(ctx context.Context, authKey string, u Update) string {
	if u.RecipientKey == "" {
		return ResultClientError
	}

	var err error

	switch u.Action {
	case ActionAdd:
		err = s.store.AddRecipient(ctx, authKey, u.RecipientKey)
		if errors.Is(err, mediatorstore.ErrRecipientExists) {
			if s.routedTo(ctx, authKey, u.RecipientKey) {
				return ResultNoChange
			}

			return ResultClientError
		}
	case ActionRemove:
		err = s.store.RemoveRecipient(ctx, authKey, u.RecipientKey)
		if errors.Is(err, mediatorstore.ErrRecipientNotFound) {
			return ResultNoChange
		}
	default:
		return ResultClientError
	}

	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, mediatorstore.ErrAccountNotFound):
		return ResultClientError
	default:
		logger.Errorf("failed to %s the route key %s: %s", u.Action, u.RecipientKey, err)

		return ResultServerError
	}
}

func (s *Service) routedTo(ctx context.Context, authKey, recipientKey string) bool {
	keys, err := s.store.ListRecipientKeys(ctx, authKey)
	if err != nil {
		return false
	}

	for _, k := range keys {
		if k == recipientKey {
			return true
		}
	}

	return false
}

func (s *Service) handleKeylistQuery(ctx context.Context, msg service.DIDCommMsgMap, thid string,
	ic service.InboundContext) (interface{}, error) {
	if ic.SenderVerKey == "" {
		return nil, errors.Wrap(ErrNotAuthenticated, "keylist-query")
	}

	query := &KeylistQuery{}

	if err := msg.Decode(query); err != nil {
		return nil, errors.Wrap(err, "keylist query message unmarshal")
	}

	keys, err := s.store.ListRecipientKeys(ctx, ic.SenderVerKey)
	if err != nil {
		if errors.Is(err, mediatorstore.ErrAccountNotFound) {
			return model.NewProblemReport(ProblemReportMsgType, thid, ResultClientError, err.Error()), err
		}

		return nil, errors.Wrap(err, "keylist-query")
	}

	page, pagination := paginate(keys, query.Paginate)

	list := &Keylist{
		Type:       KeylistMsgType,
		ID:         uuid.New().String(),
		Keys:       make([]KeylistKey, 0, len(page)),
		Pagination: pagination,
		Decorators: decorator.OnThread(thid, ""),
	}

	for _, k := range page {
		list.Keys = append(list.Keys, KeylistKey{RecipientKey: k})
	}

	return list, nil
}

func paginate(keys []string, p *Paginate) ([]string, *Pagination) {
	if p == nil {
		return keys, nil
	}

	offset := p.Offset
	if offset < 0 || offset > len(keys) {
		offset = len(keys)
	}

	end := len(keys)
	if p.Limit > 0 && offset+p.Limit < end {
		end = offset + p.Limit
	}

	page := keys[offset:end]

	return page, &Pagination{Count: len(page), Offset: offset, Remaining: len(keys) - end}
}

func (s *Service) handleForward(ctx context.Context, msg service.DIDCommMsgMap, thid string) (interface{}, error) {
	// unmarshal the payload
	forward := &model.Forward{}

	if err := msg.Decode(forward); err != nil {
		return nil, errors.Wrap(err, "forward message unmarshal")
	}

	if forward.To == "" || len(forward.Msg) == 0 {
		return nil, errors.New("forward message lacks a recipient or a message")
	}

	var msgID string

	persist := func() error {
		var err error

		msgID, err = s.store.PersistForwardMessage(ctx, forward.To, forward.Msg)
		if errors.Is(err, mediatorstore.ErrAccountNotFound) {
			return backoff.Permanent(err)
		}

		return err
	}

	err := backoff.Retry(persist, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.forwardInterval), s.forwardRetries), ctx))
	if err != nil {
		return model.NewAck(ForwardAckMsgType, thid, model.AckStatusPending),
			errors.Wrapf(err, "persist forward message for %s", forward.To)
	}

	logutil.LogDebug(logger, Coordination, "handleForward", "persisted",
		logutil.CreateKeyValueString("recipientKey", forward.To),
		logutil.CreateKeyValueString("messageID", msgID))

	return model.NewAck(ForwardAckMsgType, thid, model.AckStatusOK), nil
}

func didDocOf(conn *service.Connection) json.RawMessage {
	if conn == nil || conn.Destination == nil {
		return nil
	}

	raw, err := json.Marshal(conn.Destination)
	if err != nil {
		return nil
	}

	return raw
}
