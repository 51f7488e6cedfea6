/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package messagepickup implements Aries pickup 2.0 (RFC 0685). The message holder side answers from the
// mediator persistence and never deletes on delivery; the recipient side picks messages up, hands them to the
// inbound handler and acknowledges the ones it handled.
package messagepickup

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-protocol-engine/pkg/internal/logutil"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
)

const (
	// MessagePickup defines the protocol name.
	MessagePickup = "messagepickup"
	// Spec defines the protocol spec.
	Spec = "https://didcomm.org/messagepickup/2.0/"
	// StatusRequestMsgType defines the protocol status-request message type.
	StatusRequestMsgType = Spec + "status-request"
	// StatusMsgType defines the protocol status message type.
	StatusMsgType = Spec + "status"
	// DeliveryRequestMsgType defines the protocol delivery-request message type.
	DeliveryRequestMsgType = Spec + "delivery-request"
	// DeliveryMsgType defines the protocol delivery message type.
	DeliveryMsgType = Spec + "delivery"
	// MessagesReceivedMsgType defines the protocol messages-received message type.
	MessagesReceivedMsgType = Spec + "messages-received"
	// ProblemReportMsgType defines the protocol problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"
)

const (
	updateTimeout = 50 * time.Second

	// DefaultLimit is the delivery size used when a delivery-request names none.
	DefaultLimit = 10

	codeUnknownAccount = "unknown-account"
)

var (
	// ErrNotAuthenticated is returned for pickup requests that were not authcrypted.
	ErrNotAuthenticated = errors.New("pickup request is not authcrypted")
	// ErrNoMessageHolder is returned for pickup requests received by an agent without mediator persistence.
	ErrNoMessageHolder = errors.New("not a message holder")
	logger             = log.New("aries-framework/messagepickup")
)

// Opt configures the messagepickup service.
type Opt func(*Service)

// WithStore makes the service a message holder answering from store.
func WithStore(store mediatorstore.Persistence) Opt {
	return func(s *Service) {
		s.store = store
	}
}

// WithInboundHandler hands picked up envelopes to h.
func WithInboundHandler(h InboundHandler) Opt {
	return func(s *Service) {
		s.handler = h
	}
}

// WithTimeout bounds how long the recipient side waits for an answer.
func WithTimeout(d time.Duration) Opt {
	return func(s *Service) {
		s.timeout = d
	}
}

// Service for the messagepickup protocol.
type Service struct {
	store     mediatorstore.Persistence
	messenger service.Messenger
	handler   InboundHandler
	timeout   time.Duration
	inboxLock *lockbox[string]

	responseMap     map[string]chan service.DIDCommMsgMap
	responseMapLock sync.RWMutex
}

// New returns the messagepickup service sending with messenger.
func New(messenger service.Messenger, opts ...Opt) *Service {
	s := &Service{
		messenger:   messenger,
		timeout:     updateTimeout,
		inboxLock:   newLockBox[string](),
		responseMap: map[string]chan service.DIDCommMsgMap{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name of the service.
func (s *Service) Name() string {
	return MessagePickup
}

// Accept checks whether the service can handle the message type.
func (s *Service) Accept(msgType string) bool {
	switch msgType {
	case StatusRequestMsgType, StatusMsgType, DeliveryRequestMsgType, DeliveryMsgType, MessagesReceivedMsgType,
		ProblemReportMsgType:
		return true
	}

	return false
}

// HandleInbound handles inbound message pickup messages.
func (s *Service) HandleInbound(ctx context.Context, msg service.DIDCommMsgMap, ic service.InboundContext) error {
	switch msg.Type() {
	case StatusMsgType, DeliveryMsgType, ProblemReportMsgType:
		return s.handleResponse(msg)
	}

	reply, err := s.Respond(ctx, msg, ic)

	fields := []string{
		logutil.CreateKeyValueString("msgType", msg.Type()),
		logutil.CreateKeyValueString("msgID", msg.ID()),
	}

	if err != nil {
		logutil.LogError(logger, MessagePickup, "processMessage", err.Error(), fields...)
	} else {
		logutil.LogDebug(logger, MessagePickup, "processMessage", "success", fields...)
	}

	if reply == nil {
		return err
	}

	if s.messenger == nil || ic.Connection == nil || ic.Connection.Destination == nil {
		logger.Debugf("no route back for %s", reply.Type())

		return err
	}

	if sendErr := s.messenger.Send(ctx, reply, ic.Connection.MyVerKey, ic.Connection.Destination); sendErr != nil {
		logutil.LogError(logger, MessagePickup, "sendReply", sendErr.Error(), fields...)

		if err == nil {
			err = errors.Wrap(sendErr, "send "+reply.Type())
		}
	}

	return err
}

// Respond answers a message holder request of the authcrypted sender of ic.
func (s *Service) Respond(ctx context.Context, msg service.DIDCommMsgMap,
	ic service.InboundContext) (service.DIDCommMsgMap, error) {
	if s.store == nil {
		return nil, errors.Wrap(ErrNoMessageHolder, msg.Type())
	}

	if ic.SenderVerKey == "" {
		return nil, errors.Wrap(ErrNotAuthenticated, msg.Type())
	}

	thid, err := msg.ThreadID()
	if err != nil {
		return nil, errors.Wrap(err, MessagePickup)
	}

	s.inboxLock.Lock(ic.SenderVerKey)
	defer s.inboxLock.Unlock(ic.SenderVerKey)

	var reply interface{}

	switch msg.Type() {
	case StatusRequestMsgType:
		reply, err = s.handleStatusRequest(ctx, msg, thid, ic.SenderVerKey)
	case DeliveryRequestMsgType:
		reply, err = s.handleDeliveryRequest(ctx, msg, thid, ic.SenderVerKey)
	case MessagesReceivedMsgType:
		reply, err = s.handleMessagesReceived(ctx, msg, thid, ic.SenderVerKey)
	default:
		return nil, errors.Errorf("unsupported message type %s", msg.Type())
	}

	if errors.Is(err, mediatorstore.ErrAccountNotFound) {
		return service.NewDIDCommMsgMap(model.NewProblemReport(ProblemReportMsgType, thid, codeUnknownAccount,
			"no mediation for the sender")), err
	}

	if err != nil {
		return nil, err
	}

	return service.NewDIDCommMsgMap(reply), nil
}

func (s *Service) handleStatusRequest(ctx context.Context, msg service.DIDCommMsgMap, thid,
	authKey string) (*Status, error) {
	// unmarshal the payload
	request := &StatusRequest{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "status request message unmarshal")
	}

	logger.Debugf("retrieving stored messages for %s", authKey)

	return s.status(ctx, thid, authKey, request.RecipientKey)
}

func (s *Service) status(ctx context.Context, thid, authKey, recipientKey string) (*Status, error) {
	count, err := s.store.RetrievePendingMessageCount(ctx, authKey, recipientKey)
	if err != nil {
		return nil, errors.Wrap(err, "status: count pending messages")
	}

	return &Status{
		Type:         StatusMsgType,
		ID:           uuid.New().String(),
		RecipientKey: recipientKey,
		MessageCount: count,
		Decorators:   decorator.OnThread(thid, ""),
	}, nil
}

func (s *Service) handleDeliveryRequest(ctx context.Context, msg service.DIDCommMsgMap, thid,
	authKey string) (interface{}, error) {
	// unmarshal the payload
	request := &DeliveryRequest{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "delivery request message unmarshal")
	}

	limit := request.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	msgs, err := s.store.RetrievePendingMessages(ctx, authKey, limit, request.RecipientKey)
	if err != nil {
		return nil, errors.Wrap(err, "delivery: retrieve pending messages")
	}

	if len(msgs) == 0 {
		return s.status(ctx, thid, authKey, request.RecipientKey)
	}

	delivery := &Delivery{
		Type:         DeliveryMsgType,
		ID:           uuid.New().String(),
		RecipientKey: request.RecipientKey,
		Attachments:  make([]decorator.Attachment, 0, len(msgs)),
		Decorators:   decorator.OnThread(thid, ""),
	}

	for _, m := range msgs {
		delivery.Attachments = append(delivery.Attachments, decorator.NewBase64Attachment(m.ID, m.Data))
	}

	logutil.LogDebug(logger, MessagePickup, "delivery", "delivered",
		logutil.CreateKeyValueString("authKey", authKey),
		logutil.CreateKeyValueString("count", strconv.Itoa(len(msgs))))

	return delivery, nil
}

func (s *Service) handleMessagesReceived(ctx context.Context, msg service.DIDCommMsgMap, thid,
	authKey string) (*Status, error) {
	received := &MessagesReceived{}

	if err := msg.Decode(received); err != nil {
		return nil, errors.Wrap(err, "messages received message unmarshal")
	}

	n, err := s.store.DeleteMessages(ctx, authKey, received.MessageIDList)
	if err != nil {
		return nil, errors.Wrap(err, "messages received: delete messages")
	}

	logger.Debugf("removed %d of %d acknowledged messages for %s", n, len(received.MessageIDList), authKey)

	return s.status(ctx, thid, authKey, "")
}

// StatusRequest asks the message holder on conn for the number of waiting messages.
func (s *Service) StatusRequest(ctx context.Context, conn *service.Connection, recipientKey string) (*Status,
	error) {
	resp, err := s.request(ctx, conn, &StatusRequest{
		Type:         StatusRequestMsgType,
		ID:           uuid.New().String(),
		RecipientKey: recipientKey,
	})
	if err != nil {
		return nil, err
	}

	return decodeStatus(resp)
}

// Pickup retrieves up to limit waiting messages from the message holder on conn, hands each to the inbound
// handler and acknowledges the handled ones. It returns the number of messages handled. Messages the handler
// fails on stay with the message holder.
func (s *Service) Pickup(ctx context.Context, conn *service.Connection, recipientKey string, limit int) (int,
	error) {
	if s.handler == nil {
		return 0, errors.New("pickup: no inbound handler")
	}

	resp, err := s.request(ctx, conn, &DeliveryRequest{
		Type:         DeliveryRequestMsgType,
		ID:           uuid.New().String(),
		Limit:        limit,
		RecipientKey: recipientKey,
	})
	if err != nil {
		return 0, err
	}

	if resp.Type() == StatusMsgType {
		return 0, nil
	}

	delivery := &Delivery{}
	if err = resp.Decode(delivery); err != nil {
		return 0, errors.Wrap(err, "delivery message unmarshal")
	}

	var handled []string

	for i := range delivery.Attachments {
		att := delivery.Attachments[i]

		envelope, err := att.Data.Fetch()
		if err != nil {
			logger.Warnf("pickup: message %s: %s", att.ID, err)

			continue
		}

		if err = s.handler(ctx, envelope); err != nil {
			logger.Warnf("pickup: message %s not handled: %s", att.ID, err)

			continue
		}

		handled = append(handled, att.ID)
	}

	if len(handled) == 0 {
		return 0, nil
	}

	resp, err = s.request(ctx, conn, &MessagesReceived{
		Type:          MessagesReceivedMsgType,
		ID:            uuid.New().String(),
		MessageIDList: handled,
	})
	if err != nil {
		return len(handled), errors.Wrap(err, "acknowledge delivery")
	}

	if _, err = decodeStatus(resp); err != nil {
		return len(handled), err
	}

	return len(handled), nil
}

// request sends msg on conn and waits for the answer on its thread.
func (s *Service) request(ctx context.Context, conn *service.Connection, msg interface{}) (service.DIDCommMsgMap,
	error) {
	if conn == nil || conn.Destination == nil {
		return nil, errors.New("pickup: no connection to the message holder")
	}

	out := service.NewDIDCommMsgMap(msg)
	thid := out.ID()

	// register chan for callback processing
	respCh := make(chan service.DIDCommMsgMap, 1)
	s.setResponseCh(thid, respCh)

	// remove the channel once its been processed
	defer s.setResponseCh(thid, nil)

	if err := s.messenger.Send(ctx, out, conn.MyVerKey, conn.Destination); err != nil {
		return nil, errors.Wrapf(err, "send %s", out.Type())
	}

	select {
	case resp := <-respCh:
		if resp.Type() == ProblemReportMsgType {
			pr := &model.ProblemReport{}
			if err := resp.Decode(pr); err != nil {
				return nil, errors.Wrap(err, "problem report unmarshal")
			}

			return nil, errors.Errorf("message holder reported %s: %s", pr.Code(), pr.Comment())
		}

		return resp, nil
	case <-time.After(s.timeout):
		return nil, errors.Errorf("timeout waiting for an answer to %s", out.Type())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) handleResponse(msg service.DIDCommMsgMap) error {
	thid, err := msg.ThreadID()
	if err != nil {
		return errors.Wrap(err, msg.Type())
	}

	// check if there are any channels registered for the message thread
	respCh := s.getResponseCh(thid)
	if respCh == nil {
		logger.Debugf("dropped %s on thread %s: nobody waits for it", msg.Type(), thid)

		return nil
	}

	select {
	case respCh <- msg:
	default:
		logger.Debugf("dropped duplicate %s on thread %s", msg.Type(), thid)
	}

	return nil
}

func decodeStatus(msg service.DIDCommMsgMap) (*Status, error) {
	if msg.Type() != StatusMsgType {
		return nil, errors.Errorf("expected %s, got %s", StatusMsgType, msg.Type())
	}

	status := &Status{}
	if err := msg.Decode(status); err != nil {
		return nil, errors.Wrap(err, "status message unmarshal")
	}

	return status, nil
}

func (s *Service) getResponseCh(thid string) chan service.DIDCommMsgMap {
	s.responseMapLock.RLock()
	defer s.responseMapLock.RUnlock()

	return s.responseMap[thid]
}

func (s *Service) setResponseCh(thid string, ch chan service.DIDCommMsgMap) {
	s.responseMapLock.Lock()
	defer s.responseMapLock.Unlock()

	if ch == nil {
		delete(s.responseMap, thid)
	} else {
		s.responseMap[thid] = ch
	}
}
