/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/problemreport"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
)

const (
	updateTimeout = 10 * time.Second
	grantPoll     = 50 * time.Millisecond
)

// ErrRouterNotRegistered router not registered error.
var ErrRouterNotRegistered = errors.New("router not registered")

// ErrMediationDenied is returned by Register when the mediator denies the request.
var ErrMediationDenied = errors.New("mediation denied")

var _ ProtocolService = (*Client)(nil)

// Client runs the recipient side of mediations, one machine per mediation thread.
type Client struct {
	*runner.Runner[ClientState]

	mu    sync.Mutex
	conns map[string]*service.Connection

	keylistUpdateMap     map[string]chan *KeylistUpdateResponse
	keylistUpdateMapLock sync.RWMutex
	updateTimeout        time.Duration
}

// NewClient returns the recipient side service.
func NewClient(config ClientConfig, opts ...runner.Opt) *Client {
	if config.Policy.MsgType == "" {
		config.Policy = problemreport.Default(ProblemReportMsgType)
	}

	return &Client{
		Runner:           runner.New[ClientState](&protocol{config: config}, opts...),
		conns:            map[string]*service.Connection{},
		keylistUpdateMap: map[string]chan *KeylistUpdateResponse{},
		updateTimeout:    updateTimeout,
	}
}

// Accept checks whether the client handles the message type.
func (c *Client) Accept(msgType string) bool {
	switch msgType {
	case GrantMsgType, DenyMsgType, KeylistUpdateResponseMsgType, KeylistMsgType, ProblemReportMsgType:
		return true
	}

	return false
}

// HasThread tells whether a live mediation runs on thid.
func (c *Client) HasThread(thid string) bool {
	_, ok := c.Threads().LookupRole(thid)

	return ok
}

// HandleInbound handles the mediator's answers.
func (c *Client) HandleInbound(ctx context.Context, msg service.DIDCommMsgMap, _ service.InboundContext) error {
	err := c.dispatch(runner.WithInbound(ctx, msg), msg)
	if errors.Is(err, engine.ErrUnexpected) {
		logger.Debugf("dropped %s: %s", msg.Type(), err)

		return nil
	}

	return err
}

func (c *Client) dispatch(ctx context.Context, msg service.DIDCommMsgMap) error {
	switch msg.Type() {
	case GrantMsgType:
		grant := &Grant{}
		if err := msg.Decode(grant); err != nil {
			return errors.Wrap(err, "decode grant")
		}

		return c.handle(ctx, grant.ThreadID(), &GrantMsg{Grant: grant})
	case DenyMsgType:
		deny := &Deny{}
		if err := msg.Decode(deny); err != nil {
			return errors.Wrap(err, "decode deny")
		}

		return c.handle(ctx, deny.ThreadID(), &DenyMsg{Deny: deny})
	case KeylistUpdateResponseMsgType:
		resp := &KeylistUpdateResponse{}
		if err := msg.Decode(resp); err != nil {
			return errors.Wrap(err, "route keylist update response message unmarshal")
		}

		err := c.handle(ctx, resp.ThreadID(), &KeylistUpdateResponseMsg{KeylistUpdateResponse: resp})

		// check if there are any channels registered for the message thread
		if keylistUpdateCh := c.getKeyUpdateResponseCh(resp.ThreadID()); keylistUpdateCh != nil && err == nil {
			select {
			case keylistUpdateCh <- resp:
			default:
			}
		}

		return err
	case KeylistMsgType:
		list := &Keylist{}
		if err := msg.Decode(list); err != nil {
			return errors.Wrap(err, "decode keylist")
		}

		return c.handle(ctx, list.ThreadID(), &KeylistMsg{Keylist: list})
	case ProblemReportMsgType:
		pr := &model.ProblemReport{}
		if err := msg.Decode(pr); err != nil {
			return errors.Wrap(err, "decode problem report")
		}

		return c.handle(ctx, pr.ThreadID(), &ProblemReport{ProblemReport: pr})
	}

	return errors.Errorf("%s: unsupported message type %s", Coordination, msg.Type())
}

// RequestMediation asks the mediator on conn for mediation and returns the mediation thread id.
func (c *Client) RequestMediation(ctx context.Context, conn *service.Connection) (string, error) {
	thid := uuid.New().String()

	if _, _, err := c.Start(ctx, thid, engine.RoleRecipient, &RecipientInitial{},
		&RequestMediation{ThreadID: thid}, conn); err != nil {
		return "", errors.Wrap(err, "send route request")
	}

	c.mu.Lock()
	c.conns[thid] = conn
	c.mu.Unlock()

	return thid, nil
}

// Register asks the mediator on conn for mediation and blocks until it answers or ctx is done. It returns the
// mediation thread id and the granted routing configuration.
func (c *Client) Register(ctx context.Context, conn *service.Connection) (string, *Config, error) {
	thid, err := c.RequestMediation(ctx, conn)
	if err != nil {
		return "", nil, err
	}

	var config *Config

	err = backoff.Retry(func() error {
		config, err = c.Config(ctx, thid)
		if err == nil {
			return nil
		}

		if final, ok := c.Final(thid); ok {
			if f, isFailed := final.(*Failed); isFailed && f.Denied {
				return backoff.Permanent(ErrMediationDenied)
			}

			return backoff.Permanent(errors.Errorf("mediation ended in state %s", final.Name()))
		}

		return err
	}, backoff.WithContext(backoff.NewConstantBackOff(grantPoll), ctx))
	if err != nil {
		return thid, nil, errors.Wrapf(err, "get grant for request ID '%s'", thid)
	}

	return thid, config, nil
}

// UpdateKeys sends a keylist-update on the mediation thid.
func (c *Client) UpdateKeys(ctx context.Context, thid string, updates ...Update) error {
	return c.handle(ctx, thid, &UpdateKeys{Updates: updates})
}

// QueryKeys asks the mediator of thid for the routed keys. The answer updates the Granted state.
func (c *Client) QueryKeys(ctx context.Context, thid string, paginate *Paginate) error {
	return c.handle(ctx, thid, &QueryKeys{Paginate: paginate})
}

// AddKey adds a recKey of the agent to the mediator of thid. This method blocks until a response is received
// from the mediator or it times out.
func (c *Client) AddKey(ctx context.Context, thid, recKey string) error {
	if _, err := c.Config(ctx, thid); err != nil {
		return errors.Wrap(err, "ensure mediation exists")
	}

	// register chan for callback processing
	keyUpdateCh := make(chan *KeylistUpdateResponse, 1)
	c.setKeyUpdateResponseCh(thid, keyUpdateCh)

	// remove the channel once its been processed
	defer c.setKeyUpdateResponseCh(thid, nil)

	if err := c.UpdateKeys(ctx, thid, Update{RecipientKey: recKey, Action: ActionAdd}); err != nil {
		return errors.Wrap(err, "send keylist update")
	}

	select {
	case keyUpdateResp := <-keyUpdateCh:
		return processKeylistUpdateResp(recKey, keyUpdateResp)
	case <-time.After(c.updateTimeout):
		return errors.New("timeout waiting for keylist update response from the router")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config fetches the router config - endpoint and routingKeys.
func (c *Client) Config(ctx context.Context, thid string) (*Config, error) {
	m, err := c.Get(ctx, thid)
	if err != nil {
		return nil, ErrRouterNotRegistered
	}

	granted, ok := m.State().(*Granted)
	if !ok {
		return nil, ErrRouterNotRegistered
	}

	return granted.Config(), nil
}

// Connection returns the connection to the mediator of thid.
func (c *Client) Connection(thid string) (*service.Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.conns[thid]

	return conn, ok
}

// Mediations returns the thread ids of the granted mediations.
func (c *Client) Mediations(ctx context.Context) []string {
	var granted []string

	for _, thid := range c.Threads().ThreadIDs() {
		if _, err := c.Config(ctx, thid); err == nil {
			granted = append(granted, thid)
		}
	}

	return granted
}

func (c *Client) handle(ctx context.Context, thid string, in engine.Input) error {
	if thid == "" {
		return errors.Wrapf(service.ErrThreadIDNotFound, "%s: %s carries no thread id", Coordination,
			in.InputName())
	}

	c.mu.Lock()
	conn := c.conns[thid]
	c.mu.Unlock()

	next, _, err := c.Handle(ctx, thid, in, conn)
	if next.ThreadID() != "" && next.Terminal() {
		c.mu.Lock()
		delete(c.conns, thid)
		c.mu.Unlock()
	}

	return err
}

func processKeylistUpdateResp(recKey string, keyUpdateResp *KeylistUpdateResponse) error {
	for _, result := range keyUpdateResp.Updated {
		if result.RecipientKey == recKey && result.Action == ActionAdd && result.Result != ResultSuccess &&
			result.Result != ResultNoChange {
			return errors.Errorf("failed to update the recipient key with the router: %s", result.Result)
		}
	}

	return nil
}

func (c *Client) getKeyUpdateResponseCh(thid string) chan *KeylistUpdateResponse {
	c.keylistUpdateMapLock.RLock()
	defer c.keylistUpdateMapLock.RUnlock()

	return c.keylistUpdateMap[thid]
}

func (c *Client) setKeyUpdateResponseCh(thid string, keyUpdateCh chan *KeylistUpdateResponse) {
	c.keylistUpdateMapLock.Lock()
	defer c.keylistUpdateMapLock.Unlock()

	if keyUpdateCh == nil {
		delete(c.keylistUpdateMap, thid)
	} else {
		c.keylistUpdateMap[thid] = keyUpdateCh
	}
}
