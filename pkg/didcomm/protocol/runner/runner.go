/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package runner drives the machines of one protocol: it keeps them in a thread registry, applies inputs under
// an exclusive checkout, journals and announces every committed transition and sends the resulting messages.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/registry"
	"github.com/hyperledger/aries-protocol-engine/pkg/store/protocolstate"
)

var logger = log.New("aries-framework/protocol/runner")

const defaultClosedThreads = 1024

// Journal records committed transitions. Threads the journal holds as finished or rebound stay closed after
// the in-memory view of them is gone.
type Journal interface {
	Put(rec protocolstate.Record) error
	Get(namespace, thid string) (*protocolstate.Record, error)
}

// Reporter is implemented by failed states carrying a problem report.
type Reporter interface {
	ProblemReport() *model.ProblemReport
}

// Propertied is implemented by states exposing values to event consumers.
type Propertied interface {
	Properties() map[string]interface{}
}

// Settled is implemented by non-terminal states that wait indefinitely, e.g. an established connection.
type Settled interface {
	Settled() bool
}

// Opt configures a Runner.
type Opt func(*options)

type options struct {
	timeout   time.Duration
	journal   Journal
	messenger service.Messenger
	now       func() time.Time
	rebind    func(state engine.State) string
	closed    int
}

// WithTimeout sets how long a machine may stay idle before it times out. Zero disables timeouts.
func WithTimeout(d time.Duration) Opt {
	return func(o *options) {
		o.timeout = d
	}
}

// WithJournal records every committed transition in j.
func WithJournal(j Journal) Opt {
	return func(o *options) {
		o.journal = j
	}
}

// WithMessenger sends outbound messages through m.
func WithMessenger(m service.Messenger) Opt {
	return func(o *options) {
		o.messenger = m
	}
}

// WithClock sets the time source for deadlines.
func WithClock(now func() time.Time) Opt {
	return func(o *options) {
		o.now = now
	}
}

// WithRebind moves a machine to the thread id rebind returns for its new state, when not empty. Protocols
// whose thread id is only known after the first exchange use it.
func WithRebind(rebind func(state engine.State) string) Opt {
	return func(o *options) {
		o.rebind = rebind
	}
}

// WithClosedThreads sets how many finished threads are remembered with their terminal state. Inputs for a
// remembered thread are rejected as unexpected. Non positive values are ignored.
func WithClosedThreads(n int) Opt {
	return func(o *options) {
		if n > 0 {
			o.closed = n
		}
	}
}

type inboundKey struct{}

// WithInbound attaches the inbound message being handled to ctx, so state notifications can carry it.
func WithInbound(ctx context.Context, msg service.DIDCommMsgMap) context.Context {
	return context.WithValue(ctx, inboundKey{}, msg)
}

func inbound(ctx context.Context) service.DIDCommMsgMap {
	msg, _ := ctx.Value(inboundKey{}).(service.DIDCommMsgMap) // nolint: errcheck

	return msg
}

var _ service.Event = (*Runner[engine.State])(nil)

// Runner runs the machines of protocol P.
type Runner[S engine.State] struct {
	service.Message
	protocol  engine.Protocol[S]
	threads   *registry.Registry[engine.Machine[S]]
	timeout   time.Duration
	journal   Journal
	messenger service.Messenger
	now       func() time.Time
	rebind    func(state engine.State) string
	closed    gcache.Cache
	// rebound maps thread ids machines left to the state they left them in.
	rebound gcache.Cache
}

// New creates a runner for p.
func New[S engine.State](p engine.Protocol[S], opts ...Opt) *Runner[S] {
	o := &options{now: time.Now, closed: defaultClosedThreads}

	for _, opt := range opts {
		opt(o)
	}

	return &Runner[S]{
		protocol:  p,
		threads:   registry.New[engine.Machine[S]](p.Name()),
		timeout:   o.timeout,
		journal:   o.journal,
		messenger: o.messenger,
		now:       o.now,
		rebind:    o.rebind,
		closed:    gcache.New(o.closed).LRU().Build(),
		rebound:   gcache.New(o.closed).LRU().Build(),
	}
}

// Name returns the protocol name.
func (r *Runner[S]) Name() string {
	return r.protocol.Name()
}

// Threads returns the registry of live machines.
func (r *Runner[S]) Threads() *registry.Registry[engine.Machine[S]] {
	return r.threads
}

// Start creates a machine for thid in initial, applies in and registers the result unless it is terminal.
// Nothing is registered when the transition fails. A thread that finished, or that a machine was rebound away
// from, is not started again.
func (r *Runner[S]) Start(ctx context.Context, thid string, role engine.Role, initial S, in engine.Input,
	conn *service.Connection) (engine.Machine[S], []service.DIDCommMsgMap, error) {
	if _, ok := r.threads.LookupRole(thid); ok {
		var zero engine.Machine[S]

		return zero, nil, &registry.DuplicateThreadError{Namespace: r.Name(), ThreadID: thid}
	}

	m := engine.New[S](r.protocol, thid, role, initial)

	if last, ok := r.finished(thid); ok {
		logger.Warnf("%s thread %s: dropped %s, the thread was left in state %s", r.Name(), thid,
			in.InputName(), last.Name())

		return m, nil, engine.NewUnexpected(r.Name(), last, in)
	}

	next, out, err := m.Transition(ctx, in)
	if err != nil {
		r.logRejected(m, in, err)

		return m, nil, err
	}

	next = r.move(thid, r.touch(next))

	if !next.Terminal() {
		if err = r.threads.Register(next.ThreadID(), next); err != nil {
			return m, nil, err
		}
	}

	return next, out, r.commit(ctx, next, out, conn)
}

// Handle applies in to the machine of thid.
func (r *Runner[S]) Handle(ctx context.Context, thid string, in engine.Input,
	conn *service.Connection) (engine.Machine[S], []service.DIDCommMsgMap, error) {
	m, err := r.threads.Take(ctx, thid)
	if err != nil {
		if !errors.Is(err, registry.ErrThreadNotFound) {
			return m, nil, err
		}

		if last, ok := r.finished(thid); ok {
			logger.Warnf("%s thread %s: dropped %s, the thread was left in state %s", r.Name(), thid,
				in.InputName(), last.Name())

			return m, nil, engine.NewUnexpected(r.Name(), last, in)
		}

		return m, nil, err
	}

	next, out, err := m.Transition(ctx, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && engine.Expired(m, r.now()) {
			return r.expire(ctx, thid, m)
		}

		r.threads.Release(thid)
		r.logRejected(m, in, err)

		return m, nil, err
	}

	next = r.move(thid, r.touch(next))

	if next.ThreadID() != thid {
		r.threads.Remove(thid)
		r.threads.Release(thid)

		if !next.Terminal() {
			if err = r.threads.Register(next.ThreadID(), next); err != nil {
				return m, nil, err
			}
		}
	} else if err = r.threads.Return(thid, next); err != nil {
		return m, nil, err
	}

	return next, out, r.commit(ctx, next, out, conn)
}

// Get returns a snapshot of the machine of thid without checking it out.
func (r *Runner[S]) Get(ctx context.Context, thid string) (engine.Machine[S], error) {
	m, err := r.threads.Take(ctx, thid)
	if err != nil {
		return m, err
	}

	r.threads.Release(thid)

	return m, nil
}

// SweepExpired times out idle expired machines.
func (r *Runner[S]) SweepExpired(now time.Time) int {
	return r.threads.Sweep(now, func(thid string, m engine.Machine[S]) {
		failed := m.Timeout()

		logger.Infof("%s thread %s timed out in state %s", r.Name(), thid, m.State().Name())

		r.record(failed, nil)
		r.close(thid, failed.State())
	})
}

// Closed tells whether thid ran to completion, as remembered in memory or journaled.
func (r *Runner[S]) Closed(thid string) bool {
	last, ok := r.finished(thid)

	return ok && last.Terminal()
}

func (r *Runner[S]) close(thid string, final S) {
	if err := r.closed.Set(thid, final); err != nil {
		logger.Warnf("%s thread %s: remember closed thread: %s", r.Name(), thid, err)
	}
}

// Final returns the terminal state thid finished in, if it is remembered.
func (r *Runner[S]) Final(thid string) (S, bool) {
	return r.final(thid)
}

func (r *Runner[S]) final(thid string) (S, bool) {
	var zero S

	v, err := r.closed.Get(thid)
	if err != nil {
		return zero, false
	}

	final, ok := v.(S)

	return final, ok
}

// finished returns the state thid was left in when no machine runs on it any more: it finished, or its machine
// was rebound to another thread. The journal answers for threads no longer remembered in memory.
func (r *Runner[S]) finished(thid string) (engine.State, bool) {
	if final, ok := r.final(thid); ok {
		return final, true
	}

	if v, err := r.rebound.Get(thid); err == nil {
		if last, ok := v.(engine.State); ok {
			return last, true
		}
	}

	if r.journal == nil {
		return nil, false
	}

	rec, err := r.journal.Get(r.Name(), thid)
	if err != nil {
		if !errors.Is(err, protocolstate.ErrRecordNotFound) {
			logger.Warnf("%s thread %s: read journal: %s", r.Name(), thid, err)
		}

		return nil, false
	}

	if !rec.Terminal && rec.ReboundTo == "" {
		return nil, false
	}

	return &journaled{name: rec.State, terminal: rec.Terminal}, true
}

// journaled is the last state of a thread as the journal recorded it.
type journaled struct {
	name     string
	terminal bool
}

func (s *journaled) Name() string { return s.name }

func (s *journaled) Terminal() bool { return s.terminal }

func (r *Runner[S]) expire(ctx context.Context, thid string,
	m engine.Machine[S]) (engine.Machine[S], []service.DIDCommMsgMap, error) {
	failed := m.Timeout()

	if err := r.threads.Return(thid, failed); err != nil {
		return m, nil, err
	}

	logger.Infof("%s thread %s timed out in state %s", r.Name(), thid, m.State().Name())

	return failed, nil, r.commit(ctx, failed, nil, nil)
}

func (r *Runner[S]) touch(m engine.Machine[S]) engine.Machine[S] {
	if st, ok := any(m.State()).(Settled); ok && st.Settled() {
		return m.WithDeadline(time.Time{})
	}

	if r.timeout <= 0 || m.Terminal() {
		return m
	}

	return m.WithDeadline(r.now().Add(r.timeout))
}

// move rebinds m when its state names another thread and keeps thid closed behind it.
func (r *Runner[S]) move(thid string, m engine.Machine[S]) engine.Machine[S] {
	if r.rebind == nil {
		return m
	}

	to := r.rebind(m.State())
	if to == "" || to == thid {
		return m
	}

	if err := r.rebound.Set(thid, m.State()); err != nil {
		logger.Warnf("%s thread %s: remember rebound thread: %s", r.Name(), thid, err)
	}

	if r.journal != nil {
		err := r.journal.Put(protocolstate.Record{
			Namespace: r.Name(),
			ThreadID:  thid,
			Role:      string(m.Role()),
			State:     m.State().Name(),
			ReboundTo: to,
		})
		if err != nil {
			logger.Errorf("journal %s thread %s: %s", r.Name(), thid, err)
		}
	}

	logger.Debugf("%s thread %s moved to %s", r.Name(), thid, to)

	return m.WithThreadID(to)
}

func (r *Runner[S]) commit(ctx context.Context, m engine.Machine[S],
	out []service.DIDCommMsgMap, conn *service.Connection) error {
	r.record(m, inbound(ctx))

	if m.Terminal() {
		r.close(m.ThreadID(), m.State())
	}

	return r.Send(ctx, m.ThreadID(), out, conn)
}

func (r *Runner[S]) record(m engine.Machine[S], msg service.DIDCommMsgMap) {
	state := m.State()

	rec := protocolstate.Record{
		Namespace: r.Name(),
		ThreadID:  m.ThreadID(),
		Role:      string(m.Role()),
		State:     state.Name(),
		Terminal:  state.Terminal(),
	}

	if rep, ok := any(state).(Reporter); ok && rep.ProblemReport() != nil {
		rec.Code = rep.ProblemReport().Code()
	}

	if r.journal != nil {
		if err := r.journal.Put(rec); err != nil {
			logger.Errorf("journal %s thread %s: %s", r.Name(), m.ThreadID(), err)
		}
	}

	var props map[string]interface{}
	if p, ok := any(state).(Propertied); ok {
		props = p.Properties()
	}

	r.Notify(service.StateMsg{
		ProtocolName: r.Name(),
		ThreadID:     m.ThreadID(),
		Role:         string(m.Role()),
		StateID:      state.Name(),
		Terminal:     state.Terminal(),
		Msg:          msg,
		Properties:   props,
	})
}

// Send delivers out to conn. Problem reports are sent best effort. Nothing is sent without a messenger or a
// destination.
func (r *Runner[S]) Send(ctx context.Context, thid string, out []service.DIDCommMsgMap,
	conn *service.Connection) error {
	if len(out) == 0 || r.messenger == nil || conn == nil || conn.Destination == nil {
		return nil
	}

	var errs []error

	for _, msg := range out {
		err := r.messenger.Send(ctx, msg, conn.MyVerKey, conn.Destination)
		if err == nil {
			continue
		}

		if IsProblemReport(msg) {
			logger.Warnf("%s thread %s: problem report not delivered: %s", r.Name(), thid, err)

			continue
		}

		errs = append(errs, fmt.Errorf("send %s: %w", msg.Type(), err))
	}

	return errors.Join(errs...)
}

func (r *Runner[S]) logRejected(m engine.Machine[S], in engine.Input, err error) {
	if errors.Is(err, engine.ErrUnexpected) {
		logger.Warnf("%s thread %s: dropped %s in state %s", r.Name(), m.ThreadID(), in.InputName(),
			m.State().Name())
	}
}

// IsProblemReport tells whether msg is a problem report of any family.
func IsProblemReport(msg service.DIDCommMsgMap) bool {
	t := msg.Type()

	return strings.HasSuffix(t, "/problem-report") || strings.HasSuffix(t, "/problem_report")
}
