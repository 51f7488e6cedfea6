/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package registry keeps the live protocol machines of one protocol service, keyed by thread id. A machine is
// checked out for exclusive mutation with Take and committed back with Return, so transitions of one thread are
// applied one at a time in arrival order while different threads proceed in parallel.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
)

var (
	// ErrDuplicateThread is returned when a machine is registered for a thread id that is already in use.
	ErrDuplicateThread = errors.New("duplicate thread")
	// ErrThreadNotFound is returned when no machine is registered for a thread id.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrNotCheckedOut is returned when a machine is returned without having been taken.
	ErrNotCheckedOut = errors.New("thread not checked out")
)

// DuplicateThreadError carries the registry namespace and thread id of a duplicate registration.
type DuplicateThreadError struct {
	Namespace string
	ThreadID  string
}

func (e *DuplicateThreadError) Error() string {
	return fmt.Sprintf("%s: thread %s already registered", e.Namespace, e.ThreadID)
}

// Unwrap returns ErrDuplicateThread.
func (e *DuplicateThreadError) Unwrap() error {
	return ErrDuplicateThread
}

// Machine is what the registry needs to know about a stored machine.
type Machine interface {
	Role() engine.Role
	Terminal() bool
	Deadline() time.Time
}

type entry[M Machine] struct {
	machine M
	// token holds one value while the entry is available. Take receives it, Return and Release put it back.
	token   chan struct{}
	removed bool
}

// Registry maps thread ids to machines.
type Registry[M Machine] struct {
	namespace string
	mu        sync.Mutex
	entries   map[string]*entry[M]
}

// New creates an empty registry. namespace names the registry in errors and logs, usually the protocol name.
func New[M Machine](namespace string) *Registry[M] {
	return &Registry[M]{
		namespace: namespace,
		entries:   make(map[string]*entry[M]),
	}
}

// Namespace returns the registry namespace.
func (r *Registry[M]) Namespace() string {
	return r.namespace
}

// Register adds a new machine. It fails with ErrDuplicateThread when thid is already registered, whether or not
// the existing machine is checked out.
func (r *Registry[M]) Register(thid string, m M) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[thid]; ok {
		return &DuplicateThreadError{Namespace: r.namespace, ThreadID: thid}
	}

	e := &entry[M]{machine: m, token: make(chan struct{}, 1)}
	e.token <- struct{}{}

	r.entries[thid] = e

	return nil
}

// Take checks out the machine of thid. It blocks while another caller holds it; waiters are served in arrival
// order. The caller must give it back with Return or Release.
func (r *Registry[M]) Take(ctx context.Context, thid string) (M, error) {
	var zero M

	r.mu.Lock()
	e, ok := r.entries[thid]
	r.mu.Unlock()

	if !ok {
		return zero, fmt.Errorf("%s %s: %w", r.namespace, thid, ErrThreadNotFound)
	}

	select {
	case <-e.token:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[thid] != e {
		// dropped while waiting, pass the token on to the next waiter
		e.token <- struct{}{}

		return zero, fmt.Errorf("%s %s: %w", r.namespace, thid, ErrThreadNotFound)
	}

	return e.machine, nil
}

// TryTake checks out the machine of thid without waiting. It returns false when the thread is unknown or busy.
func (r *Registry[M]) TryTake(thid string) (M, bool) {
	var zero M

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[thid]
	if !ok {
		return zero, false
	}

	select {
	case <-e.token:
		return e.machine, true
	default:
		return zero, false
	}
}

// Return commits a checked out machine. Terminal machines are removed.
func (r *Registry[M]) Return(thid string, m M) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[thid]
	if !ok {
		return fmt.Errorf("%s %s: %w", r.namespace, thid, ErrThreadNotFound)
	}

	if len(e.token) > 0 {
		return fmt.Errorf("%s %s: %w", r.namespace, thid, ErrNotCheckedOut)
	}

	if m.Terminal() || e.removed {
		delete(r.entries, thid)
	} else {
		e.machine = m
	}

	e.token <- struct{}{}

	return nil
}

// Release gives a checked out machine back unchanged.
func (r *Registry[M]) Release(thid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[thid]
	if !ok || len(e.token) > 0 {
		return
	}

	if e.removed {
		delete(r.entries, thid)
	}

	e.token <- struct{}{}
}

// Remove drops the machine of thid. A checked out machine is dropped when it is given back.
func (r *Registry[M]) Remove(thid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[thid]
	if !ok {
		return
	}

	if len(e.token) > 0 {
		delete(r.entries, thid)

		return
	}

	e.removed = true
}

// LookupRole returns the local role on thid.
func (r *Registry[M]) LookupRole(thid string) (engine.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[thid]
	if !ok {
		return "", false
	}

	return e.machine.Role(), true
}

// Len returns the number of registered machines.
func (r *Registry[M]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// ThreadIDs returns the registered thread ids, sorted.
func (r *Registry[M]) ThreadIDs() []string {
	r.mu.Lock()
	ids := maps.Keys(r.entries)
	r.mu.Unlock()

	slices.Sort(ids)

	return ids
}

// Expired returns the sorted thread ids of machines whose deadline passed at now.
func (r *Registry[M]) Expired(now time.Time) []string {
	r.mu.Lock()

	var ids []string

	for thid, e := range r.entries {
		if d := e.machine.Deadline(); !d.IsZero() && now.After(d) {
			ids = append(ids, thid)
		}
	}

	r.mu.Unlock()

	slices.Sort(ids)

	return ids
}

// Sweep times out every idle expired machine: it checks the machine out, hands it to timeout and drops the
// entry. Busy machines are left to the caller holding them. It returns the number of machines swept.
func (r *Registry[M]) Sweep(now time.Time, timeout func(thid string, m M)) int {
	swept := 0

	for _, thid := range r.Expired(now) {
		m, ok := r.TryTake(thid)
		if !ok {
			continue
		}

		timeout(thid, m)

		r.Remove(thid)
		r.Release(thid)

		swept++
	}

	return swept
}
