/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/engine"
)

type machine struct {
	name     string
	terminal bool
	deadline time.Time
}

func (m machine) Role() engine.Role   { return engine.RoleIssuer }
func (m machine) Terminal() bool      { return m.terminal }
func (m machine) Deadline() time.Time { return m.deadline }

func TestRegistry_Register(t *testing.T) {
	r := New[machine]("issue-credential")
	require.Equal(t, "issue-credential", r.Namespace())

	require.NoError(t, r.Register("thid", machine{name: "a"}))

	err := r.Register("thid", machine{name: "b"})
	require.ErrorIs(t, err, ErrDuplicateThread)

	var dup *DuplicateThreadError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "thid", dup.ThreadID)
	require.Equal(t, "issue-credential: thread thid already registered", err.Error())

	// a checked out machine still owns its thread id
	_, err = r.Take(context.Background(), "thid")
	require.NoError(t, err)
	require.ErrorIs(t, r.Register("thid", machine{}), ErrDuplicateThread)

	role, ok := r.LookupRole("thid")
	require.True(t, ok)
	require.Equal(t, engine.RoleIssuer, role)

	_, ok = r.LookupRole("unknown")
	require.False(t, ok)
}

func TestRegistry_TakeReturn(t *testing.T) {
	r := New[machine]("ns")

	_, err := r.Take(context.Background(), "thid")
	require.ErrorIs(t, err, ErrThreadNotFound)

	require.NoError(t, r.Register("thid", machine{name: "a"}))

	m, err := r.Take(context.Background(), "thid")
	require.NoError(t, err)
	require.Equal(t, "a", m.name)

	_, ok := r.TryTake("thid")
	require.False(t, ok)

	require.NoError(t, r.Return("thid", machine{name: "b"}))
	require.ErrorIs(t, r.Return("thid", machine{name: "c"}), ErrNotCheckedOut)
	require.ErrorIs(t, r.Return("unknown", machine{}), ErrThreadNotFound)

	m, ok = r.TryTake("thid")
	require.True(t, ok)
	require.Equal(t, "b", m.name)

	r.Release("thid")

	m, err = r.Take(context.Background(), "thid")
	require.NoError(t, err)
	require.Equal(t, "b", m.name)

	require.NoError(t, r.Return("thid", machine{name: "done", terminal: true}))
	require.Equal(t, 0, r.Len())

	_, err = r.Take(context.Background(), "thid")
	require.ErrorIs(t, err, ErrThreadNotFound)
}

func TestRegistry_TakeHonoursContext(t *testing.T) {
	r := New[machine]("ns")
	require.NoError(t, r.Register("thid", machine{}))

	_, err := r.Take(context.Background(), "thid")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Take(ctx, "thid")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_TakeIsExclusive(t *testing.T) {
	r := New[machine]("ns")
	require.NoError(t, r.Register("thid", machine{}))

	const workers = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			m, err := r.Take(context.Background(), "thid")
			if err != nil {
				return
			}

			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()

			_ = r.Return("thid", m) // nolint: errcheck
		}()
	}

	wg.Wait()
	require.Equal(t, 1, maxSeen)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_RemoveWakesWaiters(t *testing.T) {
	r := New[machine]("ns")
	require.NoError(t, r.Register("thid", machine{}))

	_, err := r.Take(context.Background(), "thid")
	require.NoError(t, err)

	done := make(chan error)

	go func() {
		_, e := r.Take(context.Background(), "thid")
		done <- e
	}()

	r.Remove("thid")
	require.Equal(t, 1, r.Len())
	r.Release("thid")

	select {
	case err = <-done:
		require.ErrorIs(t, err, ErrThreadNotFound)
	case <-time.After(time.Second):
		require.Fail(t, "waiter not woken")
	}

	require.Equal(t, 0, r.Len())

	require.NoError(t, r.Register("other", machine{}))
	r.Remove("other")
	require.Equal(t, 0, r.Len())
}

func TestRegistry_ExpiredAndSweep(t *testing.T) {
	now := time.Now()

	r := New[machine]("ns")
	require.NoError(t, r.Register("b", machine{deadline: now.Add(-time.Second)}))
	require.NoError(t, r.Register("a", machine{deadline: now.Add(-time.Minute)}))
	require.NoError(t, r.Register("c", machine{deadline: now.Add(time.Minute)}))
	require.NoError(t, r.Register("d", machine{}))

	require.Equal(t, []string{"a", "b", "c", "d"}, r.ThreadIDs())
	require.Equal(t, []string{"a", "b"}, r.Expired(now))

	// busy machines are skipped
	_, err := r.Take(context.Background(), "b")
	require.NoError(t, err)

	var timedOut []string

	n := r.Sweep(now, func(thid string, _ machine) {
		timedOut = append(timedOut, thid)
	})
	require.Equal(t, 1, n)
	require.Equal(t, []string{"a"}, timedOut)
	require.Equal(t, []string{"b", "c", "d"}, r.ThreadIDs())
}

type sweepJob struct {
	r *Registry[machine]
}

func (j *sweepJob) Name() string { return "test" }

func (j *sweepJob) SweepExpired(now time.Time) int {
	return j.r.Sweep(now, func(string, machine) {})
}

func TestSweeper(t *testing.T) {
	r := New[machine]("ns")
	require.NoError(t, r.Register("thid", machine{deadline: time.Now().Add(-time.Second)}))

	s := NewSweeper(WithSweepInterval(10*time.Millisecond), WithClock(time.Now))
	s.Add(&sweepJob{r: r})

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Register("again", machine{deadline: time.Now().Add(-time.Second)}))
	require.GreaterOrEqual(t, s.SweepOnce(), 0)
}
