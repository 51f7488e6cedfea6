/*
Reference implementation of kmutex from github.com/im7mortal/kmutex

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import "sync"

// lockbox is a mutex per key. The mediator side holds the lock of an account while it reads or deletes the
// account's messages.
type lockbox[K comparable] struct {
	c *sync.Cond
	l sync.Locker
	s map[K]struct{}
}

func newLockBox[K comparable]() *lockbox[K] {
	l := sync.Mutex{}

	return &lockbox[K]{c: sync.NewCond(&l), l: &l, s: make(map[K]struct{})}
}

func (km *lockbox[K]) locked(key K) bool {
	_, ok := km.s[key]

	return ok
}

// Unlock lockbox by unique ID.
func (km *lockbox[K]) Unlock(key K) {
	km.l.Lock()
	defer km.l.Unlock()

	delete(km.s, key)
	km.c.Broadcast()
}

// Lock lockbox by unique ID.
func (km *lockbox[K]) Lock(key K) {
	km.l.Lock()
	defer km.l.Unlock()

	for km.locked(key) {
		km.c.Wait()
	}

	km.s[key] = struct{}{}
}
