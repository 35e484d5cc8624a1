// Package buildlock provides the single process-wide mutual exclusion
// primitive that serializes toolchain subprocess invocations.
package buildlock

import "sync/atomic"

// Lock serializes toolchain invocations across all concurrent compile
// requests. It is held only around the toolchain subprocess call, never
// around extraction, fingerprinting, or archive packing.
type Lock struct {
	ch   chan struct{}
	held atomic.Bool
}

// New returns an unheld Lock.
func New() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free, then takes it. The caller must
// call Release on every exit path, including panics and cancellations.
func (l *Lock) Acquire() {
	l.ch <- struct{}{}
	l.held.Store(true)
}

// Release frees the lock.
func (l *Lock) Release() {
	l.held.Store(false)
	<-l.ch
}

// IsHeld is a non-blocking probe used by the /compile/wasm/inuse
// endpoint. It makes no fairness guarantee about who will acquire the
// lock next.
func (l *Lock) IsHeld() bool {
	return l.held.Load()
}
