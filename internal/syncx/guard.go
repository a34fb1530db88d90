// Package syncx provides the reader/writer guard the session record lives behind
package syncx

import "sync"

// RWGuard owns a value and only exposes it inside scoped lock callbacks.
// Callbacks must not block: capture and matching happen before or after, never inside.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Read runs fn under the read lock.
func (g *RWGuard[T]) Read(fn func(*T)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(&g.value)
}

// Write runs fn under the write lock; fn receives a pointer for mutation.
func (g *RWGuard[T]) Write(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// View projects a result out of g under the read lock.
func View[T, R any](g *RWGuard[T], fn func(*T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(&g.value)
}

// Mutate runs fn under the write lock and returns its result.
func Mutate[T, R any](g *RWGuard[T], fn func(*T) R) R {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.value)
}
