package common

import (
	"errors"
	"sync/atomic"
)

var ErrReentrancyDetected = errors.New("reentrancy detected")

// ReentrancyGuard admits at most one in-flight mutating call. The zero value
// is ready to use.
type ReentrancyGuard struct {
	held atomic.Bool
}

// Acquire takes the guard. The returned release func must be deferred by the
// caller; it is idempotent so double release never clears a later holder.
func (g *ReentrancyGuard) Acquire() (func(), error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, ErrReentrancyDetected
	}
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.held.Store(false)
		}
	}, nil
}

// Held reports whether a call currently owns the guard.
func (g *ReentrancyGuard) Held() bool {
	return g.held.Load()
}
