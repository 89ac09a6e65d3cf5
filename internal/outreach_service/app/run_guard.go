package app

import "sync"

// RunGuard is the single process-wide run slot. The console allows exactly one
// live login session, so at most one sync or dispatch run may be active; this
// is a resource constraint, not a throughput choice. Acquisition never queues:
// a second caller is rejected immediately.
type RunGuard struct {
	mu      sync.Mutex
	running bool
}

// NewRunGuard creates a released guard.
func NewRunGuard() *RunGuard {
	return &RunGuard{}
}

// TryAcquire claims the run slot, reporting false if it is already held.
func (g *RunGuard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

// Release frees the run slot. Safe to call on every exit path.
func (g *RunGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// Held reports whether the slot is currently claimed.
func (g *RunGuard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}
