package capture

import (
	"context"
	"sync"
	"time"

	"attendserver/cloudlog"

	"github.com/sirupsen/logrus"
)

// Registry keeps one Flow per signed-in user and releases flows that have been left open.
type Registry struct {
	mu    sync.Mutex
	flows map[string]*Flow
	ttl   time.Duration
	now   func() time.Time
}

// NewRegistry returns a registry that releases flows idle for longer than ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		flows: make(map[string]*Flow),
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetClock replaces the registry clock. Only flows created afterwards use it.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Get returns the user's flow, creating an Idle one when there is none.
func (r *Registry) Get(userID string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[userID]
	if !ok {
		f = NewFlow(userID, r.now)
		r.flows[userID] = f
	}
	return f
}

// Drop discards the user's flow, e.g. on logout.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	delete(r.flows, userID)
	r.mu.Unlock()
}

// Reap releases every flow idle since before now-ttl and returns how many were released.
func (r *Registry) Reap() int {
	r.mu.Lock()
	deadline := r.now().Add(-r.ttl)
	var expired []string
	for userID, f := range r.flows {
		if f.release(deadline) {
			expired = append(expired, userID)
		}
	}
	for _, userID := range expired {
		delete(r.flows, userID)
	}
	r.mu.Unlock()
	if len(expired) > 0 {
		cloudlog.WithFields(logrus.Fields{"count": len(expired)}).Debug("Released idle capture flows")
	}
	return len(expired)
}

// Len returns the number of tracked flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Run reaps on every interval until ctx is done. A non-positive interval uses the TTL.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Reap()
		case <-ctx.Done():
			return
		}
	}
}
