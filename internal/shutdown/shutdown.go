// Package shutdown implements the broadcast shutdown signal described in
// spec.md §5: a close-based fan-out notification, an active-subscriber
// count, and a drain loop that polls every 5 seconds and logs a warning
// while any worker remains subscribed.
package shutdown

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// pollInterval is how often WaitDrain re-checks the active subscriber
// count, grounded on the original Rust main.rs's `sleep(Duration::from_secs(5))`
// poll/log loop.
const pollInterval = 5 * time.Second

// Broadcaster is the Go analogue of `tokio::sync::broadcast::channel::<()>(10)`:
// closing ch, instead of sending on a bounded channel, notifies every
// subscriber at once with no capacity bound to size up front.
type Broadcaster struct {
	ch       chan struct{}
	active   atomic.Int64
	shutOnce atomic.Bool
}

// New constructs a Broadcaster ready to accept subscribers.
func New() *Broadcaster {
	return &Broadcaster{ch: make(chan struct{})}
}

// Subscription is a worker's handle on the shutdown signal; it must call
// Done when the worker exits so WaitDrain's count reflects reality.
type Subscription struct {
	b *Broadcaster
}

// Subscribe registers one worker and returns its subscription.
func (b *Broadcaster) Subscribe() *Subscription {
	b.active.Add(1)
	return &Subscription{b: b}
}

// Done unregisters the worker. Safe to call exactly once per Subscription.
func (s *Subscription) Done() {
	s.b.active.Add(-1)
}

// C returns the channel that closes when Shutdown is called, for use in a
// select alongside the worker's own I/O.
func (s *Subscription) C() <-chan struct{} {
	return s.b.ch
}

// Shutdown broadcasts the signal to every current and future receiver of
// C(). Safe to call more than once; only the first call has effect.
func (b *Broadcaster) Shutdown() {
	if b.shutOnce.CompareAndSwap(false, true) {
		close(b.ch)
	}
}

// WaitDrain blocks until every subscribed worker has called Done, polling
// every 5 seconds and logging a warning while workers remain. Intended to
// run after Shutdown has been called.
func (b *Broadcaster) WaitDrain(ctx context.Context, logger *slog.Logger) {
	for {
		if b.active.Load() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
			logger.Warn("waiting for workers to exit", "active", b.active.Load())
		}
	}
}
