package services

import (
	"sync"

	"github.com/prudhvinik1/storefront/internal/repositories"
)

// Watch is the handle of one subscription to a user's session record.
// A stopped watch never becomes active again; start a new one instead.
type Watch struct {
	userID string

	mu      sync.Mutex
	cancel  repositories.CancelFunc
	stopped bool
	err     error
}

func newWatch(userID string) *Watch {
	return &Watch{userID: userID}
}

func (w *Watch) UserID() string {
	return w.userID
}

// Active reports whether the watch is still receiving changes.
func (w *Watch) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.stopped
}

// Err returns the transport error that ended the watch, if any.
func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stop cancels the subscription. It is synchronous and idempotent.
func (w *Watch) Stop() {
	w.claim()
}

// claim stops the watch and reports whether this call was the one that did
// it. Only the claiming caller may act on a mismatch.
func (w *Watch) claim() bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.stopped = true
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// attach records the subscription's cancel func. The store may deliver (and
// the watch may stop) before Subscribe returns, in which case the
// subscription is cancelled right away.
func (w *Watch) attach(cancel repositories.CancelFunc) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		cancel()
		return
	}
	w.cancel = cancel
	w.mu.Unlock()
}

func (w *Watch) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	w.Stop()
}
