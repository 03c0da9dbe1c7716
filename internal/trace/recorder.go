package trace

import (
	"context"
	"fmt"
	"sync"

	"github.com/leapstack-labs/ownsim/pkg/ownership"
)

var _ ownership.Observer = (*Recorder)(nil)

// Recorder buffers tracker events for one session and writes them when
// closed. It is safe for concurrent use.
type Recorder struct {
	store   *Store
	session *Session

	mu      sync.Mutex
	records []EventRecord
	closed  bool
}

// NewRecorder creates a session for source and returns a recorder for it.
func NewRecorder(ctx context.Context, store *Store, source string) (*Recorder, error) {
	sess, err := store.CreateSession(ctx, source)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, session: sess}, nil
}

// SessionID returns the ID of the session being recorded.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// Observe buffers ev. Events after Close are ignored.
func (r *Recorder) Observe(ev ownership.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.records = append(r.records, NewEventRecord(ev))
}

// Close flushes buffered events and completes the session. A non-nil
// runErr marks the session failed. Close is idempotent.
func (r *Recorder) Close(ctx context.Context, runErr error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	records := r.records
	r.records = nil
	r.mu.Unlock()

	if err := r.store.RecordEvents(ctx, r.session.ID, records); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}

	status, msg := StatusCompleted, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	return r.store.CompleteSession(ctx, r.session.ID, status, msg)
}
