package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeAppender stands in for the Postgres sink; done runs inline so
// tests see the failure path without a worker pool.
type fakeAppender struct {
	mu      sync.Mutex
	appends []string
	err     error
}

func (f *fakeAppender) AppendEventAsync(ts time.Time, level, event, msg string, fields map[string]interface{}, done func(error)) error {
	f.mu.Lock()
	f.appends = append(f.appends, event)
	err := f.err
	f.mu.Unlock()
	if done != nil {
		done(err)
	}
	return nil
}

func swapAppender(t *testing.T, a eventAppender) {
	t.Helper()
	pgMu.Lock()
	prev, prevLogged := appender, pgErrorLogged
	appender = a
	pgErrorLogged = false
	pgMu.Unlock()
	t.Cleanup(func() {
		pgMu.Lock()
		appender, pgErrorLogged = prev, prevLogged
		pgMu.Unlock()
	})
}

func TestEmitDispatchesPersistence(t *testing.T) {
	fa := &fakeAppender{}
	swapAppender(t, fa)

	if _, err := Emit("info", "segment.started", "", nil); err != nil {
		t.Fatalf("unexpected emit error: %v", err)
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.appends) != 1 || fa.appends[0] != "segment.started" {
		t.Errorf("expected one dispatched append, got %v", fa.appends)
	}
}

func TestPersistFailureRecordedOnce(t *testing.T) {
	Clear()
	fa := &fakeAppender{err: errors.New("connection refused")}
	swapAppender(t, fa)

	Emit("info", "segment.started", "", nil)
	Emit("info", "segment.completed", "", nil)

	var errCount int
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errCount++
		}
	}
	if errCount != 1 {
		t.Errorf("expected exactly one persistence error event, got %d", errCount)
	}
}
