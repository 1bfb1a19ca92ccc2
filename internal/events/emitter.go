package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietroom/stillengine/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

var totalCount int64

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return atomic.LoadInt64(&totalCount)
}

// eventAppender is the asynchronous persistence sink for emitted
// events. *postgres.Client satisfies it via its worker pool.
type eventAppender interface {
	AppendEventAsync(ts time.Time, level, event, msg string, fields map[string]interface{}, done func(error)) error
}

var (
	pgClient      *postgres.Client
	appender      eventAppender
	pgMu          sync.RWMutex
	pgErrorLogged bool
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	if client != nil {
		appender = client
	} else {
		appender = nil
	}
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client (for API queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)
	atomic.AddInt64(&totalCount, 1)

	// Persistence goes through the storage worker pool; emitters on
	// the playback path never wait on the database.
	pgMu.RLock()
	a := appender
	pgMu.RUnlock()

	if a != nil {
		err := a.AppendEventAsync(ts, level, name, msg, fields, func(err error) {
			if err != nil {
				notePersistFailure(err)
			}
		})
		if err != nil {
			notePersistFailure(err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// notePersistFailure records the first Postgres failure in the ring
// buffer. The error event bypasses Emit so a persistently failing
// database cannot recurse, and only the first failure is recorded.
func notePersistFailure(err error) {
	pgMu.Lock()
	if pgErrorLogged {
		pgMu.Unlock()
		return
	}
	pgErrorLogged = true
	pgMu.Unlock()

	buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "postgres append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
