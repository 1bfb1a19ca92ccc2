// Package postgres persists session events and saved drawings.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/panjf2000/ants/v2"
)

// EventRow represents a session event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Engine    string                 `json:"engine"`
}

// DrawingRow represents a saved user drawing.
type DrawingRow struct {
	DrawingID    int64     `json:"drawing_id"`
	SessionTS    time.Time `json:"session_ts"`
	SessionID    string    `json:"session_id"`
	DrawingIndex int       `json:"drawing_index"`
	Label        string    `json:"label"`
	Image        []byte    `json:"-"`
	SavedAt      time.Time `json:"saved_at"`
}

// Client manages the Postgres connection for event and drawing storage.
// Drawing writes are dispatched through a small worker pool so callers
// on the playback path never block on the database.
type Client struct {
	db     *sql.DB
	engine string
	pool   *ants.Pool
}

// New creates a new Postgres client using environment variables.
// engine identifies this installation in stored rows.
func New(engine string) (*Client, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "stillengine")
	dbname := getEnv("PGDATABASE", "stillengine")
	password := os.Getenv("PGPASSWORD")

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	pool, err := ants.NewPool(4, ants.WithNonblocking(false))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	client := &Client{
		db:     db,
		engine: engine,
		pool:   pool,
	}

	if err := client.createTables(); err != nil {
		pool.Release()
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS session_events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			engine   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_ts ON session_events(ts DESC);

		CREATE TABLE IF NOT EXISTS drawings (
			drawing_id    BIGSERIAL PRIMARY KEY,
			session_ts    TIMESTAMPTZ NOT NULL,
			session_id    TEXT NOT NULL,
			drawing_index INT NOT NULL,
			label         TEXT NOT NULL DEFAULT '',
			image         BYTEA NOT NULL,
			saved_at      TIMESTAMPTZ NOT NULL,
			UNIQUE (session_ts, drawing_index)
		);
		CREATE INDEX IF NOT EXISTS idx_drawings_session_ts ON drawings(session_ts);
	`
	_, err := c.db.Exec(query)
	return err
}

// AppendEvent inserts a session event.
func (c *Client) AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	query := `
		INSERT INTO session_events (ts, level, event, msg, fields, engine)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.engine)
	return err
}

// AppendEventAsync dispatches an event insert through the worker pool,
// so emitters on the playback path never block on the database. done
// (optional) receives the insert result.
func (c *Client) AppendEventAsync(ts time.Time, level, event, msg string, fields map[string]interface{}, done func(error)) error {
	return c.pool.Submit(func() {
		err := c.AppendEvent(ts, level, event, msg, fields)
		if done != nil {
			done(err)
		}
	})
}

// QueryEvents returns the last N events in descending timestamp order.
func (c *Client) QueryEvents(limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, engine
		FROM session_events
		WHERE engine = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.engine, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Engine); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// SaveDrawing stores a drawing blob asynchronously via the worker pool.
// done (optional) is invoked with the insert result once the write
// completes; the caller's goroutine never touches the database.
func (c *Client) SaveDrawing(d DrawingRow, done func(error)) error {
	return c.pool.Submit(func() {
		query := `
			INSERT INTO drawings (session_ts, session_id, drawing_index, label, image, saved_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_ts, drawing_index)
			DO UPDATE SET label = EXCLUDED.label, image = EXCLUDED.image, saved_at = EXCLUDED.saved_at
		`
		_, err := c.db.Exec(query, d.SessionTS, d.SessionID, d.DrawingIndex, d.Label, d.Image, d.SavedAt)
		if done != nil {
			done(err)
		}
	})
}

// QueryDrawings returns all drawings of one session, by drawing index.
func (c *Client) QueryDrawings(sessionTS time.Time) ([]DrawingRow, error) {
	query := `
		SELECT drawing_id, session_ts, session_id, drawing_index, label, image, saved_at
		FROM drawings
		WHERE session_ts = $1
		ORDER BY drawing_index ASC
	`
	rows, err := c.db.Query(query, sessionTS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DrawingRow
	for rows.Next() {
		var d DrawingRow
		if err := rows.Scan(&d.DrawingID, &d.SessionTS, &d.SessionID, &d.DrawingIndex, &d.Label, &d.Image, &d.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, rows.Err()
}

// Close releases the worker pool and the database connection.
func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Release()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
