package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// Recorder is a queryable event journal.
type Recorder interface {
	Sink
	Recent(limit int) ([]Entry, error)
	Close() error
}

// SQLiteRecorder persists ledger events to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("event journal opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at      INTEGER NOT NULL,
			kind             TEXT NOT NULL,
			from_addr        TEXT,
			to_addr          TEXT,
			value            TEXT,
			epoch            INTEGER,
			interval_seconds INTEGER,
			max_percentage   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Emit stores the event. Failures are logged: the ledger operation has already
// been applied and must not be reported as failed.
func (r *SQLiteRecorder) Emit(ev types.Event) {
	e := NewEntry(ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(
		`INSERT INTO events (recorded_at, kind, from_addr, to_addr, value, epoch, interval_seconds, max_percentage)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.now().Unix(), e.Kind, e.From, e.To, e.Value, e.Epoch, int64(e.IntervalSeconds), int64(e.MaxPercentage),
	)
	if err != nil {
		r.log.Error("record event", zap.String("kind", e.Kind), zap.Error(err))
	}
}

// Recent returns up to limit events, newest first.
func (r *SQLiteRecorder) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, recorded_at, kind, from_addr, to_addr, value, epoch, interval_seconds, max_percentage
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			interval int64
			pct      int64
		)
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.Kind, &e.From, &e.To, &e.Value, &e.Epoch, &interval, &pct); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.IntervalSeconds = uint64(interval)
		e.MaxPercentage = uint8(pct)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
