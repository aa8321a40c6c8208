package conductor

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CycleRow is one persisted cycle summary.
type CycleRow struct {
	// Tick is the cycle's tick sequence number.
	Tick uint64
	// Duration is how long the full cycle took.
	Duration time.Duration
	// ActionsTaken counts actions applied in the cycle.
	ActionsTaken int
	// Chiefs lists the domains that ran.
	Chiefs []string
	// FailedTurns counts turns aborted by an error.
	FailedTurns int
	// RecordedAt is when the summary was written.
	RecordedAt time.Time
}

// CycleHistory persists cycle summaries so operators can inspect recent
// scheduling activity after the process exits.
type CycleHistory struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenCycleHistory opens (and migrates) a cycle history database at the
// given path. The reserved path ":memory:" keeps history in memory.
func OpenCycleHistory(dbPath string) (*CycleHistory, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			actions_taken INTEGER NOT NULL,
			chiefs TEXT NOT NULL,
			failed_turns INTEGER NOT NULL,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_summaries_tick ON cycle_summaries(tick);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &CycleHistory{db: db}, nil
}

// Append records one cycle summary.
func (h *CycleHistory) Append(s *CycleSummary) error {
	chiefs, err := json.Marshal(s.Chiefs)
	if err != nil {
		return fmt.Errorf("encode chief list: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.db.Exec(`
		INSERT INTO cycle_summaries (tick, duration_ms, actions_taken, chiefs, failed_turns, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.Tick, float64(s.Duration)/float64(time.Millisecond), s.ActionsTaken,
		string(chiefs), len(s.FailedTurns()), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert cycle summary: %w", err)
	}
	return nil
}

// Recent returns up to n most recent cycle rows, newest first.
func (h *CycleHistory) Recent(n int) ([]CycleRow, error) {
	if n <= 0 {
		n = 20
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.Query(`
		SELECT tick, duration_ms, actions_taken, chiefs, failed_turns, recorded_at
		FROM cycle_summaries ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query cycle summaries: %w", err)
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var r CycleRow
		var durMS float64
		var chiefs, recordedAt string
		if err := rows.Scan(&r.Tick, &durMS, &r.ActionsTaken, &chiefs, &r.FailedTurns, &recordedAt); err != nil {
			return out, fmt.Errorf("scan cycle summary: %w", err)
		}
		r.Duration = time.Duration(durMS * float64(time.Millisecond))
		if err := json.Unmarshal([]byte(chiefs), &r.Chiefs); err != nil {
			return out, fmt.Errorf("decode chief list: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			r.RecordedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (h *CycleHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Close()
}
