package trajectory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conductor-sh/conductor/pkg/models"
)

// SQLiteSink persists trajectory records for the external trainer.
type SQLiteSink struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// DefaultDBPath returns the path to the trajectory database under the
// XDG data directory.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "conductor", "trajectory.db")
}

// OpenSQLite opens (and migrates) a trajectory database at the given
// path, creating parent directories as needed.
func OpenSQLite(dbPath string) (*SQLiteSink, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	_, err = conn.Exec(`
		CREATE TABLE IF NOT EXISTS trajectory_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chief TEXT NOT NULL,
			tick INTEGER NOT NULL,
			state TEXT NOT NULL,
			action TEXT NOT NULL,
			reward REAL NOT NULL,
			next_state TEXT NOT NULL,
			done INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trajectory_chief_tick ON trajectory_steps(chief, tick);
	`)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create trajectory schema: %w", err)
	}

	return &SQLiteSink{db: conn, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *SQLiteSink) Path() string { return s.dbPath }

// Append records one step.
func (s *SQLiteSink) Append(chief string, tick uint64, step models.TrajectoryStep) error {
	if !step.Valid() {
		return fmt.Errorf("reject step for chief %s at tick %d: reward is not finite", chief, tick)
	}

	state, err := json.Marshal(step.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	action, err := json.Marshal(step.Action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	nextState, err := json.Marshal(step.NextState)
	if err != nil {
		return fmt.Errorf("encode next state: %w", err)
	}

	var metadata []byte
	if step.Metadata != nil {
		metadata, err = json.Marshal(step.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	done := 0
	if step.Done {
		done = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO trajectory_steps (chief, tick, state, action, reward, next_state, done, metadata, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chief, tick, string(state), string(action), step.Reward, string(nextState), done,
		nullableJSON(metadata), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert trajectory step: %w", err)
	}
	return nil
}

// Export streams all records in (chief, tick) order to fn. It returns
// the number of exported records.
func (s *SQLiteSink) Export(fn func(Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT chief, tick, state, action, reward, next_state, done, metadata
		FROM trajectory_steps ORDER BY chief, tick, id
	`)
	if err != nil {
		return 0, fmt.Errorf("query trajectory steps: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var rec Record
		var state, action, nextState string
		var metadata sql.NullString
		var done int

		err := rows.Scan(&rec.Chief, &rec.Tick, &state, &action, &rec.Step.Reward, &nextState, &done, &metadata)
		if err != nil {
			return count, fmt.Errorf("scan trajectory step: %w", err)
		}

		if err := json.Unmarshal([]byte(state), &rec.Step.State); err != nil {
			return count, fmt.Errorf("decode state: %w", err)
		}
		if err := json.Unmarshal([]byte(action), &rec.Step.Action); err != nil {
			return count, fmt.Errorf("decode action: %w", err)
		}
		if err := json.Unmarshal([]byte(nextState), &rec.Step.NextState); err != nil {
			return count, fmt.Errorf("decode next state: %w", err)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Step.Metadata); err != nil {
				return count, fmt.Errorf("decode metadata: %w", err)
			}
		}
		rec.Step.Done = done == 1

		if err := fn(rec); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}

// nullableJSON converts encoded JSON to sql.NullString, treating empty
// as null.
func nullableJSON(data []byte) sql.NullString {
	if len(data) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}
