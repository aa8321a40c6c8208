package planstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/conductor-sh/conductor/pkg/models"
)

// CreateTree inserts a new plan tree.
func (db *DB) CreateTree(t *models.PlanTree) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	metadata, err := encodeMap(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode tree metadata: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO plan_trees (id, goal, domain, status, metadata, root_node_id, created_at, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Goal, t.Domain, string(t.Status), metadata, nullString(t.RootNodeID),
		formatTime(t.CreatedAt), formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt), nullString(t.ErrorMessage))
	if err != nil {
		return fmt.Errorf("insert plan tree: %w", err)
	}
	return nil
}

// GetTree retrieves a plan tree by ID.
func (db *DB) GetTree(id string) (*models.PlanTree, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, goal, domain, status, metadata, root_node_id, created_at, started_at, completed_at, error_message
		FROM plan_trees WHERE id = ?
	`, id)

	t, err := scanTree(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan tree %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan tree: %w", err)
	}
	return t, nil
}

// UpdateTree updates an existing plan tree.
func (db *DB) UpdateTree(t *models.PlanTree) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	metadata, err := encodeMap(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode tree metadata: %w", err)
	}

	result, err := db.conn.Exec(`
		UPDATE plan_trees
		SET goal = ?, domain = ?, status = ?, metadata = ?, root_node_id = ?, started_at = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, t.Goal, t.Domain, string(t.Status), metadata, nullString(t.RootNodeID),
		formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt), nullString(t.ErrorMessage), t.ID)
	if err != nil {
		return fmt.Errorf("update plan tree: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("plan tree %s not found", t.ID)
	}
	return nil
}

// ListActiveTrees returns trees whose status is pending or running.
func (db *DB) ListActiveTrees() ([]models.PlanTree, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, goal, domain, status, metadata, root_node_id, created_at, started_at, completed_at, error_message
		FROM plan_trees WHERE status IN ('pending', 'running') ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active trees: %w", err)
	}
	defer rows.Close()

	return collectTrees(rows)
}

// ListTreesByStatus returns trees with the given status, oldest first.
func (db *DB) ListTreesByStatus(status models.TreeStatus) ([]models.PlanTree, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, goal, domain, status, metadata, root_node_id, created_at, started_at, completed_at, error_message
		FROM plan_trees WHERE status = ? ORDER BY created_at
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list trees by status: %w", err)
	}
	defer rows.Close()

	return collectTrees(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTree scans one plan tree row.
func scanTree(row rowScanner) (*models.PlanTree, error) {
	var t models.PlanTree
	var status, createdAt string
	var metadata, rootNodeID, startedAt, completedAt, errorMessage sql.NullString

	err := row.Scan(&t.ID, &t.Goal, &t.Domain, &status, &metadata, &rootNodeID,
		&createdAt, &startedAt, &completedAt, &errorMessage)
	if err != nil {
		return nil, err
	}

	t.Status = models.TreeStatus(status)
	t.RootNodeID = rootNodeID.String
	t.ErrorMessage = errorMessage.String
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = created

	t.Metadata, err = decodeMap(metadata)
	if err != nil {
		return nil, fmt.Errorf("decode tree metadata: %w", err)
	}
	return &t, nil
}

// collectTrees scans all rows into a slice.
func collectTrees(rows *sql.Rows) ([]models.PlanTree, error) {
	var trees []models.PlanTree
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan tree: %w", err)
		}
		trees = append(trees, *t)
	}
	return trees, rows.Err()
}

// encodeMap JSON-encodes a map for storage, treating nil as null.
func encodeMap(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeMap decodes a stored JSON map, treating null as nil.
func decodeMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
