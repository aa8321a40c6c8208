package planstore

import (
	"database/sql"
	"fmt"

	"github.com/conductor-sh/conductor/pkg/models"
)

// CreateNode inserts a new plan node. Non-root nodes must reference an
// existing parent in the same tree.
func (db *DB) CreateNode(n *models.PlanNode) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if n.ParentID != "" {
		var parentTree string
		err := db.conn.QueryRow("SELECT tree_id FROM plan_nodes WHERE id = ?", n.ParentID).Scan(&parentTree)
		if err == sql.ErrNoRows {
			return fmt.Errorf("parent node %s not found", n.ParentID)
		}
		if err != nil {
			return fmt.Errorf("check parent node: %w", err)
		}
		if parentTree != n.TreeID {
			return fmt.Errorf("parent node %s belongs to tree %s, not %s", n.ParentID, parentTree, n.TreeID)
		}
	}

	payload, err := encodeMap(n.Payload)
	if err != nil {
		return fmt.Errorf("encode node payload: %w", err)
	}
	result, err := encodeMap(n.Result)
	if err != nil {
		return fmt.Errorf("encode node result: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO plan_nodes (id, tree_id, parent_id, label, node_type, status, payload, result, priority, sibling_order, attempts, created_at, ready_since, started_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.TreeID, nullString(n.ParentID), n.Label, string(n.NodeType), string(n.Status),
		payload, result, n.Priority, n.Order, n.Attempts,
		formatTime(n.CreatedAt), formatNullableTime(n.ReadySince), formatNullableTime(n.StartedAt), nullString(n.Error))
	if err != nil {
		return fmt.Errorf("insert plan node: %w", err)
	}
	return nil
}

// GetNode retrieves a plan node by ID.
func (db *DB) GetNode(id string) (*models.PlanNode, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(selectNodeColumns+" FROM plan_nodes WHERE id = ?", id)

	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan node %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan node: %w", err)
	}
	return n, nil
}

// UpdateNode updates an existing plan node.
func (db *DB) UpdateNode(n *models.PlanNode) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	payload, err := encodeMap(n.Payload)
	if err != nil {
		return fmt.Errorf("encode node payload: %w", err)
	}
	result, err := encodeMap(n.Result)
	if err != nil {
		return fmt.Errorf("encode node result: %w", err)
	}

	res, err := db.conn.Exec(`
		UPDATE plan_nodes
		SET label = ?, node_type = ?, status = ?, payload = ?, result = ?, priority = ?, sibling_order = ?, attempts = ?, ready_since = ?, started_at = ?, error = ?
		WHERE id = ?
	`, n.Label, string(n.NodeType), string(n.Status), payload, result, n.Priority, n.Order, n.Attempts,
		formatNullableTime(n.ReadySince), formatNullableTime(n.StartedAt), nullString(n.Error), n.ID)
	if err != nil {
		return fmt.Errorf("update plan node: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("plan node %s not found", n.ID)
	}
	return nil
}

// ListChildren returns the children of a node ordered by sibling order.
func (db *DB) ListChildren(parentID string) ([]models.PlanNode, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(selectNodeColumns+`
		FROM plan_nodes WHERE parent_id = ? ORDER BY sibling_order, created_at
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// ListNodesByTree returns every node of a tree ordered for
// deterministic tree reconstruction.
func (db *DB) ListNodesByTree(treeID string) ([]models.PlanNode, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(selectNodeColumns+`
		FROM plan_nodes WHERE tree_id = ? ORDER BY parent_id, sibling_order, created_at
	`, treeID)
	if err != nil {
		return nil, fmt.Errorf("list nodes by tree: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

const selectNodeColumns = `SELECT id, tree_id, parent_id, label, node_type, status, payload, result, priority, sibling_order, attempts, created_at, ready_since, started_at, error`

// scanNode scans one plan node row.
func scanNode(row rowScanner) (*models.PlanNode, error) {
	var n models.PlanNode
	var nodeType, status, createdAt string
	var parentID, payload, result, readySince, startedAt, nodeErr sql.NullString

	err := row.Scan(&n.ID, &n.TreeID, &parentID, &n.Label, &nodeType, &status,
		&payload, &result, &n.Priority, &n.Order, &n.Attempts,
		&createdAt, &readySince, &startedAt, &nodeErr)
	if err != nil {
		return nil, err
	}

	n.ParentID = parentID.String
	n.NodeType = models.NodeType(nodeType)
	n.Status = models.NodeStatus(status)
	n.Error = nodeErr.String
	n.ReadySince = parseNullableTime(readySince)
	n.StartedAt = parseNullableTime(startedAt)

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	n.CreatedAt = created

	n.Payload, err = decodeMap(payload)
	if err != nil {
		return nil, fmt.Errorf("decode node payload: %w", err)
	}
	n.Result, err = decodeMap(result)
	if err != nil {
		return nil, fmt.Errorf("decode node result: %w", err)
	}
	return &n, nil
}

// collectNodes scans all rows into a slice.
func collectNodes(rows *sql.Rows) ([]models.PlanNode, error) {
	var nodes []models.PlanNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}
