// Package planstore provides persistence for plan trees and nodes.
// The engine requires only a narrow boundary from its store: create,
// update, get, and ordered child listing. Both an SQLite-backed store
// and an in-memory store implement it.
package planstore

import (
	"io"

	"github.com/conductor-sh/conductor/pkg/models"
)

// TreeStore handles tree-level persistence operations.
type TreeStore interface {
	CreateTree(t *models.PlanTree) error
	GetTree(id string) (*models.PlanTree, error)
	UpdateTree(t *models.PlanTree) error
	ListActiveTrees() ([]models.PlanTree, error)
	ListTreesByStatus(status models.TreeStatus) ([]models.PlanTree, error)
}

// NodeStore handles node-level persistence operations.
type NodeStore interface {
	CreateNode(n *models.PlanNode) error
	GetNode(id string) (*models.PlanNode, error)
	UpdateNode(n *models.PlanNode) error
	// ListChildren returns the children of a node ordered by their
	// sibling order.
	ListChildren(parentID string) ([]models.PlanNode, error)
	// ListNodesByTree returns every node of a tree ordered by
	// (parent_id, order) so the flat list can be rebuilt into a tree.
	ListNodesByTree(treeID string) ([]models.PlanNode, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence boundary for the plan tree engine.
type Store interface {
	io.Closer
	Migrator
	TreeStore
	NodeStore
}

// Compile-time verification that both backends implement the boundary.
var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)
