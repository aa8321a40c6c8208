package planstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conductor-sh/conductor/pkg/models"
)

// MemoryStore is an in-memory Store used in tests and for ephemeral
// runs where plan history does not need to survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	trees map[string]models.PlanTree
	nodes map[string]models.PlanNode
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trees: make(map[string]models.PlanTree),
		nodes: make(map[string]models.PlanNode),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Migrate is a no-op for the memory store.
func (s *MemoryStore) Migrate() error { return nil }

// CreateTree inserts a new plan tree.
func (s *MemoryStore) CreateTree(t *models.PlanTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trees[t.ID]; exists {
		return fmt.Errorf("plan tree %s already exists", t.ID)
	}
	s.trees[t.ID] = *t
	return nil
}

// GetTree retrieves a plan tree by ID.
func (s *MemoryStore) GetTree(id string) (*models.PlanTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("plan tree %s not found", id)
	}
	return &t, nil
}

// UpdateTree updates an existing plan tree.
func (s *MemoryStore) UpdateTree(t *models.PlanTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trees[t.ID]; !ok {
		return fmt.Errorf("plan tree %s not found", t.ID)
	}
	s.trees[t.ID] = *t
	return nil
}

// ListActiveTrees returns trees whose status is pending or running.
func (s *MemoryStore) ListActiveTrees() ([]models.PlanTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trees []models.PlanTree
	for _, t := range s.trees {
		if t.Status == models.TreeStatusPending || t.Status == models.TreeStatusRunning {
			trees = append(trees, t)
		}
	}
	sortTreesByCreation(trees)
	return trees, nil
}

// ListTreesByStatus returns trees with the given status, oldest first.
func (s *MemoryStore) ListTreesByStatus(status models.TreeStatus) ([]models.PlanTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trees []models.PlanTree
	for _, t := range s.trees {
		if t.Status == status {
			trees = append(trees, t)
		}
	}
	sortTreesByCreation(trees)
	return trees, nil
}

// CreateNode inserts a new plan node after validating its parent.
func (s *MemoryStore) CreateNode(n *models.PlanNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("plan node %s already exists", n.ID)
	}
	if n.ParentID != "" {
		parent, ok := s.nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("parent node %s not found", n.ParentID)
		}
		if parent.TreeID != n.TreeID {
			return fmt.Errorf("parent node %s belongs to tree %s, not %s", n.ParentID, parent.TreeID, n.TreeID)
		}
	}
	s.nodes[n.ID] = *n
	return nil
}

// GetNode retrieves a plan node by ID.
func (s *MemoryStore) GetNode(id string) (*models.PlanNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("plan node %s not found", id)
	}
	return &n, nil
}

// UpdateNode updates an existing plan node.
func (s *MemoryStore) UpdateNode(n *models.PlanNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.ID]; !ok {
		return fmt.Errorf("plan node %s not found", n.ID)
	}
	s.nodes[n.ID] = *n
	return nil
}

// ListChildren returns the children of a node ordered by sibling order.
func (s *MemoryStore) ListChildren(parentID string) ([]models.PlanNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []models.PlanNode
	for _, n := range s.nodes {
		if n.ParentID == parentID {
			children = append(children, n)
		}
	}
	sortNodesBySibling(children)
	return children, nil
}

// ListNodesByTree returns every node of a tree in deterministic order.
func (s *MemoryStore) ListNodesByTree(treeID string) ([]models.PlanNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []models.PlanNode
	for _, n := range s.nodes {
		if n.TreeID == treeID {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ParentID != nodes[j].ParentID {
			return nodes[i].ParentID < nodes[j].ParentID
		}
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
	return nodes, nil
}

func sortTreesByCreation(trees []models.PlanTree) {
	sort.Slice(trees, func(i, j int) bool {
		return trees[i].CreatedAt.Before(trees[j].CreatedAt)
	})
}

func sortNodesBySibling(nodes []models.PlanNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
}
