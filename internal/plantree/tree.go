package plantree

import (
	"fmt"
	"sort"

	"github.com/conductor-sh/conductor/pkg/models"
)

// TreeView is the in-memory rose-tree reconstruction of a flat node
// list. It exists for introspection and status display; the scheduler
// itself always works from the flat arena.
type TreeView struct {
	// Tree is the tree record.
	Tree models.PlanTree
	// Root is the reconstructed root node view.
	Root *NodeView
}

// NodeView is one node with its resolved children.
type NodeView struct {
	// Node is the node record.
	Node models.PlanNode
	// Children are the node's children in sibling order.
	Children []*NodeView
}

// BuildView reconstructs the tree view for a tree ID. The
// reconstruction is iterative over the flat list; no recursion into
// storage.
func (e *Engine) BuildView(treeID string) (*TreeView, error) {
	tree, err := e.store.GetTree(treeID)
	if err != nil {
		return nil, err
	}
	nodes, err := e.store.ListNodesByTree(treeID)
	if err != nil {
		return nil, err
	}

	views := make(map[string]*NodeView, len(nodes))
	for i := range nodes {
		views[nodes[i].ID] = &NodeView{Node: nodes[i]}
	}

	var root *NodeView
	for i := range nodes {
		n := &nodes[i]
		view := views[n.ID]
		if n.ParentID == "" {
			if root != nil {
				return nil, fmt.Errorf("tree %s has multiple roots", treeID)
			}
			root = view
			continue
		}
		parent, ok := views[n.ParentID]
		if !ok {
			return nil, fmt.Errorf("node %s references missing parent %s", n.ID, n.ParentID)
		}
		parent.Children = append(parent.Children, view)
	}
	if root == nil {
		return nil, fmt.Errorf("tree %s has no root node", treeID)
	}

	for _, v := range views {
		sort.SliceStable(v.Children, func(i, j int) bool {
			if v.Children[i].Node.Order != v.Children[j].Node.Order {
				return v.Children[i].Node.Order < v.Children[j].Node.Order
			}
			return v.Children[i].Node.CreatedAt.Before(v.Children[j].Node.CreatedAt)
		})
	}

	return &TreeView{Tree: *tree, Root: root}, nil
}

// CountByStatus tallies the view's nodes by status.
func (v *TreeView) CountByStatus() map[models.NodeStatus]int {
	counts := make(map[models.NodeStatus]int)
	var walk func(n *NodeView)
	walk = func(n *NodeView) {
		counts[n.Node.Status]++
		for _, c := range n.Children {
			walk(c)
		}
	}
	if v.Root != nil {
		walk(v.Root)
	}
	return counts
}
