package block

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when a node id is already present in the tree.
	ErrDuplicateID = errors.New("duplicate node id")
	// ErrUnknownParent is returned when a parent id is not in the tree.
	ErrUnknownParent = errors.New("unknown parent")
	// ErrRootExists is returned when a second root is added.
	ErrRootExists = errors.New("tree already has a root")
)

const noParent = -1

// Spec describes a node to add to a tree.
type Spec struct {
	ID        string
	Name      string
	Kind      Kind
	Language  string
	Path      string // file path relative to the scan root
	StartLine int    // 1-indexed
	EndLine   int    // 1-indexed, inclusive
	Text      string
	Metrics   *Metrics
}

// Node is one block in the tree. Its shape (kind, parent, children) never
// changes after construction. Text and metrics change only through
// Tree.Replace, and the rollup fields are written only by the scorer.
type Node struct {
	ID        string
	Name      string
	Kind      Kind
	Language  string
	Path      string
	StartLine int
	EndLine   int

	text        string
	fingerprint string
	metrics     *Metrics

	index    int
	parent   int
	children []int
	depth    int

	rollupValid  bool
	ownGrade     Grade
	effective    Grade
	warningCount int
	complexCount int
}

// Text returns the node's current source text.
func (n *Node) Text() string { return n.text }

// Fingerprint returns the hash of the node's current source text.
func (n *Node) Fingerprint() string { return n.fingerprint }

// Metrics returns the node's static metrics, or nil.
func (n *Node) Metrics() *Metrics { return n.metrics }

// Depth is the distance from the root (root = 0).
func (n *Node) Depth() int { return n.depth }

// LineCount returns the number of source lines spanned by the node.
func (n *Node) LineCount() int {
	if n.EndLine < n.StartLine || n.StartLine == 0 {
		return 0
	}
	return n.EndLine - n.StartLine + 1
}

// OwnGrade is the grade derived from the node's own metrics at the last rollup.
func (n *Node) OwnGrade() Grade { return n.ownGrade }

// EffectiveGrade is max(own grade, effective grade of every child) at the last rollup.
func (n *Node) EffectiveGrade() Grade { return n.effective }

// WarningCount is the number of descendants whose own grade is Warning.
func (n *Node) WarningCount() int { return n.warningCount }

// ComplexCount is the number of descendants whose own grade is Complex.
func (n *Node) ComplexCount() int { return n.complexCount }

// RollupValid reports whether the cached grade fields are current.
func (n *Node) RollupValid() bool { return n.rollupValid }

// SetRollup stores computed grade fields. Called by the scorer only.
func (n *Node) SetRollup(own, effective Grade, warnings, complexes int) {
	n.ownGrade = own
	n.effective = effective
	n.warningCount = warnings
	n.complexCount = complexes
	n.rollupValid = true
}

// ClearRollup marks the cached grade fields stale. Called by the scorer only.
func (n *Node) ClearRollup() {
	n.rollupValid = false
}

// Tree is an arena of nodes indexed by id. Parents are stored as arena
// indices, so the tree owns every node exactly once.
type Tree struct {
	nodes []*Node
	byID  map[string]int
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{byID: make(map[string]int)}
}

// Add appends a node under parentID. An empty parentID adds the root.
// Children keep insertion order.
func (t *Tree) Add(parentID string, s Spec) (*Node, error) {
	if _, ok := t.byID[s.ID]; ok {
		return nil, fmt.Errorf("add %q: %w", s.ID, ErrDuplicateID)
	}

	parent := noParent
	depth := 0
	if parentID == "" {
		if len(t.nodes) > 0 {
			return nil, fmt.Errorf("add %q: %w", s.ID, ErrRootExists)
		}
	} else {
		idx, ok := t.byID[parentID]
		if !ok {
			return nil, fmt.Errorf("add %q under %q: %w", s.ID, parentID, ErrUnknownParent)
		}
		parent = idx
		depth = t.nodes[idx].depth + 1
	}

	n := &Node{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        s.Kind,
		Language:    s.Language,
		Path:        s.Path,
		StartLine:   s.StartLine,
		EndLine:     s.EndLine,
		text:        s.Text,
		fingerprint: Fingerprint(s.Text),
		metrics:     s.Metrics,
		index:       len(t.nodes),
		parent:      parent,
		depth:       depth,
	}
	t.nodes = append(t.nodes, n)
	t.byID[n.ID] = n.index
	if parent != noParent {
		p := t.nodes[parent]
		p.children = append(p.children, n.index)
	}
	return n, nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Root returns the root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0]
}

// Node looks up a node by id.
func (t *Tree) Node(id string) (*Node, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.nodes[idx], true
}

// Parent returns the node's parent, or nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	if n.parent == noParent {
		return nil
	}
	return t.nodes[n.parent]
}

// Children returns the node's children in source order.
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, len(n.children))
	for i, idx := range n.children {
		out[i] = t.nodes[idx]
	}
	return out
}

// Ancestors returns the node's ancestors, nearest first, ending at the root.
func (t *Tree) Ancestors(n *Node) []*Node {
	var out []*Node
	for p := t.Parent(n); p != nil; p = t.Parent(p) {
		out = append(out, p)
	}
	return out
}

// Walk visits every node in pre-order (parent before children, source order).
// Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	if len(t.nodes) == 0 {
		return
	}
	var visit func(idx int)
	visit = func(idx int) {
		n := t.nodes[idx]
		if !fn(n) {
			return
		}
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(0)
}

// Replace swaps a node's text and metrics and recomputes its fingerprint.
// The tree shape is untouched. When the line count changes, later blocks of
// the same file move and enclosing blocks grow or shrink to match. Empty
// text leaves an empty span that ends one line before it starts.
func (t *Tree) Replace(id, text string, m *Metrics) (*Node, error) {
	n, ok := t.Node(id)
	if !ok {
		return nil, fmt.Errorf("replace %q: node not found", id)
	}
	n.text = text
	n.fingerprint = Fingerprint(text)
	n.metrics = m
	if n.StartLine > 0 {
		oldEnd := n.EndLine
		n.EndLine = n.StartLine + countLines(text) - 1
		if delta := n.EndLine - oldEnd; delta != 0 && n.Path != "" {
			t.shiftLines(n, oldEnd, delta)
		}
	}
	return n, nil
}

// shiftLines moves the spans of blocks in n's file that follow line after
// by delta, and stretches the spans of n's enclosing blocks.
func (t *Tree) shiftLines(n *Node, after, delta int) {
	enclosing := make(map[int]bool)
	for _, a := range t.Ancestors(n) {
		enclosing[a.index] = true
	}
	for _, m := range t.nodes {
		if m == n || m.Path != n.Path || m.Kind == KindDirectory || m.StartLine == 0 {
			continue
		}
		switch {
		case enclosing[m.index]:
			m.EndLine += delta
		case m.StartLine > after:
			m.StartLine += delta
			m.EndLine += delta
		}
	}
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := 1
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i != len(text)-1 {
			lines++
		}
	}
	return lines
}
