package scoring

import (
	"fmt"

	"github.com/blockscope/blockscope/pkg/block"
)

// Metric is the interface that all grading metrics implement.
type Metric interface {
	// Key returns the machine-readable metric identifier.
	Key() string
	// Name returns the human-readable metric name.
	Name() string
	// Evaluate grades one block's metrics. metrics is never nil.
	Evaluate(metrics *block.Metrics) MetricResult
}

// Scorer grades blocks and rolls grades up a tree.
// It is not safe for concurrent use on the same tree; callers serialize.
type Scorer struct {
	metrics []Metric
}

// NewScorer creates a scorer with the default metrics for th.
func NewScorer(th Thresholds) *Scorer {
	return NewScorerWithMetrics(DefaultMetrics(th)...)
}

// NewScorerWithMetrics creates a scorer with the given metrics.
func NewScorerWithMetrics(metrics ...Metric) *Scorer {
	return &Scorer{metrics: metrics}
}

// Evaluate runs every metric against the node. Nodes without metrics
// produce no results.
func (s *Scorer) Evaluate(n *block.Node) []MetricResult {
	m := n.Metrics()
	if m == nil {
		return nil
	}
	results := make([]MetricResult, 0, len(s.metrics))
	for _, metric := range s.metrics {
		results = append(results, metric.Evaluate(m))
	}
	return results
}

// Score returns the node's own grade: the worst grade across its metrics,
// or Clean when the node has none.
func (s *Scorer) Score(n *block.Node) block.Grade {
	grade := block.Clean
	for _, r := range s.Evaluate(n) {
		grade = block.Worst(grade, r.Grade)
	}
	return grade
}

// RollUp recomputes every stale node bottom-up and returns the root's
// effective grade. Subtrees whose rollup is still valid are reused.
func (s *Scorer) RollUp(t *block.Tree) block.Grade {
	root := t.Root()
	if root == nil {
		return block.Clean
	}
	s.rollUp(t, root)
	return root.EffectiveGrade()
}

func (s *Scorer) rollUp(t *block.Tree, n *block.Node) {
	if n.RollupValid() {
		return
	}

	own := s.Score(n)
	effective := own
	warnings, complexes := 0, 0

	for _, c := range t.Children(n) {
		s.rollUp(t, c)
		effective = block.Worst(effective, c.EffectiveGrade())
		warnings += c.WarningCount()
		complexes += c.ComplexCount()
		switch c.OwnGrade() {
		case block.Warning:
			warnings++
		case block.Complex:
			complexes++
		}
	}

	n.SetRollup(own, effective, warnings, complexes)
}

// InvalidateRollup marks the node and every ancestor up to the root stale.
// Descendants keep their cached grades.
func (s *Scorer) InvalidateRollup(t *block.Tree, id string) error {
	n, ok := t.Node(id)
	if !ok {
		return fmt.Errorf("invalidate rollup: node %q not found", id)
	}
	n.ClearRollup()
	for _, a := range t.Ancestors(n) {
		a.ClearRollup()
	}
	return nil
}

// Rescore recomputes a node's own grade after its metrics changed and
// marks its ancestors stale. The next RollUp propagates the new grade.
func (s *Scorer) Rescore(t *block.Tree, id string) (block.Grade, error) {
	if err := s.InvalidateRollup(t, id); err != nil {
		return block.Clean, err
	}
	n, _ := t.Node(id)
	return s.Score(n), nil
}

// Notes returns human-readable findings for a node: its own metric notes,
// then rollup notes counting graded descendants.
func (s *Scorer) Notes(n *block.Node) []string {
	var notes []string
	for _, r := range s.Evaluate(n) {
		if r.Note != "" {
			notes = append(notes, r.Note)
		}
	}

	singular, plural := "function", "functions"
	if n.Kind == block.KindDirectory {
		singular, plural = "child", "children"
	}
	if w := n.WarningCount(); w > 0 {
		notes = append(notes, fmt.Sprintf("Contains %d high-risk %s", w, pluralize(w, singular, plural)))
	}
	if c := n.ComplexCount(); c > 0 {
		notes = append(notes, fmt.Sprintf("%d complex %s inside", c, pluralize(c, singular, plural)))
	}
	return notes
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
