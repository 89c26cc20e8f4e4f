package engine

import (
	"fmt"

	"github.com/blockscope/blockscope/pkg/block"
)

// OnReplace records that a block's source was replaced with newText. Only
// that block's analysis is invalidated; its own grade is recomputed and the
// rollup of every ancestor refreshed. Children keep their analyses.
func (e *Engine) OnReplace(id, newText string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.tree.Node(id)
	if !ok {
		return fmt.Errorf("replace %q: %w", id, ErrUnknownNode)
	}
	if n.Kind == block.KindDirectory {
		return fmt.Errorf("replace %q: %w", id, ErrNotReplaceable)
	}

	metrics := n.Metrics()
	if e.cfg.MetricsFunc != nil {
		metrics = e.cfg.MetricsFunc(n, newText)
	}
	before := n.Fingerprint()
	if _, err := e.tree.Replace(id, newText, metrics); err != nil {
		return err
	}

	e.cache.Invalidate(id)
	if _, err := e.scorer.Rescore(e.tree, id); err != nil {
		return err
	}
	root := e.scorer.RollUp(e.tree)

	e.log.Debug("block replaced",
		"node", id,
		"fingerprint_changed", before != n.Fingerprint(),
		"grade", n.OwnGrade(),
		"root_grade", root)
	return nil
}
