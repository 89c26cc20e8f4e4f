// Package scoring implements the Blockscope quality scorer.
// It grades each block from its static metrics and rolls the worst grade up
// the tree, so a single bad function surfaces all the way to the root.
package scoring

import "github.com/blockscope/blockscope/pkg/block"

// MetricResult is the output of a single metric for one block.
type MetricResult struct {
	Key   string      `json:"key"`  // machine key: "complexity"
	Name  string      `json:"name"` // human name: "Cyclomatic complexity"
	Value int         `json:"value"`
	Grade block.Grade `json:"grade"`
	Note  string      `json:"note,omitempty"` // set when Grade > Clean
}

// Tier is a two-tier threshold. A value at or above Complex grades Complex;
// at or above Warning grades Warning. A zero or negative tier is disabled.
type Tier struct {
	Complex int `yaml:"complex" json:"complex"`
	Warning int `yaml:"warning" json:"warning"`
}

// Grade maps a metric value onto the tier.
func (t Tier) Grade(v int) block.Grade {
	switch {
	case t.Warning > 0 && v >= t.Warning:
		return block.Warning
	case t.Complex > 0 && v >= t.Complex:
		return block.Complex
	default:
		return block.Clean
	}
}

// Thresholds holds one tier per metric.
type Thresholds struct {
	Complexity Tier `yaml:"complexity" json:"complexity"`
	Lines      Tier `yaml:"lines" json:"lines"`
	Params     Tier `yaml:"params" json:"params"`
}
