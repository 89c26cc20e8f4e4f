package scoring

import (
	"fmt"

	"github.com/blockscope/blockscope/pkg/block"
)

// ComplexityMetric grades cyclomatic complexity.
type ComplexityMetric struct {
	Tier Tier
}

func (m *ComplexityMetric) Key() string  { return "complexity" }
func (m *ComplexityMetric) Name() string { return "Cyclomatic complexity" }

func (m *ComplexityMetric) Evaluate(metrics *block.Metrics) MetricResult {
	result := MetricResult{Key: m.Key(), Name: m.Name(), Value: metrics.Complexity}
	result.Grade = m.Tier.Grade(metrics.Complexity)

	switch result.Grade {
	case block.Complex:
		result.Note = fmt.Sprintf("High complexity (score %d)", metrics.Complexity)
	case block.Warning:
		result.Note = fmt.Sprintf("Severe complexity (score %d)", metrics.Complexity)
	}
	return result
}
