package scoring

import (
	"fmt"

	"github.com/blockscope/blockscope/pkg/block"
)

// LineCountMetric grades block length.
type LineCountMetric struct {
	Tier Tier
}

func (m *LineCountMetric) Key() string  { return "line_count" }
func (m *LineCountMetric) Name() string { return "Line count" }

func (m *LineCountMetric) Evaluate(metrics *block.Metrics) MetricResult {
	result := MetricResult{Key: m.Key(), Name: m.Name(), Value: metrics.Lines}
	result.Grade = m.Tier.Grade(metrics.Lines)

	switch result.Grade {
	case block.Complex:
		result.Note = "Long function: consider splitting"
	case block.Warning:
		result.Note = fmt.Sprintf("Very long function (%d lines): split it", metrics.Lines)
	}
	return result
}
