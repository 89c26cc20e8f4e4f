package scoring

import (
	"fmt"

	"github.com/blockscope/blockscope/pkg/block"
)

// ParamCountMetric grades the number of parameters.
type ParamCountMetric struct {
	Tier Tier
}

func (m *ParamCountMetric) Key() string  { return "param_count" }
func (m *ParamCountMetric) Name() string { return "Parameter count" }

func (m *ParamCountMetric) Evaluate(metrics *block.Metrics) MetricResult {
	result := MetricResult{Key: m.Key(), Name: m.Name(), Value: metrics.Params}
	result.Grade = m.Tier.Grade(metrics.Params)

	switch result.Grade {
	case block.Complex:
		result.Note = "Many parameters: consider grouping"
	case block.Warning:
		result.Note = fmt.Sprintf("Too many parameters (%d): group them", metrics.Params)
	}
	return result
}
