package scoring

import "fmt"

// DefaultThresholds returns the default two-tier thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		// Radon ranks: A-C clean, D complex, E-F warning.
		Complexity: Tier{Complex: 21, Warning: 31},
		Lines:      Tier{Complex: 51, Warning: 150},
		Params:     Tier{Complex: 6, Warning: 9},
	}
}

// Validate checks that every enabled tier is ordered.
func (th Thresholds) Validate() error {
	for name, tier := range map[string]Tier{
		"complexity": th.Complexity,
		"lines":      th.Lines,
		"params":     th.Params,
	} {
		if tier.Complex > 0 && tier.Warning > 0 && tier.Warning < tier.Complex {
			return fmt.Errorf("thresholds.%s: warning tier %d is below complex tier %d", name, tier.Warning, tier.Complex)
		}
	}
	return nil
}

// DefaultMetrics returns the standard set of metrics for the given thresholds.
func DefaultMetrics(th Thresholds) []Metric {
	return []Metric{
		&ComplexityMetric{Tier: th.Complexity},
		&LineCountMetric{Tier: th.Lines},
		&ParamCountMetric{Tier: th.Params},
	}
}
