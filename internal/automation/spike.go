package automation

import "fmt"

// SpikeDetector flags sudden jumps against a rolling average. It backs
// the power_spike alert type when no explicit rule covers it.
type SpikeDetector struct {
	threshold float64
	minPoints int
}

// NewSpikeDetector creates a detector firing when a value exceeds
// threshold times the rolling average of the preceding points.
func NewSpikeDetector(threshold float64, minPoints int) *SpikeDetector {
	return &SpikeDetector{threshold: threshold, minPoints: minPoints}
}

// Detect checks the latest value against its history. History shorter
// than the configured minimum never fires.
func (d *SpikeDetector) Detect(value float64, history []float64) (bool, string) {
	if len(history) < d.minPoints {
		return false, ""
	}

	sum := 0.0
	for _, v := range history {
		sum += v
	}
	average := sum / float64(len(history))

	if average > 0 && value > d.threshold*average {
		return true, fmt.Sprintf("sudden spike detected: value %.2f exceeds %.1fx rolling average %.2f",
			value, d.threshold, average)
	}

	return false, ""
}
