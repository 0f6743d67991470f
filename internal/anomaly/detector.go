package anomaly

import (
	"fmt"
)

// Spike describes a usage reading that jumped well above its location's
// recent history
type Spike struct {
	Gallons   float64
	Average   float64
	Threshold float64
	Samples   int
}

// Message renders the spike for an operator alert
func (s Spike) Message(location string) string {
	return fmt.Sprintf("usage spike at %s: %.2f gallons exceeds %.1fx rolling average %.2f over %d readings",
		location, s.Gallons, s.Threshold, s.Average, s.Samples)
}

// Detector flags usage spikes against a rolling average
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
	historyWindow             int
}

// NewDetector creates a detector. Readings above spikeThreshold times the
// average of the last historyWindow readings are spikes, once at least
// minDataPointsForDetection readings exist.
func NewDetector(spikeThreshold float64, minDataPointsForDetection, historyWindow int) *Detector {
	if historyWindow < minDataPointsForDetection {
		historyWindow = minDataPointsForDetection
	}
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
		historyWindow:             historyWindow,
	}
}

// HistoryWindow is how many prior readings DetectSpike wants
func (d *Detector) HistoryWindow() int {
	return d.historyWindow
}

// DetectSpike compares gallons to the historical values, newest first.
// Only the first HistoryWindow values are considered.
func (d *Detector) DetectSpike(gallons float64, history []float64) (*Spike, bool) {
	if len(history) > d.historyWindow {
		history = history[:d.historyWindow]
	}
	if len(history) < d.minDataPointsForDetection || len(history) == 0 {
		return nil, false
	}

	sum := 0.0
	for _, v := range history {
		sum += v
	}
	average := sum / float64(len(history))

	// a flat-zero history has no meaningful baseline
	if average <= 0 || gallons <= d.spikeThreshold*average {
		return nil, false
	}

	return &Spike{
		Gallons:   gallons,
		Average:   average,
		Threshold: d.spikeThreshold,
		Samples:   len(history),
	}, true
}
