package anomaly

import (
	"strings"
	"testing"
)

const (
	testSpikeThreshold            = 3.0
	testMinDataPointsForDetection = 3
	testHistoryWindow             = 5
)

func TestDetectSpike_SuddenSpike(t *testing.T) {
	detector := NewDetector(testSpikeThreshold, testMinDataPointsForDetection, testHistoryWindow)

	history := []float64{100, 105, 98, 102, 99}
	spike, ok := detector.DetectSpike(350, history)

	if !ok {
		t.Fatal("Expected spike for 350 gallons against ~100 average")
	}
	if spike.Samples != 5 {
		t.Errorf("Expected 5 samples, got %d", spike.Samples)
	}
	if !strings.Contains(spike.Message("Zone A"), "Zone A") {
		t.Errorf("Expected message to name the location, got %q", spike.Message("Zone A"))
	}
}

func TestDetectSpike_NormalValue(t *testing.T) {
	detector := NewDetector(testSpikeThreshold, testMinDataPointsForDetection, testHistoryWindow)

	if spike, ok := detector.DetectSpike(103, []float64{100, 105, 98, 102, 99}); ok {
		t.Errorf("Expected no spike, got %+v", spike)
	}
}

func TestDetectSpike_InsufficientData(t *testing.T) {
	detector := NewDetector(testSpikeThreshold, testMinDataPointsForDetection, testHistoryWindow)

	if _, ok := detector.DetectSpike(300, []float64{100, 105}); ok {
		t.Error("Should not detect spike with insufficient historical data")
	}
}

func TestDetectSpike_EmptyHistory(t *testing.T) {
	detector := NewDetector(testSpikeThreshold, 0, testHistoryWindow)

	if _, ok := detector.DetectSpike(100, nil); ok {
		t.Error("Expected no spike with empty history")
	}
}

func TestDetectSpike_ZeroAverage(t *testing.T) {
	detector := NewDetector(testSpikeThreshold, testMinDataPointsForDetection, testHistoryWindow)

	if _, ok := detector.DetectSpike(100, []float64{0, 0, 0}); ok {
		t.Error("Should not detect spike when historical average is 0")
	}
}

func TestDetectSpike_OnlyWindowCounts(t *testing.T) {
	detector := NewDetector(testSpikeThreshold, testMinDataPointsForDetection, 3)

	// the newest three average 10; older huge values fall outside the window
	history := []float64{10, 10, 10, 5000, 5000}
	if _, ok := detector.DetectSpike(40, history); !ok {
		t.Error("Expected spike against the windowed average")
	}
}
