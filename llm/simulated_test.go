package llm

import "testing"

func TestSimulatedImageAnalysisFilenamePatterns(t *testing.T) {
	cases := map[string]struct{ minDepth, maxDepth float64 }{
		"ankle_deep_01.jpg":      {0.10, 0.15},
		"knee-deep-flood.jpg":    {0.30, 0.45},
		"waist_deep_01.jpg":      {0.60, 0.90},
		"chest_deep_critical.jpg": {1.00, 1.50},
	}
	for filename, want := range cases {
		out := simulatedImageAnalysis(filename)
		if out.EstimatedDepthM < want.minDepth || out.EstimatedDepthM > want.maxDepth {
			t.Fatalf("%s: depth %v out of range [%v,%v]", filename, out.EstimatedDepthM, want.minDepth, want.maxDepth)
		}
		if out.Source != "simulated" {
			t.Fatalf("%s: expected source=simulated, got %s", filename, out.Source)
		}
	}
}

func TestSimulatedImageAnalysisUnknownPatternStillReturnsResult(t *testing.T) {
	out := simulatedImageAnalysis("IMG_20260731_142233.jpg")
	if out.EstimatedDepthM <= 0 {
		t.Fatal("expected a positive depth even for an unrecognized filename")
	}
}
