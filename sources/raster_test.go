package sources

import (
	"context"
	"testing"
)

func TestNoRasterAlwaysReportsNotFound(t *testing.T) {
	r := NoRaster{}
	sample, err := r.SampleAt(context.Background(), RasterLayer{ReturnPeriod: 100, TimeStep: 1}, 14.65, 121.10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample.Found {
		t.Fatal("expected NoRaster to never find a sample")
	}
}

func TestMemoryRasterSamplesLoadedLayer(t *testing.T) {
	r := NewMemoryRaster()
	layer := RasterLayer{ReturnPeriod: 25, TimeStep: 2}
	// 2x2 grid, cell size 0.01 degrees, origin (14.60, 121.00).
	if err := r.LoadLayer(layer, 14.60, 121.00, 0.01, 2, 2, []float64{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("unexpected error loading layer: %v", err)
	}

	sample, err := r.SampleAt(context.Background(), layer, 14.605, 121.005)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sample.Found {
		t.Fatal("expected sample to be found within grid bounds")
	}

	outside, err := r.SampleAt(context.Background(), layer, 20.0, 120.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outside.Found {
		t.Fatal("expected out-of-bounds sample to report not found")
	}
}

func TestMemoryRasterRejectsMismatchedDepthsLength(t *testing.T) {
	r := NewMemoryRaster()
	err := r.LoadLayer(RasterLayer{}, 0, 0, 0.01, 2, 2, []float64{0.1, 0.2})
	if err == nil {
		t.Fatal("expected error for mismatched depths length")
	}
}
