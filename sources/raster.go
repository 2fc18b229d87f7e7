package sources

import (
	"context"
	"math"
	"sync"

	masfro "github.com/PolySpade/masfro"
)

// RasterSource is the "Raster source" contract (spec.md §6):
// georeferenced flood-depth layers keyed by (return_period, time_step).
type RasterSource interface {
	SampleAt(ctx context.Context, layer RasterLayer, lat, lon float64) (RasterSample, error)
}

// NoRaster is used when no raster layers are configured; every sample
// reports not-found rather than erroring, matching the spec's graceful-
// degradation policy for optional collaborators.
type NoRaster struct{}

func (NoRaster) SampleAt(ctx context.Context, layer RasterLayer, lat, lon float64) (RasterSample, error) {
	return RasterSample{Found: false, LayerKey: layer}, nil
}

// MemoryRaster holds depth grids loaded from an external georeferenced
// source (format defined by external loader, per spec.md §6's "On-disk"
// contract) and answers point samples with nearest-cell lookup.
type MemoryRaster struct {
	mu     sync.RWMutex
	layers map[RasterLayer]*rasterGrid
}

type rasterGrid struct {
	minLat, minLon   float64
	cellSize         float64
	rows, cols       int
	depths           []float64 // row-major, meters, NaN for nodata
}

func NewMemoryRaster() *MemoryRaster {
	return &MemoryRaster{layers: make(map[RasterLayer]*rasterGrid)}
}

// LoadLayer registers a raster layer's grid. depths is row-major with
// rows*cols entries.
func (m *MemoryRaster) LoadLayer(layer RasterLayer, minLat, minLon, cellSize float64, rows, cols int, depths []float64) error {
	if len(depths) != rows*cols {
		return masfro.NewGeoSpatialError("raster depths length mismatch", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[layer] = &rasterGrid{
		minLat: minLat, minLon: minLon, cellSize: cellSize,
		rows: rows, cols: cols, depths: depths,
	}
	return nil
}

func (m *MemoryRaster) SampleAt(ctx context.Context, layer RasterLayer, lat, lon float64) (RasterSample, error) {
	m.mu.RLock()
	grid, ok := m.layers[layer]
	m.mu.RUnlock()
	if !ok {
		return RasterSample{Found: false, LayerKey: layer}, nil
	}

	row := int((lat - grid.minLat) / grid.cellSize)
	col := int((lon - grid.minLon) / grid.cellSize)
	if row < 0 || row >= grid.rows || col < 0 || col >= grid.cols {
		return RasterSample{Found: false, LayerKey: layer}, nil
	}

	depth := grid.depths[row*grid.cols+col]
	if depth < 0 || math.IsNaN(depth) {
		return RasterSample{Found: false, LayerKey: layer}, nil
	}
	return RasterSample{DepthM: depth, Found: true, LayerKey: layer}, nil
}

var _ RasterSource = NoRaster{}
var _ RasterSource = (*MemoryRaster)(nil)
