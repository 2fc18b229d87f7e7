package masfro

import "testing"

// TestScenarioS1GraphBootstrap mirrors spec.md §8 scenario S1: a blocked
// diagonal must force the router onto the square's three other sides.
func TestScenarioS1GraphBootstrap(t *testing.T) {
	g := buildSquareGraph()
	if err := g.UpdateEdgeRisk(EdgeKey{U: 1, V: 4, Key: 0}, 0.95); err != nil {
		t.Fatalf("UpdateEdgeRisk: %v", err)
	}

	router := NewRiskAwareAStar(g, 0.9)
	path, status := router.Route(1, 4, ModeBalanced)
	if status != StatusOK {
		t.Fatalf("expected a path, got status=%s", status)
	}

	want := []NodeID{1, 2, 3, 4}
	if len(path.Nodes) != len(want) {
		t.Fatalf("expected path %v, got %v", want, path.Nodes)
	}
	for i, n := range want {
		if path.Nodes[i] != n {
			t.Fatalf("expected path %v, got %v", want, path.Nodes)
		}
	}

	metrics := router.CalculatePathMetrics(path, ModeBalanced, 30, 0.5)
	if metrics.TotalDistance != 450 {
		t.Fatalf("expected total distance 450, got %v", metrics.TotalDistance)
	}
}

func TestCriticalRiskBlocksRegardlessOfMode(t *testing.T) {
	g := buildSquareGraph()
	_ = g.UpdateEdgeRisk(EdgeKey{U: 1, V: 2, Key: 0}, 0.95)
	router := NewRiskAwareAStar(g, 0.9)

	for _, mode := range []RouteMode{ModeSafest, ModeBalanced, ModeFastest} {
		path, status := router.Route(1, 2, mode)
		if status == StatusOK {
			for _, k := range path.Keys {
				ev, _ := g.Edge(EdgeKey{U: 1, V: 2, Key: k})
				if ev.Risk >= 0.9 {
					t.Fatalf("mode=%s: path contains blocked edge", mode)
				}
			}
		}
	}
}

func TestRiskPenaltyOrdering(t *testing.T) {
	g := buildSquareGraph()
	_ = g.UpdateEdgeRisk(EdgeKey{U: 1, V: 4, Key: 0}, 0.5)
	router := NewRiskAwareAStar(g, 0.9)

	safestPath, s1 := router.Route(1, 4, ModeSafest)
	balancedPath, s2 := router.Route(1, 4, ModeBalanced)
	fastestPath, s3 := router.Route(1, 4, ModeFastest)
	if s1 != StatusOK || s2 != StatusOK || s3 != StatusOK {
		t.Fatal("expected all three modes to find a path")
	}

	safestMetrics := router.CalculatePathMetrics(safestPath, ModeSafest, 30, 0.5)
	balancedMetrics := router.CalculatePathMetrics(balancedPath, ModeBalanced, 30, 0.5)
	fastestMetrics := router.CalculatePathMetrics(fastestPath, ModeFastest, 30, 0.5)

	if safestMetrics.AverageRisk > balancedMetrics.AverageRisk+1e-9 {
		t.Fatalf("safest risk %v should be <= balanced risk %v", safestMetrics.AverageRisk, balancedMetrics.AverageRisk)
	}
	if balancedMetrics.AverageRisk > fastestMetrics.AverageRisk+1e-9 {
		t.Fatalf("balanced risk %v should be <= fastest risk %v", balancedMetrics.AverageRisk, fastestMetrics.AverageRisk)
	}
}

func TestHeuristicAdmissible(t *testing.T) {
	g := buildSquareGraph()
	router := NewRiskAwareAStar(g, 0.9)
	path, status := router.Route(1, 4, ModeFastest)
	if status != StatusOK {
		t.Fatal("expected a path")
	}
	metrics := router.CalculatePathMetrics(path, ModeFastest, 30, 0.5)
	n1, _ := g.Node(1)
	n4, _ := g.Node(4)
	h := HaversineMeters(n1.Lat, n1.Lon, n4.Lat, n4.Lon)
	if metrics.TotalDistance < h-1e-6 {
		t.Fatalf("admissibility violated: path distance %v < haversine %v", metrics.TotalDistance, h)
	}
}
