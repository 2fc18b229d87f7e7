package masfro

import (
	"container/heap"
)

// RouteMode selects the risk_penalty used by the router (spec.md §4.8).
type RouteMode string

const (
	ModeSafest   RouteMode = "safest"   // avoid_floods: always detour around risk
	ModeBalanced RouteMode = "balanced" // accept small risk for distance savings
	ModeFastest  RouteMode = "fastest"  // shortest path; still blocks critical edges
)

// RiskPenalty returns the risk_penalty multiplier for mode. Balanced is
// the default for unrecognized modes.
func RiskPenalty(mode RouteMode) float64 {
	switch mode {
	case ModeSafest:
		return 100
	case ModeFastest:
		return 0
	default:
		return 3
	}
}

// RouteStatus distinguishes why a route request produced no path.
type RouteStatus string

const (
	StatusOK           RouteStatus = "ok"
	StatusImpassable   RouteStatus = "impassable"    // fastest mode found no path at all
	StatusNoSafeRoute  RouteStatus = "no_safe_route" // balanced/safest found no path under the risk threshold
)

// RiskAwareAStar runs the risk-penalized A* search (C8) over a RoadGraph.
type RiskAwareAStar struct {
	graph                  *RoadGraph
	criticalRiskThreshold  float64
}

// NewRiskAwareAStar creates a router. criticalRiskThreshold is the risk
// value at or above which an edge is always blocked, regardless of mode
// (default 0.9 per spec.md §4.8).
func NewRiskAwareAStar(graph *RoadGraph, criticalRiskThreshold float64) *RiskAwareAStar {
	return &RiskAwareAStar{graph: graph, criticalRiskThreshold: criticalRiskThreshold}
}

// bestParallelEdge picks, among all parallel edges u->v, the one with
// lowest risk (ties broken by shorter length) — mirrors the original's
// weight_function edge selection exactly.
func (r *RiskAwareAStar) bestParallelEdge(u, v NodeID) (EdgeKey, EdgeView, bool) {
	keys := r.graph.ParallelKeys(u, v)
	if len(keys) == 0 {
		return EdgeKey{}, EdgeView{}, false
	}
	var bestKey EdgeKey
	var best EdgeView
	found := false
	for _, k := range keys {
		ek := EdgeKey{U: u, V: v, Key: k}
		ev, ok := r.graph.Edge(ek)
		if !ok {
			continue
		}
		if !found || ev.Risk < best.Risk || (ev.Risk == best.Risk && ev.Length < best.Length) {
			best = ev
			bestKey = ek
			found = true
		}
	}
	return bestKey, best, found
}

// cost computes the A* edge weight for the best parallel edge between u
// and v under mode, or (+Inf, blocked=true) if its risk is at or above
// the critical risk threshold or no edge exists.
func (r *RiskAwareAStar) cost(u, v NodeID, mode RouteMode) (key int, c float64, blocked bool) {
	ek, ev, ok := r.bestParallelEdge(u, v)
	if !ok {
		return 0, posInf, true
	}
	if ev.Risk >= r.criticalRiskThreshold {
		return ek.Key, posInf, true
	}
	penalty := RiskPenalty(mode)
	return ek.Key, ev.Length * (1.0 + ev.Risk*penalty), false
}

const posInf = 1e18

// Path is the result of a successful search: the node sequence and the
// parallel-edge key selected for each hop (len(Keys) == len(Nodes)-1).
type Path struct {
	Nodes []NodeID
	Keys  []int
}

// Route runs risk-aware A* from start to end under mode. Returns
// (Path{}, StatusImpassable) for fastest mode with no path at all, or
// (Path{}, StatusNoSafeRoute) for balanced/safest with no path under the
// risk threshold.
func (r *RiskAwareAStar) Route(start, end NodeID, mode RouteMode) (Path, RouteStatus) {
	if _, ok := r.graph.Node(start); !ok {
		return Path{}, StatusNoSafeRoute
	}
	endNode, ok := r.graph.Node(end)
	if !ok {
		return Path{}, StatusNoSafeRoute
	}

	heuristic := func(n NodeID) float64 {
		if n == end {
			return 0
		}
		node, ok := r.graph.Node(n)
		if !ok {
			return 0
		}
		return HaversineMeters(node.Lat, node.Lon, endNode.Lat, endNode.Lon)
	}

	gScore := map[NodeID]float64{start: 0}
	cameFrom := map[NodeID]NodeID{}
	cameFromKey := map[NodeID]int{}
	closed := map[NodeID]bool{}

	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, heapItem{node: start, f: heuristic(start)})

	anyBlocked := false

	for open.Len() > 0 {
		cur := heap.Pop(open).(heapItem)
		if closed[cur.node] {
			continue
		}
		if cur.node == end {
			return reconstruct(cameFrom, cameFromKey, start, end), StatusOK
		}
		closed[cur.node] = true

		for _, ek := range r.graph.Out(cur.node) {
			v := ek.V
			if closed[v] {
				continue
			}
			key, c, blocked := r.cost(cur.node, v, mode)
			if blocked {
				anyBlocked = true
				continue
			}
			tentativeG := gScore[cur.node] + c
			if existing, ok := gScore[v]; !ok || tentativeG < existing {
				gScore[v] = tentativeG
				cameFrom[v] = cur.node
				cameFromKey[v] = key
				heap.Push(open, heapItem{node: v, f: tentativeG + heuristic(v)})
			}
		}
	}

	if mode == ModeFastest {
		return Path{}, StatusImpassable
	}
	return Path{}, StatusNoSafeRoute
}

func reconstruct(cameFrom map[NodeID]NodeID, cameFromKey map[NodeID]int, start, end NodeID) Path {
	var nodes []NodeID
	var keys []int
	n := end
	for n != start {
		nodes = append([]NodeID{n}, nodes...)
		keys = append([]int{cameFromKey[n]}, keys...)
		n = cameFrom[n]
	}
	nodes = append([]NodeID{start}, nodes...)
	return Path{Nodes: nodes, Keys: keys}
}

// --- priority queue ---

type heapItem struct {
	node NodeID
	f    float64
}

type nodeHeap []heapItem

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PathMetrics are the derived statistics of a found Path (spec.md §4.8).
type PathMetrics struct {
	TotalDistance float64 // meters
	AverageRisk   float64 // distance-weighted: Σ(risk*length)/Σlength
	MaxRisk       float64
	EstimatedTime float64 // minutes
	NumSegments   int
	Warnings      []string
}

// CalculatePathMetrics computes distance/risk/time statistics using the
// exact edges A* selected (p.Keys), per spec.md §4.8.
func (r *RiskAwareAStar) CalculatePathMetrics(p Path, mode RouteMode, baseSpeedKmh, speedReductionFactor float64) PathMetrics {
	if len(p.Nodes) < 2 {
		return PathMetrics{}
	}

	var totalDistance, totalWeightedRisk, maxRisk float64
	for i := 0; i < len(p.Nodes)-1; i++ {
		u, v := p.Nodes[i], p.Nodes[i+1]
		key := 0
		if i < len(p.Keys) {
			key = p.Keys[i]
		}
		ev, ok := r.graph.Edge(EdgeKey{U: u, V: v, Key: key})
		if !ok {
			continue
		}
		totalDistance += ev.Length
		totalWeightedRisk += ev.Risk * ev.Length
		if ev.Risk > maxRisk {
			maxRisk = ev.Risk
		}
	}

	var avgRisk float64
	if totalDistance > 0 {
		avgRisk = totalWeightedRisk / totalDistance
	}

	riskFactor := 1.0 - avgRisk*speedReductionFactor
	if riskFactor < 0.05 {
		riskFactor = 0.05
	}
	adjustedSpeed := baseSpeedKmh * riskFactor
	estMinutes := (totalDistance / 1000 / adjustedSpeed) * 60

	m := PathMetrics{
		TotalDistance: totalDistance,
		AverageRisk:   avgRisk,
		MaxRisk:       maxRisk,
		EstimatedTime: estMinutes,
		NumSegments:   len(p.Nodes) - 1,
	}
	m.Warnings = routeWarnings(m, mode)
	return m
}

func routeWarnings(m PathMetrics, mode RouteMode) []string {
	var warnings []string
	switch {
	case m.MaxRisk >= 0.9:
		warnings = append(warnings, "critical: path contains a segment at or near the blocking threshold")
	case m.MaxRisk >= 0.7:
		warnings = append(warnings, "warning: path contains a high-risk segment")
	case m.AverageRisk >= 0.5 && mode != ModeFastest:
		warnings = append(warnings, "caution: route average risk is elevated")
	}
	if m.TotalDistance > 10000 {
		warnings = append(warnings, "informational: this is a long route (>10km)")
	}
	if mode == ModeFastest && (m.MaxRisk >= 0.5 || m.AverageRisk >= 0.3) {
		warnings = append(warnings, "fastest mode ignores risk except for blocking critical edges")
	}
	return warnings
}
