package masfro

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// NodeID identifies a graph node (intersection).
type NodeID int64

// Node is an immutable road-network intersection.
type Node struct {
	ID  NodeID
	Lat float64 // degrees
	Lon float64 // degrees
}

// EdgeKey identifies one of possibly several parallel edges between two
// nodes (a multigraph key), matching the original graph's (u, v, key)
// addressing.
type EdgeKey struct {
	U   NodeID
	V   NodeID
	Key int
}

// edgeState is the mutable part of an edge, guarded by RoadGraph.mu.
type edgeState struct {
	length         float64 // meters, immutable
	risk           float64 // [0,1]
	weight         float64 // length * (1 + risk), derived
	lastRiskUpdate time.Time
}

// EdgeView is an immutable snapshot of one edge, safe to read after the
// call returns (never a torn value — see RoadGraph invariants).
type EdgeView struct {
	EdgeKey
	Length         float64
	Risk           float64
	Weight         float64
	LastRiskUpdate time.Time
}

// RoadGraph is the directed multigraph of road segments (C1). One
// writer (risk updates), many concurrent readers. Nodes and edge
// topology are immutable after Load; only per-edge risk/weight mutate.
type RoadGraph struct {
	mu    sync.RWMutex
	nodes map[NodeID]Node
	edges map[EdgeKey]*edgeState
	// adjacency: for (u,v) the set of parallel keys, for iteration and
	// "choose lowest risk among parallel edges" in the router.
	adjacency map[[2]NodeID][]int
	out       map[NodeID][]EdgeKey // outgoing edges per node, for A* expansion

	updating atomic.Bool // observability flag, see IsUpdating

	snapshotPath      string
	lastSnapshotTime  time.Time
	snapshotMinPeriod time.Duration
}

// NewRoadGraph creates an empty graph. Load populates it; snapshotPath
// and minPeriod configure the periodic risk snapshot (C1's "snapshot
// cadence gated by elapsed wall time").
func NewRoadGraph(snapshotPath string, minPeriod time.Duration) *RoadGraph {
	return &RoadGraph{
		nodes:             make(map[NodeID]Node),
		edges:             make(map[EdgeKey]*edgeState),
		adjacency:         make(map[[2]NodeID][]int),
		out:               make(map[NodeID][]EdgeKey),
		snapshotPath:      snapshotPath,
		snapshotMinPeriod: minPeriod,
		lastSnapshotTime:  Now(),
	}
}

// AddNode inserts an immutable node. Call only during Load, before any
// concurrent readers exist.
func (g *RoadGraph) AddNode(n Node) {
	g.nodes[n.ID] = n
}

// AddEdge inserts an immutable-topology edge with risk 0. Call only
// during Load.
func (g *RoadGraph) AddEdge(k EdgeKey, lengthMeters float64) {
	g.edges[k] = &edgeState{length: lengthMeters, weight: lengthMeters}
	pair := [2]NodeID{k.U, k.V}
	g.adjacency[pair] = append(g.adjacency[pair], k.Key)
	g.out[k.U] = append(g.out[k.U], k)
}

// graphFile is the on-disk base-topology format: a plain JSON document
// of nodes and directed edges. The original system loads its topology
// from a GraphML file produced by osmnx; this module uses JSON instead
// since no GraphML parser appears anywhere in the example pack and the
// topology is, once parsed, exactly the (node, edge) shape AddNode/
// AddEdge already expect.
type graphFile struct {
	Nodes []struct {
		ID  NodeID  `json:"id"`
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"nodes"`
	Edges []struct {
		U      NodeID  `json:"u"`
		V      NodeID  `json:"v"`
		Key    int     `json:"key"`
		Length float64 `json:"length_m"`
	} `json:"edges"`
}

// LoadFromJSON populates the graph's immutable node/edge topology from a
// JSON file shaped like graphFile. Call once at startup, before any
// concurrent readers exist (spec.md §3: "graph loaded once at startup
// from an external file"). Risk is always zero after Load; callers
// recover a previously saved risk snapshot with RecoverSnapshot.
func (g *RoadGraph) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read graph file: %v", ErrGraphEnvironment, err)
	}
	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return fmt.Errorf("%w: parse graph file: %v", ErrGraphEnvironment, err)
	}
	for _, n := range gf.Nodes {
		g.AddNode(Node{ID: n.ID, Lat: n.Lat, Lon: n.Lon})
	}
	for _, e := range gf.Edges {
		g.AddEdge(EdgeKey{U: e.U, V: e.V, Key: e.Key}, e.Length)
	}
	return nil
}

// Node returns a node by id.
func (g *RoadGraph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node, for spatial-index construction.
func (g *RoadGraph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Out returns the outgoing edges from u, for A* expansion.
func (g *RoadGraph) Out(u NodeID) []EdgeKey {
	return g.out[u]
}

// ParallelKeys returns every parallel-edge key between u and v.
func (g *RoadGraph) ParallelKeys(u, v NodeID) []int {
	return g.adjacency[[2]NodeID{u, v}]
}

// Edge returns a consistent snapshot of one edge's mutable state. A
// reader never observes a torn (risk, weight) pair: both fields are
// read while holding the same RLock the writer excludes.
func (g *RoadGraph) Edge(k EdgeKey) (EdgeView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[k]
	if !ok {
		return EdgeView{}, false
	}
	return EdgeView{
		EdgeKey:        k,
		Length:         e.length,
		Risk:           e.risk,
		Weight:         e.weight,
		LastRiskUpdate: e.lastRiskUpdate,
	}, true
}

// AllEdges returns a snapshot of every edge's current state. Used by
// hazard fusion's radius queries and by the snapshot writer.
func (g *RoadGraph) AllEdges() []EdgeView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]EdgeView, 0, len(g.edges))
	for k, e := range g.edges {
		out = append(out, EdgeView{
			EdgeKey: k, Length: e.length, Risk: e.risk,
			Weight: e.weight, LastRiskUpdate: e.lastRiskUpdate,
		})
	}
	return out
}

// UpdateEdgeRisk clamps risk to [0,1], assigns it, recomputes weight,
// and stamps LastRiskUpdate. Writer-exclusive; returns
// ErrGraphEnvironment if the edge does not exist.
func (g *RoadGraph) UpdateEdgeRisk(k EdgeKey, risk float64) error {
	risk = clampRisk(risk)

	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[k]
	if !ok {
		return NewGraphUpdateFailedError(int64(k.U), int64(k.V), k.Key)
	}
	e.risk = risk
	e.weight = e.length * (1 + risk)
	e.lastRiskUpdate = Now()
	return nil
}

// BatchUpdateEdgeRisk applies every (key, risk) pair inside a single
// critical section. Unknown edges are skipped and reported in the
// returned slice; other edges in the batch are still applied ("all
// applied" or "some subset applied", never a partial single-edge write).
func (g *RoadGraph) BatchUpdateEdgeRisk(updates map[EdgeKey]float64) (failed []EdgeKey) {
	g.setUpdating(true)
	defer g.setUpdating(false)

	g.mu.Lock()
	defer g.mu.Unlock()
	for k, risk := range updates {
		e, ok := g.edges[k]
		if !ok {
			failed = append(failed, k)
			continue
		}
		risk = clampRisk(risk)
		e.risk = risk
		e.weight = e.length * (1 + risk)
		e.lastRiskUpdate = Now()
	}
	return failed
}

// IsUpdating reports whether a batch update is currently in flight. Does
// not block readers; it's an observability flag, not a lock.
func (g *RoadGraph) IsUpdating() bool {
	return g.updating.Load()
}

func (g *RoadGraph) setUpdating(v bool) {
	g.updating.Store(v)
}

func clampRisk(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// HaversineMeters returns the great-circle distance between two
// coordinates in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
