package masfro

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SpatialIndex answers nearest-node queries over a RoadGraph's nodes. It
// is a simple k-d tree (2D, lon/lat) — adequate at road-graph scale and
// avoids a third-party spatial-index dependency for a bespoke, tiny data
// structure (see DESIGN.md).
type SpatialIndex struct {
	root *kdNode

	maxDistanceM float64

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
	cacheTTL time.Duration

	// group collapses concurrent Nearest calls for the same rounded
	// coordinate key into a single tree search — routing/evacuation
	// lookups tend to stampede on the same intersection during a flood
	// surge, same cache-stampede shape as fusion's radius queries.
	group singleflight.Group
}

type kdNode struct {
	node        Node
	left, right *kdNode
	axis        int // 0 = lon, 1 = lat
}

type cacheEntry struct {
	node    Node
	ok      bool
	expires time.Time
}

// NewSpatialIndex builds a balanced k-d tree over nodes. maxDistanceM
// rejects matches farther than this (spec.md §4.8 default 500m).
func NewSpatialIndex(nodes []Node, maxDistanceM float64) *SpatialIndex {
	idx := &SpatialIndex{
		maxDistanceM: maxDistanceM,
		cache:        make(map[string]cacheEntry),
		cacheTTL:     time.Hour,
	}
	cp := make([]Node, len(nodes))
	copy(cp, nodes)
	idx.root = buildKD(cp, 0)
	return idx
}

func buildKD(nodes []Node, depth int) *kdNode {
	if len(nodes) == 0 {
		return nil
	}
	axis := depth % 2
	sort.Slice(nodes, func(i, j int) bool {
		if axis == 0 {
			return nodes[i].Lon < nodes[j].Lon
		}
		return nodes[i].Lat < nodes[j].Lat
	})
	mid := len(nodes) / 2
	n := &kdNode{node: nodes[mid], axis: axis}
	n.left = buildKD(nodes[:mid], depth+1)
	n.right = buildKD(nodes[mid+1:], depth+1)
	return n
}

// Nearest returns the closest node to (lat, lon), or ok=false if none
// exists within maxDistanceM. Results are cached (LRU-ish via TTL
// expiry) keyed by coordinates rounded to 4 decimals (~11m).
func (idx *SpatialIndex) Nearest(lat, lon float64) (Node, bool) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	idx.cacheMu.Lock()
	if e, ok := idx.cache[key]; ok && Now().Before(e.expires) {
		idx.cacheMu.Unlock()
		return e.node, e.ok
	}
	idx.cacheMu.Unlock()

	v, _, _ := idx.group.Do(key, func() (any, error) {
		// Re-check under the singleflight key: a concurrent caller may
		// have already populated the cache while this call waited to
		// become the leader.
		idx.cacheMu.Lock()
		if e, ok := idx.cache[key]; ok && Now().Before(e.expires) {
			idx.cacheMu.Unlock()
			return e, nil
		}
		idx.cacheMu.Unlock()

		best, bestDist, found := idx.search(idx.root, lat, lon, 0, Node{}, posInf, false)
		ok := found && bestDist <= idx.maxDistanceM
		e := cacheEntry{node: best, ok: ok, expires: Now().Add(idx.cacheTTL)}

		idx.cacheMu.Lock()
		idx.cache[key] = e
		idx.cacheMu.Unlock()

		return e, nil
	})

	e := v.(cacheEntry)
	if !e.ok {
		return Node{}, false
	}
	return e.node, true
}

func (idx *SpatialIndex) search(n *kdNode, lat, lon float64, depth int, best Node, bestDist float64, found bool) (Node, float64, bool) {
	if n == nil {
		return best, bestDist, found
	}

	d := HaversineMeters(lat, lon, n.node.Lat, n.node.Lon)
	if !found || d < bestDist {
		best, bestDist, found = n.node, d, true
	}

	var near, far *kdNode
	var diff float64
	if n.axis == 0 {
		diff = lon - n.node.Lon
	} else {
		diff = lat - n.node.Lat
	}
	if diff < 0 {
		near, far = n.left, n.right
	} else {
		near, far = n.right, n.left
	}

	best, bestDist, found = idx.search(near, lat, lon, depth+1, best, bestDist, found)

	// Only descend into the far branch if it could contain something
	// closer than the current best along this axis — otherwise this
	// degrades to O(n), which is fine at road-graph scale.
	axisDistDeg := diff
	if axisDistDeg < 0 {
		axisDistDeg = -axisDistDeg
	}
	axisDistM := axisDistDeg * 111000 // rough degrees-to-meters; conservative (never above the true distance at city scale)
	if n.axis == 0 {
		axisDistM *= math.Cos(lat * math.Pi / 180) // a degree of longitude shrinks with latitude
	}
	if axisDistM < bestDist {
		best, bestDist, found = idx.search(far, lat, lon, depth+1, best, bestDist, found)
	}

	return best, bestDist, found
}
