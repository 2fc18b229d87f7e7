package masfro

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// riskSnapshot is the on-disk format: only edges with risk > 0 are
// recorded, to keep the snapshot small and the reload path trivial.
type riskSnapshot struct {
	Timestamp time.Time
	Edges     map[EdgeKey]float64
}

func init() {
	gob.Register(riskSnapshot{})
}

// MaybeSnapshot persists a risk snapshot if at least snapshotMinPeriod
// has elapsed since the last one. Safe to call from a scheduler tick;
// it is a no-op most ticks.
func (g *RoadGraph) MaybeSnapshot() error {
	if g.snapshotPath == "" {
		return nil
	}
	g.mu.RLock()
	due := Now().Sub(g.lastSnapshotTime) >= g.snapshotMinPeriod
	g.mu.RUnlock()
	if !due {
		return nil
	}
	return g.SaveSnapshot()
}

// SaveSnapshot writes the current {edge -> risk>0} set atomically (temp
// file + rename), matching the original's pickle-based snapshot
// discipline adapted to Go's encoding/gob.
func (g *RoadGraph) SaveSnapshot() error {
	snap := riskSnapshot{Timestamp: Now(), Edges: make(map[EdgeKey]float64)}

	g.mu.RLock()
	for k, e := range g.edges {
		if e.risk > 0 {
			snap.Edges[k] = e.risk
		}
	}
	g.mu.RUnlock()

	dir := filepath.Dir(g.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".graph-snapshot-*.tmp")
	if err != nil {
		return NewGraphUpdateFailedError(0, 0, 0)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encode snapshot: %v", ErrGraphEnvironment, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close snapshot temp file: %v", ErrGraphEnvironment, err)
	}
	if err := os.Rename(tmpPath, g.snapshotPath); err != nil {
		return fmt.Errorf("%w: rename snapshot into place: %v", ErrGraphEnvironment, err)
	}

	g.mu.Lock()
	g.lastSnapshotTime = Now()
	g.mu.Unlock()
	return nil
}

// RecoverSnapshot reapplies a previously saved risk snapshot onto the
// already-loaded base graph. Edges absent from the current topology are
// skipped (the base graph may have changed between runs). Missing
// snapshot file is not an error — a fresh graph simply starts at zero
// risk everywhere.
func (g *RoadGraph) RecoverSnapshot() error {
	if g.snapshotPath == "" {
		return nil
	}
	f, err := os.Open(g.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: open snapshot: %v", ErrGraphEnvironment, err)
	}
	defer f.Close()

	var snap riskSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("%w: decode snapshot: %v", ErrGraphEnvironment, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	restored := 0
	for k, risk := range snap.Edges {
		e, ok := g.edges[k]
		if !ok {
			continue
		}
		e.risk = clampRisk(risk)
		e.weight = e.length * (1 + e.risk)
		e.lastRiskUpdate = snap.Timestamp
		restored++
	}
	g.lastSnapshotTime = Now()
	return nil
}
