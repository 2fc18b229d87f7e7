package agents

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/sources"

	"github.com/dustin/go-humanize"
)

// HazardConfig carries every tunable of the C7 fusion pipeline
// (spec.md §4.7), mirrored from internal/config.Config.
type HazardConfig struct {
	ScoutTTL time.Duration
	FloodTTL time.Duration

	RiskWeightFloodDepth   float64
	RiskWeightCrowdsourced float64

	SpatialDecayPerMin float64 // k in r' = r * exp(-k*Δt), default 0.08
	MinRiskThreshold   float64 // drop decayed risk below this, default 0.01

	ScoutDecayFastPerMin float64 // 0.10, used when a river is at/above alert
	ScoutDecaySlowPerMin float64 // 0.03, otherwise

	RiskRadiusM float64 // spatial scout propagation radius, default 500

	VisualOverrideRiskThreshold       float64
	VisualOverrideConfidenceThreshold float64

	CriticalRiskThreshold float64 // edges at or above it count toward query_risk_at_location's impassable_count
}

type floodEntry struct {
	rec        masfro.ObservationRecord
	receivedAt time.Time
}

type scoutEntry struct {
	rec        masfro.ObservationRecord
	receivedAt time.Time
}

// Hazard is the Hazard Fusion Agent (C7): it owns the mapping from
// observations to per-edge risk. Grounded on spec.md §4.7 and
// original_source/.../hazard_agent.py.
type Hazard struct {
	base

	graph  *masfro.RoadGraph
	raster sources.RasterSource // optional collaborator

	cfg HazardConfig

	mu         sync.Mutex
	floodCache map[string]floodEntry // keyed by station/dam name
	scoutCache []scoutEntry

	currentLayer sources.RasterLayer

	previousAvgRisk float64
	lastFusionAt    time.Time
}

// NewHazard wires C7. raster may be nil (sources.NoRaster is the
// explicit no-op collaborator).
func NewHazard(id string, bus *masfro.MessageBus, graph *masfro.RoadGraph, raster sources.RasterSource, cfg HazardConfig, logger *slog.Logger) *Hazard {
	if raster == nil {
		raster = sources.NoRaster{}
	}
	return &Hazard{
		base:       newBase(id, bus, logger),
		graph:      graph,
		raster:     raster,
		cfg:        cfg,
		floodCache: make(map[string]floodEntry),
	}
}

func (h *Hazard) Step(ctx context.Context) {
	h.drain(ctx, func(msg masfro.ACLMessage) {
		switch {
		case msg.Performative == masfro.Inform && msg.Content.InfoType == "flood_data_batch":
			h.ingestFloodBatch(msg.Content.Data)
		case msg.Performative == masfro.Inform && msg.Content.InfoType == "scout_report_batch":
			h.ingestScoutBatch(msg.Content.Data)
		case msg.Performative == masfro.Request && msg.Content.Action == "process_and_update":
			stats := h.fuse(ctx)
			h.send(masfro.ReplyTo(msg, masfro.Inform, h.id, masfro.Content{InfoType: "risk_update_result", Data: stats}))
		case msg.Performative == masfro.Request && msg.Content.Action == "query_risk_at_location":
			result := h.queryRiskAtLocation(msg.Content.Data)
			h.send(masfro.ReplyTo(msg, masfro.Inform, h.id, masfro.Content{InfoType: "location_risk_result", Data: result}))
		case msg.Performative == masfro.Request && msg.Content.Action == "set_flood_scenario":
			h.setFloodScenario(msg.Content.Data)
		}
	})
}

func (h *Hazard) ingestFloodBatch(data map[string]any) {
	raw, _ := data["observations"].([]masfro.ObservationRecord)
	now := masfro.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range raw {
		if rec.StationName == "" || rec.Timestamp.IsZero() {
			continue
		}
		if rec.Risk < 0 || rec.Risk > 1 {
			continue
		}
		h.floodCache[rec.StationName] = floodEntry{rec: rec, receivedAt: now}
	}
}

func (h *Hazard) ingestScoutBatch(data map[string]any) {
	raw, _ := data["reports"].([]masfro.ObservationRecord)
	now := masfro.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range raw {
		if rec.Severity < 0 || rec.Severity > 1 || rec.Confidence < 0 || rec.Confidence > 1 {
			continue
		}
		key := scoutIdentity(rec)
		duplicate := false
		for _, existing := range h.scoutCache {
			if scoutIdentity(existing.rec) == key {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		h.scoutCache = append(h.scoutCache, scoutEntry{rec: rec, receivedAt: now})
	}
}

// scoutIdentity approximates spec.md §4.7's "(location, text) identity"
// dedup key. ObservationRecord carries no raw text field (it is already
// normalized by C6), so location + report type + severity stands in.
func scoutIdentity(rec masfro.ObservationRecord) string {
	return fmt.Sprintf("%s|%s|%.2f", rec.LocationName, rec.ReportType, rec.Severity)
}

func (h *Hazard) setFloodScenario(data map[string]any) {
	rp, _ := data["return_period"].(float64)
	ts, _ := data["time_step"].(float64)
	h.mu.Lock()
	h.currentLayer = sources.RasterLayer{ReturnPeriod: int(rp), TimeStep: int(ts)}
	h.mu.Unlock()
}

// fuse runs the full pipeline of spec.md §4.7: expiry, decay, raster,
// environmental modifier, spatial propagation. It is synchronous —
// unlike the collector/scout, the hazard agent's inputs are already in
// memory and the optional raster is a local lookup, not network I/O.
func (h *Hazard) fuse(ctx context.Context) map[string]any {
	now := masfro.Now()

	h.mu.Lock()
	h.expirySweep(now)
	floodSnapshot := make([]floodEntry, 0, len(h.floodCache))
	for _, e := range h.floodCache {
		floodSnapshot = append(floodSnapshot, e)
	}
	scoutSnapshot := append([]scoutEntry(nil), h.scoutCache...)
	layer := h.currentLayer
	h.mu.Unlock()

	decayed := h.decayEdges(now)
	if h.raster != nil {
		h.applyRaster(ctx, decayed, layer)
	}
	envRisk := h.environmentalRisk(now, floodSnapshot, scoutSnapshot)
	for k, v := range decayed {
		decayed[k] = clampRisk01(v + envRisk)
	}
	h.graph.BatchUpdateEdgeRisk(decayed)

	h.propagateSpatialScouts(now, scoutSnapshot)

	return h.trendStats(now, decayed, scoutSnapshot)
}

func (h *Hazard) expirySweep(now time.Time) {
	for name, e := range h.floodCache {
		if now.Sub(e.receivedAt) > h.cfg.FloodTTL {
			delete(h.floodCache, name)
		}
	}
	kept := h.scoutCache[:0]
	for _, e := range h.scoutCache {
		if now.Sub(e.receivedAt) <= h.cfg.ScoutTTL {
			kept = append(kept, e)
		}
	}
	h.scoutCache = kept
}

// decayEdges applies r' = r*exp(-k*Δt_min) to every edge, dropping
// results below MinRiskThreshold to zero, per spec.md §4.7 step 2.
func (h *Hazard) decayEdges(now time.Time) map[masfro.EdgeKey]float64 {
	edges := h.graph.AllEdges()
	out := make(map[masfro.EdgeKey]float64, len(edges))
	for _, e := range edges {
		if e.Risk <= 0 {
			out[e.EdgeKey] = 0
			continue
		}
		dtMin := now.Sub(e.LastRiskUpdate).Minutes()
		if dtMin < 0 {
			dtMin = 0
		}
		decayed := e.Risk * math.Exp(-h.cfg.SpatialDecayPerMin*dtMin)
		if decayed < h.cfg.MinRiskThreshold {
			decayed = 0
		}
		out[e.EdgeKey] = decayed
	}
	return out
}

// applyRaster samples flood depth at both endpoints of each edge,
// averages the found samples, and folds the depth-to-risk conversion
// into the decayed map, weighted by the flood_depth fusion weight
// (spec.md §4.7 step 3).
func (h *Hazard) applyRaster(ctx context.Context, decayed map[masfro.EdgeKey]float64, layer sources.RasterLayer) {
	for k := range decayed {
		uNode, uOK := h.graph.Node(k.U)
		vNode, vOK := h.graph.Node(k.V)
		if !uOK || !vOK {
			continue
		}
		var sum float64
		var n int
		if s, err := h.raster.SampleAt(ctx, layer, uNode.Lat, uNode.Lon); err == nil && s.Found {
			sum += s.DepthM
			n++
		}
		if s, err := h.raster.SampleAt(ctx, layer, vNode.Lat, vNode.Lon); err == nil && s.Found {
			sum += s.DepthM
			n++
		}
		if n == 0 {
			continue
		}
		avgDepth := sum / float64(n)
		decayed[k] = clampRisk01(decayed[k] + depthToRisk(avgDepth)*h.cfg.RiskWeightFloodDepth)
	}
}

func clampRisk01(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// depthToRisk is the piecewise depth->risk conversion of spec.md §4.7
// step 3.
func depthToRisk(d float64) float64 {
	switch {
	case d <= 0:
		return 0
	case d <= 0.3:
		return d
	case d <= 0.6:
		return 0.3 + (d - 0.3)
	case d <= 1.0:
		return 0.6 + 0.5*(d-0.6)
	default:
		v := 0.8 + 0.2*(d-1.0)
		if v > 1 {
			v = 1
		}
		return v
	}
}

// environmentalRisk computes the scalar per spec.md §4.7 step 4: an
// average official risk weighted by RiskWeightFloodDepth, plus decayed
// non-coordinate scout severity*confidence weighted by
// RiskWeightCrowdsourced. There is no historical-data source wired
// anywhere in this system (spec.md names risk_weights.historical but no
// component produces a historical signal), so that weight's
// contribution is always zero — see DESIGN.md.
func (h *Hazard) environmentalRisk(now time.Time, flood []floodEntry, scouts []scoutEntry) float64 {
	var officialSum float64
	for _, e := range flood {
		officialSum += e.rec.Risk
	}
	var officialAvg float64
	if len(flood) > 0 {
		officialAvg = officialSum / float64(len(flood))
	}

	riverElevated := false
	for _, e := range flood {
		if e.rec.Kind == masfro.ObservationRiverStation && e.rec.WaterLevelM >= e.rec.AlertM && e.rec.AlertM > 0 {
			riverElevated = true
			break
		}
	}
	rate := h.cfg.ScoutDecaySlowPerMin
	if riverElevated {
		rate = h.cfg.ScoutDecayFastPerMin
	}

	var crowdSum float64
	for _, e := range scouts {
		if e.rec.HasCoords {
			continue // spatial reports are handled by propagateSpatialScouts
		}
		ageMin := now.Sub(e.receivedAt).Minutes()
		crowdSum += e.rec.Severity * e.rec.Confidence * math.Exp(-rate*ageMin)
	}

	return clampRisk01(officialAvg*h.cfg.RiskWeightFloodDepth + crowdSum*h.cfg.RiskWeightCrowdsourced)
}

// propagateSpatialScouts implements spec.md §4.7 step 5 and the visual
// override clause: for each scout report with coordinates, find every
// node within RiskRadiusM and the nearest of them, and set or blend edge
// risk at all edges incident to those nodes. The nearest node gets the
// undecayed value; the others get it linearly decayed by distance.
func (h *Hazard) propagateSpatialScouts(now time.Time, scouts []scoutEntry) {
	for _, e := range scouts {
		if !e.rec.HasCoords {
			continue
		}
		riskValue := e.rec.Severity * e.rec.Confidence
		override := e.rec.VisualEvidence != nil &&
			e.rec.Severity >= h.cfg.VisualOverrideRiskThreshold &&
			e.rec.Confidence >= h.cfg.VisualOverrideConfidenceThreshold

		nearby := h.nodesWithinRadius(e.rec.Lat, e.rec.Lon)
		nearest := -1
		for i, n := range nearby {
			if nearest < 0 || n.distanceM < nearby[nearest].distanceM {
				nearest = i
			}
		}
		for i, n := range nearby {
			value := riskValue
			if i != nearest && n.distanceM > 0 {
				decay := 1 - n.distanceM/h.cfg.RiskRadiusM
				if decay <= 0 {
					continue
				}
				value = riskValue * decay
				if value < 0.05 {
					continue
				}
			}
			h.setEdgesAtNode(n.id, value, override)
		}
	}
}

type nearbyNode struct {
	id        masfro.NodeID
	distanceM float64
}

func (h *Hazard) nodesWithinRadius(lat, lon float64) []nearbyNode {
	var out []nearbyNode
	for _, n := range h.graph.Nodes() {
		d := masfro.HaversineMeters(lat, lon, n.Lat, n.Lon)
		if d <= h.cfg.RiskRadiusM {
			out = append(out, nearbyNode{id: n.ID, distanceM: d})
		}
	}
	return out
}

// setEdgesAtNode applies value to every edge incident to node. When
// override is true the value replaces the current risk; otherwise it is
// averaged with the current risk (spec.md §4.7's visual override
// clause: "replaces (rather than averages into)").
func (h *Hazard) setEdgesAtNode(node masfro.NodeID, value float64, override bool) {
	for _, e := range h.graph.AllEdges() {
		if e.U != node && e.V != node {
			continue
		}
		final := value
		if !override {
			final = (value + e.Risk) / 2
		}
		_ = h.graph.UpdateEdgeRisk(e.EdgeKey, final)
	}
}

func (h *Hazard) trendStats(now time.Time, edgeRisks map[masfro.EdgeKey]float64, scouts []scoutEntry) map[string]any {
	var sum float64
	for _, r := range edgeRisks {
		sum += r
	}
	avg := 0.0
	if len(edgeRisks) > 0 {
		avg = sum / float64(len(edgeRisks))
	}

	trend := "stable"
	var rate float64
	if !h.lastFusionAt.IsZero() {
		dtMin := now.Sub(h.lastFusionAt).Minutes()
		if dtMin > 0 {
			rate = (avg - h.previousAvgRisk) / dtMin
			switch {
			case rate > 0.001:
				trend = "increasing"
			case rate < -0.001:
				trend = "decreasing"
			}
		}
	}
	h.previousAvgRisk = avg
	h.lastFusionAt = now

	oldestAge := 0.0
	oldestAt := now
	for _, e := range scouts {
		age := now.Sub(e.receivedAt).Minutes()
		if age > oldestAge {
			oldestAge = age
			oldestAt = e.receivedAt
		}
	}

	result := map[string]any{
		"edges_updated":         len(edgeRisks),
		"average_risk":          avg,
		"risk_trend":            trend,
		"risk_change_rate":      rate,
		"active_reports":        len(scouts),
		"oldest_report_age_min": oldestAge,
	}
	if len(scouts) > 0 {
		result["oldest_report_age_human"] = humanize.Time(oldestAt)
	}
	return result
}

// queryRiskAtLocation answers REQUEST{action:query_risk_at_location}:
// aggregates every edge whose midpoint is within radius of (lat, lon).
func (h *Hazard) queryRiskAtLocation(data map[string]any) map[string]any {
	lat, _ := data["lat"].(float64)
	lon, _ := data["lon"].(float64)
	radius, _ := data["radius_m"].(float64)
	if radius <= 0 {
		radius = h.cfg.RiskRadiusM
	}

	var sum, maxRisk float64
	var count, highRisk, impassable int
	for _, e := range h.graph.AllEdges() {
		uNode, uOK := h.graph.Node(e.U)
		vNode, vOK := h.graph.Node(e.V)
		if !uOK || !vOK {
			continue
		}
		midLat := (uNode.Lat + vNode.Lat) / 2
		midLon := (uNode.Lon + vNode.Lon) / 2
		if masfro.HaversineMeters(lat, lon, midLat, midLon) > radius {
			continue
		}
		count++
		sum += e.Risk
		if e.Risk > maxRisk {
			maxRisk = e.Risk
		}
		if e.Risk >= 0.7 {
			highRisk++
		}
		if e.Risk >= h.cfg.CriticalRiskThreshold {
			impassable++
		}
	}

	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}

	return map[string]any{
		"avg_risk":           avg,
		"max_risk":           maxRisk,
		"risk_level":         riskLevelBucket(avg),
		"edge_count":         count,
		"high_risk_count":    highRisk,
		"impassable_count":   impassable,
	}
}

func riskLevelBucket(r float64) string {
	switch {
	case r < 0.2:
		return "minimal"
	case r < 0.4:
		return "low"
	case r < 0.6:
		return "moderate"
	case r < 0.8:
		return "high"
	default:
		return "critical"
	}
}

var _ masfro.Agent = (*Hazard)(nil)
