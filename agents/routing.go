package agents

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/llm"
)

// EvacuationCenter is a candidate shelter location loaded from the
// external centers file (or the built-in sample list).
type EvacuationCenter struct {
	Name     string
	Lat, Lon float64
	Capacity int
	Type     string
}

// sampleEvacuationCenters mirrors the original routing agent's built-in
// fallback, used when no centers file is configured or loading fails.
func sampleEvacuationCenters() []EvacuationCenter {
	return []EvacuationCenter{
		{Name: "Marikina Elementary School", Lat: 14.6507, Lon: 121.1029, Capacity: 200, Type: "school"},
		{Name: "Marikina Sports Center", Lat: 14.6545, Lon: 121.1089, Capacity: 500, Type: "gymnasium"},
		{Name: "Barangay Concepcion Covered Court", Lat: 14.6480, Lon: 121.0980, Capacity: 150, Type: "covered_court"},
	}
}

// LoadEvacuationCenters reads name,latitude,longitude,capacity,type from
// a CSV file. An empty path returns sampleEvacuationCenters without
// logging; a missing file, an unreadable header row, or a file with no
// data rows falls back to it with a WARN log. Rows the CSV reader rejects
// are skipped with a WARN log. Never a fatal error, per spec.md §4.9 ("if
// missing, a small built-in sample list is used").
func LoadEvacuationCenters(path string, logger *slog.Logger) []EvacuationCenter {
	if path == "" {
		return sampleEvacuationCenters()
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("evacuation centers file not found, using built-in sample list", "path", path, "err", err)
		return sampleEvacuationCenters()
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		logger.Warn("evacuation centers file unreadable, using built-in sample list", "path", path, "err", err)
		return sampleEvacuationCenters()
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}

	var out []EvacuationCenter
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("evacuation centers file row skipped", "err", err)
			continue
		}
		c := EvacuationCenter{
			Name: getCol(rec, col, "name"),
			Type: getCol(rec, col, "type"),
		}
		c.Lat = parseFloatOr(getCol(rec, col, "latitude"), 0)
		c.Lon = parseFloatOr(getCol(rec, col, "longitude"), 0)
		c.Capacity = int(parseFloatOr(getCol(rec, col, "capacity"), 0))
		out = append(out, c)
	}
	if len(out) == 0 {
		logger.Warn("evacuation centers file had no rows, using built-in sample list", "path", path)
		return sampleEvacuationCenters()
	}
	return out
}

func getCol(rec []string, col map[string]int, name string) string {
	if i, ok := col[name]; ok && i < len(rec) {
		return rec[i]
	}
	return ""
}

func parseFloatOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// RoutingConfig carries C9's tunables.
type RoutingConfig struct {
	CentersFilePath      string
	MaxCandidateCenters  int
	BaseSpeedKmh         float64
	SpeedReductionFactor float64
}

// Routing is the Routing Agent (C9): wraps C8 as an MQ-callable service.
// Grounded on spec.md §4.9 and
// original_source/.../routing_agent.py's find_nearest_evacuation_center.
type Routing struct {
	base

	graph   *masfro.RoadGraph
	router  *masfro.RiskAwareAStar
	index   *masfro.SpatialIndex
	facade  *llm.Facade
	centers []EvacuationCenter
	cfg     RoutingConfig
}

func NewRouting(
	id string,
	bus *masfro.MessageBus,
	graph *masfro.RoadGraph,
	router *masfro.RiskAwareAStar,
	index *masfro.SpatialIndex,
	facade *llm.Facade,
	centers []EvacuationCenter,
	cfg RoutingConfig,
	logger *slog.Logger,
) *Routing {
	return &Routing{
		base:    newBase(id, bus, logger),
		graph:   graph,
		router:  router,
		index:   index,
		facade:  facade,
		centers: centers,
		cfg:     cfg,
	}
}

func (r *Routing) Step(ctx context.Context) {
	r.drain(ctx, func(msg masfro.ACLMessage) {
		if msg.Performative != masfro.Request {
			return
		}
		switch msg.Content.Action {
		case "calculate_route":
			r.handleCalculateRoute(ctx, msg)
		case "find_evacuation_center":
			r.handleFindEvacuationCenter(ctx, msg)
		}
	})
}

func (r *Routing) handleCalculateRoute(ctx context.Context, msg masfro.ACLMessage) {
	startLat, _ := msg.Content.Data["start_lat"].(float64)
	startLon, _ := msg.Content.Data["start_lon"].(float64)
	endLat, _ := msg.Content.Data["end_lat"].(float64)
	endLon, _ := msg.Content.Data["end_lon"].(float64)
	mode := parseMode(msg.Content.Data["mode"])

	startNode, ok := r.nearestNode(startLat, startLon)
	if !ok {
		r.send(failureReply(msg, r.id, masfro.NewGeoSpatialError("start location too far from the road network", nil)))
		return
	}
	endNode, ok := r.nearestNode(endLat, endLon)
	if !ok {
		r.send(failureReply(msg, r.id, masfro.NewGeoSpatialError("end location too far from the road network", nil)))
		return
	}

	path, status := r.router.Route(startNode.ID, endNode.ID, mode)
	data := map[string]any{"status": string(status)}
	if status == masfro.StatusOK {
		metrics := r.router.CalculatePathMetrics(path, mode, r.cfg.BaseSpeedKmh, r.cfg.SpeedReductionFactor)
		data["path"] = routeCoordinates(r.graph, path)
		data["metrics"] = metrics
	}
	r.send(masfro.ReplyTo(msg, masfro.Inform, r.id, masfro.Content{InfoType: "route_result", Data: data}))
}

func (r *Routing) handleFindEvacuationCenter(ctx context.Context, msg masfro.ACLMessage) {
	lat, _ := msg.Content.Data["lat"].(float64)
	lon, _ := msg.Content.Data["lon"].(float64)
	mode := parseMode(msg.Content.Data["mode"])

	startNode, ok := r.nearestNode(lat, lon)
	if !ok {
		r.send(failureReply(msg, r.id, masfro.NewGeoSpatialError("location too far from the road network", nil)))
		return
	}

	type candidate struct {
		center  EvacuationCenter
		path    masfro.Path
		metrics masfro.PathMetrics
		status  masfro.RouteStatus
	}

	type ranked struct {
		center   EvacuationCenter
		distance float64
	}
	var byDistance []ranked
	for _, c := range r.centers {
		byDistance = append(byDistance, ranked{center: c, distance: masfro.HaversineMeters(lat, lon, c.Lat, c.Lon)})
	}
	sort.Slice(byDistance, func(i, j int) bool { return byDistance[i].distance < byDistance[j].distance })

	max := r.cfg.MaxCandidateCenters
	if max <= 0 || max > len(byDistance) {
		max = len(byDistance)
	}

	var candidates []candidate
	for _, rk := range byDistance[:max] {
		centerNode, ok := r.nearestNode(rk.center.Lat, rk.center.Lon)
		if !ok {
			continue
		}
		path, status := r.router.Route(startNode.ID, centerNode.ID, mode)
		if status != masfro.StatusOK {
			continue
		}
		metrics := r.router.CalculatePathMetrics(path, mode, r.cfg.BaseSpeedKmh, r.cfg.SpeedReductionFactor)
		candidates = append(candidates, candidate{center: rk.center, path: path, metrics: metrics, status: status})
	}

	if len(candidates) == 0 {
		r.send(masfro.ReplyTo(msg, masfro.Inform, r.id, masfro.Content{
			InfoType: "evacuation_center_result",
			Data:     map[string]any{"found": false},
		}))
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].metrics.AverageRisk != candidates[j].metrics.AverageRisk {
			return candidates[i].metrics.AverageRisk < candidates[j].metrics.AverageRisk
		}
		return candidates[i].metrics.EstimatedTime < candidates[j].metrics.EstimatedTime
	})
	best := candidates[0]

	data := map[string]any{
		"found":    true,
		"name":     best.center.Name,
		"lat":      best.center.Lat,
		"lon":      best.center.Lon,
		"capacity": best.center.Capacity,
		"type":     best.center.Type,
		"path":     routeCoordinates(r.graph, best.path),
		"metrics":  best.metrics,
	}

	if query, _ := msg.Content.Data["query"].(string); query != "" && r.facade != nil {
		if explanation := r.facade.TextChatMulti(ctx, []llm.Message{
			{Role: "system", Content: "Explain in one or two sentences why this evacuation center was chosen, given the route metrics."},
			{Role: "user", Content: query},
		}); explanation != "" {
			data["explanation"] = explanation
		}
	}

	r.send(masfro.ReplyTo(msg, masfro.Inform, r.id, masfro.Content{InfoType: "evacuation_center_result", Data: data}))
}

func (r *Routing) nearestNode(lat, lon float64) (masfro.Node, bool) {
	return r.index.Nearest(lat, lon)
}

func parseMode(v any) masfro.RouteMode {
	s, _ := v.(string)
	switch s {
	case string(masfro.ModeSafest):
		return masfro.ModeSafest
	case string(masfro.ModeFastest):
		return masfro.ModeFastest
	default:
		return masfro.ModeBalanced
	}
}

func routeCoordinates(graph *masfro.RoadGraph, p masfro.Path) [][2]float64 {
	coords := make([][2]float64, 0, len(p.Nodes))
	for _, id := range p.Nodes {
		if n, ok := graph.Node(id); ok {
			coords = append(coords, [2]float64{n.Lat, n.Lon})
		}
	}
	return coords
}

var _ masfro.Agent = (*Routing)(nil)
