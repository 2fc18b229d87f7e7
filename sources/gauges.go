package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	masfro "github.com/PolySpade/masfro"
)

// GaugesSource is the "Gauges source" contract (spec.md §6): a list of
// river-station records with water_level_m and optional thresholds.
type GaugesSource interface {
	Fetch(ctx context.Context) ([]StationReading, error)
}

// HTTPGauges pulls station records from a JSON endpoint and filters to a
// configured substring allowlist (e.g. "Marikina" gauges per spec.md §4.5).
type HTTPGauges struct {
	url        string
	substrings []string
	client     *http.Client
}

// NewHTTPGauges builds a gauges source. An empty substrings list matches
// every station.
func NewHTTPGauges(url string, substrings []string) *HTTPGauges {
	return &HTTPGauges{
		url:        url,
		substrings: substrings,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type gaugesAPIResponse struct {
	Stations []gaugesAPIStation `json:"stations"`
}

type gaugesAPIStation struct {
	Name        string   `json:"station_name"`
	WaterLevelM float64  `json:"water_level_m"`
	AlertM      *float64 `json:"alert_m"`
	AlarmM      *float64 `json:"alarm_m"`
	CriticalM   *float64 `json:"critical_m"`
}

func (g *HTTPGauges) Fetch(ctx context.Context) ([]StationReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, masfro.NewDataCollectionError("gauges", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, masfro.NewDataCollectionError("gauges", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, masfro.NewDataCollectionError("gauges", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, masfro.NewDataCollectionError("gauges", err)
	}

	var parsed gaugesAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, masfro.NewDataCollectionError("gauges", err)
	}

	now := time.Now().UTC()
	var out []StationReading
	for _, s := range parsed.Stations {
		if !matchesAny(s.Name, g.substrings) {
			continue
		}
		r := StationReading{
			StationName: s.Name,
			WaterLevelM: s.WaterLevelM,
			Timestamp:   now,
			Source:      "gauges_api",
		}
		if s.AlertM != nil {
			r.AlertM = *s.AlertM
		}
		if s.AlarmM != nil {
			r.AlarmM = *s.AlarmM
		}
		if s.CriticalM != nil {
			r.CriticalM = *s.CriticalM
		}
		out = append(out, r)
	}
	return out, nil
}

func matchesAny(name string, substrings []string) bool {
	if len(substrings) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// SimulatedGauges is a deterministic-shape stand-in used when no real
// endpoint is configured; a configured endpoint that fails is not
// replaced by it.
type SimulatedGauges struct {
	stations []string
}

// NewSimulatedGauges builds a simulator over a fixed station list.
func NewSimulatedGauges(stations []string) *SimulatedGauges {
	if len(stations) == 0 {
		stations = []string{"Marikina River - Nangka", "Marikina River - Sto. Nino", "Marikina River - Tumana"}
	}
	return &SimulatedGauges{stations: stations}
}

func (s *SimulatedGauges) Fetch(ctx context.Context) ([]StationReading, error) {
	now := time.Now().UTC()
	out := make([]StationReading, 0, len(s.stations))
	for _, name := range s.stations {
		out = append(out, StationReading{
			StationName: name,
			WaterLevelM: 12 + rand.Float64()*6,
			AlertM:      15,
			AlarmM:      18,
			CriticalM:   21,
			Timestamp:   now,
			Source:      "simulated",
		})
	}
	return out, nil
}

// ClassifyStation derives status and risk per spec.md §4.5: compare
// water level against the station's own thresholds, falling back to the
// supplied defaults when a threshold is zero.
func ClassifyStation(r StationReading, defaultAlert, defaultAlarm, defaultCritical float64) (status string, risk float64) {
	alert, alarm, critical := r.AlertM, r.AlarmM, r.CriticalM
	if alert == 0 {
		alert = defaultAlert
	}
	if alarm == 0 {
		alarm = defaultAlarm
	}
	if critical == 0 {
		critical = defaultCritical
	}

	switch {
	case r.WaterLevelM >= critical:
		return "critical", 1.0
	case r.WaterLevelM >= alarm:
		return "alarm", 0.8
	case r.WaterLevelM >= alert:
		return "alert", 0.5
	default:
		return "normal", 0.2
	}
}

var _ GaugesSource = (*HTTPGauges)(nil)
var _ GaugesSource = (*SimulatedGauges)(nil)
