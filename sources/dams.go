package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	masfro "github.com/PolySpade/masfro"
)

// DamsSource is the "Dams source" contract (spec.md §6): dam records
// with RWL, NHWL, and deviation-based thresholds.
type DamsSource interface {
	Fetch(ctx context.Context) ([]DamReading, error)
}

// HTTPDams pulls dam records from a JSON endpoint.
type HTTPDams struct {
	url    string
	client *http.Client
}

func NewHTTPDams(url string) *HTTPDams {
	return &HTTPDams{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

type damsAPIResponse struct {
	Dams []damsAPIDam `json:"dams"`
}

type damsAPIDam struct {
	Name string  `json:"dam_name"`
	RWL  float64 `json:"rwl"`
	NHWL float64 `json:"nhwl"`
}

func (d *HTTPDams) Fetch(ctx context.Context) ([]DamReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, masfro.NewDataCollectionError("dams", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, masfro.NewDataCollectionError("dams", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, masfro.NewDataCollectionError("dams", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, masfro.NewDataCollectionError("dams", err)
	}

	var parsed damsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, masfro.NewDataCollectionError("dams", err)
	}

	now := time.Now().UTC()
	out := make([]DamReading, 0, len(parsed.Dams))
	for _, dd := range parsed.Dams {
		out = append(out, DamReading{
			DamName:   dd.Name,
			RWL:       dd.RWL,
			NHWL:      dd.NHWL,
			Timestamp: now,
			Source:    "dams_api",
		})
	}
	return out, nil
}

// SimulatedDams is a deterministic-shape fallback.
type SimulatedDams struct {
	dams []string
}

func NewSimulatedDams(dams []string) *SimulatedDams {
	if len(dams) == 0 {
		dams = []string{"La Mesa Dam", "Angat Dam", "Ipo Dam"}
	}
	return &SimulatedDams{dams: dams}
}

func (s *SimulatedDams) Fetch(ctx context.Context) ([]DamReading, error) {
	now := time.Now().UTC()
	out := make([]DamReading, 0, len(s.dams))
	for _, name := range s.dams {
		nhwl := 80.0
		out = append(out, DamReading{
			DamName:   name,
			RWL:       nhwl - 5 + rand.Float64()*10,
			NHWL:      nhwl,
			Timestamp: now,
			Source:    "simulated",
		})
	}
	return out, nil
}

// ClassifyDam derives status and risk from deviation-from-NHWL per
// spec.md §4.5: <0 normal(0.1); >=0 watch(0.3); >=alert alert(0.5);
// >=alarm alarm(0.8); >=critical critical(1.0).
func ClassifyDam(r DamReading, alertM, alarmM, criticalM float64) (status string, risk float64) {
	deviation := r.RWL - r.NHWL
	switch {
	case deviation >= criticalM:
		return "critical", 1.0
	case deviation >= alarmM:
		return "alarm", 0.8
	case deviation >= alertM:
		return "alert", 0.5
	case deviation >= 0:
		return "watch", 0.3
	default:
		return "normal", 0.1
	}
}

var _ DamsSource = (*HTTPDams)(nil)
var _ DamsSource = (*SimulatedDams)(nil)
