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

// WeatherSource is the "Weather source" contract (spec.md §6): "current"
// + "hourly" arrays with an optional rain.1h per entry.
type WeatherSource interface {
	Fetch(ctx context.Context) ([]WeatherReading, error)
}

// HTTPWeather pulls an OpenWeatherMap-shaped current+hourly payload.
type HTTPWeather struct {
	url    string
	name   string
	client *http.Client
}

func NewHTTPWeather(url, stationName string) *HTTPWeather {
	return &HTTPWeather{url: url, name: stationName, client: &http.Client{Timeout: 10 * time.Second}}
}

type weatherAPIResponse struct {
	Current weatherAPIEntry   `json:"current"`
	Hourly  []weatherAPIEntry `json:"hourly"`
}

type weatherAPIEntry struct {
	Dt   int64 `json:"dt"`
	Rain struct {
		OneH float64 `json:"1h"`
	} `json:"rain"`
}

func (w *HTTPWeather) Fetch(ctx context.Context) ([]WeatherReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return nil, masfro.NewDataCollectionError("weather", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, masfro.NewDataCollectionError("weather", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, masfro.NewDataCollectionError("weather", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, masfro.NewDataCollectionError("weather", err)
	}

	var parsed weatherAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, masfro.NewDataCollectionError("weather", err)
	}

	out := []WeatherReading{{
		StationName: w.name,
		RainfallMM:  parsed.Current.Rain.OneH,
		Timestamp:   entryTime(parsed.Current),
		Source:      "weather_api",
	}}
	for _, h := range parsed.Hourly {
		out = append(out, WeatherReading{
			StationName: w.name,
			RainfallMM:  h.Rain.OneH,
			Timestamp:   entryTime(h),
			Source:      "weather_api",
		})
	}
	return out, nil
}

func entryTime(e weatherAPIEntry) time.Time {
	if e.Dt == 0 {
		return time.Now().UTC()
	}
	return time.Unix(e.Dt, 0).UTC()
}

// SimulatedWeather is a deterministic-shape fallback.
type SimulatedWeather struct {
	name string
}

func NewSimulatedWeather(stationName string) *SimulatedWeather {
	return &SimulatedWeather{name: stationName}
}

func (s *SimulatedWeather) Fetch(ctx context.Context) ([]WeatherReading, error) {
	return []WeatherReading{{
		StationName: s.name,
		RainfallMM:  rand.Float64() * 20,
		Timestamp:   time.Now().UTC(),
		Source:      "simulated",
	}}, nil
}

// RainfallIntensity classifies mm/hr using configured cut points
// (light <= moderate <= heavy <= extreme, above is torrential), per
// spec.md §4.5.
func RainfallIntensity(mmPerHour, light, moderate, heavy, extreme float64) string {
	switch {
	case mmPerHour > extreme:
		return "torrential"
	case mmPerHour > heavy:
		return "extreme"
	case mmPerHour > moderate:
		return "heavy"
	case mmPerHour > light:
		return "moderate"
	default:
		return "light"
	}
}

var _ WeatherSource = (*HTTPWeather)(nil)
var _ WeatherSource = (*SimulatedWeather)(nil)
