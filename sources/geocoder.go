package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	masfro "github.com/PolySpade/masfro"
)

// Geocoder resolves a free-text location string to coordinates. Any
// failure is silent to the caller and is not logged — Scout
// reports without a resolvable location are dropped rather than
// retried.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (lat, lon float64, ok bool)
}

// HTTPGeocoder calls an external geocoding API (e.g. a Nominatim-
// compatible endpoint) and falls back to a configured lookup table of
// known place names when the API is unavailable or returns nothing.
type HTTPGeocoder struct {
	baseURL  string
	client   *http.Client
	fallback map[string][2]float64
}

func NewHTTPGeocoder(baseURL string, fallback map[string][2]float64) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 8 * time.Second},
		fallback: fallback,
	}
}

type geocoderAPIResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, location string) (float64, float64, bool) {
	if g.baseURL != "" {
		if lat, lon, ok := g.geocodeHTTP(ctx, location); ok {
			return lat, lon, true
		}
	}
	if coords, ok := g.fallback[location]; ok {
		return coords[0], coords[1], true
	}
	return 0, 0, false
}

func (g *HTTPGeocoder) geocodeHTTP(ctx context.Context, location string) (float64, float64, bool) {
	reqURL := fmt.Sprintf("%s?q=%s&format=json&limit=1", g.baseURL, url.QueryEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, 0, false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; MASFROBot/1.0)")

	resp, err := g.client.Do(req)
	if err != nil {
		_ = masfro.NewDataCollectionError("geocoder", err)
		return 0, 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, 0, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, 0, false
	}

	var results []geocoderAPIResult
	if err := json.Unmarshal(body, &results); err != nil || len(results) == 0 {
		return 0, 0, false
	}

	var lat, lon float64
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &lat); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &lon); err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

var _ Geocoder = (*HTTPGeocoder)(nil)
