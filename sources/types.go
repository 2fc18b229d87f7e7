// Package sources implements the MAS-FRO outbound external-source
// contracts (spec.md §6): river/dam gauges, weather, advisories, social
// posts, flood-depth rasters, and geocoding. Simulated generators stand in
// for sources whose URL is not configured; a configured fetcher that fails
// returns its error, and the collector logs it and skips that source for
// the cycle.
package sources

import "time"

// StationReading is one river-gauge observation.
type StationReading struct {
	StationName  string
	WaterLevelM  float64
	AlertM       float64
	AlarmM       float64
	CriticalM    float64
	Timestamp    time.Time
	Source       string
}

// DamReading is one dam-monitoring observation.
type DamReading struct {
	DamName    string
	RWL        float64 // reservoir water level
	NHWL       float64 // normal high water level
	AlertM     float64
	AlarmM     float64
	CriticalM  float64
	Timestamp  time.Time
	Source     string
}

// WeatherReading is one rainfall observation, current or hourly-forecast.
type WeatherReading struct {
	StationName string
	RainfallMM  float64 // rain.1h equivalent
	Timestamp   time.Time
	Source      string
}

// Advisory is a raw PAGASA/LGU bulletin, pre-parse.
type Advisory struct {
	Text      string
	URL       string
	FetchedAt time.Time
	Source    string
}

// SocialPost is one crowdsourced social-media report.
type SocialPost struct {
	TweetID   string
	Username  string
	Text      string
	Timestamp time.Time
	URL       string
	ImagePath string
	Source    string
}

// RasterLayer identifies a georeferenced flood-depth layer.
type RasterLayer struct {
	ReturnPeriod int // years, e.g. 5, 25, 100
	TimeStep     int // hours into the event
}

// RasterSample is a single depth-at-point lookup result.
type RasterSample struct {
	DepthM     float64
	Found      bool
	LayerKey   RasterLayer
}
