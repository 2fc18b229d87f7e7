// Package config loads MAS-FRO's runtime configuration: defaults, then an
// optional TOML file, then environment overrides (env wins).
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	TickIntervalSeconds     float64               `toml:"tick_interval_seconds"`
	FloodUpdateIntervalSec  float64               `toml:"flood_update_interval_sec"`
	ScoutTTLMinutes         float64               `toml:"scout_ttl_minutes"`
	FloodTTLMinutes         float64               `toml:"flood_ttl_minutes"`
	RiskWeights             RiskWeights           `toml:"risk_weights"`
	DepthToRisk             DepthToRisk           `toml:"depth_to_risk"`
	RainfallThresholdsMM    RainfallThresholds    `toml:"rainfall_thresholds_mm"`
	WaterLevelM             ThreeTierThreshold    `toml:"water_level"`
	DamM                    ThreeTierThreshold    `toml:"dam"`
	RiskPenalties           RiskPenalties         `toml:"risk_penalties"`
	MaxNodeDistanceM        float64               `toml:"max_node_distance_m"`
	CriticalRiskThreshold   float64               `toml:"critical_risk_threshold"`
	RiskRadiusM             float64               `toml:"risk_radius_m"`
	VisualOverride          VisualOverride        `toml:"visual_override"`
	MissionTimeouts         MissionTimeouts       `toml:"mission_timeouts"`
	MaxConcurrentMissions   int                   `toml:"max_concurrent_missions"`
	MaxCompletedHistory     int                   `toml:"max_completed_history"`
	MaxChatTurns            int                   `toml:"max_chat_turns"`
	Coordinates             CoordinateBounds      `toml:"coordinates"`
	Database                DatabaseConfig        `toml:"database"`
	LLM                     LLMConfig             `toml:"llm"`
	Sources                 SourcesConfig         `toml:"sources"`
	Observer                ObserverConfig        `toml:"observer"`
	GraphPath               string                `toml:"graph_path"`
	SnapshotPath            string                `toml:"snapshot_path"`
	SnapshotMinPeriodSec    float64               `toml:"snapshot_min_period_sec"`
	EvacuationCentersCSV    string                `toml:"evacuation_centers_csv"`
}

type RiskWeights struct {
	FloodDepth    float64 `toml:"flood_depth"`
	Crowdsourced  float64 `toml:"crowdsourced"`
	Historical    float64 `toml:"historical"`
}

type DepthToRisk struct {
	Method            string  `toml:"method"`
	SigmoidSteepness  float64 `toml:"sigmoid_steepness"`
	SigmoidInflection float64 `toml:"sigmoid_inflection"`
	MaxDepthM         float64 `toml:"max_depth_m"`
}

type RainfallThresholds struct {
	Light    float64 `toml:"light"`
	Moderate float64 `toml:"moderate"`
	Heavy    float64 `toml:"heavy"`
	Extreme  float64 `toml:"extreme"`
}

// ThreeTierThreshold covers both water_level and dam, which share the
// alert/alarm/critical shape in spec.md §6.
type ThreeTierThreshold struct {
	Alert    float64 `toml:"alert"`
	Alarm    float64 `toml:"alarm"`
	Critical float64 `toml:"critical"`
}

type RiskPenalties struct {
	Safest   float64 `toml:"safest"`
	Balanced float64 `toml:"balanced"`
	Fastest  float64 `toml:"fastest"`
}

type VisualOverride struct {
	RiskThreshold       float64 `toml:"risk_threshold"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
}

type MissionTimeouts struct {
	Default              float64 `toml:"default"`
	AssessRisk           float64 `toml:"assess_risk"`
	CoordinatedEvacuation float64 `toml:"coordinated_evacuation"`
	RouteCalculation     float64 `toml:"route_calculation"`
	CascadeRiskUpdate    float64 `toml:"cascade_risk_update"`
}

type CoordinateBounds struct {
	MinLat float64 `toml:"min_lat"`
	MaxLat float64 `toml:"max_lat"`
	MinLon float64 `toml:"min_lon"`
	MaxLon float64 `toml:"max_lon"`
}

type DatabaseConfig struct {
	Driver     string `toml:"driver"` // "sqlite", "postgres", or "libsql"
	Path       string `toml:"path"`
	DSN        string `toml:"dsn"`
	TursoURL   string `toml:"turso_url"`
	TursoToken string `toml:"turso_token"`
}

type LLMConfig struct {
	Provider        string  `toml:"provider"`
	Model           string  `toml:"model"`
	APIKey          string  `toml:"api_key"`
	HealthCacheSec  float64 `toml:"health_cache_sec"`
	ResponseCacheSec float64 `toml:"response_cache_sec"`
	ResponseCacheMax int    `toml:"response_cache_max"`
}

type SourcesConfig struct {
	GaugesURL   string `toml:"gauges_url"`
	DamsURL     string `toml:"dams_url"`
	WeatherURL  string `toml:"weather_url"`
	AdvisoryURLs []string `toml:"advisory_urls"`
	SocialURL   string `toml:"social_url"`
	GeocoderURL string `toml:"geocoder_url"`
	FallbackLocations map[string][2]float64 `toml:"fallback_locations"`
}

type ObserverConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Default returns a Config with every key populated to a sane baseline.
// Values mirror the original Python system's documented defaults, adapted
// from original_source/ where spec.md itself is silent on a number.
func Default() Config {
	return Config{
		TickIntervalSeconds:    1.0,
		FloodUpdateIntervalSec: 300.0,
		ScoutTTLMinutes:        45.0,
		FloodTTLMinutes:        90.0,
		RiskWeights: RiskWeights{
			FloodDepth:   0.5,
			Crowdsourced: 0.3,
			Historical:   0.2,
		},
		DepthToRisk: DepthToRisk{
			Method:            "sigmoid",
			SigmoidSteepness:  1.0,
			SigmoidInflection: 0.5,
			MaxDepthM:         2.0,
		},
		RainfallThresholdsMM: RainfallThresholds{
			Light:    2.5,
			Moderate: 7.5,
			Heavy:    15.0,
			Extreme:  30.0,
		},
		WaterLevelM: ThreeTierThreshold{Alert: 14.0, Alarm: 15.0, Critical: 16.0},
		DamM:        ThreeTierThreshold{Alert: 0.5, Alarm: 0.8, Critical: 1.0},
		RiskPenalties: RiskPenalties{
			Safest:   100.0,
			Balanced: 3.0,
			Fastest:  0.0,
		},
		MaxNodeDistanceM:      500.0,
		CriticalRiskThreshold: 0.9,
		RiskRadiusM:           500.0,
		VisualOverride: VisualOverride{
			RiskThreshold:       0.7,
			ConfidenceThreshold: 0.75,
		},
		MissionTimeouts: MissionTimeouts{
			Default:               300,
			AssessRisk:            120,
			CoordinatedEvacuation: 600,
			RouteCalculation:      60,
			CascadeRiskUpdate:     180,
		},
		MaxConcurrentMissions: 50,
		MaxCompletedHistory:   100,
		MaxChatTurns:          20,
		Coordinates: CoordinateBounds{
			MinLat: 14.40, MaxLat: 14.80,
			MinLon: 120.90, MaxLon: 121.20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "masfro.db",
		},
		LLM: LLMConfig{
			Provider:         "gemini",
			Model:            "gemini-2.5-flash",
			HealthCacheSec:   60,
			ResponseCacheSec: 300,
			ResponseCacheMax: 100,
		},
		GraphPath:            "data/road_graph.json",
		SnapshotPath:         "data/risk_snapshot.gob",
		SnapshotMinPeriodSec: 600,
		EvacuationCentersCSV: "data/evacuation_centers.csv",
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). Unknown
// TOML keys are rejected (spec.md §6: "unknowns rejected at startup").
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "masfro.toml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, validate(cfg)
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	applyEnvOverrides(&cfg)
	return cfg, validate(cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MASFRO_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MASFRO_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("MASFRO_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MASFRO_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MASFRO_TURSO_URL"); v != "" {
		cfg.Database.TursoURL = v
	}
	if v := os.Getenv("MASFRO_TURSO_TOKEN"); v != "" {
		cfg.Database.TursoToken = v
	}
	if v := os.Getenv("MASFRO_OTLP_ENDPOINT"); v != "" {
		cfg.Observer.OTLPEndpoint = v
	}
	if v := os.Getenv("MASFRO_OBSERVER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observer.Enabled = b
		}
	}
	if v := os.Getenv("MASFRO_GRAPH_PATH"); v != "" {
		cfg.GraphPath = v
	}
}

// validate enforces the invariants spec.md calls out explicitly: the risk
// weights must sum to 1, and the coordinate box must be non-degenerate.
func validate(cfg Config) error {
	sum := cfg.RiskWeights.FloodDepth + cfg.RiskWeights.Crowdsourced + cfg.RiskWeights.Historical
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("config: risk_weights must sum to 1, got %v", sum)
	}
	if cfg.Coordinates.MinLat >= cfg.Coordinates.MaxLat || cfg.Coordinates.MinLon >= cfg.Coordinates.MaxLon {
		return fmt.Errorf("config: coordinates bounding box is degenerate")
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" && cfg.Database.Driver != "libsql" {
		return fmt.Errorf("config: unknown database driver %q", cfg.Database.Driver)
	}
	return nil
}
