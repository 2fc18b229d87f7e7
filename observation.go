package masfro

import "time"

// ObservationKind tags the variant carried by an ObservationRecord. This
// replaces the original system's `content: dict[str, any]` grab-bag with
// a tagged-variant struct per spec.md §9's redesign note.
type ObservationKind string

const (
	ObservationRiverStation ObservationKind = "river_station"
	ObservationDam          ObservationKind = "dam"
	ObservationRainfall     ObservationKind = "rainfall"
	ObservationAdvisory     ObservationKind = "advisory"
	ObservationScoutReport  ObservationKind = "scout_report"
)

// ReportType enumerates a scout report's classification (spec.md §3).
type ReportType string

const (
	ReportFlood       ReportType = "flood"
	ReportClear       ReportType = "clear"
	ReportBlocked     ReportType = "blocked"
	ReportFlooded     ReportType = "flooded"
	ReportTraffic     ReportType = "traffic"
	ReportObservation ReportType = "observation"
)

// VisualEvidence is the optional image-analysis block attached to a
// scout report.
type VisualEvidence struct {
	EstimatedDepthM  float64
	Risk             float64
	VehiclesPassable []string
}

// ObservationRecord is one normalized reading from a C5/C6 source. Only
// the fields matching Kind are meaningful; the rest are zero.
type ObservationRecord struct {
	Kind      ObservationKind
	Timestamp time.Time
	Source    string

	// River station.
	StationName string
	WaterLevelM float64
	AlertM      float64
	AlarmM      float64
	CriticalM   float64
	Status      string
	Risk        float64

	// Dam (reuses StationName for dam name, Risk/Status for classification).
	RWL  float64
	NHWL float64

	// Rainfall.
	RainfallMM float64
	Intensity  string

	// Parsed advisory.
	AdvisoryType  string
	WarningColor  string
	AffectedAreas []string

	// Scout report.
	LocationName    string
	Lat, Lon        float64
	HasCoords       bool
	Severity        float64
	Confidence      float64
	ReportType      ReportType
	VisualEvidence  *VisualEvidence
}
