package agents

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/llm"
	"github.com/PolySpade/masfro/sources"

	"golang.org/x/text/cases"
)

// caseFold does Unicode-aware case folding for matching known-area names
// against free-form report text, which routinely carries Filipino place
// names with accented characters (Parañaque, Baños) that strings.ToLower
// handles only by accident of ASCII overlap.
var caseFold = cases.Fold()

// ScoutConfig configures C6.
type ScoutConfig struct {
	Interval               time.Duration
	KnownAreas             []string
	AllowSimulatedFallback bool // vision fallback when no LLM is available
	LegacyNoCoordsMode     bool // keep reports that failed to geocode
}

// Scout is the Scout Agent (C6): turns crowdsourced posts into
// normalized scout reports. Grounded on spec.md §4.6 and
// original_source/.../scout_agent.py.
type Scout struct {
	base

	social   sources.SocialSource
	geocoder sources.Geocoder
	facade   *llm.Facade

	hazardID string
	cfg      ScoutConfig

	lastRun time.Time
	running atomic.Bool
}

func NewScout(
	id, hazardID string,
	bus *masfro.MessageBus,
	social sources.SocialSource,
	geocoder sources.Geocoder,
	facade *llm.Facade,
	cfg ScoutConfig,
	logger *slog.Logger,
) *Scout {
	return &Scout{
		base:     newBase(id, bus, logger),
		social:   social,
		geocoder: geocoder,
		facade:   facade,
		hazardID: hazardID,
		cfg:      cfg,
	}
}

func (s *Scout) Step(ctx context.Context) {
	s.drain(ctx, func(msg masfro.ACLMessage) {
		if msg.Performative == masfro.Request && msg.Content.Action == "collect_reports" {
			s.startCycle(ctx, msg.Sender, msg.ConversationID)
		}
	})
	if time.Since(s.lastRun) >= s.cfg.Interval {
		s.startCycle(ctx, "", "")
	}
}

// startCycle mirrors collector.go's startCycle: replyTo/conversationID
// let a REQUEST-driven cycle correlate its eventual INFORM back to the
// caller (e.g. the orchestrator's AWAITING_SCOUT phase), in addition to
// the unconditional broadcast to the hazard agent.
func (s *Scout) startCycle(ctx context.Context, replyTo, conversationID string) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.lastRun = time.Now()
	go func() {
		defer s.running.Store(false)
		batch := s.runCycle(ctx)

		visualCount := 0
		for _, r := range batch {
			if r.VisualEvidence != nil {
				visualCount++
			}
		}
		data := map[string]any{
			"reports":             batch,
			"count":                len(batch),
			"with_visual_count":    visualCount,
			"processing_version":   "v1",
		}
		s.inform(s.hazardID, "scout_report_batch", data)

		if replyTo != "" {
			reply := masfro.NewMessage(masfro.Inform, s.id, replyTo, masfro.Content{
				InfoType: "scout_report_batch",
				Data:     data,
			})
			reply.ConversationID = conversationID
			s.send(reply)
		}
	}()
}

func (s *Scout) runCycle(ctx context.Context) []masfro.ObservationRecord {
	if s.social == nil {
		return nil
	}
	posts, err := s.social.Fetch(ctx)
	if err != nil {
		s.logger.Warn("social fetch failed", "err", err)
		return nil
	}

	var batch []masfro.ObservationRecord
	for _, post := range posts {
		rec, ok := s.processPost(ctx, post)
		if ok {
			batch = append(batch, rec)
		}
	}
	return batch
}

// processPost runs the per-post pipeline of spec.md §4.6: image
// analysis, text analysis, fusion, geocoding.
func (s *Scout) processPost(ctx context.Context, post sources.SocialPost) (masfro.ObservationRecord, bool) {
	var visual *masfro.VisualEvidence
	visualRisk := 0.0

	if post.ImagePath != "" && s.facade != nil {
		if analysis, ok := s.facade.AnalyzeFloodImage(ctx, post.ImagePath, s.cfg.AllowSimulatedFallback); ok {
			if analysis.EstimatedDepthM > 0 || analysis.RiskScore > 0 {
				visual = &masfro.VisualEvidence{
					EstimatedDepthM:  analysis.EstimatedDepthM,
					Risk:             analysis.RiskScore,
					VehiclesPassable: analysis.VehiclesPassable,
				}
				visualRisk = analysis.RiskScore
			}
		}
	}

	text := analyzeText(ctx, s.facade, post.Text, s.cfg.KnownAreas)

	finalRisk := text.severity
	if visualRisk > finalRisk {
		finalRisk = visualRisk
	}
	confidence := text.confidence
	if visual != nil && finalRisk > 0.5 {
		confidence = 0.9
	}

	var lat, lon float64
	hasCoords := false
	if text.location != "" && s.geocoder != nil {
		if la, lo, ok := s.geocoder.Geocode(ctx, text.location); ok {
			lat, lon, hasCoords = la, lo, true
		}
	}
	if !hasCoords && !s.cfg.LegacyNoCoordsMode {
		return masfro.ObservationRecord{}, false
	}

	return masfro.ObservationRecord{
		Kind:           masfro.ObservationScoutReport,
		Timestamp:      post.Timestamp,
		Source:         post.Source,
		LocationName:   text.location,
		Lat:            lat,
		Lon:            lon,
		HasCoords:      hasCoords,
		Severity:       finalRisk,
		Confidence:     confidence,
		ReportType:     text.reportType,
		VisualEvidence: visual,
	}, true
}

// textAnalysis is the normalized result of analyzing one post's text,
// whether produced by the LLM or the rule-based NLP fallback.
type textAnalysis struct {
	location   string
	severity   float64
	reportType masfro.ReportType
	confidence float64
}

// analyzeText prefers the LLM facade and falls back to rule-based NLP
// per spec.md §4.6 step 2 when the facade is nil or unavailable.
func analyzeText(ctx context.Context, facade *llm.Facade, text string, knownAreas []string) textAnalysis {
	if facade != nil {
		if analysis, ok := facade.AnalyzeTextReport(ctx, text); ok {
			loc := ""
			if len(analysis.Locations) > 0 {
				loc = analysis.Locations[0]
			}
			return textAnalysis{
				location:   loc,
				severity:   severityFromKeyword(analysis.Severity),
				reportType: reportTypeFromHazard(analysis.HazardType),
				confidence: analysis.Confidence,
			}
		}
	}
	return ruleBasedTextAnalysis(text, knownAreas)
}

var locationPrefix = regexp.MustCompile(`(?i)\b(?:sa|at|in)\s+([A-Za-z0-9ÑñÁáÉéÍíÓóÚú.' -]{3,40})`)

var (
	reDepthAnkle  = regexp.MustCompile(`(?i)ankle[\s-]?deep`)
	reDepthKnee   = regexp.MustCompile(`(?i)knee[\s-]?deep`)
	reDepthWaist  = regexp.MustCompile(`(?i)waist[\s-]?deep`)
	reDepthChest  = regexp.MustCompile(`(?i)chest[\s-]?deep|neck[\s-]?deep`)
	reNumericDepth = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(cm|m|ft)\b`)
	reFloodWord   = regexp.MustCompile(`(?i)\b(baha|flood|flooding|tubig)\b`)
	reClearWord   = regexp.MustCompile(`(?i)\b(clear|passable|walang baha|ok na)\b`)
	reBlockedWord = regexp.MustCompile(`(?i)\b(blocked|impassable|hindi dadaan|closed)\b`)
	reTrafficWord = regexp.MustCompile(`(?i)\b(traffic|trapik|jam)\b`)
)

// ruleBasedTextAnalysis implements the deterministic NLP fallback of
// spec.md §4.6 step 2. Grounded on original_source's scout agent rule
// engine (keyword tables + prefix-pattern location extraction).
func ruleBasedTextAnalysis(text string, knownAreas []string) textAnalysis {
	var location string
	folded := caseFold.String(text)
	for _, area := range knownAreas {
		if strings.Contains(folded, caseFold.String(area)) {
			location = area
			break
		}
	}
	if location == "" {
		if m := locationPrefix.FindStringSubmatch(text); len(m) == 2 {
			location = strings.TrimSpace(m[1])
		}
	}

	severity := 0.0
	signals := 0
	switch {
	case reDepthChest.MatchString(text):
		severity = 0.9
		signals++
	case reDepthWaist.MatchString(text):
		severity = 0.8
		signals++
	case reDepthKnee.MatchString(text):
		severity = 0.5
		signals++
	case reDepthAnkle.MatchString(text):
		severity = 0.15
		signals++
	case reNumericDepth.MatchString(text):
		if m := reNumericDepth.FindStringSubmatch(text); len(m) == 3 {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				meters := v
				switch strings.ToLower(m[2]) {
				case "cm":
					meters = v / 100
				case "ft":
					meters = v * 0.3048
				}
				severity = normalizeDepthToSeverity(meters)
				signals++
			}
		}
	case reFloodWord.MatchString(text):
		severity = 0.4
		signals++
	}

	var reportType masfro.ReportType
	switch {
	case reBlockedWord.MatchString(text):
		reportType = masfro.ReportBlocked
		signals++
	case reClearWord.MatchString(text):
		reportType = masfro.ReportClear
		signals++
	case reTrafficWord.MatchString(text):
		reportType = masfro.ReportTraffic
		signals++
	case reFloodWord.MatchString(text):
		reportType = masfro.ReportFlooded
	default:
		reportType = masfro.ReportObservation
	}

	if location != "" {
		signals++
	}

	confidence := 0.3 + 0.15*float64(signals)
	if confidence > 0.95 {
		confidence = 0.95
	}

	return textAnalysis{location: location, severity: severity, reportType: reportType, confidence: confidence}
}

func normalizeDepthToSeverity(meters float64) float64 {
	switch {
	case meters >= 1.0:
		return 0.9
	case meters >= 0.6:
		return 0.8
	case meters >= 0.3:
		return 0.5
	case meters > 0:
		return 0.15
	default:
		return 0
	}
}

func severityFromKeyword(sev string) float64 {
	switch strings.ToLower(sev) {
	case "critical", "severe":
		return 0.9
	case "high":
		return 0.8
	case "medium", "moderate":
		return 0.5
	case "low", "minor":
		return 0.15
	default:
		return 0.4
	}
}

func reportTypeFromHazard(hazard string) masfro.ReportType {
	switch strings.ToLower(hazard) {
	case "blocked", "impassable":
		return masfro.ReportBlocked
	case "clear", "passable":
		return masfro.ReportClear
	case "traffic":
		return masfro.ReportTraffic
	case "flood", "flooding":
		return masfro.ReportFlooded
	default:
		return masfro.ReportObservation
	}
}

var _ masfro.Agent = (*Scout)(nil)
