package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/araddon/dateparse"

	masfro "github.com/PolySpade/masfro"
)

// SocialSource is the "Social source" contract (spec.md §6): posts with
// tweet_id, username, text, timestamp, url, optional image_path.
type SocialSource interface {
	Fetch(ctx context.Context) ([]SocialPost, error)
}

// HTTPSocial pulls posts from a JSON endpoint. Timestamps are parsed
// with araddon/dateparse since social APIs mix RFC3339, RFC1123, and
// ad-hoc formats.
type HTTPSocial struct {
	url    string
	client *http.Client
}

func NewHTTPSocial(url string) *HTTPSocial {
	return &HTTPSocial{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

type socialAPIResponse struct {
	Posts []socialAPIPost `json:"posts"`
}

type socialAPIPost struct {
	TweetID   string `json:"tweet_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	ImagePath string `json:"image_path"`
}

func (s *HTTPSocial) Fetch(ctx context.Context) ([]SocialPost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, masfro.NewDataCollectionError("social", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, masfro.NewDataCollectionError("social", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, masfro.NewDataCollectionError("social", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, masfro.NewDataCollectionError("social", err)
	}

	var parsed socialAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, masfro.NewDataCollectionError("social", err)
	}

	now := time.Now().UTC()
	out := make([]SocialPost, 0, len(parsed.Posts))
	for _, p := range parsed.Posts {
		ts := now
		if p.Timestamp != "" {
			if parsedTime, err := dateparse.ParseAny(p.Timestamp); err == nil {
				ts = parsedTime.UTC()
			}
		}
		out = append(out, SocialPost{
			TweetID:   p.TweetID,
			Username:  p.Username,
			Text:      p.Text,
			Timestamp: ts,
			URL:       p.URL,
			ImagePath: p.ImagePath,
			Source:    "social_api",
		})
	}
	return out, nil
}

// SimulatedSocial is a deterministic-shape fallback generator for the
// Scout Agent's scout-report pipeline when no real social feed is wired.
type SimulatedSocial struct {
	locations []string
}

func NewSimulatedSocial(locations []string) *SimulatedSocial {
	if len(locations) == 0 {
		locations = []string{"Marcos Highway", "Nangka", "A. Bonifacio Ave"}
	}
	return &SimulatedSocial{locations: locations}
}

var simulatedSocialTexts = []string{
	"Flooding ankle-deep near %s, passable for most vehicles",
	"Water rising fast at %s, knee-deep and climbing",
	"%s impassable, waist-deep floodwater reported",
	"Heavy flooding at %s, residents evacuating",
}

func (s *SimulatedSocial) Fetch(ctx context.Context) ([]SocialPost, error) {
	now := time.Now().UTC()
	loc := s.locations[rand.Intn(len(s.locations))]
	text := simulatedSocialTexts[rand.Intn(len(simulatedSocialTexts))]
	return []SocialPost{{
		TweetID:   fmt.Sprintf("sim-%d", now.UnixNano()),
		Username:  "sim_user",
		Text:      fmt.Sprintf(text, loc),
		Timestamp: now,
		Source:    "simulated",
	}}, nil
}

var _ SocialSource = (*HTTPSocial)(nil)
var _ SocialSource = (*SimulatedSocial)(nil)
