package sources

import (
	"bytes"
	"container/ring"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	pdf "github.com/ledongthuc/pdf"

	masfro "github.com/PolySpade/masfro"
	"github.com/PolySpade/masfro/llm"
)

// AdvisorySource is the "Advisory source(s)" contract (spec.md §6): HTML
// pages and/or RSS 2.0 feeds.
type AdvisorySource interface {
	Fetch(ctx context.Context) ([]Advisory, error)
}

// HTTPAdvisory fetches one or more advisory URLs (HTML page, RSS feed, or
// PDF bulletin) and extracts readable text, adapted from the teacher's
// http_fetch tool (tools/http/http.go) which used go-readability the same
// way for arbitrary web pages.
type HTTPAdvisory struct {
	urls   []string
	client *http.Client
}

func NewHTTPAdvisory(urls []string) *HTTPAdvisory {
	return &HTTPAdvisory{urls: urls, client: &http.Client{Timeout: 15 * time.Second}}
}

func (a *HTTPAdvisory) Fetch(ctx context.Context) ([]Advisory, error) {
	var out []Advisory
	var firstErr error
	for _, u := range a.urls {
		adv, err := a.fetchOne(ctx, u)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, adv...)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (a *HTTPAdvisory) fetchOne(ctx context.Context, rawURL string) ([]Advisory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, masfro.NewDataCollectionError("advisory", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; MASFROBot/1.0)")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, masfro.NewDataCollectionError("advisory", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, masfro.NewDataCollectionError("advisory", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, masfro.NewDataCollectionError("advisory", err)
	}

	now := time.Now().UTC()
	contentType := resp.Header.Get("Content-Type")

	switch {
	case strings.Contains(contentType, "pdf") || strings.HasSuffix(strings.ToLower(rawURL), ".pdf"):
		text, err := extractPDFText(body)
		if err != nil {
			return nil, masfro.NewDataCollectionError("advisory", err)
		}
		return []Advisory{{Text: text, URL: rawURL, FetchedAt: now, Source: "pdf_bulletin"}}, nil

	case strings.Contains(contentType, "xml") || strings.Contains(contentType, "rss") || looksLikeRSS(body):
		return parseRSS(body, rawURL, now)

	default:
		parsedURL, _ := url.Parse(rawURL)
		article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
		text := ""
		if err == nil {
			text = strings.TrimSpace(article.TextContent)
		}
		if text == "" {
			text = stripHTMLTags(string(body))
		}
		return []Advisory{{Text: text, URL: rawURL, FetchedAt: now, Source: "advisory_html"}}, nil
	}
}

func extractPDFText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
}

func looksLikeRSS(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	head := trimmed
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.Contains(head, []byte("<rss"))
}

func parseRSS(body []byte, sourceURL string, fetchedAt time.Time) ([]Advisory, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, masfro.NewDataCollectionError("advisory", fmt.Errorf("parse rss: %w", err))
	}
	out := make([]Advisory, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		text := strings.TrimSpace(item.Title + "\n" + stripHTMLTags(item.Description))
		link := item.Link
		if link == "" {
			link = sourceURL
		}
		out = append(out, Advisory{Text: text, URL: link, FetchedAt: fetchedAt, Source: "advisory_rss"})
	}
	return out, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTMLTags(html string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(html, " "))
}

// Dedup is the MD5-keyed advisory dedup ring (spec.md §4.5): a bounded
// ring buffer of ≤5000 hashes of trimmed advisory text.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
	r    *ring.Ring
	cap  int
}

// NewDedup builds a dedup ring of the given capacity (spec.md default 5000).
func NewDedup(capacity int) *Dedup {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Dedup{
		seen: make(map[string]struct{}, capacity),
		r:    ring.New(capacity),
		cap:  capacity,
	}
}

// SeenBefore reports whether this text's hash was already recorded, and
// records it if not.
func (d *Dedup) SeenBefore(text string) bool {
	hash := hashText(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[hash]; ok {
		return true
	}

	if d.r.Value != nil {
		evicted := d.r.Value.(string)
		delete(d.seen, evicted)
	}
	d.r.Value = hash
	d.r = d.r.Next()
	d.seen[hash] = struct{}{}
	return false
}

func hashText(text string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// advisoryWarningColor and advisoryType rule-based fallback keyword maps.
var (
	reWarningRed    = regexp.MustCompile(`(?i)red\s*warning|emergency\s*evacuation`)
	reWarningOrange = regexp.MustCompile(`(?i)orange\s*warning`)
	reWarningYellow = regexp.MustCompile(`(?i)yellow\s*warning`)

	reTypeTyphoon = regexp.MustCompile(`(?i)typhoon|bagyo|signal\s*no\.?\s*\d`)
	reTypeFlood   = regexp.MustCompile(`(?i)flood|baha`)
	reTypeRainfall = regexp.MustCompile(`(?i)rainfall|heavy\s*rain|thunderstorm`)
)

// ParseAdvisory attempts an LLM structured parse first, falling back to a
// deterministic rule-based parse (regex on warning-color keywords,
// advisory type, affected-area substrings) per spec.md §4.5.
func ParseAdvisory(ctx context.Context, facade *llm.Facade, adv Advisory, knownAreas []string) llm.PagasaAdvisory {
	if facade != nil {
		if parsed, ok := facade.ParsePagasaAdvisory(ctx, adv.Text); ok {
			return parsed
		}
	}
	return ruleBasedAdvisoryParse(adv.Text, knownAreas)
}

func ruleBasedAdvisoryParse(text string, knownAreas []string) llm.PagasaAdvisory {
	var color string
	switch {
	case reWarningRed.MatchString(text):
		color = "red"
	case reWarningOrange.MatchString(text):
		color = "orange"
	case reWarningYellow.MatchString(text):
		color = "yellow"
	default:
		color = "yellow"
	}

	var kind string
	switch {
	case reTypeTyphoon.MatchString(text):
		kind = "typhoon"
	case reTypeFlood.MatchString(text):
		kind = "flood"
	case reTypeRainfall.MatchString(text):
		kind = "rainfall"
	default:
		kind = "rainfall"
	}

	lower := strings.ToLower(text)
	var areas []string
	for _, area := range knownAreas {
		if strings.Contains(lower, strings.ToLower(area)) {
			areas = append(areas, area)
		}
	}

	headline := text
	if idx := strings.IndexAny(text, ".\n"); idx > 0 && idx < 200 {
		headline = strings.TrimSpace(text[:idx])
	}

	return llm.PagasaAdvisory{
		WarningColor:  color,
		AdvisoryType:  kind,
		AffectedAreas: areas,
		Headline:      headline,
	}
}

var _ AdvisorySource = (*HTTPAdvisory)(nil)
