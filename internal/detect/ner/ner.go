// Package ner provides a Detector backed by a token-classification
// sidecar reached over HTTP. The sidecar exposes POST /classify taking
// {"text": ...} and returning character-offset spans with labels and scores.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"golang.org/x/time/rate"
)

const (
	defaultMinConfidence = 0.40
	defaultRateLimit     = 20
	defaultBurst         = 5
	defaultTimeout       = 10 * time.Second
	maxResponseBytes     = 4 << 20
)

// Config configures the sidecar client.
type Config struct {
	BaseURL string
	// MinConfidence drops spans scoring below it. Nil selects 0.40; an
	// explicit zero keeps every span.
	MinConfidence *float64
	RateLimit     float64
	Burst         int
	Timeout       time.Duration
}

// Detector calls the NER sidecar for encounter notes.
type Detector struct {
	url           string
	minConfidence float64
	http          *http.Client
	limiter       *rate.Limiter
}

// New creates a Detector. Zero-valued fields take defaults.
func New(cfg Config) (*Detector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ner: base URL is required")
	}
	minConfidence := defaultMinConfidence
	if cfg.MinConfidence != nil {
		minConfidence = *cfg.MinConfidence
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("ner: min confidence must be within [0,1], got %v", minConfidence)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Detector{
		url:           strings.TrimRight(cfg.BaseURL, "/") + "/classify",
		minConfidence: minConfidence,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}, nil
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Spans []nerSpan `json:"spans"`
}

type nerSpan struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Detect classifies encounter notes. Blank notes never reach the sidecar.
func (d *Detector) Detect(ctx context.Context, rec record.CanonicalRecord) ([]detect.Finding, error) {
	text := rec.EncounterNotes
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	spans, err := d.classify(ctx, text)
	if err != nil {
		return nil, err
	}

	runes := []rune(text)
	findings := make([]detect.Finding, 0, len(spans))
	for _, s := range spans {
		if s.Score < d.minConfidence {
			continue
		}
		if s.Start < 0 || s.End > len(runes) || s.End <= s.Start {
			continue
		}
		matched := s.Text
		if matched == "" {
			matched = string(runes[s.Start:s.End])
		}
		findings = append(findings, detect.Span(
			record.FieldEncounterNotes, MapLabel(s.Label), detect.SourceHuggingFace,
			clamp01(s.Score), s.Start, s.End, matched,
		))
	}
	return findings, nil
}

func (d *Detector) classify(ctx context.Context, text string) ([]nerSpan, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ner: rate limiter: %w", err)
	}

	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("ner: unexpected status %d", resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, fmt.Errorf("ner: decode: %w", err)
	}
	return result.Spans, nil
}

// MapLabel maps model entity groups onto entity types.
func MapLabel(label string) detect.EntityType {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PER", "PERSON":
		return detect.EntityName
	case "ORG", "ORGANIZATION":
		return detect.EntityOrg
	case "LOC", "LOCATION":
		return detect.EntityLocation
	default:
		return detect.EntityUnknown
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ detect.Detector = (*Detector)(nil)
