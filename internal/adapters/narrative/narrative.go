// Package narrative produces the human-readable summary attached to a
// score record. A remote summarizer is called when healthy; any
// failure degrades to a deterministic template so scoring never blocks
// on an external service.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/pkg/logger"
	"github.com/cscx/pulse/pkg/metrics"
)

const (
	defaultTimeout    = 2 * time.Second
	maxResponseBytes  = 64 << 10
	summarizeEndpoint = "/v1/summarize"
)

// Summarizer renders a summary for a computed record. Implementations
// must always return usable text; degradation is internal.
type Summarizer interface {
	Summarize(ctx context.Context, rec model.ScoreRecord) string
}

// Client calls a remote narrative service with circuit breaking and a
// template fallback.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *breaker
	logger  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBreaker replaces the default circuit breaker thresholds.
func WithBreaker(failureThreshold, successThreshold int, recovery time.Duration) Option {
	return func(c *Client) {
		c.breaker = newBreaker(failureThreshold, successThreshold, recovery, nil)
	}
}

// WithHTTPClient injects a custom transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a narrative client. An empty baseURL disables the remote
// path entirely and every summary comes from the template.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		breaker: newBreaker(0, 0, 0, nil),
		logger:  logger.Get().Named("narrative"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type summarizeRequest struct {
	EntityID   string   `json:"entity_id"`
	EntityType string   `json:"entity_type"`
	Model      string   `json:"model"`
	Score      float64  `json:"score"`
	Band       string   `json:"band"`
	Trend      string   `json:"trend"`
	Drivers    []string `json:"drivers"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize returns the remote summary when the service is healthy and
// the template rendering otherwise. It never propagates an error.
func (c *Client) Summarize(ctx context.Context, rec model.ScoreRecord) string {
	if c.baseURL == "" || !c.breaker.allow() {
		metrics.RecordNarrativeFallback()
		return Template(rec)
	}

	summary, err := c.call(ctx, rec)
	if err != nil {
		c.breaker.onFailure()
		metrics.RecordNarrativeFallback()
		c.logger.Warn(ctx, "remote summarizer unavailable",
			logger.String("entity_id", rec.EntityID),
			logger.Error(err),
		)
		return Template(rec)
	}
	c.breaker.onSuccess()
	return summary
}

func (c *Client) call(ctx context.Context, rec model.ScoreRecord) (string, error) {
	metrics.RecordNarrativeRequest()
	start := time.Now()
	defer func() {
		metrics.RecordNarrativeLatency(float64(time.Since(start).Milliseconds()))
	}()

	req := summarizeRequest{
		EntityID:   rec.EntityID,
		EntityType: string(rec.EntityType),
		Model:      rec.ModelName,
		Score:      rec.Score,
		Band:       string(rec.Band()),
		Trend:      string(rec.Trend.Direction),
		Drivers:    driverLines(rec.Factors, 3),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+summarizeEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "", fmt.Errorf("call summarizer: %w", ErrExternalTimeout)
		}
		return "", fmt.Errorf("call summarizer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer status %d", resp.StatusCode)
	}

	var out summarizeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", fmt.Errorf("summarizer returned empty summary")
	}
	return out.Summary, nil
}

// Template renders the deterministic fallback summary from the record
// itself.
func Template(rec model.ScoreRecord) string {
	if !rec.Available {
		return fmt.Sprintf("No score available: %s.", rec.Reason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Score %.1f (%s)", rec.Score, rec.Band())
	switch rec.Trend.Direction {
	case model.Improving:
		b.WriteString(", improving")
	case model.Declining:
		b.WriteString(", declining")
	}
	b.WriteString(".")

	if drivers := driverLines(rec.Factors, 2); len(drivers) > 0 {
		b.WriteString(" Main drivers: ")
		b.WriteString(strings.Join(drivers, "; "))
		b.WriteString(".")
	}
	if rec.Partial {
		b.WriteString(" Some inputs were unavailable.")
	}
	if rec.LowConfidence {
		b.WriteString(" Confidence in this score is low.")
	}
	return b.String()
}

// driverLines picks the top non-skipped factors by contribution and
// returns their explanations (factor names when no explanation was
// rendered).
func driverLines(factors []model.Contribution, n int) []string {
	picked := make([]model.Contribution, 0, len(factors))
	for _, c := range factors {
		if !c.Skipped {
			picked = append(picked, c)
		}
	}
	// Insertion sort by absolute contribution, name tie-break. The
	// slice is a handful of factors, never large.
	for i := 1; i < len(picked); i++ {
		for j := i; j > 0 && less(picked[j], picked[j-1]); j-- {
			picked[j], picked[j-1] = picked[j-1], picked[j]
		}
	}
	if len(picked) > n {
		picked = picked[:n]
	}
	out := make([]string, 0, len(picked))
	for _, c := range picked {
		line := c.Explanation
		if line == "" {
			line = c.Factor
		}
		out = append(out, line)
	}
	return out
}

func less(a, b model.Contribution) bool {
	av, bv := a.Contribution, b.Contribution
	if av < 0 {
		av = -av
	}
	if bv < 0 {
		bv = -bv
	}
	if av != bv {
		return av > bv
	}
	return a.Factor < b.Factor
}
