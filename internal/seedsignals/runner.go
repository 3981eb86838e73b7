package seedsignals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cscx/pulse/pkg/logger"
)

// Run generates the configured stream, posts it concurrently and
// optionally reads back the portfolio.
func Run(ctx context.Context, cfg *Config) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logger.Named("seed-signals")

	events := Generate(cfg)
	log.Info(ctx, "generated event stream",
		logger.Int("entities", cfg.Entities),
		logger.Int("events", len(events)),
	)

	client := &http.Client{Timeout: cfg.Timeout}
	var accepted, duplicate, failed int64

	jobs := make(chan Event)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				switch post(ctx, client, cfg.BaseURL, ev) {
				case http.StatusAccepted:
					atomic.AddInt64(&accepted, 1)
				case http.StatusOK:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	start := time.Now()
	for _, ev := range events {
		select {
		case jobs <- ev:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return fmt.Errorf("seeding interrupted: %w", ctx.Err())
		}
	}
	close(jobs)
	wg.Wait()

	log.Info(ctx, "seeding complete",
		logger.Int("accepted", int(accepted)),
		logger.Int("duplicate", int(duplicate)),
		logger.Int("failed", int(failed)),
		logger.String("elapsed", time.Since(start).Round(time.Millisecond).String()),
	)
	if failed > 0 {
		return fmt.Errorf("%d events failed to post", failed)
	}

	if cfg.Verify {
		return verify(ctx, client, cfg, log)
	}
	return nil
}

func post(ctx context.Context, client *http.Client, baseURL string, ev Event) int {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

// verify waits for the workers to drain, then checks the portfolio view
// is populated and scores are within bounds.
func verify(ctx context.Context, client *http.Client, cfg *Config, log logger.Logger) error {
	// Give the recompute queue a moment to drain.
	select {
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		cfg.BaseURL+"/portfolio/scores?limit=1000", http.NoBody)
	if err != nil {
		return fmt.Errorf("build portfolio request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch portfolio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("portfolio returned status %d", resp.StatusCode)
	}

	var page struct {
		Records []struct {
			EntityID string   `json:"entity_id"`
			Score    *float64 `json:"score"`
			Band     string   `json:"band"`
		} `json:"records"`
		Stats struct {
			Total    int     `json:"total"`
			Mean     float64 `json:"mean"`
			Critical int     `json:"critical"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return fmt.Errorf("decode portfolio: %w", err)
	}

	for _, rec := range page.Records {
		if rec.Score != nil && (*rec.Score < 0 || *rec.Score > 100) {
			return fmt.Errorf("entity %s has out-of-bounds score %.2f", rec.EntityID, *rec.Score)
		}
	}
	if page.Stats.Total == 0 {
		return fmt.Errorf("portfolio is empty after seeding")
	}

	log.Info(ctx, "portfolio verified",
		logger.Int("scored_entities", page.Stats.Total),
		logger.Float64("mean_score", page.Stats.Mean),
		logger.Int("critical", page.Stats.Critical),
	)
	return nil
}
