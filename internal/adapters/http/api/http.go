// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cscx/pulse/internal/adapters/repository"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/scoring"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// IngestEvent validates, dedupes and enqueues an inbound event.
	// duplicate is true for a replayed event id; ErrBackpressure wraps
	// shed load.
	IngestEvent(ctx context.Context, e model.Event) (duplicate bool, err error)

	LatestScore(ctx context.Context, entityID string) (model.ScoreRecord, error)
	ScoreHistory(ctx context.Context, entityID string, since time.Time, limit int) ([]model.ScoreRecord, error)
	PortfolioScores(ctx context.Context, f repository.PortfolioFilter) (repository.PortfolioPage, error)
	RecommendationsFor(ctx context.Context, recordID string) ([]model.Recommendation, error)

	SubmitFeedback(ctx context.Context, fb model.FeedbackRecord) (model.FeedbackRecord, error)

	ModelVersions(ctx context.Context, name string) ([]scoring.Model, error)
	Recalibrate(ctx context.Context, name string) (scoring.Model, error)
}

// StatsProvider exposes service statistics for GET /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	eventsHandler    *EventsHandler
	scoresHandler    *ScoresHandler
	portfolioHandler *PortfolioHandler
	modelsHandler    *ModelsHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		eventsHandler:    NewEventsHandler(deps),
		scoresHandler:    NewScoresHandler(deps),
		portfolioHandler: NewPortfolioHandler(deps),
		modelsHandler:    NewModelsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/scores/", MetricsMiddleware(s.scoresHandler.HandleScores, "scores"))
	mux.HandleFunc("/portfolio/scores", MetricsMiddleware(s.portfolioHandler.HandleGetPortfolio, "portfolio"))
	mux.HandleFunc("/models/", MetricsMiddleware(s.modelsHandler.HandleModels, "models"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Wire DTOs. Domain structs stay tag-free; the API owns its shapes.

type trendDTO struct {
	Direction  string  `json:"direction"`
	Velocity   float64 `json:"velocity"`
	Confidence float64 `json:"confidence"`
	WindowDays int     `json:"window_days"`
}

type factorDTO struct {
	Factor       string  `json:"factor"`
	RawValue     float64 `json:"raw_value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Explanation  string  `json:"explanation,omitempty"`
	Skipped      bool    `json:"skipped,omitempty"`
	SkipReason   string  `json:"skip_reason,omitempty"`
}

type scoreResponse struct {
	RecordID        string              `json:"record_id"`
	EntityID        string              `json:"entity_id"`
	EntityType      string              `json:"entity_type"`
	Model           string              `json:"model"`
	ModelVersion    int                 `json:"model_version"`
	Score           *float64            `json:"score"` // null when no score is computable
	Reason          string              `json:"reason,omitempty"`
	Band            string              `json:"band,omitempty"`
	Confidence      float64             `json:"confidence"`
	LowConfidence   bool                `json:"low_confidence"`
	Partial         bool                `json:"partial"`
	Trend           trendDTO            `json:"trend"`
	Factors         []factorDTO         `json:"factors"`
	Summary         string              `json:"summary,omitempty"`
	CalculatedAt    time.Time           `json:"calculated_at"`
	Recommendations []recommendationDTO `json:"recommendations,omitempty"`
}

type recommendationDTO struct {
	ID             string    `json:"id"`
	Factor         string    `json:"factor"`
	Action         string    `json:"action"`
	ExpectedImpact float64   `json:"expected_impact"`
	Effort         string    `json:"effort"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func toScoreResponse(rec model.ScoreRecord, recs []model.Recommendation) scoreResponse {
	out := scoreResponse{
		RecordID:      rec.RecordID,
		EntityID:      rec.EntityID,
		EntityType:    string(rec.EntityType),
		Model:         rec.ModelName,
		ModelVersion:  rec.ModelVersion,
		Reason:        rec.Reason,
		Confidence:    rec.Confidence,
		LowConfidence: rec.LowConfidence,
		Partial:       rec.Partial,
		Trend: trendDTO{
			Direction:  string(rec.Trend.Direction),
			Velocity:   rec.Trend.Velocity,
			Confidence: rec.Trend.Confidence,
			WindowDays: rec.Trend.WindowDays,
		},
		Summary:      rec.Summary,
		CalculatedAt: rec.CalculatedAt,
	}
	if rec.Available {
		score := rec.Score
		out.Score = &score
		out.Band = string(rec.Band())
	}
	out.Factors = make([]factorDTO, 0, len(rec.Factors))
	for _, c := range rec.Factors {
		out.Factors = append(out.Factors, factorDTO{
			Factor:       c.Factor,
			RawValue:     c.RawValue,
			Weight:       c.Weight,
			Contribution: c.Contribution,
			Explanation:  c.Explanation,
			Skipped:      c.Skipped,
			SkipReason:   c.SkipReason,
		})
	}
	for _, r := range recs {
		out.Recommendations = append(out.Recommendations, recommendationDTO{
			ID:             r.ID,
			Factor:         r.Factor,
			Action:         r.Action,
			ExpectedImpact: r.ExpectedImpact,
			Effort:         string(r.Effort),
			Status:         string(r.Status),
			CreatedAt:      r.CreatedAt,
		})
	}
	return out
}

type modelDTO struct {
	Name      string           `json:"name"`
	Version   int              `json:"version"`
	MaxScore  float64          `json:"max_score"`
	Factors   []modelFactorDTO `json:"factors"`
	CreatedAt time.Time        `json:"created_at"`
}

type modelFactorDTO struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Feature    string  `json:"feature"`
	Weight     float64 `json:"weight"`
	WindowDays int     `json:"window_days,omitempty"`
}

func toModelDTO(m scoring.Model) modelDTO {
	out := modelDTO{
		Name:      m.Name,
		Version:   m.Version,
		MaxScore:  m.MaxScore,
		CreatedAt: m.CreatedAt,
	}
	for _, f := range m.Factors {
		out.Factors = append(out.Factors, modelFactorDTO{
			Name:       f.Name,
			Kind:       string(f.Kind),
			Feature:    f.Feature,
			Weight:     f.Weight,
			WindowDays: f.WindowDays,
		})
	}
	return out
}
