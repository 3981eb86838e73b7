// Package repository persists the engine's append-only history: score
// records, feature snapshots, recommendations, bundles, feedback and
// model versions.
package repository

import (
	"context"
	"time"

	"github.com/cscx/pulse/internal/domain/calibration"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/scoring"
)

// PortfolioFilter narrows a portfolio score query.
type PortfolioFilter struct {
	EntityType model.EntityType
	Portfolio  string
	Band       model.Band
	Limit      int
	Offset     int
}

// PortfolioStats aggregates the filtered (pre-pagination) set. Mean,
// Min, Max and the band counts cover scored records only; entities
// whose latest record is unavailable are counted in Unscored.
type PortfolioStats struct {
	Total    int
	Unscored int
	Mean     float64
	Min      float64
	Max      float64
	Healthy  int
	Warning  int
	Critical int
}

// PortfolioPage is one page of latest-per-entity scores plus aggregate
// statistics over the whole filtered set.
type PortfolioPage struct {
	Records []model.ScoreRecord
	Stats   PortfolioStats
}

// Store is the persistence contract the service wires against.
type Store interface {
	UpsertEntity(ctx context.Context, e model.Entity) error
	Entity(ctx context.Context, entityID string) (model.Entity, error)
	Entities(ctx context.Context, includeArchived bool) ([]model.Entity, error)

	AppendFeatureSet(ctx context.Context, fs model.FeatureSet) error
	FeatureSets(ctx context.Context, entityID string) ([]model.FeatureSet, error)

	AppendScoreRecord(ctx context.Context, rec model.ScoreRecord) error
	ScoreRecordByID(ctx context.Context, recordID string) (model.ScoreRecord, error)
	LatestScore(ctx context.Context, entityID string) (model.ScoreRecord, error)
	ScoreHistory(ctx context.Context, entityID string, since time.Time, limit int) ([]model.ScoreRecord, error)
	PortfolioScores(ctx context.Context, f PortfolioFilter) (PortfolioPage, error)

	SaveRecommendations(ctx context.Context, recs []model.Recommendation) error
	RecommendationsFor(ctx context.Context, recordID string) ([]model.Recommendation, error)

	SaveBundle(ctx context.Context, b model.AlertBundle) error

	AppendFeedback(ctx context.Context, fb model.FeedbackRecord) error
	Outcomes(ctx context.Context, modelName string) ([]calibration.Outcome, error)
	ObservedImpact(ctx context.Context, factor string) (impact float64, samples int, err error)

	SaveModelVersion(ctx context.Context, m scoring.Model) error
	ModelVersionHistory(ctx context.Context, name string) ([]scoring.Model, error)

	Close() error
}
