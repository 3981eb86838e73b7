package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/cscx/pulse/internal/domain/calibration"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/scoring"
)

// timeLayout is fixed-width so lexical ordering of stored timestamps
// matches time ordering at nanosecond precision.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Outcome labels counted as the predicted risk materializing.
var adverseOutcomes = map[string]bool{
	"churned":  true,
	"lost":     true,
	"rejected": true,
	"missed":   true,
}

// Success labels counted toward observed recommendation impact.
var successOutcomes = map[string]bool{
	"retained": true,
	"saved":    true,
	"accepted": true,
	"won":      true,
}

// topFactorCount bounds how many factors an outcome attributes.
const topFactorCount = 3

// SQLite implements Store on modernc.org/sqlite with squirrel-built
// queries. All history tables are insert-only.
type SQLite struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (creating if needed) the database at path and runs the
// schema. ":memory:" gives an ephemeral store for tests.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLite{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			portfolio  TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			archived   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS feature_sets (
			entity_id   TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			version     INTEGER NOT NULL,
			captured_at TEXT NOT NULL,
			features    TEXT NOT NULL,
			gaps        TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (entity_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_sets_captured ON feature_sets (captured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_sets_entity ON feature_sets (entity_id, captured_at DESC)`,
		`CREATE TABLE IF NOT EXISTS score_records (
			record_id      TEXT PRIMARY KEY,
			entity_id      TEXT NOT NULL,
			entity_type    TEXT NOT NULL,
			model_name     TEXT NOT NULL,
			model_version  INTEGER NOT NULL,
			score          REAL NOT NULL,
			available      INTEGER NOT NULL,
			reason         TEXT NOT NULL DEFAULT '',
			confidence     REAL NOT NULL,
			low_confidence INTEGER NOT NULL,
			partial        INTEGER NOT NULL,
			factors        TEXT NOT NULL,
			trend          TEXT NOT NULL,
			summary        TEXT NOT NULL DEFAULT '',
			calculated_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_entity ON score_records (entity_id, calculated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_calculated ON score_records (calculated_at)`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id              TEXT PRIMARY KEY,
			record_id       TEXT NOT NULL,
			entity_id       TEXT NOT NULL,
			factor          TEXT NOT NULL,
			action          TEXT NOT NULL,
			expected_impact REAL NOT NULL,
			effort          TEXT NOT NULL,
			status          TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_record ON recommendations (record_id)`,
		`CREATE TABLE IF NOT EXISTS alert_bundles (
			id         TEXT NOT NULL,
			entity_id  TEXT NOT NULL,
			state      TEXT NOT NULL,
			score      REAL NOT NULL,
			title      TEXT NOT NULL,
			delivery   TEXT NOT NULL,
			members    TEXT NOT NULL,
			opened_at  TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_bundles_entity ON alert_bundles (entity_id, updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id                TEXT PRIMARY KEY,
			record_id         TEXT NOT NULL,
			recommendation_id TEXT NOT NULL DEFAULT '',
			verdict           TEXT NOT NULL DEFAULT '',
			outcome           TEXT NOT NULL DEFAULT '',
			created_at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_record ON feedback (record_id)`,
		`CREATE TABLE IF NOT EXISTS model_versions (
			name       TEXT NOT NULL,
			version    INTEGER NOT NULL,
			spec       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (name, version)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertEntity registers or updates an entity. Entities are the one
// mutable table: archival flips a flag, nothing is ever deleted.
func (s *SQLite) UpsertEntity(ctx context.Context, e model.Entity) error {
	if e.ID == "" || !e.Type.Valid() {
		return fmt.Errorf("%w: entity id/type", ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, type, portfolio, created_at, archived)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET portfolio = excluded.portfolio, archived = excluded.archived`,
		e.ID, string(e.Type), e.Portfolio, e.CreatedAt.UTC().Format(timeLayout), boolInt(e.Archived))
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// Entity fetches one registered entity by id.
func (s *SQLite) Entity(ctx context.Context, entityID string) (model.Entity, error) {
	query, args, err := s.sb.Select("id", "type", "portfolio", "created_at", "archived").
		From("entities").Where(sq.Eq{"id": entityID}).ToSql()
	if err != nil {
		return model.Entity{}, fmt.Errorf("build entity query: %w", err)
	}
	var e model.Entity
	var typ, createdAt string
	var archived int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&e.ID, &typ, &e.Portfolio, &createdAt, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return model.Entity{}, fmt.Errorf("query entity: %w", err)
	}
	e.Type = model.EntityType(typ)
	e.CreatedAt = parseTime(createdAt)
	e.Archived = archived != 0
	return e, nil
}

// Entities lists registered entities, optionally including archived
// ones.
func (s *SQLite) Entities(ctx context.Context, includeArchived bool) ([]model.Entity, error) {
	q := s.sb.Select("id", "type", "portfolio", "created_at", "archived").
		From("entities").OrderBy("id")
	if !includeArchived {
		q = q.Where(sq.Eq{"archived": 0})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entities query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var typ, createdAt string
		var archived int
		if err := rows.Scan(&e.ID, &typ, &e.Portfolio, &createdAt, &archived); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Type = model.EntityType(typ)
		e.CreatedAt = parseTime(createdAt)
		e.Archived = archived != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendFeatureSet persists a feature snapshot. Versions are immutable;
// a conflicting (entity, version) insert is a bug upstream and errors.
func (s *SQLite) AppendFeatureSet(ctx context.Context, fs model.FeatureSet) error {
	features, err := json.Marshal(fs.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	gaps, err := json.Marshal(fs.Gaps)
	if err != nil {
		return fmt.Errorf("encode gaps: %w", err)
	}
	query, args, err := s.sb.Insert("feature_sets").
		Columns("entity_id", "entity_type", "version", "captured_at", "features", "gaps").
		Values(fs.EntityID, string(fs.EntityType), fs.Version, fs.CapturedAt.UTC().Format(timeLayout), string(features), string(gaps)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build feature insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert feature set: %w", err)
	}
	return nil
}

// FeatureSets returns an entity's persisted snapshots, oldest first.
// The feature store replays them at startup.
func (s *SQLite) FeatureSets(ctx context.Context, entityID string) ([]model.FeatureSet, error) {
	query, args, err := s.sb.Select("entity_id", "entity_type", "version", "captured_at", "features", "gaps").
		From("feature_sets").Where(sq.Eq{"entity_id": entityID}).
		OrderBy("version").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build feature sets query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feature sets: %w", err)
	}
	defer rows.Close()

	var out []model.FeatureSet
	for rows.Next() {
		var fs model.FeatureSet
		var entityType, capturedAt, featuresJSON, gapsJSON string
		if err := rows.Scan(&fs.EntityID, &entityType, &fs.Version, &capturedAt, &featuresJSON, &gapsJSON); err != nil {
			return nil, fmt.Errorf("scan feature set: %w", err)
		}
		fs.EntityType = model.EntityType(entityType)
		fs.CapturedAt = parseTime(capturedAt)
		if err := json.Unmarshal([]byte(featuresJSON), &fs.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		if err := json.Unmarshal([]byte(gapsJSON), &fs.Gaps); err != nil {
			return nil, fmt.Errorf("decode gaps: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// AppendScoreRecord persists one score record. Insert-only: history is
// never rewritten.
func (s *SQLite) AppendScoreRecord(ctx context.Context, rec model.ScoreRecord) error {
	factors, err := json.Marshal(rec.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	trend, err := json.Marshal(rec.Trend)
	if err != nil {
		return fmt.Errorf("encode trend: %w", err)
	}
	query, args, err := s.sb.Insert("score_records").
		Columns("record_id", "entity_id", "entity_type", "model_name", "model_version",
			"score", "available", "reason", "confidence", "low_confidence", "partial",
			"factors", "trend", "summary", "calculated_at").
		Values(rec.RecordID, rec.EntityID, string(rec.EntityType), rec.ModelName, rec.ModelVersion,
			rec.Score, boolInt(rec.Available), rec.Reason, rec.Confidence, boolInt(rec.LowConfidence), boolInt(rec.Partial),
			string(factors), string(trend), rec.Summary, rec.CalculatedAt.UTC().Format(timeLayout)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build score insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert score record: %w", err)
	}
	return nil
}

const scoreColumns = "record_id, entity_id, entity_type, model_name, model_version, score, available, reason, confidence, low_confidence, partial, factors, trend, summary, calculated_at"

// ScoreRecordByID fetches one record by id.
func (s *SQLite) ScoreRecordByID(ctx context.Context, recordID string) (model.ScoreRecord, error) {
	query, args, err := s.sb.Select(scoreColumns).From("score_records").
		Where(sq.Eq{"record_id": recordID}).ToSql()
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("build record query: %w", err)
	}
	return s.scanOneScore(ctx, query, args...)
}

// LatestScore returns the most recent record for an entity: "current"
// is always a read-time query, never an in-place update.
func (s *SQLite) LatestScore(ctx context.Context, entityID string) (model.ScoreRecord, error) {
	query, args, err := s.sb.Select(scoreColumns).From("score_records").
		Where(sq.Eq{"entity_id": entityID}).
		OrderBy("calculated_at DESC").Limit(1).ToSql()
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("build latest query: %w", err)
	}
	return s.scanOneScore(ctx, query, args...)
}

// ScoreHistory returns records for an entity newer than since, newest
// first.
func (s *SQLite) ScoreHistory(ctx context.Context, entityID string, since time.Time, limit int) ([]model.ScoreRecord, error) {
	q := s.sb.Select(scoreColumns).From("score_records").
		Where(sq.Eq{"entity_id": entityID}).
		Where(sq.GtOrEq{"calculated_at": since.UTC().Format(timeLayout)}).
		OrderBy("calculated_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

// PortfolioScores returns the latest record per entity under the
// filter, paginated, plus aggregate stats over the whole filtered set.
func (s *SQLite) PortfolioScores(ctx context.Context, f PortfolioFilter) (PortfolioPage, error) {
	base := s.sb.Select(prefixedScoreColumns("r")).
		From("score_records r").
		Join(`(SELECT entity_id, MAX(calculated_at) AS latest_at
		       FROM score_records GROUP BY entity_id) latest
		      ON r.entity_id = latest.entity_id AND r.calculated_at = latest.latest_at`).
		JoinClause("LEFT JOIN entities e ON e.id = r.entity_id").
		Where(sq.Or{sq.Eq{"e.archived": 0}, sq.Eq{"e.archived": nil}})
	if f.EntityType != "" {
		base = base.Where(sq.Eq{"r.entity_type": string(f.EntityType)})
	}
	if f.Portfolio != "" {
		base = base.Where(sq.Eq{"e.portfolio": f.Portfolio})
	}

	query, args, err := base.OrderBy("r.score DESC", "r.entity_id").ToSql()
	if err != nil {
		return PortfolioPage{}, fmt.Errorf("build portfolio query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return PortfolioPage{}, fmt.Errorf("query portfolio: %w", err)
	}
	defer rows.Close()
	all, err := scanScores(rows)
	if err != nil {
		return PortfolioPage{}, err
	}

	// Band filtering and aggregates run over the full filtered set in
	// Go; the band boundary logic lives in one place (model.Band).
	if f.Band != "" {
		filtered := all[:0]
		for _, rec := range all {
			// An unavailable record has no band; its zero score must
			// not read as critical.
			if rec.Available && rec.Band() == f.Band {
				filtered = append(filtered, rec)
			}
		}
		all = filtered
	}

	page := PortfolioPage{Stats: aggregate(all)}
	lo := f.Offset
	if lo > len(all) {
		lo = len(all)
	}
	hi := len(all)
	if f.Limit > 0 && lo+f.Limit < hi {
		hi = lo + f.Limit
	}
	page.Records = all[lo:hi]
	return page, nil
}

// SaveRecommendations persists generated recommendations.
func (s *SQLite) SaveRecommendations(ctx context.Context, recs []model.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	q := s.sb.Insert("recommendations").
		Columns("id", "record_id", "entity_id", "factor", "action", "expected_impact", "effort", "status", "created_at")
	for _, r := range recs {
		q = q.Values(r.ID, r.RecordID, r.EntityID, r.Factor, r.Action, r.ExpectedImpact,
			string(r.Effort), string(r.Status), r.CreatedAt.UTC().Format(timeLayout))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build recommendation insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert recommendations: %w", err)
	}
	return nil
}

// RecommendationsFor lists recommendations attached to a record.
func (s *SQLite) RecommendationsFor(ctx context.Context, recordID string) ([]model.Recommendation, error) {
	query, args, err := s.sb.Select("id", "record_id", "entity_id", "factor", "action", "expected_impact", "effort", "status", "created_at").
		From("recommendations").Where(sq.Eq{"record_id": recordID}).
		OrderBy("expected_impact DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recommendations query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		var effort, status, createdAt string
		if err := rows.Scan(&r.ID, &r.RecordID, &r.EntityID, &r.Factor, &r.Action, &r.ExpectedImpact, &effort, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		r.Effort = model.EffortTier(effort)
		r.Status = model.RecommendationStatus(status)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveBundle appends one bundle snapshot. Each state change writes a
// new row; the newest row per bundle id is its current state.
func (s *SQLite) SaveBundle(ctx context.Context, b model.AlertBundle) error {
	members, err := json.Marshal(b.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	query, args, err := s.sb.Insert("alert_bundles").
		Columns("id", "entity_id", "state", "score", "title", "delivery", "members", "opened_at", "updated_at").
		Values(b.ID, b.EntityID, string(b.State), b.Score, b.Title, string(b.Delivery),
			string(members), b.OpenedAt.UTC().Format(timeLayout), b.UpdatedAt.UTC().Format(timeLayout)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build bundle insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

// AppendFeedback persists one feedback record.
func (s *SQLite) AppendFeedback(ctx context.Context, fb model.FeedbackRecord) error {
	query, args, err := s.sb.Insert("feedback").
		Columns("id", "record_id", "recommendation_id", "verdict", "outcome", "created_at").
		Values(fb.ID, fb.RecordID, fb.RecommendationID, string(fb.Verdict), fb.Outcome,
			fb.CreatedAt.UTC().Format(timeLayout)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build feedback insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// Outcomes joins outcome-labelled feedback with the records it judged,
// for one model. Top factors are derived from the stored contribution
// breakdown.
func (s *SQLite) Outcomes(ctx context.Context, modelName string) ([]calibration.Outcome, error) {
	query, args, err := s.sb.Select("f.record_id", "r.entity_id", "r.score", "r.factors", "f.outcome", "f.created_at").
		From("feedback f").
		Join("score_records r ON r.record_id = f.record_id").
		Where(sq.NotEq{"f.outcome": ""}).
		Where(sq.Eq{"r.model_name": modelName}).
		OrderBy("f.created_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outcomes query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []calibration.Outcome
	for rows.Next() {
		var o calibration.Outcome
		var factorsJSON, observedAt string
		if err := rows.Scan(&o.RecordID, &o.EntityID, &o.Score, &factorsJSON, &o.Label, &observedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		var factors []model.Contribution
		if err := json.Unmarshal([]byte(factorsJSON), &factors); err != nil {
			return nil, fmt.Errorf("decode factors: %w", err)
		}
		o.TopFactors = topFactors(factors, topFactorCount)
		o.Adverse = adverseOutcomes[o.Label]
		o.ObservedAt = parseTime(observedAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservedImpact estimates the realized score impact of acting on a
// factor: the catalog expectation discounted by the observed success
// rate of recommendations on that factor.
func (s *SQLite) ObservedImpact(ctx context.Context, factor string) (float64, int, error) {
	query, args, err := s.sb.Select("rec.expected_impact", "f.outcome").
		From("recommendations rec").
		Join("feedback f ON f.recommendation_id = rec.id").
		Where(sq.Eq{"rec.factor": factor}).
		Where(sq.NotEq{"f.outcome": ""}).ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build impact query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("query impact: %w", err)
	}
	defer rows.Close()

	var sumImpact float64
	var total, successes int
	for rows.Next() {
		var impact float64
		var outcome string
		if err := rows.Scan(&impact, &outcome); err != nil {
			return 0, 0, fmt.Errorf("scan impact: %w", err)
		}
		sumImpact += impact
		total++
		if successOutcomes[outcome] {
			successes++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return sumImpact / float64(total) * float64(successes) / float64(total), total, nil
}

// SaveModelVersion appends one published model version. The (name,
// version) key makes republishing an existing version an error.
func (s *SQLite) SaveModelVersion(ctx context.Context, m scoring.Model) error {
	encoded, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	query, args, err := s.sb.Insert("model_versions").
		Columns("name", "version", "spec", "created_at").
		Values(m.Name, m.Version, string(encoded), m.CreatedAt.UTC().Format(timeLayout)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build model insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert model version: %w", err)
	}
	return nil
}

// ModelVersionHistory returns persisted versions of a model, oldest
// first. Replaying them through the registry restores calibrated
// weights after a restart.
func (s *SQLite) ModelVersionHistory(ctx context.Context, name string) ([]scoring.Model, error) {
	query, args, err := s.sb.Select("spec", "created_at").From("model_versions").
		Where(sq.Eq{"name": name}).OrderBy("version").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build model history query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query model history: %w", err)
	}
	defer rows.Close()

	var out []scoring.Model
	for rows.Next() {
		var encoded, createdAt string
		if err := rows.Scan(&encoded, &createdAt); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		var m scoring.Model
		if err := yaml.Unmarshal([]byte(encoded), &m); err != nil {
			return nil, fmt.Errorf("decode model version: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) scanOneScore(ctx context.Context, query string, args ...any) (model.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("query score: %w", err)
	}
	defer rows.Close()
	recs, err := scanScores(rows)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if len(recs) == 0 {
		return model.ScoreRecord{}, fmt.Errorf("score record: %w", ErrNotFound)
	}
	return recs[0], nil
}

func scanScores(rows *sql.Rows) ([]model.ScoreRecord, error) {
	var out []model.ScoreRecord
	for rows.Next() {
		var rec model.ScoreRecord
		var entityType, factorsJSON, trendJSON, calculatedAt string
		var available, lowConfidence, partial int
		if err := rows.Scan(&rec.RecordID, &rec.EntityID, &entityType, &rec.ModelName, &rec.ModelVersion,
			&rec.Score, &available, &rec.Reason, &rec.Confidence, &lowConfidence, &partial,
			&factorsJSON, &trendJSON, &rec.Summary, &calculatedAt); err != nil {
			return nil, fmt.Errorf("scan score record: %w", err)
		}
		rec.EntityType = model.EntityType(entityType)
		rec.Available = available != 0
		rec.LowConfidence = lowConfidence != 0
		rec.Partial = partial != 0
		if err := json.Unmarshal([]byte(factorsJSON), &rec.Factors); err != nil {
			return nil, fmt.Errorf("decode factors: %w", err)
		}
		if err := json.Unmarshal([]byte(trendJSON), &rec.Trend); err != nil {
			return nil, fmt.Errorf("decode trend: %w", err)
		}
		rec.CalculatedAt = parseTime(calculatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func aggregate(recs []model.ScoreRecord) PortfolioStats {
	stats := PortfolioStats{Total: len(recs)}
	var sum float64
	scored := 0
	for _, rec := range recs {
		if !rec.Available {
			stats.Unscored++
			continue
		}
		if scored == 0 || rec.Score < stats.Min {
			stats.Min = rec.Score
		}
		if scored == 0 || rec.Score > stats.Max {
			stats.Max = rec.Score
		}
		sum += rec.Score
		scored++
		switch rec.Band() {
		case model.BandHealthy:
			stats.Healthy++
		case model.BandWarning:
			stats.Warning++
		case model.BandCritical:
			stats.Critical++
		}
	}
	if scored > 0 {
		stats.Mean = sum / float64(scored)
	}
	return stats
}

func topFactors(factors []model.Contribution, n int) []string {
	live := make([]model.Contribution, 0, len(factors))
	for _, c := range factors {
		if !c.Skipped {
			live = append(live, c)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		ai, aj := live[i].Contribution, live[j].Contribution
		if ai < 0 {
			ai = -ai
		}
		if aj < 0 {
			aj = -aj
		}
		if ai != aj {
			return ai > aj
		}
		return live[i].Factor < live[j].Factor
	})
	if len(live) > n {
		live = live[:n]
	}
	out := make([]string, len(live))
	for i, c := range live {
		out[i] = c.Factor
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Fall back to plain RFC3339 for rows written by older tooling.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// errors.Is helper used by API translation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func prefixedScoreColumns(alias string) string {
	return alias + ".record_id, " + alias + ".entity_id, " + alias + ".entity_type, " +
		alias + ".model_name, " + alias + ".model_version, " + alias + ".score, " +
		alias + ".available, " + alias + ".reason, " + alias + ".confidence, " +
		alias + ".low_confidence, " + alias + ".partial, " + alias + ".factors, " +
		alias + ".trend, " + alias + ".summary, " + alias + ".calculated_at"
}
