// Package service wires the scoring pipeline together and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cscx/pulse/internal/adapters/mq/queue"
	workerpool "github.com/cscx/pulse/internal/adapters/mq/worker"
	"github.com/cscx/pulse/internal/adapters/narrative"
	"github.com/cscx/pulse/internal/adapters/repository"
	"github.com/cscx/pulse/internal/adapters/scheduler"
	"github.com/cscx/pulse/internal/domain/bundle"
	"github.com/cscx/pulse/internal/domain/calibration"
	"github.com/cscx/pulse/internal/domain/confidence"
	"github.com/cscx/pulse/internal/domain/dedupe"
	"github.com/cscx/pulse/internal/domain/feature"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/recommend"
	"github.com/cscx/pulse/internal/domain/scoring"
	"github.com/cscx/pulse/internal/domain/trend"
	"github.com/cscx/pulse/pkg/logger"
	"github.com/cscx/pulse/pkg/metrics"
)

// Triggers for recompute jobs.
const (
	triggerEvent = "event"
)

const (
	reasonInsufficientData = "insufficient_data"
	scoreTrendWindowDays   = 30
	alertTypeFeature       = "alert_type"
)

// Service runs the continuous scoring pipeline: ingest -> feature store
// -> queue -> workers -> engine -> persistence, plus the read side the
// API serves.
type Service struct {
	mu sync.RWMutex

	// Pipeline components, built in Start.
	store       repository.Store
	features    *feature.Store
	trends      *trend.Calculator
	engine      *scoring.Engine
	registry    *scoring.Registry
	estimator   *confidence.Estimator
	recommender *recommend.Generator
	bundler     *bundle.Bundler
	calibrator  *calibration.Calibrator
	summarizer  narrative.Summarizer
	deduper     dedupe.Tracker
	jobs        queue.Queue
	pool        *workerpool.Pool
	sched       *scheduler.Scheduler

	// Configuration.
	workerCount     int
	queueSize       int
	dedupeSize      int
	batchInterval   time.Duration
	staleness       time.Duration
	maxHistoryLimit int
	lowConfidence   float64
	bundleWindow    time.Duration
	bundleCooldown  time.Duration
	thresholds      bundle.Thresholds
	calibMaxDelta   float64
	calibMinSamples int
	trendWindows    []int
	trendDeadBand   float64
	seedModels      []scoring.Model
	entityModels    map[model.EntityType]string

	started bool
	stopRun context.CancelFunc
	clock   func() time.Time
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithQueueSize bounds the recompute job queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithDedupeSize caps the event dedupe cache.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithBatchInterval sets the portfolio sweep period.
func WithBatchInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.batchInterval = d
		}
	}
}

// WithStaleness sets the feature staleness window.
func WithStaleness(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithMaxHistoryLimit caps history page sizes.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithLowConfidence sets the flagging threshold for low-confidence
// records.
func WithLowConfidence(v float64) Option {
	return func(s *Service) {
		if v >= 0 && v <= 1 {
			s.lowConfidence = v
		}
	}
}

// WithBundling sets the alert bundling window, cool-down and delivery
// thresholds.
func WithBundling(window, cooldown time.Duration, immediate, digest float64) Option {
	return func(s *Service) {
		if window > 0 {
			s.bundleWindow = window
		}
		if cooldown > 0 {
			s.bundleCooldown = cooldown
		}
		if immediate >= digest {
			s.thresholds = bundle.Thresholds{Immediate: immediate, Digest: digest}
		}
	}
}

// WithCalibration sets calibration bounds.
func WithCalibration(maxDelta float64, minSamples int) Option {
	return func(s *Service) {
		if maxDelta > 0 && maxDelta < 1 {
			s.calibMaxDelta = maxDelta
		}
		if minSamples > 0 {
			s.calibMinSamples = minSamples
		}
	}
}

// WithTrendSettings sets trend windows and dead-band.
func WithTrendSettings(windows []int, deadBand float64) Option {
	return func(s *Service) {
		if len(windows) > 0 {
			s.trendWindows = windows
		}
		if deadBand > 0 {
			s.trendDeadBand = deadBand
		}
	}
}

// WithModels seeds the registry with these models instead of the
// built-in defaults.
func WithModels(models []scoring.Model) Option {
	return func(s *Service) {
		if len(models) > 0 {
			s.seedModels = models
		}
	}
}

// WithEntityModels maps entity types to scoring model names.
func WithEntityModels(mapping map[string]string) Option {
	return func(s *Service) {
		if len(mapping) == 0 {
			return
		}
		em := make(map[model.EntityType]string, len(mapping))
		for k, v := range mapping {
			em[model.EntityType(k)] = v
		}
		s.entityModels = em
	}
}

// WithSummarizer replaces the narrative summarizer.
func WithSummarizer(sum narrative.Summarizer) Option {
	return func(s *Service) {
		if sum != nil {
			s.summarizer = sum
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a Service over the given store with default
// configuration.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		workerCount:     runtime.NumCPU() * 4,
		queueSize:       10_000,
		dedupeSize:      50_000,
		batchInterval:   15 * time.Minute,
		staleness:       14 * 24 * time.Hour,
		maxHistoryLimit: 500,
		lowConfidence:   0.5,
		bundleWindow:    24 * time.Hour,
		bundleCooldown:  6 * time.Hour,
		thresholds:      bundle.Thresholds{Immediate: 70, Digest: 40},
		calibMaxDelta:   0.10,
		calibMinSamples: 5,
		trendWindows:    trend.DefaultWindows,
		trendDeadBand:   0.02,
		entityModels: map[model.EntityType]string{
			model.EntityAccount:     "churn",
			model.EntityStakeholder: "relationship",
			model.EntityDeal:        "deal_risk",
			model.EntityTask:        "task_priority",
			model.EntityRawAlert:    "alert_priority",
		},
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and launches the pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting scoring service")

	s.features = feature.NewStore(feature.WithStaleness(s.staleness))
	s.trends = trend.NewCalculator(s.features,
		trend.WithWindows(s.trendWindows),
		trend.WithDeadBand(s.trendDeadBand),
	)
	s.engine = scoring.NewEngine()
	s.estimator = confidence.NewEstimator()
	s.recommender = recommend.NewGenerator(recommend.DefaultCatalog(),
		recommend.WithImpactSource(s.store),
	)
	s.bundler = bundle.NewBundler(
		bundle.WithWindow(s.bundleWindow),
		bundle.WithCooldown(s.bundleCooldown),
		bundle.WithThresholds(s.thresholds),
	)
	s.deduper = dedupe.NewTracker(dedupe.WithMaxSize(s.dedupeSize))
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))

	s.registry = scoring.NewRegistry()
	seed := s.seedModels
	if len(seed) == 0 {
		seed = scoring.DefaultModels()
	}
	for _, m := range seed {
		// Persisted versions win over the seed so calibrated weights
		// survive restarts.
		history, err := s.store.ModelVersionHistory(ctx, m.Name)
		if err != nil {
			return fmt.Errorf("load model history %s: %w", m.Name, err)
		}
		if len(history) == 0 {
			published, perr := s.registry.Publish(m)
			if perr != nil {
				return fmt.Errorf("publish model %s: %w", m.Name, perr)
			}
			if serr := s.store.SaveModelVersion(ctx, published); serr != nil {
				s.logger.Warn(ctx, "model version not persisted",
					logger.String("model", published.Name),
					logger.Error(serr),
				)
			}
			continue
		}
		for _, v := range history {
			if _, perr := s.registry.Publish(v); perr != nil {
				return fmt.Errorf("replay model %s v%d: %w", v.Name, v.Version, perr)
			}
		}
	}
	s.calibrator = calibration.NewCalibrator(s.registry, s.store, s.store,
		calibration.WithMaxDelta(s.calibMaxDelta),
		calibration.WithMinSamples(s.calibMinSamples),
	)
	if s.summarizer == nil {
		s.summarizer = narrative.New("")
	}

	if err := s.rehydrateFeatures(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopRun = cancel

	s.pool = workerpool.NewPool(s.workerCount, s.jobs, s)
	s.pool.Start(runCtx)

	s.sched = scheduler.New(s.store, s.jobs, scheduler.WithInterval(s.batchInterval))
	s.sched.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Any("models", s.registry.Names()),
	)
	return nil
}

// rehydrateFeatures replays persisted feature snapshots into the
// in-memory store, so a restart over an existing database does not
// regress scored entities to insufficient_data on the next sweep.
func (s *Service) rehydrateFeatures(ctx context.Context) error {
	entities, err := s.store.Entities(ctx, true)
	if err != nil {
		return fmt.Errorf("enumerate entities: %w", err)
	}
	restored := 0
	for _, e := range entities {
		sets, err := s.store.FeatureSets(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("load feature sets %s: %w", e.ID, err)
		}
		if len(sets) == 0 {
			continue
		}
		s.features.Restore(sets)
		restored++
	}
	if restored > 0 {
		s.logger.Info(ctx, "feature store rehydrated",
			logger.Int("entities", restored),
		)
	}
	return nil
}

// Stop gracefully shuts down the pipeline. The store is owned by the
// caller and stays open.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping scoring service")

	if s.stopRun != nil {
		s.stopRun()
	}
	if s.pool != nil {
		_ = s.pool.Shutdown(ctx)
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

// IngestEvent validates, dedupes and applies an inbound event, then
// queues an incremental recompute for its entity.
func (s *Service) IngestEvent(ctx context.Context, e model.Event) (bool, error) {
	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		return true, nil
	}

	if err := s.store.UpsertEntity(ctx, model.Entity{
		ID:        e.EntityID,
		Type:      e.EntityType,
		Portfolio: e.Labels["portfolio"],
		CreatedAt: s.clock(),
	}); err != nil {
		s.deduper.Unrecord(ctx, e.EventID)
		return false, fmt.Errorf("register entity: %w", err)
	}

	fs, err := s.features.Append(ctx, e.EntityID, e.EntityType, observations(e))
	if err != nil {
		s.deduper.Unrecord(ctx, e.EventID)
		return false, fmt.Errorf("append features: %w", err)
	}
	if err := s.store.AppendFeatureSet(ctx, fs); err != nil {
		// The in-memory store already advanced; persistence is
		// best-effort and the snapshot is rebuilt on the next event.
		s.logger.Warn(ctx, "feature snapshot not persisted",
			logger.String("entity_id", e.EntityID),
			logger.Error(err),
		)
	}

	job := queue.Job{
		ID:         uuid.NewString(),
		EntityID:   e.EntityID,
		EntityType: e.EntityType,
		Trigger:    triggerEvent,
		EnqueuedAt: s.clock(),
	}
	if !s.jobs.Enqueue(ctx, job) {
		s.deduper.Unrecord(ctx, e.EventID)
		metrics.RecordEventRejected()
		return false, fmt.Errorf("enqueue recompute: %w", queue.ErrFull)
	}

	metrics.RecordEventAccepted()
	return false, nil
}

// observations flattens an event into feature observations. Numeric
// payload entries carry values; labels become categorical features with
// boolean-ish values encoded as 0/1.
func observations(e model.Event) []model.Observation {
	out := make([]model.Observation, 0, len(e.Payload)+len(e.Labels))
	for name, v := range e.Payload {
		out = append(out, model.Observation{
			Feature:    name,
			Value:      v,
			ObservedAt: e.OccurredAt,
		})
	}
	for name, v := range e.Labels {
		if name == "portfolio" {
			continue
		}
		val := 0.0
		if v == "true" || v == "yes" || v == "1" {
			val = 1
		}
		out = append(out, model.Observation{
			Feature:     name,
			Value:       val,
			Categorical: v,
			ObservedAt:  e.OccurredAt,
		})
	}
	return out
}

// Recompute runs the full pipeline for one entity. It satisfies the
// worker pool's Recomputer contract.
func (s *Service) Recompute(ctx context.Context, j queue.Job) error {
	now := s.clock()

	modelName := j.ModelName
	if modelName == "" {
		modelName = s.entityModels[j.EntityType]
	}
	m, err := s.registry.Current(modelName)
	if err != nil {
		return fmt.Errorf("resolve model for %s: %w", j.EntityType, err)
	}

	fs, err := s.features.Latest(ctx, j.EntityID)
	if errors.Is(err, feature.ErrNotFound) {
		return s.persistUnavailable(ctx, j, m, now)
	}
	if err != nil {
		return fmt.Errorf("load features: %w", err)
	}

	trends := make(map[string]model.Trend)
	for _, f := range m.Factors {
		if f.Kind != scoring.KindTrend {
			continue
		}
		t, terr := s.trends.Compute(ctx, j.EntityID, f.Feature, f.WindowDays)
		if terr != nil {
			continue // engine records the factor as skipped
		}
		trends[scoring.TrendKey(f.Feature, f.WindowDays)] = t
	}

	rec, err := s.engine.Score(ctx, scoring.Input{
		EntityID:   j.EntityID,
		EntityType: j.EntityType,
		Features:   fs,
		Trends:     trends,
		Model:      m,
		Now:        now,
	})
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	skipped := 0
	for _, c := range rec.Factors {
		if c.Skipped {
			skipped++
			metrics.RecordFactorSkipped()
		}
	}
	if rec.Partial {
		metrics.RecordPartialRecord()
	}
	if skipped == len(rec.Factors) {
		rec.Available = false
		rec.Reason = reasonInsufficientData
	}

	rec.Confidence = s.estimator.Estimate(fs, m, now)
	rec.LowConfidence = rec.Confidence < s.lowConfidence
	rec.Trend = s.scoreTrend(ctx, j.EntityID, rec)
	rec.Summary = s.summarizer.Summarize(ctx, rec)

	if err := s.store.AppendScoreRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist score: %w", err)
	}

	if rec.Available {
		if recs := s.recommender.Recommend(ctx, rec); len(recs) > 0 {
			if err := s.store.SaveRecommendations(ctx, recs); err != nil {
				s.logger.Warn(ctx, "recommendations not persisted",
					logger.String("record_id", rec.RecordID),
					logger.Error(err),
				)
			}
		}
	}

	if j.EntityType == model.EntityRawAlert && rec.Available {
		s.bundleAlert(ctx, rec, fs)
	}
	return nil
}

// persistUnavailable writes the no-data record so the read side can
// distinguish "never scored" from "no computable score".
func (s *Service) persistUnavailable(ctx context.Context, j queue.Job, m scoring.Model, now time.Time) error {
	rec := model.ScoreRecord{
		RecordID:     uuid.NewString(),
		EntityID:     j.EntityID,
		EntityType:   j.EntityType,
		ModelName:    m.Name,
		ModelVersion: m.Version,
		Available:    false,
		Reason:       reasonInsufficientData,
		Trend:        model.Trend{Direction: model.Stable, WindowDays: scoreTrendWindowDays},
		CalculatedAt: now,
	}
	rec.Summary = s.summarizer.Summarize(ctx, rec)
	if err := s.store.AppendScoreRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist unavailable score: %w", err)
	}
	return nil
}

// scoreTrend derives the record's trend from the entity's own score
// history plus the fresh value.
func (s *Service) scoreTrend(ctx context.Context, entityID string, rec model.ScoreRecord) model.Trend {
	since := rec.CalculatedAt.AddDate(0, 0, -scoreTrendWindowDays)
	history, err := s.store.ScoreHistory(ctx, entityID, since, s.maxHistoryLimit)
	if err != nil {
		return model.Trend{Direction: model.Stable, WindowDays: scoreTrendWindowDays}
	}

	samples := make([]feature.Sample, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- { // oldest first
		if !history[i].Available {
			continue
		}
		samples = append(samples, feature.Sample{At: history[i].CalculatedAt, Value: history[i].Score})
	}
	if rec.Available {
		samples = append(samples, feature.Sample{At: rec.CalculatedAt, Value: rec.Score})
	}
	return s.trends.FromSamples(samples, scoreTrendWindowDays)
}

// bundleAlert folds a scored alert into its entity's bundle and
// persists the bundle snapshot.
func (s *Service) bundleAlert(ctx context.Context, rec model.ScoreRecord, fs model.FeatureSet) {
	alertType := "alert"
	if fv, ok := fs.Features[alertTypeFeature]; ok && fv.Categorical != "" {
		alertType = fv.Categorical
	}

	bdl, suppressed := s.bundler.Add(ctx, rec, alertType)
	if suppressed {
		metrics.RecordAlertSuppressed()
		return
	}
	if len(bdl.Members) == 1 {
		metrics.RecordBundleOpened()
	}
	metrics.RecordBundleMember()
	metrics.RecordBundleDelivery(string(bdl.Delivery))

	if err := s.store.SaveBundle(ctx, bdl); err != nil {
		s.logger.Warn(ctx, "bundle not persisted",
			logger.String("bundle_id", bdl.ID),
			logger.Error(err),
		)
	}
}

// LatestScore returns the newest score record for an entity. A
// registered entity with no records yet gets a well-formed unavailable
// record instead of not-found; only unknown entities miss.
func (s *Service) LatestScore(ctx context.Context, entityID string) (model.ScoreRecord, error) {
	rec, err := s.store.LatestScore(ctx, entityID)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return rec, err
	}
	e, eerr := s.store.Entity(ctx, entityID)
	if eerr != nil {
		return model.ScoreRecord{}, err
	}
	rec = model.ScoreRecord{
		EntityID:     entityID,
		EntityType:   e.Type,
		ModelName:    s.entityModels[e.Type],
		Available:    false,
		Reason:       reasonInsufficientData,
		Trend:        model.Trend{Direction: model.Stable, WindowDays: scoreTrendWindowDays},
		CalculatedAt: s.clock(),
	}
	rec.Summary = narrative.Template(rec)
	return rec, nil
}

// ScoreHistory returns records newer than since, newest first, capped
// to the configured page limit.
func (s *Service) ScoreHistory(ctx context.Context, entityID string, since time.Time, limit int) ([]model.ScoreRecord, error) {
	if limit <= 0 || limit > s.maxHistoryLimit {
		limit = s.maxHistoryLimit
	}
	return s.store.ScoreHistory(ctx, entityID, since, limit)
}

// PortfolioScores returns the latest-per-entity page under the filter.
func (s *Service) PortfolioScores(ctx context.Context, f repository.PortfolioFilter) (repository.PortfolioPage, error) {
	return s.store.PortfolioScores(ctx, f)
}

// RecommendationsFor returns the recommendations attached to a record.
func (s *Service) RecommendationsFor(ctx context.Context, recordID string) ([]model.Recommendation, error) {
	return s.store.RecommendationsFor(ctx, recordID)
}

// SubmitFeedback validates and persists feedback on a score record.
func (s *Service) SubmitFeedback(ctx context.Context, fb model.FeedbackRecord) (model.FeedbackRecord, error) {
	if _, err := s.store.ScoreRecordByID(ctx, fb.RecordID); err != nil {
		return model.FeedbackRecord{}, fmt.Errorf("lookup record: %w", err)
	}
	fb.ID = uuid.NewString()
	fb.CreatedAt = s.clock()
	if err := s.calibrator.RecordFeedback(ctx, fb); err != nil {
		return model.FeedbackRecord{}, err
	}
	metrics.RecordFeedback()
	return fb, nil
}

// ModelVersions returns every published version of a model.
func (s *Service) ModelVersions(_ context.Context, name string) ([]scoring.Model, error) {
	return s.registry.Versions(name)
}

// Recalibrate runs a calibration cycle and publishes the new version.
func (s *Service) Recalibrate(ctx context.Context, name string) (scoring.Model, error) {
	published, err := s.calibrator.Recalibrate(ctx, name)
	if err != nil {
		metrics.RecordCalibrationRejected()
		return scoring.Model{}, err
	}
	metrics.RecordCalibrationRun()
	if serr := s.store.SaveModelVersion(ctx, published); serr != nil {
		s.logger.Warn(ctx, "model version not persisted",
			logger.String("model", published.Name),
			logger.Error(serr),
		)
	}
	s.logger.Info(ctx, "model recalibrated",
		logger.String("model", name),
		logger.Int("version", published.Version),
	)
	return published, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":      s.started,
		"worker_count": s.workerCount,
		"queue_size":   s.queueSize,
		"models":       []string(nil),
	}
	if !s.started {
		return stats
	}

	stats["queue_length"] = s.jobs.Len(ctx)
	stats["models"] = s.registry.Names()
	stats["dedupe_entries"] = s.deduper.Size()
	if entities, err := s.store.Entities(ctx, false); err == nil {
		stats["tracked_entities"] = len(entities)
		metrics.UpdateTrackedEntities(len(entities))
	}
	return stats
}
