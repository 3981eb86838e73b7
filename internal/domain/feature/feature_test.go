package feature_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cscx/pulse/internal/domain/feature"
	"github.com/cscx/pulse/internal/domain/model"
)

func TestStore_Append(t *testing.T) {
	convey.Convey("Given a feature store with a fixed clock", t, func() {
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		store := feature.NewStore(feature.WithClock(func() time.Time { return now }))
		ctx := context.Background()

		convey.Convey("When appending the first observations", func() {
			fs, err := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
				{Feature: "usage", Value: 0.8},
				{Feature: "sentiment", Value: 0.3},
			})

			convey.Convey("Then it should produce version 1 with both features", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fs.Version, convey.ShouldEqual, 1)
				convey.So(len(fs.Features), convey.ShouldEqual, 2)
				convey.So(fs.Features["usage"].Value, convey.ShouldEqual, 0.8)
				convey.So(fs.Features["usage"].Samples, convey.ShouldEqual, 1)
				convey.So(fs.Features["usage"].Stale, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When appending again with a partial update", func() {
			_, err1 := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
				{Feature: "usage", Value: 0.8},
				{Feature: "sentiment", Value: 0.3},
			})
			fs, err2 := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
				{Feature: "usage", Value: 0.6},
			})

			convey.Convey("Then the version should advance and missing features carry forward", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(fs.Version, convey.ShouldEqual, 2)
				convey.So(fs.Features["usage"].Value, convey.ShouldEqual, 0.6)
				convey.So(fs.Features["usage"].Samples, convey.ShouldEqual, 2)
				convey.So(fs.Features["sentiment"].Value, convey.ShouldEqual, 0.3)
				convey.So(fs.Features["sentiment"].Samples, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When appending with an empty entity id", func() {
			_, err := store.Append(ctx, "", model.EntityAccount, nil)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldWrap, feature.ErrInvalidObservation)
			})
		})

		convey.Convey("When the returned snapshot is mutated", func() {
			fs, err := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
				{Feature: "usage", Value: 0.8},
			})
			fs.Features["usage"] = model.FeatureValue{Value: 999}

			convey.Convey("Then the stored version should be unaffected", func() {
				convey.So(err, convey.ShouldBeNil)
				latest, err := store.Latest(ctx, "acct-1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(latest.Features["usage"].Value, convey.ShouldEqual, 0.8)
			})
		})
	})
}

func TestStore_Staleness(t *testing.T) {
	convey.Convey("Given a store with a 14 day staleness window", t, func() {
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		clock := &now
		store := feature.NewStore(
			feature.WithClock(func() time.Time { return *clock }),
			feature.WithStaleness(14*24*time.Hour),
		)
		ctx := context.Background()

		_, err := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
			{Feature: "usage", Value: 0.8, ObservedAt: now},
		})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When reading right after the write", func() {
			fs, err := store.Latest(ctx, "acct-1")

			convey.Convey("Then nothing should be stale", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fs.Features["usage"].Stale, convey.ShouldBeFalse)
				convey.So(fs.AllStale(), convey.ShouldBeFalse)
				convey.So(fs.Coverage(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When reading 20 days later", func() {
			later := now.Add(20 * 24 * time.Hour)
			*clock = later
			fs, err := store.Latest(ctx, "acct-1")

			convey.Convey("Then the untouched feature should be flagged stale", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fs.Features["usage"].Stale, convey.ShouldBeTrue)
				convey.So(fs.AllStale(), convey.ShouldBeTrue)
				convey.So(fs.Gaps, convey.ShouldContain, "usage")
				convey.So(fs.Coverage(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestStore_GetAsOf(t *testing.T) {
	convey.Convey("Given two versions written a day apart", t, func() {
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		current := now
		clock := &current
		store := feature.NewStore(feature.WithClock(func() time.Time { return *clock }))
		ctx := context.Background()

		_, _ = store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
			{Feature: "usage", Value: 0.8, ObservedAt: now},
		})
		day2 := now.Add(24 * time.Hour)
		*clock = day2
		_, _ = store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
			{Feature: "usage", Value: 0.5, ObservedAt: day2},
		})

		convey.Convey("When reading as of the first day", func() {
			fs, err := store.Get(ctx, "acct-1", now.Add(time.Hour))

			convey.Convey("Then the older version should be returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fs.Version, convey.ShouldEqual, 1)
				convey.So(fs.Features["usage"].Value, convey.ShouldEqual, 0.8)
			})
		})

		convey.Convey("When reading as of a time before any version", func() {
			_, err := store.Get(ctx, "acct-1", now.Add(-time.Hour))

			convey.Convey("Then it should report not found", func() {
				convey.So(err, convey.ShouldWrap, feature.ErrNotFound)
			})
		})

		convey.Convey("When reading an unknown entity", func() {
			_, err := store.Latest(ctx, "acct-404")

			convey.Convey("Then it should report not found", func() {
				convey.So(err, convey.ShouldWrap, feature.ErrNotFound)
			})
		})
	})
}

func TestStore_History(t *testing.T) {
	convey.Convey("Given a store accumulating history", t, func() {
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		store := feature.NewStore(
			feature.WithClock(func() time.Time { return now }),
			feature.WithMaxHistory(3),
		)
		ctx := context.Background()

		for day := 5; day >= 0; day-- {
			_, err := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
				{Feature: "usage", Value: float64(day), ObservedAt: now.AddDate(0, 0, -day)},
			})
			convey.So(err, convey.ShouldBeNil)
		}

		convey.Convey("When fetching the full window", func() {
			samples, err := store.History(ctx, "acct-1", "usage", 30*24*time.Hour)

			convey.Convey("Then only the capped tail should remain, oldest first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(samples), convey.ShouldEqual, 3)
				convey.So(samples[0].Value, convey.ShouldEqual, 2)
				convey.So(samples[2].Value, convey.ShouldEqual, 0)
				convey.So(samples[0].At.Before(samples[1].At), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When fetching a narrow window", func() {
			samples, err := store.History(ctx, "acct-1", "usage", 24*time.Hour)

			convey.Convey("Then older samples should be excluded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(samples), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When listing entities", func() {
			ids := store.EntityIDs(ctx)

			convey.Convey("Then the seeded entity should be present", func() {
				convey.So(ids, convey.ShouldContain, "acct-1")
			})
		})
	})
}

func TestStore_Restore(t *testing.T) {
	convey.Convey("Given persisted feature snapshots for an entity", t, func() {
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		store := feature.NewStore(feature.WithClock(func() time.Time { return now }))
		ctx := context.Background()

		carried := model.FeatureValue{Value: 0.8, ObservedAt: now.Add(-48 * time.Hour), Samples: 1}
		sets := []model.FeatureSet{
			{
				EntityID:   "acct-1",
				EntityType: model.EntityAccount,
				Version:    1,
				CapturedAt: now.Add(-48 * time.Hour),
				Features:   map[string]model.FeatureValue{"usage": carried},
			},
			{
				EntityID:   "acct-1",
				EntityType: model.EntityAccount,
				Version:    2,
				CapturedAt: now.Add(-24 * time.Hour),
				Features: map[string]model.FeatureValue{
					"usage":     carried,
					"sentiment": {Value: 0.3, ObservedAt: now.Add(-24 * time.Hour), Samples: 1},
				},
			},
		}

		convey.Convey("When restoring them into an empty store", func() {
			store.Restore(sets)

			convey.Convey("Then the newest snapshot should be readable", func() {
				fs, err := store.Latest(ctx, "acct-1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(fs.Version, convey.ShouldEqual, 2)
				convey.So(fs.Features["usage"].Value, convey.ShouldEqual, 0.8)
				convey.So(fs.Features["sentiment"].Value, convey.ShouldEqual, 0.3)
			})

			convey.Convey("Then a carried-forward feature should hold one sample, not two", func() {
				samples, err := store.History(ctx, "acct-1", "usage", 30*24*time.Hour)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(samples), convey.ShouldEqual, 1)
				convey.So(samples[0].Value, convey.ShouldEqual, 0.8)
			})

			convey.Convey("Then appending should continue the version sequence", func() {
				fs, err := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
					{Feature: "usage", Value: 0.5},
				})
				convey.So(err, convey.ShouldBeNil)
				convey.So(fs.Version, convey.ShouldEqual, 3)

				samples, herr := store.History(ctx, "acct-1", "usage", 30*24*time.Hour)
				convey.So(herr, convey.ShouldBeNil)
				convey.So(len(samples), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When restoring over existing in-memory state", func() {
			_, err := store.Append(ctx, "acct-1", model.EntityAccount, []model.Observation{
				{Feature: "usage", Value: 0.1},
			})
			convey.So(err, convey.ShouldBeNil)

			store.Restore(sets)

			convey.Convey("Then the snapshots should replace the prior state", func() {
				fs, lerr := store.Latest(ctx, "acct-1")
				convey.So(lerr, convey.ShouldBeNil)
				convey.So(fs.Version, convey.ShouldEqual, 2)
				convey.So(fs.Features["usage"].Value, convey.ShouldEqual, 0.8)
			})
		})

		convey.Convey("When restoring an empty slice", func() {
			store.Restore(nil)

			convey.Convey("Then nothing should be registered", func() {
				_, err := store.Latest(ctx, "acct-1")
				convey.So(err, convey.ShouldWrap, feature.ErrNotFound)
			})
		})
	})
}
