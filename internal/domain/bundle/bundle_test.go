package bundle_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cscx/pulse/internal/domain/bundle"
	"github.com/cscx/pulse/internal/domain/model"
)

func alertRecord(recordID string, score float64) model.ScoreRecord {
	return model.ScoreRecord{
		RecordID:   recordID,
		EntityID:   "acct-1",
		EntityType: model.EntityRawAlert,
		Score:      score,
		Available:  true,
	}
}

func TestThresholds_Decide(t *testing.T) {
	convey.Convey("Given the default delivery thresholds", t, func() {
		th := bundle.Thresholds{Immediate: 70, Digest: 40}

		convey.Convey("Then scores should map to delivery modes by band", func() {
			convey.So(th.Decide(85), convey.ShouldEqual, model.DeliverImmediate)
			convey.So(th.Decide(70), convey.ShouldEqual, model.DeliverImmediate)
			convey.So(th.Decide(55), convey.ShouldEqual, model.DeliverDigest)
			convey.So(th.Decide(40), convey.ShouldEqual, model.DeliverDigest)
			convey.So(th.Decide(39.9), convey.ShouldEqual, model.DeliverSuppress)
		})
	})
}

func TestBundler_Add(t *testing.T) {
	convey.Convey("Given a bundler with a fixed clock", t, func() {
		now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		clock := &now
		b := bundle.NewBundler(bundle.WithClock(func() time.Time { return *clock }))
		ctx := context.Background()

		convey.Convey("When two different alerts arrive within the window", func() {
			first, sup1 := b.Add(ctx, alertRecord("rec-1", 55), "usage_drop")
			*clock = now.Add(30 * time.Minute)
			second, sup2 := b.Add(ctx, alertRecord("rec-2", 70), "sentiment_drop")

			convey.Convey("Then they should merge into one bundle", func() {
				convey.So(sup1, convey.ShouldBeFalse)
				convey.So(sup2, convey.ShouldBeFalse)
				convey.So(second.ID, convey.ShouldEqual, first.ID)
				convey.So(len(second.Members), convey.ShouldEqual, 2)
				convey.So(second.State, convey.ShouldEqual, model.BundleBundled)
			})

			convey.Convey("Then the bundle score should be the maximum, not the mean", func() {
				convey.So(second.Score, convey.ShouldEqual, 70)
				convey.So(second.Delivery, convey.ShouldEqual, model.DeliverImmediate)
			})

			convey.Convey("Then the title should lead with the worst member", func() {
				convey.So(second.Title, convey.ShouldEqual, "sentiment_drop and 1 more")
			})
		})

		convey.Convey("When a near-identical alert repeats inside the cool-down", func() {
			_, sup1 := b.Add(ctx, alertRecord("rec-1", 55), "usage_drop")
			*clock = now.Add(10 * time.Minute)
			// Score 56 rounds to the same fingerprint as 55.
			merged, sup2 := b.Add(ctx, alertRecord("rec-2", 56), "usage_drop")

			convey.Convey("Then the repeat should be suppressed into the open bundle", func() {
				convey.So(sup1, convey.ShouldBeFalse)
				convey.So(sup2, convey.ShouldBeTrue)
				convey.So(len(merged.Members), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the same alert type recurs at a clearly worse score", func() {
			_, sup1 := b.Add(ctx, alertRecord("rec-1", 55), "usage_drop")
			*clock = now.Add(time.Hour)
			bdl, sup2 := b.Add(ctx, alertRecord("rec-2", 75), "usage_drop")

			convey.Convey("Then it should count as a fresh member, not a repeat", func() {
				convey.So(sup1, convey.ShouldBeFalse)
				convey.So(sup2, convey.ShouldBeFalse)
				convey.So(len(bdl.Members), convey.ShouldEqual, 2)
				convey.So(bdl.Score, convey.ShouldEqual, 75)
			})
		})

		convey.Convey("When the bundling window has elapsed", func() {
			first, _ := b.Add(ctx, alertRecord("rec-1", 55), "usage_drop")
			*clock = now.Add(25 * time.Hour)
			fresh, sup := b.Add(ctx, alertRecord("rec-2", 45), "sla_breach")

			convey.Convey("Then a new bundle should open", func() {
				convey.So(sup, convey.ShouldBeFalse)
				convey.So(fresh.ID, convey.ShouldNotEqual, first.ID)
				convey.So(len(fresh.Members), convey.ShouldEqual, 1)
				convey.So(fresh.State, convey.ShouldEqual, model.BundleNew)
			})
		})

		convey.Convey("When a low score alert arrives", func() {
			bdl, sup := b.Add(ctx, alertRecord("rec-1", 20), "usage_drop")

			convey.Convey("Then delivery should be suppress but the member kept", func() {
				convey.So(sup, convey.ShouldBeFalse)
				convey.So(bdl.Delivery, convey.ShouldEqual, model.DeliverSuppress)
				convey.So(len(bdl.Members), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestBundler_Transition(t *testing.T) {
	convey.Convey("Given a bundler with an open bundle", t, func() {
		now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		b := bundle.NewBundler(bundle.WithClock(func() time.Time { return now }))
		ctx := context.Background()

		_, _ = b.Add(ctx, alertRecord("rec-1", 80), "usage_drop")

		convey.Convey("When walking the happy path", func() {
			delivered, err1 := b.Transition("acct-1", model.BundleDelivered)
			acked, err2 := b.Transition("acct-1", model.BundleAcknowledged)

			convey.Convey("Then each step should succeed and the bundle closes", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(delivered.State, convey.ShouldEqual, model.BundleDelivered)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(acked.State, convey.ShouldEqual, model.BundleAcknowledged)

				_, open := b.Open("acct-1")
				convey.So(open, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When skipping straight to acknowledged", func() {
			_, err := b.Transition("acct-1", model.BundleAcknowledged)

			convey.Convey("Then the transition should be rejected", func() {
				convey.So(err, convey.ShouldWrap, bundle.ErrBadTransition)
			})
		})

		convey.Convey("When transitioning an entity with no bundle", func() {
			_, err := b.Transition("acct-404", model.BundleDelivered)

			convey.Convey("Then it should report no open bundle", func() {
				convey.So(err, convey.ShouldWrap, bundle.ErrNoOpenBundle)
			})
		})
	})
}

func TestFingerprint(t *testing.T) {
	convey.Convey("Given the fingerprint function", t, func() {
		convey.Convey("Then nearby scores should collide and distant ones should not", func() {
			convey.So(bundle.Fingerprint("acct-1", "usage_drop", 55),
				convey.ShouldEqual, bundle.Fingerprint("acct-1", "usage_drop", 56))
			convey.So(bundle.Fingerprint("acct-1", "usage_drop", 55),
				convey.ShouldNotEqual, bundle.Fingerprint("acct-1", "usage_drop", 65))
			convey.So(bundle.Fingerprint("acct-1", "usage_drop", 55),
				convey.ShouldNotEqual, bundle.Fingerprint("acct-2", "usage_drop", 55))
			convey.So(bundle.Fingerprint("acct-1", "usage_drop", 55),
				convey.ShouldNotEqual, bundle.Fingerprint("acct-1", "sla_breach", 55))
		})
	})
}
