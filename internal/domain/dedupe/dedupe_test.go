package dedupe_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cscx/pulse/internal/domain/dedupe"
)

func TestTracker(t *testing.T) {
	convey.Convey("Given an in-memory tracker", t, func() {
		ctx := context.Background()

		convey.Convey("When recording a key twice", func() {
			tracker := dedupe.NewTracker()

			first := tracker.SeenAndRecord(ctx, "event-1")
			second := tracker.SeenAndRecord(ctx, "event-1")

			convey.Convey("Then only the second call should report seen", func() {
				convey.So(first, convey.ShouldBeFalse)
				convey.So(second, convey.ShouldBeTrue)
				convey.So(tracker.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a key is unrecorded", func() {
			tracker := dedupe.NewTracker()

			_ = tracker.SeenAndRecord(ctx, "event-1")
			tracker.Unrecord(ctx, "event-1")

			convey.Convey("Then it should be recordable again", func() {
				convey.So(tracker.SeenAndRecord(ctx, "event-1"), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When keys carry a TTL", func() {
			now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
			clock := &now
			tracker := dedupe.NewTracker(
				dedupe.WithTTL(time.Hour),
				dedupe.WithClock(func() time.Time { return *clock }),
			)

			_ = tracker.SeenAndRecord(ctx, "fp-1")

			convey.Convey("Then inside the TTL the key stays seen", func() {
				*clock = now.Add(30 * time.Minute)
				convey.So(tracker.SeenAndRecord(ctx, "fp-1"), convey.ShouldBeTrue)
			})

			convey.Convey("Then after the TTL the key reads as new again", func() {
				*clock = now.Add(2 * time.Hour)
				convey.So(tracker.SeenAndRecord(ctx, "fp-1"), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When capacity is exceeded", func() {
			tracker := dedupe.NewTracker(dedupe.WithMaxSize(10))

			for i := 0; i < 15; i++ {
				_ = tracker.SeenAndRecord(ctx, fmt.Sprintf("event-%d", i))
			}

			convey.Convey("Then size should stay bounded and oldest keys fall out", func() {
				convey.So(tracker.Size(), convey.ShouldBeLessThanOrEqualTo, 10)
				convey.So(tracker.SeenAndRecord(ctx, "event-0"), convey.ShouldBeFalse)
				convey.So(tracker.SeenAndRecord(ctx, "event-14"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When accessed concurrently", func() {
			tracker := dedupe.NewTracker()
			done := make(chan bool, 10)

			for g := 0; g < 10; g++ {
				go func(g int) {
					for i := 0; i < 100; i++ {
						_ = tracker.SeenAndRecord(ctx, fmt.Sprintf("g%d-e%d", g, i))
					}
					done <- true
				}(g)
			}
			for g := 0; g < 10; g++ {
				<-done
			}

			convey.Convey("Then every distinct key should have been recorded once", func() {
				convey.So(tracker.Size(), convey.ShouldEqual, 1000)
			})
		})
	})
}
