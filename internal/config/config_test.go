package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cscx/pulse/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBPath, convey.ShouldEqual, "data/pulse.db")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.MaxHistoryLimit, convey.ShouldEqual, 500)
			convey.So(cfg.BundleWindow, convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.BundleCooldown, convey.ShouldEqual, 6*time.Hour)
			convey.So(cfg.CalibrationMaxDelta, convey.ShouldEqual, 0.10)
			convey.So(cfg.CalibrationMinSamples, convey.ShouldEqual, 5)
			convey.So(cfg.TrendWindows, convey.ShouldResemble, []int{7, 30, 90})
			convey.So(cfg.TrendDeadBand, convey.ShouldEqual, 0.02)
		})

		convey.Convey("Then every entity type should map to a model", func() {
			for _, typ := range []string{"account", "stakeholder", "deal", "task", "raw_alert"} {
				convey.So(cfg.EntityModels[typ], convey.ShouldNotBeEmpty)
			}
		})
	})
}
