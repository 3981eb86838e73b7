package calibration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cscx/pulse/internal/domain/calibration"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/scoring"
)

type stubOutcomes struct {
	outs []calibration.Outcome
	err  error
}

func (s *stubOutcomes) Outcomes(ctx context.Context, modelName string) ([]calibration.Outcome, error) {
	return s.outs, s.err
}

type stubFeedback struct {
	records []model.FeedbackRecord
	err     error
}

func (s *stubFeedback) AppendFeedback(ctx context.Context, fb model.FeedbackRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, fb)
	return nil
}

func calibrationModel() scoring.Model {
	return scoring.Model{
		Name:     "churn",
		MaxScore: 100,
		Factors: []scoring.Factor{
			{Name: "champion_departed", Kind: scoring.KindBoolean, Feature: "champion_departed", Weight: 0.40},
			{Name: "usage_decline", Kind: scoring.KindLinear, Feature: "usage_trend", Weight: 0.35, Min: 0, Max: -1},
			{Name: "renewal_proximity", Kind: scoring.KindProximity, Feature: "renewal_days", Weight: 0.25},
		},
	}
}

// highBandOutcomes builds n high-risk outcomes naming factor as a top
// contributor, with the given number of adverse labels.
func highBandOutcomes(factor string, n, adverse int) []calibration.Outcome {
	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	outs := make([]calibration.Outcome, 0, n)
	for i := 0; i < n; i++ {
		label := "retained"
		if i < adverse {
			label = "churned"
		}
		outs = append(outs, calibration.Outcome{
			RecordID:   "rec",
			EntityID:   "acct",
			Score:      85,
			TopFactors: []string{factor},
			Label:      label,
			Adverse:    i < adverse,
			ObservedAt: at.AddDate(0, 0, i),
		})
	}
	return outs
}

func TestCalibrator_Recalibrate(t *testing.T) {
	convey.Convey("Given a calibrator over a registry with one published model", t, func() {
		ctx := context.Background()

		convey.Convey("When a factor keeps predicting correctly", func() {
			registry := scoring.NewRegistry()
			_, err := registry.Publish(calibrationModel())
			convey.So(err, convey.ShouldBeNil)

			src := &stubOutcomes{outs: highBandOutcomes("champion_departed", 10, 9)}
			cal := calibration.NewCalibrator(registry, src, &stubFeedback{})

			published, err := cal.Recalibrate(ctx, "churn")

			convey.Convey("Then its weight should rise by the capped delta", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(published.Version, convey.ShouldEqual, 2)
				// hit rate 0.9 -> delta (0.9-0.5)*2*0.1 = +8%
				convey.So(published.Factors[0].Weight, convey.ShouldAlmostEqual, 0.40*1.08, 1e-9)
			})

			convey.Convey("Then untouched factors should keep their weights", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(published.Factors[1].Weight, convey.ShouldEqual, 0.35)
				convey.So(published.Factors[2].Weight, convey.ShouldEqual, 0.25)
			})

			convey.Convey("Then the prior version should remain intact", func() {
				convey.So(err, convey.ShouldBeNil)
				v1, err := registry.Version("churn", 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(v1.Factors[0].Weight, convey.ShouldEqual, 0.40)
			})
		})

		convey.Convey("When a factor fires mostly on false alarms", func() {
			registry := scoring.NewRegistry()
			_, _ = registry.Publish(calibrationModel())

			src := &stubOutcomes{outs: highBandOutcomes("champion_departed", 10, 0)}
			cal := calibration.NewCalibrator(registry, src, &stubFeedback{})

			published, err := cal.Recalibrate(ctx, "churn")

			convey.Convey("Then its weight should drop, capped at the max delta", func() {
				convey.So(err, convey.ShouldBeNil)
				// hit rate 0 -> raw delta -1, clamped to -10%
				convey.So(published.Factors[0].Weight, convey.ShouldAlmostEqual, 0.40*0.90, 1e-9)
			})
		})

		convey.Convey("When there are too few outcomes per factor", func() {
			registry := scoring.NewRegistry()
			_, _ = registry.Publish(calibrationModel())

			src := &stubOutcomes{outs: highBandOutcomes("champion_departed", 3, 3)}
			cal := calibration.NewCalibrator(registry, src, &stubFeedback{})

			_, err := cal.Recalibrate(ctx, "churn")

			convey.Convey("Then the run should be rejected without publishing", func() {
				convey.So(err, convey.ShouldWrap, calibration.ErrInsufficientOutcomes)
				current, cerr := registry.Current("churn")
				convey.So(cerr, convey.ShouldBeNil)
				convey.So(current.Version, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When an adjustment would leave the sanity bounds", func() {
			m := calibrationModel()
			m.Factors[0].Weight = 4.9

			registry := scoring.NewRegistry()
			_, _ = registry.Publish(m)

			src := &stubOutcomes{outs: highBandOutcomes("champion_departed", 10, 10)}
			cal := calibration.NewCalibrator(registry, src, &stubFeedback{})

			_, err := cal.Recalibrate(ctx, "churn")

			convey.Convey("Then the run should diverge and keep the old version", func() {
				convey.So(err, convey.ShouldWrap, calibration.ErrCalibrationDivergence)
				current, cerr := registry.Current("churn")
				convey.So(cerr, convey.ShouldBeNil)
				convey.So(current.Version, convey.ShouldEqual, 1)
				convey.So(current.Factors[0].Weight, convey.ShouldEqual, 4.9)
			})
		})

		convey.Convey("When outcomes sit below the high band", func() {
			registry := scoring.NewRegistry()
			_, _ = registry.Publish(calibrationModel())

			outs := highBandOutcomes("champion_departed", 10, 9)
			for i := range outs {
				outs[i].Score = 50
			}
			cal := calibration.NewCalibrator(registry, &stubOutcomes{outs: outs}, &stubFeedback{})

			_, err := cal.Recalibrate(ctx, "churn")

			convey.Convey("Then they should not count toward any factor", func() {
				convey.So(err, convey.ShouldWrap, calibration.ErrInsufficientOutcomes)
			})
		})

		convey.Convey("When the model does not exist", func() {
			registry := scoring.NewRegistry()
			cal := calibration.NewCalibrator(registry, &stubOutcomes{}, &stubFeedback{})

			_, err := cal.Recalibrate(ctx, "missing")

			convey.Convey("Then it should report model not found", func() {
				convey.So(err, convey.ShouldWrap, scoring.ErrModelNotFound)
			})
		})

		convey.Convey("When the outcome source fails", func() {
			registry := scoring.NewRegistry()
			_, _ = registry.Publish(calibrationModel())

			boom := errors.New("storage down")
			cal := calibration.NewCalibrator(registry, &stubOutcomes{err: boom}, &stubFeedback{})

			_, err := cal.Recalibrate(ctx, "churn")

			convey.Convey("Then the failure should propagate", func() {
				convey.So(err, convey.ShouldWrap, boom)
			})
		})
	})
}

func TestCalibrator_RecordFeedback(t *testing.T) {
	convey.Convey("Given a calibrator with a feedback sink", t, func() {
		registry := scoring.NewRegistry()
		sink := &stubFeedback{}
		cal := calibration.NewCalibrator(registry, &stubOutcomes{}, sink)
		ctx := context.Background()

		convey.Convey("When recording a verdict", func() {
			err := cal.RecordFeedback(ctx, model.FeedbackRecord{
				ID:       "fb-1",
				RecordID: "rec-1",
				Verdict:  model.VerdictHelpful,
			})

			convey.Convey("Then it should be persisted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(sink.records), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When recording an outcome without a verdict", func() {
			err := cal.RecordFeedback(ctx, model.FeedbackRecord{
				ID:       "fb-2",
				RecordID: "rec-1",
				Outcome:  "churned",
			})

			convey.Convey("Then it should be accepted", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the record id is missing", func() {
			err := cal.RecordFeedback(ctx, model.FeedbackRecord{Verdict: model.VerdictHelpful})

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldWrap, calibration.ErrInvalidFeedback)
			})
		})

		convey.Convey("When the verdict is unknown", func() {
			err := cal.RecordFeedback(ctx, model.FeedbackRecord{RecordID: "rec-1", Verdict: "meh"})

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldWrap, calibration.ErrInvalidFeedback)
			})
		})

		convey.Convey("When neither verdict nor outcome is set", func() {
			err := cal.RecordFeedback(ctx, model.FeedbackRecord{RecordID: "rec-1"})

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldWrap, calibration.ErrInvalidFeedback)
			})
		})
	})
}
