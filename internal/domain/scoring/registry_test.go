package scoring_test

import (
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cscx/pulse/internal/domain/scoring"
)

func TestRegistry(t *testing.T) {
	convey.Convey("Given an empty model registry", t, func() {
		registry := scoring.NewRegistry()

		convey.Convey("When publishing a valid model", func() {
			published, err := registry.Publish(churnModel())

			convey.Convey("Then it should become version 1 and be current", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(published.Version, convey.ShouldEqual, 1)
				convey.So(published.CreatedAt.IsZero(), convey.ShouldBeFalse)

				current, err := registry.Current("churn")
				convey.So(err, convey.ShouldBeNil)
				convey.So(current.Version, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When publishing the same name twice", func() {
			v1, err1 := registry.Publish(churnModel())
			adjusted := churnModel()
			adjusted.Factors[0].Weight = 0.45
			v2, err2 := registry.Publish(adjusted)

			convey.Convey("Then versions should be append-only", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(v1.Version, convey.ShouldEqual, 1)
				convey.So(v2.Version, convey.ShouldEqual, 2)

				current, err := registry.Current("churn")
				convey.So(err, convey.ShouldBeNil)
				convey.So(current.Version, convey.ShouldEqual, 2)
				convey.So(current.Factors[0].Weight, convey.ShouldEqual, 0.45)
			})

			convey.Convey("Then historical versions should stay readable", func() {
				old, err := registry.Version("churn", 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(old.Factors[0].Weight, convey.ShouldEqual, 0.40)

				all, err := registry.Versions("churn")
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(all), convey.ShouldEqual, 2)
				convey.So(all[0].Version, convey.ShouldEqual, 1)
				convey.So(all[1].Version, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When mutating a model after publishing", func() {
			m := churnModel()
			_, err := registry.Publish(m)
			m.Factors[0].Weight = 99

			convey.Convey("Then the published version should be unaffected", func() {
				convey.So(err, convey.ShouldBeNil)
				current, err := registry.Current("churn")
				convey.So(err, convey.ShouldBeNil)
				convey.So(current.Factors[0].Weight, convey.ShouldEqual, 0.40)
			})
		})

		convey.Convey("When publishing an invalid model", func() {
			bad := churnModel()
			bad.Factors[1].Weight = -1
			_, err := registry.Publish(bad)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err, convey.ShouldWrap, scoring.ErrInvalidModel)
			})
		})

		convey.Convey("When looking up an unknown model", func() {
			_, errCurrent := registry.Current("missing")
			_, errVersion := registry.Version("churn", 7)

			convey.Convey("Then lookups should fail with a not-found error", func() {
				convey.So(errCurrent, convey.ShouldWrap, scoring.ErrModelNotFound)
				convey.So(errVersion, convey.ShouldWrap, scoring.ErrModelNotFound)
			})
		})

		convey.Convey("When publishing the built-in models", func() {
			for _, m := range scoring.DefaultModels() {
				_, err := registry.Publish(m)
				convey.So(err, convey.ShouldBeNil)
			}

			convey.Convey("Then names should list them sorted", func() {
				names := registry.Names()
				convey.So(names, convey.ShouldResemble, []string{
					"alert_priority", "churn", "deal_risk", "relationship", "task_priority",
				})
			})
		})
	})
}

func TestLoadFile(t *testing.T) {
	convey.Convey("Given a model YAML file", t, func() {
		convey.Convey("When the file is well-formed", func() {
			path := writeTempModels(`
models:
  - name: churn
    max_score: 100
    factors:
      - name: champion_departed
        kind: boolean
        feature: champion_departed
        weight: 0.4
      - name: renewal_proximity
        kind: proximity
        feature: days_to_renewal
        weight: 0.6
`)
			defer func() { _ = os.Remove(path) }()

			models, err := scoring.LoadFile(path)

			convey.Convey("Then models should load with defaults applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(models), convey.ShouldEqual, 1)
				convey.So(models[0].Name, convey.ShouldEqual, "churn")
				convey.So(len(models[0].Factors), convey.ShouldEqual, 2)
				convey.So(models[0].Factors[1].Pivot, convey.ShouldEqual, 90.0)
			})
		})

		convey.Convey("When a model in the file is invalid", func() {
			path := writeTempModels(`
models:
  - name: churn
    max_score: 100
    factors:
      - name: bad
        kind: linear
        feature: usage
        weight: 0.5
        min: 1
        max: 1
`)
			defer func() { _ = os.Remove(path) }()

			_, err := scoring.LoadFile(path)

			convey.Convey("Then loading should fail validation", func() {
				convey.So(err, convey.ShouldWrap, scoring.ErrInvalidModel)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := scoring.LoadFile("/nonexistent/models.yaml")

			convey.Convey("Then loading should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestDefaultModels(t *testing.T) {
	convey.Convey("Given the built-in models", t, func() {
		models := scoring.DefaultModels()

		convey.Convey("Then each should pass validation", func() {
			for _, m := range models {
				convey.So(m.Validate(), convey.ShouldBeNil)
			}
		})

		convey.Convey("Then there should be one model per entity type", func() {
			names := make(map[string]bool, len(models))
			for _, m := range models {
				names[m.Name] = true
			}
			for _, want := range []string{"churn", "relationship", "deal_risk", "task_priority", "alert_priority"} {
				convey.So(names[want], convey.ShouldBeTrue)
			}
		})
	})
}

func writeTempModels(content string) string {
	f, err := os.CreateTemp("", "models-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	if err := f.Close(); err != nil {
		panic(err)
	}
	return f.Name()
}
