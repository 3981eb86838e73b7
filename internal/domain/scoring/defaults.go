package scoring

// DefaultModels returns the seed models for each entity type. Initial
// weights come from domain experts and are refined only through the
// calibration loop; they are deliberately round numbers.
func DefaultModels() []Model {
	return []Model{
		{
			Name:     "churn",
			MaxScore: DefaultMaxScore,
			Factors: []Factor{
				{
					Name: "champion_departed", Kind: KindBoolean,
					Feature: "champion_departed", Weight: 0.40,
					Explanation: "{factor}: a champion departure was detected",
				},
				{
					Name: "usage_decline", Kind: KindLinear,
					Feature: "usage_trend_30d", Weight: 0.25,
					Min: 0, Max: -1,
					Explanation: "{factor}: 30-day usage trend is {value}",
				},
				{
					Name: "renewal_proximity", Kind: KindProximity,
					Feature: "days_to_renewal", Weight: 0.20, Pivot: 180,
					Explanation: "{factor}: renewal is {value} days away",
				},
				{
					Name: "support_escalations", Kind: KindLinear,
					Feature: "support_escalations_30d", Weight: 0.15,
					Min: 0, Max: 10,
					Explanation: "{factor}: {value} escalations in the last 30 days",
				},
			},
		},
		{
			Name:     "relationship",
			MaxScore: DefaultMaxScore,
			Factors: []Factor{
				{
					Name: "engagement_drop", Kind: KindTrend,
					Feature: "meeting_count", Weight: 0.40, WindowDays: 30,
					Min: 0.2, Max: -0.2,
					Explanation: "{factor}: meeting cadence velocity is {value}/day",
				},
				{
					Name: "sentiment_slide", Kind: KindLinear,
					Feature: "sentiment_avg_30d", Weight: 0.30,
					Min: 1, Max: -1,
					Explanation: "{factor}: average sentiment is {value}",
				},
				{
					Name: "contact_gap", Kind: KindLinear,
					Feature: "days_since_contact", Weight: 0.30,
					Min: 0, Max: 60,
					Explanation: "{factor}: {value} days since last contact",
				},
			},
		},
		{
			Name:     "deal_risk",
			MaxScore: DefaultMaxScore,
			Factors: []Factor{
				{
					Name: "stage_stalled", Kind: KindLinear,
					Feature: "stage_stalled_days", Weight: 0.30,
					Min: 0, Max: 45,
					Explanation: "{factor}: {value} days in the same stage",
				},
				{
					Name: "close_proximity", Kind: KindProximity,
					Feature: "days_to_close", Weight: 0.25, Pivot: 60,
					Explanation: "{factor}: close date is {value} days away",
				},
				{
					Name: "thin_coverage", Kind: KindLinear,
					Feature: "stakeholder_count", Weight: 0.25,
					Min: 5, Max: 0,
					Explanation: "{factor}: only {value} engaged stakeholders",
				},
				{
					Name: "competitor_present", Kind: KindBoolean,
					Feature: "competitor_mentioned", Weight: 0.20,
					Explanation: "{factor}: a competitor was mentioned",
				},
			},
		},
		{
			Name:     "task_priority",
			MaxScore: DefaultMaxScore,
			Factors: []Factor{
				{
					Name: "due_proximity", Kind: KindProximity,
					Feature: "days_to_due", Weight: 0.40, Pivot: 14,
					Explanation: "{factor}: due in {value} days",
				},
				{
					Name: "blocking", Kind: KindLinear,
					Feature: "blocking_count", Weight: 0.30,
					Min: 0, Max: 5,
					Explanation: "{factor}: blocks {value} other items",
				},
				{
					Name: "account_risk", Kind: KindLinear,
					Feature: "account_risk_score", Weight: 0.30,
					Min: 0, Max: 100,
					Explanation: "{factor}: owning account risk is {value}",
				},
			},
		},
		{
			Name:     "alert_priority",
			MaxScore: DefaultMaxScore,
			Factors: []Factor{
				{
					Name: "magnitude", Kind: KindLinear,
					Feature: "magnitude", Weight: 0.50,
					Min: 0, Max: 1,
					Explanation: "{factor}: signal magnitude is {value}",
				},
				{
					Name: "account_risk", Kind: KindLinear,
					Feature: "account_risk_score", Weight: 0.30,
					Min: 0, Max: 100,
					Explanation: "{factor}: owning account risk is {value}",
				},
				{
					Name: "recurrence", Kind: KindLinear,
					Feature: "recurrence_count", Weight: 0.20,
					Min: 0, Max: 5,
					Explanation: "{factor}: fired {value} times recently",
				},
			},
		},
	}
}
