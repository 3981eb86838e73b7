package model

import "time"

// BundleState is the lifecycle state of an alert bundle.
type BundleState string

const (
	BundleNew          BundleState = "new"
	BundleBundled      BundleState = "bundled"
	BundleDelivered    BundleState = "delivered"
	BundleAcknowledged BundleState = "acknowledged"
	BundleSuppressed   BundleState = "suppressed"
	BundleExpired      BundleState = "expired"
)

// DeliveryMode is the bundler's recommendation for how to surface a bundle.
type DeliveryMode string

const (
	DeliverImmediate DeliveryMode = "immediate"
	DeliverDigest    DeliveryMode = "digest"
	DeliverSuppress  DeliveryMode = "suppress"
)

// BundleMember is one scored alert folded into a bundle.
type BundleMember struct {
	RecordID  string
	AlertType string
	Score     float64
	AddedAt   time.Time
}

// AlertBundle groups related scored alerts for one entity within a time
// window into a single delivery unit. The bundle score is the maximum of
// member scores so a severe signal is never diluted.
type AlertBundle struct {
	ID        string
	EntityID  string
	State     BundleState
	Score     float64
	Title     string
	Members   []BundleMember
	Delivery  DeliveryMode
	OpenedAt  time.Time
	UpdatedAt time.Time
}

// FeedbackVerdict is a user's judgment on a score or recommendation.
type FeedbackVerdict string

const (
	VerdictHelpful     FeedbackVerdict = "helpful"
	VerdictNotHelpful  FeedbackVerdict = "not_helpful"
	VerdictAlreadyKnew FeedbackVerdict = "already_knew"
)

// FeedbackRecord captures user or outcome-derived judgment on a score
// record or recommendation. It feeds calibration only; it never mutates
// the record it refers to.
type FeedbackRecord struct {
	ID               string
	RecordID         string
	RecommendationID string // optional
	Verdict          FeedbackVerdict
	Outcome          string // e.g. "churned", "retained", "accepted", "rejected"
	CreatedAt        time.Time
}
