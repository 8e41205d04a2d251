package domain

import "time"

// EngagementMetrics is the latest known engagement snapshot for a post.
type EngagementMetrics struct {
	PostID      string    `db:"post_id"      json:"post_id"`
	Likes       int64     `db:"likes"        json:"likes"`
	Comments    int64     `db:"comments"     json:"comments"`
	Shares      int64     `db:"shares"       json:"shares"`
	Reach       int64     `db:"reach"        json:"reach"`
	Impressions int64     `db:"impressions"  json:"impressions"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
}

// MetricField names a counter that webhooks can move.
type MetricField string

const (
	MetricLikes    MetricField = "likes"
	MetricComments MetricField = "comments"
	MetricShares   MetricField = "shares"
)

// Valid reports whether f maps to a counter column.
func (f MetricField) Valid() bool {
	switch f {
	case MetricLikes, MetricComments, MetricShares:
		return true
	default:
		return false
	}
}
