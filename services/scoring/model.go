package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is one campaign eligible to appear in a user's queue, as seen by
// the ranker. The caller resolves visibility and eligibility first.
type Candidate struct {
	CampaignID string
	Payout     decimal.Decimal
	Total      int64
	Served     int64
	CreatedAt  time.Time
}

// RankedCandidate pairs a candidate with its final score.
type RankedCandidate struct {
	Candidate
	Score float64
}

// RotationTracking remembers when a campaign last appeared in a user's queue.
// A campaign served within its tier's rotation window takes the recent
// penalty on the next ranking pass.
type RotationTracking struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID       string    `gorm:"column:user_id;uniqueIndex:idx_rotation;not null"`
	CampaignID   string    `gorm:"column:campaign_id;uniqueIndex:idx_rotation;not null"`
	LastServedAt time.Time `gorm:"column:last_served_at;not null"`
	ServeCount   int64     `gorm:"column:serve_count;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RotationTracking) TableName() string { return "rotation_trackings" }
