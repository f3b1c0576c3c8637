package eligibility

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/abujawed11/engage-swap-sub000/services/configstore"
)

// Tier classifies a campaign by payout-per-completion. Higher tiers get
// stricter attempt limits and, for HIGH, a claim cooldown.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// TierFor computes the tier from payout against the configured thresholds.
// A payout exactly at a threshold belongs to the higher tier.
func TierFor(payout decimal.Decimal, t configstore.ValueThresholds) Tier {
	switch {
	case payout.GreaterThanOrEqual(t.High):
		return TierHigh
	case payout.GreaterThanOrEqual(t.Medium):
		return TierMedium
	default:
		return TierLow
	}
}

// AttemptLimitFor resolves the per-civil-day successful claim cap for a tier.
func AttemptLimitFor(tier Tier, limits configstore.AttemptLimits) int {
	switch tier {
	case TierHigh:
		return limits.High
	case TierMedium:
		return limits.Medium
	default:
		return limits.Low
	}
}

type Outcome string

const (
	OutcomeAllow          Outcome = "ALLOW"
	OutcomeLimitReached   Outcome = "LIMIT_REACHED"
	OutcomeCooldownActive Outcome = "COOLDOWN_ACTIVE"
)

// Decision is the result of an eligibility check.
type Decision struct {
	Allowed       bool
	Outcome       Outcome
	Message       string
	RetryAfterSec int64
	Tier          Tier
	Attempts      int
}

// DailyClaimCounter counts successful claims per (user, campaign, civil day).
// The row expires implicitly when the date key rolls over; no cleanup is
// needed for correctness. The count never exceeds the tier limit: increments
// are guarded at the database.
type DailyClaimCounter struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID     string    `gorm:"column:user_id;uniqueIndex:idx_daily_claim;not null"`
	CampaignID string    `gorm:"column:campaign_id;uniqueIndex:idx_daily_claim;not null"`
	DateKey    string    `gorm:"column:date_key;uniqueIndex:idx_daily_claim;type:varchar(10);not null"`
	Count      int       `gorm:"column:count;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DailyClaimCounter) TableName() string { return "daily_claim_counters" }

// ActivityRecord holds the cooldown timestamp per (user, campaign). It is
// deliberately separate from the capped daily counter: the two use different
// keys and must not interfere.
type ActivityRecord struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID        string    `gorm:"column:user_id;uniqueIndex:idx_activity;not null"`
	CampaignID    string    `gorm:"column:campaign_id;uniqueIndex:idx_activity;not null"`
	LastClaimedAt time.Time `gorm:"column:last_claimed_at;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ActivityRecord) TableName() string { return "activity_records" }

// EnforcementLog is an append-only audit row per claim-path decision.
type EnforcementLog struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID        string    `gorm:"column:user_id;index;not null"`
	CampaignID    string    `gorm:"column:campaign_id;index;not null"`
	Outcome       Outcome   `gorm:"column:outcome;type:varchar(20);not null"`
	Tier          Tier      `gorm:"column:tier;type:varchar(8);not null"`
	Attempts      int       `gorm:"column:attempts;not null"`
	RetryAfterSec int64     `gorm:"column:retry_after_sec;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (EnforcementLog) TableName() string { return "enforcement_logs" }
