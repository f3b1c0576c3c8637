package consolation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reward is a write-once goodwill payout, issued when a campaign disappears
// under an in-flight claim session. CampaignID is nullable because the
// campaign may already be deleted when the reward is recorded.
type Reward struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	SessionToken string          `gorm:"column:session_token;uniqueIndex;not null"`
	UserID       string          `gorm:"column:user_id;index;not null"`
	CampaignID   *string         `gorm:"column:campaign_id"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(12,3);not null"`
	Reason       string          `gorm:"column:reason;type:varchar(64);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Reward) TableName() string { return "consolation_rewards" }
