package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

// Watch-duration bounds, in seconds. Values must land on a 15s step.
const (
	MinWatchDuration  = 30
	MaxWatchDuration  = 120
	WatchDurationStep = 15
)

// MinPayout is the smallest payout-per-completion the platform accepts.
var MinPayout = decimal.NewFromFloat(0.001)

// Campaign is an advertiser-funded task. The owner pre-pays payout x total at
// creation; deleting refunds the unserved remainder. served never exceeds
// total: the increment is guarded at the database.
type Campaign struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Code          string          `gorm:"column:code;uniqueIndex;type:varchar(20);not null"`
	OwnerID       string          `gorm:"column:owner_id;index;not null"`
	Title         string          `gorm:"column:title;type:varchar(255);not null"`
	URL           string          `gorm:"column:url;type:text;not null"`
	Payout        decimal.Decimal `gorm:"column:payout;type:numeric(12,3);not null"`
	WatchDuration int             `gorm:"column:watch_duration;not null"`
	Total         int64           `gorm:"column:total;not null"`
	Served        int64           `gorm:"column:served;not null"`
	Paused        bool            `gorm:"column:paused;not null"`
	Finished      bool            `gorm:"column:finished;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string { return "campaigns" }

// Active reports whether the campaign can appear in queues and accept claims.
func (c *Campaign) Active() bool {
	return !c.Paused && !c.Finished && c.Served < c.Total
}
