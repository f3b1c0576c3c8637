package configstore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Setting is a persisted configuration row. Values are JSON blobs validated
// into the typed structs below at the store boundary; nothing downstream
// touches the raw shape.
type Setting struct {
	Key       string         `gorm:"column:key;primaryKey;type:varchar(64)"`
	Value     datatypes.JSON `gorm:"column:value;type:jsonb"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// Persisted config keys.
const (
	KeyValueThresholds   = "value_thresholds"
	KeyAttemptLimits     = "attempt_limits"
	KeyCooldownSeconds   = "cooldown_seconds"
	KeyRotationWindows   = "rotation_windows"
	KeyScoringConfig     = "scoring_config"
	KeyConsolationConfig = "consolation_config"
)

// ValueThresholds classify a campaign payout into a tier.
type ValueThresholds struct {
	High   decimal.Decimal `json:"high"`
	Medium decimal.Decimal `json:"medium"`
}

func DefaultValueThresholds() ValueThresholds {
	return ValueThresholds{
		High:   decimal.NewFromFloat(5.000),
		Medium: decimal.NewFromFloat(1.000),
	}
}

func (t ValueThresholds) Validate() error {
	if t.Medium.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("medium threshold must be > 0")
	}
	if t.High.LessThan(t.Medium) {
		return fmt.Errorf("high threshold must be >= medium threshold")
	}
	return nil
}

// AttemptLimits cap successful claims per (user, campaign) per civil day.
type AttemptLimits struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func DefaultAttemptLimits() AttemptLimits {
	return AttemptLimits{High: 2, Medium: 3, Low: 5}
}

func (l AttemptLimits) Validate() error {
	if l.High < 1 || l.Medium < 1 || l.Low < 1 {
		return fmt.Errorf("attempt limits must be >= 1")
	}
	return nil
}

// CooldownConfig spaces successive claims on high-value campaigns.
type CooldownConfig struct {
	Seconds int64 `json:"value"`
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{Seconds: 3600}
}

func (c CooldownConfig) Validate() error {
	if c.Seconds < 0 {
		return fmt.Errorf("cooldown seconds must be >= 0")
	}
	return nil
}

// RotationWindows hold the per-tier rest period (seconds) before a campaign
// scores normally again for a user it was recently shown to.
type RotationWindows struct {
	High   int64 `json:"high"`
	Medium int64 `json:"medium"`
	Low    int64 `json:"low"`
}

func DefaultRotationWindows() RotationWindows {
	return RotationWindows{High: 21600, Medium: 10800, Low: 3600}
}

func (w RotationWindows) Validate() error {
	if w.High < 0 || w.Medium < 0 || w.Low < 0 {
		return fmt.Errorf("rotation windows must be >= 0")
	}
	return nil
}

// ScoringWeights weight the score terms.
type ScoringWeights struct {
	Payout    float64 `json:"payout"`
	Progress  float64 `json:"progress"`
	Freshness float64 `json:"freshness"`
	Recent    float64 `json:"recent"`
}

// ScoringConfig drives campaign ranking. ExposureCapRatio is accepted from
// stored configs for compatibility but no longer feeds the score.
type ScoringConfig struct {
	Weights          ScoringWeights `json:"weights"`
	FreshnessCapSec  int64          `json:"freshness_cap_sec"`
	ExposureCapRatio float64        `json:"exposure_cap_ratio"`
	JitterBand       float64        `json:"jitter_band"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: ScoringWeights{
			Payout:    0.40,
			Progress:  0.25,
			Freshness: 0.20,
			Recent:    0.35,
		},
		FreshnessCapSec: 604800,
		JitterBand:      0.02,
	}
}

func (c ScoringConfig) Validate() error {
	if c.Weights.Payout < 0 || c.Weights.Progress < 0 || c.Weights.Freshness < 0 || c.Weights.Recent < 0 {
		return fmt.Errorf("scoring weights must be >= 0")
	}
	if c.FreshnessCapSec <= 0 {
		return fmt.Errorf("freshness cap must be > 0")
	}
	if c.JitterBand < 0 {
		return fmt.Errorf("jitter band must be >= 0")
	}
	return nil
}

// ConsolationConfig bounds goodwill payouts.
type ConsolationConfig struct {
	Amount          decimal.Decimal `json:"amount"`
	PerUserDailyCap int             `json:"per_user_daily_cap"`
	GlobalDailyCap  int             `json:"global_daily_cap"`
}

func DefaultConsolationConfig() ConsolationConfig {
	return ConsolationConfig{
		Amount:          decimal.NewFromFloat(0.050),
		PerUserDailyCap: 5,
		GlobalDailyCap:  1000,
	}
}

func (c ConsolationConfig) Validate() error {
	if c.Amount.IsNegative() {
		return fmt.Errorf("consolation amount must be >= 0")
	}
	if c.PerUserDailyCap < 0 || c.GlobalDailyCap < 0 {
		return fmt.Errorf("consolation caps must be >= 0")
	}
	return nil
}
