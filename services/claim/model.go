package claim

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState tracks a claim session through its lifecycle.
type SessionState string

const (
	StateStarted                SessionState = "STARTED"
	StateGradedPassed           SessionState = "GRADED_PASSED"
	StateGradedFailed           SessionState = "GRADED_FAILED"
	StateCredited               SessionState = "CREDITED"
	StateConsolationInterrupted SessionState = "CONSOLATION_INTERRUPTED"
)

// Submit outcomes returned to clients. ALREADY_CREDITED marks the idempotent
// replay of a finished session.
const (
	OutcomeCredited               = "CREDITED"
	OutcomeFailed                 = "FAILED"
	OutcomeAlreadyCredited        = "ALREADY_CREDITED"
	OutcomeConsolationInterrupted = "CONSOLATION_INTERRUPTED"
)

// Session binds a user to one visit of one campaign. Its token is the
// single-use capability the client holds between start and submit, and the
// idempotency key for everything the submit writes.
type Session struct {
	ID         string       `gorm:"column:id;primaryKey;type:varchar(32)"`
	Token      string       `gorm:"column:token;uniqueIndex;type:varchar(36);not null"`
	UserID     string       `gorm:"column:user_id;index;not null"`
	CampaignID string       `gorm:"column:campaign_id;index;not null"`
	State      SessionState `gorm:"column:state;type:varchar(24);not null"`
	CreatedAt  time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Session) TableName() string { return "claim_sessions" }

// StartResult is the payload handed back when a session opens.
type StartResult struct {
	SessionToken  string          `json:"session_token"`
	CampaignID    string          `json:"campaign_id"`
	Title         string          `json:"title"`
	URL           string          `json:"url"`
	WatchDuration int             `json:"watch_duration"`
	Payout        decimal.Decimal `json:"payout"`
	Prompts       []string        `json:"prompts"`
}

// SubmitResult is the payload for a submit, cached or fresh.
type SubmitResult struct {
	Outcome       string          `json:"outcome"`
	Passed        bool            `json:"passed"`
	CorrectCount  int             `json:"correct_count"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	RewardAmount  decimal.Decimal `json:"reward_amount"`
	Message       string          `json:"message,omitempty"`
	RetryAfterSec int64           `json:"retry_after_sec,omitempty"`
}
