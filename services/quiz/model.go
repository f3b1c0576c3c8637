package quiz

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// QuestionCount is the fixed quiz length per campaign.
const QuestionCount = 5

// PassThreshold is the minimum correct answers for a passing grade.
const PassThreshold = 3

// Question holds a free-text prompt with its server-held answer. Correct
// answers are never sent to clients before submission.
type Question struct {
	ID         string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID string         `gorm:"column:campaign_id;uniqueIndex:idx_question_position;not null"`
	Position   int            `gorm:"column:position;uniqueIndex:idx_question_position;not null"`
	Prompt     string         `gorm:"column:prompt;type:text;not null"`
	Answer     string         `gorm:"column:answer;type:text;not null"`
	Synonyms   datatypes.JSON `gorm:"column:synonyms"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Question) TableName() string { return "quiz_questions" }

// Attempt is the write-once grading record per claim session. Replays of the
// same session token read this row back instead of regrading.
type Attempt struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	SessionToken string          `gorm:"column:session_token;uniqueIndex;not null"`
	UserID       string          `gorm:"column:user_id;index;not null"`
	CampaignID   string          `gorm:"column:campaign_id;index;not null"`
	CorrectCount int             `gorm:"column:correct_count;not null"`
	Passed       bool            `gorm:"column:passed;not null"`
	Multiplier   decimal.Decimal `gorm:"column:multiplier;type:numeric(4,2);not null"`
	RewardAmount decimal.Decimal `gorm:"column:reward_amount;type:numeric(12,3);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Attempt) TableName() string { return "quiz_attempts" }
