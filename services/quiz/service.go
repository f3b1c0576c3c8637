package quiz

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/db/option"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
)

// GradeResult is the outcome of grading one submission.
type GradeResult struct {
	CorrectCount int
	Passed       bool
	Multiplier   decimal.Decimal
	RewardAmount decimal.Decimal
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	questions repository.Repository[Question]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		questions: repository.ProvideStore[Question](p.DB),
	}
}

// QuestionInput is the owner-supplied shape for one quiz question.
type QuestionInput struct {
	Prompt   string   `json:"prompt"`
	Answer   string   `json:"answer"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// ReplaceQuestions swaps a campaign's quiz inside the caller's transaction.
// Exactly QuestionCount questions are required.
func (s *Service) ReplaceQuestions(ctx context.Context, tx *gorm.DB, campaignID string, inputs []QuestionInput) error {
	if len(inputs) != QuestionCount {
		return errutil.ValidationFailed("a campaign quiz requires exactly 5 questions")
	}
	for _, in := range inputs {
		if strings.TrimSpace(in.Prompt) == "" || strings.TrimSpace(in.Answer) == "" {
			return errutil.ValidationFailed("question prompt and answer are required")
		}
	}

	if err := tx.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Delete(&Question{}).Error; err != nil {
		return errutil.Internal("failed to clear quiz questions", errutil.WithErr(err))
	}

	rows := make([]*Question, 0, len(inputs))
	for i, in := range inputs {
		var syn datatypes.JSON
		if len(in.Synonyms) > 0 {
			b, _ := json.Marshal(in.Synonyms)
			syn = datatypes.JSON(b)
		}
		rows = append(rows, &Question{
			ID:         s.node.Generate().String(),
			CampaignID: campaignID,
			Position:   i,
			Prompt:     in.Prompt,
			Answer:     in.Answer,
			Synonyms:   syn,
		})
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return errutil.Internal("failed to store quiz questions", errutil.WithErr(err))
	}
	return nil
}

// DeleteQuestions removes a campaign's quiz inside the caller's transaction.
func (s *Service) DeleteQuestions(ctx context.Context, tx *gorm.DB, campaignID string) error {
	if err := tx.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Delete(&Question{}).Error; err != nil {
		return errutil.Internal("failed to delete quiz questions", errutil.WithErr(err))
	}
	return nil
}

// QuestionsFor returns a campaign's quiz in position order.
func (s *Service) QuestionsFor(ctx context.Context, campaignID string) ([]*Question, error) {
	rows, err := s.questions.Find(ctx, &Question{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "position", OrderBy: "asc", Allow: map[string]bool{"position": true}}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to read quiz questions", errutil.WithErr(err))
	}
	return rows, nil
}

// Prompts strips answers so the quiz can be handed to a client.
func Prompts(questions []*Question) []string {
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.Prompt)
	}
	return out
}

// Grade verifies submitted answers against the server-held questions and
// applies the reward curve to fullReward. It is stateless; persistence of the
// attempt belongs to the claim path.
func Grade(questions []*Question, answers []string, fullReward decimal.Decimal) (*GradeResult, error) {
	if len(questions) != QuestionCount {
		return nil, errutil.Unprocessable("campaign quiz is incomplete")
	}
	if len(answers) != QuestionCount {
		return nil, errutil.ValidationFailed("exactly 5 answers are required")
	}

	correct := 0
	for i, q := range questions {
		if matches(q, answers[i]) {
			correct++
		}
	}

	multiplier := MultiplierFor(correct)
	return &GradeResult{
		CorrectCount: correct,
		Passed:       correct >= PassThreshold,
		Multiplier:   multiplier,
		RewardAmount: fullReward.Mul(multiplier).Round(3),
	}, nil
}

// MultiplierFor maps a correct count onto the reward step curve.
func MultiplierFor(correct int) decimal.Decimal {
	switch {
	case correct >= 5:
		return decimal.NewFromFloat(1.00)
	case correct == 4:
		return decimal.NewFromFloat(0.80)
	case correct == 3:
		return decimal.NewFromFloat(0.60)
	default:
		return decimal.Zero
	}
}

func matches(q *Question, answer string) bool {
	got := Normalize(answer)
	if got == "" {
		return false
	}
	if got == Normalize(q.Answer) {
		return true
	}

	if len(q.Synonyms) > 0 {
		var synonyms []string
		if err := json.Unmarshal(q.Synonyms, &synonyms); err == nil {
			for _, s := range synonyms {
				if got == Normalize(s) {
					return true
				}
			}
		}
	}
	return false
}

// Normalize canonicalizes a free-text answer: trim, collapse inner
// whitespace, lowercase.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
