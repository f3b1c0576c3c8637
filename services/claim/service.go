package claim

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
	"github.com/abujawed11/engage-swap-sub000/services/campaign"
	"github.com/abujawed11/engage-swap-sub000/services/consolation"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/scoring"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

// errDenied rolls the submit transaction back after a deliberate denial; the
// result payload carrying the retry guidance survives in the closure.
var errDenied = errors.New("claim denied")

// Service runs the claim lifecycle: start a session against a campaign, then
// grade and credit the submit in one transaction.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	campaigns   *campaign.Service
	eligibility *eligibility.Engine
	quiz        *quiz.Service
	wallet      *wallet.Service
	consolation *consolation.Service
	ranker      *scoring.Ranker

	sessions repository.Repository[Session]
	attempts repository.Repository[quiz.Attempt]
}

type ServiceParams struct {
	fx.In

	DB          *gorm.DB
	Node        *snowflake.Node
	Campaigns   *campaign.Service
	Eligibility *eligibility.Engine
	Quiz        *quiz.Service
	Wallet      *wallet.Service
	Consolation *consolation.Service
	Ranker      *scoring.Ranker
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		campaigns:   p.Campaigns,
		eligibility: p.Eligibility,
		quiz:        p.Quiz,
		wallet:      p.Wallet,
		consolation: p.Consolation,
		ranker:      p.Ranker,
		sessions:    repository.ProvideStore[Session](p.DB),
		attempts:    repository.ProvideStore[quiz.Attempt](p.DB),
	}
}

// Start opens a claim session for a visible campaign and hands back the quiz
// prompts. The rotation tracker is stamped here, when the campaign is
// actually presented, not when it was merely scored.
func (s *Service) Start(ctx context.Context, userID, campaignID string) (*StartResult, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID == userID {
		return nil, errutil.Forbidden("you cannot claim your own campaign")
	}
	if !c.Active() {
		return nil, errutil.Unprocessable("campaign is not accepting claims")
	}

	questions, err := s.quiz.QuestionsFor(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(questions) != quiz.QuestionCount {
		return nil, errutil.Unprocessable("campaign quiz is incomplete")
	}

	session := &Session{
		ID:         s.node.Generate().String(),
		Token:      uuid.NewString(),
		UserID:     userID,
		CampaignID: campaignID,
		State:      StateStarted,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, errutil.Internal("failed to open claim session", errutil.WithErr(err))
	}

	if err := s.ranker.MarkServed(ctx, userID, []string{campaignID}); err != nil {
		zap.L().Warn("failed to stamp rotation tracking", zap.Error(err))
	}

	return &StartResult{
		SessionToken:  session.Token,
		CampaignID:    c.ID,
		Title:         c.Title,
		URL:           c.URL,
		WatchDuration: c.WatchDuration,
		Payout:        c.Payout,
		Prompts:       quiz.Prompts(questions),
	}, nil
}

// Submit grades the session's answers and, on a pass, credits the reward,
// consumes a daily attempt, and burns one campaign completion, all in one
// transaction. Replays return the stored result unchanged. A campaign that
// vanished or paused mid-session diverts to the consolation branch.
func (s *Service) Submit(ctx context.Context, sessionToken string, answers []string) (*SubmitResult, error) {
	session, err := s.sessions.FindOne(ctx, &Session{Token: sessionToken})
	if err != nil {
		return nil, errutil.Internal("failed to read claim session", errutil.WithErr(err))
	}
	if session == nil {
		return nil, errutil.NotFound("claim session not found")
	}

	var result *SubmitResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Idempotent replay: a graded session returns its stored result.
		prior, err := s.attempts.WithTrx(tx).FindOne(ctx, &quiz.Attempt{SessionToken: sessionToken})
		if err != nil {
			return errutil.Internal("failed to read quiz attempt", errutil.WithErr(err))
		}
		if prior != nil {
			result = replayResult(prior)
			return nil
		}

		c, err := s.campaigns.GetForUpdate(ctx, tx, session.CampaignID)
		if err != nil {
			return err
		}
		if c == nil || !c.Active() {
			result, err = s.interrupt(ctx, tx, session, c)
			return err
		}

		questions, err := s.quiz.QuestionsFor(ctx, session.CampaignID)
		if err != nil {
			return err
		}
		grade, err := quiz.Grade(questions, answers, c.Payout)
		if err != nil {
			return err
		}

		if !grade.Passed {
			if err := s.persistAttempt(ctx, tx, session, grade); err != nil {
				return err
			}
			if err := s.setState(ctx, tx, session, StateGradedFailed); err != nil {
				return err
			}
			result = &SubmitResult{
				Outcome:      OutcomeFailed,
				CorrectCount: grade.CorrectCount,
				Multiplier:   grade.Multiplier,
				RewardAmount: decimal.Zero,
				Message:      "Quiz failed. At least 3 correct answers are required.",
			}
			return nil
		}

		decision, err := s.eligibility.Check(ctx, tx, session.UserID, session.CampaignID, c.Payout)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			result = &SubmitResult{
				Outcome:       string(decision.Outcome),
				Passed:        true,
				CorrectCount:  grade.CorrectCount,
				Multiplier:    grade.Multiplier,
				RewardAmount:  decimal.Zero,
				Message:       decision.Message,
				RetryAfterSec: decision.RetryAfterSec,
			}
			return errDenied
		}

		if _, err := s.wallet.CreateTransactionTx(ctx, tx, wallet.CreateTransactionRequest{
			UserID:      session.UserID,
			Type:        wallet.TypeEarned,
			Sign:        wallet.SignPlus,
			Amount:      grade.RewardAmount,
			Status:      wallet.StatusSuccess,
			CampaignID:  &session.CampaignID,
			ReferenceID: wallet.ReferenceID("quiz_reward", session.UserID, session.Token),
			Reason:      "quiz reward",
		}); err != nil {
			return err
		}

		if err := s.eligibility.RecordClaim(ctx, tx, session.UserID, session.CampaignID, c.Payout); err != nil {
			return err
		}
		if err := s.campaigns.IncrementServed(ctx, tx, session.CampaignID); err != nil {
			return err
		}
		if err := s.persistAttempt(ctx, tx, session, grade); err != nil {
			return err
		}
		if err := s.setState(ctx, tx, session, StateCredited); err != nil {
			return err
		}

		result = &SubmitResult{
			Outcome:      OutcomeCredited,
			Passed:       true,
			CorrectCount: grade.CorrectCount,
			Multiplier:   grade.Multiplier,
			RewardAmount: grade.RewardAmount,
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDenied) {
		return nil, err
	}
	return result, nil
}

// interrupt handles a campaign that was deleted, paused, or exhausted between
// start and submit. Consolation is best effort: an ineligible session falls
// back to a plain denial with a zero amount.
func (s *Service) interrupt(ctx context.Context, tx *gorm.DB, session *Session, c *campaign.Campaign) (*SubmitResult, error) {
	eligible, err := s.consolation.CheckEligibility(ctx, tx, session.UserID, session.Token)
	if err != nil {
		return nil, err
	}

	out := &SubmitResult{
		Outcome:      OutcomeConsolationInterrupted,
		RewardAmount: decimal.Zero,
		Message:      "The campaign is no longer available.",
	}
	if !eligible.Eligible {
		out.Message = "The campaign is no longer available. " + eligible.Reason + "."
		return out, s.setState(ctx, tx, session, StateConsolationInterrupted)
	}

	var campaignID *string
	if c != nil {
		campaignID = &c.ID
	}
	reward, err := s.consolation.Issue(ctx, tx, session.UserID, campaignID, session.Token, "campaign interrupted")
	if err != nil {
		return nil, err
	}

	out.RewardAmount = reward.Amount
	out.Message = "The campaign is no longer available. A consolation reward was credited."
	return out, s.setState(ctx, tx, session, StateConsolationInterrupted)
}

func (s *Service) persistAttempt(ctx context.Context, tx *gorm.DB, session *Session, grade *quiz.GradeResult) error {
	attempt := &quiz.Attempt{
		ID:           s.node.Generate().String(),
		SessionToken: session.Token,
		UserID:       session.UserID,
		CampaignID:   session.CampaignID,
		CorrectCount: grade.CorrectCount,
		Passed:       grade.Passed,
		Multiplier:   grade.Multiplier,
		RewardAmount: grade.RewardAmount,
	}
	if err := s.attempts.WithTrx(tx).Create(ctx, attempt); err != nil {
		return errutil.Internal("failed to record quiz attempt", errutil.WithErr(err))
	}
	return nil
}

func (s *Service) setState(ctx context.Context, tx *gorm.DB, session *Session, state SessionState) error {
	if err := tx.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", session.ID).
		Update("state", state).Error; err != nil {
		return errutil.Internal("failed to update claim session", errutil.WithErr(err))
	}
	return nil
}

func replayResult(attempt *quiz.Attempt) *SubmitResult {
	if attempt.Passed {
		return &SubmitResult{
			Outcome:      OutcomeAlreadyCredited,
			Passed:       true,
			CorrectCount: attempt.CorrectCount,
			Multiplier:   attempt.Multiplier,
			RewardAmount: attempt.RewardAmount,
		}
	}
	return &SubmitResult{
		Outcome:      OutcomeFailed,
		CorrectCount: attempt.CorrectCount,
		Multiplier:   attempt.Multiplier,
		RewardAmount: decimal.Zero,
		Message:      "Quiz failed. At least 3 correct answers are required.",
	}
}
