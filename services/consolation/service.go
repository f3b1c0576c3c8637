package consolation

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

// Eligibility is the answer to "may this session receive a consolation?".
type Eligibility struct {
	Eligible bool
	Reason   string
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	clk    clock.Clock
	config *configstore.Store
	wallet *wallet.Service

	rewards repository.Repository[Reward]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clock.Clock
	Config *configstore.Store
	Wallet *wallet.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		clk:     p.Clock,
		config:  p.Config,
		wallet:  p.Wallet,
		rewards: repository.ProvideStore[Reward](p.DB),
	}
}

// CheckEligibility runs inside the caller's transaction. A session qualifies
// when no consolation and no graded attempt exist for its token, and neither
// the per-user nor the global daily cap is exhausted.
func (s *Service) CheckEligibility(ctx context.Context, tx *gorm.DB, userID, sessionToken string) (*Eligibility, error) {
	prior, err := s.rewards.WithTrx(tx).FindOne(ctx, &Reward{SessionToken: sessionToken})
	if err != nil {
		return nil, errutil.Internal("failed to read consolation rewards", errutil.WithErr(err))
	}
	if prior != nil {
		return &Eligibility{Reason: "consolation already issued for this session"}, nil
	}

	var graded int64
	if err := tx.WithContext(ctx).
		Model(&quiz.Attempt{}).
		Where("session_token = ?", sessionToken).
		Count(&graded).Error; err != nil {
		return nil, errutil.Internal("failed to read quiz attempts", errutil.WithErr(err))
	}
	if graded > 0 {
		return &Eligibility{Reason: "session already graded"}, nil
	}

	cfg := s.config.Consolation(ctx)
	dayStart, dayEnd := s.today()

	var userCount int64
	if err := tx.WithContext(ctx).
		Model(&Reward{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, dayStart, dayEnd).
		Count(&userCount).Error; err != nil {
		return nil, errutil.Internal("failed to count user consolations", errutil.WithErr(err))
	}
	if userCount >= int64(cfg.PerUserDailyCap) {
		return &Eligibility{Reason: "daily consolation limit reached"}, nil
	}

	var globalCount int64
	if err := tx.WithContext(ctx).
		Model(&Reward{}).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Count(&globalCount).Error; err != nil {
		return nil, errutil.Internal("failed to count consolations", errutil.WithErr(err))
	}
	if globalCount >= int64(cfg.GlobalDailyCap) {
		return &Eligibility{Reason: "platform consolation budget exhausted for today"}, nil
	}

	return &Eligibility{Eligible: true}, nil
}

// Issue records the reward and credits the wallet inside the caller's
// transaction. The unique session token index resolves a concurrent double
// issue; the wallet reference id makes the credit idempotent on retry.
func (s *Service) Issue(ctx context.Context, tx *gorm.DB, userID string, campaignID *string, sessionToken, reason string) (*Reward, error) {
	amount := s.config.Consolation(ctx).Amount

	// CreatedAt comes from the platform clock, not the database, so the
	// daily cap windows and the row timestamps agree.
	reward := &Reward{
		ID:           s.node.Generate().String(),
		SessionToken: sessionToken,
		UserID:       userID,
		CampaignID:   campaignID,
		Amount:       amount,
		Reason:       reason,
		CreatedAt:    s.clk.Now(),
	}
	if err := s.rewards.WithTrx(tx).Create(ctx, reward); err != nil {
		if replay, ferr := s.rewards.WithTrx(tx).FindOne(ctx, &Reward{SessionToken: sessionToken}); ferr == nil && replay != nil {
			return replay, nil
		}
		return nil, errutil.Internal("failed to record consolation", errutil.WithErr(err))
	}

	if _, err := s.wallet.CreateTransactionTx(ctx, tx, wallet.CreateTransactionRequest{
		UserID:      userID,
		Type:        wallet.TypeBonus,
		Sign:        wallet.SignPlus,
		Amount:      amount,
		Status:      wallet.StatusSuccess,
		CampaignID:  campaignID,
		ReferenceID: wallet.ReferenceID("consolation", userID, sessionToken),
		Reason:      reason,
	}); err != nil {
		return nil, err
	}

	zap.L().Info("consolation issued",
		zap.String("user_id", userID),
		zap.String("session_token", sessionToken),
		zap.String("amount", amount.String()))
	return reward, nil
}

// today returns the bounds of the current civil day.
func (s *Service) today() (time.Time, time.Time) {
	now := s.clk.Now().In(s.clk.Location())
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.clk.Location())
	return start, start.AddDate(0, 0, 1)
}
