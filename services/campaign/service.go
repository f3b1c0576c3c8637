package campaign

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/pkg/db/option"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/ratelimit"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
	"github.com/abujawed11/engage-swap-sub000/pkg/sequence"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/scoring"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	cfg   *config.Config
	codes sequence.Generator
	rl    ratelimit.Limiter

	wallet *wallet.Service
	quiz   *quiz.Service

	campaigns repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Cfg    *config.Config
	Codes  sequence.Generator `optional:"true"`
	RL     ratelimit.Limiter  `optional:"true"`
	Wallet *wallet.Service
	Quiz   *quiz.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		cfg:       p.Cfg,
		codes:     p.Codes,
		rl:        p.RL,
		wallet:    p.Wallet,
		quiz:      p.Quiz,
		campaigns: repository.ProvideStore[Campaign](p.DB),
	}
}

type CreateCampaignRequest struct {
	OwnerID       string
	Title         string
	URL           string
	Payout        decimal.Decimal
	WatchDuration int
	Total         int64
	Questions     []quiz.QuestionInput
}

func (r *CreateCampaignRequest) validate() error {
	if r.OwnerID == "" {
		return errutil.ValidationFailed("owner id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errutil.ValidationFailed("title is required")
	}
	if err := checkURL(r.URL); err != nil {
		return err
	}
	if r.Payout.LessThan(MinPayout) {
		return errutil.ValidationFailed(fmt.Sprintf("payout must be >= %s", MinPayout))
	}
	if !r.Payout.Equal(r.Payout.Round(3)) {
		return errutil.ValidationFailed("payout supports at most 3 decimal places")
	}
	if r.WatchDuration < MinWatchDuration || r.WatchDuration > MaxWatchDuration || r.WatchDuration%WatchDurationStep != 0 {
		return errutil.ValidationFailed("watch duration must be 30-120 seconds in steps of 15")
	}
	if r.Total < 1 {
		return errutil.ValidationFailed("total completions must be >= 1")
	}
	return nil
}

// Create opens a campaign and debits the owner's wallet for the full
// estimated cost (payout x total) up front. The debit, the campaign row, and
// the quiz commit together; an underfunded owner aborts the whole create.
func (s *Service) Create(ctx context.Context, req CreateCampaignRequest) (*Campaign, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	code, err := s.nextCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to allocate campaign code", errutil.WithErr(err))
	}

	out := &Campaign{
		ID:            s.node.Generate().String(),
		Code:          code,
		OwnerID:       req.OwnerID,
		Title:         req.Title,
		URL:           req.URL,
		Payout:        req.Payout.Round(3),
		WatchDuration: req.WatchDuration,
		Total:         req.Total,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.campaigns.WithTrx(tx).Create(ctx, out); err != nil {
			return errutil.Internal("failed to create campaign", errutil.WithErr(err))
		}

		cost := out.Payout.Mul(decimal.NewFromInt(out.Total))
		if _, err := s.wallet.CreateTransactionTx(ctx, tx, wallet.CreateTransactionRequest{
			UserID:      req.OwnerID,
			Type:        wallet.TypeSpent,
			Sign:        wallet.SignMinus,
			Amount:      cost,
			Status:      wallet.StatusSuccess,
			CampaignID:  &out.ID,
			ReferenceID: wallet.ReferenceID("campaign_funding", req.OwnerID, out.ID),
			Reason:      "campaign funding",
		}); err != nil {
			return err
		}

		return s.quiz.ReplaceQuestions(ctx, tx, out.ID, req.Questions)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("campaign created",
		zap.String("campaign_id", out.ID),
		zap.String("code", out.Code),
		zap.String("owner_id", req.OwnerID))
	return out, nil
}

func (s *Service) nextCode(ctx context.Context) (string, error) {
	if s.codes != nil {
		return s.codes.NextCampaignCode(ctx)
	}
	// No sequence backend wired (tests); fall back to the snowflake tail.
	id := s.node.Generate().String()
	return "CMP-" + id[len(id)-8:], nil
}

// Get returns a campaign by id.
func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to read campaign", errutil.WithErr(err))
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found")
	}
	return c, nil
}

// GetForUpdate loads a campaign under FOR UPDATE inside the caller's
// transaction. Missing campaigns return (nil, nil) so the claim path can take
// the consolation branch instead of erroring.
func (s *Service) GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*Campaign, error) {
	var c Campaign
	err := tx.WithContext(ctx).
		Scopes(option.LockingUpdate).
		Where("id = ?", id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errutil.Internal("failed to lock campaign", errutil.WithErr(err))
	}
	return &c, nil
}

// ListByOwner returns the owner's campaigns, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*Campaign, error) {
	return s.campaigns.Find(ctx, &Campaign{OwnerID: ownerID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
	)
}

type UpdateCampaignRequest struct {
	Title         *string
	URL           *string
	WatchDuration *int
	Paused        *bool
	Questions     []quiz.QuestionInput
}

// Update edits owner-mutable fields. Payout and total are fixed at creation
// because the funding debit already happened against them.
func (s *Service) Update(ctx context.Context, ownerID, id string, req UpdateCampaignRequest) (*Campaign, error) {
	updates := map[string]any{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, errutil.ValidationFailed("title is required")
		}
		updates["title"] = *req.Title
	}
	if req.URL != nil {
		if err := checkURL(*req.URL); err != nil {
			return nil, err
		}
		updates["url"] = *req.URL
	}
	if req.WatchDuration != nil {
		d := *req.WatchDuration
		if d < MinWatchDuration || d > MaxWatchDuration || d%WatchDurationStep != 0 {
			return nil, errutil.ValidationFailed("watch duration must be 30-120 seconds in steps of 15")
		}
		updates["watch_duration"] = d
	}
	if req.Paused != nil {
		updates["paused"] = *req.Paused
	}

	var out *Campaign
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.ownedForUpdate(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		if len(updates) > 0 {
			if err := tx.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
				return errutil.Internal("failed to update campaign", errutil.WithErr(err))
			}
		}
		if req.Questions != nil {
			if err := s.quiz.ReplaceQuestions(ctx, tx, id, req.Questions); err != nil {
				return err
			}
		}

		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pause stops a campaign from appearing in queues or accepting claims.
func (s *Service) Pause(ctx context.Context, ownerID, id string) (*Campaign, error) {
	paused := true
	return s.Update(ctx, ownerID, id, UpdateCampaignRequest{Paused: &paused})
}

// Resume reopens a paused campaign.
func (s *Service) Resume(ctx context.Context, ownerID, id string) (*Campaign, error) {
	paused := false
	return s.Update(ctx, ownerID, id, UpdateCampaignRequest{Paused: &paused})
}

// Delete removes a campaign, refunds the unserved remainder to the owner, and
// cascade-deletes the per-user trackers tied to it. In-flight claim sessions
// take the consolation branch when they come back and find the row gone.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.ownedForUpdate(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		remaining := c.Total - c.Served
		if remaining > 0 {
			refund := c.Payout.Mul(decimal.NewFromInt(remaining))
			if _, err := s.wallet.CreateTransactionTx(ctx, tx, wallet.CreateTransactionRequest{
				UserID:      ownerID,
				Type:        wallet.TypeRefund,
				Sign:        wallet.SignPlus,
				Amount:      refund,
				Status:      wallet.StatusSuccess,
				CampaignID:  &c.ID,
				ReferenceID: wallet.ReferenceID("campaign_refund", ownerID, c.ID),
				Reason:      "campaign deletion refund",
			}); err != nil {
				return err
			}
		}

		if err := s.quiz.DeleteQuestions(ctx, tx, id); err != nil {
			return err
		}
		for _, model := range []any{
			&eligibility.DailyClaimCounter{},
			&eligibility.ActivityRecord{},
			&scoring.RotationTracking{},
		} {
			if err := tx.WithContext(ctx).Where("campaign_id = ?", id).Delete(model).Error; err != nil {
				return errutil.Internal("failed to delete campaign trackers", errutil.WithErr(err))
			}
		}

		if err := tx.WithContext(ctx).Delete(&Campaign{}, "id = ?", id).Error; err != nil {
			return errutil.Internal("failed to delete campaign", errutil.WithErr(err))
		}

		zap.L().Info("campaign deleted",
			zap.String("campaign_id", id),
			zap.Int64("refunded_completions", remaining))
		return nil
	})
}

func (s *Service) ownedForUpdate(ctx context.Context, tx *gorm.DB, ownerID, id string) (*Campaign, error) {
	c, err := s.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found")
	}
	if c.OwnerID != ownerID {
		return nil, errutil.NotFound("campaign not found")
	}
	return c, nil
}

// Candidates returns the campaigns a user may be shown: not their own, not
// paused or finished, with completions left.
func (s *Service) Candidates(ctx context.Context, userID string) ([]*Campaign, error) {
	var rows []*Campaign
	if err := s.db.WithContext(ctx).
		Where("owner_id <> ? AND paused = ? AND finished = ? AND served < total", userID, false, false).
		Find(&rows).Error; err != nil {
		return nil, errutil.Internal("failed to list candidates", errutil.WithErr(err))
	}
	return rows, nil
}

// IncrementServed consumes one completion under the served < total guard and
// flips finished when the allotment is exhausted. A zero rows-affected result
// means a racing claim took the last slot.
func (s *Service) IncrementServed(ctx context.Context, tx *gorm.DB, id string) error {
	res := tx.WithContext(ctx).
		Model(&Campaign{}).
		Where("id = ? AND paused = ? AND finished = ? AND served < total", id, false, false).
		Update("served", gorm.Expr("served + 1"))
	if res.Error != nil {
		return errutil.Internal("failed to increment served count", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("campaign has no completions left")
	}

	if err := tx.WithContext(ctx).
		Model(&Campaign{}).
		Where("id = ? AND served >= total", id).
		Update("finished", true).Error; err != nil {
		return errutil.Internal("failed to finish campaign", errutil.WithErr(err))
	}
	return nil
}

// ValidateURL is the pre-create helper behind a fail-open fixed-window rate
// limit, keyed per user and per client IP.
func (s *Service) ValidateURL(ctx context.Context, userID, clientIP, raw string) error {
	if s.rl != nil {
		limit := s.cfg.RateLimit.URLValidatePerMinute
		if !s.rl.Allow(ctx, "url_validate", userID, limit, time.Minute) ||
			!s.rl.Allow(ctx, "url_validate", clientIP, limit, time.Minute) {
			return errutil.TooManyRequests("too many validation requests, slow down")
		}
	}
	return checkURL(raw)
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errutil.ValidationFailed("url must be absolute http(s)")
	}
	return nil
}
