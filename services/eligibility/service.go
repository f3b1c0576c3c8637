package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/db/option"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
	"github.com/abujawed11/engage-swap-sub000/pkg/task"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
)

var decisionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eligibility_decisions_total",
	Help: "Claim-path eligibility decisions by outcome.",
}, []string{"outcome"})

// Engine answers whether a user may claim a campaign right now and records
// successful claims against the daily counters.
type Engine struct {
	db     *gorm.DB
	node   *snowflake.Node
	clk    clock.Clock
	config *configstore.Store
	tasks  *asynq.Client

	counters   repository.Repository[DailyClaimCounter]
	activities repository.Repository[ActivityRecord]
	logs       repository.Repository[EnforcementLog]
}

type EngineParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clock.Clock
	Config *configstore.Store
	Tasks  *asynq.Client `optional:"true"`
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:         p.DB,
		node:       p.Node,
		clk:        p.Clock,
		config:     p.Config,
		tasks:      p.Tasks,
		counters:   repository.ProvideStore[DailyClaimCounter](p.DB),
		activities: repository.ProvideStore[ActivityRecord](p.DB),
		logs:       repository.ProvideStore[EnforcementLog](p.DB),
	}
}

// Check evaluates the claim-path gate inside the caller's transaction: the
// daily counter is read under FOR UPDATE so a parallel claim on the same pair
// serializes here. Order matters, the counter is checked before the cooldown
// so a user at the cap sees LIMIT_REACHED even while cooling down.
func (e *Engine) Check(ctx context.Context, tx *gorm.DB, userID, campaignID string, payout decimal.Decimal) (*Decision, error) {
	d, err := e.evaluate(ctx, tx, userID, campaignID, payout, true)
	if err != nil {
		return nil, err
	}
	decisionCounter.WithLabelValues(string(d.Outcome)).Inc()
	e.audit(userID, campaignID, d)
	return d, nil
}

// Peek evaluates the same rules read-only, without locks and without an audit
// row. The queue builder calls this per candidate, so it must stay cheap.
func (e *Engine) Peek(ctx context.Context, userID, campaignID string, payout decimal.Decimal) (*Decision, error) {
	return e.evaluate(ctx, e.db, userID, campaignID, payout, false)
}

func (e *Engine) evaluate(ctx context.Context, tx *gorm.DB, userID, campaignID string, payout decimal.Decimal, lock bool) (*Decision, error) {
	tier := TierFor(payout, e.config.ValueThresholds(ctx))
	limit := AttemptLimitFor(tier, e.config.AttemptLimits(ctx))
	now := e.clk.Now()

	q := tx.WithContext(ctx).
		Where("user_id = ? AND campaign_id = ? AND date_key = ?", userID, campaignID, e.clk.DateKey(now))
	if lock {
		q = q.Scopes(option.LockingUpdate)
	}

	var counter DailyClaimCounter
	attempts := 0
	if err := q.First(&counter).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.Internal("failed to read claim counter", errutil.WithErr(err))
		}
	} else {
		attempts = counter.Count
	}

	if attempts >= limit {
		return &Decision{
			Outcome:       OutcomeLimitReached,
			Message:       "Daily claim limit reached for this campaign. Try again tomorrow.",
			RetryAfterSec: e.clk.SecondsUntilMidnight(now),
			Tier:          tier,
			Attempts:      attempts,
		}, nil
	}

	// Cooldown applies to HIGH-value campaigns only.
	if tier == TierHigh {
		activity, err := e.activities.WithTrx(tx).FindOne(ctx, &ActivityRecord{UserID: userID, CampaignID: campaignID})
		if err != nil {
			return nil, errutil.Internal("failed to read activity record", errutil.WithErr(err))
		}
		if activity != nil {
			cooldown := e.config.Cooldown(ctx).Seconds
			elapsed := int64(now.Sub(activity.LastClaimedAt).Seconds())
			if elapsed < cooldown {
				remaining := cooldown - elapsed
				if remaining < 1 {
					remaining = 1
				}
				return &Decision{
					Outcome:       OutcomeCooldownActive,
					Message:       "This campaign is cooling down. Try again shortly.",
					RetryAfterSec: remaining,
					Tier:          tier,
					Attempts:      attempts,
				}, nil
			}
		}
	}

	return &Decision{
		Allowed:  true,
		Outcome:  OutcomeAllow,
		Tier:     tier,
		Attempts: attempts,
	}, nil
}

// RecordClaim consumes one attempt inside the caller's transaction. The
// increment is guarded at the database so the count can never pass the tier
// limit even when two transactions race past Check.
func (e *Engine) RecordClaim(ctx context.Context, tx *gorm.DB, userID, campaignID string, payout decimal.Decimal) error {
	tier := TierFor(payout, e.config.ValueThresholds(ctx))
	limit := AttemptLimitFor(tier, e.config.AttemptLimits(ctx))
	now := e.clk.Now()
	dateKey := e.clk.DateKey(now)

	res := tx.WithContext(ctx).
		Model(&DailyClaimCounter{}).
		Where("user_id = ? AND campaign_id = ? AND date_key = ? AND count < ?", userID, campaignID, dateKey, limit).
		Update("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return errutil.Internal("failed to increment claim counter", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		// Either no row exists yet for today, or the guard refused an
		// increment at the limit. The unique index disambiguates.
		counter := &DailyClaimCounter{
			ID:         e.node.Generate().String(),
			UserID:     userID,
			CampaignID: campaignID,
			DateKey:    dateKey,
			Count:      1,
		}
		if err := tx.WithContext(ctx).Create(counter).Error; err != nil {
			return errutil.TooManyRequests("daily claim limit reached for this campaign", errutil.WithErr(err))
		}
	}

	record := &ActivityRecord{
		ID:            e.node.Generate().String(),
		UserID:        userID,
		CampaignID:    campaignID,
		LastClaimedAt: now,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "campaign_id"}},
			DoUpdates: clause.Assignments(map[string]any{"last_claimed_at": now}),
		}).
		Create(record).Error; err != nil {
		return errutil.Internal("failed to update activity record", errutil.WithErr(err))
	}

	return nil
}

// audit hands the decision to the worker queue. Without a queue, or when the
// enqueue fails, the row is written directly in the background, outside the
// claim transaction so a denial's audit survives the rollback either way.
func (e *Engine) audit(userID, campaignID string, d *Decision) {
	payload := task.EnforcementAuditPayload{
		UserID:        userID,
		CampaignID:    campaignID,
		Outcome:       string(d.Outcome),
		Tier:          string(d.Tier),
		Attempts:      d.Attempts,
		RetryAfterSec: d.RetryAfterSec,
		DecidedAtUnix: e.clk.Now().Unix(),
	}

	if e.tasks != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			if _, err = e.tasks.Enqueue(asynq.NewTask(task.EnforcementAuditTask, b), asynq.Queue("low")); err == nil {
				return
			}
		}
		zap.L().Warn("failed to enqueue enforcement audit, writing directly", zap.Error(err))
	}

	go func() {
		if err := e.insertLog(context.Background(), payload); err != nil {
			zap.L().Error("failed to record enforcement audit", zap.Error(err))
		}
	}()
}

func (e *Engine) insertLog(ctx context.Context, p task.EnforcementAuditPayload) error {
	return e.logs.Create(ctx, &EnforcementLog{
		ID:            e.node.Generate().String(),
		UserID:        p.UserID,
		CampaignID:    p.CampaignID,
		Outcome:       Outcome(p.Outcome),
		Tier:          Tier(p.Tier),
		Attempts:      p.Attempts,
		RetryAfterSec: p.RetryAfterSec,
	})
}

// ListEnforcementLogs returns audit rows for a user, newest first.
func (e *Engine) ListEnforcementLogs(ctx context.Context, userID string, limit int) ([]*EnforcementLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.logs.Find(ctx, &EnforcementLog{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
		option.WithLimit(limit),
	)
}

// HandleEnforcementAudit consumes queued decisions in the audit worker.
func (e *Engine) HandleEnforcementAudit(ctx context.Context, t *asynq.Task) error {
	var payload task.EnforcementAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal enforcement audit payload: %w", err)
	}
	return e.insertLog(ctx, payload)
}
