package scoring

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
)

// JitterSource yields values in [-1, 1] that are scaled by the configured
// jitter band and added to each score. Tests inject a zero source to make
// ranking deterministic.
type JitterSource interface {
	Jitter() float64
}

type randJitter struct{ rng *rand.Rand }

func newRandJitter() JitterSource {
	var seed int64
	var b [8]byte
	if _, err := crand.Read(b[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(b[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return &randJitter{rng: rand.New(rand.NewSource(seed))}
}

func (r *randJitter) Jitter() float64 { return r.rng.Float64()*2 - 1 }

// ZeroJitter disables jitter entirely.
type ZeroJitter struct{}

func (ZeroJitter) Jitter() float64 { return 0 }

// Ranker orders queue candidates by weighted score and tracks which
// campaigns each user has recently been shown.
type Ranker struct {
	db     *gorm.DB
	node   *snowflake.Node
	clk    clock.Clock
	config *configstore.Store
	jitter JitterSource
}

type RankerParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clock.Clock
	Config *configstore.Store
	Jitter JitterSource `optional:"true"`
}

func NewRanker(p RankerParams) *Ranker {
	j := p.Jitter
	if j == nil {
		j = newRandJitter()
	}
	return &Ranker{
		db:     p.DB,
		node:   p.Node,
		clk:    p.Clock,
		config: p.Config,
		jitter: j,
	}
}

// Rank scores the candidate set for a user and returns it best first. Ties
// break by payout, then by recency of creation.
func (r *Ranker) Rank(ctx context.Context, userID string, candidates []Candidate) ([]RankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	cfg := r.config.Scoring(ctx)
	thresholds := r.config.ValueThresholds(ctx)
	windows := r.config.RotationWindows(ctx)
	now := r.clk.Now()

	recent, err := r.recentlyServed(ctx, userID)
	if err != nil {
		return nil, err
	}

	minPayout, maxPayout := payoutRange(candidates)

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		score := cfg.Weights.Payout*normalizePayout(c.Payout, minPayout, maxPayout) +
			cfg.Weights.Progress*progress(c) +
			cfg.Weights.Freshness*freshness(now, c.CreatedAt, cfg.FreshnessCapSec)

		// The recent penalty is binary: a campaign shown to this user within
		// its tier's rotation window loses the full penalty weight.
		if servedAt, ok := recent[c.CampaignID]; ok {
			window := rotationWindowFor(eligibility.TierFor(c.Payout, thresholds), windows)
			if now.Sub(servedAt) < time.Duration(window)*time.Second {
				score -= cfg.Weights.Recent
			}
		}

		score += r.jitter.Jitter() * cfg.JitterBand

		ranked = append(ranked, RankedCandidate{Candidate: c, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Payout.Equal(ranked[j].Payout) {
			return ranked[i].Payout.GreaterThan(ranked[j].Payout)
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})

	return ranked, nil
}

// MarkServed stamps the rotation tracker for every campaign handed to the
// user, so the next ranking pass can apply the recent penalty.
func (r *Ranker) MarkServed(ctx context.Context, userID string, campaignIDs []string) error {
	if len(campaignIDs) == 0 {
		return nil
	}

	now := r.clk.Now()
	rows := make([]*RotationTracking, 0, len(campaignIDs))
	for _, id := range campaignIDs {
		rows = append(rows, &RotationTracking{
			ID:           r.node.Generate().String(),
			UserID:       userID,
			CampaignID:   id,
			LastServedAt: now,
			ServeCount:   1,
		})
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "campaign_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_served_at": now,
				"serve_count":    gorm.Expr("serve_count + 1"),
			}),
		}).
		Create(&rows).Error; err != nil {
		return errutil.Internal("failed to record rotation tracking", errutil.WithErr(err))
	}
	return nil
}

func (r *Ranker) recentlyServed(ctx context.Context, userID string) (map[string]time.Time, error) {
	var rows []*RotationTracking
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, errutil.Internal("failed to read rotation tracking", errutil.WithErr(err))
	}

	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.CampaignID] = row.LastServedAt
	}
	return out, nil
}

func payoutRange(candidates []Candidate) (decimal.Decimal, decimal.Decimal) {
	min, max := candidates[0].Payout, candidates[0].Payout
	for _, c := range candidates[1:] {
		if c.Payout.LessThan(min) {
			min = c.Payout
		}
		if c.Payout.GreaterThan(max) {
			max = c.Payout
		}
	}
	return min, max
}

// normalizePayout min-max scales payout into [0, 1]. When all candidates pay
// the same, everyone gets the full component instead of a divide by zero.
func normalizePayout(payout, min, max decimal.Decimal) float64 {
	spread := max.Sub(min)
	if spread.IsZero() {
		return 1
	}
	f, _ := payout.Sub(min).Div(spread).Float64()
	return f
}

// progress favors campaigns with stock left: 1 when untouched, approaching 0
// as served catches up to total.
func progress(c Candidate) float64 {
	if c.Total <= 0 {
		return 0
	}
	remaining := float64(c.Total-c.Served) / float64(c.Total)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// freshness decays linearly with campaign age and bottoms out at zero once
// the age reaches the configured cap.
func freshness(now, createdAt time.Time, capSec int64) float64 {
	if capSec <= 0 {
		return 0
	}
	age := now.Sub(createdAt).Seconds()
	if age <= 0 {
		return 1
	}
	if age >= float64(capSec) {
		return 0
	}
	return 1 - age/float64(capSec)
}

func rotationWindowFor(tier eligibility.Tier, w configstore.RotationWindows) int64 {
	switch tier {
	case eligibility.TierHigh:
		return w.High
	case eligibility.TierMedium:
		return w.Medium
	default:
		return w.Low
	}
}
