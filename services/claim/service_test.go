package claim

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/services/campaign"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/consolation"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/scoring"
	"github.com/abujawed11/engage-swap-sub000/services/testutil"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type env struct {
	db        *gorm.DB
	fake      *clock.Fake
	wallet    *wallet.Service
	campaigns *campaign.Service
	claims    *Service
}

func newTestEnv(t *testing.T) *env {
	t.Helper()

	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)
	db := testutil.NewTestDB(t,
		&configstore.Setting{},
		&wallet.Transaction{},
		&wallet.Balance{},
		&wallet.AuditLog{},
		&eligibility.DailyClaimCounter{},
		&eligibility.ActivityRecord{},
		&eligibility.EnforcementLog{},
		&scoring.RotationTracking{},
		&quiz.Question{},
		&quiz.Attempt{},
		&Session{},
		&consolation.Reward{},
		&campaign.Campaign{},
	)
	node := testutil.NewNode(t)

	store := configstore.NewStoreWithTTL(db, time.Minute, fake.Now)
	w := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})
	q := quiz.NewService(quiz.ServiceParams{DB: db, Node: node})
	engine := eligibility.NewEngine(eligibility.EngineParams{DB: db, Node: node, Clock: fake, Config: store})
	ranker := scoring.NewRanker(scoring.RankerParams{DB: db, Node: node, Clock: fake, Config: store, Jitter: scoring.ZeroJitter{}})
	camps := campaign.NewService(campaign.ServiceParams{DB: db, Node: node, Cfg: &config.Config{}, Wallet: w, Quiz: q})
	cons := consolation.NewService(consolation.ServiceParams{DB: db, Node: node, Clock: fake, Config: store, Wallet: w})

	claims := NewService(ServiceParams{
		DB:          db,
		Node:        node,
		Campaigns:   camps,
		Eligibility: engine,
		Quiz:        q,
		Wallet:      w,
		Consolation: cons,
		Ranker:      ranker,
	})

	return &env{db: db, fake: fake, wallet: w, campaigns: camps, claims: claims}
}

func (e *env) seed(t *testing.T, userID string, amount float64) {
	t.Helper()
	_, err := e.wallet.AdminAdjust(context.Background(), userID, decimal.NewFromFloat(amount), true, "seed", "seed-"+userID)
	require.NoError(t, err)
}

func (e *env) createCampaign(t *testing.T, owner string, payout float64, total int64) *campaign.Campaign {
	t.Helper()
	c, err := e.campaigns.Create(context.Background(), campaign.CreateCampaignRequest{
		OwnerID:       owner,
		Title:         "Visit us",
		URL:           "https://example.com/landing",
		Payout:        decimal.NewFromFloat(payout),
		WatchDuration: 30,
		Total:         total,
		Questions: []quiz.QuestionInput{
			{Prompt: "p1", Answer: "a1"},
			{Prompt: "p2", Answer: "a2"},
			{Prompt: "p3", Answer: "a3"},
			{Prompt: "p4", Answer: "a4"},
			{Prompt: "p5", Answer: "a5"},
		},
	})
	require.NoError(t, err)
	return c
}

var (
	allCorrect = []string{"a1", "a2", "a3", "a4", "a5"}
	twoCorrect = []string{"a1", "a2", "x", "x", "x"}
	threeRight = []string{"a1", "a2", "a3", "x", "x"}
)

func TestSubmitPassCreditsExactlyOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 100)
	c := e.createCampaign(t, "owner-1", 1, 10)

	start, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)
	require.Len(t, start.Prompts, quiz.QuestionCount)

	result, err := e.claims.Submit(ctx, start.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeCredited, result.Outcome)
	require.True(t, result.Passed)
	require.Equal(t, 5, result.CorrectCount)
	require.Equal(t, "1.000", result.RewardAmount.StringFixed(3))

	balance, err := e.wallet.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(1)))

	got, err := e.campaigns.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Served)

	// Replaying the submit returns the stored result and credits nothing.
	replay, err := e.claims.Submit(ctx, start.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyCredited, replay.Outcome)
	require.Equal(t, result.CorrectCount, replay.CorrectCount)
	require.True(t, result.RewardAmount.Equal(replay.RewardAmount))

	balance, err = e.wallet.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(1)))

	got, err = e.campaigns.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Served)
}

func TestSubmitFailedQuizPaysNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 100)
	c := e.createCampaign(t, "owner-1", 1, 10)

	start, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)

	result, err := e.claims.Submit(ctx, start.SessionToken, twoCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.False(t, result.Passed)
	require.Equal(t, 2, result.CorrectCount)
	require.True(t, result.RewardAmount.IsZero())

	balance, err := e.wallet.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, balance.Available.IsZero())

	got, err := e.campaigns.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, got.Served)

	// A failed grade is just as write-once as a pass.
	replay, err := e.claims.Submit(ctx, start.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, replay.Outcome)
	require.Equal(t, 2, replay.CorrectCount)
}

func TestSubmitPartialPassAppliesCurve(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 100)
	c := e.createCampaign(t, "owner-1", 1, 10)

	start, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)

	result, err := e.claims.Submit(ctx, start.SessionToken, threeRight)
	require.NoError(t, err)
	require.Equal(t, OutcomeCredited, result.Outcome)
	require.Equal(t, "0.600", result.RewardAmount.StringFixed(3))
}

func TestPausedCampaignDivertsToConsolation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 100)
	c := e.createCampaign(t, "owner-1", 1, 10)

	start, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)

	_, err = e.campaigns.Pause(ctx, "owner-1", c.ID)
	require.NoError(t, err)

	result, err := e.claims.Submit(ctx, start.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeConsolationInterrupted, result.Outcome)
	require.Equal(t, "0.050", result.RewardAmount.StringFixed(3))

	balance, err := e.wallet.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(0.05)))

	got, err := e.campaigns.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, got.Served)
}

func TestDeletedCampaignDivertsToConsolation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 100)
	c := e.createCampaign(t, "owner-1", 1, 10)

	start, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)

	require.NoError(t, e.campaigns.Delete(ctx, "owner-1", c.ID))

	result, err := e.claims.Submit(ctx, start.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeConsolationInterrupted, result.Outcome)
	require.Equal(t, "0.050", result.RewardAmount.StringFixed(3))

	// The reward row survives without a campaign link.
	var reward consolation.Reward
	require.NoError(t, e.db.Where("session_token = ?", start.SessionToken).First(&reward).Error)
	require.Nil(t, reward.CampaignID)
}

func TestDeniedClaimRollsBackEverything(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 200)
	c := e.createCampaign(t, "owner-1", 10, 10) // HIGH tier: limit 2, cooldown 3600s

	start1, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)
	result, err := e.claims.Submit(ctx, start1.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeCredited, result.Outcome)

	// Second session inside the cooldown: quiz passes but eligibility denies,
	// and the denial rolls the whole transaction back.
	start2, err := e.claims.Start(ctx, "user-1", c.ID)
	require.NoError(t, err)
	result, err = e.claims.Submit(ctx, start2.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, string(eligibility.OutcomeCooldownActive), result.Outcome)
	require.Equal(t, int64(3600), result.RetryAfterSec)
	require.True(t, result.RewardAmount.IsZero())

	balance, err := e.wallet.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(10)))

	got, err := e.campaigns.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Served)

	var attempts int64
	require.NoError(t, e.db.Model(&quiz.Attempt{}).Count(&attempts).Error)
	require.Equal(t, int64(1), attempts)

	// After the cooldown the same session token can complete.
	e.fake.Advance(3601 * time.Second)
	result, err = e.claims.Submit(ctx, start2.SessionToken, allCorrect)
	require.NoError(t, err)
	require.Equal(t, OutcomeCredited, result.Outcome)

	balance, err = e.wallet.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(20)))
}

func TestQueueExcludesOwnAndIneligibleCampaigns(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, "owner-1", 100)
	e.seed(t, "owner-2", 100)

	e.seed(t, "user-1", 100)

	mine := e.createCampaign(t, "user-1", 1, 10) // user-1 owns this one
	other := e.createCampaign(t, "owner-1", 1, 10)
	limited := e.createCampaign(t, "owner-2", 1, 10)

	// Exhaust the MEDIUM-tier daily limit (3) on one campaign.
	for i := 0; i < 3; i++ {
		start, err := e.claims.Start(ctx, "user-1", limited.ID)
		require.NoError(t, err)
		result, err := e.claims.Submit(ctx, start.SessionToken, allCorrect)
		require.NoError(t, err)
		require.Equal(t, OutcomeCredited, result.Outcome, "claim %d", i+1)
	}

	entries, err := e.claims.Queue(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, other.ID, entries[0].CampaignID)

	for _, entry := range entries {
		require.NotEqual(t, mine.ID, entry.CampaignID)
	}
}
