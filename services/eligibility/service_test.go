package eligibility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestEngine(t *testing.T, fake *clock.Fake) (*Engine, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&configstore.Setting{},
		&DailyClaimCounter{},
		&ActivityRecord{},
		&EnforcementLog{},
	)
	store := configstore.NewStoreWithTTL(db, time.Minute, fake.Now)

	engine := NewEngine(EngineParams{
		DB:     db,
		Node:   testutil.NewNode(t),
		Clock:  fake,
		Config: store,
	})
	return engine, db
}

// claimOnce runs the claim-path gate the way the submit transaction does:
// check, and on ALLOW consume an attempt in the same transaction.
func claimOnce(t *testing.T, db *gorm.DB, engine *Engine, userID, campaignID string, payout decimal.Decimal) *Decision {
	t.Helper()

	var decision *Decision
	err := db.Transaction(func(tx *gorm.DB) error {
		d, err := engine.Check(context.Background(), tx, userID, campaignID, payout)
		if err != nil {
			return err
		}
		decision = d
		if d.Allowed {
			return engine.RecordClaim(context.Background(), tx, userID, campaignID, payout)
		}
		return nil
	})
	require.NoError(t, err)
	return decision
}

func TestTierBoundary(t *testing.T) {
	thresholds := configstore.DefaultValueThresholds()

	require.Equal(t, TierHigh, TierFor(decimal.NewFromFloat(5.000), thresholds))
	require.Equal(t, TierMedium, TierFor(decimal.NewFromFloat(4.999), thresholds))
	require.Equal(t, TierMedium, TierFor(decimal.NewFromFloat(1.000), thresholds))
	require.Equal(t, TierLow, TierFor(decimal.NewFromFloat(0.999), thresholds))
}

func TestHighTierClaimScenario(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)
	engine, db := newTestEngine(t, fake)
	payout := decimal.NewFromFloat(10)

	// First claim of the day passes.
	d := claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)
	require.Equal(t, OutcomeAllow, d.Outcome)

	// An immediate retry hits the high-tier cooldown with the full wait.
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.False(t, d.Allowed)
	require.Equal(t, OutcomeCooldownActive, d.Outcome)
	require.Equal(t, int64(3600), d.RetryAfterSec)

	// Once the cooldown lapses the second attempt passes.
	fake.Advance(3601 * time.Second)
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)

	// The high-tier daily cap is 2; the third attempt is limited until the
	// civil day rolls over.
	fake.Advance(3601 * time.Second)
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.False(t, d.Allowed)
	require.Equal(t, OutcomeLimitReached, d.Outcome)
	require.Equal(t, fake.SecondsUntilMidnight(fake.Now()), d.RetryAfterSec)

	// Next civil day, fresh counter.
	fake.Set(time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC))
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)
}

func TestCalendarRolloverBeatsWallClock(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), time.UTC)
	engine, db := newTestEngine(t, fake)
	payout := decimal.NewFromFloat(0.5) // LOW tier, limit 5, no cooldown

	for i := 0; i < 5; i++ {
		d := claimOnce(t, db, engine, "user-1", "camp-1", payout)
		require.True(t, d.Allowed, "claim %d", i+1)
	}

	d := claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.Equal(t, OutcomeLimitReached, d.Outcome)
	require.LessOrEqual(t, d.RetryAfterSec, int64(60))

	// Two wall-clock minutes later, but a new civil day.
	fake.Set(time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC))
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)
}

func TestCooldownOnlyAppliesToHighTier(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)
	engine, db := newTestEngine(t, fake)
	payout := decimal.NewFromFloat(1) // MEDIUM tier, limit 3

	d := claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)

	// Back to back with no cooldown in between.
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)
	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.True(t, d.Allowed)

	d = claimOnce(t, db, engine, "user-1", "camp-1", payout)
	require.Equal(t, OutcomeLimitReached, d.Outcome)
}

func TestConcurrentClaimsNeverExceedLimit(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)
	engine, db := newTestEngine(t, fake)
	payout := decimal.NewFromFloat(0.5) // LOW tier, limit 5

	const attempts = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				d, err := engine.Check(context.Background(), tx, "user-1", "camp-1", payout)
				if err != nil {
					return err
				}
				if !d.Allowed {
					return nil
				}
				if err := engine.RecordClaim(context.Background(), tx, "user-1", "camp-1", payout); err != nil {
					return err
				}
				mu.Lock()
				allowed++
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 5, allowed)

	var counter DailyClaimCounter
	require.NoError(t, db.Where("user_id = ? AND campaign_id = ?", "user-1", "camp-1").First(&counter).Error)
	require.Equal(t, 5, counter.Count)
}

func TestDecisionAuditFallsBackToDirectWrite(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)
	engine, db := newTestEngine(t, fake)

	_, err := engine.Check(context.Background(), db, "user-1", "camp-1", decimal.NewFromFloat(10))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var n int64
		if err := db.Model(&EnforcementLog{}).Count(&n).Error; err != nil {
			return false
		}
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	logs, err := engine.ListEnforcementLogs(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, OutcomeAllow, logs[0].Outcome)
	require.Equal(t, TierHigh, logs[0].Tier)
}
