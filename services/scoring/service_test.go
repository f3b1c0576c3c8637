package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestRanker(t *testing.T, fake *clock.Fake) *Ranker {
	t.Helper()

	db := testutil.NewTestDB(t, &configstore.Setting{}, &RotationTracking{})
	store := configstore.NewStoreWithTTL(db, time.Minute, fake.Now)

	return NewRanker(RankerParams{
		DB:     db,
		Node:   testutil.NewNode(t),
		Clock:  fake,
		Config: store,
		Jitter: ZeroJitter{},
	})
}

func TestRankDeterministicWithoutJitter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now, time.UTC)
	ranker := newTestRanker(t, fake)

	candidates := []Candidate{
		{CampaignID: "low", Payout: decimal.NewFromFloat(0.5), Total: 100, Served: 50, CreatedAt: now.Add(-48 * time.Hour)},
		{CampaignID: "high", Payout: decimal.NewFromFloat(10), Total: 100, Served: 0, CreatedAt: now.Add(-1 * time.Hour)},
		{CampaignID: "mid", Payout: decimal.NewFromFloat(2), Total: 100, Served: 90, CreatedAt: now.Add(-24 * time.Hour)},
	}

	first, err := ranker.Rank(context.Background(), "user-1", candidates)
	require.NoError(t, err)
	second, err := ranker.Rank(context.Background(), "user-1", candidates)
	require.NoError(t, err)

	require.Len(t, first, 3)
	for i := range first {
		require.Equal(t, first[i].CampaignID, second[i].CampaignID)
		require.Equal(t, first[i].Score, second[i].Score)
	}
	require.Equal(t, "high", first[0].CampaignID)
}

func TestRecentlyServedScoresStrictlyLower(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now, time.UTC)
	ranker := newTestRanker(t, fake)
	ctx := context.Background()

	created := now.Add(-2 * time.Hour)
	candidates := []Candidate{
		{CampaignID: "served", Payout: decimal.NewFromFloat(0.5), Total: 10, Served: 0, CreatedAt: created},
		{CampaignID: "fresh", Payout: decimal.NewFromFloat(0.5), Total: 10, Served: 0, CreatedAt: created},
	}

	require.NoError(t, ranker.MarkServed(ctx, "user-1", []string{"served"}))

	ranked, err := ranker.Rank(ctx, "user-1", candidates)
	require.NoError(t, err)
	require.Equal(t, "fresh", ranked[0].CampaignID)
	require.Greater(t, ranked[0].Score, ranked[1].Score)

	// Outside the LOW rotation window (3600s) the penalty disappears and the
	// otherwise-identical pair scores evenly again.
	fake.Advance(2 * time.Hour)
	ranked, err = ranker.Rank(ctx, "user-1", candidates)
	require.NoError(t, err)
	require.InDelta(t, ranked[0].Score, ranked[1].Score, 1e-9)
}

func TestRankTieBreaksByPayoutThenCreation(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now, time.UTC)
	ranker := newTestRanker(t, fake)

	created := now.Add(-time.Hour)
	// Same payout normalizes to 1 for both, same progress and freshness; the
	// newer campaign must come first.
	candidates := []Candidate{
		{CampaignID: "older", Payout: decimal.NewFromFloat(1), Total: 10, Served: 0, CreatedAt: created.Add(-time.Hour)},
		{CampaignID: "newer", Payout: decimal.NewFromFloat(1), Total: 10, Served: 0, CreatedAt: created},
	}

	ranked, err := ranker.Rank(context.Background(), "user-1", candidates)
	require.NoError(t, err)
	require.Equal(t, "newer", ranked[0].CampaignID)
}

func TestMarkServedIncrementsServeCount(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now, time.UTC)
	ranker := newTestRanker(t, fake)
	ctx := context.Background()

	require.NoError(t, ranker.MarkServed(ctx, "user-1", []string{"camp-1"}))
	fake.Advance(time.Minute)
	require.NoError(t, ranker.MarkServed(ctx, "user-1", []string{"camp-1"}))

	var row RotationTracking
	require.NoError(t, ranker.db.Where("user_id = ? AND campaign_id = ?", "user-1", "camp-1").First(&row).Error)
	require.Equal(t, int64(2), row.ServeCount)
	require.WithinDuration(t, fake.Now(), row.LastServedAt, time.Second)
}

func TestEmptyCandidateSet(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)
	ranker := newTestRanker(t, fake)

	ranked, err := ranker.Rank(context.Background(), "user-1", nil)
	require.NoError(t, err)
	require.Empty(t, ranked)
}
