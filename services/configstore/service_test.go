package configstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/abujawed11/engage-swap-sub000/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T, ttl time.Duration, now func() time.Time) *Store {
	t.Helper()
	db := testutil.NewTestDB(t, &Setting{})
	return NewStoreWithTTL(db, ttl, now)
}

func TestTypedGettersFallBackToDefaults(t *testing.T) {
	store := newTestStore(t, time.Minute, time.Now)
	ctx := context.Background()

	require.Equal(t, DefaultAttemptLimits(), store.AttemptLimits(ctx))
	require.Equal(t, DefaultRotationWindows(), store.RotationWindows(ctx))
	require.True(t, store.ValueThresholds(ctx).High.Equal(DefaultValueThresholds().High))
}

func TestSetAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t, time.Minute, time.Now)
	ctx := context.Background()

	raw := json.RawMessage(`{"high":4,"medium":6,"low":9}`)
	require.NoError(t, store.Set(ctx, KeyAttemptLimits, raw))

	limits := store.AttemptLimits(ctx)
	require.Equal(t, AttemptLimits{High: 4, Medium: 6, Low: 9}, limits)

	stored, err := store.Get(ctx, KeyAttemptLimits)
	require.NoError(t, err)

	var parsed AttemptLimits
	require.NoError(t, json.Unmarshal(stored, &parsed))
	require.Equal(t, limits, parsed)
}

func TestSetRejectsInvalidShape(t *testing.T) {
	store := newTestStore(t, time.Minute, time.Now)
	ctx := context.Background()

	require.Error(t, store.Set(ctx, KeyAttemptLimits, json.RawMessage(`{"high":0,"medium":3,"low":5}`)))
	require.Error(t, store.Set(ctx, KeyAttemptLimits, json.RawMessage(`not json`)))
	require.Error(t, store.Set(ctx, "no_such_key", json.RawMessage(`{}`)))
}

func TestMalformedStoredValueFallsBackToDefaults(t *testing.T) {
	store := newTestStore(t, time.Minute, time.Now)
	ctx := context.Background()

	require.NoError(t, store.db.Create(&Setting{
		Key:   KeyCooldownSeconds,
		Value: datatypes.JSON([]byte(`{"value":-5}`)),
	}).Error)

	require.Equal(t, DefaultCooldownConfig(), store.Cooldown(ctx))
}

func TestCacheServesStaleValueUntilTTL(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	store := newTestStore(t, 2*time.Minute, now)
	ctx := context.Background()

	require.Equal(t, DefaultAttemptLimits(), store.AttemptLimits(ctx))

	// Write behind the cache's back; the cached value survives until the TTL.
	require.NoError(t, store.db.Create(&Setting{
		Key:   KeyAttemptLimits,
		Value: datatypes.JSON([]byte(`{"high":9,"medium":9,"low":9}`)),
	}).Error)

	require.Equal(t, DefaultAttemptLimits(), store.AttemptLimits(ctx))

	current = current.Add(3 * time.Minute)
	require.Equal(t, AttemptLimits{High: 9, Medium: 9, Low: 9}, store.AttemptLimits(ctx))
}

func TestInvalidateForcesRefetch(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Now)
	ctx := context.Background()

	require.Equal(t, DefaultAttemptLimits(), store.AttemptLimits(ctx))

	require.NoError(t, store.db.Create(&Setting{
		Key:   KeyAttemptLimits,
		Value: datatypes.JSON([]byte(`{"high":7,"medium":7,"low":7}`)),
	}).Error)
	store.Invalidate(KeyAttemptLimits)

	require.Equal(t, AttemptLimits{High: 7, Medium: 7, Low: 7}, store.AttemptLimits(ctx))
}
