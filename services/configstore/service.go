package configstore

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
)

// validatable is implemented by every typed config struct.
type validatable interface {
	Validate() error
}

type Store struct {
	db       *gorm.DB
	settings repository.Repository[Setting]
	cache    *settingCache
}

type StoreParams struct {
	fx.In

	DB    *gorm.DB
	Cfg   *config.Config
	Clock clock.Clock
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:       p.DB,
		settings: repository.ProvideStore[Setting](p.DB),
		cache:    newSettingCache(p.Cfg.ConfigStore.CacheTTL, p.Clock.Now),
	}
}

// NewStoreWithTTL builds a store with an explicit TTL and time source, used by
// tests to force staleness deterministically.
func NewStoreWithTTL(db *gorm.DB, ttl time.Duration, now func() time.Time) *Store {
	return &Store{
		db:       db,
		settings: repository.ProvideStore[Setting](db),
		cache:    newSettingCache(ttl, now),
	}
}

func (s *Store) ValueThresholds(ctx context.Context) ValueThresholds {
	return load(ctx, s, KeyValueThresholds, DefaultValueThresholds())
}

func (s *Store) AttemptLimits(ctx context.Context) AttemptLimits {
	return load(ctx, s, KeyAttemptLimits, DefaultAttemptLimits())
}

func (s *Store) Cooldown(ctx context.Context) CooldownConfig {
	return load(ctx, s, KeyCooldownSeconds, DefaultCooldownConfig())
}

func (s *Store) RotationWindows(ctx context.Context) RotationWindows {
	return load(ctx, s, KeyRotationWindows, DefaultRotationWindows())
}

func (s *Store) Scoring(ctx context.Context) ScoringConfig {
	return load(ctx, s, KeyScoringConfig, DefaultScoringConfig())
}

func (s *Store) Consolation(ctx context.Context) ConsolationConfig {
	return load(ctx, s, KeyConsolationConfig, DefaultConsolationConfig())
}

// load resolves key through the cache, falling back to def on missing rows,
// storage errors, or shape mismatches. A wrong value can only survive for the
// cache TTL; limit decisions are never blocked on the settings table.
func load[T validatable](ctx context.Context, s *Store, key string, def T) T {
	v, err := s.cache.fetch(key, func() (any, error) {
		row, err := s.settings.FindOne(ctx, &Setting{Key: key})
		if err != nil {
			return nil, err
		}
		if row == nil {
			return def, nil
		}

		parsed := def
		if err := json.Unmarshal(row.Value, &parsed); err != nil {
			zap.L().Warn("malformed setting value, using defaults",
				zap.String("key", key), zap.Error(err))
			return def, nil
		}
		if err := parsed.Validate(); err != nil {
			zap.L().Warn("invalid setting value, using defaults",
				zap.String("key", key), zap.Error(err))
			return def, nil
		}
		return parsed, nil
	})
	if err != nil {
		zap.L().Error("failed to load setting, using defaults",
			zap.String("key", key), zap.Error(err))
		return def
	}
	return v.(T)
}

// Get returns the raw stored JSON for an admin read, or the serialized
// defaults when the key has never been written.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	def, ok := defaultFor(key)
	if !ok {
		return nil, errutil.NotFound("unknown config key")
	}

	row, err := s.settings.FindOne(ctx, &Setting{Key: key})
	if err != nil {
		return nil, errutil.Internal("failed to read config", errutil.WithErr(err))
	}
	if row != nil {
		return json.RawMessage(row.Value), nil
	}

	raw, err := json.Marshal(def)
	if err != nil {
		return nil, errutil.Internal("failed to encode config", errutil.WithErr(err))
	}
	return raw, nil
}

// Set validates raw against the key's typed shape, upserts the row, and
// invalidates the cache entry.
func (s *Store) Set(ctx context.Context, key string, raw json.RawMessage) error {
	def, ok := defaultFor(key)
	if !ok {
		return errutil.NotFound("unknown config key")
	}

	if err := json.Unmarshal(raw, def); err != nil {
		return errutil.ValidationFailed("malformed config value", errutil.WithErr(err))
	}
	if err := def.Validate(); err != nil {
		return errutil.ValidationFailed(err.Error())
	}

	normalized, err := json.Marshal(def)
	if err != nil {
		return errutil.Internal("failed to encode config", errutil.WithErr(err))
	}

	err = s.db.WithContext(ctx).
		Where(&Setting{Key: key}).
		Assign(map[string]any{"value": datatypes.JSON(normalized)}).
		FirstOrCreate(&Setting{Key: key, Value: datatypes.JSON(normalized)}).Error
	if err != nil {
		return errutil.Internal("failed to store config", errutil.WithErr(err))
	}

	s.cache.invalidate(key)
	return nil
}

// Invalidate drops a cached entry so the next read refetches.
func (s *Store) Invalidate(key string) {
	s.cache.invalidate(key)
}

// defaultFor returns a pointer to the key's default struct so raw JSON can be
// unmarshaled over it in place.
func defaultFor(key string) (validatable, bool) {
	switch key {
	case KeyValueThresholds:
		d := DefaultValueThresholds()
		return &d, true
	case KeyAttemptLimits:
		d := DefaultAttemptLimits()
		return &d, true
	case KeyCooldownSeconds:
		d := DefaultCooldownConfig()
		return &d, true
	case KeyRotationWindows:
		d := DefaultRotationWindows()
		return &d, true
	case KeyScoringConfig:
		d := DefaultScoringConfig()
		return &d, true
	case KeyConsolationConfig:
		d := DefaultConsolationConfig()
		return &d, true
	default:
		return nil, false
	}
}
