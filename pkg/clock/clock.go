package clock

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abujawed11/engage-swap-sub000/pkg/config"
)

var Module = fx.Module("clock",
	fx.Provide(New),
)

// Clock supplies the current time and the civil calendar derived from the
// platform timezone. Daily limits reset at civil midnight in that zone,
// regardless of the server's own locale.
type Clock interface {
	Now() time.Time
	Location() *time.Location
	// DateKey returns the civil date of t, formatted YYYY-MM-DD.
	DateKey(t time.Time) string
	// SecondsUntilMidnight returns the wall seconds from t to the next civil
	// midnight. Always at least 1 so callers can hand it out as retry-after.
	SecondsUntilMidnight(t time.Time) int64
}

type civilClock struct {
	loc *time.Location
}

func New(cfg *config.Config) (Clock, error) {
	loc, err := time.LoadLocation(cfg.Platform.Timezone)
	if err != nil {
		return nil, err
	}
	zap.L().Info("[Clock] civil timezone configured", zap.String("timezone", cfg.Platform.Timezone))
	return &civilClock{loc: loc}, nil
}

func NewFixed(loc *time.Location) Clock {
	return &civilClock{loc: loc}
}

func (c *civilClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *civilClock) Location() *time.Location {
	return c.loc
}

func (c *civilClock) DateKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

func (c *civilClock) SecondsUntilMidnight(t time.Time) int64 {
	local := t.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	secs := int64(midnight.Sub(local).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Fake is a Clock with a settable current time, for tests.
type Fake struct {
	Current time.Time
	Loc     *time.Location
}

func NewFake(now time.Time, loc *time.Location) *Fake {
	return &Fake{Current: now.In(loc), Loc: loc}
}

func (f *Fake) Now() time.Time { return f.Current }

func (f *Fake) Location() *time.Location { return f.Loc }

func (f *Fake) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

func (f *Fake) Set(t time.Time) { f.Current = t.In(f.Loc) }

func (f *Fake) DateKey(t time.Time) string { return t.In(f.Loc).Format("2006-01-02") }

func (f *Fake) SecondsUntilMidnight(t time.Time) int64 {
	local := t.In(f.Loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, f.Loc).AddDate(0, 0, 1)
	secs := int64(midnight.Sub(local).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
