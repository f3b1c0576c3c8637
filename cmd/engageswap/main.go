package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/internal/httpapi"
	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/pkg/db"
	"github.com/abujawed11/engage-swap-sub000/pkg/logger"
	"github.com/abujawed11/engage-swap-sub000/pkg/ratelimit"
	"github.com/abujawed11/engage-swap-sub000/pkg/redis"
	"github.com/abujawed11/engage-swap-sub000/pkg/sequence"
	"github.com/abujawed11/engage-swap-sub000/pkg/server"
	"github.com/abujawed11/engage-swap-sub000/pkg/snowflakeid"
	"github.com/abujawed11/engage-swap-sub000/pkg/task"
	"github.com/abujawed11/engage-swap-sub000/services/campaign"
	"github.com/abujawed11/engage-swap-sub000/services/claim"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/consolation"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/scoring"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

func main() {
	fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		snowflakeid.Module,

		db.Module,
		redis.Module,
		ratelimit.Module,
		sequence.Module,
		task.Client,

		configstore.Module,
		wallet.Module,
		eligibility.Module,
		scoring.Module,
		quiz.Module,
		campaign.Module,
		consolation.Module,
		claim.Module,

		httpapi.Module,
		server.ProvideHTTPServer,

		fxLogger,
		fx.Invoke(db.Otel),
		fx.Invoke(db.Metric),
		fx.Invoke(migrate),
	).Run()
}

// fxLogger pulls the zap logger into the graph so it is built before anything
// logs, while keeping fx's own event chatter out of the output.
var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
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
		&claim.Session{},
		&consolation.Reward{},
		&campaign.Campaign{},
	)
}
