package main

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/clock"
	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/pkg/db"
	"github.com/abujawed11/engage-swap-sub000/pkg/logger"
	"github.com/abujawed11/engage-swap-sub000/pkg/snowflakeid"
	"github.com/abujawed11/engage-swap-sub000/pkg/task"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
)

// The audit worker drains the enforcement decision queue into the audit
// table, keeping the claim path's response latency free of that write.
func main() {
	fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		snowflakeid.Module,

		db.Module,
		task.Server,

		configstore.Module,
		eligibility.Module,

		fxLogger,
		fx.Invoke(migrate),
		fx.Invoke(registerHandlers),
	).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&eligibility.EnforcementLog{})
}

func registerHandlers(mux *asynq.ServeMux, engine *eligibility.Engine) {
	mux.HandleFunc(task.EnforcementAuditTask, engine.HandleEnforcementAudit)
}
