package claim

import "go.uber.org/fx"

var Module = fx.Module("claim.service",
	fx.Provide(NewService),
)
