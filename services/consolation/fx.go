package consolation

import "go.uber.org/fx"

var Module = fx.Module("consolation.service",
	fx.Provide(NewService),
)
