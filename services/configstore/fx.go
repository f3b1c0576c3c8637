package configstore

import "go.uber.org/fx"

var Module = fx.Module("configstore.service",
	fx.Provide(NewStore),
)
