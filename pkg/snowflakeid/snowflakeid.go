package snowflakeid

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/abujawed11/engage-swap-sub000/pkg/config"
)

var Module = fx.Module("snowflake",
	fx.Provide(New),
)

// New builds the process-wide id node. Node ids must be distinct per instance
// when horizontally scaled.
func New(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Platform.NodeID)
}
