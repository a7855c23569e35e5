package stripesync

import (
	"github.com/metricdock/metricdock/internal/stripesync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("stripesync.service",
	fx.Provide(service.New),
)
