package connection

import (
	"github.com/metricdock/metricdock/internal/connection/repository"
	"github.com/metricdock/metricdock/internal/connection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("connection.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
