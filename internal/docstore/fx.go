package docstore

import (
	"github.com/metricdock/metricdock/internal/docstore/repository"
	"github.com/metricdock/metricdock/internal/docstore/service"
	"go.uber.org/fx"
)

var Module = fx.Module("docstore.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
