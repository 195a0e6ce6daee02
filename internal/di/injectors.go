//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"feedmirror/internal"
	"feedmirror/internal/controllers"
	"feedmirror/internal/providers"
	"feedmirror/internal/services"
	"feedmirror/internal/syncer"
	"feedmirror/internal/upstream"
	"feedmirror/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,
		providers.NewNotifierProvider,

		upstream.NewClient,
		services.NewUpdateBus,
		services.NewLoadingService,
		services.NewRefreshService,
		services.NewDataService,
		services.NewMutateService,
		services.NewUnreadService,
		services.NewItemListRegistry,
		syncer.NewScheduler,
		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}
