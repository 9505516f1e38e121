// Package di wires the groups server together with samber/do.
package di

import (
	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/auth"
	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/di/providers"
	"github.com/boilergroups/groups-server/internal/logger"
	"github.com/boilergroups/groups-server/internal/metrics"
	"github.com/boilergroups/groups-server/internal/service"
	"github.com/boilergroups/groups-server/internal/validation"
)

// NewContainer registers every provider. Nothing is built until Bootstrap.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Process
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideMetrics)

	// Persistence and coordination
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideLocker)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Identity
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvidePasswordHasher)

	// Domain services
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideGroupService)
	do.Provide(injector, providers.ProvideMessageLimiter)
	do.Provide(injector, providers.ProvideMessageService)
	do.Provide(injector, providers.ProvideNotificationService)

	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// warm builds T so that a failing provider aborts startup instead of the first
// request that needs it.
func warm[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}

// Bootstrap builds the graph in dependency order, migrates stored reactions,
// starts listening and schedules a search rebuild when the index is empty.
func Bootstrap(injector *do.RootScope) error {
	steps := []func(do.Injector) error{
		warm[*config.Config],
		warm[*logger.Logger],
		warm[*validation.Validator],
		warm[*providers.SSEManagerHandle],
		warm[*metrics.Metrics],
		warm[*providers.StoreHandle],
		warm[*providers.LockerHandle],
		warm[*providers.SearchIndexHandle],
		warm[*auth.TokenService],
		warm[*service.AuthService],
		warm[*service.GroupService],
		warm[*service.MessageService],
		warm[*service.NotificationService],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}

	providers.RunStartupMigrations(injector)

	if err := warm[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	providers.TriggerSearchReindexIfNeeded(injector)
	return nil
}
