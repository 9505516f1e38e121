// Package providers contains dependency injection providers for the groups server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/logger"
)

// ProvideConfig loads configuration from flags, the environment and an optional
// .env file.
func ProvideConfig(do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger builds the process logger from the logging section of the config.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	dev := cfg.App.Environment == "development"

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   dev,
		Environment: cfg.App.Environment,
	})
	log.Info("Boiler Groups starting",
		"env", cfg.App.Environment,
		"store_backend", cfg.Storage.Backend,
		"redis_locks", cfg.Lock.RedisURL != "",
		"search", cfg.Search.Enabled,
	)
	return log, nil
}
