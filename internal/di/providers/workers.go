package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/logger"
	"github.com/boilergroups/groups-server/internal/service"
)

// migrationTimeout bounds the startup reaction tag rewrite.
const migrationTimeout = 5 * time.Minute

// RunStartupMigrations rewrites legacy reaction tags before the server takes
// traffic. A failure is logged and the server keeps starting.
func RunStartupMigrations(i do.Injector) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Migration.LegacyReactions {
		return
	}

	messages := do.MustInvoke[*service.MessageService](i)

	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	// The service logs the successful outcome.
	if n, err := messages.MigrateLegacyReactions(ctx); err != nil {
		log.Error("Legacy reaction migration failed", "error", err, "tags_rewritten", n)
	}
}
