package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/api"
	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/logger"
	"github.com/boilergroups/groups-server/internal/metrics"
	"github.com/boilergroups/groups-server/internal/ratelimit"
	"github.com/boilergroups/groups-server/internal/service"
)

// HTTPServerHandle owns the listener and the per-IP auth limiter.
type HTTPServerHandle struct {
	*http.Server
	authLimiter *ratelimit.KeyedRateLimiter
	drain       time.Duration
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (h *HTTPServerHandle) Shutdown() error {
	defer h.authLimiter.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), h.drain)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Auth:          do.MustInvoke[*service.AuthService](i),
		Groups:        do.MustInvoke[*service.GroupService](i),
		Messages:      do.MustInvoke[*service.MessageService](i),
		Notifications: do.MustInvoke[*service.NotificationService](i),
	}

	authLimiter := ratelimit.PerMinute(cfg.RateLimit.AuthPerMinute)

	opts := api.Options{
		Store:           storeHandle.Store,
		Services:        services,
		SSEManager:      sseHandle.Manager,
		Metrics:         m.Handler(),
		AuthRateLimiter: authLimiter,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Logger:          log.Logger,
	}
	if indexHandle.Index != nil {
		opts.Search = indexHandle.Index
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr, "search", indexHandle.Index != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, authLimiter: authLimiter, drain: cfg.Server.ShutdownTimeout}, nil
}
