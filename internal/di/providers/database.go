package providers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/lock"
	"github.com/boilergroups/groups-server/internal/logger"
	"github.com/boilergroups/groups-server/internal/metrics"
	"github.com/boilergroups/groups-server/internal/sse"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/store/badgerdb"
	"github.com/boilergroups/groups-server/internal/store/mongodb"
	"github.com/boilergroups/groups-server/internal/store/sqlite"
)

// SSEManagerHandle owns the delivery loop of the event manager.
type SSEManagerHandle struct {
	*sse.Manager
	stop    context.CancelFunc
	timeout time.Duration
}

// Shutdown drains queued events to open streams, then stops the loop.
func (h *SSEManagerHandle) Shutdown() error {
	defer h.stop()
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)
	ctx, stop := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{Manager: manager, stop: stop, timeout: cfg.Server.ShutdownTimeout}, nil
}

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	return metrics.New(sseHandle.ClientCount), nil
}

// StoreHandle wraps the group store with shutdown capability. Store is the
// instrumented view; raw is closed on shutdown.
type StoreHandle struct {
	store.Store
	raw store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.raw.Close()
}

// ProvideStore opens the configured store backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	raw, err := openStore(cfg.Storage, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "backend", cfg.Storage.Backend)

	return &StoreHandle{Store: metrics.InstrumentStore(raw, m), raw: raw}, nil
}

func openStore(cfg config.StorageConfig, log *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		return badgerdb.Open(filepath.Join(cfg.DataPath, "db"), log)
	case config.BackendSQLite:
		return sqlite.Open(filepath.Join(cfg.DataPath, "groups.db"), log)
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// LockerHandle wraps the per-group locker. Redis lockers are closed on shutdown.
type LockerHandle struct {
	lock.Locker
	redis *lock.RedisLocker
}

// Shutdown implements do.Shutdownable.
func (h *LockerHandle) Shutdown() error {
	if h.redis != nil {
		return h.redis.Close()
	}
	return nil
}

// ProvideLocker provides a Redis locker when REDIS_URL is set, otherwise an
// in-process one.
func ProvideLocker(i do.Injector) (*LockerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Lock.RedisURL == "" {
		log.Info("Group locks are in-process", "wait", cfg.Lock.Wait)
		return &LockerHandle{Locker: lock.NewKeyedMutex(cfg.Lock.Wait)}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rl, err := lock.NewRedisLocker(ctx, cfg.Lock.RedisURL,
		lock.WithTTL(cfg.Lock.TTL),
		lock.WithWait(cfg.Lock.Wait),
		lock.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, err
	}

	log.Info("Group locks are shared through Redis", "ttl", cfg.Lock.TTL, "wait", cfg.Lock.Wait)
	return &LockerHandle{Locker: rl, redis: rl}, nil
}
