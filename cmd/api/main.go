// Package main runs the Boiler Groups server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/di"
	"github.com/boilergroups/groups-server/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "boilergroups: startup failed: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	<-ctx.Done()
	log.Info("Signal received, draining connections")

	// Handles stop in reverse dependency order, so the listener closes before
	// the event streams and the store.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown incomplete", "error", err)
		os.Exit(1)
	}
	log.Info("Boiler up. Server stopped.")
}
