package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmichalek/punchsync/internal/config"
	"github.com/jmichalek/punchsync/internal/db"
	"github.com/jmichalek/punchsync/internal/httpapi"
	"github.com/jmichalek/punchsync/internal/punch/fleet"
	"github.com/jmichalek/punchsync/internal/punch/service"
	"github.com/jmichalek/punchsync/internal/punch/store"
	"github.com/jmichalek/punchsync/internal/punch/store/memory"
	"github.com/jmichalek/punchsync/internal/punch/store/postgres"
	"github.com/jmichalek/punchsync/internal/punch/store/sqlite"

	// Terminal adapters register themselves with the driver registry.
	_ "github.com/jmichalek/punchsync/internal/punch/driver/netdrv"
	_ "github.com/jmichalek/punchsync/internal/punch/driver/sim"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "punchsync ", log.LstdFlags|log.LUTC)

	cfg, warnings, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	for _, w := range warnings {
		logger.Printf("config: %s", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: build every enabled entry, then let the fan-out keep the
	// ones that pass their probe.
	fanout := service.NewFanout(logger)
	fanout.Initialize(ctx, buildStores(ctx, cfg, logger))
	defer fanout.Close()

	fl := fleet.New(cfg.Devices, cfg.ReconnectPause, logger)
	engine := service.NewWorkRecordEngine(logger)
	orch := service.NewOrchestrator(fl, fanout, engine, cfg.WatchdogInterval, logger)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:       logger,
		Addr:         cfg.HTTPAddr,
		Orchestrator: orch,
	})

	go func() {
		logger.Printf("admin api listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("admin api error: %v", err)
			stop()
		}
	}()

	// Blocks until the shutdown signal, then drains in-flight events and
	// disconnects the fleet.
	orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildStores constructs a candidate store per enabled config entry.
// Construction failures are logged and skipped — a store that cannot even
// be built is the same degraded condition as one failing its probe.
func buildStores(ctx context.Context, cfg config.Config, logger *log.Logger) []store.AttendanceStore {
	var out []store.AttendanceStore
	for _, entry := range cfg.Stores {
		if !entry.Enabled {
			continue
		}
		switch entry.Type {
		case "sqlite":
			conn, err := db.Open(ctx, entry.DSN)
			if err != nil {
				logger.Printf("store %s: open sqlite: %v", entry.Name, err)
				continue
			}
			if cfg.Env == "dev" {
				if err := db.SeedDev(ctx, conn); err != nil {
					logger.Printf("store %s: dev seed: %v", entry.Name, err)
				}
			}
			out = append(out, sqlite.New(entry.Name, conn))
		case "postgres":
			st, err := postgres.Open(entry.Name, entry.DSN)
			if err != nil {
				logger.Printf("store %s: open postgres: %v", entry.Name, err)
				continue
			}
			out = append(out, st)
		case "memory":
			out = append(out, memory.New(entry.Name))
		default:
			logger.Printf("store %s: unknown type %q, skipping", entry.Name, entry.Type)
		}
	}
	return out
}
