package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coastline/wharf/internal/core"
	"github.com/coastline/wharf/internal/events"
	"github.com/coastline/wharf/internal/metadata"
	"github.com/coastline/wharf/internal/telemetry"
)

// shutdownGrace bounds how long Shutdown waits for in-flight files.
const shutdownGrace = 30 * time.Second

// ledgerFileName is the metadata database inside the database
// directory. Must match what the core opens.
const ledgerFileName = "internal.db"

// newService assembles the full pipeline with a rotating-file logger
// and an event sink over the same stream. Exits the process on any
// initialization failure.
func newService(ctx context.Context) (*core.Core, *slog.Logger, io.Closer) {
	log, closer := serviceLogger()

	if err := telemetry.Init(ctx, "wharf", Version); err != nil {
		log.Warn("telemetry disabled", "error", err)
	}

	svc, err := core.Init(ctx, cfg, events.NewLogSink(log), log)
	if err != nil {
		_ = closer.Close()
		FatalError("%v", err)
	}
	return svc, log, closer
}

// stopService shuts the pipeline down within the grace period and
// releases the log rotator.
func stopService(svc *core.Core, log *slog.Logger, closer io.Closer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	telemetry.Shutdown(ctx)
	_ = closer.Close()
}

// openLedger opens the metadata store directly, without taking the
// process lock, so status and history work while the service runs.
func openLedger(ctx context.Context) *metadata.Store {
	if cfg.Directories.Database == "" {
		FatalErrorWithHint("directories.database is not configured",
			"Set directories.database in wharf.yaml or pass --database-dir")
	}
	if err := os.MkdirAll(cfg.Directories.Database, 0o755); err != nil {
		FatalError("failed to create database directory: %v", err)
	}
	store, err := metadata.Open(ctx, filepath.Join(cfg.Directories.Database, ledgerFileName))
	if err != nil {
		FatalError("%v", err)
	}
	return store
}
