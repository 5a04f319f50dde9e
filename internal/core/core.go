// Package core assembles and runs one wharf process: configuration
// validation, the metadata store with startup recovery, the warehouse
// connection, the cleaning pipeline, the orchestrator, and the optional
// intake paths (landing-directory watcher, scheduled SFTP pulls).
//
// The host owns configuration resolution and signal handling; the core
// owns everything between Init and Shutdown.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/coastline/wharf/internal/cleaner"
	"github.com/coastline/wharf/internal/config"
	"github.com/coastline/wharf/internal/dialect"
	"github.com/coastline/wharf/internal/discovery"
	"github.com/coastline/wharf/internal/events"
	"github.com/coastline/wharf/internal/metadata"
	"github.com/coastline/wharf/internal/orchestrator"
	"github.com/coastline/wharf/internal/phi"
	"github.com/coastline/wharf/internal/schema"
	"github.com/coastline/wharf/internal/sftp"
	"github.com/coastline/wharf/internal/telemetry"
	"github.com/coastline/wharf/internal/types"
	"github.com/coastline/wharf/internal/warehouse"
	"github.com/coastline/wharf/internal/worker"
)

// lockFileName guards the database directory against a second process.
const lockFileName = "wharf.lock"

// metadataFileName is the internal ledger database inside the database
// directory.
const metadataFileName = "internal.db"

// Core is one assembled wharf process. Build with Init, run with
// Start, stop with Shutdown.
type Core struct {
	cfg  config.Core
	sink events.Sink
	log  *slog.Logger

	lock    *flock.Flock
	meta    *metadata.Store
	adapter dialect.Adapter
	repo    *warehouse.Repository
	wh      warehouse.Warehouse
	hasher  *phi.Hasher
	worker  *worker.Worker
	scanner *discovery.Scanner
	puller  *sftp.Puller
	orch    *orchestrator.Orchestrator
	watcher *orchestrator.Watcher

	mu         sync.Mutex
	started    bool
	intakeStop context.CancelFunc
	intakeWG   sync.WaitGroup
}

// Init validates cfg, locks the database directory, opens the metadata
// store (recovering anything a previous process left running), connects
// the warehouse and wires the pipeline. The returned Core is idle until
// Start. sink and log may be nil.
func Init(ctx context.Context, cfg config.Core, sink events.Sink, log *slog.Logger) (*Core, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}

	for _, dir := range []string{cfg.Directories.Input, cfg.Directories.Database, cfg.Directories.Backup} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(cfg.Directories.Database, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire process lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another process is already running against %s", cfg.Directories.Database)
	}

	c := &Core{cfg: cfg, sink: sink, log: log, lock: lock}
	ok := false
	defer func() {
		if !ok {
			c.closeResources()
		}
	}()

	c.meta, err = metadata.Open(ctx, filepath.Join(cfg.Directories.Database, metadataFileName))
	if err != nil {
		return nil, err
	}

	report, err := c.meta.RecoverInterrupted(ctx)
	if err != nil {
		return nil, err
	}
	if report.Jobs > 0 || report.Files > 0 {
		c.log.Info("startup recovery", "jobs", report.Jobs, "files", report.Files)
		c.audit(ctx, types.AuditRecovery,
			fmt.Sprintf("recovered %d interrupted jobs and %d files", report.Jobs, report.Files))
	}

	c.adapter, err = dialect.New(cfg.DB)
	if err != nil {
		return nil, err
	}
	pool, err := c.adapter.Open(ctx)
	if err != nil {
		return nil, err
	}
	c.repo = warehouse.New(pool, c.adapter, schema.Default(), cfg.ETL.BatchSize)
	if err := c.repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	c.log.Info("warehouse ready", "dialect", c.adapter.Name())

	c.hasher, err = phi.NewHasher(cfg.Security.PHISalt, cfg.Security.FieldsToHash)
	if err != nil {
		return nil, err
	}

	c.wh = telemetry.WrapWarehouse(c.repo)
	c.worker = worker.New(c.wh, c.meta, cleaner.New(c.hasher), sink, log)
	c.scanner = discovery.NewScanner(cfg.Directories.Input, cfg.ETL, c.meta)

	var pull orchestrator.PullFunc
	if cfg.SFTP.Enabled {
		sftpCfg := cfg.SFTP
		if sftpCfg.KnownHostsPath == "" {
			sftpCfg.KnownHostsPath = filepath.Join(cfg.Directories.Database, "known_hosts")
		}
		c.puller = sftp.New(sftpCfg, cfg.Directories.Input, log)
		if sftpCfg.AutoDownload {
			pull = c.pullForJob
		}
	}

	c.orch = orchestrator.New(cfg.ETL, c.scanner, c.worker, c.meta, sink, log, pull)

	ok = true
	return c, nil
}

// Start arms the orchestrator and begins automatic intake: the landing
// directory watcher when etl.auto_ingest is set, and the scheduled SFTP
// pull when sftp.poll_interval is set. Returns immediately.
func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	c.orch.Start()

	var intakeCtx context.Context
	intakeCtx, c.intakeStop = context.WithCancel(context.Background())

	if c.cfg.ETL.AutoIngest {
		c.watcher = orchestrator.NewWatcher(c.cfg.Directories.Input, c.cfg.ETL.FilePatterns, 0, c.autoIngest, c.log)
		c.watcher.Start(intakeCtx)
		c.log.Info("watching landing directory", "dir", c.cfg.Directories.Input)
	}

	if c.puller != nil && c.cfg.SFTP.PollInterval > 0 {
		c.intakeWG.Add(1)
		go c.pollSFTP(intakeCtx)
		c.log.Info("scheduled SFTP pull armed", "interval", c.cfg.SFTP.PollInterval)
	}

	c.audit(context.Background(), types.AuditStartup,
		fmt.Sprintf("service started, warehouse dialect %s", c.cfg.DB.Dialect))
}

// Shutdown stops intake, cancels active jobs and waits up to the grace
// period carried by ctx, then closes the stores and releases the
// process lock.
func (c *Core) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return c.closeResources()
	}
	c.started = false
	c.mu.Unlock()

	if c.intakeStop != nil {
		c.intakeStop()
	}
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			c.log.Warn("failed to close landing watcher", "error", err)
		}
	}
	c.intakeWG.Wait()

	err := c.orch.Shutdown(ctx)

	c.audit(context.Background(), types.AuditShutdown, "service stopped")

	if cerr := c.closeResources(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Orchestrator exposes job control to the host.
func (c *Core) Orchestrator() *orchestrator.Orchestrator { return c.orch }

// Warehouse exposes warehouse reads to the host.
func (c *Core) Warehouse() warehouse.Warehouse { return c.wh }

// Metadata exposes the internal ledger to the host.
func (c *Core) Metadata() *metadata.Store { return c.meta }

// Puller exposes the SFTP puller; nil unless sftp.enabled.
func (c *Core) Puller() *sftp.Puller { return c.puller }

// Hasher exposes the configured value hasher.
func (c *Core) Hasher() *phi.Hasher { return c.hasher }

// autoIngest runs after the watcher's settle period. One automatic job
// at a time: while anything is active the trigger re-arms and tries
// again after the next quiet period.
func (c *Core) autoIngest() {
	if len(c.orch.GetActiveJobs()) > 0 {
		c.watcher.Trigger()
		return
	}
	jobID, err := c.orch.StartJob(types.JobOptions{Trigger: types.TriggerAutomatic, Username: "watcher"})
	if err != nil {
		if !errors.Is(err, orchestrator.ErrNotStarted) {
			c.log.Warn("automatic job failed to start", "error", err)
		}
		return
	}
	c.log.Info("automatic job started", "job_id", jobID)
}

// pollSFTP pulls on the configured interval. It only starts jobs when
// no watcher is armed; with auto_ingest on, the downloaded files fire
// the watcher themselves.
func (c *Core) pollSFTP(ctx context.Context) {
	defer c.intakeWG.Done()
	ticker := time.NewTicker(c.cfg.SFTP.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			res, err := c.puller.Pull(ctx)
			if err != nil {
				c.log.Warn("scheduled pull failed", "error", err)
				c.audit(ctx, types.AuditSFTPPull, fmt.Sprintf("scheduled pull failed: %v", err))
				continue
			}
			c.audit(ctx, types.AuditSFTPPull, res.Summary())
			if res.OK == 0 || c.cfg.ETL.AutoIngest {
				continue
			}
			if len(c.orch.GetActiveJobs()) > 0 {
				continue // the next tick finds the files still pending
			}
			if _, err := c.orch.StartJob(types.JobOptions{Trigger: types.TriggerAutomatic, Username: "sftp"}); err != nil {
				if !errors.Is(err, orchestrator.ErrNotStarted) {
					c.log.Warn("scheduled job failed to start", "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// pullForJob runs one pull ahead of discovery and records the outcome.
// The orchestrator logs the returned error and continues the job.
func (c *Core) pullForJob(ctx context.Context) error {
	res, err := c.puller.Pull(ctx)
	if err != nil {
		c.audit(ctx, types.AuditSFTPPull, fmt.Sprintf("pull failed: %v", err))
		return err
	}
	c.audit(ctx, types.AuditSFTPPull, res.Summary())
	return nil
}

func (c *Core) audit(ctx context.Context, event, detail string) {
	entry := types.AuditEntry{
		EventType: event,
		Detail:    detail,
		Username:  "system",
		CreatedAt: time.Now().UTC(),
	}
	if c.meta != nil {
		if err := c.meta.Audit(ctx, entry); err != nil {
			c.log.Warn("failed to record audit event", "event", event, "error", err)
		}
	}
	c.sink.EmitAudit(entry)
}

// closeResources closes whatever Init managed to open, newest first.
func (c *Core) closeResources() error {
	var errs []error
	if c.repo != nil {
		if err := c.repo.DB().Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing warehouse pool: %w", err))
		}
		c.repo = nil
	}
	if c.meta != nil {
		if err := c.meta.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing metadata store: %w", err))
		}
		c.meta = nil
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("releasing process lock: %w", err))
		}
		c.lock = nil
	}
	return errors.Join(errs...)
}
