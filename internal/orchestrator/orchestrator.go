// Package orchestrator runs ETL jobs: discovery, a bounded worker pool
// with per-table serialization, progress bookkeeping, cancellation and
// persistence of finished jobs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/coastline/wharf/internal/config"
	"github.com/coastline/wharf/internal/events"
	"github.com/coastline/wharf/internal/types"
)

// ErrNotStarted is returned by StartJob outside Start/Shutdown.
var ErrNotStarted = errors.New("orchestrator not started")

// TaskSource discovers candidate files for a job.
type TaskSource interface {
	Discover(ctx context.Context, opts types.JobOptions) ([]*types.FileTask, error)
}

// TaskProcessor drives one task to a terminal status.
type TaskProcessor interface {
	Process(ctx context.Context, task *types.FileTask, trig types.Trigger, username string)
}

// JobStore is the slice of the metadata store the orchestrator needs.
type JobStore interface {
	SaveJob(ctx context.Context, p *types.JobProgress) error
	GetJob(ctx context.Context, jobID string) (*types.JobProgress, error)
	PruneJobs(ctx context.Context, keep int) (int64, error)
	Audit(ctx context.Context, e types.AuditEntry) error
}

// PullFunc fetches remote files into the landing directory before
// discovery. Errors are logged, never fatal to the job.
type PullFunc func(ctx context.Context) error

// Subscriber receives a snapshot after every job or task transition.
// Callbacks run synchronously under the orchestrator lock and must not
// block.
type Subscriber func(*types.JobProgress)

// Orchestrator owns the active job set. One instance per process.
type Orchestrator struct {
	etl    config.ETL
	source TaskSource
	proc   TaskProcessor
	store  JobStore
	sink   events.Sink
	log    *slog.Logger
	pull   PullFunc

	mu          sync.RWMutex
	active      map[string]*types.JobProgress
	cancels     map[string]context.CancelFunc
	history     []*types.JobProgress // newest first, bounded
	subscribers map[int]Subscriber
	nextSubID   int
	started     bool

	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup
}

// New wires an orchestrator. pull may be nil to disable SFTP
// auto-download; sink may be nil.
func New(etl config.ETL, source TaskSource, proc TaskProcessor, store JobStore, sink events.Sink, log *slog.Logger, pull PullFunc) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		etl:         etl,
		source:      source,
		proc:        proc,
		store:       store,
		sink:        sink,
		log:         log,
		pull:        pull,
		active:      make(map[string]*types.JobProgress),
		cancels:     make(map[string]context.CancelFunc),
		subscribers: make(map[int]Subscriber),
	}
}

// Start arms the orchestrator. Jobs can be started until Shutdown.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.baseCtx, o.baseStop = context.WithCancel(context.Background())
	o.started = true
}

// Shutdown cancels all active jobs and waits for workers to drain. The
// grace period comes from ctx; when it expires remaining I/O is cut.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("shutdown grace period expired: %w", ctx.Err())
	}
	o.baseStop()
	return err
}

// StartJob registers a new job and launches it asynchronously,
// returning the job ID immediately.
func (o *Orchestrator) StartJob(opts types.JobOptions) (string, error) {
	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = o.etl.MaxWorkers
	}
	opts = opts.Normalized()

	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return "", ErrNotStarted
	}

	jobID := newJobID(time.Now())
	for _, taken := o.active[jobID]; taken; _, taken = o.active[jobID] {
		jobID = newJobID(time.Now())
	}

	progress := &types.JobProgress{
		JobID:       jobID,
		Status:      types.JobRunning,
		Trigger:     opts.Trigger,
		TriggeredBy: opts.Username,
		StartedAt:   time.Now().UTC(),
	}
	jobCtx, cancel := context.WithCancel(o.baseCtx)
	o.active[jobID] = progress
	o.cancels[jobID] = cancel
	base := o.baseCtx
	o.mu.Unlock()

	o.audit(base, types.AuditJobStarted, fmt.Sprintf("job %s (%s)", jobID, opts.Trigger), opts.Username)

	o.wg.Add(1)
	go o.run(base, jobCtx, jobID, opts)
	return jobID, nil
}

// CancelJob signals a running job to stop dispatching tasks. In-flight
// tasks finish naturally. Returns false when the job is not active.
func (o *Orchestrator) CancelJob(jobID string) bool {
	o.mu.RLock()
	cancel, ok := o.cancels[jobID]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	cancel()
	o.log.Info("job cancellation requested", "job_id", jobID)
	return true
}

// GetActiveJobs returns snapshots of all running jobs, oldest first.
func (o *Orchestrator) GetActiveJobs() []*types.JobProgress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*types.JobProgress, 0, len(o.active))
	for _, p := range o.active {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// GetJob returns a snapshot of one job: active first, then the
// in-memory history, then the metadata store. Nil when unknown.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*types.JobProgress, error) {
	o.mu.RLock()
	if p, ok := o.active[jobID]; ok {
		defer o.mu.RUnlock()
		return p.Clone(), nil
	}
	for _, p := range o.history {
		if p.JobID == jobID {
			defer o.mu.RUnlock()
			return p.Clone(), nil
		}
	}
	o.mu.RUnlock()
	return o.store.GetJob(ctx, jobID)
}

// GetJobHistory returns finished jobs from this process, newest first.
// limit <= 0 returns everything retained.
func (o *Orchestrator) GetJobHistory(limit int) []*types.JobProgress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := len(o.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*types.JobProgress, 0, n)
	for _, p := range o.history[:n] {
		out = append(out, p.Clone())
	}
	return out
}

// Subscribe registers a progress callback and returns its id.
func (o *Orchestrator) Subscribe(cb Subscriber) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSubID++
	o.subscribers[o.nextSubID] = cb
	return o.nextSubID
}

// Unsubscribe removes a callback registered with Subscribe.
func (o *Orchestrator) Unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.subscribers, id)
}

// run executes one job end to end. base survives job cancellation so
// in-flight tasks complete; jobCtx only gates dispatch.
func (o *Orchestrator) run(base, jobCtx context.Context, jobID string, opts types.JobOptions) {
	defer o.wg.Done()

	if o.pull != nil {
		if err := o.pull(base); err != nil {
			o.log.Warn("sftp pull before discovery failed", "job_id", jobID, "error", err)
		}
	}

	var infraErr error
	tasks, err := o.source.Discover(base, opts)
	if err != nil {
		infraErr = err
		tasks = nil
	}

	// Workers mutate their own task pointers outside the lock, so the
	// job snapshot carries clones that mergeTask refreshes on
	// completion.
	o.mu.Lock()
	progress := o.active[jobID]
	progress.TotalFiles = len(tasks)
	progress.Files = make([]*types.FileTask, len(tasks))
	var preResolved []*types.FileTask
	for i, t := range tasks {
		progress.Files[i] = t.Clone()
		switch t.Status {
		case types.TaskSkipped:
			progress.SkippedFiles++
			preResolved = append(preResolved, t)
		case types.TaskFailed:
			progress.FailedFiles++
			progress.Errors = append(progress.Errors, fmt.Sprintf("%s: %s", t.FileName, t.Error))
			preResolved = append(preResolved, t)
		}
	}
	o.notifyLocked(progress)
	o.mu.Unlock()

	for _, t := range preResolved {
		o.sink.EmitTaskUpdate(t.Clone())
		if t.Status == types.TaskSkipped {
			o.audit(base, types.AuditFileSkipped, fmt.Sprintf("%s: %s", t.FileName, t.SkipReason), opts.Username)
		} else {
			o.audit(base, types.AuditFileFailed, fmt.Sprintf("%s: %s", t.FileName, t.Error), opts.Username)
		}
	}

	if infraErr == nil {
		o.dispatch(base, jobCtx, jobID, tasks, opts)
	}

	o.finalize(base, jobCtx, jobID, opts, infraErr)
}

// dispatch feeds pending tasks to the pool. Tasks that share a table
// run on one queue so upsert prefetches stay correct; distinct tables
// proceed in parallel up to MaxWorkers.
func (o *Orchestrator) dispatch(base, jobCtx context.Context, jobID string, tasks []*types.FileTask, opts types.JobOptions) {
	var order []string
	queues := make(map[string][]*types.FileTask)
	for _, t := range tasks {
		if t.Status != types.TaskPending {
			continue
		}
		if _, ok := queues[t.Table]; !ok {
			order = append(order, t.Table)
		}
		queues[t.Table] = append(queues[t.Table], t)
	}
	if len(order) == 0 {
		return
	}

	sem := semaphore.NewWeighted(int64(opts.MaxWorkers))
	var pool sync.WaitGroup
	for _, table := range order {
		queue := queues[table]
		if err := sem.Acquire(jobCtx, 1); err != nil {
			break // cancelled: undispatched queues stay pending
		}
		pool.Add(1)
		go func() {
			defer pool.Done()
			defer sem.Release(1)
			for _, task := range queue {
				select {
				case <-jobCtx.Done():
					return
				default:
				}
				o.setCurrentFile(jobID, task.FileName)
				o.proc.Process(base, task, opts.Trigger, opts.Username)
				o.mergeTask(jobID, task)
			}
		}()
	}
	pool.Wait()
}

// finalize settles the job status, persists it, and moves it from the
// active set into history.
func (o *Orchestrator) finalize(base, jobCtx context.Context, jobID string, opts types.JobOptions, infraErr error) {
	o.mu.Lock()
	progress := o.active[jobID]
	switch {
	case jobCtx.Err() != nil:
		progress.Status = types.JobCancelled
	case infraErr != nil:
		progress.Status = types.JobFailed
		progress.Errors = append(progress.Errors, infraErr.Error())
	default:
		progress.Status = types.JobCompleted
	}
	ended := time.Now().UTC()
	progress.EndedAt = &ended
	progress.CurrentFile = ""
	snapshot := progress.Clone()
	o.mu.Unlock()

	if err := o.store.SaveJob(base, snapshot); err != nil {
		o.log.Error("failed to persist job", "job_id", jobID, "error", err)
		o.mu.Lock()
		if progress.Status != types.JobCancelled {
			progress.Status = types.JobFailed
		}
		progress.Errors = append(progress.Errors, fmt.Sprintf("failed to persist job: %v", err))
		snapshot = progress.Clone()
		o.mu.Unlock()
	}
	if o.etl.JobHistoryLimit > 0 {
		if _, err := o.store.PruneJobs(base, o.etl.JobHistoryLimit); err != nil {
			o.log.Warn("failed to prune job history", "error", err)
		}
	}

	event := types.AuditJobCompleted
	switch snapshot.Status {
	case types.JobFailed:
		event = types.AuditJobFailed
	case types.JobCancelled:
		event = types.AuditJobCancelled
	}
	o.audit(base, event, fmt.Sprintf("job %s: %d/%d files, %d loaded",
		jobID, snapshot.CompletedFiles, snapshot.TotalFiles, snapshot.TotalRecordsLoaded), opts.Username)

	o.mu.Lock()
	delete(o.active, jobID)
	delete(o.cancels, jobID)
	o.history = append([]*types.JobProgress{snapshot}, o.history...)
	if limit := o.etl.JobHistoryLimit; limit > 0 && len(o.history) > limit {
		o.history = o.history[:limit]
	}
	o.notifyLocked(snapshot)
	o.mu.Unlock()

	o.sink.EmitProgress(snapshot.Clone())
	o.log.Info("job finished",
		"job_id", jobID, "status", snapshot.Status,
		"completed", snapshot.CompletedFiles, "failed", snapshot.FailedFiles,
		"skipped", snapshot.SkippedFiles, "loaded", snapshot.TotalRecordsLoaded)
}

// mergeTask folds a terminal task into the job counters and notifies
// subscribers. Workers never touch JobProgress directly.
func (o *Orchestrator) mergeTask(jobID string, task *types.FileTask) {
	o.mu.Lock()
	progress, ok := o.active[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	switch task.Status {
	case types.TaskCompleted:
		progress.CompletedFiles++
	case types.TaskFailed:
		progress.FailedFiles++
		progress.Errors = append(progress.Errors, fmt.Sprintf("%s: %s", task.FileName, task.Error))
	case types.TaskSkipped:
		progress.SkippedFiles++
	}
	for i, f := range progress.Files {
		if f.FileName == task.FileName {
			progress.Files[i] = task.Clone()
			break
		}
	}
	progress.TotalRecordsProcessed += task.Processed
	progress.TotalRecordsLoaded += task.Loaded
	progress.TotalRecordsInserted += task.Inserted
	progress.TotalRecordsUpdated += task.Updated
	if progress.CurrentFile == task.FileName {
		progress.CurrentFile = ""
	}
	snapshot := progress.Clone()
	o.notifyLocked(progress)
	o.mu.Unlock()

	o.sink.EmitProgress(snapshot)
}

func (o *Orchestrator) setCurrentFile(jobID, fileName string) {
	o.mu.Lock()
	if progress, ok := o.active[jobID]; ok {
		progress.CurrentFile = fileName
		o.notifyLocked(progress)
	}
	o.mu.Unlock()
}

// notifyLocked dispatches one snapshot to every subscriber. Caller
// holds o.mu, so events stay totally ordered per job.
func (o *Orchestrator) notifyLocked(p *types.JobProgress) {
	if len(o.subscribers) == 0 {
		return
	}
	snapshot := p.Clone()
	for _, cb := range o.subscribers {
		cb(snapshot)
	}
}

func (o *Orchestrator) audit(ctx context.Context, event, detail, username string) {
	entry := types.AuditEntry{EventType: event, Detail: detail, Username: username}
	if err := o.store.Audit(ctx, entry); err != nil {
		o.log.Warn("failed to record audit event", "event", event, "error", err)
	}
	o.sink.EmitAudit(entry)
}

// newJobID formats job_YYYYMMDD_HHMMSS_ffffff with microsecond
// resolution.
func newJobID(t time.Time) string {
	return fmt.Sprintf("job_%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}
