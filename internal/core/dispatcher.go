package core

// dispatcher.go runs CSV imports in the background.
//
// Submit records the job and returns its id at once; a goroutine then waits for a
// JobLimiter slot, runs the importer under the job timeout and reports exactly one
// outcome through the notifier. Nothing a job does is reported back to the
// submitter except through the job record and the notification.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/logging"
	"github.com/JonMunkholm/dynatable/internal/notify"
)

// ErrDispatcherClosed is returned by Submit after Shutdown has started.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// DefaultJobTimeout bounds one job, including every retry attempt.
const DefaultJobTimeout = 10 * time.Minute

const (
	subjectSucceeded = "CSV Import Completed"
	subjectFailed    = "CSV Import Failed"
	notifyTimeout    = 30 * time.Second
)

// Runner executes one import. *Importer satisfies it.
type Runner interface {
	Run(ctx context.Context, ds *Dataset, table string) (int, error)
}

// RetryPolicy decides whether a failed attempt is tried again.
type RetryPolicy interface {
	// Next is called after attempt (1-based) failed with err. It returns the
	// delay before the next attempt, or false to give up.
	Next(attempt int, err error) (time.Duration, bool)
}

// NoRetry never retries.
type NoRetry struct{}

func (NoRetry) Next(int, error) (time.Duration, bool) { return 0, false }

// FixedRetry allows up to Attempts attempts in total with a constant delay.
// With OnlyDatabase set, only database failures are retried; a bad file stays bad.
type FixedRetry struct {
	Attempts     int
	Delay        time.Duration
	OnlyDatabase bool
}

func (p FixedRetry) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= p.Attempts {
		return 0, false
	}
	if p.OnlyDatabase && Kind(err) != KindDatabase {
		return 0, false
	}
	return p.Delay, true
}

// ImportRequest is one CSV import to run in the background.
type ImportRequest struct {
	Table     string
	Dataset   *Dataset
	Requester string // Notification address
	RequestID string // Correlates job logs with the submitting request, optional
}

// DispatcherConfig tunes a Dispatcher. Zero values use the defaults.
type DispatcherConfig struct {
	MaxConcurrent int
	MaxWait       time.Duration
	JobTimeout    time.Duration
	Retry         RetryPolicy
}

// Dispatcher hands import jobs to background workers.
type Dispatcher struct {
	runner   Runner
	jobs     *JobStore // nil keeps job records in memory only
	notifier notify.Notifier
	limiter  *JobLimiter
	idents   *ident.Validator
	retry    RetryPolicy
	timeout  time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	live   map[string]*ImportJob
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. jobs may be nil; a nil notifier logs events.
func NewDispatcher(runner Runner, jobs *JobStore, n notify.Notifier, v *ident.Validator, cfg DispatcherConfig) *Dispatcher {
	if n == nil {
		n = notify.NewLogNotifier(nil)
	}
	if v == nil {
		v = ident.Default()
	}
	if cfg.Retry == nil {
		cfg.Retry = NoRetry{}
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Dispatcher{
		runner:   runner,
		jobs:     jobs,
		notifier: n,
		limiter:  NewJobLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		idents:   v,
		retry:    cfg.Retry,
		timeout:  cfg.JobTimeout,
		now:      time.Now,
		live:     make(map[string]*ImportJob),
	}
}

// Submit records a job for req and starts it in the background.
// The returned error only covers the request itself; job failures are reported
// through the job record and the notification.
func (d *Dispatcher) Submit(ctx context.Context, req ImportRequest) (string, error) {
	if _, err := d.idents.ValidateTable(req.Table); err != nil {
		return "", err
	}
	if _, err := mail.ParseAddress(req.Requester); err != nil {
		return "", validationf("invalid requester email %q", req.Requester)
	}
	if req.Dataset == nil {
		return "", validationf("no dataset to import")
	}

	job := &ImportJob{
		ID:        uuid.NewString(),
		Table:     req.Table,
		Requester: req.Requester,
		State:     JobSubmitted,
		CreatedAt: d.now().UTC(),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrDispatcherClosed
	}
	d.live[job.ID] = job
	d.wg.Add(1)
	d.mu.Unlock()

	if d.jobs != nil {
		if err := d.jobs.Create(ctx, *job); err != nil {
			d.mu.Lock()
			delete(d.live, job.ID)
			d.mu.Unlock()
			d.wg.Done()
			return "", err
		}
	}

	logging.WithJob(job.ID, job.Table, req.RequestID).Info("import job submitted",
		"rows", req.Dataset.Len(),
		"requester", req.Requester,
	)

	// The job outlives the request: keep its values, drop its cancellation.
	jobCtx := context.WithoutCancel(ctx)
	go d.execute(jobCtx, job.ID, req)

	return job.ID, nil
}

func (d *Dispatcher) execute(ctx context.Context, jobID string, req ImportRequest) {
	defer d.wg.Done()

	logger := logging.WithJob(jobID, req.Table, req.RequestID)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	inserted, attempts, err := d.run(ctx, logger, jobID, req)

	job := d.finish(jobID, inserted, attempts, err)
	if d.jobs != nil {
		// The job context may be spent; the final record must still be written.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if perr := d.jobs.Finish(persistCtx, job); perr != nil {
			logger.Error("failed to persist job result", "error", perr)
		}
		cancel()
	}

	if err != nil {
		logger.Error("import job failed",
			"error", err,
			"code", job.ErrorCode,
			"attempts", attempts,
		)
	} else {
		logger.Info("import job succeeded", "rows", inserted, "attempts", attempts)
	}

	d.sendNotification(logger, job, err)
}

// run waits for a slot and makes attempts until one succeeds or the retry policy
// gives up. The returned error is an *ImportFailure.
func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, jobID string, req ImportRequest) (int, int, error) {
	if err := d.limiter.Acquire(ctx); err != nil {
		return 0, 0, &ImportFailure{JobID: jobID, Table: req.Table, Err: err}
	}
	defer d.limiter.Release()

	attempt := 0
	for {
		attempt++
		d.markRunning(ctx, logger, jobID, attempt)

		n, err := d.attempt(ctx, req)
		if err == nil {
			return n, attempt, nil
		}

		delay, again := d.retry.Next(attempt, err)
		if !again {
			return 0, attempt, &ImportFailure{JobID: jobID, Table: req.Table, Err: err}
		}
		logger.Warn("import attempt failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, attempt, &ImportFailure{JobID: jobID, Table: req.Table, Err: err}
		}
	}
}

// attempt runs the importer once, turning a panic into an error.
func (d *Dispatcher) attempt(ctx context.Context, req ImportRequest) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in import job",
				"table", req.Table,
				"panic", r,
			)
			n, err = 0, fmt.Errorf("import panicked: %v", r)
		}
	}()
	return d.runner.Run(ctx, req.Dataset, req.Table)
}

func (d *Dispatcher) markRunning(ctx context.Context, logger *slog.Logger, jobID string, attempt int) {
	now := d.now().UTC()

	d.mu.Lock()
	if job, ok := d.live[jobID]; ok {
		job.State = JobRunning
		job.Attempts = attempt
		job.StartedAt = &now
	}
	d.mu.Unlock()

	if d.jobs != nil {
		if err := d.jobs.MarkRunning(ctx, jobID, attempt, now); err != nil {
			logger.Warn("failed to persist job start", "error", err)
		}
	}
}

// finish moves the in-memory job to its terminal state and returns a copy.
func (d *Dispatcher) finish(jobID string, inserted, attempts int, err error) ImportJob {
	now := d.now().UTC()

	d.mu.Lock()
	defer d.mu.Unlock()

	job := d.live[jobID]
	job.Attempts = attempts
	job.FinishedAt = &now
	if err != nil {
		job.State = JobFailed
		job.Error = failureCause(err).Error()
		job.ErrorCode = MapError(err).Code
	} else {
		job.State = JobSucceeded
		job.Inserted = inserted
	}
	return *job
}

func (d *Dispatcher) sendNotification(logger *slog.Logger, job ImportJob, err error) {
	ev := notify.Event{To: job.Requester}
	if err != nil {
		ev.Subject = subjectFailed
		ev.Body = fmt.Sprintf("CSV import failed due to: %s (Code: %s)", job.Error, job.ErrorCode)
	} else {
		ev.Subject = subjectSucceeded
		ev.Body = fmt.Sprintf("Successfully imported %d records into %s.", job.Inserted, job.Table)
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if nerr := d.notifier.Send(ctx, ev); nerr != nil {
		logger.Error("failed to send notification", "to", job.Requester, "error", nerr)
	}
}

// failureCause strips the ImportFailure wrapper for user-facing text.
func failureCause(err error) error {
	var f *ImportFailure
	if errors.As(err, &f) && f.Err != nil {
		return f.Err
	}
	return err
}

// Job returns the job with id, looking at live jobs first and then the store.
func (d *Dispatcher) Job(ctx context.Context, id string) (ImportJob, bool, error) {
	d.mu.RLock()
	job, ok := d.live[id]
	var snapshot ImportJob
	if ok {
		snapshot = *job
	}
	d.mu.RUnlock()
	if ok {
		return snapshot, true, nil
	}

	if d.jobs == nil {
		return ImportJob{}, false, nil
	}
	return d.jobs.Get(ctx, id)
}

// Jobs lists recent jobs for table, newest first.
func (d *Dispatcher) Jobs(ctx context.Context, table string) ([]ImportJob, error) {
	if d.jobs != nil {
		return d.jobs.ListByTable(ctx, table, 0)
	}

	d.mu.RLock()
	out := make([]ImportJob, 0)
	for _, job := range d.live {
		if job.Table == table {
			out = append(out, *job)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Forget drops terminal jobs that finished before cutoff from memory.
// Persisted records are handled by the retention sweep.
func (d *Dispatcher) Forget(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, job := range d.live {
		if job.State.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(d.live, id)
			n++
		}
	}
	return n
}

// LimiterStatus reports slot usage.
func (d *Dispatcher) LimiterStatus() JobLimiterStatus {
	return d.limiter.Status()
}

// Wait blocks until every submitted job has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for the running ones. Jobs are not
// cancelled; if ctx ends first they keep running and ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	slog.Info("import dispatcher draining", "active", d.limiter.ActiveCount())
	return d.Wait(ctx)
}
