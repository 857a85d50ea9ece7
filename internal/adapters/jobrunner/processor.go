// Package jobrunner drains the durable job queue one job at a time under the dispatch rate gate.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/observability/metrics"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
)

const (
	// DefaultRetryCeiling is the number of retries allowed after the first attempt.
	DefaultRetryCeiling = 2
	// DefaultMinRetryDelay is the floor for the delay before a failed job is retried.
	DefaultMinRetryDelay = time.Second
	// DefaultClaimRetryDelay is the wait before claiming again after the store failed.
	DefaultClaimRetryDelay = time.Second
	// DefaultJobTimeout applies to jobs created without a timeout.
	DefaultJobTimeout = 10 * time.Second

	markTimeout   = 5 * time.Second
	idleScanLimit = 50
)

// ErrProcessorStopped rejects waiters still pending when the processor shuts down.
var ErrProcessorStopped = errors.New("queue processor stopped")

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Jobs     core.JobRepository
	Gate     *job.Gate
	Waiters  *job.WaiterBridge
	Executor Executor
	Clock    Clock
	Timeouts *job.TimeoutPolicy
	Events   core.AdminEventLogger
	Metrics  statsd.Sink
	Logger   *slog.Logger

	RetryCeiling    int
	MinRetryDelay   time.Duration
	ClaimRetryDelay time.Duration
}

// Processor is a single-concurrency loop: each tick claims at most one due job, executes it
// and records the outcome. Ticks are driven by timers, never by a polling loop.
type Processor struct {
	jobs     core.JobRepository
	gate     *job.Gate
	waiters  *job.WaiterBridge
	executor Executor
	clock    Clock
	timeouts *job.TimeoutPolicy
	events   core.AdminEventLogger
	metrics  statsd.Sink
	logger   *slog.Logger

	retryCeiling    int
	minRetryDelay   time.Duration
	claimRetryDelay time.Duration

	mu         sync.Mutex
	processing bool
	kicked     bool
	running    bool
	pending    Stopper
	generation uint64
	baseCtx    context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewProcessor constructs a Processor. Jobs and Gate are required.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("rate gate is required")
	}

	p := &Processor{
		jobs:            opts.Jobs,
		gate:            opts.Gate,
		waiters:         opts.Waiters,
		executor:        opts.Executor,
		clock:           opts.Clock,
		timeouts:        opts.Timeouts,
		events:          opts.Events,
		metrics:         opts.Metrics,
		retryCeiling:    opts.RetryCeiling,
		minRetryDelay:   opts.MinRetryDelay,
		claimRetryDelay: opts.ClaimRetryDelay,
	}
	if p.waiters == nil {
		p.waiters = job.NewWaiterBridge()
	}
	if p.executor == nil {
		p.executor = NewHTTPExecutor(nil)
	}
	if p.clock == nil {
		p.clock = SystemClock{}
	}
	if p.timeouts == nil {
		p.timeouts, _ = job.NewTimeoutPolicy(DefaultJobTimeout, 0)
	}
	if p.retryCeiling <= 0 {
		p.retryCeiling = DefaultRetryCeiling
	}
	if p.minRetryDelay <= 0 {
		p.minRetryDelay = DefaultMinRetryDelay
	}
	if p.claimRetryDelay <= 0 {
		p.claimRetryDelay = DefaultClaimRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("component", "queue_processor")
	return p, nil
}

// Waiters returns the bridge settled by this processor.
func (p *Processor) Waiters() *job.WaiterBridge {
	return p.waiters
}

// Start settles jobs left active by a previous process and schedules the first tick. Only one
// processor runs against the store, so every active row at this point is orphaned.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("queue processor already started")
	}
	p.baseCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.running = true
	p.mu.Unlock()

	res, err := p.jobs.RecoverActive(ctx, p.retryCeiling+1)
	switch {
	case err != nil:
		p.logger.WarnContext(ctx, "recover active jobs failed", "error", err)
	case res.Requeued > 0 || res.Failed > 0:
		p.logger.InfoContext(ctx, "recovered active jobs", "requeued", res.Requeued, "failed", res.Failed)
	}

	p.logger.InfoContext(ctx, "queue processor started", "retry_ceiling", p.retryCeiling)
	p.schedule(0)
	return nil
}

// Run starts the processor and blocks until ctx is cancelled, then stops it.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Stop()
	return nil
}

// Stop cancels the pending wake-up, waits for an in-flight tick and rejects remaining waiters.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	if p.pending != nil && p.pending.Stop() {
		p.wg.Done()
	}
	p.pending = nil
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	if n := p.waiters.RejectAll(ErrProcessorStopped); n > 0 {
		p.logger.Info("rejected pending waiters on shutdown", "count", n)
	}
	p.logger.Info("queue processor stopped")
}

// Kick schedules an immediate tick, typically right after an enqueue. A kick that lands
// while a tick is running also makes that tick reschedule immediately when it ends.
func (p *Processor) Kick() {
	p.mu.Lock()
	if p.processing {
		p.kicked = true
	}
	p.mu.Unlock()
	p.schedule(0)
}

// schedule replaces any pending wake-up with one after delay.
func (p *Processor) schedule(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if p.pending != nil && p.pending.Stop() {
		p.wg.Done()
	}
	p.generation++
	gen := p.generation
	ctx := p.baseCtx
	p.wg.Add(1)
	p.pending = p.clock.AfterFunc(delay, func() {
		defer p.wg.Done()
		p.mu.Lock()
		if p.generation == gen {
			p.pending = nil
		}
		p.mu.Unlock()
		p.Tick(ctx)
	})
}

// acquire takes the processing guard. A caller that loses remembers the wake-up in kicked so
// the holder runs another tick once it releases.
func (p *Processor) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processing {
		p.kicked = true
		return false
	}
	p.processing = true
	return true
}

// release drops the guard and reports whether a tick was turned away while it was held.
func (p *Processor) release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processing = false
	kicked := p.kicked
	p.kicked = false
	return kicked
}

// Tick runs one iteration of the loop. A tick that overlaps a running one is deferred until
// that one finishes.
func (p *Processor) Tick(ctx context.Context) {
	if !p.acquire() {
		return
	}
	delay, again := p.step(ctx)
	kicked := p.release()

	if ctx.Err() != nil {
		return
	}
	switch {
	case kicked:
		p.schedule(0)
	case again:
		p.schedule(delay)
	}
}

// step returns the delay before the next tick and whether one is needed.
func (p *Processor) step(ctx context.Context) (time.Duration, bool) {
	if wait := p.gate.WaitFor(p.clock.Now()); wait > 0 {
		return wait, true
	}

	claimed, err := p.jobs.ClaimNextDue(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return p.idleWake(ctx)
		}
		if ctx.Err() != nil {
			return 0, false
		}
		p.logger.ErrorContext(ctx, "claim next job failed", "error", err, "retry_in", p.claimRetryDelay)
		return p.claimRetryDelay, true
	}

	interval := p.gate.RecordDispatch(ctx, p.clock.Now())
	metrics.EmitDispatch(p.metrics, interval)

	p.handle(ctx, claimed, interval)
	return 0, true
}

// idleWake finds the earliest pending job that is not yet due so a scheduled retry is picked
// up without waiting for the next enqueue. With nothing pending the loop goes idle.
func (p *Processor) idleWake(ctx context.Context) (time.Duration, bool) {
	pending, err := p.jobs.ListPending(ctx, idleScanLimit)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WarnContext(ctx, "list pending jobs failed", "error", err)
		}
		return 0, false
	}
	var earliest time.Time
	for _, j := range pending {
		if earliest.IsZero() || j.NextRunAt.Before(earliest) {
			earliest = j.NextRunAt
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	wait := earliest.Sub(p.clock.Now())
	if wait <= 0 {
		// Due but not claimed by us; another claimer or clock skew. Back off like a claim error.
		wait = p.claimRetryDelay
	}
	return wait, true
}

func (p *Processor) handle(ctx context.Context, j *model.Job, interval time.Duration) {
	start := p.clock.Now()
	decision := p.timeouts.Resolve(j.Timeout)
	execCtx, cancel := context.WithTimeout(ctx, decision.Timeout)
	result, err := p.executor.Execute(execCtx, j)
	cancel()
	elapsed := p.clock.Now().Sub(start)

	log := p.logger.With("job_id", j.ID, "attempt", j.Attempts, "url", j.URL)

	if err == nil {
		ok := p.mark(ctx, "done", j.ID, func(mctx context.Context) (bool, error) {
			return p.jobs.MarkDone(mctx, j.ID)
		})
		log.InfoContext(ctx, "job completed", "status_code", statusOf(result), "duration", elapsed)
		p.emit(j, "completed", resultLabel(ok, metrics.ResultSuccess), elapsed, nil)
		p.waiters.Resolve(j.ID, result)
		return
	}

	// Attempts counts the current claim, so retries used so far is Attempts-1.
	if j.Attempts-1 < p.retryCeiling {
		delay := max(interval, p.minRetryDelay)
		p.mark(ctx, "retry", j.ID, func(mctx context.Context) (bool, error) {
			return p.jobs.MarkRetry(mctx, core.MarkRetryParams{ID: j.ID, Delay: delay, ErrMsg: err.Error()})
		})
		log.WarnContext(ctx, "job failed, retry scheduled", "error", err, "retry_in", delay)
		p.emit(j, "retried", metrics.ResultRetry, elapsed, err)
		return
	}

	p.mark(ctx, "error", j.ID, func(mctx context.Context) (bool, error) {
		return p.jobs.MarkError(mctx, j.ID, err.Error())
	})
	log.ErrorContext(ctx, "job failed permanently", "error", err)
	p.emit(j, "failed", metrics.ResultError, elapsed, err)
	p.logJobFailed(ctx, j, err)
	p.waiters.Reject(j.ID, err)
}

// mark applies a store transition detached from ctx so shutdown does not strand an active job.
// Errors are logged and never escape the loop.
func (p *Processor) mark(ctx context.Context, transition, id string, fn func(context.Context) (bool, error)) bool {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	ok, err := fn(mctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "mark job failed", "job_id", id, "transition", transition, "error", err)
		return false
	}
	if !ok {
		p.logger.WarnContext(ctx, "job was no longer active", "job_id", id, "transition", transition)
	}
	return ok
}

func (p *Processor) emit(j *model.Job, transition, result string, d time.Duration, err error) {
	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		JobKind:    string(j.Kind),
		Transition: transition,
		Result:     result,
		Attempt:    j.Attempts,
		Duration:   d,
		Err:        err,
	})
}

func (p *Processor) logJobFailed(ctx context.Context, j *model.Job, err error) {
	if p.events == nil {
		return
	}
	meta := map[string]any{
		"job_id":   j.ID,
		"attempts": j.Attempts,
		"url":      j.URL,
		"error":    err.Error(),
	}
	if len(j.Metadata) > 0 {
		var jobMeta map[string]any
		if jerr := json.Unmarshal(j.Metadata, &jobMeta); jerr == nil {
			meta["metadata"] = jobMeta
		}
	}
	p.events.Log(context.WithoutCancel(ctx), model.AdminEvent{
		Type:     model.AdminEventJobFailed,
		Message:  fmt.Sprintf("job %s failed after %d attempts: %v", j.ID, j.Attempts, err),
		Metadata: meta,
	})
}

func resultLabel(ok bool, onSuccess string) string {
	if ok {
		return onSuccess
	}
	return metrics.ResultNoop
}

func statusOf(res *model.HTTPResult) int {
	if res == nil {
		return 0
	}
	return res.StatusCode
}
