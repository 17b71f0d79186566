// Package worker runs the fixed-size pool that drains the action queue.
// Workers coordinate exclusively through the queue store's row-locking
// claim; the pool itself holds no shared mutable state.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webhooker-io/webhooker/internal/actions"
	"github.com/webhooker-io/webhooker/internal/domain"
)

const (
	// pollInterval is how long an idle worker sleeps before re-polling.
	pollInterval = time.Second
	// executeTimeout is the wall-clock budget for one module execution.
	executeTimeout = 30 * time.Second
	// maxReclaimInterval caps how infrequently the recovery sweep runs.
	maxReclaimInterval = 5 * time.Minute
)

// Queue is the durable action queue the pool drains.
type Queue interface {
	ClaimNext(ctx context.Context) (*domain.ActionQueueItem, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts, maxAttempts int, errText string) error
	ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ActionSource loads action definitions.
type ActionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Action, error)
}

// SubmissionSource loads submissions.
type SubmissionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
}

// EndpointSource loads endpoints and resolves their owning project and tenant.
type EndpointSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
	Owners(ctx context.Context, endpointID uuid.UUID) (*domain.Project, *domain.Tenant, error)
}

// LogSink records execution outcomes.
type LogSink interface {
	Append(ctx context.Context, actionID, submissionID uuid.UUID, status domain.LogStatus, response json.RawMessage) (*domain.ActionLog, error)
}

// Pool is a fixed group of workers polling the queue and executing action
// modules. Delivery is at-least-once: a worker that dies between executing
// a side effect and updating the queue row leaves the item for the recovery
// sweep, so modules should be idempotent.
type Pool struct {
	size        int
	queue       Queue
	actionSrc   ActionSource
	submissions SubmissionSource
	endpoints   EndpointSource
	logs        LogSink
	registry    *actions.Registry

	// reclaimAfter is the staleness threshold for the recovery sweep;
	// zero disables the sweep entirely.
	reclaimAfter time.Duration

	// timeout is the per-execution wall-clock budget.
	timeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Pool of size workers. reclaimAfter controls the stuck-item
// recovery sweep; pass 0 to disable it.
func New(
	size int,
	queue Queue,
	actionSrc ActionSource,
	submissions SubmissionSource,
	endpoints EndpointSource,
	logs LogSink,
	registry *actions.Registry,
	reclaimAfter time.Duration,
) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:         size,
		queue:        queue,
		actionSrc:    actionSrc,
		submissions:  submissions,
		endpoints:    endpoints,
		logs:         logs,
		registry:     registry,
		reclaimAfter: reclaimAfter,
		timeout:      executeTimeout,
	}
}

// Start launches the workers and the recovery sweep.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}

	if p.reclaimAfter > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.reclaimLoop(ctx)
		}()
	}

	slog.Info("worker: pool started", "workers", p.size, "reclaim_after", p.reclaimAfter)
}

// Stop signals all workers and waits for them to finish their current item.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker: pool stopped")
}

// run is one worker's claim loop.
func (p *Pool) run(ctx context.Context, id int) {
	log := slog.With("worker", id)

	for {
		if ctx.Err() != nil {
			return
		}

		item, err := p.queue.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("worker: claim failed", "error", err)
			sleep(ctx, pollInterval)
			continue
		}
		if item == nil {
			sleep(ctx, pollInterval)
			continue
		}

		// A claimed item runs on a context detached from shutdown so it
		// executes and records its outcome to completion; cancellation is
		// observed only between items. Stop therefore drains in-flight work
		// instead of stranding rows in processing.
		p.process(context.WithoutCancel(ctx), log, item)
	}
}

// process executes one claimed queue item end to end.
func (p *Pool) process(ctx context.Context, log *slog.Logger, item *domain.ActionQueueItem) {
	log = log.With("queue_item", item.ID, "action_id", item.ActionID, "submission_id", item.SubmissionID)

	action, run, loadErr := p.loadContext(ctx, item)
	if loadErr != "" {
		log.Warn("worker: dependency missing", "error", loadErr)
		p.record(ctx, log, item, actions.Failure("%s", loadErr))
		return
	}

	module, ok := p.registry.Get(action.ActionType)
	if !ok {
		p.record(ctx, log, item, actions.Failure("Unknown module: %s", action.ActionType))
		return
	}

	result := p.execute(ctx, module, run, action.Config)
	p.record(ctx, log, item, result)
}

// loadContext assembles the execution context for an item. Returns a
// non-empty error string naming the first missing dependency.
func (p *Pool) loadContext(ctx context.Context, item *domain.ActionQueueItem) (*domain.Action, *actions.Context, string) {
	action, err := p.actionSrc.GetByID(ctx, item.ActionID)
	if err != nil || action == nil {
		return nil, nil, "Action not found"
	}

	sub, err := p.submissions.GetByID(ctx, item.SubmissionID)
	if err != nil || sub == nil {
		return nil, nil, "Submission not found"
	}

	ep, err := p.endpoints.GetByID(ctx, action.EndpointID)
	if err != nil || ep == nil {
		return nil, nil, "Endpoint not found"
	}

	project, tenant, err := p.endpoints.Owners(ctx, action.EndpointID)
	if err != nil || project == nil || tenant == nil {
		return nil, nil, "Endpoint owner not found"
	}

	return action, actions.NewContext(*sub, *ep, *project, *tenant), ""
}

// execute runs the module under the wall-clock timeout. The module goroutine
// is abandoned on timeout; its context is cancelled so in-flight I/O unwinds.
func (p *Pool) execute(ctx context.Context, module actions.Module, run *actions.Context, cfg json.RawMessage) actions.Result {
	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan actions.Result, 1)
	go func() {
		done <- module.Execute(execCtx, run, cfg)
	}()

	select {
	case result := <-done:
		return result
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return actions.Failure("Action timed out after %ds", int(p.timeout.Seconds()))
		}
		return actions.Failure("Action cancelled")
	}
}

// record appends the action log and applies the queue transition. Log and
// transition failures are logged but do not panic the worker; the recovery
// sweep picks up anything left in processing.
func (p *Pool) record(ctx context.Context, log *slog.Logger, item *domain.ActionQueueItem, result actions.Result) {
	if _, err := p.logs.Append(ctx, item.ActionID, item.SubmissionID, result.Status, result.ResponseJSON()); err != nil {
		log.Error("worker: append action log failed", "error", err)
	}

	if result.Status == domain.LogSuccess {
		if err := p.queue.MarkCompleted(ctx, item.ID); err != nil {
			log.Error("worker: mark completed failed", "error", err)
		}
		log.Info("worker: action completed", "attempts", item.Attempts)
		return
	}

	errText := result.ErrorText()
	if err := p.queue.MarkFailed(ctx, item.ID, item.Attempts, item.MaxAttempts, errText); err != nil {
		log.Error("worker: mark failed failed", "error", err)
	}
	log.Warn("worker: action failed", "attempts", item.Attempts, "max_attempts", item.MaxAttempts, "error", errText)
}

// reclaimLoop periodically returns orphaned processing items to the queue.
func (p *Pool) reclaimLoop(ctx context.Context) {
	interval := p.reclaimAfter / 2
	if interval > maxReclaimInterval {
		interval = maxReclaimInterval
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.ReclaimStuck(ctx, p.reclaimAfter)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("worker: reclaim sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Info("worker: reclaimed stuck items", "count", n)
			}
		}
	}
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
