// Package execengine implements the bounded-concurrency job scheduler: the
// per-job lifecycle (agent selection, sandbox creation, worker dispatch,
// retry/backoff, circuit breaking) driving an execution plan to completion.
package execengine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/open330/oac/internal/bus"
	"github.com/open330/oac/internal/agent"
	"github.com/open330/oac/internal/ocerr"
	"github.com/open330/oac/internal/plan"
	"github.com/open330/oac/internal/sandbox"
	"github.com/open330/oac/internal/worker"
)

// Config holds the engine's construction invariants.
type Config struct {
	Concurrency        int
	MaxAttempts        int
	RepoPath           string
	BaseBranch         string
	BranchPrefix       string
	TaskTimeout        time.Duration
	DefaultTokenBudget int64
}

func (c *Config) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = 2
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 2
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 300 * time.Second
	}
	if c.DefaultTokenBudget < 1 {
		c.DefaultTokenBudget = 50000
	}
}

// RunResult partitions every enqueued job by its terminal status.
type RunResult struct {
	Completed []*Job
	Failed    []*Job
	Aborted   []*Job
}

// Engine drives a set of enqueued jobs to completion against a bounded pool
// of concurrent workers, selecting agents round-robin and retrying
// transient failures with backoff.
type Engine struct {
	cfg      Config
	registry *agent.Registry
	agentIDs []string
	agentCfg map[string]map[string]interface{}
	bus      *bus.Bus

	queue *Queue

	mu       sync.Mutex
	jobs     map[string]*Job
	rrCursor int
	aborted  bool

	breakers    map[string]*gobreaker.CircuitBreaker
	executions  map[string]agent.Execution

	wg sync.WaitGroup
}

// New constructs an Engine. agentIDs is the ordered provider list used for
// round-robin selection; registry must have a factory registered for each.
func New(cfg Config, registry *agent.Registry, agentIDs []string, agentCfg map[string]map[string]interface{}, b *bus.Bus) (*Engine, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("execengine: at least one agent provider is required")
	}
	cfg.applyDefaults()

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		agentIDs: agentIDs,
		agentCfg: agentCfg,
		bus:      b,
		queue:    NewQueue(),
		jobs:       make(map[string]*Job),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		executions: make(map[string]agent.Execution),
	}
	for _, id := range agentIDs {
		providerID := id
		e.breakers[id] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerID,
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return e, nil
}

// Enqueue creates a Job for every selected entry in plan and schedules it.
func (e *Engine) Enqueue(p *plan.ExecutionPlan) []*Job {
	jobs := make([]*Job, 0, len(p.Selected))
	e.mu.Lock()
	for _, sel := range p.Selected {
		job := &Job{
			ID:       uuid.NewString(),
			Item:     sel.Item,
			Estimate: sel.Estimate,
			Status:   StatusQueued,
		}
		e.jobs[job.ID] = job
		jobs = append(jobs, job)
	}
	e.mu.Unlock()

	for _, job := range jobs {
		e.queue.Push(job)
	}
	return jobs
}

// Run starts cfg.Concurrency workers, waits for the queue to drain, and
// returns the partitioned result. Run is not re-entrant.
func (e *Engine) Run(ctx context.Context) RunResult {
	for i := 0; i < e.cfg.Concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx)
	}

	e.waitForIdle(ctx)
	e.queue.Close()
	e.wg.Wait()

	return e.partition()
}

// waitForIdle blocks until every job reaches a terminal status or ctx ends.
func (e *Engine) waitForIdle(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e.mu.Lock()
		pending := 0
		for _, j := range e.jobs {
			if j.Status == StatusQueued || j.Status == StatusRunning || j.Status == StatusRetrying {
				pending++
			}
		}
		e.mu.Unlock()
		if pending == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (e *Engine) partition() RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	var r RunResult
	for _, j := range e.jobs {
		switch j.Status {
		case StatusCompleted:
			r.Completed = append(r.Completed, j)
		case StatusFailed:
			r.Failed = append(r.Failed, j)
		case StatusAborted:
			r.Aborted = append(r.Aborted, j)
		}
	}
	return r
}

func (e *Engine) runWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		job, ok := e.queue.Pop(ctx)
		if !ok {
			return
		}
		e.dispatch(ctx, job)
	}
}

// selectAgent advances the round-robin cursor once and returns the chosen
// provider ID, skipping providers whose circuit breaker is currently open.
func (e *Engine) selectAgent() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.agentIDs)
	for i := 0; i < n; i++ {
		id := e.agentIDs[e.rrCursor%n]
		e.rrCursor++
		if e.breakers[id].State() != gobreaker.StateOpen {
			return id
		}
	}
	// Every breaker open: fall back to the next provider anyway and let the
	// breaker reject the call, so a fully-open provider set still surfaces
	// a real failure instead of stalling selection.
	id := e.agentIDs[e.rrCursor%n]
	e.rrCursor++
	return id
}

func (e *Engine) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// jobAborted reads job.aborted under the engine lock; Abort sets the flag
// from a different goroutine than the one dispatching the job.
func (e *Engine) jobAborted(job *Job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return job.aborted
}

func (e *Engine) dispatch(ctx context.Context, job *Job) {
	if e.isAborted() || e.jobAborted(job) {
		e.markAborted(job)
		return
	}

	e.mu.Lock()
	job.Attempts++
	job.Status = StatusRunning
	if job.Attempts == 1 {
		job.StartedAt = time.Now()
	}
	attempt := job.Attempts
	e.mu.Unlock()

	agentID := e.selectAgent()
	job.AgentID = agentID

	e.bus.Emit(bus.ExecutionStarted, map[string]interface{}{"jobId": job.ID, "task": job.Item, "agentId": agentID})

	job.Branch = deriveBranchName(e.cfg.BranchPrefix, job.Item.ID, job.ID, attempt, time.Now())

	sb, err := sandbox.Create(e.cfg.RepoPath, job.Branch, e.cfg.BaseBranch)
	if err != nil {
		e.handleFailure(ctx, job, ocerr.Normalize(err, e.errContext(job, attempt)))
		return
	}

	var result worker.Result
	var execErr error
	func() {
		// Release runs in a defer so the worktree is reclaimed on every exit
		// path out of the worker, including a panic unwinding through it.
		defer func() {
			if releaseErr := sb.Release(e.cfg.RepoPath); releaseErr != nil && execErr == nil && job.Err == nil {
				execErr = fmt.Errorf("sandbox release failed: %w", releaseErr)
			}
		}()
		result, execErr = e.invoke(ctx, job, sb, agentID)
	}()

	if execErr != nil {
		e.handleFailure(ctx, job, ocerr.Normalize(execErr, e.errContext(job, attempt)))
		return
	}

	// An abort that landed while the worker was running wins over the
	// worker's result: the job stays aborted and no completion is emitted.
	if e.isAborted() || e.jobAborted(job) {
		e.markAborted(job)
		return
	}

	e.mu.Lock()
	job.Status = StatusCompleted
	job.Result = result
	job.CompletedAt = time.Now()
	e.mu.Unlock()

	e.bus.Emit(bus.ExecutionCompleted, map[string]interface{}{"jobId": job.ID, "result": result})
}

func (e *Engine) invoke(ctx context.Context, job *Job, sb *sandbox.Sandbox, agentID string) (worker.Result, error) {
	a, err := e.registry.Get(agentID, e.agentCfg[agentID])
	if err != nil {
		return worker.Result{}, err
	}

	breaker := e.breakers[agentID]
	out, err := breaker.Execute(func() (interface{}, error) {
		tokenBudget := int64(job.Estimate.Total)
		if tokenBudget < e.cfg.DefaultTokenBudget {
			tokenBudget = e.cfg.DefaultTokenBudget
		}
		result, werr := worker.Execute(ctx, worker.Params{
			ExecutionID:  job.ID,
			Agent:        a,
			Item:         job.Item,
			Sandbox:      sb,
			Bus:          e.bus,
			TokenBudget:  tokenBudget,
			Timeout:      e.cfg.TaskTimeout,
			AllowCommits: true,
			OnStart: func(ex agent.Execution) {
				e.mu.Lock()
				e.executions[job.ID] = ex
				e.mu.Unlock()
			},
		})
		e.mu.Lock()
		delete(e.executions, job.ID)
		e.mu.Unlock()
		if werr != nil {
			return worker.Result{}, werr
		}
		if !result.Success {
			return result, fmt.Errorf("agent execution failed for job %s", job.ID)
		}
		return result, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return worker.Result{}, ocerr.New(ocerr.KindAgentNotAvailable,
				fmt.Sprintf("provider %s is unavailable (circuit open)", agentID),
				map[string]string{"task_id": job.Item.ID, "job_id": job.ID}, err)
		}
		if r, ok := out.(worker.Result); ok {
			return r, err
		}
		return worker.Result{}, err
	}
	return out.(worker.Result), nil
}

func (e *Engine) errContext(job *Job, attempt int) map[string]string {
	return map[string]string{
		"task_id":      job.Item.ID,
		"job_id":       job.ID,
		"execution_id": job.ID,
		"attempt":      fmt.Sprintf("%d", attempt),
	}
}

// retryDelay computes the backoff before the next attempt: a dedicated
// slower-growing formula for rate limiting, and exponential-with-jitter
// otherwise.
func retryDelay(kind ocerr.Kind, attempt int) time.Duration {
	if kind == ocerr.KindAgentRateLimited {
		d := time.Duration(10) * time.Second * time.Duration(1<<uint(attempt-1))
		if d > 60*time.Second {
			d = 60 * time.Second
		}
		return d
	}
	base := time.Second * time.Duration(1<<uint(attempt))
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
	return base + jitter
}

func (e *Engine) handleFailure(ctx context.Context, job *Job, structuredErr *ocerr.Error) {
	if e.isAborted() || e.jobAborted(job) {
		e.markAborted(job)
		return
	}

	e.mu.Lock()
	job.Err = structuredErr
	attempts := job.Attempts
	maxAttempts := e.cfg.MaxAttempts
	e.mu.Unlock()

	if attempts < maxAttempts && ocerr.IsTransient(structuredErr) {
		e.mu.Lock()
		job.Status = StatusRetrying
		e.mu.Unlock()
		delay := retryDelay(structuredErr.Kind, attempts)
		e.queue.PushDelayed(job, delay)
		return
	}

	e.mu.Lock()
	job.Status = StatusFailed
	job.CompletedAt = time.Now()
	e.mu.Unlock()

	e.bus.Emit(bus.ExecutionFailed, map[string]interface{}{"jobId": job.ID, "error": structuredErr})
}

func (e *Engine) markAborted(job *Job) {
	e.mu.Lock()
	job.Status = StatusAborted
	if job.CompletedAt.IsZero() {
		job.CompletedAt = time.Now()
	}
	e.mu.Unlock()
}

// Abort flags the engine as aborted, clears all pending/retrying jobs as
// aborted, and marks every job still running as aborted — a best-effort
// abort signal; running jobs observe it at their next suspension point.
func (e *Engine) Abort() {
	e.mu.Lock()
	alreadyAborted := e.aborted
	e.aborted = true
	e.mu.Unlock()
	if alreadyAborted {
		return
	}

	pending := e.queue.Clear()
	for _, job := range pending {
		e.mu.Lock()
		job.aborted = true
		job.Err = abortError(job)
		e.mu.Unlock()
		e.markAborted(job)
		e.bus.Emit(bus.ExecutionFailed, map[string]interface{}{"jobId": job.ID, "error": job.Err})
	}

	e.mu.Lock()
	var running []*Job
	var runningExecs []agent.Execution
	for _, j := range e.jobs {
		if j.Status == StatusRunning {
			j.aborted = true
			j.Err = abortError(j)
			running = append(running, j)
			if ex, ok := e.executions[j.ID]; ok {
				runningExecs = append(runningExecs, ex)
			}
		}
	}
	e.mu.Unlock()

	for _, j := range running {
		e.markAborted(j)
		e.bus.Emit(bus.ExecutionFailed, map[string]interface{}{"jobId": j.ID, "error": j.Err})
	}

	for _, ex := range runningExecs {
		_ = ex.Abort() // best-effort shutdown; abort errors are swallowed
	}
}

// abortError is the synthetic error stamped on a job cut short by Abort.
func abortError(job *Job) *ocerr.Error {
	return ocerr.New(ocerr.KindAgentExecutionFailed, "run aborted", map[string]string{
		"task_id": job.Item.ID,
		"job_id":  job.ID,
	}, nil)
}

// Job returns a snapshot of a tracked job by ID.
func (e *Engine) Job(id string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	return j, ok
}
