package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// dbRetry wraps a task-bookkeeping write (MarkStarted/MarkEnded/SetProgress)
// with a short bounded backoff so a transient DB blip doesn't drop a task's
// status update — these calls run off the request path, so a few hundred
// milliseconds of retry is invisible to callers (spec.md §4.2).
func dbRetry(op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(op, policy)
}

// Pool is the Queue component: two bounded worker groups (cpu, gpu) plus a
// Reaper that promotes completed results into component state.
type Pool struct {
	tasksRepo *store.TasksRepo

	mu      sync.RWMutex
	entries map[string]*entry

	cpu *group
	gpu *group

	hooksMu sync.RWMutex
	hooks   map[string]OnComplete // keyed by task Kind

	reaperTick time.Duration
	completed  chan Result
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// entry is the Pool's private bookkeeping for one submitted task.
type entry struct {
	task   *models.Task
	cancel context.CancelFunc
}

// Config sizes the two worker pools and the reaper tick, mirroring
// spec.md §4.2 (N_WORKERS_CPU default 5, N_WORKERS_GPU default 1,
// UPDATE_TIMEOUT default 1s).
type Config struct {
	NWorkersCPU   int
	NWorkersGPU   int
	UpdateTimeout time.Duration
}

// New builds a Pool and starts its two worker groups and reaper loop.
// tasksRepo may be nil, in which case tasks are tracked in memory only
// (used by unit tests that don't stand up Postgres).
func New(cfg Config, tasksRepo *store.TasksRepo) *Pool {
	tick := cfg.UpdateTimeout
	if tick <= 0 {
		tick = defaultReaperTick
	}
	p := &Pool{
		tasksRepo:  tasksRepo,
		entries:    make(map[string]*entry),
		hooks:      make(map[string]OnComplete),
		reaperTick: tick,
		completed:  make(chan Result, 64),
		stopCh:     make(chan struct{}),
	}
	p.cpu = newGroup(maxInt(cfg.NWorkersCPU, 1))
	p.gpu = newGroup(maxInt(cfg.NWorkersGPU, 1))

	p.wg.Add(1)
	go p.runReaper()
	return p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RegisterHook wires a component's OnComplete handler for every task of
// the given kind, e.g. "feature:<project>" or "languagemodel:<project>".
func (p *Pool) RegisterHook(kind string, hook OnComplete) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.hooks[kind] = hook
}

// Submit enqueues fn on the given pool and returns its unique id
// immediately — the caller never blocks on worker capacity (spec.md §5
// "Backpressure").
func (p *Pool) Submit(ctx context.Context, kind, project, user string, q models.TaskQueueKind, fn Func) (string, error) {
	id := uuid.NewString()
	taskCtx, cancel := context.WithCancel(context.Background())

	task := &models.Task{
		UniqueID:    id,
		Kind:        kind,
		Project:     project,
		User:        user,
		Queue:       q,
		Status:      models.TaskPending,
		SubmittedAt: time.Now(),
	}

	p.mu.Lock()
	p.entries[id] = &entry{task: task, cancel: cancel}
	p.mu.Unlock()

	if p.tasksRepo != nil {
		if err := p.tasksRepo.Add(ctx, task); err != nil {
			p.mu.Lock()
			delete(p.entries, id)
			p.mu.Unlock()
			cancel()
			return "", err
		}
	}

	g := p.groupFor(q)
	g.submit(func() {
		p.run(taskCtx, task, fn)
	})

	return id, nil
}

func (p *Pool) groupFor(q models.TaskQueueKind) *group {
	if q == models.QueueGPU {
		return p.gpu
	}
	return p.cpu
}

func (p *Pool) run(ctx context.Context, task *models.Task, fn Func) {
	p.setRunning(task.UniqueID)

	value, err := fn(ctx)

	status := models.TaskDone
	switch {
	case ctx.Err() != nil:
		status = models.TaskCancelled
	case err != nil:
		status = models.TaskFailed
	}

	p.completed <- Result{Task: task, Value: value, Err: err}
	p.finalize(task.UniqueID, status, err)
}

func (p *Pool) setRunning(id string) {
	p.mu.Lock()
	if e, ok := p.entries[id]; ok {
		e.task.Status = models.TaskRunning
		now := time.Now()
		e.task.StartedAt = &now
	}
	p.mu.Unlock()
	if p.tasksRepo != nil {
		if err := dbRetry(func() error { return p.tasksRepo.MarkStarted(context.Background(), id) }); err != nil {
			slog.Warn("persisting task start failed after retries", "task", id, "err", err)
		}
	}
}

func (p *Pool) finalize(id string, status models.TaskStatus, err error) {
	p.mu.Lock()
	if e, ok := p.entries[id]; ok {
		e.task.Status = status
		now := time.Now()
		e.task.EndedAt = &now
		if err != nil {
			e.task.Error = err.Error()
		}
	}
	p.mu.Unlock()
	if p.tasksRepo != nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if err := dbRetry(func() error { return p.tasksRepo.MarkEnded(context.Background(), id, status, msg) }); err != nil {
			slog.Warn("persisting task end failed after retries", "task", id, "err", err)
		}
	}
}

// Kill sets the cancel signal for a task. Cancellation is best-effort: the
// task may still complete if it is already past its last checkpoint
// (spec.md §5).
func (p *Pool) Kill(uniqueID string) error {
	p.mu.RLock()
	e, ok := p.entries[uniqueID]
	p.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("task %s not found", uniqueID)
	}
	e.cancel()
	return nil
}

// Status returns a snapshot of a task's bookkeeping row.
func (p *Pool) Status(uniqueID string) (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[uniqueID]
	if !ok {
		return nil, errs.NotFoundf("task %s not found", uniqueID)
	}
	cp := *e.task
	return &cp, nil
}

// SetProgress records a coarse progress string read back by
// Features.current_computing() (spec.md §4.4).
func (p *Pool) SetProgress(uniqueID, progress string) {
	p.mu.Lock()
	if e, ok := p.entries[uniqueID]; ok {
		e.task.Progress = progress
	}
	p.mu.Unlock()
	if p.tasksRepo != nil {
		if err := dbRetry(func() error { return p.tasksRepo.SetProgress(context.Background(), uniqueID, progress) }); err != nil {
			slog.Warn("persisting task progress failed after retries", "task", uniqueID, "err", err)
		}
	}
}

// ActiveByUser returns every pending/running task owned by user whose kind
// is in kinds (nil/empty kinds matches every kind) — backs
// Orchestrator.StopUserProcesses.
func (p *Pool) ActiveByUser(user string, kinds []string) []*models.Task {
	kindSet := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*models.Task
	for _, e := range p.entries {
		if e.task.User != user {
			continue
		}
		if e.task.Status != models.TaskPending && e.task.Status != models.TaskRunning {
			continue
		}
		if len(kindSet) > 0 && !kindSet[e.task.Kind] {
			continue
		}
		cp := *e.task
		out = append(out, &cp)
	}
	return out
}

// ActiveByProject returns every pending/running task for project, used by
// Features.CurrentComputing (spec.md §4.4).
func (p *Pool) ActiveByProject(project string) []*models.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*models.Task
	for _, e := range p.entries {
		if e.task.Project != project {
			continue
		}
		if e.task.Status != models.TaskPending && e.task.Status != models.TaskRunning {
			continue
		}
		cp := *e.task
		out = append(out, &cp)
	}
	return out
}

// runReaper drains completed results on a fixed tick and invokes the
// registered OnComplete hook for the task's kind, mirroring the teacher's
// runOrphanDetection background loop shape.
func (p *Pool) runReaper() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.reaperTick)
	defer ticker.Stop()

	var pending []Result
	for {
		select {
		case <-p.stopCh:
			return
		case res := <-p.completed:
			pending = append(pending, res)
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = nil
			for _, res := range batch {
				p.dispatch(res)
			}
		}
	}
}

func (p *Pool) dispatch(res Result) {
	p.hooksMu.RLock()
	hook, ok := p.hooks[res.Task.Kind]
	p.hooksMu.RUnlock()
	if !ok {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in task OnComplete hook", "kind", res.Task.Kind, "task", res.Task.UniqueID, "recover", r)
			}
		}()
		hook(context.Background(), res)
	}()
}

// Stop cancels every in-flight task and waits for the reaper to exit.
func (p *Pool) Stop() {
	p.mu.RLock()
	for _, e := range p.entries {
		e.cancel()
	}
	p.mu.RUnlock()

	p.cpu.stop()
	p.gpu.stop()

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// group is one bounded worker pool (cpu or gpu): a semaphore caps
// concurrency, a single dispatcher goroutine drains the submission
// channel in FIFO order so tasks in the same pool start in submission
// order (spec.md §4.2 "Ordering"), while completion order is whatever the
// scheduler produces.
type group struct {
	sem     *semaphore.Weighted
	queueCh chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newGroup(size int) *group {
	g := &group{
		sem:     semaphore.NewWeighted(int64(size)),
		queueCh: make(chan func(), 256),
		stopCh:  make(chan struct{}),
	}
	g.wg.Add(1)
	go g.dispatchLoop()
	return g
}

// submit enqueues fn to run once a worker slot is free.
func (g *group) submit(fn func()) {
	g.queueCh <- fn
}

func (g *group) dispatchLoop() {
	defer g.wg.Done()
	for {
		select {
		case <-g.stopCh:
			return
		case fn := <-g.queueCh:
			if err := g.sem.Acquire(context.Background(), 1); err != nil {
				continue
			}
			go func() {
				defer g.sem.Release(1)
				fn()
			}()
		}
	}
}

func (g *group) stop() {
	close(g.stopCh)
	g.wg.Wait()
}
