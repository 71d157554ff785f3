// Package scheduler is the Scheduler Core: the in-memory registry of
// jobs, their timers, the sequential/parallel gating decision, and the
// handoff into the HTTP Invoker and Log Writer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"httptrigger/internal/apperr"
	"httptrigger/internal/domain"
	"httptrigger/internal/schedule"
	"httptrigger/internal/store"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// jobState is the per-job registry entry. mu guards everything below
// it and is the atomicity boundary between concurrent dispatches of
// the same job id.
type jobState struct {
	mu sync.Mutex

	job    domain.Job
	parsed schedule.Parsed
	timer  *time.Timer

	runningCount int
	status       Status
	lastRun      time.Time
	nextRun      time.Time
	removed      bool
}

// Core is the registry owner. All exported methods are safe for
// concurrent use.
type Core struct {
	store store.Store

	mu   sync.RWMutex
	jobs map[string]*jobState

	closed bool
}

func New(st store.Store) *Core {
	return &Core{store: st, jobs: make(map[string]*jobState)}
}

// Register installs (or reinstalls) the timer for job. Registration is
// idempotent: re-registering removes and reinstalls. Registering an
// inactive job clears any existing timer and is otherwise a no-op.
func (c *Core) Register(job domain.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	if existing, ok := c.jobs[job.ID]; ok {
		stopTimer(existing)
		existing.mu.Lock()
		existing.removed = true
		existing.mu.Unlock()
		delete(c.jobs, job.ID)
	}

	if !job.IsActive {
		return nil
	}

	parsed, err := schedule.Parse(job.Schedule, job.ScheduleType)
	if err != nil {
		return err
	}

	js := &jobState{job: job, parsed: parsed, status: StatusIdle}
	c.jobs[job.ID] = js
	c.armTimer(js, time.Now())
	return nil
}

// Update reloads job from the store, removes its timer, and — if the
// reloaded job is still active — re-registers it with the (possibly
// new) schedule.
func (c *Core) Update(ctx context.Context, id string) error {
	j, err := c.store.GetJob(ctx, id)
	if err != nil {
		c.removeEntry(id)
		return apperr.Wrap(apperr.NotFound, "job not found during update", err)
	}
	return c.Register(j)
}

// Enable reloads job from the store and registers it.
func (c *Core) Enable(ctx context.Context, id string) error {
	return c.Update(ctx, id)
}

// Disable removes the timer and registry entry without cancelling any
// in-flight executions.
func (c *Core) Disable(id string) {
	c.removeEntry(id)
}

// Remove removes the timer and registry entry. In-flight executions
// for id are allowed to complete; their finalizer tolerates the
// registry entry's absence because it holds a direct *jobState
// reference, not a map lookup.
func (c *Core) Remove(id string) {
	c.removeEntry(id)
}

func (c *Core) removeEntry(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if js, ok := c.jobs[id]; ok {
		stopTimer(js)
		js.mu.Lock()
		js.removed = true
		js.mu.Unlock()
		delete(c.jobs, id)
	}
}

func stopTimer(js *jobState) {
	if js.timer != nil {
		js.timer.Stop()
	}
}

// Shutdown stops every timer and refuses further registrations.
// In-flight executions are not cancelled, and Shutdown returns without
// waiting for them to finish.
func (c *Core) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, js := range c.jobs {
		stopTimer(js)
	}
}

// IsJobRunning reports whether job id currently has an in-flight
// execution, from a snapshot read of the registry.
func (c *Core) IsJobRunning(id string) bool {
	c.mu.RLock()
	js, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.runningCount > 0
}

// JobStatus returns the observability snapshot for id.
func (c *Core) JobStatus(id string) (status Status, lastRun, nextRun time.Time, running int, ok bool) {
	c.mu.RLock()
	js, found := c.jobs[id]
	c.mu.RUnlock()
	if !found {
		return "", time.Time{}, time.Time{}, 0, false
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.status, js.lastRun, js.nextRun, js.runningCount, true
}

// armTimer schedules the next fire for js strictly after from and
// installs the fire callback. Caller holds c.mu.
func (c *Core) armTimer(js *jobState, from time.Time) {
	next := js.parsed.NextAfter(from)
	js.mu.Lock()
	js.nextRun = next
	js.mu.Unlock()

	id := js.job.ID
	js.timer = time.AfterFunc(time.Until(next), func() {
		c.onFire(id)
	})
}

// onFire is the timer callback. It stays short: it only looks up the
// registry, hands off to dispatch, and reschedules — it never itself
// performs HTTP or store-write I/O for the attempt.
func (c *Core) onFire(id string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", id).Interface("panic", r).Msg("timer callback panicked, registry entry preserved")
		}
	}()

	c.mu.RLock()
	js, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		log.Warn().Str("job_id", id).Msg("fire for unregistered job, dropping")
		return
	}

	fireTime := time.Now()
	go c.dispatch(id, fireTime)

	c.mu.Lock()
	// Re-arm only if this exact entry is still registered: a concurrent
	// re-register swaps in a fresh jobState with its own timer.
	if current, stillRegistered := c.jobs[id]; stillRegistered && current == js && !c.closed {
		c.armTimer(js, fireTime)
	}
	c.mu.Unlock()
}

func (c *Core) lookup(id string) (*jobState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	js, ok := c.jobs[id]
	return js, ok
}
