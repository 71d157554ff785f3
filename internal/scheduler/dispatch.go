package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"httptrigger/internal/apperr"
	"httptrigger/internal/domain"
	"httptrigger/internal/invoker"
)

// dispatch is the asynchronous path for a timer fire. It never returns
// anything to the timer callback; all outcomes are logged.
func (c *Core) dispatch(id string, fireTime time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", id).Interface("panic", r).Msg("dispatch panicked")
		}
	}()

	ctx := context.Background()
	_, err := c.runOnce(ctx, id, false, fireTime)
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		log.Warn().Str("job_id", id).Err(err).Msg("scheduled fire did not execute")
	}
}

// ExecuteManually performs the same dispatch steps as a scheduled fire
// except it bypasses the timer, runs synchronously, and stamps
// TriggeredManually=true on the resulting log. The manual-trigger rate
// limit is the API layer's concern; this method never consults one.
func (c *Core) ExecuteManually(ctx context.Context, id string) (domain.ExecutionLog, error) {
	return c.runOnce(ctx, id, true, time.Now())
}

// runOnce is the shared reload/gate/invoke/log sequence behind both
// the timer path (manual=false) and the manual-trigger path
// (manual=true). The two paths differ only in which non-fire outcomes
// are surfaced as errors: a scheduled fire that gets gated away is
// silent (a skip, not a failure); a manual trigger that gets gated
// away must tell the caller why.
func (c *Core) runOnce(ctx context.Context, id string, manual bool, fireTime time.Time) (domain.ExecutionLog, error) {
	js, ok := c.lookup(id)
	if !ok {
		if manual {
			// Distinguish a disabled job (present in the store but not
			// in the registry) from one that does not exist at all.
			if j, err := c.store.GetJob(ctx, id); err == nil && !j.IsActive {
				return domain.ExecutionLog{}, apperr.New(apperr.Inactive, "job is not active")
			}
		}
		return domain.ExecutionLog{}, apperr.New(apperr.NotFound, "job is not registered")
	}

	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		c.removeEntry(id)
		if manual {
			return domain.ExecutionLog{}, apperr.Wrap(apperr.NotFound, "job not found", err)
		}
		log.Warn().Str("job_id", id).Err(err).Msg("reload failed, removing from registry")
		return domain.ExecutionLog{}, nil
	}
	if !job.IsActive {
		c.removeEntry(id)
		if manual {
			return domain.ExecutionLog{}, apperr.New(apperr.Inactive, "job is not active")
		}
		return domain.ExecutionLog{}, nil
	}

	gateLimit := job.EffectiveMaxConcurrent()
	js.mu.Lock()
	if js.removed {
		js.mu.Unlock()
		if manual {
			return domain.ExecutionLog{}, apperr.New(apperr.NotFound, "job was removed")
		}
		return domain.ExecutionLog{}, nil
	}
	if js.runningCount >= gateLimit {
		inFlight := js.runningCount
		js.mu.Unlock()
		if manual {
			return domain.ExecutionLog{}, apperr.New(apperr.AlreadyRunning, "job already has the maximum number of executions in flight")
		}
		log.Warn().Str("job_id", id).Int("running", inFlight).Msg("fire skipped: gated")
		return domain.ExecutionLog{}, nil
	}
	js.runningCount++
	js.status = StatusRunning
	js.lastRun = fireTime
	js.job = job
	running := js.runningCount
	js.mu.Unlock()

	if err := c.store.UpdateJobRuntime(ctx, id, domain.RuntimeUpdate{CurrentRunning: &running}); err != nil {
		log.Warn().Str("job_id", id).Err(err).Msg("failed to persist currentRunning")
	}

	result := invoker.Invoke(ctx, job, fireTime)

	entry := domain.ExecutionLog{
		JobID:             id,
		ExecutedAt:        fireTime,
		Status:            result.Status,
		ResponseCode:      result.ResponseCode,
		ExecutionTime:     result.ExecutionTime,
		ResponseBody:      result.ResponseBody,
		ErrorMessage:      result.ErrorMessage,
		TriggeredManually: manual,
		RetryCount:        result.RetryCount,
	}
	if err := c.store.InsertLog(ctx, entry); err != nil {
		log.Error().Str("job_id", id).Err(err).Msg("failed to write execution log")
	}

	c.finalize(id, js, fireTime)

	return entry, nil
}

// finalize decrements runningCount, recomputes observability fields,
// and persists lastExecutedAt/executionCount. Store failures here are
// logged but never retried.
func (c *Core) finalize(id string, js *jobState, executedAt time.Time) {
	js.mu.Lock()
	if js.runningCount > 0 {
		js.runningCount--
	}
	if js.runningCount == 0 {
		js.status = StatusIdle
	}
	running := js.runningCount
	job := js.job
	removed := js.removed
	js.mu.Unlock()

	if removed {
		return
	}

	ctx := context.Background()
	fresh, err := c.store.GetJob(ctx, id)
	var execCount int64
	if err == nil {
		execCount = fresh.ExecutionCount + 1
	} else {
		execCount = job.ExecutionCount + 1
	}

	if err := c.store.UpdateJobRuntime(ctx, id, domain.RuntimeUpdate{
		CurrentRunning: &running,
		LastExecutedAt: &executedAt,
		ExecutionCount: &execCount,
	}); err != nil {
		log.Warn().Str("job_id", id).Err(err).Msg("failed to persist finalizer fields")
	}
}
