// Package reconcile is the Bootstrap & Reconciler: it loads active
// jobs at startup and translates CRUD lifecycle events from the API
// layer into Scheduler Core calls. It depends only on a narrow Engine
// interface so the API layer can depend on this package without the
// scheduler depending back on either.
package reconcile

import (
	"context"

	"github.com/rs/zerolog/log"

	"httptrigger/internal/domain"
	"httptrigger/internal/store"
)

// Engine is the subset of *scheduler.Core the Reconciler needs. Kept
// narrow and defined here (not in package scheduler) so the API layer
// can depend on reconcile without scheduler depending on it back.
type Engine interface {
	Register(job domain.Job) error
	Update(ctx context.Context, id string) error
	Enable(ctx context.Context, id string) error
	Disable(id string)
	Remove(id string)
}

// Reconciler maps CRUD events onto Engine calls.
type Reconciler struct {
	engine Engine
	store  store.Store
}

func New(engine Engine, st store.Store) *Reconciler {
	return &Reconciler{engine: engine, store: st}
}

// Bootstrap loads every active job from the store and registers it.
// Schedule validity is assumed already checked by the API boundary on
// create/update; a job that still fails to register (e.g. its
// schedule was valid at write time under a parser version that has
// since tightened) is logged and skipped rather than aborting the
// whole boot.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	jobs, err := r.store.ListActiveJobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.CurrentRunning != 0 {
			log.Warn().Str("job_id", j.ID).Int("current_running", j.CurrentRunning).Msg("clearing stale currentRunning on boot")
			zero := 0
			if err := r.store.UpdateJobRuntime(ctx, j.ID, domain.RuntimeUpdate{CurrentRunning: &zero}); err != nil {
				log.Warn().Str("job_id", j.ID).Err(err).Msg("failed to clear stale currentRunning on boot")
			}
			j.CurrentRunning = 0
		}
		if err := r.engine.Register(j); err != nil {
			log.Error().Str("job_id", j.ID).Err(err).Msg("failed to register job on boot")
			continue
		}
	}
	log.Info().Int("registered", len(jobs)).Msg("bootstrap complete")
	return nil
}

// OnJobCreated handles "job created, isActive" -> register.
func (r *Reconciler) OnJobCreated(job domain.Job) error {
	if !job.IsActive {
		return nil
	}
	return r.engine.Register(job)
}

// OnJobUpdated handles "job updated (any field)" -> update.
func (r *Reconciler) OnJobUpdated(ctx context.Context, id string) error {
	return r.engine.Update(ctx, id)
}

// OnJobEnabled handles "job isActive toggled on" -> enable.
func (r *Reconciler) OnJobEnabled(ctx context.Context, id string) error {
	return r.engine.Enable(ctx, id)
}

// OnJobDisabled handles "job isActive toggled off" -> disable.
func (r *Reconciler) OnJobDisabled(id string) {
	r.engine.Disable(id)
}

// OnJobDeleted handles "job deleted" -> remove.
func (r *Reconciler) OnJobDeleted(id string) {
	r.engine.Remove(id)
}
