// Package retention runs the periodic sweep that deletes execution
// logs older than the configured retention horizon, pairing a
// robfig/cron/v3 schedule with zerolog start/end/duration logging.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"httptrigger/internal/domain"
	"httptrigger/internal/store"
)

const DefaultSchedule = "0 0 * * *" // every day at 00:00, in the configured zone

// Sweeper periodically deletes ExecutionLogs whose executedAt predates
// now - retentionDays.
type Sweeper struct {
	store         store.Store
	retentionDays int
	sweepOnBoot   bool
	location      *time.Location
	cronSchedule  string

	c      *cron.Cron
	stopCh chan struct{}
}

func New(st store.Store, retentionDays int, sweepOnBoot bool, location *time.Location) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = 3
	}
	if location == nil {
		location = time.UTC
	}
	return &Sweeper{
		store:         st,
		retentionDays: retentionDays,
		sweepOnBoot:   sweepOnBoot,
		location:      location,
		cronSchedule:  DefaultSchedule,
	}
}

// Start registers the daily sweep and, if configured, runs one
// immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.c = cron.New(cron.WithLocation(s.location))
	_, err := s.c.AddFunc(s.cronSchedule, func() {
		if _, err := s.SweepNow(ctx, 0); err != nil {
			log.Error().Err(err).Msg("retention sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.c.Start()

	if s.sweepOnBoot {
		if _, err := s.SweepNow(ctx, 0); err != nil {
			log.Error().Err(err).Msg("initial retention sweep failed")
		}
	}
	return nil
}

func (s *Sweeper) Stop() {
	if s.c != nil {
		s.c.Stop()
	}
}

// SweepNow deletes every ExecutionLog older than now - retentionDays
// (or now - retentionOverride, if retentionOverride > 0), logging
// start/end/duration and the number of rows removed.
func (s *Sweeper) SweepNow(ctx context.Context, retentionOverride int) (int64, error) {
	days := s.retentionDays
	if retentionOverride > 0 {
		days = retentionOverride
	}
	horizon := time.Now().In(s.location).AddDate(0, 0, -days)

	start := time.Now()
	log.Info().Time("horizon", horizon).Msg("retention sweep starting")

	n, err := s.store.DeleteLogs(ctx, domain.LogFilter{EndDate: &horizon})
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("retention sweep failed")
		return 0, err
	}
	log.Info().Int64("deleted", n).Dur("duration", duration).Msg("retention sweep complete")
	return n, nil
}
