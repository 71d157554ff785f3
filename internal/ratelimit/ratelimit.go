// Package ratelimit throttles manual job triggers with a per-job token
// bucket (window = 10s, capacity = 1). It sits in front of the API
// layer only; the Scheduler Core never consults it.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	window      = 10 * time.Second
	capacity    = 1
	gcThreshold = 100
	gcAge       = 2 * window
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a map of per-job token buckets, one window/capacity pair
// shared by every job.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Limiter {
	return &Limiter{entries: make(map[string]*entry)}
}

// Allow reports whether a manual trigger for jobID may proceed now. If
// not, it returns the remaining wait in seconds, rounded to one decimal.
func (l *Limiter) Allow(jobID string) (ok bool, retryAfterSeconds float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, found := l.entries[jobID]
	if !found {
		e = &entry{limiter: rate.NewLimiter(rate.Every(window/capacity), capacity)}
		l.entries[jobID] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		l.maybeGC(now)
		return true, 0
	}
	reservation := e.limiter.ReserveN(now, 1)
	wait := reservation.DelayFrom(now)
	reservation.CancelAt(now) // don't consume a future token for a rejected attempt
	l.maybeGC(now)
	return false, roundToOneDecimal(wait.Seconds())
}

// maybeGC drops entries untouched for 2x the window once the table
// grows past gcThreshold. Caller holds l.mu.
func (l *Limiter) maybeGC(now time.Time) {
	if len(l.entries) <= gcThreshold {
		return
	}
	for id, e := range l.entries {
		if now.Sub(e.lastSeen) > gcAge {
			delete(l.entries, id)
		}
	}
}

func roundToOneDecimal(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
