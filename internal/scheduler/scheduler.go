// Package scheduler drives the time-based letter transitions forward
// independent of client activity. It is the only actor with no caller
// waiting on it.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/sujalbistaa/lettre/internal/letter"
)

type Scheduler struct {
	Letters  *letter.Service
	Interval time.Duration
}

func New(letters *letter.Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{Letters: letters, Interval: interval}
}

// Run sweeps on a fixed cadence until the context is cancelled. Every sweep
// is safe to re-run and safe to skip a cycle, so one ticker covers all of
// them; a slow cycle simply delays the next.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Printf("scheduler running, sweep interval %s", s.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce executes every sweep kind a single time. Split out so tests and
// operational tooling can trigger a cycle directly.
func (s *Scheduler) RunOnce() {
	if n := s.Letters.SweepExpiries(); n > 0 {
		log.Printf("scheduler: expired %d letters", n)
	}
	if n := s.Letters.SweepUnlocks(); n > 0 {
		log.Printf("scheduler: unlocked %d letters", n)
	}
	if n := s.Letters.SweepReveals(); n > 0 {
		log.Printf("scheduler: revealed %d senders", n)
	}
	if n := s.Letters.SweepDisappearing(); n > 0 {
		log.Printf("scheduler: purged %d disappearing letters", n)
	}
	if n := s.Letters.SweepReminders(); n > 0 {
		log.Printf("scheduler: sent %d unlock reminders", n)
	}
}
