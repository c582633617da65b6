// Package worker runs the background reclaimer for expired holds.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpiredSweeper is the slice of the reservation service the worker
// drives.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Lease gates each tick so only one instance sweeps at a time.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

type Sweeper struct {
	reservations ExpiredSweeper
	lease        Lease
	interval     time.Duration
	log          logrus.FieldLogger
}

func NewSweeper(reservations ExpiredSweeper, lease Lease, interval time.Duration, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		reservations: reservations,
		lease:        lease,
		interval:     interval,
		log:          log,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. The
// sweep itself is a single idempotent set operation, so a missed or
// doubled tick is harmless.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval.String()).Info("reservation sweeper started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Sweeper) tick(ctx context.Context) {
	if w.lease != nil {
		ok, err := w.lease.Acquire(ctx)
		if err != nil {
			w.log.WithError(err).Warn("sweeper lease check failed, skipping tick")
			return
		}
		if !ok {
			return
		}
		defer w.lease.Release(ctx)
	}

	count, err := w.reservations.SweepExpired(ctx)
	if err != nil {
		w.log.WithError(err).Error("sweep failed")
		return
	}
	if count > 0 {
		w.log.WithField("reclaimed", count).Info("sweep completed")
	}
}
