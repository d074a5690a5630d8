package service

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"go.uber.org/zap"
)

// Rearm schedules the timers of every job still waiting on a deadline. Deadlines already past
// fire right away. Run at start-up: timers live in memory only.
func (s *DispatchService) Rearm(ctx context.Context) error {
	offered, err := s.store.Job().List(ctx, store.NewJobQueryFilter().ByStatus(model.JobStatusOffered))
	if err != nil {
		return err
	}
	for _, job := range offered {
		if job.OfferDeadline == nil {
			continue
		}
		id, round := job.ID, job.OfferRound
		s.timers.Schedule(id, offerTimer, *job.OfferDeadline, func() { s.onOfferTimeout(id, round) })
	}

	waiting, err := s.store.Job().List(ctx, store.NewJobQueryFilter().ByStatus(model.JobStatusAccepted, model.JobStatusEnRoute))
	if err != nil {
		return err
	}
	for _, job := range waiting {
		if job.AssignedProID == nil || job.NoShowDeadline == nil {
			continue
		}
		acceptedAt := job.CreatedAt
		if job.AcceptedAt != nil {
			acceptedAt = *job.AcceptedAt
		}
		s.armNoShowMonitor(job.ID, *job.AssignedProID, job.OfferRound, acceptedAt, *job.NoShowDeadline)
	}

	zap.S().Named("sweeper").Infow("timers rearmed", "offered", len(offered), "awaiting_check_in", len(waiting))
	return nil
}

// Sweep drives every job whose deadline passed through the same handlers as the timers.
// It catches deadlines a timer missed, for instance one armed by an instance that went away.
func (s *DispatchService) Sweep(ctx context.Context) error {
	now := s.now()

	expired, err := s.store.Job().List(ctx, store.NewJobQueryFilter().
		ByStatus(model.JobStatusOffered).
		OfferDeadlineBefore(now))
	if err != nil {
		return err
	}
	for _, job := range expired {
		s.onOfferTimeout(job.ID, job.OfferRound)
	}

	late, err := s.store.Job().List(ctx, store.NewJobQueryFilter().
		ByStatus(model.JobStatusAccepted, model.JobStatusEnRoute).
		NoShowDeadlineBefore(now))
	if err != nil {
		return err
	}
	for _, job := range late {
		if job.AssignedProID != nil {
			s.onNoShowDeadline(job.ID, *job.AssignedProID, job.OfferRound)
		}
	}

	if len(expired)+len(late) > 0 {
		zap.S().Named("sweeper").Infow("overdue jobs swept", "offers", len(expired), "no_shows", len(late))
	}
	return nil
}

// Sweeper runs Sweep on a jittered interval.
type Sweeper struct {
	svc      *DispatchService
	interval time.Duration
}

func NewSweeper(svc *DispatchService, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Run rearms the timers, then sweeps until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) error {
	if err := sw.svc.Rearm(ctx); err != nil {
		zap.S().Named("sweeper").Errorw("failed to rearm timers", "error", err)
	}

	ticker := jitterbug.New(sw.interval, &jitterbug.Norm{Stdev: sw.interval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Named("sweeper").Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if err := sw.svc.Sweep(ctx); err != nil {
				zap.S().Named("sweeper").Errorw("sweep failed", "error", err)
			}
		}
	}
}
