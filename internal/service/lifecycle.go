package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/service/mappers"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
)

// CreateJob takes a job over from the booking flow. The job waits in created until dispatched.
func (s *DispatchService) CreateJob(ctx context.Context, form mappers.JobCreateForm) (*model.Job, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	job, err := s.store.Job().Create(ctx, form.ToJob())
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if err := s.store.Audit().AppendTimeline(ctx, model.TimelineEvent{
		JobID:     job.ID,
		Kind:      timelineCreated,
		Detail:    job.ServiceType,
		CreatedAt: s.now(),
	}); err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (s *DispatchService) MarkEnRoute(ctx context.Context, jobID uuid.UUID, proID string) (*model.Job, error) {
	return s.advance(ctx, jobID, proID, model.JobStatusAccepted, model.JobStatusEnRoute, "mark en route", timelineEnRoute, "")
}

func (s *DispatchService) StartJob(ctx context.Context, jobID uuid.UUID, proID string) (*model.Job, error) {
	return s.advance(ctx, jobID, proID, model.JobStatusCheckedIn, model.JobStatusInProgress, "start", timelineStarted, "")
}

func (s *DispatchService) CompleteJob(ctx context.Context, jobID uuid.UUID, proID string) (*model.Job, error) {
	return s.advance(ctx, jobID, proID, model.JobStatusInProgress, model.JobStatusCompleted, "complete", timelineCompleted, events.CompletedKind)
}

// advance moves a job held by proID from one status to the next.
func (s *DispatchService) advance(ctx context.Context, jobID uuid.UUID, proID string, from, to model.JobStatus, action, timelineKind, eventKind string) (*model.Job, error) {
	return s.transition(ctx, jobID, func(t *transition) error {
		if !t.job.AssignedTo(proID) {
			return NewErrNotAssignedPro(t.job.ID, proID)
		}
		if t.job.Status != from {
			return NewErrInvalidTransition(t.job.ID, t.job.Status, action)
		}

		err := t.update(store.JobCondition{
			Statuses:      []model.JobStatus{from},
			AssignedProID: &proID,
		}, map[string]any{"status": to})
		if err != nil {
			return err
		}

		if err := t.record(timelineKind, proID, ""); err != nil {
			return err
		}
		if eventKind != "" {
			t.emit(eventKind, events.DispatchEvent{ProID: proID})
		}
		return nil
	})
}

// CancelJob stops a job in any non-terminal status and drops its timers.
func (s *DispatchService) CancelJob(ctx context.Context, jobID uuid.UUID, reason string) (*model.Job, error) {
	return s.transition(ctx, jobID, func(t *transition) error {
		if t.job.Status.Terminal() {
			return NewErrInvalidTransition(t.job.ID, t.job.Status, "cancel")
		}

		var proID string
		if t.job.AssignedProID != nil {
			proID = *t.job.AssignedProID
		}

		err := t.update(store.JobCondition{
			Statuses:   []model.JobStatus{t.job.Status},
			OfferRound: intPtr(t.job.OfferRound),
		}, map[string]any{
			"status":           model.JobStatusCancelled,
			"assigned_pro_id":  nil,
			"offer_deadline":   nil,
			"no_show_deadline": nil,
		})
		if err != nil {
			return err
		}

		if err := t.record(timelineCancelled, proID, reason); err != nil {
			return err
		}
		t.emit(events.CancelledKind, events.DispatchEvent{ProID: proID, Reason: reason})

		id := t.job.ID
		t.then(func() { s.timers.CancelJob(id) })
		return nil
	})
}

// ReportDelay files a delay for the assigned pro. It is kept for review only: the no-show
// deadline does not move.
func (s *DispatchService) ReportDelay(ctx context.Context, jobID uuid.UUID, proID string, reason string) (*model.DelayReport, error) {
	var report *model.DelayReport

	_, err := s.transition(ctx, jobID, func(t *transition) error {
		if !t.job.AssignedTo(proID) {
			return NewErrNotAssignedPro(t.job.ID, proID)
		}
		if !t.job.Status.AwaitingCheckIn() {
			return NewErrInvalidTransition(t.job.ID, t.job.Status, "report a delay on")
		}

		reason = strings.TrimSpace(reason)
		r, err := s.store.Audit().CreateDelayReport(t.ctx, model.DelayReport{
			JobID:      t.job.ID,
			ProID:      proID,
			Reason:     reason,
			ReportedAt: t.now,
		})
		if err != nil {
			return err
		}
		report = r

		if err := t.record(timelineDelayReported, proID, reason); err != nil {
			return err
		}
		t.emit(events.DelayReportedKind, events.DispatchEvent{
			ProID:    proID,
			Reason:   reason,
			Deadline: t.job.NoShowDeadline,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

func (s *DispatchService) UpsertPro(ctx context.Context, form mappers.ProForm) (*model.Pro, error) {
	return s.store.Pro().Upsert(ctx, form.ToPro())
}

func (s *DispatchService) GetPro(ctx context.Context, id string) (*model.Pro, error) {
	pro, err := s.store.Pro().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrProNotFound(id)
		}
		return nil, err
	}
	return pro, nil
}
