package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/metrics"
	"go.uber.org/zap"
)

// stillWaitingFor reports whether the job is the same acceptance the timer was armed for.
func stillWaitingFor(job *model.Job, proID string, round int) bool {
	return job.Status.AwaitingCheckIn() && job.AssignedTo(proID) && job.OfferRound == round
}

func (s *DispatchService) onNoShowWarning(jobID uuid.UUID, proID string, round int, remaining time.Duration) {
	s.fire("no_show_warning", jobID, func(t *transition) error {
		if !stillWaitingFor(t.job, proID, round) {
			return nil
		}

		minutes := int(math.Ceil(remaining.Minutes()))
		if err := t.record(timelineNoShowWarning, proID, fmt.Sprintf("%d minutes left to check in", minutes)); err != nil {
			return err
		}
		t.emit(events.NoShowWarningKind, events.DispatchEvent{
			ProID:            proID,
			Deadline:         t.job.NoShowDeadline,
			MinutesRemaining: minutes,
			Message:          fmt.Sprintf("Check in within %d minutes or the job will be reassigned.", minutes),
		})
		return nil
	})
}

// onNoShowDeadline declares the no-show of the acceptance it was armed for, unless the pro
// checked in or the job moved on meanwhile.
func (s *DispatchService) onNoShowDeadline(jobID uuid.UUID, proID string, round int) {
	s.fire(noShowTimer, jobID, func(t *transition) error {
		if !stillWaitingFor(t.job, proID, round) {
			return nil
		}
		if t.job.NoShowDeadline == nil || t.now.Before(*t.job.NoShowDeadline) {
			return nil
		}
		return s.declareNoShow(t)
	})
}

// declareNoShow frees the job and hands it to the urgent broadcast. A pro who reported a delay
// for this acceptance is sent to review instead of getting a strike.
func (s *DispatchService) declareNoShow(t *transition) error {
	proID := *t.job.AssignedProID
	round := t.job.OfferRound

	since := t.job.CreatedAt
	if t.job.AcceptedAt != nil {
		since = *t.job.AcceptedAt
	}
	delayed, err := s.store.Audit().HasDelayReport(t.ctx, t.job.ID, proID, since)
	if err != nil {
		return err
	}

	err = t.update(store.JobCondition{
		Statuses:      []model.JobStatus{model.JobStatusAccepted, model.JobStatusEnRoute},
		AssignedProID: &proID,
		OfferRound:    intPtr(round),
	}, map[string]any{
		"status":           model.JobStatusNoShow,
		"assigned_pro_id":  nil,
		"no_show_deadline": nil,
		"urgent":           true,
		"original_pro_id":  proID,
		"no_show_at":       t.now,
	})
	if err != nil {
		return err
	}

	if err := t.record(timelineNoShow, proID, ""); err != nil {
		return err
	}
	t.emit(events.NoShowKind, events.DispatchEvent{ProID: proID, Message: noShowMessage})

	if delayed {
		if err := t.record(timelineNoShowReview, proID, "delay reported before the deadline"); err != nil {
			return err
		}
		t.emit(events.NoShowReviewKind, events.DispatchEvent{ProID: proID, Reason: "delay_reported"})
	} else if err := s.store.Pro().RecordNoShow(t.ctx, proID, t.now); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return err
	}

	jobID := t.job.ID
	t.then(func() {
		s.timers.CancelPrefix(jobID, warningPrefix)
		metrics.IncreaseNoShowsTotalMetric(!delayed)
	})
	zap.S().Named("dispatch_service").Warnw("pro did not check in", "job_id", jobID, "pro_id", proID, "delay_reported", delayed)

	return s.broadcast(t, t.job.ReassignCount+1)
}
