package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/metrics"
	"go.uber.org/zap"
)

// ClaimResult is the answer a pro gets after accepting an offer. Losing is not an error.
type ClaimResult struct {
	Outcome model.ClaimOutcome
	Message string
	Job     *model.Job
}

func (r ClaimResult) Won() bool {
	return r.Outcome == model.ClaimOutcomeWon
}

// TryClaim is the only way into accepted. Of all claims on an offered job exactly one wins:
// the conditional update on (status, round, no assignee) lets one through and every other
// claim, concurrent or later, gets lost. A pro already holding the job wins again without a
// new attempt being recorded. A pro who already tried this round loses without a second record.
// A claim made after the offer deadline is recorded as expired even if the timer has not run yet.
func (s *DispatchService) TryClaim(ctx context.Context, jobID uuid.UUID, proID string) (*ClaimResult, error) {
	result := &ClaimResult{Outcome: model.ClaimOutcomeLost, Message: claimLostMessage}
	recorded := false

	job, err := s.transition(ctx, jobID, func(t *transition) error {
		if t.job.Status.Holding() && t.job.AssignedTo(proID) {
			result.Outcome = model.ClaimOutcomeWon
			result.Message = ""
			return nil
		}

		round := t.job.OfferRound
		_, err := s.store.Audit().GetClaimAttempt(t.ctx, t.job.ID, proID, round)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}

		outcome := model.ClaimOutcomeLost
		expired := t.job.Status == model.JobStatusOffered && t.job.OfferDeadline != nil && t.now.After(*t.job.OfferDeadline)
		if expired {
			outcome = model.ClaimOutcomeExpired
			result.Outcome = model.ClaimOutcomeExpired
			result.Message = claimExpiredMessage
		}
		if t.job.Status.Claimable() && !expired {
			err := t.update(store.JobCondition{
				Statuses:   []model.JobStatus{model.JobStatusOffered, model.JobStatusNoShow},
				OfferRound: intPtr(round),
				Unassigned: true,
			}, map[string]any{
				"status":                  model.JobStatusAccepted,
				"assigned_pro_id":         proID,
				"accepted_at":             t.now,
				"no_show_deadline":        t.now.Add(s.cfg.NoShowWindow),
				"offer_deadline":          nil,
				"checked_in_at":           nil,
				"check_in_unverified":     false,
				"check_in_reason":         "",
				"check_in_distance_miles": nil,
			})
			switch {
			case err == nil:
				outcome = model.ClaimOutcomeWon
			case errors.Is(err, store.ErrConflict):
			default:
				return err
			}
		}

		err = s.store.Audit().CreateClaimAttempt(t.ctx, model.ClaimAttempt{
			JobID:       t.job.ID,
			ProID:       proID,
			Round:       round,
			Outcome:     outcome,
			AttemptedAt: t.now,
		})
		if err != nil {
			return err
		}
		recorded = true

		if outcome != model.ClaimOutcomeWon {
			return nil
		}

		if err := t.record(timelineAccepted, proID, fmt.Sprintf("round %d", round)); err != nil {
			return err
		}
		t.emit(events.AcceptedKind, events.DispatchEvent{ProID: proID, Deadline: t.job.NoShowDeadline})

		acceptedAt, deadline := t.now, *t.job.NoShowDeadline
		jobID := t.job.ID
		t.then(func() {
			s.timers.Cancel(jobID, offerTimer)
			s.armNoShowMonitor(jobID, proID, round, acceptedAt, deadline)
		})

		result.Outcome = model.ClaimOutcomeWon
		result.Message = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Job = job
	if recorded {
		metrics.IncreaseClaimsTotalMetric(string(result.Outcome))
	}
	zap.S().Named("dispatch_service").Infow("claim resolved", "job_id", jobID, "pro_id", proID, "outcome", result.Outcome)

	return result, nil
}

// armNoShowMonitor arms the no-show deadline of an acceptance and the warnings before it.
func (s *DispatchService) armNoShowMonitor(jobID uuid.UUID, proID string, round int, acceptedAt, deadline time.Time) {
	s.timers.Schedule(jobID, noShowTimer, deadline, func() { s.onNoShowDeadline(jobID, proID, round) })

	now := s.now()
	for i, offset := range s.cfg.NoShowWarnings {
		at := acceptedAt.Add(offset)
		if offset <= 0 || !at.Before(deadline) || at.Before(now) {
			continue
		}
		remaining := deadline.Sub(at)
		s.timers.Schedule(jobID, fmt.Sprintf("%s%d", warningPrefix, i), at, func() {
			s.onNoShowWarning(jobID, proID, round, remaining)
		})
	}
}
