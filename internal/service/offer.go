package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/matching"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/metrics"
	"go.uber.org/zap"
)

// Dispatch offers a created job to its top ranked candidate and arms the acceptance window.
// Without candidates it returns ErrNoCandidatesAvailable and keeps retrying in the background;
// the job is escalated when the retries run out. Dispatching an escalated job starts over.
func (s *DispatchService) Dispatch(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	job, err := s.dispatch(ctx, jobID)

	var noCandidates *ErrNoCandidatesAvailable
	if errors.As(err, &noCandidates) {
		s.noCandidates(jobID, 1)
	}
	return job, err
}

func (s *DispatchService) dispatch(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	return s.transition(ctx, jobID, func(t *transition) error {
		if t.job.Status != model.JobStatusCreated {
			return NewErrInvalidTransition(t.job.ID, t.job.Status, "dispatch")
		}

		reassignCount := t.job.ReassignCount
		if t.job.Escalated {
			reassignCount = 0
		}

		candidates, err := s.candidates(t.ctx, t.job, nil, reassignCount)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return NewErrNoCandidatesAvailable(t.job.ID)
		}

		cond := store.JobCondition{
			Statuses:      []model.JobStatus{model.JobStatusCreated},
			ReassignCount: intPtr(t.job.ReassignCount),
		}
		return s.offer(t, cond, candidates[:1], reassignCount, false, map[string]any{
			"escalated":         false,
			"escalated_at":      nil,
			"escalation_reason": "",
		})
	})
}

// noCandidates schedules dispatch retry number attempt, or escalates once the retries are spent.
func (s *DispatchService) noCandidates(jobID uuid.UUID, attempt int) {
	if attempt > s.cfg.NoCandidateRetries {
		s.fire(retryTimer, jobID, func(t *transition) error {
			if t.job.Status != model.JobStatusCreated || t.job.Escalated {
				return nil
			}
			return s.exhaust(t, reasonNoCandidates)
		})
		return
	}

	at := s.now().Add(s.cfg.NoCandidateBackoff)
	s.timers.Schedule(jobID, retryTimer, at, func() {
		_, err := s.dispatch(context.Background(), jobID)

		var noCandidates *ErrNoCandidatesAvailable
		switch {
		case err == nil:
		case errors.As(err, &noCandidates):
			s.noCandidates(jobID, attempt+1)
		default:
			zap.S().Named("dispatch_service").Debugw("dispatch retry skipped", "job_id", jobID, "attempt", attempt, "error", err)
		}
	})
}

// offer opens a new offer round: the job becomes offered with reassignCount, one offer is
// recorded per recipient and the acceptance window of the tier is armed. Urgent offers use the
// shorter urgent window.
func (s *DispatchService) offer(t *transition, cond store.JobCondition, recipients []matching.Candidate, reassignCount int, urgent bool, extra map[string]any) error {
	window := s.cfg.OfferWindow(reassignCount)
	if urgent {
		window = s.cfg.UrgentOfferWindow
	}
	deadline := t.now.Add(window)
	round := t.job.OfferRound + 1

	updates := map[string]any{
		"status":           model.JobStatusOffered,
		"assigned_pro_id":  nil,
		"offer_deadline":   deadline,
		"no_show_deadline": nil,
		"reassign_count":   reassignCount,
		"offer_round":      round,
	}
	if urgent {
		updates["urgent"] = true
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := t.update(cond, updates); err != nil {
		return err
	}

	ids := make([]string, 0, len(recipients))
	offers := make([]model.Offer, 0, len(recipients))
	for _, c := range recipients {
		ids = append(ids, c.ID)
		offers = append(offers, model.Offer{
			JobID:     t.job.ID,
			ProID:     c.ID,
			Round:     round,
			Urgent:    urgent,
			OfferedAt: t.now,
			Deadline:  deadline,
		})
	}
	if err := s.store.Audit().CreateOffers(t.ctx, offers); err != nil {
		return err
	}
	if err := t.record(timelineOffered, "", fmt.Sprintf("round %d offered to %s", round, strings.Join(ids, ", "))); err != nil {
		return err
	}

	ev := events.DispatchEvent{Recipients: ids, Deadline: timePtr(deadline), Urgent: urgent}
	if urgent {
		ev.Message = urgentMessage
	}
	if len(ids) == 1 {
		ev.ProID = ids[0]
	}
	t.emit(events.OfferedKind, ev)

	jobID := t.job.ID
	t.then(func() {
		s.timers.Cancel(jobID, retryTimer)
		s.timers.Schedule(jobID, offerTimer, deadline, func() { s.onOfferTimeout(jobID, round) })
		metrics.IncreaseOffersTotalMetric(urgent, len(ids))
	})

	zap.S().Named("dispatch_service").Infow("job offered", "job_id", jobID, "round", round, "reassign_count", reassignCount, "urgent", urgent, "pros", ids)
	return nil
}

// onOfferTimeout closes the acceptance window of round. It does nothing if the job left that round.
func (s *DispatchService) onOfferTimeout(jobID uuid.UUID, round int) {
	s.fire(offerTimer, jobID, func(t *transition) error {
		job := t.job
		if job.Status != model.JobStatusOffered || job.OfferRound != round {
			return nil
		}
		if job.OfferDeadline == nil || t.now.Before(*job.OfferDeadline) {
			return nil
		}
		return s.expireOffer(t)
	})
}

// expireOffer marks the silent recipients of the current round as expired and re-offers the job.
func (s *DispatchService) expireOffer(t *transition) error {
	round := t.job.OfferRound

	offers, err := s.store.Audit().ListOffers(t.ctx, t.job.ID, &round)
	if err != nil {
		return err
	}

	expired := []string{}
	for _, o := range offers {
		_, err := s.store.Audit().GetClaimAttempt(t.ctx, t.job.ID, o.ProID, round)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		err = s.store.Audit().CreateClaimAttempt(t.ctx, model.ClaimAttempt{
			JobID:       t.job.ID,
			ProID:       o.ProID,
			Round:       round,
			Outcome:     model.ClaimOutcomeExpired,
			AttemptedAt: t.now,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
			return err
		}
		expired = append(expired, o.ProID)
	}

	if err := t.record(timelineOfferExpired, "", fmt.Sprintf("round %d expired without a claim", round)); err != nil {
		return err
	}
	t.emit(events.OfferExpiredKind, events.DispatchEvent{Recipients: expired})
	t.then(metrics.IncreaseOfferExpirationsTotalMetric)

	return s.reoffer(t)
}

// reoffer opens the next round of an offered job whose current round ended without a winner:
// urgent jobs by broadcast, the others to the best pro not contacted yet.
func (s *DispatchService) reoffer(t *transition) error {
	round := t.job.OfferRound
	next := t.job.ReassignCount + 1
	if next > s.cfg.MaxReassignments {
		return s.exhaust(t, reasonMaxReassignments)
	}
	if t.job.Urgent {
		return s.broadcast(t, next)
	}

	exclude, err := s.contacted(t.ctx, t.job)
	if err != nil {
		return err
	}
	candidates, err := s.candidates(t.ctx, t.job, exclude, next)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return s.exhaust(t, reasonNoCandidates)
	}

	cond := store.JobCondition{
		Statuses:   []model.JobStatus{model.JobStatusOffered},
		OfferRound: intPtr(round),
	}
	return s.offer(t, cond, candidates[:1], next, false, nil)
}

// exhaust gives up on automatic dispatch. The job goes back to created, flagged for manual
// dispatch. The escalated flag in the condition makes this happen once per escalation.
func (s *DispatchService) exhaust(t *transition, reason string) error {
	notEscalated := false
	cond := store.JobCondition{
		Statuses:      []model.JobStatus{t.job.Status},
		ReassignCount: intPtr(t.job.ReassignCount),
		Escalated:     &notEscalated,
	}
	err := t.update(cond, map[string]any{
		"status":            model.JobStatusCreated,
		"assigned_pro_id":   nil,
		"offer_deadline":    nil,
		"no_show_deadline":  nil,
		"escalated":         true,
		"escalated_at":      t.now,
		"escalation_reason": reason,
	})
	if err != nil {
		return err
	}

	if err := t.record(timelineDispatchExhausted, "", reason); err != nil {
		return err
	}
	t.emit(events.DispatchExhaustedKind, events.DispatchEvent{
		Reason:  reason,
		Message: "automatic dispatch stopped, the job needs a manual dispatch",
	})

	jobID := t.job.ID
	t.then(func() {
		s.timers.CancelJob(jobID)
		metrics.IncreaseDispatchExhaustedTotalMetric(reason)
	})

	zap.S().Named("dispatch_service").Warnw("dispatch exhausted", "job_id", jobID, "reason", reason, "reassign_count", t.job.ReassignCount)
	return nil
}
