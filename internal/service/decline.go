package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/metrics"
	"go.uber.org/zap"
)

// DeclineOffer records that proID passes on the current round of an offered job. The pro is not
// offered the job again by the cascade. When every recipient of a regular round declined, the
// job moves to the next pro right away instead of waiting for the deadline. Urgent rounds always
// run to their deadline: one pro passing leaves the race open to the others.
// Declining twice in the same round changes nothing.
func (s *DispatchService) DeclineOffer(ctx context.Context, jobID uuid.UUID, proID string) (*model.Job, error) {
	return s.transition(ctx, jobID, func(t *transition) error {
		if t.job.Status != model.JobStatusOffered {
			return NewErrInvalidTransition(t.job.ID, t.job.Status, "decline")
		}
		round := t.job.OfferRound

		offers, err := s.store.Audit().ListOffers(t.ctx, t.job.ID, &round)
		if err != nil {
			return err
		}
		recipients := make(map[string]bool, len(offers))
		for _, o := range offers {
			recipients[o.ProID] = true
		}
		if !recipients[proID] {
			return NewErrNotOfferedPro(t.job.ID, proID)
		}

		_, err = s.store.Audit().GetClaimAttempt(t.ctx, t.job.ID, proID, round)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}

		err = s.store.Audit().CreateClaimAttempt(t.ctx, model.ClaimAttempt{
			JobID:       t.job.ID,
			ProID:       proID,
			Round:       round,
			Outcome:     model.ClaimOutcomeDeclined,
			AttemptedAt: t.now,
		})
		if err != nil {
			return err
		}
		if err := t.record(timelineOfferDeclined, proID, fmt.Sprintf("round %d", round)); err != nil {
			return err
		}
		t.emit(events.OfferDeclinedKind, events.DispatchEvent{ProID: proID})
		t.then(func() { metrics.IncreaseClaimsTotalMetric(string(model.ClaimOutcomeDeclined)) })

		zap.S().Named("dispatch_service").Infow("offer declined", "job_id", t.job.ID, "pro_id", proID, "round", round)

		if t.job.Urgent {
			return nil
		}

		attempts, err := s.store.Audit().ListClaimAttempts(t.ctx, t.job.ID)
		if err != nil {
			return err
		}
		for _, a := range attempts {
			if a.Round == round && a.Outcome == model.ClaimOutcomeDeclined {
				delete(recipients, a.ProID)
			}
		}
		if len(recipients) > 0 {
			return nil
		}
		return s.reoffer(t)
	})
}
