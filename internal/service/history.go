package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
)

// timeline entry kinds
const (
	timelineCreated           = "created"
	timelineOffered           = "offered"
	timelineOfferExpired      = "offer_expired"
	timelineOfferDeclined     = "offer_declined"
	timelineAccepted          = "accepted"
	timelineEnRoute           = "en_route"
	timelineNoShowWarning     = "no_show_warning"
	timelineNoShow            = "no_show"
	timelineNoShowReview      = "no_show_review"
	timelineDelayReported     = "delay_reported"
	timelineCheckedIn         = "checked_in"
	timelineStarted           = "in_progress"
	timelineCompleted         = "completed"
	timelineCancelled         = "cancelled"
	timelineDispatchExhausted = "dispatch_exhausted"
)

// DispatchHistory is the audit trail of a job, each list in the order it happened.
type DispatchHistory struct {
	Job           model.Job
	ClaimAttempts []model.ClaimAttempt
	DelayReports  []model.DelayReport
	Offers        []model.Offer
	Timeline      []model.TimelineEvent
}

func (s *DispatchService) GetDispatchHistory(ctx context.Context, jobID uuid.UUID) (*DispatchHistory, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	history := &DispatchHistory{Job: *job}
	if history.ClaimAttempts, err = s.store.Audit().ListClaimAttempts(ctx, jobID); err != nil {
		return nil, err
	}
	if history.DelayReports, err = s.store.Audit().ListDelayReports(ctx, jobID); err != nil {
		return nil, err
	}
	if history.Offers, err = s.store.Audit().ListOffers(ctx, jobID, nil); err != nil {
		return nil, err
	}
	if history.Timeline, err = s.store.Audit().ListTimeline(ctx, jobID); err != nil {
		return nil, err
	}

	return history, nil
}

func (s *DispatchService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}
	return job, nil
}
