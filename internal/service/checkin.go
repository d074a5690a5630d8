package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/service/mappers"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/geo"
	"github.com/uptend/dispatch/pkg/metrics"
)

// CheckIn records the assigned pro on site. With a location the pro must be within the check-in
// radius of the job; without one a reason is required and the check-in is flagged unverified.
// A rejected check-in changes nothing and the no-show deadline keeps running. Checking in again
// after a success returns the job as it is.
func (s *DispatchService) CheckIn(ctx context.Context, jobID uuid.UUID, form mappers.CheckInForm) (*model.Job, error) {
	return s.transition(ctx, jobID, func(t *transition) error {
		job := t.job

		if job.CheckedInAt != nil && job.AssignedTo(form.ProID) &&
			(job.Status == model.JobStatusCheckedIn || job.Status == model.JobStatusInProgress) {
			return nil
		}
		if !job.AssignedTo(form.ProID) {
			return NewErrNotAssignedPro(job.ID, form.ProID)
		}
		if !job.Status.AwaitingCheckIn() {
			return NewErrInvalidTransition(job.ID, job.Status, "check in")
		}
		if job.NoShowDeadline != nil && t.now.After(*job.NoShowDeadline) {
			return NewErrCheckInTooLate(job.ID)
		}

		updates := map[string]any{
			"status":        model.JobStatusCheckedIn,
			"checked_in_at": t.now,
		}
		var detail string
		verified := form.Location != nil
		if verified {
			distance := geo.Distance(*form.Location, geo.Point{Lat: job.Lat, Lng: job.Lng})
			if distance > s.cfg.CheckInRadiusMiles {
				return NewErrCheckInOutOfRange(job.ID, distance, s.cfg.CheckInRadiusMiles)
			}
			updates["check_in_distance_miles"] = distance
			updates["check_in_unverified"] = false
			detail = fmt.Sprintf("verified %.2f miles from the job", distance)
		} else {
			reason := strings.TrimSpace(form.ManualReason)
			if reason == "" {
				return NewErrManualReasonRequired()
			}
			updates["check_in_unverified"] = true
			updates["check_in_reason"] = reason
			detail = "manual: " + reason
		}

		err := t.update(store.JobCondition{
			Statuses:      []model.JobStatus{model.JobStatusAccepted, model.JobStatusEnRoute},
			AssignedProID: &form.ProID,
			OfferRound:    intPtr(job.OfferRound),
		}, updates)
		if err != nil {
			return err
		}

		if err := t.record(timelineCheckedIn, form.ProID, detail); err != nil {
			return err
		}
		t.emit(events.CheckedInKind, events.DispatchEvent{ProID: form.ProID, Reason: detail})

		id := t.job.ID
		t.then(func() {
			s.timers.Cancel(id, noShowTimer)
			s.timers.CancelPrefix(id, warningPrefix)
			metrics.IncreaseCheckInsTotalMetric(verified)
		})
		return nil
	})
}
