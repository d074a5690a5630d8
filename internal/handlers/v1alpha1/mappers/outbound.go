package mappers

import (
	"strings"

	"github.com/uptend/dispatch/api/v1alpha1"
	"github.com/uptend/dispatch/internal/matching"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/internal/store/model"
)

func JobToApi(j model.Job) v1alpha1.Job {
	return v1alpha1.Job{
		Id:                   j.ID,
		ServiceType:          j.ServiceType,
		Status:               string(j.Status),
		Location:             v1alpha1.Location{Lat: j.Lat, Lng: j.Lng},
		AssignedProId:        j.AssignedProID,
		OfferDeadline:        j.OfferDeadline,
		NoShowDeadline:       j.NoShowDeadline,
		Urgent:               j.Urgent,
		ReassignCount:        j.ReassignCount,
		OfferRound:           j.OfferRound,
		OriginalProId:        j.OriginalProID,
		CheckedInAt:          j.CheckedInAt,
		CheckInUnverified:    j.CheckInUnverified,
		CheckInReason:        j.CheckInReason,
		CheckInDistanceMiles: j.CheckInDistanceMiles,
		Escalated:            j.Escalated,
		EscalationReason:     j.EscalationReason,
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
	}
}

func ClaimResultToApi(r service.ClaimResult) v1alpha1.ClaimResult {
	result := v1alpha1.ClaimResult{
		Outcome: string(r.Outcome),
		Message: r.Message,
	}
	// a losing pro only learns that the job is gone
	if r.Won() && r.Job != nil {
		job := JobToApi(*r.Job)
		result.Job = &job
	}
	return result
}

func CandidatesToApi(candidates []matching.Candidate) []v1alpha1.Candidate {
	out := make([]v1alpha1.Candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, v1alpha1.Candidate{
			Id:            c.ID,
			Name:          c.Name,
			DistanceMiles: c.Distance,
			Rating:        c.Rating,
			Available:     c.Available,
		})
	}
	return out
}

func HistoryToApi(h service.DispatchHistory) v1alpha1.DispatchHistory {
	out := v1alpha1.DispatchHistory{
		Job:           JobToApi(h.Job),
		ClaimAttempts: make([]v1alpha1.ClaimAttempt, 0, len(h.ClaimAttempts)),
		Offers:        make([]v1alpha1.Offer, 0, len(h.Offers)),
		DelayReports:  make([]v1alpha1.DelayReportRecord, 0, len(h.DelayReports)),
		Timeline:      make([]v1alpha1.TimelineEntry, 0, len(h.Timeline)),
	}

	for _, a := range h.ClaimAttempts {
		out.ClaimAttempts = append(out.ClaimAttempts, v1alpha1.ClaimAttempt{
			ProId:       a.ProID,
			Round:       a.Round,
			Outcome:     string(a.Outcome),
			AttemptedAt: a.AttemptedAt,
		})
	}
	for _, o := range h.Offers {
		out.Offers = append(out.Offers, v1alpha1.Offer{
			ProId:     o.ProID,
			Round:     o.Round,
			Urgent:    o.Urgent,
			OfferedAt: o.OfferedAt,
			Deadline:  o.Deadline,
		})
	}
	for _, d := range h.DelayReports {
		out.DelayReports = append(out.DelayReports, DelayReportToApi(d))
	}
	for _, e := range h.Timeline {
		out.Timeline = append(out.Timeline, v1alpha1.TimelineEntry{
			Kind:      e.Kind,
			ProId:     e.ProID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}

	return out
}

func DelayReportToApi(d model.DelayReport) v1alpha1.DelayReportRecord {
	return v1alpha1.DelayReportRecord{
		ProId:      d.ProID,
		Reason:     d.Reason,
		ReportedAt: d.ReportedAt,
	}
}

func ProToApi(p model.Pro) v1alpha1.Pro {
	types := []string{}
	if p.ServiceTypes != "" {
		types = strings.Split(p.ServiceTypes, ",")
	}
	return v1alpha1.Pro{
		Id:            p.ID,
		Name:          p.Name,
		ServiceTypes:  types,
		Location:      v1alpha1.Location{Lat: p.Lat, Lng: p.Lng},
		Rating:        p.Rating,
		Available:     p.Available,
		Online:        p.Online,
		CanAcceptJobs: p.CanAcceptJobs,
		NoShowCount:   p.NoShowCount,
		LastNoShowAt:  p.LastNoShowAt,
	}
}
