package service

import (
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
)

// broadcast re-offers the job to every eligible pro at once as reassignment next, under the urgent
// window. Nobody is excluded: a pro who passed earlier may be free now. The winner is whoever
// claims first.
func (s *DispatchService) broadcast(t *transition, next int) error {
	if next > s.cfg.MaxReassignments {
		return s.exhaust(t, reasonMaxReassignments)
	}

	candidates, err := s.candidates(t.ctx, t.job, nil, next)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return s.exhaust(t, reasonNoCandidates)
	}

	cond := store.JobCondition{
		Statuses:   []model.JobStatus{t.job.Status},
		OfferRound: intPtr(t.job.OfferRound),
		Unassigned: true,
	}
	return s.offer(t, cond, candidates, next, true, nil)
}
