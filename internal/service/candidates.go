package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"github.com/uptend/dispatch/internal/matching"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/geo"
)

// pool returns every online pro serving the job within radius miles, unranked.
// Pros listed in exclude are left out.
func (s *DispatchService) pool(ctx context.Context, job *model.Job, exclude []string, radius float64) ([]matching.Candidate, error) {
	pros, err := s.store.Pro().ListOnline(ctx)
	if err != nil {
		return nil, err
	}

	serving := funk.Filter([]model.Pro(pros), func(p model.Pro) bool {
		return p.Serves(job.ServiceType) && !funk.ContainsString(exclude, p.ID)
	}).([]model.Pro)

	site := geo.Point{Lat: job.Lat, Lng: job.Lng}
	candidates := make([]matching.Candidate, 0, len(serving))
	for _, p := range serving {
		distance := geo.Distance(site, geo.Point{Lat: p.Lat, Lng: p.Lng})
		if distance > radius {
			continue
		}
		candidates = append(candidates, matching.Candidate{
			ID:        p.ID,
			Name:      p.Name,
			Distance:  distance,
			Rating:    p.Rating,
			Available: p.Available,
		})
	}
	return candidates, nil
}

// candidates returns the ranked offer pool for the reassignCount-th reassignment. The last
// allowed reassignment searches the expanded radius.
func (s *DispatchService) candidates(ctx context.Context, job *model.Job, exclude []string, reassignCount int) ([]matching.Candidate, error) {
	pool, err := s.pool(ctx, job, exclude, s.radius(reassignCount))
	if err != nil {
		return nil, err
	}
	return matching.Eligible(pool), nil
}

func (s *DispatchService) radius(reassignCount int) float64 {
	if reassignCount >= s.cfg.MaxReassignments && s.cfg.ExpandedSearchRadiusMiles > s.cfg.SearchRadiusMiles {
		return s.cfg.ExpandedSearchRadiusMiles
	}
	return s.cfg.SearchRadiusMiles
}

// contacted returns the pros already offered the job or that already tried to claim it, in any round.
func (s *DispatchService) contacted(ctx context.Context, job *model.Job) ([]string, error) {
	offers, err := s.store.Audit().ListOffers(ctx, job.ID, nil)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.Audit().ListClaimAttempts(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	ids := funk.Map(offers, func(o model.Offer) string { return o.ProID }).([]string)
	ids = append(ids, funk.Map(attempts, func(a model.ClaimAttempt) string { return a.ProID }).([]string)...)
	return funk.UniqString(ids), nil
}

// QuickMatch ranks every pro near the job, unavailable ones included, with the dispatch comparator.
func (s *DispatchService) QuickMatch(ctx context.Context, jobID uuid.UUID) ([]matching.Candidate, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pool, err := s.pool(ctx, job, nil, s.cfg.SearchRadiusMiles)
	if err != nil {
		return nil, err
	}
	return matching.Rank(pool), nil
}
