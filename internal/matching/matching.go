package matching

import (
	"math"
	"sort"
)

// RatingMargin is the rating gap above which rating beats proximity.
const RatingMargin = 0.3

// Candidate is a per-attempt view of a pro. It is recomputed on every dispatch attempt.
type Candidate struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Distance  float64 `json:"distanceMiles"`
	Rating    float64 `json:"rating"`
	Available bool    `json:"available"`
}

// Compare orders a before b (negative), after b (positive) or equal (zero):
// available pros first, then a rating lead of more than RatingMargin, then the shorter distance.
// Ids break the remaining ties so the order never depends on input order.
func Compare(a, b Candidate) int {
	if a.Available != b.Available {
		if a.Available {
			return -1
		}
		return 1
	}

	if math.Abs(a.Rating-b.Rating) > RatingMargin {
		if a.Rating > b.Rating {
			return -1
		}
		return 1
	}

	if a.Distance != b.Distance {
		if a.Distance < b.Distance {
			return -1
		}
		return 1
	}

	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Rank returns a sorted copy of candidates. The input is left untouched.
//
// The rating margin makes Compare non-transitive (4.0 ~ 4.25 ~ 4.5 but 4.5 > 4.0), so the
// copy is put in id order first: the result depends on the set of candidates, not on the
// order they were loaded in.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ID < ranked[j].ID
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return Compare(ranked[i], ranked[j]) < 0
	})
	return ranked
}

// Eligible ranks candidates and drops the unavailable ones.
func Eligible(candidates []Candidate) []Candidate {
	ranked := Rank(candidates)
	for i, c := range ranked {
		if !c.Available {
			return ranked[:i]
		}
	}
	return ranked
}
