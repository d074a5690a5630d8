package mappers

import (
	"strings"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/geo"
)

// JobCreateForm is what the booking flow hands over.
type JobCreateForm struct {
	ID          uuid.UUID
	ServiceType string
	Location    geo.Point
}

func (f JobCreateForm) ToJob() model.Job {
	id := f.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return model.Job{
		ID:          id,
		ServiceType: strings.TrimSpace(f.ServiceType),
		Status:      model.JobStatusCreated,
		Lat:         f.Location.Lat,
		Lng:         f.Location.Lng,
	}
}

// ProForm is the presence and profile update the pro app publishes.
type ProForm struct {
	ID            string
	Name          string
	ServiceTypes  []string
	Location      geo.Point
	Rating        float64
	Available     bool
	Online        bool
	CanAcceptJobs bool
}

func (f ProForm) ToPro() model.Pro {
	return model.Pro{
		ID:            f.ID,
		Name:          f.Name,
		ServiceTypes:  model.JoinServiceTypes(f.ServiceTypes),
		Lat:           f.Location.Lat,
		Lng:           f.Location.Lng,
		Rating:        f.Rating,
		Available:     f.Available,
		Online:        f.Online,
		CanAcceptJobs: f.CanAcceptJobs,
	}
}

// CheckInForm carries either a location or, when the device could not provide one, a reason.
type CheckInForm struct {
	ProID        string
	Location     *geo.Point
	ManualReason string
}
