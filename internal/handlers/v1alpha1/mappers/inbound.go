package mappers

import (
	"github.com/google/uuid"
	"github.com/uptend/dispatch/api/v1alpha1"
	"github.com/uptend/dispatch/internal/service/mappers"
	"github.com/uptend/dispatch/pkg/geo"
)

func JobCreateFormApi(body v1alpha1.JobCreate) mappers.JobCreateForm {
	form := mappers.JobCreateForm{
		ServiceType: body.ServiceType,
		Location:    geo.Point{Lat: body.Location.Lat, Lng: body.Location.Lng},
	}
	if body.Id != nil {
		form.ID = *body.Id
	} else {
		form.ID = uuid.New()
	}
	return form
}

func CheckInFormApi(body v1alpha1.CheckIn) mappers.CheckInForm {
	form := mappers.CheckInForm{
		ProID:        body.ProId,
		ManualReason: body.ManualReason,
	}
	if body.Location != nil {
		form.Location = &geo.Point{Lat: body.Location.Lat, Lng: body.Location.Lng}
	}
	return form
}

func ProFormApi(id string, body v1alpha1.ProUpdate) mappers.ProForm {
	return mappers.ProForm{
		ID:            id,
		Name:          body.Name,
		ServiceTypes:  body.ServiceTypes,
		Location:      geo.Point{Lat: body.Location.Lat, Lng: body.Location.Lng},
		Rating:        body.Rating,
		Available:     body.Available,
		Online:        body.Online,
		CanAcceptJobs: body.CanAcceptJobs,
	}
}
