package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/internal/service/mappers"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/geo"
	"gorm.io/gorm"
)

const (
	cleanupJobsStm     = "DELETE FROM jobs;"
	cleanupProsStm     = "DELETE FROM pros;"
	cleanupAttemptsStm = "DELETE FROM claim_attempts;"
	cleanupOffersStm   = "DELETE FROM offers;"
	cleanupDelaysStm   = "DELETE FROM delay_reports;"
	cleanupTimelineStm = "DELETE FROM job_timeline_events;"
)

// site is where every test job takes place (downtown Orlando).
var site = geo.Point{Lat: 28.5383, Lng: -81.3792}

func cleanup(db *gorm.DB) {
	for _, stm := range []string{cleanupJobsStm, cleanupProsStm, cleanupAttemptsStm, cleanupOffersStm, cleanupDelaysStm, cleanupTimelineStm} {
		Expect(db.Exec(stm).Error).To(BeNil())
	}
}

// milesNorth returns a point roughly miles north of site.
func milesNorth(miles float64) geo.Point {
	return geo.Point{Lat: site.Lat + miles/69.0, Lng: site.Lng}
}

func newPro(id string, miles, rating float64, available bool) mappers.ProForm {
	return mappers.ProForm{
		ID:            id,
		Name:          "pro " + id,
		ServiceTypes:  []string{"plumbing"},
		Location:      milesNorth(miles),
		Rating:        rating,
		Available:     available,
		Online:        true,
		CanAcceptJobs: true,
	}
}

func addPros(svc *service.DispatchService, pros ...mappers.ProForm) {
	for _, p := range pros {
		_, err := svc.UpsertPro(context.TODO(), p)
		Expect(err).To(BeNil())
	}
}

func newJob(svc *service.DispatchService) *model.Job {
	job, err := svc.CreateJob(context.TODO(), mappers.JobCreateForm{ServiceType: "plumbing", Location: site})
	Expect(err).To(BeNil())
	return job
}

// fastDispatch shrinks every window so timers fire within a test.
func fastDispatch() *config.DispatchConfig {
	cfg := config.NewDefaultDispatch()
	cfg.OfferWindows = []time.Duration{400 * time.Millisecond, 600 * time.Millisecond}
	cfg.UrgentOfferWindow = 300 * time.Millisecond
	cfg.NoShowWindow = 500 * time.Millisecond
	cfg.NoShowWarnings = []time.Duration{200 * time.Millisecond}
	cfg.NoCandidateBackoff = 100 * time.Millisecond
	cfg.NoCandidateRetries = 2
	Expect(cfg.Validate()).To(Succeed())
	return cfg
}

// recorder keeps every event the producer sends.
type recorder struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func newRecorder() *recorder {
	return &recorder{events: []cloudevents.Event{}}
}

func (r *recorder) Write(_ context.Context, _ string, e cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close(_ context.Context) error {
	return nil
}

// Of returns the payloads of the events of kind sent for the job, in order.
func (r *recorder) Of(jobID uuid.UUID, kind string) []events.DispatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []events.DispatchEvent{}
	for _, e := range r.events {
		if e.Type() != kind {
			continue
		}
		ev := events.DispatchEvent{}
		if err := json.Unmarshal(e.Data(), &ev); err != nil {
			continue
		}
		if ev.JobID == jobID.String() {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) Count(jobID uuid.UUID, kind string) func() int {
	return func() int {
		return len(r.Of(jobID, kind))
	}
}
