package v1alpha1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/uptend/dispatch/api/v1alpha1"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/internal/events"
	handlers "github.com/uptend/dispatch/internal/handlers/v1alpha1"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/pkg/middleware"
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

type discardWriter struct{}

func (discardWriter) Write(context.Context, string, cloudevents.Event) error { return nil }
func (discardWriter) Close(context.Context) error                            { return nil }

var _ = Describe("dispatch handlers", Ordered, func() {
	var (
		s        store.Store
		gormdb   *gorm.DB
		producer *events.EventProducer
		srv      *service.DispatchService
		router   chi.Router
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		producer = events.NewEventProducer(discardWriter{})
		srv = service.NewDispatchService(s, producer, config.NewDefaultDispatch())

		router = chi.NewRouter()
		router.Use(middleware.RequestID)
		handlers.NewServiceHandler(srv).Routes(router)
	})

	AfterEach(func() {
		srv.Close()
		_ = producer.Close()
		for _, stm := range []string{cleanupJobsStm, cleanupProsStm, cleanupAttemptsStm, cleanupOffersStm, cleanupDelaysStm, cleanupTimelineStm} {
			Expect(gormdb.Exec(stm).Error).To(BeNil())
		}
	})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(BeNil())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	decode := func(rr *httptest.ResponseRecorder, v any) {
		Expect(json.Unmarshal(rr.Body.Bytes(), v)).To(BeNil())
	}

	putPro := func(id string, lat float64, rating float64) {
		rr := do(http.MethodPut, "/api/v1/pros/"+id, v1alpha1.ProUpdate{
			Name:          id,
			ServiceTypes:  []string{"plumbing"},
			Location:      v1alpha1.Location{Lat: lat, Lng: -81.3792},
			Rating:        rating,
			Available:     true,
			Online:        true,
			CanAcceptJobs: true,
		})
		Expect(rr.Code).To(Equal(http.StatusOK))
	}

	createJob := func(dispatch bool) v1alpha1.Job {
		rr := do(http.MethodPost, "/api/v1/jobs", v1alpha1.JobCreate{
			ServiceType: "plumbing",
			Location:    v1alpha1.Location{Lat: 28.5383, Lng: -81.3792},
			Dispatch:    dispatch,
		})
		Expect(rr.Code).To(Equal(http.StatusCreated))
		job := v1alpha1.Job{}
		decode(rr, &job)
		return job
	}

	It("reports health", func() {
		rr := do(http.MethodGet, "/health", nil)
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Body.String()).To(ContainSubstring("ok"))
	})

	It("creates and dispatches a job", func() {
		putPro("B", 28.5673, 4.9)
		putPro("C", 28.5528, 4.6)

		job := createJob(true)
		Expect(job.Status).To(Equal("offered"))
		Expect(job.OfferRound).To(Equal(1))

		rr := do(http.MethodGet, "/api/v1/jobs/"+job.Id.String()+"/quick-match", nil)
		Expect(rr.Code).To(Equal(http.StatusOK))
		candidates := []v1alpha1.Candidate{}
		decode(rr, &candidates)
		Expect(candidates).To(HaveLen(2))
		Expect(candidates[0].Id).To(Equal("B"))
	})

	It("answers 200 to the winning claim and 409 to the others", func() {
		putPro("B", 28.5673, 4.9)
		putPro("C", 28.5528, 4.6)
		job := createJob(true)

		rr := do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/claim", job.Id), v1alpha1.ProAction{ProId: "C"})
		Expect(rr.Code).To(Equal(http.StatusOK))
		won := v1alpha1.ClaimResult{}
		decode(rr, &won)
		Expect(won.Outcome).To(Equal("won"))
		Expect(won.Job).ToNot(BeNil())
		Expect(*won.Job.AssignedProId).To(Equal("C"))

		rr = do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/claim", job.Id), v1alpha1.ProAction{ProId: "B"})
		Expect(rr.Code).To(Equal(http.StatusConflict))
		lost := v1alpha1.ClaimResult{}
		decode(rr, &lost)
		Expect(lost.Outcome).To(Equal("lost"))
		Expect(lost.Message).To(Equal("job no longer available"))
		Expect(lost.Job).To(BeNil())
	})

	It("passes the offer to the next pro on a decline", func() {
		putPro("B", 28.5673, 4.9)
		putPro("C", 28.5528, 4.6)
		job := createJob(true)
		path := fmt.Sprintf("/api/v1/jobs/%s/decline", job.Id)

		rr := do(http.MethodPost, path, v1alpha1.ProAction{ProId: "C"})
		Expect(rr.Code).To(Equal(http.StatusForbidden))

		rr = do(http.MethodPost, path, v1alpha1.ProAction{ProId: "B"})
		Expect(rr.Code).To(Equal(http.StatusOK))
		declined := v1alpha1.Job{}
		decode(rr, &declined)
		Expect(declined.Status).To(Equal("offered"))
		Expect(declined.OfferRound).To(Equal(2))
		Expect(declined.ReassignCount).To(Equal(1))

		rr = do(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/history", job.Id), nil)
		Expect(rr.Code).To(Equal(http.StatusOK))
		history := v1alpha1.DispatchHistory{}
		decode(rr, &history)
		Expect(history.ClaimAttempts).To(HaveLen(1))
		Expect(history.ClaimAttempts[0].Outcome).To(Equal("declined"))
		Expect(history.Offers).To(HaveLen(2))
	})

	It("maps check-in failures to status codes", func() {
		putPro("B", 28.5673, 4.9)
		job := createJob(true)
		Expect(do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/claim", job.Id), v1alpha1.ProAction{ProId: "B"}).Code).To(Equal(http.StatusOK))

		path := fmt.Sprintf("/api/v1/jobs/%s/check-in", job.Id)

		rr := do(http.MethodPost, path, v1alpha1.CheckIn{ProId: "B", Location: &v1alpha1.Location{Lat: 28.6, Lng: -81.3792}})
		Expect(rr.Code).To(Equal(http.StatusUnprocessableEntity))
		apiErr := v1alpha1.Error{}
		decode(rr, &apiErr)
		Expect(apiErr.Message).To(ContainSubstring("check in manually"))
		Expect(apiErr.RequestId).ToNot(BeNil())

		Expect(do(http.MethodPost, path, v1alpha1.CheckIn{ProId: "B"}).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPost, path, v1alpha1.CheckIn{ProId: "X", ManualReason: "gps"}).Code).To(Equal(http.StatusForbidden))

		rr = do(http.MethodPost, path, v1alpha1.CheckIn{ProId: "B", Location: &v1alpha1.Location{Lat: 28.5383, Lng: -81.3792}})
		Expect(rr.Code).To(Equal(http.StatusOK))
		checkedIn := v1alpha1.Job{}
		decode(rr, &checkedIn)
		Expect(checkedIn.Status).To(Equal("checked_in"))

		Expect(do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/start", job.Id), v1alpha1.ProAction{ProId: "B"}).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/complete", job.Id), v1alpha1.ProAction{ProId: "B"}).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/cancel", job.Id), nil).Code).To(Equal(http.StatusConflict))
	})

	It("records a delay report and shows it in the history", func() {
		putPro("B", 28.5673, 4.9)
		job := createJob(true)
		Expect(do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/claim", job.Id), v1alpha1.ProAction{ProId: "B"}).Code).To(Equal(http.StatusOK))

		rr := do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/delay", job.Id), v1alpha1.DelayReport{ProId: "B", Reason: "flat tire"})
		Expect(rr.Code).To(Equal(http.StatusCreated))

		rr = do(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/history", job.Id), nil)
		Expect(rr.Code).To(Equal(http.StatusOK))
		history := v1alpha1.DispatchHistory{}
		decode(rr, &history)
		Expect(history.DelayReports).To(HaveLen(1))
		Expect(history.ClaimAttempts).To(HaveLen(1))
		Expect(history.Offers).To(HaveLen(1))
		Expect(history.Timeline).ToNot(BeEmpty())
	})

	It("keeps a job without candidates and reports dispatch as unavailable", func() {
		job := createJob(true)
		Expect(job.Status).To(Equal("created"))

		rr := do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/cancel", job.Id), v1alpha1.JobCancel{Reason: "test"})
		Expect(rr.Code).To(Equal(http.StatusOK))

		other := createJob(false)
		rr = do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/dispatch", other.Id), nil)
		Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("never creates an urgent job", func() {
		rr := do(http.MethodPost, "/api/v1/jobs", map[string]any{
			"serviceType": "plumbing",
			"location":    map[string]float64{"lat": 28.5383, "lng": -81.3792},
			"urgent":      true,
		})
		Expect(rr.Code).To(Equal(http.StatusCreated))
		job := v1alpha1.Job{}
		decode(rr, &job)
		Expect(job.Urgent).To(BeFalse())
	})

	It("rejects bad input", func() {
		Expect(do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodPost, "/api/v1/jobs", v1alpha1.JobCreate{ServiceType: "Not Valid"}).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPut, "/api/v1/pros/bad%20id", v1alpha1.ProUpdate{}).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodGet, "/api/v1/pros/nobody", nil).Code).To(Equal(http.StatusNotFound))
	})
})
