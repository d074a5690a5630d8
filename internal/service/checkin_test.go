package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/internal/service/mappers"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/geo"
	"gorm.io/gorm"
)

func checkInAt(proID string, at geo.Point) mappers.CheckInForm {
	return mappers.CheckInForm{ProID: proID, Location: &at}
}

var _ = Describe("check-in and job lifecycle", Ordered, func() {
	var (
		s        store.Store
		gormdb   *gorm.DB
		rec      *recorder
		producer *events.EventProducer
		svc      *service.DispatchService
		offset   atomic.Int64
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
		offset.Store(0)
		rec = newRecorder()
		producer = events.NewEventProducer(rec)
		svc = service.NewDispatchService(s, producer, config.NewDefaultDispatch(), service.WithClock(func() time.Time {
			return time.Now().UTC().Add(time.Duration(offset.Load()))
		}))
		addPros(svc, newPro("B", 2, 4.9, true), newPro("C", 1, 4.6, true))
	})

	AfterEach(func() {
		svc.Close()
		_ = producer.Close()
		cleanup(gormdb)
	})

	acceptedBy := func(proID string) *model.Job {
		job := newJob(svc)
		_, err := svc.Dispatch(context.TODO(), job.ID)
		Expect(err).To(BeNil())

		result, err := svc.TryClaim(context.TODO(), job.ID, proID)
		Expect(err).To(BeNil())
		Expect(result.Won()).To(BeTrue())
		return result.Job
	}

	Context("check-in", func() {
		It("verifies a pro on site", func() {
			job := acceptedBy("B")

			got, err := svc.CheckIn(context.TODO(), job.ID, checkInAt("B", milesNorth(0.2)))
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCheckedIn))
			Expect(got.CheckedInAt).ToNot(BeNil())
			Expect(got.CheckInUnverified).To(BeFalse())
			Expect(got.CheckInDistanceMiles).ToNot(BeNil())
			Expect(*got.CheckInDistanceMiles).To(BeNumerically("<", 0.5))
			Expect(svc.PendingTimers(job.ID)).To(BeEmpty())

			Eventually(rec.Count(job.ID, events.CheckedInKind)).Should(Equal(1))
		})

		It("returns the checked-in job when called again", func() {
			job := acceptedBy("B")

			first, err := svc.CheckIn(context.TODO(), job.ID, checkInAt("B", site))
			Expect(err).To(BeNil())
			second, err := svc.CheckIn(context.TODO(), job.ID, checkInAt("B", site))
			Expect(err).To(BeNil())
			Expect(second.CheckedInAt.Equal(*first.CheckedInAt)).To(BeTrue())

			Consistently(rec.Count(job.ID, events.CheckedInKind), "200ms").Should(Equal(1))
		})

		It("rejects a location out of range and keeps the deadline running", func() {
			job := acceptedBy("B")

			_, err := svc.CheckIn(context.TODO(), job.ID, checkInAt("B", milesNorth(1)))
			outOfRange := &service.ErrCheckInOutOfRange{}
			Expect(errors.As(err, &outOfRange)).To(BeTrue())
			Expect(outOfRange.Distance).To(BeNumerically(">", 0.5))
			Expect(outOfRange.Radius).To(Equal(0.5))

			got, err := svc.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusAccepted))
			Expect(svc.PendingTimers(job.ID)).To(ContainElement("no_show"))
		})

		It("accepts a manual check-in with a reason and flags it", func() {
			job := acceptedBy("B")

			_, err := svc.CheckIn(context.TODO(), job.ID, mappers.CheckInForm{ProID: "B"})
			Expect(err).To(BeAssignableToTypeOf(&service.ErrManualReasonRequired{}))

			got, err := svc.CheckIn(context.TODO(), job.ID, mappers.CheckInForm{ProID: "B", ManualReason: "gps is down"})
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCheckedIn))
			Expect(got.CheckInUnverified).To(BeTrue())
			Expect(got.CheckInReason).To(Equal("gps is down"))
		})

		It("only lets the assigned pro check in", func() {
			job := acceptedBy("B")

			_, err := svc.CheckIn(context.TODO(), job.ID, checkInAt("C", site))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNotAssignedPro{}))
		})

		It("refuses a check-in past the deadline", func() {
			job := acceptedBy("B")
			offset.Store(int64(31 * time.Minute))

			_, err := svc.CheckIn(context.TODO(), job.ID, checkInAt("B", site))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrCheckInTooLate{}))
		})

		It("refuses a check-in on a job that was only offered", func() {
			job := newJob(svc)
			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			_, err = svc.CheckIn(context.TODO(), job.ID, checkInAt("B", site))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNotAssignedPro{}))
		})
	})

	Context("lifecycle", func() {
		It("walks a job from en route to completed", func() {
			job := acceptedBy("B")

			got, err := svc.MarkEnRoute(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusEnRoute))

			_, err = svc.StartJob(context.TODO(), job.ID, "B")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidTransition{}))

			_, err = svc.CheckIn(context.TODO(), job.ID, checkInAt("B", site))
			Expect(err).To(BeNil())

			got, err = svc.StartJob(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusInProgress))

			_, err = svc.CompleteJob(context.TODO(), job.ID, "C")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNotAssignedPro{}))

			got, err = svc.CompleteJob(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCompleted))
			Eventually(rec.Count(job.ID, events.CompletedKind)).Should(Equal(1))

			_, err = svc.CancelJob(context.TODO(), job.ID, "too late")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidTransition{}))
		})

		It("cancels a job and stops its timers", func() {
			job := acceptedBy("B")
			Expect(svc.PendingTimers(job.ID)).ToNot(BeEmpty())

			got, err := svc.CancelJob(context.TODO(), job.ID, "customer cancelled")
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCancelled))
			Expect(got.AssignedProID).To(BeNil())
			Expect(got.NoShowDeadline).To(BeNil())
			Expect(svc.PendingTimers(job.ID)).To(BeEmpty())

			Eventually(rec.Count(job.ID, events.CancelledKind)).Should(Equal(1))
			ev := rec.Of(job.ID, events.CancelledKind)[0]
			Expect(ev.ProID).To(Equal("B"))
			Expect(ev.Reason).To(Equal("customer cancelled"))

			result, err := svc.TryClaim(context.TODO(), job.ID, "C")
			Expect(err).To(BeNil())
			Expect(result.Won()).To(BeFalse())
		})

		It("reports unknown pros", func() {
			_, err := svc.GetPro(context.TODO(), "nobody")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})
})
