package service_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"gorm.io/gorm"
)

var _ = Describe("dispatch service", Ordered, func() {
	var (
		s        store.Store
		gormdb   *gorm.DB
		rec      *recorder
		producer *events.EventProducer
		svc      *service.DispatchService
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

	start := func(cfg *config.DispatchConfig, opts ...service.DispatchOption) {
		rec = newRecorder()
		producer = events.NewEventProducer(rec)
		svc = service.NewDispatchService(s, producer, cfg, opts...)
	}

	AfterEach(func() {
		if svc != nil {
			svc.Close()
			svc = nil
		}
		if producer != nil {
			_ = producer.Close()
			producer = nil
		}
		cleanup(gormdb)
	})

	Context("candidate selection", func() {
		BeforeEach(func() {
			start(config.NewDefaultDispatch())
		})

		It("skips the unavailable pro and offers the best rated one first", func() {
			addPros(svc,
				newPro("A", 0.5, 5.0, false),
				newPro("B", 2, 4.9, true),
				newPro("C", 1, 4.6, true),
			)
			job := newJob(svc)

			ranked, err := svc.QuickMatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(ranked).To(HaveLen(3))
			Expect([]string{ranked[0].ID, ranked[1].ID, ranked[2].ID}).To(Equal([]string{"B", "C", "A"}))

			offered, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(offered.Status).To(Equal(model.JobStatusOffered))
			Expect(offered.OfferRound).To(Equal(1))
			Expect(offered.ReassignCount).To(Equal(0))
			Expect(offered.OfferDeadline).ToNot(BeNil())

			Eventually(rec.Count(job.ID, events.OfferedKind)).Should(Equal(1))
			ev := rec.Of(job.ID, events.OfferedKind)[0]
			Expect(ev.Recipients).To(Equal([]string{"B"}))
			Expect(ev.Urgent).To(BeFalse())

			Expect(svc.PendingTimers(job.ID)).To(ConsistOf("offer"))
		})

		It("ignores pros out of range or of another trade", func() {
			far := newPro("far", 40, 5.0, true)
			painter := newPro("painter", 1, 5.0, true)
			painter.ServiceTypes = []string{"painting"}
			offline := newPro("offline", 1, 5.0, true)
			offline.Online = false
			addPros(svc, far, painter, offline, newPro("near", 3, 3.0, true))
			job := newJob(svc)

			ranked, err := svc.QuickMatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(ranked).To(HaveLen(1))
			Expect(ranked[0].ID).To(Equal("near"))
		})

		It("refuses to dispatch a job twice", func() {
			addPros(svc, newPro("B", 2, 4.9, true))
			job := newJob(svc)

			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			_, err = svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidTransition{}))
		})

		It("reports an unknown job", func() {
			_, err := svc.Dispatch(context.TODO(), uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("claims", func() {
		BeforeEach(func() {
			start(config.NewDefaultDispatch())
		})

		for run := 0; run < 3; run++ {
			It(fmt.Sprintf("lets exactly one of many concurrent claims win (run %d)", run), func() {
				const claimants = 10
				for i := 0; i < claimants; i++ {
					addPros(svc, newPro(fmt.Sprintf("pro-%d", i), float64(i+1), 4.5, true))
				}
				job := newJob(svc)
				_, err := svc.Dispatch(context.TODO(), job.ID)
				Expect(err).To(BeNil())

				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					winners []string
				)
				for i := 0; i < claimants; i++ {
					wg.Add(1)
					go func(proID string, delay time.Duration) {
						defer GinkgoRecover()
						defer wg.Done()
						time.Sleep(delay)

						result, err := svc.TryClaim(context.TODO(), job.ID, proID)
						Expect(err).To(BeNil())
						if result.Won() {
							mu.Lock()
							winners = append(winners, proID)
							mu.Unlock()
						} else {
							Expect(result.Message).To(Equal("job no longer available"))
						}
					}(fmt.Sprintf("pro-%d", i), time.Duration(rand.Intn(5000))*time.Microsecond)
				}
				wg.Wait()

				Expect(winners).To(HaveLen(1))

				got, err := svc.GetJob(context.TODO(), job.ID)
				Expect(err).To(BeNil())
				Expect(got.Status).To(Equal(model.JobStatusAccepted))
				Expect(got.AssignedTo(winners[0])).To(BeTrue())
				Expect(got.NoShowDeadline).ToNot(BeNil())

				history, err := svc.GetDispatchHistory(context.TODO(), job.ID)
				Expect(err).To(BeNil())
				Expect(history.ClaimAttempts).To(HaveLen(claimants))
				won := 0
				for _, a := range history.ClaimAttempts {
					if a.Outcome == model.ClaimOutcomeWon {
						won++
						Expect(a.ProID).To(Equal(winners[0]))
					}
				}
				Expect(won).To(Equal(1))

				Eventually(rec.Count(job.ID, events.AcceptedKind)).Should(Equal(1))
				Expect(svc.PendingTimers(job.ID)).To(ContainElement("no_show"))
				Expect(svc.PendingTimers(job.ID)).ToNot(ContainElement("offer"))
			})
		}

		It("answers a repeated claim without recording it twice", func() {
			addPros(svc, newPro("B", 2, 4.9, true), newPro("C", 1, 4.6, true))
			job := newJob(svc)
			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			first, err := svc.TryClaim(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(first.Won()).To(BeTrue())

			again, err := svc.TryClaim(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(again.Won()).To(BeTrue())
			Expect(again.Job.AssignedTo("B")).To(BeTrue())

			lost, err := svc.TryClaim(context.TODO(), job.ID, "C")
			Expect(err).To(BeNil())
			Expect(lost.Won()).To(BeFalse())
			lostAgain, err := svc.TryClaim(context.TODO(), job.ID, "C")
			Expect(err).To(BeNil())
			Expect(lostAgain.Won()).To(BeFalse())

			history, err := svc.GetDispatchHistory(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(history.ClaimAttempts).To(HaveLen(2))
		})

		It("loses a claim on a job that is not offered", func() {
			addPros(svc, newPro("B", 2, 4.9, true))
			job := newJob(svc)

			result, err := svc.TryClaim(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(result.Won()).To(BeFalse())
			Expect(result.Job.Status).To(Equal(model.JobStatusCreated))
		})

		It("expires a claim made after the offer deadline before the timer runs", func() {
			var offset atomic.Int64
			svc.Close()
			start(config.NewDefaultDispatch(), service.WithClock(func() time.Time {
				return time.Now().UTC().Add(time.Duration(offset.Load()))
			}))
			addPros(svc, newPro("B", 2, 4.9, true))
			job := newJob(svc)
			offered, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			offset.Store(int64(11 * time.Minute))

			result, err := svc.TryClaim(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(result.Won()).To(BeFalse())
			Expect(result.Outcome).To(Equal(model.ClaimOutcomeExpired))
			Expect(result.Message).To(Equal("offer expired"))
			Expect(result.Job.Status).To(Equal(model.JobStatusOffered))
			Expect(result.Job.OfferRound).To(Equal(offered.OfferRound))
			Expect(result.Job.AssignedProID).To(BeNil())

			history, err := svc.GetDispatchHistory(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(history.ClaimAttempts).To(HaveLen(1))
			Expect(history.ClaimAttempts[0].Outcome).To(Equal(model.ClaimOutcomeExpired))
			Expect(rec.Of(job.ID, events.AcceptedKind)).To(BeEmpty())
		})
	})

	Context("offer timeout", func() {
		It("re-offers to the next pro, then escalates once nobody is left", func() {
			start(fastDispatch())
			addPros(svc, newPro("B", 2, 4.9, true), newPro("C", 1, 4.6, true))
			job := newJob(svc)

			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			Eventually(func() int {
				got, err := svc.GetJob(context.TODO(), job.ID)
				Expect(err).To(BeNil())
				return got.OfferRound
			}).Should(Equal(2))

			Eventually(rec.Count(job.ID, events.OfferedKind)).Should(Equal(2))
			offers := rec.Of(job.ID, events.OfferedKind)
			Expect(offers).To(HaveLen(2))
			Expect(offers[1].Recipients).To(Equal([]string{"C"}))
			Expect(offers[1].ReassignCount).To(Equal(1))

			Eventually(func() bool {
				got, err := svc.GetJob(context.TODO(), job.ID)
				Expect(err).To(BeNil())
				return got.Escalated
			}).Should(BeTrue())

			got, err := svc.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCreated))
			Expect(got.AssignedProID).To(BeNil())
			Expect(got.OfferDeadline).To(BeNil())
			Expect(got.EscalationReason).To(Equal("no_candidates"))

			Eventually(rec.Count(job.ID, events.DispatchExhaustedKind)).Should(Equal(1))
			Consistently(rec.Count(job.ID, events.DispatchExhaustedKind), 500*time.Millisecond).Should(Equal(1))
			Expect(svc.PendingTimers(job.ID)).To(BeEmpty())

			history, err := svc.GetDispatchHistory(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(history.ClaimAttempts).To(HaveLen(2))
			for _, a := range history.ClaimAttempts {
				Expect(a.Outcome).To(Equal(model.ClaimOutcomeExpired))
			}

			// a manual dispatch starts over with the whole pool
			again, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(again.Escalated).To(BeFalse())
			Expect(again.ReassignCount).To(Equal(0))
			Expect(again.OfferRound).To(Equal(3))
			Expect(again.AssignedProID).To(BeNil())

			result, err := svc.TryClaim(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(result.Won()).To(BeTrue())
		})

		It("escalates after the maximum number of reassignments", func() {
			cfg := fastDispatch()
			cfg.MaxReassignments = 1
			start(cfg)
			addPros(svc, newPro("B", 2, 4.9, true), newPro("C", 1, 4.6, true), newPro("D", 3, 4.0, true))
			job := newJob(svc)

			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			Eventually(rec.Count(job.ID, events.DispatchExhaustedKind)).Should(Equal(1))
			ev := rec.Of(job.ID, events.DispatchExhaustedKind)[0]
			Expect(ev.Reason).To(Equal("max_reassignments"))
			Expect(ev.ReassignCount).To(Equal(1))
			Expect(rec.Of(job.ID, events.OfferedKind)).To(HaveLen(2))

			Consistently(rec.Count(job.ID, events.DispatchExhaustedKind), 600*time.Millisecond).Should(Equal(1))
		})

		It("does not expire an offer that was claimed in time", func() {
			start(fastDispatch())
			addPros(svc, newPro("B", 2, 4.9, true))
			job := newJob(svc)

			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			result, err := svc.TryClaim(context.TODO(), job.ID, "B")
			Expect(err).To(BeNil())
			Expect(result.Won()).To(BeTrue())

			_, err = svc.CheckIn(context.TODO(), job.ID, checkInAt("B", site))
			Expect(err).To(BeNil())

			Consistently(rec.Count(job.ID, events.OfferExpiredKind), 700*time.Millisecond).Should(Equal(0))
			got, err := svc.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCheckedIn))
		})
	})

	Context("no candidates", func() {
		It("retries and offers once a pro comes online", func() {
			start(fastDispatch())
			job := newJob(svc)

			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNoCandidatesAvailable{}))
			Expect(svc.PendingTimers(job.ID)).To(ConsistOf("dispatch_retry"))

			addPros(svc, newPro("B", 2, 4.9, true))

			Eventually(func() model.JobStatus {
				got, err := svc.GetJob(context.TODO(), job.ID)
				Expect(err).To(BeNil())
				return got.Status
			}).Should(Equal(model.JobStatusOffered))
			Eventually(rec.Count(job.ID, events.OfferedKind)).Should(Equal(1))
			Expect(rec.Of(job.ID, events.OfferedKind)[0].Recipients).To(Equal([]string{"B"}))
		})

		It("escalates once the retries are spent", func() {
			start(fastDispatch())
			job := newJob(svc)

			_, err := svc.Dispatch(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNoCandidatesAvailable{}))

			Eventually(rec.Count(job.ID, events.DispatchExhaustedKind)).Should(Equal(1))
			Expect(rec.Of(job.ID, events.DispatchExhaustedKind)[0].Reason).To(Equal("no_candidates"))

			got, err := svc.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusCreated))
			Expect(got.Escalated).To(BeTrue())
			Expect(svc.PendingTimers(job.ID)).To(BeEmpty())
		})
	})
})
