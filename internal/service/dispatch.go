package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/internal/store/model"
	"go.uber.org/zap"
)

const (
	reasonMaxReassignments = "max_reassignments"
	reasonNoCandidates     = "no_candidates"

	claimLostMessage    = "job no longer available"
	claimExpiredMessage = "offer expired"
	urgentMessage       = "Urgent: a customer needs a pro right now. First to accept gets the job."
	noShowMessage       = "Your pro could not make it. A new pro is on the way."
)

// DispatchService owns every state change of a job once the booking flow hands it over.
//
// All mutations of a job go through transition: per-job lock, database transaction, row lock,
// conditional update, commit, then timers and events. Timer callbacks take the same path and
// re-read the job before acting.
type DispatchService struct {
	store    store.Store
	producer *events.EventProducer
	cfg      *config.DispatchConfig
	locks    *jobLocks
	timers   *Scheduler
	now      func() time.Time
}

type DispatchOption func(s *DispatchService)

// WithClock replaces the wall clock used for deadlines.
func WithClock(now func() time.Time) DispatchOption {
	return func(s *DispatchService) {
		s.now = now
	}
}

func WithScheduler(scheduler *Scheduler) DispatchOption {
	return func(s *DispatchService) {
		s.timers = scheduler
	}
}

func NewDispatchService(s store.Store, producer *events.EventProducer, cfg *config.DispatchConfig, opts ...DispatchOption) *DispatchService {
	ds := &DispatchService{
		store:    s,
		producer: producer,
		cfg:      cfg,
		locks:    newJobLocks(),
		timers:   NewScheduler(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(ds)
	}
	return ds
}

// Close stops every pending timer. Deadlines stay in the database and are picked up by the sweeper.
func (s *DispatchService) Close() {
	s.timers.Stop()
}

// PendingTimers lists the timers armed for a job.
func (s *DispatchService) PendingTimers(jobID uuid.UUID) []string {
	return s.timers.Pending(jobID)
}

type outgoingEvent struct {
	kind  string
	event events.DispatchEvent
}

// transition is one locked, transactional change of a job.
type transition struct {
	ctx    context.Context
	svc    *DispatchService
	job    *model.Job
	now    time.Time
	events []outgoingEvent
	after  []func()
}

// update applies a conditional update and refreshes t.job.
func (t *transition) update(cond store.JobCondition, updates map[string]any) error {
	job, err := t.svc.store.Job().CompareAndUpdate(t.ctx, t.job.ID, cond, updates)
	if err != nil {
		return err
	}
	t.job = job
	return nil
}

func (t *transition) emit(kind string, ev events.DispatchEvent) {
	ev.JobID = t.job.ID.String()
	ev.Status = string(t.job.Status)
	ev.Round = t.job.OfferRound
	ev.ReassignCount = t.job.ReassignCount
	if !ev.Urgent {
		ev.Urgent = t.job.Urgent
	}
	t.events = append(t.events, outgoingEvent{kind: kind, event: ev})
}

// record appends a timeline entry for the job.
func (t *transition) record(kind string, proID string, detail string) error {
	entry := model.TimelineEvent{JobID: t.job.ID, Kind: kind, Detail: detail, CreatedAt: t.now}
	if proID != "" {
		entry.ProID = &proID
	}
	return t.svc.store.Audit().AppendTimeline(t.ctx, entry)
}

// then runs fn after the transaction committed, still under the job lock.
func (t *transition) then(fn func()) {
	t.after = append(t.after, fn)
}

// transition runs fn against the locked job. Nothing fn did is kept when it returns an error.
func (s *DispatchService) transition(ctx context.Context, jobID uuid.UUID, fn func(t *transition) error) (*model.Job, error) {
	unlock := s.locks.Lock(jobID)
	defer unlock()

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	job, err := s.store.Job().GetForUpdate(txCtx, jobID)
	if err != nil {
		_, _ = store.Rollback(txCtx)
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}

	t := &transition{ctx: txCtx, svc: s, job: job, now: s.now()}
	if err := fn(t); err != nil {
		_, _ = store.Rollback(txCtx)
		return nil, err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}

	for _, fn := range t.after {
		fn()
	}
	for _, e := range t.events {
		if err := s.producer.Publish(ctx, e.kind, e.event); err != nil {
			zap.S().Named("dispatch_service").Errorw("failed to publish event", "error", err, "kind", e.kind, "job_id", jobID)
		}
	}

	return t.job, nil
}

// fire runs a timer-driven transition. These never surface errors to a caller.
func (s *DispatchService) fire(name string, jobID uuid.UUID, fn func(t *transition) error) {
	_, err := s.transition(context.Background(), jobID, fn)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		zap.S().Named("dispatch_service").Debugw("job changed under the timer, skipping", "timer", name, "job_id", jobID)
	default:
		zap.S().Named("dispatch_service").Errorw("timer transition failed", "timer", name, "job_id", jobID, "error", err)
	}
}

func intPtr(i int) *int {
	return &i
}

func timePtr(t time.Time) *time.Time {
	return &t
}
