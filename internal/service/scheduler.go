package service

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/pkg/metrics"
	"go.uber.org/zap"
)

const (
	offerTimer    = "offer"
	noShowTimer   = "no_show"
	retryTimer    = "dispatch_retry"
	warningPrefix = "no_show_warning:"
)

type timerKey struct {
	jobID uuid.UUID
	kind  string
}

type scheduledTask struct {
	generation uint64
	timer      *time.Timer
}

// Scheduler runs single-fire callbacks per (job, kind). Scheduling a kind again replaces the
// pending callback. A replaced or cancelled callback never runs, but one that already started
// is not interrupted: callbacks must revalidate the job before acting.
type Scheduler struct {
	mu         sync.Mutex
	tasks      map[timerKey]*scheduledTask
	generation uint64
	running    sync.WaitGroup
	stopped    bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[timerKey]*scheduledTask)}
}

func (s *Scheduler) Schedule(jobID uuid.UUID, kind string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	key := timerKey{jobID: jobID, kind: kind}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	} else {
		metrics.UpdatePendingTimersMetric(timerFamily(kind), 1)
	}

	s.generation++
	gen := s.generation
	task := &scheduledTask{generation: gen}
	task.timer = time.AfterFunc(time.Until(at), func() {
		if !s.claim(key, gen) {
			return
		}
		defer s.running.Done()
		defer func() {
			if r := recover(); r != nil {
				zap.S().Named("scheduler").Errorw("timer callback panicked", "job_id", jobID, "kind", kind, "panic", r)
			}
		}()
		fn()
	})
	s.tasks[key] = task
}

// claim removes the task if it is still the current one for key.
func (s *Scheduler) claim(key timerKey, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[key]
	if !ok || task.generation != gen || s.stopped {
		return false
	}
	delete(s.tasks, key)
	metrics.UpdatePendingTimersMetric(timerFamily(key.kind), -1)
	s.running.Add(1)
	return true
}

// Cancel drops the pending callback of kind for the job. It reports whether one was pending.
func (s *Scheduler) Cancel(jobID uuid.UUID, kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel(timerKey{jobID: jobID, kind: kind})
}

// CancelPrefix drops every pending callback of the job whose kind starts with prefix.
func (s *Scheduler) CancelPrefix(jobID uuid.UUID, prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.tasks {
		if key.jobID == jobID && strings.HasPrefix(key.kind, prefix) {
			s.cancel(key)
		}
	}
}

func (s *Scheduler) CancelJob(jobID uuid.UUID) {
	s.CancelPrefix(jobID, "")
}

func (s *Scheduler) cancel(key timerKey) bool {
	task, ok := s.tasks[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.tasks, key)
	metrics.UpdatePendingTimersMetric(timerFamily(key.kind), -1)
	return true
}

// Pending returns the kinds armed for the job.
func (s *Scheduler) Pending(jobID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := []string{}
	for key := range s.tasks {
		if key.jobID == jobID {
			kinds = append(kinds, key.kind)
		}
	}
	return kinds
}

// Stop cancels everything pending and waits for running callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key := range s.tasks {
		s.cancel(key)
	}
	s.mu.Unlock()

	s.running.Wait()
}

func timerFamily(kind string) string {
	if strings.HasPrefix(kind, warningPrefix) {
		return strings.TrimSuffix(warningPrefix, ":")
	}
	return kind
}
