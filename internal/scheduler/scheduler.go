// Package scheduler implements the three-priority job scheduler:
// a dedicated-thread P0 lane for wake/UI events, and two bounded async
// lanes (P1 translation/render, P2 OCR) that drop rather than block when
// full. Grounded on the drop-not-block enqueue idiom in the teacher's
// session controller (sotto/internal/session/session.go, requestStop /
// requestCancel: "select { case ch <- x: default: already requested }"),
// generalized from a single action channel to three priority lanes.
package scheduler

import (
	"log/slog"
	"sync"

	"github.com/akumauu/ciallo/internal/cancel"
)

// Job is a unit of work submitted to a lane. Run receives the guard
// issued for this submission and must call guard.ShouldContinue()
// immediately before any externally visible effect.
type Job func(guard cancel.Guard)

const (
	// P1Capacity bounds the translation/render lane.
	P1Capacity = 64
	// P2Capacity bounds the OCR lane.
	P2Capacity = 16
)

// p0Job pairs a job with the guard it was issued, since P0 has no
// buffering and must not race the coordinator between issue and run.
type p0Job struct {
	guard cancel.Guard
	run   Job
}

// p1p2Job is identical in shape to p0Job but kept as a distinct type
// since P0 must stay structurally separate from P1/P2:
// P0 is an unbounded channel serviced by one dedicated goroutine pinned
// for the process lifetime, while P1/P2 are bounded and each serviced by
// one worker goroutine that runs its jobs one at a time.
type p1p2Job struct {
	guard cancel.Guard
	run   Job
}

// Scheduler owns the three lanes and the coordinator used to preempt
// P1/P2 on every fresh wake cycle.
type Scheduler struct {
	log         *slog.Logger
	coordinator *cancel.Coordinator

	p0 chan p0Job // unbounded via internal queue, see SubmitP0
	p1 chan p1p2Job
	p2 chan p1p2Job

	p0mu    sync.Mutex
	p0queue []p0Job
	p0wake  chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler bound to coordinator and starts its three
// worker goroutines (one dedicated to P0, one each servicing P1 and P2).
func New(coordinator *cancel.Coordinator, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		log:         log,
		coordinator: coordinator,
		p1:          make(chan p1p2Job, P1Capacity),
		p2:          make(chan p1p2Job, P2Capacity),
		p0wake:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	s.wg.Add(3)
	go s.runP0()
	go s.runLane("p1", s.p1)
	go s.runLane("p2", s.p2)
	return s
}

// Close signals every lane worker to exit and waits for them to drain.
func (s *Scheduler) Close() {
	close(s.stop)
	s.wg.Wait()
}

// SubmitP0 enqueues job on the dedicated wake/UI lane. P0 is never
// bounded and never dropped: wake hits and UI acknowledgements are rare,
// small, and must never be silently lost. It is forbidden from doing
// network I/O, disk I/O, or slow computation — callers must keep
// P0 jobs to state transitions and event emission only.
func (s *Scheduler) SubmitP0(job Job) {
	guard := s.coordinator.IssueRoot()
	s.p0mu.Lock()
	s.p0queue = append(s.p0queue, p0Job{guard: guard, run: job})
	s.p0mu.Unlock()
	select {
	case s.p0wake <- struct{}{}:
	default:
	}
}

// SubmitP1 enqueues a translation/render job. If the lane is full the job
// is dropped and false is returned: P1 backs off rather than blocking
// the caller, matching the teacher's "already requested" drop semantics.
func (s *Scheduler) SubmitP1(job Job) bool {
	guard := s.coordinator.IssueP1()
	select {
	case s.p1 <- p1p2Job{guard: guard, run: job}:
		return true
	default:
		s.log.Warn("scheduler: p1 lane full, dropping job")
		return false
	}
}

// SubmitP2 enqueues an OCR job. Same drop-not-block semantics as
// SubmitP1.
func (s *Scheduler) SubmitP2(job Job) bool {
	guard := s.coordinator.IssueP2()
	select {
	case s.p2 <- p1p2Job{guard: guard, run: job}:
		return true
	default:
		s.log.Warn("scheduler: p2 lane full, dropping job")
		return false
	}
}

// Preempt cancels every in-flight P1/P2 (and root) job and advances all
// three generations. The daemon calls it whenever a fresh wake is
// confirmed, since a fresh wake cycle invalidates the prior cycle's work.
func (s *Scheduler) Preempt() {
	s.coordinator.CancelAllAndAdvance()
}

// runP0 is the dedicated OS-thread-equivalent goroutine servicing the
// wake/UI lane: it never shares a run loop with P1/P2 so a stalled P1/P2
// worker can never starve wake detection.
func (s *Scheduler) runP0() {
	defer s.wg.Done()
	for {
		s.p0mu.Lock()
		queue := s.p0queue
		s.p0queue = nil
		s.p0mu.Unlock()

		for _, j := range queue {
			if !j.guard.ShouldContinue() {
				continue
			}
			j.run(j.guard)
		}

		select {
		case <-s.p0wake:
		case <-s.stop:
			return
		}
	}
}

// runLane services a bounded P1/P2 channel, checking the guard before
// every job runs and again immediately before any effect the job itself
// commits (the job body is responsible for the latter, per Job's
// contract).
func (s *Scheduler) runLane(name string, ch chan p1p2Job) {
	defer s.wg.Done()
	for {
		select {
		case j := <-ch:
			if !j.guard.ShouldContinue() {
				s.log.Debug("scheduler: dropping stale job", "lane", name)
				continue
			}
			j.run(j.guard)
		case <-s.stop:
			return
		}
	}
}
