// Package workerpool implements the bounded dispatch pool from
// spec.md §4.6: a fixed number of workers pull inbound requests and
// notifications off a queue and run their handlers, so one slow or
// panicking handler cannot stall the peer's read loop or take down
// its siblings. Grounded on the Semaphore/WorkerPool shape in
// jinterlante1206-AleutianLocal's services/trace/context/concurrency.go,
// generalized into a supervised pool using golang.org/x/sync/errgroup
// the way dmora-agentrun's engine/acp package supervises its dispatch
// goroutine with a WaitGroup.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tormund/wirepeer/wlog"
)

// DefaultSize is the default worker count, per spec.md §4.6.
const DefaultSize = 5

// Job is a unit of dispatch work: typically a single handler
// invocation for one inbound request or notification.
type Job func(ctx context.Context)

// Pool runs Jobs on a fixed number of supervised workers.
type Pool struct {
	size   int
	logger wlog.Logger
	jobs   chan Job

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New returns a Pool with the given worker count (DefaultSize if
// size <= 0) and logger (wlog.Discard if nil). The pool is not
// accepting jobs until Start is called.
func New(size int, logger wlog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = wlog.Discard
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   size,
		logger: logger,
		jobs:   make(chan Job, size*4),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the pool's workers. Safe to call once per Pool.
func (p *Pool) Start() {
	g, _ := errgroup.WithContext(context.Background())
	p.group = g
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			p.superviseWorker(id)
			return nil
		})
	}
}

// Submit enqueues job for execution. Returns false if the pool has
// been closed and the job was dropped.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Close stops accepting new work and waits for in-flight jobs to
// drain. Queued-but-unstarted jobs may be discarded: a worker that sees
// both the closed pool and a queued job picks either one.
func (p *Pool) Close() {
	p.cancel()
	if p.group != nil {
		_ = p.group.Wait()
	}
}

// superviseWorker runs runWorker in a loop, restarting it (and logging
// a warning) every time it returns having recovered from a panic. It
// only returns for good once the pool's context is cancelled.
func (p *Pool) superviseWorker(id int) {
	for {
		died := p.runWorker(id)
		if !died {
			return
		}
	}
}

// runWorker processes jobs until the pool is closed or a job panics.
// It returns true if it exited because of a panic (and should be
// restarted), false on clean shutdown.
func (p *Pool) runWorker(id int) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Emit(wlog.Event{
				Kind:    wlog.KindWarn,
				Message: fmt.Sprintf("worker %d recovered from panic and is restarting: %v", id, r),
			})
			panicked = true
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return false
		case job, ok := <-p.jobs:
			if !ok {
				return false
			}
			job(p.ctx)
		}
	}
}
