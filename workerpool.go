// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Job is one unit of dispatch work: invoke Handler with Envelope, on
// behalf of Owner.
type Job struct {
	Handler  Handler
	Envelope *Message
	Owner    ConnectionID
	// OnDone, if set, runs after Handler returns or panics. The
	// [ProxyLoop] uses it to track its pending-job count for
	// backpressure without the WorkerPool needing to know anything
	// about that accounting.
	OnDone func()
}

// WorkerPool runs dispatched jobs with two guarantees: jobs submitted for
// the same owning connection execute strictly in submission order, and
// no more than a fixed number of jobs run concurrently across the whole
// pool, regardless of how many connections are active.
//
// The two guarantees are realized with two independent mechanisms: a
// per-connection serial actor goroutine gives FIFO-per-connection for
// free (a single goroutine can only do one thing at a time), and a
// shared weighted semaphore bounds total concurrency across actors. An
// actor holds no semaphore slot while idle, so a pool with many mostly-
// idle connections does not starve on goroutine count, only on the
// semaphore.
type WorkerPool struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	actors map[ConnectionID]*connectionActor
	closed bool
}

// connectionActor serializes jobs for one connection.
type connectionActor struct {
	jobs chan Job
	done chan struct{}
}

// NewWorkerPool returns a [WorkerPool] that admits at most size
// concurrently-running jobs.
func NewWorkerPool(size int64) *WorkerPool {
	return &WorkerPool{
		sem:    semaphore.NewWeighted(size),
		actors: make(map[ConnectionID]*connectionActor),
	}
}

// Submit enqueues job on its owner's actor, spawning the actor on first
// use. Submit never blocks on the semaphore; only the actor goroutine
// does. It returns false if the pool has been stopped.
func (p *WorkerPool) Submit(job Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	actor, ok := p.actors[job.Owner]
	if !ok {
		actor = &connectionActor{
			jobs: make(chan Job, 256),
			done: make(chan struct{}),
		}
		p.actors[job.Owner] = actor
		go p.runActor(actor)
	}
	p.mu.Unlock()

	actor.jobs <- job
	return true
}

// RemoveConnection detaches owner's actor from the pool and closes its
// queue. The actor still runs every job already queued, in order, and
// then exits; a later Submit for owner spawns a fresh actor. Call this
// once a connection transitions to Dead.
func (p *WorkerPool) RemoveConnection(owner ConnectionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	actor, ok := p.actors[owner]
	if !ok {
		return
	}
	delete(p.actors, owner)
	close(actor.jobs)
}

func (p *WorkerPool) runActor(a *connectionActor) {
	defer close(a.done)
	ctx := context.Background()
	for job := range a.jobs {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			continue
		}
		runJob(job)
		p.sem.Release(1)
	}
}

// runJob invokes the handler, converting a panic into an INTERNAL_ERROR
// reply so a caller waiting on a reply tag is not left hanging forever.
func runJob(job Job) {
	defer func() {
		if job.OnDone != nil {
			job.OnDone()
		}
		if r := recover(); r != nil {
			if job.Envelope != nil && job.Envelope.HasReplyTag() {
				_ = job.Envelope.sink.postReply(job.Envelope.From, job.Envelope.replyTag,
					[][]byte{[]byte(ReasonInternalError)})
			}
		}
	}()
	job.Handler(context.Background(), job.Envelope)
}

// Stop prevents further submissions and waits for every actor's queue to
// drain. Jobs already enqueued run to completion. Actors already
// detached by RemoveConnection are not waited for.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	p.closed = true
	actors := make([]*connectionActor, 0, len(p.actors))
	for _, a := range p.actors {
		actors = append(actors, a)
	}
	p.actors = make(map[ConnectionID]*connectionActor)
	p.mu.Unlock()

	for _, a := range actors {
		close(a.jobs)
	}
	for _, a := range actors {
		<-a.done
	}
}
