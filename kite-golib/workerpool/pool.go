package workerpool

import (
	"sync"

	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Job is a unit of work run by the pool
type Job func() error

// Pool runs jobs on a fixed number of goroutines
type Pool struct {
	jobs chan Job
	stop chan struct{}

	pending  sync.WaitGroup
	stopOnce sync.Once

	m    sync.Mutex
	errs errors.Errors
}

// New starts a pool with n workers (at least one)
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		jobs: make(chan Job),
		stop: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go p.work()
	}
	return p
}

// Add queues jobs without blocking the caller
func (p *Pool) Add(jobs []Job) {
	p.pending.Add(len(jobs))
	go p.feed(jobs)
}

// AddBlocking queues jobs and returns once every job has been handed to a worker (or skipped by Stop)
func (p *Pool) AddBlocking(jobs []Job) {
	p.pending.Add(len(jobs))
	p.feed(jobs)
}

// Stop skips every job that has not started yet; running jobs finish normally
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Wait blocks until all added jobs finished or were skipped, then releases the workers.
// It returns the errors of the failed jobs combined into an errors.Errors, or nil.
// The pool cannot be reused after Wait.
func (p *Pool) Wait() error {
	p.pending.Wait()
	p.Stop()

	p.m.Lock()
	defer p.m.Unlock()
	if p.errs == nil {
		return nil
	}
	return p.errs
}

func (p *Pool) feed(jobs []Job) {
	for i, job := range jobs {
		select {
		case <-p.stop:
			for range jobs[i:] {
				p.pending.Done()
			}
			return
		default:
		}

		select {
		case p.jobs <- job:
		case <-p.stop:
			for range jobs[i:] {
				p.pending.Done()
			}
			return
		}
	}
}

func (p *Pool) work() {
	for {
		select {
		case job := <-p.jobs:
			p.run(job)
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) run(job Job) {
	defer p.pending.Done()
	if err := job(); err != nil {
		p.m.Lock()
		p.errs = errors.Append(p.errs, err)
		p.m.Unlock()
	}
}
