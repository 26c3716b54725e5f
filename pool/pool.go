package pool

import (
	"errors"
	"github.com/eapache/queue"
	"github.com/fzft/go-wcam/log"
	"go.uber.org/zap"
	"sync"
)

var ErrPoolClosed = errors.New("pool: closed")

// Job is a unit of blocking work. Anything it shares with the event loop needs
// its own synchronization.
type Job func()

type Option func(*Pool)

// WithDrain makes Shutdown run every queued job before the workers exit.
func WithDrain() Option {
	return func(p *Pool) {
		p.drain = true
	}
}

// WithObserver is called after each job with the number of jobs still queued.
func WithObserver(fn func(pending int)) Option {
	return func(p *Pool) {
		p.observe = fn
	}
}

// Pool is a fixed set of workers consuming a FIFO queue.
//
// By default Shutdown does not drain: a worker that observes the shutdown flag exits
// even if jobs remain queued. Only jobs already dequeued are guaranteed to finish.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     *queue.Queue
	shutdown bool
	drain    bool

	workers   int
	wg        sync.WaitGroup
	discarded int
	observe   func(pending int)
}

func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		jobs:    queue.New(),
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) Submit(job Job) error {
	if job == nil {
		return errors.New("pool: nil job")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrPoolClosed
	}
	p.jobs.Add(job)
	p.cond.Signal()
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.jobs.Length() == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if p.shutdown && (!p.drain || p.jobs.Length() == 0) {
			p.mu.Unlock()
			return
		}
		job := p.jobs.Remove().(Job)
		pending := p.jobs.Length()
		p.mu.Unlock()

		p.run(id, job)
		if p.observe != nil {
			p.observe(pending)
		}
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error("pool job panic", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	job()
}

// Shutdown wakes every worker and waits for them to exit. Jobs left in the queue
// are discarded unless the pool was built WithDrain.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.shutdown = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.discarded = p.jobs.Length()
	for p.jobs.Length() > 0 {
		p.jobs.Remove()
	}
	p.mu.Unlock()

	if p.discarded > 0 {
		log.Logger.Info("pool shutdown discarded queued jobs", zap.Int("jobs", p.discarded))
	}
	return nil
}

// Pending is the number of queued jobs not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs.Length()
}

// Discarded is the number of jobs dropped by Shutdown.
func (p *Pool) Discarded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discarded
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

func (p *Pool) Workers() int {
	return p.workers
}
