// Package worker runs inbound events on an elastic pool of goroutines while
// keeping each principal's events strictly ordered.
package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"adminbot/internal/models"
)

var (
	ErrDispatcherBusy   = errors.New("dispatcher queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type principalQueue struct {
	jobs     []Job
	enqueued bool // on the ready list
	running  bool // a job of this principal is on a worker
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Workers     int `json:"workers"`
	IdleWorkers int `json:"idle_workers"`
	Queued      int `json:"queued"`
	InFlight    int `json:"in_flight"`
}

// Dispatcher fans events out to workers. A principal sits on the ready list
// only while it has queued jobs and nothing in flight, so its events run one
// at a time in arrival order; different principals run concurrently.
type Dispatcher struct {
	pool    *jobChannelPool
	handler Handler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	intakeMu sync.RWMutex
	closed   bool
	jobQueue chan Job // interface for outer jobs get in the dispatcher

	wake  chan struct{}
	done  chan struct{}
	limit int // queued jobs held outside the intake buffer

	mu        sync.Mutex
	queues    map[models.Principal]*principalQueue
	ready     *list.List // principals with a dispatchable job, oldest first
	positions map[models.Principal]*list.Element
	queued    int
	inFlight  int
}

func NewDispatcher(cfg Config, handler Handler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler:   handler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		jobQueue:  make(chan Job, cfg.QueueSize),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		limit:     cfg.QueueSize,
		queues:    make(map[models.Principal]*principalQueue),
		ready:     list.New(),
		positions: make(map[models.Principal]*list.Element),
	}
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, d)

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.warmUp()
	}

	go d.run()
	return d
}

// Submit queues an event without blocking. It fails with ErrDispatcherBusy
// when the intake buffer is full.
func (d *Dispatcher) Submit(ev models.Event) error {
	d.intakeMu.RLock()
	defer d.intakeMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobQueue <- Job{Type: jobEvent, Event: ev}:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Close stops intake and waits until every accepted event was handled.
// When ctx ends first, in-flight handlers see their context cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.intakeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobQueue)
	}
	d.intakeMu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	running, idle := d.pool.size()
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Workers:     running,
		IdleWorkers: idle,
		Queued:      d.queued + len(d.jobQueue),
		InFlight:    d.inFlight,
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	intake := d.jobQueue
	for {
		// stop draining intake while the per-principal queues are full, so
		// Submit pushes back instead of memory growing
		src := intake
		if d.full() {
			src = nil
		}
		if d.dispatchOne() {
			select {
			case job, ok := <-src:
				if !ok {
					intake = nil
					continue
				}
				d.enqueueJob(job)
			default:
			}
			continue
		}
		if intake == nil && d.drained() {
			d.pool.shutdown()
			return
		}
		select {
		case job, ok := <-src:
			if !ok {
				intake = nil
				continue
			}
			d.enqueueJob(job)
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queued >= d.limit
}

func (d *Dispatcher) drained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queued == 0 && d.inFlight == 0
}

func (d *Dispatcher) enqueueJob(job Job) {
	principal := job.Event.Principal

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[principal]
	if q == nil {
		q = &principalQueue{}
		d.queues[principal] = q
	}
	q.jobs = append(q.jobs, job)
	d.queued++
	d.markReadyLocked(principal, q)
}

func (d *Dispatcher) markReadyLocked(principal models.Principal, q *principalQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[principal] = d.ready.PushBack(principal)
}

// dispatchOne hands the front principal's next job to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	principal := elem.Value.(models.Principal)
	q := d.queues[principal]
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.ready.Remove(elem)
	delete(d.positions, principal)
	d.queued--
	d.inFlight++
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	d.logger.Debug("dispatching event",
		zap.String("event_id", job.Event.ID),
		zap.Stringer("principal", principal),
		zap.String("kind", string(job.Event.Kind)),
	)
	workerChan <- job
	return true
}

// complete is called by a worker once a principal's job returned.
func (d *Dispatcher) complete(principal models.Principal) {
	d.mu.Lock()
	d.inFlight--
	if q := d.queues[principal]; q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, principal)
		} else {
			d.markReadyLocked(principal, q)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}
