package worker

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"

	"adminbot/internal/models"
)

// Handler processes one event. Events of the same principal never reach a
// Handler concurrently.
type Handler interface {
	Handle(ctx context.Context, ev models.Event)
}

type HandlerFunc func(ctx context.Context, ev models.Event)

func (f HandlerFunc) Handle(ctx context.Context, ev models.Event) {
	f(ctx, ev)
}

type jobType int

const (
	jobEvent jobType = iota
	jobStop
)

// Job is one unit of work handed to a worker.
type Job struct {
	Type  jobType
	Event models.Event
}

type Worker struct {
	pool       *jobChannelPool
	dispatcher *Dispatcher
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool, d *Dispatcher) *Worker {
	return &Worker{
		pool:       pool,
		dispatcher: d,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == jobStop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job.Event)
			w.dispatcher.complete(job.Event.Principal)
			w.pool.Release(w.jobChannel)
		}
	}()
}

func (w *Worker) run(ev models.Event) {
	d := w.dispatcher
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event_id", ev.ID),
				zap.Stringer("principal", ev.Principal),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	d.handler.Handle(d.ctx, ev)
}
