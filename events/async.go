package events

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"home-services-server/metrics"
)

// Async hands events to next on its own goroutine, so a slow broker never holds up a request.
// When the queue is full the event is dropped and counted.
type Async struct {
	name    string
	next    Notifier
	queue   chan func(context.Context)
	log     *zap.Logger
	dropped atomic.Uint64
}

func NewAsync(name string, next Notifier, size int, log *zap.Logger) *Async {
	if size < 1 {
		size = 1
	}
	return &Async{name: name, next: next, queue: make(chan func(context.Context), size), log: log}
}

func (a *Async) NotifyBooking(_ context.Context, ev BookingEvent) {
	a.enqueue(func(ctx context.Context) { a.next.NotifyBooking(ctx, ev) })
}

func (a *Async) NotifyMessage(_ context.Context, ev MessageEvent) {
	a.enqueue(func(ctx context.Context) { a.next.NotifyMessage(ctx, ev) })
}

func (a *Async) enqueue(fn func(context.Context)) {
	select {
	case a.queue <- fn:
	default:
		a.dropped.Add(1)
		metrics.RecordNotification(a.name, false)
		a.log.Warn("notification queue full, dropping event", zap.String("sink", a.name))
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Run delivers queued events until ctx is cancelled, then flushes what is already queued.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case fn := <-a.queue:
			fn(ctx)
		case <-ctx.Done():
			a.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	for {
		select {
		case fn := <-a.queue:
			fn(ctx)
		default:
			return
		}
	}
}
