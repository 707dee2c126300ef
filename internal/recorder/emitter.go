// Package recorder fans processed frame records out to logs, stores and brokers.
package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
)

// Sink consumes frame records. Write is called from a single goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec model.FrameRecord) error
}

// Emitter queues records from the connection loop and hands them to every sink in order.
// A full queue drops the record instead of blocking the caller.
type Emitter struct {
	queue   chan model.FrameRecord
	sinks   []Sink
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
	log     *logrus.Entry
}

func NewEmitter(queue int, sinks ...Sink) *Emitter {
	if queue <= 0 {
		queue = 1024
	}
	return &Emitter{
		queue: make(chan model.FrameRecord, queue),
		sinks: sinks,
		done:  make(chan struct{}),
		log:   logrus.WithField("component", "recorder"),
	}
}

// Record enqueues rec without blocking.
func (e *Emitter) Record(rec model.FrameRecord) {
	select {
	case e.queue <- rec:
	default:
		if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
			e.log.WithField("dropped", n).Warn("record queue full, dropping")
		}
	}
}

// Dropped returns the number of records lost to a full queue.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Run delivers queued records until ctx is done, then drains what is left.
func (e *Emitter) Run(ctx context.Context) {
	defer e.once.Do(func() { close(e.done) })
	for {
		select {
		case rec := <-e.queue:
			e.deliver(ctx, rec)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-e.queue:
					e.deliver(drainCtx, rec)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (e *Emitter) Done() <-chan struct{} {
	return e.done
}

func (e *Emitter) deliver(ctx context.Context, rec model.FrameRecord) {
	for _, s := range e.sinks {
		if err := s.Write(ctx, rec); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"sink": s.Name(),
				"kind": rec.Kind,
				"imei": rec.DeviceIMEI(),
			}).Warn("sink write failed")
		}
	}
}
