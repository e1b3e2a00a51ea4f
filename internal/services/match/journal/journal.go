// Package journal writes coordinator lifecycle events to durable storage in
// the background.
//
// The journal is best-effort. Record never blocks the coordinator: when the
// queue is full the event is dropped and counted.
package journal

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/duelhall/internal/platform/timeouts"
	"github.com/louisbranch/duelhall/internal/services/match/coordinator"
)

const defaultBuffer = 256

// Store persists lifecycle events.
type Store interface {
	AppendSessionEvent(ctx context.Context, evt coordinator.Event) error
}

// Journal queues lifecycle events for a single background writer.
type Journal struct {
	store   Store
	queue   chan coordinator.Event
	dropped atomic.Uint64

	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	drain     time.Duration
}

// Start launches the writer goroutine. A nil store yields a nil journal,
// which is a valid no-op Recorder.
func Start(store Store, buffer int) *Journal {
	if store == nil {
		return nil
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &Journal{
		store: store,
		queue: make(chan coordinator.Event, buffer),
		stop:  cancel,
		done:  make(chan struct{}),
		drain: timeouts.JournalDrain,
	}
	go j.run(ctx)
	return j
}

// Record implements coordinator.Recorder.
func (j *Journal) Record(evt coordinator.Event) {
	if j == nil {
		return
	}
	select {
	case j.queue <- evt:
	default:
		n := j.dropped.Add(1)
		log.Printf("match: journal queue full, dropped kind=%q room=%q total_dropped=%d", evt.Kind, evt.RoomID, n)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (j *Journal) Dropped() uint64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}

// Close stops the writer after flushing what is already queued, bounded by
// the drain timeout. Events recorded after Close are not written.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.closeOnce.Do(func() {
		j.stop()
		<-j.done
	})
}

func (j *Journal) run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case evt := <-j.queue:
			j.write(context.Background(), evt)
		case <-ctx.Done():
			j.flush()
			return
		}
	}
}

func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), j.drain)
	defer cancel()
	for {
		select {
		case evt := <-j.queue:
			if ctx.Err() != nil {
				log.Printf("match: journal drain timed out, abandoning queued events")
				return
			}
			j.write(ctx, evt)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, evt coordinator.Event) {
	if err := j.store.AppendSessionEvent(ctx, evt); err != nil {
		log.Printf("match: journal append kind=%q room=%q: %v", evt.Kind, evt.RoomID, err)
	}
}
