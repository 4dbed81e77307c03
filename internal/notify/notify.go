// Package notify fans post-filter alerts out to a Telegram bot and a
// Firebase Cloud Messaging push channel, generalizing the donor's
// NotificationService/PushService pair into sink-agnostic dispatch with
// the donor's own drop-oldest overflow discipline (its pushQueue select
// default: drop), but dropping the oldest queued message rather than the
// newest so the most recent alert always gets through.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/model"
)

// Sink delivers a NotificationMessage to one external channel. Send must
// not block the caller; implementations queue internally.
type Sink interface {
	Send(model.NotificationMessage)
	Close()
}

// Fanout dispatches every NotificationMessage to all registered sinks
// without blocking the producer, and counts drops for observability.
type Fanout struct {
	sinks []Sink
	log   zerolog.Logger

	mu      sync.Mutex
	dropped uint64
}

// NewFanout returns a Fanout over sinks. A nil entry is skipped, letting
// callers wire an unconfigured sink (e.g. Telegram disabled) as nil.
func NewFanout(log zerolog.Logger, sinks ...Sink) *Fanout {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Fanout{sinks: live, log: log}
}

// Notify hands msg to every sink. Each sink applies its own bounded,
// drop-oldest queue, so this call never blocks.
func (f *Fanout) Notify(msg model.NotificationMessage) {
	for _, s := range f.sinks {
		s.Send(msg)
	}
}

// Dropped returns the cumulative count of messages dropped by overflow
// across all sinks.
func (f *Fanout) Dropped() uint64 {
	f.mu.Lock()
	total := f.dropped
	f.mu.Unlock()
	for _, s := range f.sinks {
		switch sk := s.(type) {
		case *TelegramSink:
			total += sk.queue.droppedCount()
		case *PushSink:
			total += sk.queue.droppedCount()
		}
	}
	return total
}

func (f *Fanout) addDropped(n uint64) {
	f.mu.Lock()
	f.dropped += n
	f.mu.Unlock()
}

// Close stops every sink's worker.
func (f *Fanout) Close() {
	for _, s := range f.sinks {
		s.Close()
	}
}

// boundedQueue is a fixed-capacity channel wrapper that drops the oldest
// buffered item on overflow instead of the newest, shared by every Sink
// implementation in this package.
type boundedQueue struct {
	ch      chan model.NotificationMessage
	dropped *uint64
	mu      *sync.Mutex
}

func newBoundedQueue(capacity int) *boundedQueue {
	var n uint64
	return &boundedQueue{
		ch:      make(chan model.NotificationMessage, capacity),
		dropped: &n,
		mu:      &sync.Mutex{},
	}
}

// push enqueues msg, evicting the oldest queued message if full.
func (q *boundedQueue) push(msg model.NotificationMessage) {
	select {
	case q.ch <- msg:
		return
	default:
	}

	select {
	case <-q.ch:
		q.mu.Lock()
		*q.dropped++
		q.mu.Unlock()
	default:
	}

	select {
	case q.ch <- msg:
	default:
	}
}

func (q *boundedQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.dropped
}
