package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/model"
)

type captureSink struct {
	mu  sync.Mutex
	got []model.NotificationMessage
}

func (c *captureSink) Send(msg model.NotificationMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, msg)
}
func (c *captureSink) Close() {}

func (c *captureSink) messages() []model.NotificationMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.NotificationMessage, len(c.got))
	copy(out, c.got)
	return out
}

func TestFanoutDispatchesToAllSinksAndSkipsNil(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	f := NewFanout(zerolog.Nop(), a, nil, b)

	f.Notify(model.NotificationMessage{Symbol: "BTCUSDT", Text: "spike"})

	if len(a.messages()) != 1 || len(b.messages()) != 1 {
		t.Fatalf("expected both sinks to receive the message")
	}
}

func TestBoundedQueueDropsOldestOnOverflow(t *testing.T) {
	q := newBoundedQueue(2)
	q.push(model.NotificationMessage{Text: "first"})
	q.push(model.NotificationMessage{Text: "second"})
	q.push(model.NotificationMessage{Text: "third"})

	if q.droppedCount() != 1 {
		t.Fatalf("expected 1 drop, got %d", q.droppedCount())
	}

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case m := <-q.ch:
			got = append(got, m.Text)
		case <-time.After(time.Second):
			t.Fatal("expected queued message")
		}
	}
	if got[0] != "second" || got[1] != "third" {
		t.Fatalf("expected oldest ('first') dropped, got %v", got)
	}
}

func TestPushSinkDropsNonCriticalLevels(t *testing.T) {
	s := &PushSink{queue: newBoundedQueue(10), log: zerolog.Nop(), done: make(chan struct{})}
	defer close(s.done)

	s.Send(model.NotificationMessage{Level: model.NotifyInfo, Text: "ignored"})
	s.Send(model.NotificationMessage{Level: model.NotifyCritical, Text: "kept"})

	select {
	case m := <-s.queue.ch:
		if m.Text != "kept" {
			t.Fatalf("expected only the critical message queued, got %q", m.Text)
		}
	default:
		t.Fatal("expected critical message to be queued")
	}

	select {
	case m := <-s.queue.ch:
		t.Fatalf("expected queue to be empty after draining the one critical message, got %+v", m)
	default:
	}
}
