package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/sentineld/sentineld/internal/model"
)

const pushQueueCapacity = 500
const pushTopic = "anomaly_alerts"

// PushSink fans Critical-level NotificationMessages out to a Firebase
// Cloud Messaging topic, generalizing the donor's PushService (which
// gated delivery on a hand-rolled "Level >= 5" whale-alert threshold)
// to the model.NotifyCritical level.
type PushSink struct {
	client *messaging.Client
	queue  *boundedQueue
	log    zerolog.Logger
	done   chan struct{}
}

// NewPushSink initializes a Firebase app from the service-account
// credentials at keyPath.
func NewPushSink(ctx context.Context, keyPath string, log zerolog.Logger) (*PushSink, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("push: no service account key path configured")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(keyPath))
	if err != nil {
		return nil, fmt.Errorf("push: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: get messaging client: %w", err)
	}

	s := &PushSink{
		client: client,
		queue:  newBoundedQueue(pushQueueCapacity),
		log:    log,
		done:   make(chan struct{}),
	}
	go s.runWorker(ctx)
	return s, nil
}

// Send enqueues msg if it is Critical; lower levels are dropped silently,
// matching the donor's whale-only push gate.
func (s *PushSink) Send(msg model.NotificationMessage) {
	if msg.Level != model.NotifyCritical {
		return
	}
	s.queue.push(msg)
}

// Close stops the delivery worker.
func (s *PushSink) Close() {
	close(s.done)
}

func (s *PushSink) runWorker(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue.ch:
			s.deliver(ctx, msg)
		}
	}
}

func (s *PushSink) deliver(ctx context.Context, msg model.NotificationMessage) {
	data := map[string]string{"symbol": msg.Symbol}
	if msg.Alert != nil {
		data["kind"] = string(msg.Alert.Kind)
		data["tier"] = msg.Alert.Tier
	}
	out := &messaging.Message{
		Notification: &messaging.Notification{Title: "Anomaly Alert", Body: msg.Text},
		Data:         data,
		Topic:        pushTopic,
	}
	if _, err := s.client.Send(ctx, out); err != nil {
		s.log.Warn().Err(err).Msg("push: send failed")
	}
}
