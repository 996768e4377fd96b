// Package pubsub implements the queue transport on Google Cloud Pub/Sub.
//
// Pub/Sub supplies the at-least-once guarantees the pipeline relies on: the
// subscription's ack deadline is the visibility timeout, and the dead-letter
// policy (max delivery attempts plus a dead-letter topic) is configured on
// the subscription itself.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/leads"
)

// Config identifies the topic and subscription used by the pipeline.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Queue implements leads.Queue on a Pub/Sub topic/subscription pair.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	startOnce  sync.Once
	deliveries chan leads.Delivery
	recvCtx    context.Context
	recvCancel context.CancelFunc
	recvErr    chan error
}

// New creates a Pub/Sub client and verifies the topic and subscription
// exist. It authenticates using Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	sub := client.Subscription(cfg.SubscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check subscription %q: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", cfg.SubscriptionID, cfg.ProjectID)
	}

	recvCtx, recvCancel := context.WithCancel(context.Background())
	return &Queue{
		client:     client,
		topic:      topic,
		sub:        sub,
		logger:     logger,
		deliveries: make(chan leads.Delivery),
		recvCtx:    recvCtx,
		recvCancel: recvCancel,
		recvErr:    make(chan error, 1),
	}, nil
}

// Enqueue publishes the message and blocks until the server acknowledges it,
// so an unreachable transport surfaces to the submitter instead of silently
// dropping a job that already exists in the job store.
func (q *Queue) Enqueue(ctx context.Context, msg leads.JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish job message: %w", err)
	}
	return nil
}

// Dequeue returns the next delivery. The subscription receiver is started on
// first use; each message's lease is held until its Ack or Nack is called.
func (q *Queue) Dequeue(ctx context.Context) (leads.Delivery, error) {
	q.startOnce.Do(func() { go q.receive() })

	select {
	case <-ctx.Done():
		return leads.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case err := <-q.recvErr:
		return leads.Delivery{}, fmt.Errorf("pubsub receive: %w", err)
	case d := <-q.deliveries:
		return d, nil
	}
}

func (q *Queue) receive() {
	err := q.sub.Receive(q.recvCtx, func(_ context.Context, m *pubsub.Message) {
		var msg leads.JobMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			// Unparseable payloads can never reach the worker; nack so the
			// subscription's dead-letter policy eventually diverts them.
			q.logger.Warn("dropping unparseable queue message", zap.Error(err))
			m.Nack()
			return
		}
		attempt := 1
		if m.DeliveryAttempt != nil && *m.DeliveryAttempt > 0 {
			attempt = *m.DeliveryAttempt
		}

		var once sync.Once
		done := make(chan struct{})
		delivery := leads.Delivery{
			Message: msg,
			Attempt: attempt,
			Ack: func() {
				once.Do(func() {
					m.Ack()
					close(done)
				})
			},
			Nack: func() {
				once.Do(func() {
					m.Nack()
					close(done)
				})
			},
		}

		select {
		case q.deliveries <- delivery:
			// Hold the handler (and therefore the ack deadline extension)
			// until the consumer settles the delivery.
			<-done
		case <-q.recvCtx.Done():
			m.Nack()
		}
	})
	if err != nil && q.recvCtx.Err() == nil {
		q.recvErr <- err
	}
}

// Close stops the receiver, flushes the publisher, and closes the client.
func (q *Queue) Close() error {
	q.recvCancel()
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("close pubsub client after init failure", zap.Error(err))
	}
}
