// Package memory provides an in-process queue with at-least-once semantics
// for local development and tests. Deliveries are leased: a message that is
// neither acked nor nacked within the visibility timeout becomes
// redeliverable, and a message that exhausts its receive budget is diverted
// to the dead-letter list instead of being retried forever.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prospectica/leadpipe/internal/leads"
)

// Config controls queue behavior.
type Config struct {
	Capacity          int
	VisibilityTimeout time.Duration
	MaxReceiveCount   int
}

type envelope struct {
	msg     leads.JobMessage
	attempt int
}

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	cfg  Config
	ch   chan envelope
	done chan struct{}

	closeMu sync.Mutex
	closed  bool

	deadMu sync.Mutex
	dead   []leads.JobMessage
}

// NewQueue constructs a queue with the provided config.
func NewQueue(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = 5
	}
	return &Queue{
		cfg:  cfg,
		ch:   make(chan envelope, cfg.Capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job message or returns if the context ends. Enqueueing
// onto a closed queue returns an error; it never panics, so a sweeper
// iteration racing shutdown is safe.
func (q *Queue) Enqueue(ctx context.Context, msg leads.JobMessage) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return errors.New("queue closed")
	case q.ch <- envelope{msg: msg, attempt: 1}:
		return nil
	}
}

// Dequeue pops the next delivery, respecting context cancellation. The
// returned delivery holds the lease; call Ack or Nack exactly once.
func (q *Queue) Dequeue(ctx context.Context) (leads.Delivery, error) {
	select {
	case <-ctx.Done():
		return leads.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return leads.Delivery{}, errors.New("queue closed")
	case env := <-q.ch:
		return q.lease(env), nil
	}
}

// lease wraps an envelope in a Delivery whose Ack/Nack settle the lease at
// most once. An expired lease behaves like a Nack.
func (q *Queue) lease(env envelope) leads.Delivery {
	var once sync.Once
	timer := time.AfterFunc(q.cfg.VisibilityTimeout, func() {
		once.Do(func() { q.requeueOrDeadLetter(env) })
	})
	return leads.Delivery{
		Message: env.msg,
		Attempt: env.attempt,
		Ack: func() {
			once.Do(func() { timer.Stop() })
		},
		Nack: func() {
			once.Do(func() {
				timer.Stop()
				q.requeueOrDeadLetter(env)
			})
		},
	}
}

func (q *Queue) requeueOrDeadLetter(env envelope) {
	if env.attempt >= q.cfg.MaxReceiveCount {
		q.deadMu.Lock()
		q.dead = append(q.dead, env.msg)
		q.deadMu.Unlock()
		return
	}
	env.attempt++
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- env:
	default:
		// Queue full during redelivery: park the message on the dead-letter
		// list rather than blocking the timer goroutine.
		q.deadMu.Lock()
		q.dead = append(q.dead, env.msg)
		q.deadMu.Unlock()
	}
}

// DeadLetters returns messages that exhausted their receive budget.
func (q *Queue) DeadLetters() []leads.JobMessage {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	out := make([]leads.JobMessage, len(q.dead))
	copy(out, q.dead)
	return out
}

// Close shuts the queue down. The message channel itself is never closed;
// producers and consumers observe shutdown through the done signal, so a
// send can never panic. Messages still buffered at close time are not
// delivered once consumers stop.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
