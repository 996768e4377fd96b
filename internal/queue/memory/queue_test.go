package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prospectica/leadpipe/internal/leads"
)

func testMessage(id string) leads.JobMessage {
	return leads.JobMessage{
		JobType: leads.JobTypeScrape,
		JobID:   id,
		URLs:    []string{"https://example.com"},
	}
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4})
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), testMessage("job-1")))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", d.Message.JobID)
	require.Equal(t, 1, d.Attempt)
	d.Ack()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.Error(t, err)
}

func TestQueue_NackRedeliversWithBumpedAttempt(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4, MaxReceiveCount: 3})
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), testMessage("job-retry")))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	d.Nack()

	redelivered, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-retry", redelivered.Message.JobID)
	require.Equal(t, 2, redelivered.Attempt)
	redelivered.Ack()
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4, VisibilityTimeout: 20 * time.Millisecond, MaxReceiveCount: 3})
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), testMessage("job-crash")))

	// Simulate a crashed worker: dequeue and never ack.
	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	redelivered, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-crash", redelivered.Message.JobID)
	require.Equal(t, 2, redelivered.Attempt)
	redelivered.Ack()
}

func TestQueue_AckAfterTimeoutIsANoop(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4, VisibilityTimeout: 10 * time.Millisecond, MaxReceiveCount: 3})
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), testMessage("job-late")))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	// Lease expires, message is requeued; the late ack must not double-settle.
	time.Sleep(50 * time.Millisecond)
	d.Ack()

	redelivered, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, redelivered.Attempt)
	redelivered.Ack()
}

func TestQueue_PoisonMessageDeadLetters(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4, MaxReceiveCount: 2})
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), testMessage("job-poison")))

	for attempt := 1; attempt <= 2; attempt++ {
		d, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, attempt, d.Attempt)
		d.Nack()
	}

	// Receive budget spent: the message goes to the dead-letter list, not
	// back onto the queue.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, "job-poison", dead[0].JobID)
}

func TestQueue_AckStopsRedelivery(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4, VisibilityTimeout: 20 * time.Millisecond, MaxReceiveCount: 3})
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), testMessage("job-done")))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	d.Ack()

	// Well past the visibility window: an acked message must stay settled.
	time.Sleep(60 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.Error(t, err)
	require.Empty(t, q.DeadLetters())
}

func TestQueue_EnqueueAfterCloseErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 4})
	q.Close()

	err := q.Enqueue(context.Background(), testMessage("job-late-submit"))
	require.ErrorContains(t, err, "queue closed")

	_, err = q.Dequeue(context.Background())
	require.ErrorContains(t, err, "queue closed")
}

func TestQueue_EnqueueRacesCloseWithoutPanic(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// Errors are expected once the queue closes; a panic is not.
				_ = q.Enqueue(context.Background(), testMessage("job-race"))
				if d, err := q.Dequeue(context.Background()); err == nil {
					d.Ack()
				} else {
					return
				}
			}
		}()
	}
	q.Close()
	wg.Wait()
}

func TestQueue_DequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(Config{Capacity: 1})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}
