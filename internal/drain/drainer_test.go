package drain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"chaincast/internal/transport"
)

// fakeQueue hands out queued messages in order and records deletions.
type fakeQueue struct {
	mu       sync.Mutex
	messages []transport.Message
	deleted  []string
	batches  [][]string
	recvErr  error
}

func (q *fakeQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]transport.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.recvErr != nil {
		return nil, q.recvErr
	}

	n := max
	if n > len(q.messages) {
		n = len(q.messages)
	}
	batch := q.messages[:n]
	q.messages = q.messages[n:]
	return batch, nil
}

func (q *fakeQueue) DeleteBatch(ctx context.Context, handles []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.batches = append(q.batches, handles)
	q.deleted = append(q.deleted, handles...)
	return nil
}

func (q *fakeQueue) wasDeleted(handle string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, h := range q.deleted {
		if h == handle {
			return true
		}
	}
	return false
}

func queuedMessages(n int) []transport.Message {
	messages := make([]transport.Message, n)
	for i := range messages {
		messages[i] = transport.Message{
			ID:            fmt.Sprintf("msg-%d", i+1),
			ReceiptHandle: fmt.Sprintf("rh-%d", i+1),
			Body:          []byte(fmt.Sprintf(`{"n":%d}`, i+1)),
		}
	}
	return messages
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func plenty() time.Duration { return time.Hour }

func TestDrain_AllHandled(t *testing.T) {
	q := &fakeQueue{messages: queuedMessages(3)}

	var handledIDs []string
	handler := func(ctx context.Context, msg transport.Message) error {
		handledIDs = append(handledIDs, msg.ID)
		return nil
	}

	d := New(q, handler, plenty, testLogger(), Config{PollWait: time.Millisecond})
	stats, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3", stats.Processed)
	}
	if len(handledIDs) != 3 {
		t.Errorf("handler ran %d times, want 3", len(handledIDs))
	}
	for _, h := range []string{"rh-1", "rh-2", "rh-3"} {
		if !q.wasDeleted(h) {
			t.Errorf("message %s was not deleted", h)
		}
	}
	// Trigger poll + batch poll + the empty poll that ends the drain.
	if stats.Polls != 3 {
		t.Errorf("Polls = %d, want 3", stats.Polls)
	}
}

func TestDrain_HandlerErrorIsolated(t *testing.T) {
	q := &fakeQueue{messages: queuedMessages(3)}

	handler := func(ctx context.Context, msg transport.Message) error {
		if msg.ID == "msg-2" {
			return errors.New("endpoint exploded")
		}
		return nil
	}

	d := New(q, handler, plenty, testLogger(), Config{PollWait: time.Millisecond})
	stats, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if !q.wasDeleted("rh-1") || !q.wasDeleted("rh-3") {
		t.Error("successfully handled messages should be deleted")
	}
	if q.wasDeleted("rh-2") {
		t.Error("failed message must stay in the queue for redelivery")
	}
	if stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3 (accounting counts attempts)", stats.Processed)
	}
}

func TestDrain_FailFastAbandonsBatch(t *testing.T) {
	q := &fakeQueue{messages: queuedMessages(3)}

	var attempts []string
	handler := func(ctx context.Context, msg transport.Message) error {
		attempts = append(attempts, msg.ID)
		if msg.ID == "msg-2" {
			return errors.New("endpoint exploded")
		}
		return nil
	}

	// The trigger poll takes msg-1; the batch poll takes msg-2 and msg-3
	// as one batch, where the failure happens.
	d := New(q, handler, plenty, testLogger(), Config{
		PollWait: time.Millisecond,
		FailFast: true,
	})
	if _, err := d.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	for _, id := range attempts {
		if id == "msg-3" {
			t.Error("fail-fast should not attempt messages after the failure")
		}
	}
	if q.wasDeleted("rh-2") || q.wasDeleted("rh-3") {
		t.Error("neither the failed nor the abandoned message should be deleted")
	}
	if !q.wasDeleted("rh-1") {
		t.Error("the message handled before the failure should be deleted")
	}
}

func TestDrain_TimeExit(t *testing.T) {
	// Enough messages that only the time budget can stop the loop.
	q := &fakeQueue{messages: queuedMessages(50)}

	pollWait := 10 * time.Millisecond
	budget := 100 * time.Millisecond
	start := time.Now()
	remaining := func() time.Duration { return budget - time.Since(start) }

	handler := func(ctx context.Context, msg transport.Message) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	d := New(q, handler, remaining, testLogger(), Config{PollWait: pollWait, BatchSize: 1})
	stats, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if stats.Processed >= 50 {
		t.Error("expected the time budget to stop the drain before the queue emptied")
	}

	q.mu.Lock()
	left := len(q.messages)
	q.mu.Unlock()
	if left == 0 {
		t.Error("expected messages left in the queue after time exit")
	}
}

func TestDrain_EmptyTriggerIsNotFatal(t *testing.T) {
	q := &fakeQueue{}

	handler := func(ctx context.Context, msg transport.Message) error {
		t.Error("handler should not run on an empty queue")
		return nil
	}

	d := New(q, handler, plenty, testLogger(), Config{PollWait: time.Millisecond})
	stats, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain on empty queue should not fail: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("Processed = %d, want 0", stats.Processed)
	}
}

func TestDrain_ReceiveErrorPropagates(t *testing.T) {
	q := &fakeQueue{recvErr: errors.New("transport down")}

	d := New(q, func(ctx context.Context, msg transport.Message) error { return nil },
		plenty, testLogger(), Config{PollWait: time.Millisecond})

	if _, err := d.Drain(context.Background()); err == nil {
		t.Error("expected receive error to propagate")
	}
}

func TestDrain_DeletesAsSingleBatchCall(t *testing.T) {
	q := &fakeQueue{messages: queuedMessages(5)}

	handler := func(ctx context.Context, msg transport.Message) error { return nil }

	d := New(q, handler, plenty, testLogger(), Config{PollWait: time.Millisecond, BatchSize: 4})
	if _, err := d.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// One delete call per processed batch, not per message: the trigger
	// message, then a batch of 4.
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) != 2 {
		t.Errorf("DeleteBatch called %d times, want 2 (one per batch)", len(q.batches))
	}
	if len(q.deleted) != 5 {
		t.Errorf("deleted %d messages, want 5", len(q.deleted))
	}
}
