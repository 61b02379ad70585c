package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len = %d", q.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		if err != nil || got != want {
			t.Errorf("Dequeue = %q, %v; want %q", got, err, want)
		}
	}
}

func TestMemoryQueue_Cancellation(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dequeue on empty queue = %v, want deadline exceeded", err)
	}

	full, cancelFull := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelFull()
	_ = q.Enqueue(full, "x")
	if err := q.Enqueue(full, "y"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Enqueue on full queue = %v, want deadline exceeded", err)
	}
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(1)
	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		done <- err
	}()

	q.Close()
	q.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Dequeue after Close = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up on Close")
	}
	if err := q.Enqueue(context.Background(), "z"); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Close = %v", err)
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisQueue(t *testing.T) {
	client := newTestRedis(t)
	q := NewRedisQueue(client, "test:ingest:queue")
	q.pollTimeout = 100 * time.Millisecond
	ctx := context.Background()

	for _, id := range []string{"f1", "f2"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Errorf("Len = %d", n)
	}
	for _, want := range []string{"f1", "f2"} {
		got, err := q.Dequeue(ctx)
		if err != nil || got != want {
			t.Errorf("Dequeue = %q, %v; want %q", got, err, want)
		}
	}

	short, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dequeue on empty list = %v, want deadline exceeded", err)
	}
}
