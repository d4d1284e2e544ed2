package uithread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := NewLoop(8)
	defer l.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	if err := l.Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(order))
	}
}

func TestLoop_RunReturnsTaskError(t *testing.T) {
	l := NewLoop(1)
	defer l.Close()

	want := errors.New("boom")
	if err := l.Run(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected task error, got %v", err)
	}
}

func TestLoop_RunHonorsContext(t *testing.T) {
	l := NewLoop(1)
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx, func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLoop_RecoversPanics(t *testing.T) {
	l := NewLoop(1)
	defer l.Close()

	l.Post(func() { panic("callback exploded") })
	if err := l.Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("loop must survive a panicking task: %v", err)
	}
}

func TestLoop_ClosedRejectsWork(t *testing.T) {
	l := NewLoop(1)

	ran := make(chan struct{}, 1)
	l.Post(func() { ran <- struct{}{} })
	l.Close()

	select {
	case <-ran:
	default:
		t.Fatal("work accepted before Close must run")
	}
	if l.Post(func() {}) {
		t.Fatal("Post after Close must fail")
	}
	if err := l.Run(context.Background(), func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	l.Close()
}

func TestLoop_PostContextGivesUpWhenFull(t *testing.T) {
	l := NewLoop(1)
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })
	l.Post(func() {})

	ctx, cancel := context.WithCancel(context.Background())
	posted := make(chan bool, 1)
	go func() { posted <- l.PostContext(ctx, func() { t.Error("abandoned task ran") }) }()

	select {
	case <-posted:
		t.Fatal("PostContext returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()

	select {
	case ok := <-posted:
		if ok {
			t.Fatal("PostContext must report the task as dropped")
		}
	case <-time.After(time.Second):
		t.Fatal("PostContext did not return after cancel")
	}
	close(release)

	if l.PostContext(ctx, func() {}) {
		t.Fatal("PostContext with a done context must not queue")
	}
}
