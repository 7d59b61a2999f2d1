package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwaitAfterResolve(t *testing.T) {
	r := NewResolver()
	r.Resolve(&Account{ID: "u1", Name: "Alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, err := r.Await(ctx)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if a.Name != "Alice" {
		t.Errorf("expected Alice, got %q", a.Name)
	}
}

func TestAwaitBlocksUntilResolve(t *testing.T) {
	r := NewResolver()

	done := make(chan *Account, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a, err := r.Await(ctx)
		if err != nil {
			done <- nil
			return
		}
		done <- a
	}()

	time.Sleep(20 * time.Millisecond)
	r.Resolve(&Account{ID: "u2", Name: "Bob"})

	select {
	case a := <-done:
		if a == nil || a.Name != "Bob" {
			t.Errorf("expected Bob, got %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("await never returned")
	}
}

func TestAwaitKnownAbsent(t *testing.T) {
	r := NewResolver()
	r.Resolve(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := r.Await(ctx)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestAwaitContextExpiry(t *testing.T) {
	r := NewResolver()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Await(ctx)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestCurrent(t *testing.T) {
	r := NewResolver()
	if r.Current() != nil {
		t.Error("expected nil before resolution")
	}
	r.Resolve(&Account{ID: "u3", Name: "Carol"})
	if a := r.Current(); a == nil || a.Name != "Carol" {
		t.Errorf("expected Carol, got %+v", a)
	}
}
