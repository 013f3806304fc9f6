package rate

import (
	"context"
	"testing"
)

func TestWaitTakesSlots(t *testing.T) {
	l := NewLimiter(context.Background(), 1000)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	l := NewLimiter(context.Background(), 1)
	defer l.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("cancelled wait must fail")
	}
}

func TestWaitFailsAfterStop(t *testing.T) {
	l := NewLimiter(context.Background(), 1000)
	l.Stop()

	// the provider closes the slot channel on its way out; at most one
	// in-flight slot may still pair with a waiter, after that every Wait
	// must fail rather than block
	if err := l.Wait(context.Background()); err == nil {
		if err = l.Wait(context.Background()); err == nil {
			t.Fatal("wait on a stopped limiter must fail")
		}
	}
}
