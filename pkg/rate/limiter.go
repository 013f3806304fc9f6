package rate

import (
	"context"
	"errors"

	"go.uber.org/ratelimit"
)

// Limiter paces replenish traffic towards owning localities. A burst of
// exhausted handles must not turn into a replenish storm: every request
// costs a synchronous round trip and owner-side issue accounting.
type Limiter struct {
	cancel context.CancelFunc
	ch     chan struct{}
	l      ratelimit.Limiter
	limit  int
}

func NewLimiter(gCtx context.Context, limit int) *Limiter {
	ctx, cancel := context.WithCancel(gCtx)
	limiter := &Limiter{
		cancel: cancel,
		limit:  limit,
		ch:     make(chan struct{}),
		l:      ratelimit.New(limit),
	}
	go limiter.provider(ctx)
	return limiter
}

func (l *Limiter) provider(ctx context.Context) {
	defer close(l.ch)
	for {
		l.l.Take()
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case l.ch <- struct{}{}:
		}
	}
}

// Take blocks until a slot is available.
func (l *Limiter) Take() {
	l.l.Take()
}

// Wait blocks for a slot or for ctx cancellation, whichever comes first.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-l.ch:
		if !ok {
			return errors.New("rate: limiter is stopped")
		}
		return nil
	}
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Chan() <-chan struct{} {
	return l.ch
}

func (l *Limiter) Stop() {
	l.cancel()
}
