package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/Borislavv/distributed-naming/pkg/gid"
	"github.com/rs/zerolog/log"
)

var errLoopbackClosed = errors.New("loopback transport is closed")

// Loopback is the in-process transport used by single-locality runtimes
// and tests. A single pump goroutine drains the queue, which makes
// delivery FIFO overall and therefore FIFO per destination.
type Loopback struct {
	ctx     context.Context
	cancel  context.CancelFunc
	handler DecrementHandler
	ch      chan Decrement
	wg      sync.WaitGroup
}

func NewLoopback(gCtx context.Context, handler DecrementHandler, queueSize int) *Loopback {
	ctx, cancel := context.WithCancel(gCtx)
	l := &Loopback{
		ctx:     ctx,
		cancel:  cancel,
		handler: handler,
		ch:      make(chan Decrement, queueSize),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loopback) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			// drain what was accepted before shutdown
			for {
				select {
				case dec := <-l.ch:
					l.deliver(dec)
				default:
					return
				}
			}
		case dec := <-l.ch:
			l.deliver(dec)
		}
	}
}

func (l *Loopback) deliver(dec Decrement) {
	if _, err := l.handler.OnDecrement(dec.GID, dec.Amount); err != nil {
		log.Err(err).
			Str("gid", dec.GID.String()).
			Int64("amount", dec.Amount).
			Msg("[transport] decrement delivery failed")
	}
}

// SendDecrement enqueues a decrement for asynchronous delivery.
func (l *Loopback) SendDecrement(owner uint32, stripped gid.GID, amount int64) error {
	if l.ctx.Err() != nil {
		return errLoopbackClosed
	}
	select {
	case <-l.ctx.Done():
		return errLoopbackClosed
	case l.ch <- Decrement{Owner: owner, GID: stripped, Amount: amount}:
		return nil
	}
}

// Close stops the pump after draining accepted decrements.
func (l *Loopback) Close() {
	l.cancel()
	l.wg.Wait()
}
