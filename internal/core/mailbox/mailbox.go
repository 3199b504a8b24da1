// Package mailbox hands work from background goroutines to the host loop.
//
// The reactive graph, the ECS world and the DOM are touched only by the loop
// goroutine. Anything running elsewhere (island activations, execution
// targets) posts a closure here, and MailboxSystem drains it at the start of
// every tick.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrFull   = errors.New("mailbox: full")
	ErrClosed = errors.New("mailbox: closed")
)

type Mailbox struct {
	queue     chan func()
	closeCh   chan struct{}
	closeOnce sync.Once
}

func New(size int) *Mailbox {
	if size <= 0 {
		size = 1
	}
	return &Mailbox{
		queue:   make(chan func(), size),
		closeCh: make(chan struct{}),
	}
}

// Post queues fn without blocking.
func (m *Mailbox) Post(fn func()) error {
	select {
	case <-m.closeCh:
		return ErrClosed
	default:
	}
	select {
	case m.queue <- fn:
		return nil
	default:
		return ErrFull
	}
}

// Send queues fn, waiting for room until ctx is done or the mailbox closes.
func (m *Mailbox) Send(ctx context.Context, fn func()) error {
	select {
	case m.queue <- fn:
		return nil
	case <-m.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and waits for its result. If ctx ends first the
// call returns ctx.Err(); fn may still run later.
func (m *Mailbox) Call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := m.Send(ctx, func() { done <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-m.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs up to max queued closures (all of them when max <= 0) and
// returns how many ran. Called only from the loop goroutine.
func (m *Mailbox) Drain(max int) int {
	n := 0
	for max <= 0 || n < max {
		select {
		case fn := <-m.queue:
			fn()
			n++
		default:
			return n
		}
	}
	return n
}

// Len returns the number of queued closures.
func (m *Mailbox) Len() int {
	return len(m.queue)
}

// Close rejects further posts and releases goroutines blocked in Send/Call.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.closeCh) })
}
