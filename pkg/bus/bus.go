package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

// EventBus carries inbound platform events toward the relay broker and
// outbound notices back to the platform channels.
type EventBus struct {
	inbound  chan InboundEvent
	outbound chan OutboundNotice
	done     chan struct{}
	closed   atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		inbound:  make(chan InboundEvent, 100),
		outbound: make(chan OutboundNotice, 100),
		done:     make(chan struct{}),
	}
}

func (b *EventBus) PublishInbound(ctx context.Context, ev InboundEvent) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.inbound <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev, ok := <-b.inbound:
		return ev, ok
	case <-b.done:
		return InboundEvent{}, false
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

func (b *EventBus) PublishNotice(ctx context.Context, n OutboundNotice) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.outbound <- n:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) ConsumeNotice(ctx context.Context) (OutboundNotice, bool) {
	select {
	case n, ok := <-b.outbound:
		return n, ok
	case <-b.done:
		return OutboundNotice{}, false
	case <-ctx.Done():
		return OutboundNotice{}, false
	}
}

func (b *EventBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
