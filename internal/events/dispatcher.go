package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans ticket events out to subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler EventHandler)
}

// anyEvent keys handlers registered through SubscribeAll.
const anyEvent EventType = "*"

// syncDispatcher runs handlers inline on the publisher's goroutine.
type syncDispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &syncDispatcher{handlers: make(map[EventType][]EventHandler)}
}

// Publish invokes typed handlers first, then wildcard ones. Every handler
// runs even when an earlier one fails or panics; the failures are joined.
func (d *syncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	targets := make([]EventHandler, 0, len(d.handlers[event.Type])+len(d.handlers[anyEvent]))
	targets = append(targets, d.handlers[event.Type]...)
	targets = append(targets, d.handlers[anyEvent]...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range targets {
		if err := invoke(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *syncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.add(eventType, handler)
}

func (d *syncDispatcher) SubscribeAll(handler EventHandler) {
	d.add(anyEvent, handler)
}

func (d *syncDispatcher) add(key EventType, handler EventHandler) {
	d.mu.Lock()
	d.handlers[key] = append(d.handlers[key], handler)
	d.mu.Unlock()
}

func invoke(ctx context.Context, h EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panicked: %v", event.Type, r)
		}
	}()
	return h(ctx, event)
}
