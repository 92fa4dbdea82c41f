package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Dispatcher routes expense events to registered handlers.
// The workflow publishes after commit; handler failures never reach the caller
// of DispatchAsync and only surface in logs.
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name for logging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers the same named handler for several event types
	SubscribeAll(eventTypes []event.Type, name string, handler Handler)

	// Dispatch sends event to all registered handlers synchronously
	// and returns the first error encountered (handlers run in order)
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync sends events to handlers in the background.
	// Handlers run with a context detached from the caller's cancellation.
	DispatchAsync(ctx context.Context, evts ...*event.Event)

	// Close stops accepting events and waits for in-flight handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	// lifecycle guards closed and every wg.Add so Close cannot start
	// waiting while a dispatch is still registering goroutines
	lifecycle sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.RLock()
	name := fmt.Sprintf("handler-%d", len(d.handlers[eventType]))
	d.mu.RUnlock()
	d.SubscribeNamed(eventType, name, handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	if d.logger != nil {
		d.logger.Info("Handler registered", "event_type", eventType, "handler_name", name)
	}
}

func (d *eventDispatcher) SubscribeAll(eventTypes []event.Type, name string, handler Handler) {
	for _, t := range eventTypes {
		d.SubscribeNamed(t, name, handler)
	}
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.isClosed() {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, info := range d.handlersFor(evt.Type) {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"expense_id", evt.ExpenseID,
					"handler_name", info.Name,
					"error", err,
				)
			}
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evts ...*event.Event) {
	d.lifecycle.RLock()
	defer d.lifecycle.RUnlock()

	if d.closed {
		if d.logger != nil {
			d.logger.Error("Dispatcher is closed, dropping events", "event_count", len(evts))
		}
		return
	}

	detached := context.WithoutCancel(ctx)

	for _, evt := range evts {
		handlers := d.handlersFor(evt.Type)

		if d.logger != nil {
			d.logger.Info("Dispatching event asynchronously",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"expense_id", evt.ExpenseID,
				"handler_count", len(handlers),
			)
		}

		for _, info := range handlers {
			d.wg.Add(1)
			go func(e *event.Event, h HandlerInfo) {
				defer d.wg.Done()

				if err := d.safeExecute(detached, e, h); err != nil && d.logger != nil {
					d.logger.Error("Async handler error",
						"event_type", e.Type,
						"event_id", e.ID,
						"expense_id", e.ExpenseID,
						"handler_name", h.Name,
						"error", err,
					)
				}
			}(evt, info)
		}
	}
}

func (d *eventDispatcher) Close() error {
	d.lifecycle.Lock()
	if d.closed {
		d.lifecycle.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.lifecycle.Unlock()

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()
	return nil
}

func (d *eventDispatcher) isClosed() bool {
	d.lifecycle.RLock()
	defer d.lifecycle.RUnlock()
	return d.closed
}

func (d *eventDispatcher) handlersFor(t event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]HandlerInfo(nil), d.handlers[t]...)
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
