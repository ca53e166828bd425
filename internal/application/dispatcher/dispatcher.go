package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/docflow/internal/domain/event"
)

// AllEvents subscribes a handler to every event type
const AllEvents event.Type = "*"

// ErrClosed is returned when dispatching on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Handler reacts to a committed document event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription. Handler is left nil by ListHandlers.
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// Dispatcher fans document events out to subscribed handlers
type Dispatcher interface {
	// Subscribe registers a handler under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler under name, replacing any handler
	// already subscribed to eventType with that name
	SubscribeNamed(eventType event.Type, name, description string, handler Handler)

	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs the handlers for evt in subscription order, wildcard
	// handlers last, and stops at the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs each handler on its own goroutine. Handlers keep the
	// values of ctx but not its cancellation.
	DispatchAsync(ctx context.Context, evt *event.Event)

	ListHandlers(eventType event.Type) []HandlerInfo

	// Close refuses further events and waits for running async handlers
	Close() error
}

// Logger is the logging surface the dispatcher needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

type eventDispatcher struct {
	mu     sync.RWMutex
	subs   map[event.Type][]HandlerInfo
	nextID atomic.Int64
	logger Logger

	inflight sync.WaitGroup
	closed   atomic.Bool
}

// NewDispatcher creates an event dispatcher with no subscriptions
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{subs: make(map[event.Type][]HandlerInfo)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	name := fmt.Sprintf("%s#%d", eventType, d.nextID.Add(1))
	d.SubscribeNamed(eventType, name, "", handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name, description string, handler Handler) {
	sub := HandlerInfo{Name: name, EventType: eventType, Handler: handler, Description: description}

	d.mu.Lock()
	list := d.subs[eventType]
	idx := indexOf(list, name)
	if idx >= 0 {
		list[idx] = sub
	} else {
		d.subs[eventType] = append(list, sub)
	}
	d.mu.Unlock()

	d.logInfo("Handler subscribed", "event_type", eventType, "handler_name", name, "replaced", idx >= 0)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	list := d.subs[eventType]
	idx := indexOf(list, name)
	if idx >= 0 {
		next := make([]HandlerInfo, 0, len(list)-1)
		next = append(next, list[:idx]...)
		d.subs[eventType] = append(next, list[idx+1:]...)
	}
	d.mu.Unlock()

	if idx >= 0 {
		d.logInfo("Handler unsubscribed", "event_type", eventType, "handler_name", name)
	}
}

func indexOf(list []HandlerInfo, name string) int {
	for i := range list {
		if list[i].Name == name {
			return i
		}
	}
	return -1
}

// snapshot copies the handlers for t followed by the wildcard handlers so
// that dispatch never holds the lock while handlers run
func (d *eventDispatcher) snapshot(t event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked(t)
}

func (d *eventDispatcher) snapshotLocked(t event.Type) []HandlerInfo {
	out := append([]HandlerInfo(nil), d.subs[t]...)
	if t != AllEvents {
		out = append(out, d.subs[AllEvents]...)
	}
	return out
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	subs := d.snapshot(evt.Type)
	d.logInfo("Dispatching event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"document_id", evt.DocumentID,
		"handler_count", len(subs),
	)

	for _, sub := range subs {
		if err := d.invoke(ctx, evt, sub); err != nil {
			d.logError("Event handler failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", sub.Name,
				"error", err,
			)
			return fmt.Errorf("handler %s failed: %w", sub.Name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	// the closed check and the inflight Add happen under the lock Close takes,
	// so Wait never races an Add
	d.mu.RLock()
	if d.closed.Load() {
		d.mu.RUnlock()
		d.logError("Dropping event, dispatcher is closed", "event_type", evt.Type, "event_id", evt.ID)
		return
	}
	subs := d.snapshotLocked(evt.Type)
	d.inflight.Add(len(subs))
	d.mu.RUnlock()

	bg := context.WithoutCancel(ctx)
	d.logInfo("Dispatching event asynchronously",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"document_id", evt.DocumentID,
		"handler_count", len(subs),
	)

	for _, sub := range subs {
		go func(sub HandlerInfo) {
			defer d.inflight.Done()
			if err := d.invoke(bg, evt, sub); err != nil {
				d.logError("Async event handler failed",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", sub.Name,
					"error", err,
				)
			}
		}(sub)
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]HandlerInfo, 0, len(d.subs[eventType]))
	for _, sub := range d.subs[eventType] {
		sub.Handler = nil
		out = append(out, sub)
	}
	return out
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	already := d.closed.Swap(true)
	d.mu.Unlock()
	if already {
		return fmt.Errorf("%w: already closed", ErrClosed)
	}

	d.logInfo("Closing dispatcher, draining async handlers")
	d.inflight.Wait()
	return nil
}

// invoke calls one handler, converting a panic into an error
func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, sub HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.Handler(ctx, evt)
}
