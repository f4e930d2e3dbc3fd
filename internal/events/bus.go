package events

import (
	"context"
	"sync"

	"github.com/skolara/skolara/internal/monitoring"
	"go.uber.org/zap"
)

// HandlerFunc reacts to a published event. Handlers run synchronously on the
// publisher's goroutine, so anything slow must hand off to the task queue
// rather than doing the work inline.
type HandlerFunc func(ctx context.Context, evt Event) error

type subscription struct {
	name   string
	handle HandlerFunc
}

// Bus is the in-process publish/subscribe registry. Fan-out is synchronous and
// in registration order. A failing handler is logged and counted but never
// stops later handlers and never surfaces to the publisher: notification-side
// failures must not fail the business transaction that emitted the event.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	log      *zap.Logger
	metrics  *monitoring.Collector
}

func NewBus(log *zap.Logger, metrics *monitoring.Collector) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		log:      log.Named("events.bus"),
		metrics:  metrics,
	}
}

// wildcardEvent subscribes a handler to every event name.
const wildcardEvent = "*"

// Subscribe appends a named handler to the ordered list for eventName.
// Multiple handlers per event are allowed and all run.
func (b *Bus) Subscribe(eventName, handlerName string, fn HandlerFunc) {
	if eventName == "" || fn == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventName] = append(b.handlers[eventName], subscription{
		name:   handlerName,
		handle: fn,
	})
	b.mu.Unlock()
}

// SubscribeAll registers a handler that runs for every published event, after
// the event's own handlers.
func (b *Bus) SubscribeAll(handlerName string, fn HandlerFunc) {
	b.Subscribe(wildcardEvent, handlerName, fn)
}

// Publish fans the event out to every subscribed handler. Publishing an event
// with no subscribers is a no-op, not an error.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	named := b.handlers[evt.Name]
	catchAll := b.handlers[wildcardEvent]
	subs := make([]subscription, 0, len(named)+len(catchAll))
	subs = append(subs, named...)
	subs = append(subs, catchAll...)
	b.mu.RUnlock()

	b.metrics.Inc("domain_events_published_total", 1, map[string]string{
		"event": evt.Name,
	})

	for _, sub := range subs {
		b.metrics.Inc("domain_event_handler_invocations_total", 1, map[string]string{
			"event":   evt.Name,
			"handler": sub.name,
		})
		if err := sub.handle(ctx, evt); err != nil {
			b.metrics.Inc("domain_event_handler_failures_total", 1, map[string]string{
				"event":   evt.Name,
				"handler": sub.name,
			})
			b.log.Warn("event handler failed",
				zap.String("event", evt.Name),
				zap.String("handler", sub.name),
				zap.Error(err),
			)
		}
	}
}
