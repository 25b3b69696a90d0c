package client

import (
	"log/slog"
	"sync"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
)

// EventCallback receives server-pushed events. Callbacks run inline on
// the listen-loop goroutine: long blocking work stalls delivery of
// subsequent frames and should be handed off to another goroutine.
type EventCallback func(event *api.EventMessage)

// SubscribeOption narrows which events a subscription receives.
type SubscribeOption func(*subscription)

// FilterEvents restricts delivery to the given event types. Without it,
// all event types are delivered.
func FilterEvents(types ...api.EventType) SubscribeOption {
	return func(s *subscription) {
		if s.eventTypes == nil {
			s.eventTypes = make(map[api.EventType]struct{}, len(types))
		}
		for _, t := range types {
			s.eventTypes[t] = struct{}{}
		}
	}
}

// FilterObjectID restricts delivery to events carrying the given object
// id. Without it, all object ids are delivered.
func FilterObjectID(objectID string) SubscribeOption {
	return func(s *subscription) {
		s.objectID = objectID
	}
}

type subscription struct {
	id         uint64
	callback   EventCallback
	eventTypes map[api.EventType]struct{} // nil matches all types
	objectID   string                     // empty matches all ids
}

func (s *subscription) matches(ev *api.EventMessage) bool {
	if s.eventTypes != nil {
		if _, ok := s.eventTypes[ev.Event]; !ok {
			return false
		}
	}
	if s.objectID != "" && s.objectID != ev.ObjectID {
		return false
	}
	return true
}

// eventDispatcher fans server events out to subscriber callbacks.
// Subscriber counts are UI-scale, so subscriptions live in a plain
// ordered slice with O(n) removal.
type eventDispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []*subscription
}

func newEventDispatcher(logger *slog.Logger) *eventDispatcher {
	return &eventDispatcher{logger: logger}
}

// subscribe registers the callback and returns its unsubscribe func,
// which is idempotent.
func (d *eventDispatcher) subscribe(cb EventCallback, opts ...SubscribeOption) func() {
	sub := &subscription{callback: cb}
	for _, opt := range opts {
		opt(sub)
	}
	d.mu.Lock()
	d.nextID++
	sub.id = d.nextID
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	id := sub.id
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// dispatch invokes every matching subscription synchronously, in
// subscription order. A panicking callback is logged and never aborts
// delivery to the remaining subscribers.
func (d *eventDispatcher) dispatch(ev *api.EventMessage) {
	d.mu.Lock()
	matched := make([]*subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		if sub.matches(ev) {
			matched = append(matched, sub)
		}
	}
	d.mu.Unlock()

	for _, sub := range matched {
		d.invoke(sub, ev)
	}
}

func (d *eventDispatcher) invoke(sub *subscription, ev *api.EventMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Warn("event subscriber panicked",
				"event", ev.Event, "object_id", ev.ObjectID, "panic", rec)
		}
	}()
	sub.callback(ev)
}
