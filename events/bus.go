// Package events is a small synchronous publish/subscribe bus used by the widget.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type Event string

const (
	Ready          Event = "ready"
	CommentsLoaded Event = "comments-loaded"
	CommentAdded   Event = "comment-added"
	CommentUpdated Event = "comment-updated"
	CommentDeleted Event = "comment-deleted"
	ReplyAdded     Event = "reply-added"
	ReplyToggled   Event = "reply-toggled"
	PageChanged    Event = "page-changed"
	StateChanged   Event = "state-changed"
	Error          Event = "error"
)

type Handler func(ctx context.Context, payload any)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers each emitted payload to the handlers of that event, in the
// order they subscribed. The zero value is ready to use.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Event][]subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// On registers handler for event and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (b *Bus) On(event Event, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[Event][]subscription)
	}

	b.nextID++
	id := b.nextID

	b.handlers[event] = append(b.handlers[event], subscription{id: id, handler: handler})

	return func() {
		b.off(event, id)
	}
}

func (b *Bus) off(event Event, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[event]

	for i, sub := range subs {
		if sub.id == id {
			b.handlers[event] = append(subs[:i:i], subs[i+1:]...)

			return
		}
	}
}

// Emit calls every current handler of event synchronously. A panicking
// handler is logged and skipped; the rest still run.
func (b *Bus) Emit(ctx context.Context, event Event, payload any) {
	b.mu.Lock()
	subs := make([]subscription, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	b.mu.Unlock()

	for _, sub := range subs {
		b.call(ctx, event, sub.handler, payload)
	}
}

func (b *Bus) call(ctx context.Context, event Event, handler Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event handler panicked", "event", event, "error", fmt.Errorf("%v", r))
		}
	}()

	handler(ctx, payload)
}

// RemoveAllListeners drops every registration on every event.
func (b *Bus) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = nil
}

// ListenerCount returns the number of handlers registered for event.
func (b *Bus) ListenerCount(event Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.handlers[event])
}

// Subscribe registers a handler that only receives payloads of type T.
// Payloads of any other type are ignored.
func Subscribe[T any](b *Bus, event Event, handler func(ctx context.Context, payload T)) func() {
	return b.On(event, func(ctx context.Context, payload any) {
		typed, ok := payload.(T)
		if !ok {
			return
		}

		handler(ctx, typed)
	})
}
