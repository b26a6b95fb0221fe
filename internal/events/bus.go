// Package events carries build lifecycle events between the orchestrator
// and its observers (history, notifications, metrics) inside one process.
package events

import (
	"context"
	"reflect"
	"sync"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Bus is a typed in-process publish/subscribe hub. Publish waits until
// every matching subscriber accepted the event or ctx ends, so slow
// observers apply backpressure instead of dropping events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type][]*subscription
	closed bool
}

type subscription struct {
	deliver func(ctx context.Context, evt any) error
	close   func()

	// sending is held by in-flight deliveries; done releases them.
	sending sync.RWMutex
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.sending.Lock()
		defer s.sending.Unlock()
		s.close()
	})
}

// NewBus returns an open bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type][]*subscription)}
}

// Subscribe returns a channel receiving events assignable to T and a
// function that ends the subscription. Interface types match every
// implementing event. The channel is closed on unsubscribe or Close.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	typ := reflect.TypeFor[T]()
	ch := make(chan T, buffer)
	sub := &subscription{close: func() { close(ch) }, done: make(chan struct{})}
	sub.deliver = func(ctx context.Context, evt any) error {
		v, ok := evt.(T)
		if !ok {
			return ferrors.InternalError("event type mismatch").
				WithContext("want", typ.String()).
				WithContext("got", reflect.TypeOf(evt).String()).
				Build()
		}
		sub.sending.RLock()
		defer sub.sending.RUnlock()
		select {
		case <-sub.done:
			return nil
		default:
		}
		select {
		case ch <- v:
			return nil
		case <-sub.done:
			return nil
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "publish canceled").
				WithContext("event", typ.String()).
				Build()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.shutdown()
		return ch, func() {}
	}
	b.subs[typ] = append(b.subs[typ], sub)

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[typ]
		for i, s := range list {
			if s == sub {
				b.subs[typ] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[typ]) == 0 {
			delete(b.subs, typ)
		}
		sub.shutdown()
	}
}

// Subscribers returns the number of subscriptions for T.
func Subscribers[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

// Publish delivers evt to every subscription whose type it satisfies.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	typ := reflect.TypeOf(evt)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ferrors.RuntimeError("event bus is closed").Build()
	}
	var targets []*subscription
	for subType, list := range b.subs {
		if subType == typ || (subType.Kind() == reflect.Interface && typ.Implements(subType)) {
			targets = append(targets, list...)
		}
	}
	b.mu.RUnlock()

	// Deliveries happen outside the lock so subscribers may unsubscribe
	// from their own goroutine while a publish is blocked.
	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close ends every subscription. Later publishes fail.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	all := b.subs
	b.subs = make(map[reflect.Type][]*subscription)
	b.mu.Unlock()

	for _, list := range all {
		for _, s := range list {
			s.shutdown()
		}
	}
}
