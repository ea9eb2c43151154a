package membus

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/hoot/go/internal/transport"
)

// Bus is an in-process transport.Bus: every publish is fanned out to all
// subscribers of the room, each on its own ordered delivery queue. It backs
// tests and single-binary demos; production rooms run on natsbus.
type Bus struct {
	mu            sync.RWMutex
	nextID        int
	closed        bool
	presenceSubs  map[string]map[int]*queue[transport.PresenceEvent]
	broadcastSubs map[string]map[int]*queue[*transport.Envelope]
}

// New creates an empty in-process bus.
func New() *Bus {
	return &Bus{
		presenceSubs:  make(map[string]map[int]*queue[transport.PresenceEvent]),
		broadcastSubs: make(map[string]map[int]*queue[*transport.Envelope]),
	}
}

// Announce publishes a presence event to all presence subscribers of the room.
func (b *Bus) Announce(_ context.Context, roomID string, event transport.PresenceEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	for _, q := range b.presenceSubs[roomID] {
		q.push(event)
	}
	return nil
}

// SubscribePresence registers a handler for the room's presence events.
func (b *Bus) SubscribePresence(_ context.Context, roomID string, handler func(transport.PresenceEvent)) (transport.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if b.presenceSubs[roomID] == nil {
		b.presenceSubs[roomID] = make(map[int]*queue[transport.PresenceEvent])
	}
	id := b.nextID
	b.nextID++
	q := newQueue(handler)
	b.presenceSubs[roomID][id] = q

	return subscription(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.presenceSubs[roomID]; ok {
			if q, ok := subs[id]; ok {
				delete(subs, id)
				q.stop()
			}
			if len(subs) == 0 {
				delete(b.presenceSubs, roomID)
			}
		}
		return nil
	}), nil
}

// Publish fans an envelope out to all broadcast subscribers of the room.
func (b *Bus) Publish(_ context.Context, roomID string, env *transport.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	for _, q := range b.broadcastSubs[roomID] {
		q.push(env)
	}
	return nil
}

// Subscribe registers a handler for the room's broadcast envelopes.
func (b *Bus) Subscribe(_ context.Context, roomID string, handler func(*transport.Envelope)) (transport.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if b.broadcastSubs[roomID] == nil {
		b.broadcastSubs[roomID] = make(map[int]*queue[*transport.Envelope])
	}
	id := b.nextID
	b.nextID++
	q := newQueue(handler)
	b.broadcastSubs[roomID][id] = q

	return subscription(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.broadcastSubs[roomID]; ok {
			if q, ok := subs[id]; ok {
				delete(subs, id)
				q.stop()
			}
			if len(subs) == 0 {
				delete(b.broadcastSubs, roomID)
			}
		}
		return nil
	}), nil
}

// Close tears down every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.presenceSubs {
		for _, q := range subs {
			q.stop()
		}
	}
	for _, subs := range b.broadcastSubs {
		for _, q := range subs {
			q.stop()
		}
	}
	b.presenceSubs = map[string]map[int]*queue[transport.PresenceEvent]{}
	b.broadcastSubs = map[string]map[int]*queue[*transport.Envelope]{}
}

type subscription func() error

func (s subscription) Unsubscribe() error { return s() }

// queue delivers items to one handler in publish order on a dedicated
// goroutine, so a handler publishing back onto the bus never deadlocks.
type queue[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

func newQueue[T any](handler func(T)) *queue[T] {
	q := &queue[T]{
		ch:   make(chan T, 256),
		done: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case item := <-q.ch:
				handler(item)
			case <-q.done:
				return
			}
		}
	}()
	return q
}

func (q *queue[T]) push(item T) {
	select {
	case q.ch <- item:
	case <-q.done:
	default:
		// Slow subscriber; protocol traffic is deadline-based and
		// self-correcting, so dropping is safe.
	}
}

func (q *queue[T]) stop() {
	q.once.Do(func() { close(q.done) })
}
