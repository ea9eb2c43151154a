package membus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOutAndRoomIsolation(t *testing.T) {
	bus := New()
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(room string) func(*transport.Envelope) {
		return func(env *transport.Envelope) {
			mu.Lock()
			got[room] = append(got[room], env.ID)
			mu.Unlock()
		}
	}

	sub1, err := bus.Subscribe(ctx, "room-1", record("sub1"))
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	sub2, err := bus.Subscribe(ctx, "room-1", record("sub2"))
	require.NoError(t, err)
	defer sub2.Unsubscribe()
	other, err := bus.Subscribe(ctx, "room-2", record("other"))
	require.NoError(t, err)
	defer other.Unsubscribe()

	require.NoError(t, bus.Publish(ctx, "room-1", &transport.Envelope{ID: "e1", RoomID: "room-1"}))
	require.NoError(t, bus.Publish(ctx, "room-1", &transport.Envelope{ID: "e2", RoomID: "room-1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["sub1"]) == 2 && len(got["sub2"]) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Per-subscriber delivery preserves publish order.
	assert.Equal(t, []string{"e1", "e2"}, got["sub1"])
	assert.Equal(t, []string{"e1", "e2"}, got["sub2"])
	assert.Empty(t, got["other"])
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	defer bus.Close()
	ctx := context.Background()

	delivered := make(chan transport.PresenceEvent, 4)
	sub, err := bus.SubscribePresence(ctx, "room-1", func(event transport.PresenceEvent) {
		delivered <- event
	})
	require.NoError(t, err)

	require.NoError(t, bus.Announce(ctx, "room-1", transport.PresenceEvent{SessionID: "s1", Type: transport.PresenceJoin}))
	select {
	case event := <-delivered:
		assert.Equal(t, "s1", event.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("presence event never delivered")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, bus.Announce(ctx, "room-1", transport.PresenceEvent{SessionID: "s2", Type: transport.PresenceJoin}))

	select {
	case event := <-delivered:
		t.Fatalf("unexpected delivery after unsubscribe: %s", event.SessionID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusClosedRejectsTraffic(t *testing.T) {
	bus := New()
	bus.Close()
	ctx := context.Background()

	assert.Error(t, bus.Publish(ctx, "room-1", &transport.Envelope{ID: "e1"}))
	assert.Error(t, bus.Announce(ctx, "room-1", transport.PresenceEvent{SessionID: "s1"}))

	_, err := bus.Subscribe(ctx, "room-1", func(*transport.Envelope) {})
	assert.Error(t, err)
	_, err = bus.SubscribePresence(ctx, "room-1", func(transport.PresenceEvent) {})
	assert.Error(t, err)
}
