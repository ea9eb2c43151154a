package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newServerSocket upgrades one WebSocket connection through a test server and
// returns the server side of it.
func newServerSocket(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server socket")
		return nil
	}
}

func testConnection(cm *ConnectionManager, roomID uuid.UUID, sessionID string, sendBuffer int) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		RoomID:      roomID,
		Send:        make(chan []byte, sendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
}

func receiveEnvelope(t *testing.T, conn *Connection) *transport.Envelope {
	t.Helper()
	select {
	case data := <-conn.Send:
		var env transport.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return &env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope on connection")
		return nil
	}
}

func assertNoDelivery(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case <-conn.Send:
		t.Fatal("unexpected delivery")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventConsumerFansOutToRoomConnections(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cm.Start(ctx)

	roomA := uuid.New()
	roomB := uuid.New()
	connA1 := testConnection(cm, roomA, "session-1", 8)
	connA2 := testConnection(cm, roomA, "session-2", 8)
	connB := testConnection(cm, roomB, "session-3", 8)
	cm.registerConnection(connA1)
	cm.registerConnection(connA2)
	cm.registerConnection(connB)

	ec := NewEventConsumer(cm, nil)
	ec.handleEnvelope(&transport.Envelope{
		ID:     "e1",
		RoomID: roomA.String(),
		Type:   transport.EventTypePhaseChanged,
		Data:   []byte(`{"phase":"question","question_index":0,"phase_ends_at":1}`),
	})

	// Every connection in the envelope's room receives it; other rooms
	// see nothing.
	for _, conn := range []*Connection{connA1, connA2} {
		env := receiveEnvelope(t, conn)
		assert.Equal(t, "e1", env.ID)
		assert.Equal(t, transport.EventTypePhaseChanged, env.Type)
	}
	assertNoDelivery(t, connB)

	// An envelope with an unparseable room ID is dropped, not delivered.
	ec.handleEnvelope(&transport.Envelope{ID: "e2", RoomID: "not-a-uuid"})
	assertNoDelivery(t, connA1)
}

func TestBroadcastToSessionNarrowsDelivery(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cm.Start(ctx)

	roomID := uuid.New()
	conn1 := testConnection(cm, roomID, "session-1", 8)
	conn2 := testConnection(cm, roomID, "session-2", 8)
	cm.registerConnection(conn1)
	cm.registerConnection(conn2)

	cm.BroadcastToSession(roomID, "session-1", &transport.Envelope{ID: "e1", RoomID: roomID.String()})

	env := receiveEnvelope(t, conn1)
	assert.Equal(t, "e1", env.ID)
	assertNoDelivery(t, conn2)
}

func TestSlowConnectionEvicted(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	roomID := uuid.New()

	slow := testConnection(cm, roomID, "session-slow", 1)
	slow.Conn = newServerSocket(t)
	healthy := testConnection(cm, roomID, "session-healthy", 8)
	cm.registerConnection(slow)
	cm.registerConnection(healthy)
	require.Equal(t, 2, cm.GetConnectionStats().TotalConnections)

	// Fill the slow connection's send buffer so the next broadcast cannot
	// be queued for it.
	slow.Send <- []byte("backlog")

	cm.handleBroadcast(BroadcastMessage{
		RoomID:   roomID,
		Envelope: &transport.Envelope{ID: "e1", RoomID: roomID.String()},
	})

	// The slow connection is evicted; the healthy one still gets the
	// envelope and stays registered.
	env := receiveEnvelope(t, healthy)
	assert.Equal(t, "e1", env.ID)

	stats := cm.GetConnectionStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.RoomConnections[roomID.String()])
}

func TestStatsTracksRegistrations(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	roomA := uuid.New()
	roomB := uuid.New()

	connA := testConnection(cm, roomA, "session-1", 1)
	connB := testConnection(cm, roomB, "session-2", 1)
	cm.registerConnection(connA)
	cm.registerConnection(connB)

	stats := cm.GetConnectionStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveRooms)
	assert.Equal(t, 1, stats.RoomConnections[roomA.String()])

	cm.unregisterConnection(connA)
	stats = cm.GetConnectionStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveRooms)
	assert.NotContains(t, stats.RoomConnections, roomA.String())
}
