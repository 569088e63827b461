package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/voicepilot/internal/bus"
)

type staticLevel float64

func (l staticLevel) Level() float64 { return float64(l) }

func startTestServer(t *testing.T, b *bus.EventBus, levels LevelSource) *Server {
	t.Helper()
	s := NewServer(Config{Addr: "127.0.0.1:0", LevelInterval: 10 * time.Millisecond}, levels, b, zerolog.Nop())
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("never received %s message", msgType)
	return Message{}
}

func TestServer_RelaysBusEvents(t *testing.T) {
	b := bus.NewEventBus()
	s := startTestServer(t, b, staticLevel(0))
	conn := dial(t, s)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	b.PublishSync(bus.Event{
		Type: bus.EventTypeTranscript,
		Data: map[string]any{"text": "hello world"},
	})

	msg := readUntil(t, conn, string(bus.EventTypeTranscript))
	assert.Equal(t, "hello world", msg.Data["text"])
	assert.False(t, msg.Time.IsZero())
}

func TestServer_BroadcastsLevels(t *testing.T) {
	b := bus.NewEventBus()
	s := startTestServer(t, b, staticLevel(42))
	conn := dial(t, s)

	msg := readUntil(t, conn, string(bus.EventTypeAudioLevel))
	assert.Equal(t, 42.0, msg.Data["level"])
}

func TestServer_MultipleClients(t *testing.T) {
	b := bus.NewEventBus()
	s := startTestServer(t, b, staticLevel(0))
	conn1 := dial(t, s)
	conn2 := dial(t, s)

	require.Eventually(t, func() bool { return s.ClientCount() == 2 },
		2*time.Second, 5*time.Millisecond)

	b.PublishSync(bus.Event{
		Type: bus.EventTypeStatusChanged,
		Data: map[string]any{"status": "listening"},
	})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readUntil(t, conn, string(bus.EventTypeStatusChanged))
		assert.Equal(t, "listening", msg.Data["status"])
	}
}

func TestServer_ClientDisconnectCleansUp(t *testing.T) {
	b := bus.NewEventBus()
	s := startTestServer(t, b, staticLevel(0))
	conn := dial(t, s)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestServer_ShutdownClosesClients(t *testing.T) {
	b := bus.NewEventBus()
	s := NewServer(Config{Addr: "127.0.0.1:0"}, staticLevel(0), b, zerolog.Nop())
	require.NoError(t, s.Start())

	conn := dial(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, s.ClientCount())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
