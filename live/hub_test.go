package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestBroadcastToPoolReachesOnlyThatRoom(t *testing.T) {
	hub := newTestHub(t)

	inPool := NewClient(hub, nil, 7, 1)
	otherPool := NewClient(hub, nil, 8, 2)
	hub.register <- inPool
	hub.register <- otherPool
	require.Eventually(t, func() bool { return hub.RoomSize(7) == 1 && hub.RoomSize(8) == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToPool(7, "leaderboard_updated", map[string]int{"week_number": 3})

	select {
	case raw := <-inPool.send:
		var msg struct {
			Type    string         `json:"type"`
			PoolID  int            `json:"pool_id"`
			Payload map[string]int `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		require.Equal(t, "leaderboard_updated", msg.Type)
		require.Equal(t, 7, msg.PoolID)
		require.Equal(t, 3, msg.Payload["week_number"])
	case <-time.After(time.Second):
		t.Fatal("expected message for pool 7 client")
	}

	require.Len(t, otherPool.send, 0)
}

func TestUnregisterClosesClientAndEmptiesRoom(t *testing.T) {
	hub := newTestHub(t)

	client := NewClient(hub, nil, 3, 1)
	hub.register <- client
	require.Eventually(t, func() bool { return hub.RoomSize(3) == 1 }, time.Second, 10*time.Millisecond)

	hub.unregister <- client
	require.Eventually(t, func() bool { return hub.RoomSize(3) == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-client.send
	require.False(t, ok)

	// Рассылка в пустую комнату не паникует.
	hub.BroadcastToPool(3, "leaderboard_updated", nil)
}

func TestStoppedHubDoesNotBlockClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := NewClient(hub, nil, 5, 1)
	require.True(t, hub.join(client))
	require.Eventually(t, func() bool { return hub.RoomSize(5) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	require.Equal(t, 0, hub.RoomSize(5))

	finished := make(chan bool)
	go func() {
		hub.leave(client)
		finished <- hub.join(NewClient(hub, nil, 5, 2))
	}()
	select {
	case joined := <-finished:
		require.False(t, joined)
	case <-time.After(time.Second):
		t.Fatal("client calls blocked on stopped hub")
	}
}
