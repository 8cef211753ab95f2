package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prizmbets/pickem/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// ErrHubStopped возвращается клиенту, подключившемуся после остановки хаба.
var ErrHubStopped = errors.New("live hub is stopped")

// Message - конверт события, отправляемого в комнату пула.
type Message struct {
	Type    string      `json:"type"`
	PoolID  int         `json:"pool_id"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	poolID int
	userID int
	closed bool
	mu     sync.Mutex
}

func NewClient(hub *Hub, conn *websocket.Conn, poolID, userID int) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		poolID: poolID,
		userID: userID,
	}
}

// Hub держит websocket-клиентов, сгруппированных по комнатам пулов.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	rooms      map[int]map[*Client]bool
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[int]map[*Client]bool),
		logger:     logger,
	}
}

// Run обслуживает регистрацию клиентов до отмены ctx. Вызывается один раз.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.poolID]; !ok {
				h.rooms[client.poolID] = make(map[*Client]bool)
			}
			h.rooms[client.poolID][client] = true
			size := len(h.rooms[client.poolID])
			h.mu.Unlock()
			metrics.AddLiveConnections(1)
			h.logger.Debug("Client joined pool room", slog.Int("pool_id", client.poolID), slog.Int("user_id", client.userID), slog.Int("room_size", size))

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.poolID]; ok {
				if _, okClient := room[client]; okClient {
					client.close()
					delete(room, client)
					metrics.AddLiveConnections(-1)
					if len(room) == 0 {
						delete(h.rooms, client.poolID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// join регистрирует клиента. false, если хаб уже остановлен.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for poolID, room := range h.rooms {
		for client := range room {
			client.close()
			metrics.AddLiveConnections(-1)
		}
		delete(h.rooms, poolID)
	}
}

// RoomSize возвращает число подключенных клиентов пула.
func (h *Hub) RoomSize(poolID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[poolID])
}

// BroadcastToPool отправляет событие всем клиентам комнаты пула. Медленные клиенты пропускаются.
func (h *Hub) BroadcastToPool(poolID int, eventType string, payload interface{}) {
	messageBytes, err := json.Marshal(Message{
		Type:    eventType,
		PoolID:  poolID,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal live message", slog.Int("pool_id", poolID), slog.String("type", eventType), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients, ok := h.rooms[poolID]
	if !ok {
		return
	}

	for client := range roomClients {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.send <- messageBytes:
		default:
			h.logger.Warn("Live client send buffer full, dropping message", slog.Int("pool_id", poolID), slog.Int("user_id", client.userID))
		}
		client.mu.Unlock()
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// Start регистрирует клиента в хабе и запускает циклы чтения и записи.
func (c *Client) Start() error {
	if !c.hub.join(c) {
		c.conn.Close()
		return ErrHubStopped
	}
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		// Входящие сообщения клиентов игнорируются, чтение нужно для pong и закрытия.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Live connection closed unexpectedly", slog.Int("pool_id", c.poolID), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Live write failed", slog.Int("pool_id", c.poolID), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
