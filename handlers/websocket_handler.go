package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prizmbets/pickem/live"
	"github.com/prizmbets/pickem/middleware"
	"github.com/prizmbets/pickem/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin проверяет CORS-слой; токен обязателен.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub         *live.Hub
	poolService services.PoolService
}

func NewWebSocketHandler(hub *live.Hub, ps services.PoolService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		poolService: ps,
	}
}

// ServeWs подключает участника к live-комнате пула.
// Клиент подключается к /api/pickem/pools/{poolID}/live?token=...
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	poolID, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	if err := h.poolService.EnsureMember(r.Context(), poolID, currentUserID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой.
		slog.WarnContext(r.Context(), "Failed to upgrade websocket connection",
			slog.Int("pool_id", poolID), slog.Any("error", err))
		return
	}

	client := live.NewClient(h.hub, conn, poolID, currentUserID)
	if err := client.Start(); err != nil {
		slog.WarnContext(r.Context(), "Live client rejected", slog.Int("pool_id", poolID), slog.Any("error", err))
		return
	}

	slog.DebugContext(r.Context(), "Live client connected",
		slog.Int("pool_id", poolID), slog.Int("user_id", currentUserID))
}
