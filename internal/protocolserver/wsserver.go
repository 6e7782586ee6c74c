package protocolserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades one HTTP connection to a WebSocket and serves the
// dispatcher protocol over it: one Request per inbound text frame, one
// Response per outbound frame. Adapted from the gateway's connection-hub
// handler, narrowed to a single dispatcher call per message instead of a
// hub-wide broadcast model (this protocol has no cross-client fan-out).
type WSHandler struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewWSHandler(d *Dispatcher, logger *zap.Logger) *WSHandler {
	return &WSHandler{dispatcher: d, logger: logger}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := h.logger.With(zap.String("wsConnection", connID))

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			logger.Warn("discarding malformed websocket request frame", zap.Error(err))
			continue
		}

		resp := h.dispatcher.Handle(r.Context(), req)
		data, err := json.Marshal(resp)
		if err != nil {
			logger.Error("failed to marshal websocket response", zap.Error(err))
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
