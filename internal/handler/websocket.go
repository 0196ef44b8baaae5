package handler

import (
	"net/http"

	"chat_session/internal/middleware"
	"chat_session/internal/service"
	"chat_session/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin enforcement is handled by the edge proxy.
	},
}

type WebSocketHandler struct {
	services *service.Services
	auth     *middleware.AuthMiddleware
	log      logger.Logger
}

func NewWebSocketHandler(services *service.Services, auth *middleware.AuthMiddleware, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		services: services,
		auth:     auth,
		log:      log,
	}
}

// Handle upgrades the connection and runs its event loop. The token travels
// as a query parameter because browsers cannot set headers on websocket
// dials.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	claims, err := h.auth.ValidateToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err, "user_id", claims.UserID)
		return
	}

	conn := newConnection(ws, claims, h.services, h.log)
	h.log.Info("Connection established", "user_id", claims.UserID, "username", claims.Username)

	go conn.writePump()
	conn.readPump(c.Request.Context())

	h.log.Info("Connection closed", "user_id", claims.UserID)
}
