package handler

import (
	"chat_session/internal/middleware"
	"chat_session/internal/service"
	"chat_session/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Room      *RoomHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, auth *middleware.AuthMiddleware, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(),
		Room:      NewRoomHandler(services, log),
		WebSocket: NewWebSocketHandler(services, auth, log),
	}
}
