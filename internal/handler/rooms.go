package handler

import (
	"net/http"
	"strconv"

	"chat_session/internal/service"
	"chat_session/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RoomHandler exposes read-only room views over REST for operators and
// non-realtime clients.
type RoomHandler struct {
	services *service.Services
	log      logger.Logger
}

func NewRoomHandler(services *service.Services, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		services: services,
		log:      log,
	}
}

func (h *RoomHandler) GetMembers(c *gin.Context) {
	roomID := c.Param("id")

	members, err := h.services.Rooms.Members(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"members": members,
		"count":   len(members),
	})
}

func (h *RoomHandler) GetHistory(c *gin.Context) {
	roomID := c.Param("id")

	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	messages, hasMore := h.services.History.Backfill(c.Request.Context(), roomID, limit)
	c.JSON(http.StatusOK, gin.H{
		"room_id":  roomID,
		"messages": messages,
		"has_more": hasMore,
	})
}
