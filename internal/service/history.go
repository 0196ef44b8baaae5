package service

import (
	"context"

	"chat_session/internal/config"
	"chat_session/internal/domain"
	"chat_session/internal/repository"
	"chat_session/pkg/logger"
)

// HistoryService consults the external message-history store. A slow or
// unavailable store yields an empty page rather than blocking the join.
type HistoryService interface {
	Backfill(ctx context.Context, roomID string, limit int) ([]domain.Message, bool)
	Record(message domain.Message)
}

type historyService struct {
	historyRepo repository.HistoryRepository
	cfg         config.SessionConfig
	log         logger.Logger
}

func NewHistoryService(historyRepo repository.HistoryRepository, cfg config.SessionConfig, log logger.Logger) HistoryService {
	return &historyService{
		historyRepo: historyRepo,
		cfg:         cfg,
		log:         log,
	}
}

func (s *historyService) Backfill(ctx context.Context, roomID string, limit int) ([]domain.Message, bool) {
	if s.historyRepo == nil {
		return nil, false
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HistoryTimeout)
	defer cancel()

	messages, hasMore, err := s.historyRepo.GetHistory(ctx, roomID, nil, limit)
	if err != nil {
		s.log.Warn("History backfill failed, continuing with empty page", "error", err, "room_id", roomID, "op", "backfill")
		return nil, false
	}

	return messages, hasMore
}

// Record persists a delivered message best-effort in the background.
// Real-time fan-out never waits on the durable store.
func (s *historyService) Record(message domain.Message) {
	if s.historyRepo == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HistoryTimeout)
		defer cancel()

		if err := s.historyRepo.SaveMessage(ctx, message); err != nil {
			s.log.Warn("History write failed", "error", err, "room_id", message.RoomID, "client_message_id", message.ClientMessageID)
		}
	}()
}
