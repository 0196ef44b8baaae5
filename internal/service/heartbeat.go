package service

import (
	"context"
	"time"

	"chat_session/internal/config"
	"chat_session/internal/domain"
	"chat_session/internal/repository"
	"chat_session/pkg/logger"
)

// HeartbeatMonitor reconciles the subscriber registry against the presence
// store. A subscriber whose record expired without an explicit leave gets a
// forced-leave and the room sees an updated member list. Expiry itself is
// the store's job; this loop only observes it.
type HeartbeatMonitor struct {
	presenceRepo repository.PresenceRepository
	rooms        RoomService
	vote         VoteKickService
	cfg          config.SessionConfig
	log          logger.Logger
}

func NewHeartbeatMonitor(
	presenceRepo repository.PresenceRepository,
	rooms RoomService,
	vote VoteKickService,
	cfg config.SessionConfig,
	log logger.Logger,
) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		presenceRepo: presenceRepo,
		rooms:        rooms,
		vote:         vote,
		cfg:          cfg,
		log:          log,
	}
}

// Run reconciles on a fixed interval until the context is cancelled.
func (m *HeartbeatMonitor) Run(ctx context.Context) error {
	m.log.Info("Starting heartbeat monitor", "interval", m.cfg.ReconcileInterval)
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Reconcile makes one pass over every room with live subscribers.
func (m *HeartbeatMonitor) Reconcile(ctx context.Context) {
	for _, roomID := range m.rooms.RoomIDs() {
		m.reconcileRoom(ctx, roomID)
	}
}

func (m *HeartbeatMonitor) reconcileRoom(ctx context.Context, roomID string) {
	records, err := m.presenceRepo.Members(ctx, roomID)
	if err != nil {
		m.log.Error("Reconcile skipped, presence unavailable", "error", err, "room_id", roomID, "op", "reconcile")
		return
	}

	present := make(map[string]struct{}, len(records))
	for _, record := range records {
		present[record.UserID] = struct{}{}
	}

	var gone []string
	seen := make(map[string]struct{})
	for _, sub := range m.rooms.Subscribers(roomID) {
		userID := sub.UserID()
		if _, ok := present[userID]; ok {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		gone = append(gone, userID)
	}

	for _, userID := range gone {
		m.log.Info("Presence expired without leave", "room_id", roomID, "user_id", userID)
		if err := m.rooms.ForceLeave(ctx, roomID, userID, domain.ForcedLeaveExpired); err != nil {
			m.log.Error("Forced leave failed during reconcile", "error", err, "room_id", roomID, "user_id", userID, "op", "reconcile")
			continue
		}
		if m.vote != nil {
			m.vote.CancelIfTarget(ctx, roomID, userID)
		}
	}
}
