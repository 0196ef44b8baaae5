package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_session/internal/config"
	"chat_session/internal/domain"
	"chat_session/internal/repository"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/samber/lo"
)

// Subscriber is the gateway-side view of one connection. Send must never
// block; Evict resets the connection's room state and delivers the
// forced-leave event.
type Subscriber interface {
	ID() string
	UserID() string
	Send(ev domain.ServerEvent)
	Evict(roomID, reason string)
}

// RoomService routes room lifecycle operations through the presence store
// and fans events out to room subscribers. Authority over membership lives
// in the store; the in-process registry only tracks which connections are
// listening.
type RoomService interface {
	Join(ctx context.Context, sub Subscriber, ev domain.RoomJoin) error
	Leave(ctx context.Context, sub Subscriber, ev domain.RoomLeave) error
	Heartbeat(ctx context.Context, roomID, userID string) error
	Message(ctx context.Context, ev domain.ChatSend) error
	Members(ctx context.Context, roomID string) ([]domain.Member, error)
	SetStatus(ctx context.Context, username, status string) error

	Broadcast(roomID string, ev domain.ServerEvent)
	ForceLeave(ctx context.Context, roomID, userID, reason string) error
	RoomIDs() []string
	Subscribers(roomID string) []Subscriber
}

type roomService struct {
	presenceRepo  repository.PresenceRepository
	rateLimitRepo repository.RateLimitRepository
	auditRepo     repository.AuditRepository
	history       HistoryService
	cfg           config.SessionConfig
	log           logger.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber
}

func NewRoomService(
	presenceRepo repository.PresenceRepository,
	rateLimitRepo repository.RateLimitRepository,
	auditRepo repository.AuditRepository,
	history HistoryService,
	cfg config.SessionConfig,
	log logger.Logger,
) RoomService {
	return &roomService{
		presenceRepo:  presenceRepo,
		rateLimitRepo: rateLimitRepo,
		auditRepo:     auditRepo,
		history:       history,
		cfg:           cfg,
		log:           log,
		rooms:         make(map[string]map[string]Subscriber),
	}
}

func (s *roomService) Join(ctx context.Context, sub Subscriber, ev domain.RoomJoin) error {
	if s.cfg.MaxRoomMembers > 0 {
		count, err := s.presenceRepo.Count(ctx, ev.RoomID)
		if err != nil {
			return err
		}
		if _, rejoining := s.findMember(ctx, ev.RoomID, ev.UserID); !rejoining && count >= s.cfg.MaxRoomMembers {
			return errors.ErrRoomFull
		}
	}

	role := ev.Role
	if role == "" {
		role = domain.RoleMember
	}

	record := domain.PresenceRecord{
		RoomID:          ev.RoomID,
		UserID:          ev.UserID,
		Username:        ev.Username,
		Role:            role,
		LastHeartbeatAt: time.Now(),
		Invisible:       ev.Invisible,
	}

	// Fail closed: without a confirmed presence write there is no join.
	if err := s.presenceRepo.Set(ctx, record, s.cfg.PresenceTTL); err != nil {
		s.log.Error("Join failed", "error", err, "room_id", ev.RoomID, "user_id", ev.UserID, "op", "join")
		return err
	}

	members, err := s.Members(ctx, ev.RoomID)
	if err != nil {
		return err
	}

	historyPage, hasMore := s.history.Backfill(ctx, ev.RoomID, s.cfg.HistoryPageSize)

	s.subscribe(ev.RoomID, sub)

	sub.Send(domain.RoomJoined{
		RoomID: ev.RoomID,
		Room: domain.Room{
			ID:              ev.RoomID,
			Name:            ev.RoomID,
			MemberTTL:       s.cfg.PresenceTTL,
			MaxParticipants: s.cfg.MaxRoomMembers,
		},
		Members:     members,
		HistoryPage: historyPage,
	})
	sub.Send(domain.ChatHistory{RoomID: ev.RoomID, Messages: historyPage, HasMore: hasMore})

	if !ev.Invisible {
		s.broadcastExcept(ev.RoomID, sub, domain.RoomUserJoined{
			RoomID:  ev.RoomID,
			User:    record.Member(),
			Members: members,
		})
	}

	s.audit(ctx, domain.EventTypeRoomJoined, ev.RoomID, ev.UserID, role, nil)
	s.log.Info("User joined room", "room_id", ev.RoomID, "user_id", ev.UserID, "username", ev.Username)
	return nil
}

func (s *roomService) Leave(ctx context.Context, sub Subscriber, ev domain.RoomLeave) error {
	if err := s.presenceRepo.Remove(ctx, ev.RoomID, ev.UserID); err != nil {
		s.log.Error("Leave failed", "error", err, "room_id", ev.RoomID, "user_id", ev.UserID, "op", "leave")
		return err
	}

	s.unsubscribe(ev.RoomID, sub)

	members, err := s.Members(ctx, ev.RoomID)
	if err != nil {
		members = nil
	}

	s.Broadcast(ev.RoomID, domain.RoomUserLeft{
		RoomID:   ev.RoomID,
		Username: ev.Username,
		Members:  members,
	})

	s.audit(ctx, domain.EventTypeRoomLeft, ev.RoomID, ev.UserID, "", nil)
	s.log.Info("User left room", "room_id", ev.RoomID, "user_id", ev.UserID)
	return nil
}

func (s *roomService) Heartbeat(ctx context.Context, roomID, userID string) error {
	refreshed, err := s.presenceRepo.Refresh(ctx, roomID, userID, s.cfg.PresenceTTL)
	if err != nil {
		s.log.Error("Heartbeat failed", "error", err, "room_id", roomID, "user_id", userID, "op", "heartbeat")
		return err
	}
	if !refreshed {
		// The record expired between heartbeats; the client must re-join.
		return errors.ErrPresenceGone
	}
	return nil
}

func (s *roomService) Message(ctx context.Context, ev domain.ChatSend) error {
	allowed, err := s.rateLimitRepo.Allow(ctx, "msg:"+ev.UserID, s.cfg.MessageRateLimit, s.cfg.MessageRateWindow)
	if err != nil {
		s.log.Error("Rate limit check failed", "error", err, "room_id", ev.RoomID, "user_id", ev.UserID, "op", "message")
	} else if !allowed {
		return errors.ErrRateLimited
	}

	broadcast := domain.ChatBroadcast{
		RoomID:          ev.RoomID,
		UserID:          ev.UserID,
		Username:        ev.Username,
		Message:         ev.Message,
		ClientMessageID: ev.ClientMessageID,
		Timestamp:       time.Now(),
		Kind:            domain.MessageKindChat,
	}

	// Fan out to every subscriber including the sender's own connections;
	// the client-side idempotency gate absorbs the echo.
	s.Broadcast(ev.RoomID, broadcast)

	s.history.Record(broadcast.ToMessage())
	return nil
}

func (s *roomService) Members(ctx context.Context, roomID string) ([]domain.Member, error) {
	records, err := s.presenceRepo.Members(ctx, roomID)
	if err != nil {
		return nil, err
	}

	visible := lo.Filter(records, func(r domain.PresenceRecord, _ int) bool {
		return !r.Invisible
	})
	members := lo.Map(visible, func(r domain.PresenceRecord, _ int) domain.Member {
		return r.Member()
	})
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

func (s *roomService) SetStatus(ctx context.Context, username, status string) error {
	if !domain.ValidStatus(status) {
		return errors.ErrInvalidEvent
	}
	return s.presenceRepo.SetStatus(ctx, username, status)
}

func (s *roomService) Broadcast(roomID string, ev domain.ServerEvent) {
	for _, sub := range s.Subscribers(roomID) {
		sub.Send(ev)
	}
}

func (s *roomService) broadcastExcept(roomID string, except Subscriber, ev domain.ServerEvent) {
	for _, sub := range s.Subscribers(roomID) {
		if sub.ID() != except.ID() {
			sub.Send(ev)
		}
	}
}

// ForceLeave removes a user's presence and evicts every one of their
// connections from the room, then broadcasts the updated member list.
func (s *roomService) ForceLeave(ctx context.Context, roomID, userID, reason string) error {
	if err := s.presenceRepo.Remove(ctx, roomID, userID); err != nil {
		s.log.Error("Forced leave failed", "error", err, "room_id", roomID, "user_id", userID, "op", "forced-leave")
		return err
	}

	for _, sub := range s.Subscribers(roomID) {
		if sub.UserID() == userID {
			sub.Evict(roomID, reason)
			s.unsubscribe(roomID, sub)
		}
	}

	members, err := s.Members(ctx, roomID)
	if err != nil {
		members = nil
	}
	s.Broadcast(roomID, domain.RoomMembersUpdated{RoomID: roomID, Members: members})

	s.audit(ctx, domain.EventTypeForcedLeave, roomID, userID, domain.ActorRoleSystem, map[string]any{"reason": reason})
	s.log.Info("User force-left room", "room_id", roomID, "user_id", userID, "reason", reason)
	return nil
}

func (s *roomService) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Keys(s.rooms)
}

func (s *roomService) Subscribers(roomID string) []Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Values(s.rooms[roomID])
}

func (s *roomService) subscribe(roomID string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rooms[roomID] == nil {
		s.rooms[roomID] = make(map[string]Subscriber)
	}
	s.rooms[roomID][sub.ID()] = sub
}

func (s *roomService) unsubscribe(roomID string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms[roomID], sub.ID())
	if len(s.rooms[roomID]) == 0 {
		delete(s.rooms, roomID)
	}
}

func (s *roomService) findMember(ctx context.Context, roomID, userID string) (*domain.PresenceRecord, bool) {
	record, err := s.presenceRepo.Get(ctx, roomID, userID)
	if err != nil {
		return nil, false
	}
	return record, true
}

func (s *roomService) audit(ctx context.Context, eventType, roomID, userID, role string, payload map[string]any) {
	if s.auditRepo == nil {
		return
	}

	entry := &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: userID,
		ActorRole:   role,
		RoomID:      roomID,
		EventType:   eventType,
		Payload:     payload,
	}
	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Warn("Audit write failed", "error", err, "event_type", eventType, "room_id", roomID)
	}
}
