package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat_session/internal/config"
	"chat_session/internal/domain"
	"chat_session/internal/repository"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/samber/lo"
)

// VoteKickService runs the timed, quorum-based vote to remove a participant.
// The store is authoritative for session existence, voter sets and
// cooldowns; the in-process timer only schedules the broadcast ticks. A
// session key expires with the vote window, so a process restart can at
// worst delay the failure notice, never leave a vote permanently open.
type VoteKickService interface {
	Start(ctx context.Context, ev domain.VoteKickStart) error
	Cast(ctx context.Context, ev domain.VoteKickCast) error
	CancelIfTarget(ctx context.Context, roomID, userID string)
}

type voteKickService struct {
	voteRepo     repository.VoteRepository
	presenceRepo repository.PresenceRepository
	userRepo     repository.UserRepository
	auditRepo    repository.AuditRepository
	rooms        RoomService
	cfg          config.SessionConfig
	log          logger.Logger

	mu      sync.Mutex
	cancels map[string]chan struct{}
}

func NewVoteKickService(
	voteRepo repository.VoteRepository,
	presenceRepo repository.PresenceRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	rooms RoomService,
	cfg config.SessionConfig,
	log logger.Logger,
) VoteKickService {
	return &voteKickService{
		voteRepo:     voteRepo,
		presenceRepo: presenceRepo,
		userRepo:     userRepo,
		auditRepo:    auditRepo,
		rooms:        rooms,
		cfg:          cfg,
		log:          log,
		cancels:      make(map[string]chan struct{}),
	}
}

func sessionKey(roomID, targetUserID string) string {
	return roomID + "|" + targetUserID
}

func (s *voteKickService) Start(ctx context.Context, ev domain.VoteKickStart) error {
	members, err := s.presenceRepo.Members(ctx, ev.RoomID)
	if err != nil {
		return err
	}

	starter, ok := findByUsername(members, ev.StarterUsername)
	if !ok {
		return errors.ErrNotJoined
	}
	target, ok := findByUsername(members, ev.TargetUsername)
	if !ok {
		return errors.ErrTargetNotInRoom
	}

	onCooldown, err := s.voteRepo.CooldownActive(ctx, ev.RoomID, target.UserID)
	if err != nil {
		return err
	}
	if onCooldown {
		return errors.ErrCooldownActive
	}

	role := s.resolveRole(ctx, starter)

	now := time.Now()
	session := domain.VoteKickSession{
		RoomID:        ev.RoomID,
		TargetUserID:  target.UserID,
		TargetName:    target.Username,
		StarterUserID: starter.UserID,
		StarterName:   starter.Username,
		StartedAt:     now,
		ExpiresAt:     now.Add(s.cfg.VoteWindow),
		RequiredVotes: domain.RequiredVotes(len(members)),
	}

	if err := s.voteRepo.CreateSession(ctx, session, s.cfg.VoteWindow); err != nil {
		return err
	}

	s.audit(ctx, domain.EventTypeVoteKickStarted, session, role, 1)
	s.announce(session, 1)
	s.log.Info("Vote kick started",
		"room_id", session.RoomID, "target", session.TargetUserID,
		"starter", session.StarterUserID, "required_votes", session.RequiredVotes)

	// The starter's own vote counts; a one- or two-member room resolves
	// immediately.
	if session.RequiredVotes <= 1 {
		s.resolveKicked(context.Background(), session)
		return nil
	}

	cancel := make(chan struct{})
	s.mu.Lock()
	s.cancels[sessionKey(session.RoomID, session.TargetUserID)] = cancel
	s.mu.Unlock()

	go s.runTicks(session, cancel)
	return nil
}

func (s *voteKickService) Cast(ctx context.Context, ev domain.VoteKickCast) error {
	members, err := s.presenceRepo.Members(ctx, ev.RoomID)
	if err != nil {
		return err
	}

	voter, ok := findByUsername(members, ev.VoterUsername)
	if !ok {
		return errors.ErrNotJoined
	}
	target, ok := findByUsername(members, ev.TargetUsername)
	if !ok {
		// The target is gone; any session for it has been discarded.
		return errors.ErrNoActiveVote
	}

	count, err := s.voteRepo.AddVote(ctx, ev.RoomID, target.UserID, voter.UserID)
	if err != nil {
		return err
	}

	session, err := s.voteRepo.GetSession(ctx, ev.RoomID, target.UserID)
	if err != nil {
		return err
	}

	if count >= session.RequiredVotes {
		// Quorum reached mid-window: resolve now, do not wait for a tick.
		s.resolveKicked(ctx, *session)
		return nil
	}

	s.rooms.Broadcast(session.RoomID, domain.SystemMessage{
		RoomID: session.RoomID,
		Type:   domain.SystemMessageVoteKick,
		Message: fmt.Sprintf("Vote to remove %s: %d of %d votes, %d more needed, %ds remaining",
			session.TargetName, count, session.RequiredVotes,
			session.RequiredVotes-count, int(time.Until(session.ExpiresAt).Seconds())),
	})
	return nil
}

// CancelIfTarget discards an open session when its target leaves the room
// voluntarily. The discard is silent: no failure notice, no cooldown.
func (s *voteKickService) CancelIfTarget(ctx context.Context, roomID, userID string) {
	if _, err := s.voteRepo.GetSession(ctx, roomID, userID); err != nil {
		return
	}

	if err := s.voteRepo.RemoveSession(ctx, roomID, userID); err != nil {
		s.log.Error("Failed to discard vote session", "error", err, "room_id", roomID, "target", userID, "op", "vote-cancel")
		return
	}
	s.stopTicks(roomID, userID)
	s.log.Info("Vote kick discarded, target left room", "room_id", roomID, "target", userID)
}

// runTicks drives the scheduled broadcasts. The deadlines are computed once
// at vote start; a single timer walks them and the cancel channel stops it
// on early resolution.
func (s *voteKickService) runTicks(session domain.VoteKickSession, cancel chan struct{}) {
	ticks := s.cfg.VoteTicks
	interval := s.cfg.VoteWindow / time.Duration(ticks)
	deadlines := make([]time.Time, ticks)
	for i := range deadlines {
		deadlines[i] = session.StartedAt.Add(interval * time.Duration(i+1))
	}

	timer := time.NewTimer(time.Until(deadlines[0]))
	defer timer.Stop()

	for i := 0; i < ticks; i++ {
		if i > 0 {
			timer.Reset(time.Until(deadlines[i]))
		}

		select {
		case <-cancel:
			return
		case <-timer.C:
		}

		ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
		current, err := s.voteRepo.GetSession(ctx, session.RoomID, session.TargetUserID)
		if err != nil {
			// Resolved or discarded elsewhere.
			cancelCtx()
			return
		}

		count, err := s.voteRepo.CountVotes(ctx, session.RoomID, session.TargetUserID)
		if err != nil {
			s.log.Error("Vote tick tally failed", "error", err, "room_id", session.RoomID, "target", session.TargetUserID, "op", "vote-tick")
			cancelCtx()
			continue
		}

		// Votes may have landed between ticks without tripping the early
		// path; the tick recount is authoritative.
		if count >= current.RequiredVotes {
			s.resolveKicked(ctx, *current)
			cancelCtx()
			return
		}

		if i == ticks-1 {
			s.resolveFailed(ctx, *current)
			cancelCtx()
			return
		}

		s.rooms.Broadcast(session.RoomID, domain.SystemMessage{
			RoomID: session.RoomID,
			Type:   domain.SystemMessageVoteKick,
			Message: fmt.Sprintf("Vote to remove %s: %d of %d votes, %d more needed, %ds remaining",
				current.TargetName, count, current.RequiredVotes,
				current.RequiredVotes-count, int(time.Until(current.ExpiresAt).Seconds())),
		})
		cancelCtx()
	}
}

// resolveKicked executes the kick. Order matters for crash recovery: the
// cooldown lands before the session is deleted, and the session's own TTL
// bounds any half-finished state.
func (s *voteKickService) resolveKicked(ctx context.Context, session domain.VoteKickSession) {
	s.mu.Lock()
	if _, err := s.voteRepo.GetSession(ctx, session.RoomID, session.TargetUserID); err != nil {
		s.mu.Unlock()
		return
	}
	if err := s.voteRepo.SetCooldown(ctx, session.RoomID, session.TargetUserID, s.cfg.KickCooldown); err != nil {
		s.log.Error("Failed to write kick cooldown", "error", err, "room_id", session.RoomID, "target", session.TargetUserID, "op", "vote-resolve")
	}
	if err := s.voteRepo.RemoveSession(ctx, session.RoomID, session.TargetUserID); err != nil {
		s.log.Error("Failed to remove vote session", "error", err, "room_id", session.RoomID, "target", session.TargetUserID, "op", "vote-resolve")
	}
	s.mu.Unlock()

	s.stopTicks(session.RoomID, session.TargetUserID)

	s.rooms.Broadcast(session.RoomID, domain.SystemMessage{
		RoomID:  session.RoomID,
		Type:    domain.SystemMessageKick,
		Message: fmt.Sprintf("%s was removed from the room by vote", session.TargetName),
	})

	s.audit(ctx, domain.EventTypeUserKicked, session, domain.ActorRoleSystem, session.RequiredVotes)

	if err := s.rooms.ForceLeave(ctx, session.RoomID, session.TargetUserID, domain.ForcedLeaveKicked); err != nil {
		s.log.Error("Failed to force-leave kicked user", "error", err, "room_id", session.RoomID, "target", session.TargetUserID, "op", "vote-resolve")
	}

	s.log.Info("Vote kick resolved: kicked", "room_id", session.RoomID, "target", session.TargetUserID)
}

func (s *voteKickService) resolveFailed(ctx context.Context, session domain.VoteKickSession) {
	s.mu.Lock()
	if _, err := s.voteRepo.GetSession(ctx, session.RoomID, session.TargetUserID); err != nil {
		s.mu.Unlock()
		return
	}
	if err := s.voteRepo.RemoveSession(ctx, session.RoomID, session.TargetUserID); err != nil {
		s.log.Error("Failed to remove vote session", "error", err, "room_id", session.RoomID, "target", session.TargetUserID, "op", "vote-resolve")
	}
	s.mu.Unlock()

	s.stopTicks(session.RoomID, session.TargetUserID)

	s.rooms.Broadcast(session.RoomID, domain.SystemMessage{
		RoomID:  session.RoomID,
		Type:    domain.SystemMessageVoteKick,
		Message: fmt.Sprintf("Vote to remove %s failed: not enough votes", session.TargetName),
	})

	s.audit(ctx, domain.EventTypeVoteKickFailed, session, domain.ActorRoleSystem, 0)
	s.log.Info("Vote kick resolved: failed", "room_id", session.RoomID, "target", session.TargetUserID)
}

func (s *voteKickService) announce(session domain.VoteKickSession, votes int) {
	s.rooms.Broadcast(session.RoomID, domain.SystemMessage{
		RoomID: session.RoomID,
		Type:   domain.SystemMessageVoteKick,
		Message: fmt.Sprintf("%s started a vote to remove %s: %d more vote(s) needed, %ds remaining",
			session.StarterName, session.TargetName,
			session.RequiredVotes-votes, int(s.cfg.VoteWindow.Seconds())),
	})
}

func (s *voteKickService) stopTicks(roomID, targetUserID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(roomID, targetUserID)
	if cancel, ok := s.cancels[key]; ok {
		delete(s.cancels, key)
		close(cancel)
	}
}

func (s *voteKickService) resolveRole(ctx context.Context, member domain.PresenceRecord) string {
	if s.userRepo == nil {
		return member.Role
	}

	role, err := s.userRepo.GetRole(ctx, member.UserID)
	if err != nil {
		// The directory is a network collaborator; fall back to the role
		// recorded at join rather than blocking the vote.
		s.log.Warn("Directory role lookup failed", "error", err, "user_id", member.UserID)
		return member.Role
	}
	return role
}

func (s *voteKickService) audit(ctx context.Context, eventType string, session domain.VoteKickSession, role string, votes int) {
	if s.auditRepo == nil {
		return
	}

	entry := &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: session.StarterUserID,
		ActorRole:   role,
		RoomID:      session.RoomID,
		EventType:   eventType,
		Payload: map[string]any{
			"target_user_id": session.TargetUserID,
			"required_votes": session.RequiredVotes,
			"votes":          votes,
		},
	}
	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Warn("Audit write failed", "error", err, "event_type", eventType, "room_id", session.RoomID)
	}
}

func findByUsername(members []domain.PresenceRecord, username string) (domain.PresenceRecord, bool) {
	return lo.Find(members, func(m domain.PresenceRecord) bool {
		return m.Username == username
	})
}
