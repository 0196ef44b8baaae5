package repository

import (
	"context"
	"sync"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"
)

type memoryVoteRepository struct {
	mu        sync.Mutex
	sessions  map[string]memoryVoteEntry
	cooldowns map[string]time.Time
	log       logger.Logger
}

type memoryVoteEntry struct {
	session   domain.VoteKickSession
	voters    map[string]struct{}
	expiresAt time.Time
}

func NewMemoryVoteRepository(log logger.Logger) *memoryVoteRepository {
	return &memoryVoteRepository{
		sessions:  make(map[string]memoryVoteEntry),
		cooldowns: make(map[string]time.Time),
		log:       log,
	}
}

// Run sweeps expired sessions and cooldowns until the context is cancelled.
func (r *memoryVoteRepository) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

func (r *memoryVoteRepository) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.sessions {
		if !entry.expiresAt.After(now) {
			delete(r.sessions, key)
			removed++
		}
	}
	for key, deadline := range r.cooldowns {
		if !deadline.After(now) {
			delete(r.cooldowns, key)
			removed++
		}
	}
	return removed
}

func (r *memoryVoteRepository) CreateSession(ctx context.Context, session domain.VoteKickSession, window time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := voteSessionKey(session.RoomID, session.TargetUserID)
	if entry, ok := r.sessions[key]; ok && entry.expiresAt.After(time.Now()) {
		return errors.ErrAlreadyVoting
	}

	r.sessions[key] = memoryVoteEntry{
		session:   session,
		voters:    map[string]struct{}{session.StarterUserID: {}},
		expiresAt: time.Now().Add(window),
	}
	return nil
}

func (r *memoryVoteRepository) GetSession(ctx context.Context, roomID, targetUserID string) (*domain.VoteKickSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[voteSessionKey(roomID, targetUserID)]
	if !ok || !entry.expiresAt.After(time.Now()) {
		return nil, errors.ErrNoActiveVote
	}

	session := entry.session
	return &session, nil
}

func (r *memoryVoteRepository) AddVote(ctx context.Context, roomID, targetUserID, voterUserID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[voteSessionKey(roomID, targetUserID)]
	if !ok || !entry.expiresAt.After(time.Now()) {
		return 0, errors.ErrNoActiveVote
	}

	if _, voted := entry.voters[voterUserID]; voted {
		return len(entry.voters), errors.ErrAlreadyVoted
	}

	entry.voters[voterUserID] = struct{}{}
	return len(entry.voters), nil
}

func (r *memoryVoteRepository) CountVotes(ctx context.Context, roomID, targetUserID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[voteSessionKey(roomID, targetUserID)]
	if !ok || !entry.expiresAt.After(time.Now()) {
		return 0, nil
	}
	return len(entry.voters), nil
}

func (r *memoryVoteRepository) RemoveSession(ctx context.Context, roomID, targetUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, voteSessionKey(roomID, targetUserID))
	return nil
}

func (r *memoryVoteRepository) SetCooldown(ctx context.Context, roomID, targetUserID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cooldowns[voteCooldownKey(roomID, targetUserID)] = time.Now().Add(ttl)
	return nil
}

func (r *memoryVoteRepository) CooldownActive(ctx context.Context, roomID, targetUserID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline, ok := r.cooldowns[voteCooldownKey(roomID, targetUserID)]
	if !ok {
		return false, nil
	}
	if !deadline.After(time.Now()) {
		delete(r.cooldowns, voteCooldownKey(roomID, targetUserID))
		return false, nil
	}
	return true, nil
}
