package repository

import (
	"context"
	"encoding/json"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// VoteRepository holds the authoritative state of kick votes and cooldowns.
// Session creation is atomic (single-flight per room/target) and every key
// carries the vote window as TTL, so a session can never outlive its window
// even if the process that scheduled the ticks dies.
type VoteRepository interface {
	CreateSession(ctx context.Context, session domain.VoteKickSession, window time.Duration) error
	GetSession(ctx context.Context, roomID, targetUserID string) (*domain.VoteKickSession, error)
	AddVote(ctx context.Context, roomID, targetUserID, voterUserID string) (int, error)
	CountVotes(ctx context.Context, roomID, targetUserID string) (int, error)
	RemoveSession(ctx context.Context, roomID, targetUserID string) error
	SetCooldown(ctx context.Context, roomID, targetUserID string, ttl time.Duration) error
	CooldownActive(ctx context.Context, roomID, targetUserID string) (bool, error)
}

type voteRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewVoteRepository(redis *redis.Client, log logger.Logger) VoteRepository {
	return &voteRepository{redis: redis, log: log}
}

func voteSessionKey(roomID, targetUserID string) string {
	return "vote:" + roomID + ":" + targetUserID
}

func voteVotersKey(roomID, targetUserID string) string {
	return "vote:" + roomID + ":" + targetUserID + ":voters"
}

func voteCooldownKey(roomID, targetUserID string) string {
	return "votecd:" + roomID + ":" + targetUserID
}

func (r *voteRepository) CreateSession(ctx context.Context, session domain.VoteKickSession, window time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}

	created, err := r.redis.SetNX(ctx, voteSessionKey(session.RoomID, session.TargetUserID), raw, window).Result()
	if err != nil {
		r.log.Error("Failed to create vote session", "error", err, "room_id", session.RoomID, "target", session.TargetUserID)
		return err
	}
	if !created {
		return errors.ErrAlreadyVoting
	}

	votersKey := voteVotersKey(session.RoomID, session.TargetUserID)
	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, votersKey)
	pipe.SAdd(ctx, votersKey, session.StarterUserID)
	pipe.Expire(ctx, votersKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to record starter vote", "error", err, "room_id", session.RoomID, "target", session.TargetUserID)
		// Roll the session key back, otherwise a retry is locked out with
		// already_voting for the whole window by a session nobody drives.
		if delErr := r.redis.Del(ctx, voteSessionKey(session.RoomID, session.TargetUserID)).Err(); delErr != nil {
			r.log.Error("Failed to roll back vote session", "error", delErr, "room_id", session.RoomID, "target", session.TargetUserID)
		}
		return err
	}

	return nil
}

func (r *voteRepository) GetSession(ctx context.Context, roomID, targetUserID string) (*domain.VoteKickSession, error) {
	raw, err := r.redis.Get(ctx, voteSessionKey(roomID, targetUserID)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrNoActiveVote
	}
	if err != nil {
		r.log.Error("Failed to get vote session", "error", err, "room_id", roomID, "target", targetUserID)
		return nil, err
	}

	session := &domain.VoteKickSession{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (r *voteRepository) AddVote(ctx context.Context, roomID, targetUserID, voterUserID string) (int, error) {
	// TTL doubles as the existence check and yields the remaining window,
	// which the voters set must share.
	remaining, err := r.redis.TTL(ctx, voteSessionKey(roomID, targetUserID)).Result()
	if err != nil {
		r.log.Error("Failed to check vote session", "error", err, "room_id", roomID, "target", targetUserID)
		return 0, err
	}
	if remaining <= 0 {
		return 0, errors.ErrNoActiveVote
	}

	// SAdd and Expire travel together so a voters set recreated after its
	// own expiry can never outlive the session and seed the next vote.
	votersKey := voteVotersKey(roomID, targetUserID)
	pipe := r.redis.TxPipeline()
	added := pipe.SAdd(ctx, votersKey, voterUserID)
	pipe.Expire(ctx, votersKey, remaining)
	count := pipe.SCard(ctx, votersKey)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to add vote", "error", err, "room_id", roomID, "target", targetUserID, "voter", voterUserID)
		return 0, err
	}

	if added.Val() == 0 {
		return int(count.Val()), errors.ErrAlreadyVoted
	}

	return int(count.Val()), nil
}

func (r *voteRepository) CountVotes(ctx context.Context, roomID, targetUserID string) (int, error) {
	count, err := r.redis.SCard(ctx, voteVotersKey(roomID, targetUserID)).Result()
	if err != nil {
		r.log.Error("Failed to count votes", "error", err, "room_id", roomID, "target", targetUserID)
		return 0, err
	}
	return int(count), nil
}

func (r *voteRepository) RemoveSession(ctx context.Context, roomID, targetUserID string) error {
	if err := r.redis.Del(ctx, voteSessionKey(roomID, targetUserID), voteVotersKey(roomID, targetUserID)).Err(); err != nil {
		r.log.Error("Failed to remove vote session", "error", err, "room_id", roomID, "target", targetUserID)
		return err
	}
	return nil
}

func (r *voteRepository) SetCooldown(ctx context.Context, roomID, targetUserID string, ttl time.Duration) error {
	if err := r.redis.Set(ctx, voteCooldownKey(roomID, targetUserID), time.Now().Unix(), ttl).Err(); err != nil {
		r.log.Error("Failed to set kick cooldown", "error", err, "room_id", roomID, "target", targetUserID)
		return err
	}
	return nil
}

func (r *voteRepository) CooldownActive(ctx context.Context, roomID, targetUserID string) (bool, error) {
	exists, err := r.redis.Exists(ctx, voteCooldownKey(roomID, targetUserID)).Result()
	if err != nil {
		r.log.Error("Failed to check kick cooldown", "error", err, "room_id", roomID, "target", targetUserID)
		return false, err
	}
	return exists > 0, nil
}
