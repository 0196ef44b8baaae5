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

// PresenceRepository is the authoritative store for room membership. All
// operations are atomic per (roomID, userID) key; expiry is driven by the
// store's own TTL, never by callers.
type PresenceRepository interface {
	Set(ctx context.Context, record domain.PresenceRecord, ttl time.Duration) error
	Refresh(ctx context.Context, roomID, userID string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, roomID, userID string) (*domain.PresenceRecord, error)
	Remove(ctx context.Context, roomID, userID string) error
	Members(ctx context.Context, roomID string) ([]domain.PresenceRecord, error)
	Count(ctx context.Context, roomID string) (int, error)
	SetStatus(ctx context.Context, username, status string) error
	GetStatus(ctx context.Context, username string) (string, error)
}

type presenceRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewPresenceRepository(redis *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{redis: redis, log: log}
}

func presenceKey(roomID, userID string) string {
	return "presence:" + roomID + ":" + userID
}

func presencePattern(roomID string) string {
	return "presence:" + roomID + ":*"
}

func statusKey(username string) string {
	return "status:" + username
}

func (r *presenceRepository) Set(ctx context.Context, record domain.PresenceRecord, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := r.redis.Set(ctx, presenceKey(record.RoomID, record.UserID), raw, ttl).Err(); err != nil {
		r.log.Error("Failed to set presence", "error", err, "room_id", record.RoomID, "user_id", record.UserID)
		return errors.ErrPresenceUnavailable
	}

	return nil
}

func (r *presenceRepository) Refresh(ctx context.Context, roomID, userID string, ttl time.Duration) (bool, error) {
	ok, err := r.redis.Expire(ctx, presenceKey(roomID, userID), ttl).Result()
	if err != nil {
		r.log.Error("Failed to refresh presence", "error", err, "room_id", roomID, "user_id", userID)
		return false, errors.ErrPresenceUnavailable
	}

	return ok, nil
}

func (r *presenceRepository) Get(ctx context.Context, roomID, userID string) (*domain.PresenceRecord, error) {
	raw, err := r.redis.Get(ctx, presenceKey(roomID, userID)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.log.Error("Failed to get presence", "error", err, "room_id", roomID, "user_id", userID)
		return nil, errors.ErrPresenceUnavailable
	}

	record := &domain.PresenceRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (r *presenceRepository) Remove(ctx context.Context, roomID, userID string) error {
	if err := r.redis.Del(ctx, presenceKey(roomID, userID)).Err(); err != nil {
		r.log.Error("Failed to remove presence", "error", err, "room_id", roomID, "user_id", userID)
		return errors.ErrPresenceUnavailable
	}
	return nil
}

func (r *presenceRepository) Members(ctx context.Context, roomID string) ([]domain.PresenceRecord, error) {
	var keys []string
	iter := r.redis.Scan(ctx, 0, presencePattern(roomID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.log.Error("Failed to scan presence keys", "error", err, "room_id", roomID)
		return nil, errors.ErrPresenceUnavailable
	}

	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		r.log.Error("Failed to load presence records", "error", err, "room_id", roomID)
		return nil, errors.ErrPresenceUnavailable
	}

	records := make([]domain.PresenceRecord, 0, len(values))
	for _, v := range values {
		// A key can expire between SCAN and MGET.
		s, ok := v.(string)
		if !ok {
			continue
		}
		var record domain.PresenceRecord
		if err := json.Unmarshal([]byte(s), &record); err != nil {
			continue
		}
		// The scan pattern is a prefix match, so a room id that prefixes
		// another room id (the DM composite ids do) matches foreign keys.
		if record.RoomID != roomID {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *presenceRepository) Count(ctx context.Context, roomID string) (int, error) {
	members, err := r.Members(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

func (r *presenceRepository) SetStatus(ctx context.Context, username, status string) error {
	if err := r.redis.Set(ctx, statusKey(username), status, 0).Err(); err != nil {
		r.log.Error("Failed to set status", "error", err, "username", username)
		return errors.ErrPresenceUnavailable
	}
	return nil
}

func (r *presenceRepository) GetStatus(ctx context.Context, username string) (string, error) {
	status, err := r.redis.Get(ctx, statusKey(username)).Result()
	if err == redis.Nil {
		return domain.StatusOffline, nil
	}
	if err != nil {
		return "", errors.ErrPresenceUnavailable
	}
	return status, nil
}
