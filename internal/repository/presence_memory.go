package repository

import (
	"context"
	"sync"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"
)

// memoryPresenceRepository backs deployments without redis. It has no native
// key expiry, so a sweep loop deletes records past their deadline; reads also
// treat an overdue record as already gone so expiry never depends on sweep
// timing.
type memoryPresenceRepository struct {
	mu       sync.RWMutex
	records  map[string]memoryPresenceEntry
	statuses map[string]string
	log      logger.Logger
}

type memoryPresenceEntry struct {
	record    domain.PresenceRecord
	expiresAt time.Time
}

func NewMemoryPresenceRepository(log logger.Logger) *memoryPresenceRepository {
	return &memoryPresenceRepository{
		records:  make(map[string]memoryPresenceEntry),
		statuses: make(map[string]string),
		log:      log,
	}
}

// Run sweeps expired records until the context is cancelled.
func (r *memoryPresenceRepository) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(time.Now()); n > 0 {
				r.log.Debug("Swept expired presence records", "count", n)
			}
		}
	}
}

// Sweep removes every record whose deadline is at or before now and returns
// how many were removed.
func (r *memoryPresenceRepository) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.records {
		if !entry.expiresAt.After(now) {
			delete(r.records, key)
			removed++
		}
	}
	return removed
}

func (r *memoryPresenceRepository) Set(ctx context.Context, record domain.PresenceRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[presenceKey(record.RoomID, record.UserID)] = memoryPresenceEntry{
		record:    record,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (r *memoryPresenceRepository) Refresh(ctx context.Context, roomID, userID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := presenceKey(roomID, userID)
	entry, ok := r.records[key]
	if !ok || !entry.expiresAt.After(time.Now()) {
		delete(r.records, key)
		return false, nil
	}

	entry.expiresAt = time.Now().Add(ttl)
	r.records[key] = entry
	return true, nil
}

func (r *memoryPresenceRepository) Get(ctx context.Context, roomID, userID string) (*domain.PresenceRecord, error) {
	r.mu.RLock()
	entry, ok := r.records[presenceKey(roomID, userID)]
	r.mu.RUnlock()

	if !ok || !entry.expiresAt.After(time.Now()) {
		return nil, errors.ErrNotFound
	}

	record := entry.record
	return &record, nil
}

func (r *memoryPresenceRepository) Remove(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, presenceKey(roomID, userID))
	return nil
}

func (r *memoryPresenceRepository) Members(ctx context.Context, roomID string) ([]domain.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var records []domain.PresenceRecord
	for _, entry := range r.records {
		if entry.record.RoomID == roomID && entry.expiresAt.After(now) {
			records = append(records, entry.record)
		}
	}
	return records, nil
}

func (r *memoryPresenceRepository) Count(ctx context.Context, roomID string) (int, error) {
	members, err := r.Members(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

func (r *memoryPresenceRepository) SetStatus(ctx context.Context, username, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses[username] = status
	return nil
}

func (r *memoryPresenceRepository) GetStatus(ctx context.Context, username string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if status, ok := r.statuses[username]; ok {
		return status, nil
	}
	return domain.StatusOffline, nil
}
