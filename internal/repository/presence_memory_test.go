package repository

import (
	"context"
	"testing"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/stretchr/testify/require"
)

func testRecord(roomID, userID, username string) domain.PresenceRecord {
	return domain.PresenceRecord{
		RoomID:          roomID,
		UserID:          userID,
		Username:        username,
		Role:            domain.RoleMember,
		LastHeartbeatAt: time.Now(),
	}
}

func TestMemoryPresenceSetGetRemove(t *testing.T) {
	repo := NewMemoryPresenceRepository(logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice"), time.Minute))

	record, err := repo.Get(ctx, "general", "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", record.Username)

	require.NoError(t, repo.Remove(ctx, "general", "u1"))
	_, err = repo.Get(ctx, "general", "u1")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMemoryPresenceOneRecordPerRoomUser(t *testing.T) {
	repo := NewMemoryPresenceRepository(logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice"), time.Minute))
	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice-renamed"), time.Minute))

	count, err := repo.Count(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The rewrite wins; there is no stale duplicate.
	record, err := repo.Get(ctx, "general", "u1")
	require.NoError(t, err)
	require.Equal(t, "alice-renamed", record.Username)
}

func TestMemoryPresenceExpiryIsLazy(t *testing.T) {
	repo := NewMemoryPresenceRepository(logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	// No sweep has run, yet reads already treat the record as gone.
	_, err := repo.Get(ctx, "general", "u1")
	require.ErrorIs(t, err, errors.ErrNotFound)

	members, err := repo.Members(ctx, "general")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestMemoryPresenceRefresh(t *testing.T) {
	repo := NewMemoryPresenceRepository(logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice"), time.Minute))

	refreshed, err := repo.Refresh(ctx, "general", "u1", time.Minute)
	require.NoError(t, err)
	require.True(t, refreshed)

	// A refresh cannot resurrect an expired record.
	require.NoError(t, repo.Set(ctx, testRecord("general", "u2", "bob"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	refreshed, err = repo.Refresh(ctx, "general", "u2", time.Minute)
	require.NoError(t, err)
	require.False(t, refreshed)
}

func TestMemoryPresenceSweep(t *testing.T) {
	repo := NewMemoryPresenceRepository(logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice"), 10*time.Millisecond))
	require.NoError(t, repo.Set(ctx, testRecord("general", "u2", "bob"), time.Minute))
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, repo.Sweep(time.Now()))
	require.Equal(t, 0, repo.Sweep(time.Now()))

	members, err := repo.Members(ctx, "general")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "u2", members[0].UserID)
}

func TestMemoryPresenceStatus(t *testing.T) {
	repo := NewMemoryPresenceRepository(logger.New("error"))
	ctx := context.Background()

	status, err := repo.GetStatus(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusOffline, status)

	require.NoError(t, repo.SetStatus(ctx, "alice", domain.StatusAway))
	status, err = repo.GetStatus(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAway, status)
}
