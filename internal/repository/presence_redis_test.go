package repository

import (
	"context"
	"testing"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestRedisPresenceMembersScopedToRoom(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPresenceRepository(client, logger.New("error"))
	ctx := context.Background()

	// A room id that prefixes other room ids: the DM composite makes this a
	// real layout, not a contrived one.
	dmRoom := domain.DirectRoomID("bob", "carol")
	require.NoError(t, repo.Set(ctx, testRecord("dm", "u1", "alice"), time.Minute))
	require.NoError(t, repo.Set(ctx, testRecord(dmRoom, "u2", "bob"), time.Minute))
	require.NoError(t, repo.Set(ctx, testRecord(dmRoom, "u3", "carol"), time.Minute))

	members, err := repo.Members(ctx, "dm")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "alice", members[0].Username)

	count, err := repo.Count(ctx, "dm")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	members, err = repo.Members(ctx, dmRoom)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestRedisPresenceRefreshAndExpiry(t *testing.T) {
	client, srv := newTestRedis(t)
	repo := NewPresenceRepository(client, logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testRecord("general", "u1", "alice"), time.Minute))

	refreshed, err := repo.Refresh(ctx, "general", "u1", time.Minute)
	require.NoError(t, err)
	require.True(t, refreshed)

	// Past the TTL the key is gone and a refresh cannot resurrect it.
	srv.FastForward(2 * time.Minute)
	refreshed, err = repo.Refresh(ctx, "general", "u1", time.Minute)
	require.NoError(t, err)
	require.False(t, refreshed)

	members, err := repo.Members(ctx, "general")
	require.NoError(t, err)
	require.Empty(t, members)
}
