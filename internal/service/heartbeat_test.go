package service

import (
	"context"
	"testing"
	"time"

	"chat_session/internal/domain"
	"chat_session/internal/repository"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/stretchr/testify/require"
)

func TestReconcileEvictsExpiredPresence(t *testing.T) {
	cfg := testSessionConfig()
	log := logger.New("error")
	presence := repository.NewMemoryPresenceRepository(log)
	rateLimit := repository.NewMemoryRateLimitRepository()
	history := NewHistoryService(nil, cfg, log)
	rooms := NewRoomService(presence, rateLimit, nil, history, cfg, log)
	monitor := NewHeartbeatMonitor(presence, rooms, nil, cfg, log)

	ctx := context.Background()
	alice := newFakeSubscriber("conn-1", "u1")
	bob := newFakeSubscriber("conn-2", "u2")
	require.NoError(t, rooms.Join(ctx, alice, domain.RoomJoin{RoomID: "general", UserID: "u1", Username: "alice"}))
	require.NoError(t, rooms.Join(ctx, bob, domain.RoomJoin{RoomID: "general", UserID: "u2", Username: "bob"}))

	// Bob's record vanishes without a leave, as if his TTL lapsed.
	require.NoError(t, presence.Remove(ctx, "general", "u2"))

	monitor.Reconcile(ctx)

	require.Equal(t, []string{domain.ForcedLeaveExpired}, bob.evicted())
	require.Empty(t, alice.evicted())

	// Bob's connection is out of the fanout registry.
	for _, sub := range rooms.Subscribers("general") {
		require.NotEqual(t, "u2", sub.UserID())
	}

	// The survivors received a reconciled member list without bob.
	var updates []domain.RoomMembersUpdated
	alice.mu.Lock()
	for _, ev := range alice.events {
		if update, ok := ev.(domain.RoomMembersUpdated); ok {
			updates = append(updates, update)
		}
	}
	alice.mu.Unlock()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	require.Len(t, last.Members, 1)
	require.Equal(t, "alice", last.Members[0].Username)

	// A forced-leave is not a membership: bob must re-join, and a stray
	// heartbeat cannot resurrect him.
	require.ErrorIs(t, rooms.Heartbeat(ctx, "general", "u2"), errors.ErrPresenceGone)
}

func TestReconcileLeavesHealthyRoomsAlone(t *testing.T) {
	cfg := testSessionConfig()
	log := logger.New("error")
	presence := repository.NewMemoryPresenceRepository(log)
	rateLimit := repository.NewMemoryRateLimitRepository()
	history := NewHistoryService(nil, cfg, log)
	rooms := NewRoomService(presence, rateLimit, nil, history, cfg, log)
	monitor := NewHeartbeatMonitor(presence, rooms, nil, cfg, log)

	ctx := context.Background()
	alice := newFakeSubscriber("conn-1", "u1")
	bob := newFakeSubscriber("conn-2", "u2")
	require.NoError(t, rooms.Join(ctx, alice, domain.RoomJoin{RoomID: "general", UserID: "u1", Username: "alice"}))
	require.NoError(t, rooms.Join(ctx, bob, domain.RoomJoin{RoomID: "general", UserID: "u2", Username: "bob"}))

	monitor.Reconcile(ctx)

	require.Empty(t, alice.evicted())
	require.Empty(t, bob.evicted())
	require.Len(t, rooms.Subscribers("general"), 2)
}

func TestHeartbeatRefreshesPresence(t *testing.T) {
	cfg := testSessionConfig()
	cfg.PresenceTTL = 60 * time.Millisecond
	log := logger.New("error")
	presence := repository.NewMemoryPresenceRepository(log)
	rateLimit := repository.NewMemoryRateLimitRepository()
	history := NewHistoryService(nil, cfg, log)
	rooms := NewRoomService(presence, rateLimit, nil, history, cfg, log)

	ctx := context.Background()
	alice := newFakeSubscriber("conn-1", "u1")
	require.NoError(t, rooms.Join(ctx, alice, domain.RoomJoin{RoomID: "general", UserID: "u1", Username: "alice"}))

	// Heartbeats inside the TTL keep the record alive past its original
	// deadline.
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, rooms.Heartbeat(ctx, "general", "u1"))
	}

	// Silence past the TTL expires it; the next heartbeat reports the gap
	// instead of re-creating the record.
	time.Sleep(80 * time.Millisecond)
	require.ErrorIs(t, rooms.Heartbeat(ctx, "general", "u1"), errors.ErrPresenceGone)
	_, err := presence.Get(ctx, "general", "u1")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestHeartbeatMonitorRunStopsOnCancel(t *testing.T) {
	cfg := testSessionConfig()
	cfg.ReconcileInterval = 5 * time.Millisecond
	log := logger.New("error")
	presence := repository.NewMemoryPresenceRepository(log)
	rateLimit := repository.NewMemoryRateLimitRepository()
	history := NewHistoryService(nil, cfg, log)
	rooms := NewRoomService(presence, rateLimit, nil, history, cfg, log)
	monitor := NewHeartbeatMonitor(presence, rooms, nil, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}
