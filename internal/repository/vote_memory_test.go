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

func TestMemoryVoteSessionLifecycle(t *testing.T) {
	repo := NewMemoryVoteRepository(logger.New("error"))
	ctx := context.Background()

	session := domain.VoteKickSession{
		RoomID:        "general",
		TargetUserID:  "u5",
		StarterUserID: "u1",
		StartedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(time.Minute),
		RequiredVotes: 3,
	}
	require.NoError(t, repo.CreateSession(ctx, session, time.Minute))

	// Single flight per (room, target).
	require.ErrorIs(t, repo.CreateSession(ctx, session, time.Minute), errors.ErrAlreadyVoting)

	// The starter's vote is pre-counted.
	count, err := repo.CountVotes(ctx, "general", "u5")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = repo.AddVote(ctx, "general", "u5", "u2")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = repo.AddVote(ctx, "general", "u5", "u2")
	require.ErrorIs(t, err, errors.ErrAlreadyVoted)

	require.NoError(t, repo.RemoveSession(ctx, "general", "u5"))
	_, err = repo.GetSession(ctx, "general", "u5")
	require.ErrorIs(t, err, errors.ErrNoActiveVote)
}

func TestMemoryVoteSessionExpires(t *testing.T) {
	repo := NewMemoryVoteRepository(logger.New("error"))
	ctx := context.Background()

	session := domain.VoteKickSession{RoomID: "general", TargetUserID: "u5", StarterUserID: "u1"}
	require.NoError(t, repo.CreateSession(ctx, session, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := repo.GetSession(ctx, "general", "u5")
	require.ErrorIs(t, err, errors.ErrNoActiveVote)
	_, err = repo.AddVote(ctx, "general", "u5", "u2")
	require.ErrorIs(t, err, errors.ErrNoActiveVote)

	// An expired session no longer blocks a new one.
	require.NoError(t, repo.CreateSession(ctx, session, time.Minute))
}

func TestMemoryVoteCooldown(t *testing.T) {
	repo := NewMemoryVoteRepository(logger.New("error"))
	ctx := context.Background()

	active, err := repo.CooldownActive(ctx, "general", "u5")
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, repo.SetCooldown(ctx, "general", "u5", 20*time.Millisecond))
	active, err = repo.CooldownActive(ctx, "general", "u5")
	require.NoError(t, err)
	require.True(t, active)

	time.Sleep(30 * time.Millisecond)
	active, err = repo.CooldownActive(ctx, "general", "u5")
	require.NoError(t, err)
	require.False(t, active)
}
