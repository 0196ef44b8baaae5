package repository

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testVoteSession(roomID, targetUserID string) domain.VoteKickSession {
	now := time.Now()
	return domain.VoteKickSession{
		RoomID:        roomID,
		TargetUserID:  targetUserID,
		StarterUserID: "u1",
		StartedAt:     now,
		ExpiresAt:     now.Add(time.Minute),
		RequiredVotes: 3,
	}
}

// failPipelines rejects pipelined commands while armed; single commands pass.
type failPipelines struct {
	armed *atomic.Bool
}

func (h failPipelines) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h failPipelines) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h failPipelines) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.armed.Load() {
			return stderrors.New("pipeline unavailable")
		}
		return next(ctx, cmds)
	}
}

func TestRedisVoteCreateSessionRollsBackOnPipelineFailure(t *testing.T) {
	client, _ := newTestRedis(t)
	armed := &atomic.Bool{}
	client.AddHook(failPipelines{armed: armed})
	repo := NewVoteRepository(client, logger.New("error"))
	ctx := context.Background()

	// The session key lands via SETNX, then the voters-set pipeline dies.
	armed.Store(true)
	err := repo.CreateSession(ctx, testVoteSession("general", "u5"), time.Minute)
	require.Error(t, err)
	require.NotErrorIs(t, err, errors.ErrAlreadyVoting)

	// The half-created session must not lock out a retry for the window.
	armed.Store(false)
	require.NoError(t, repo.CreateSession(ctx, testVoteSession("general", "u5"), time.Minute))

	count, err := repo.CountVotes(ctx, "general", "u5")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRedisVoteVoterSetAlwaysCarriesTTL(t *testing.T) {
	client, srv := newTestRedis(t)
	repo := NewVoteRepository(client, logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, testVoteSession("general", "u5"), time.Minute))

	count, err := repo.AddVote(ctx, "general", "u5", "u2")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Greater(t, srv.TTL(voteVotersKey("general", "u5")), time.Duration(0))

	// The voters set expires out from under the session; the next vote
	// recreates it and it must still share the session's deadline, not live
	// forever and seed a future vote with stale voters.
	srv.Del(voteVotersKey("general", "u5"))

	count, err = repo.AddVote(ctx, "general", "u5", "u3")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Greater(t, srv.TTL(voteVotersKey("general", "u5")), time.Duration(0))

	// Once the whole window lapses everything is gone together.
	srv.FastForward(2 * time.Minute)
	_, err = repo.AddVote(ctx, "general", "u5", "u4")
	require.ErrorIs(t, err, errors.ErrNoActiveVote)
	require.False(t, srv.Exists(voteVotersKey("general", "u5")))
}

func TestRedisVoteSingleFlightAndDuplicates(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewVoteRepository(client, logger.New("error"))
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, testVoteSession("general", "u5"), time.Minute))
	require.ErrorIs(t, repo.CreateSession(ctx, testVoteSession("general", "u5"), time.Minute), errors.ErrAlreadyVoting)

	count, err := repo.AddVote(ctx, "general", "u5", "u2")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = repo.AddVote(ctx, "general", "u5", "u2")
	require.ErrorIs(t, err, errors.ErrAlreadyVoted)
	require.Equal(t, 2, count)

	require.NoError(t, repo.RemoveSession(ctx, "general", "u5"))
	_, err = repo.GetSession(ctx, "general", "u5")
	require.ErrorIs(t, err, errors.ErrNoActiveVote)
}
