package repository

import (
	"context"
	"time"

	"chat_session/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Repositories struct {
	Presence  PresenceRepository
	Vote      VoteRepository
	RateLimit RateLimitRepository
	History   HistoryRepository
	User      UserRepository
	Audit     AuditRepository

	sweepers []sweeper
}

type sweeper interface {
	Run(ctx context.Context, interval time.Duration) error
}

// NewRepositories wires redis-backed stores when a client is provided and
// falls back to in-memory stores (with explicit sweeps) otherwise. The
// postgres-backed collaborators are optional: without a pool, history
// backfill is empty and the directory/audit trail are skipped.
func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{}

	if rdb != nil {
		repos.Presence = NewPresenceRepository(rdb, log)
		repos.Vote = NewVoteRepository(rdb, log)
		repos.RateLimit = NewRateLimitRepository(rdb, log)
	} else {
		presence := NewMemoryPresenceRepository(log)
		vote := NewMemoryVoteRepository(log)
		repos.Presence = presence
		repos.Vote = vote
		repos.RateLimit = NewMemoryRateLimitRepository()
		repos.sweepers = append(repos.sweepers, presence, vote)
		log.Warn("Redis not configured, using in-memory presence and vote stores")
	}

	if db != nil {
		repos.History = NewHistoryRepository(db, log)
		repos.User = NewUserRepository(db, log)
		repos.Audit = NewAuditRepository(db, log)
	} else {
		log.Warn("Postgres not configured, history backfill and audit trail disabled")
	}

	return repos
}

// StartSweepers launches the expiry sweep loops of any store lacking native
// TTL support. It is a no-op for redis-backed stores.
func (r *Repositories) StartSweepers(ctx context.Context, interval time.Duration) {
	for _, s := range r.sweepers {
		go func(s sweeper) { _ = s.Run(ctx, interval) }(s)
	}
}
