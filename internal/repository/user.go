package repository

import (
	"context"
	stderrors "errors"

	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the user/session directory consulted to resolve a user's
// role when authorizing kick and vote actions.
type UserRepository interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) GetRole(ctx context.Context, userID string) (string, error) {
	query := `SELECT role FROM users WHERE id = $1`

	var role string
	err := r.db.QueryRow(ctx, query, userID).Scan(&role)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", errors.ErrNotFound
		}
		r.log.Error("Failed to resolve user role", "error", err, "user_id", userID)
		return "", err
	}

	return role, nil
}
