package repository

import (
	"context"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository is the read contract of the durable message store. The
// gateway consults it only to backfill a room on join; writes are
// best-effort so history never gates real-time delivery.
type HistoryRepository interface {
	GetHistory(ctx context.Context, roomID string, before *time.Time, limit int) ([]domain.Message, bool, error)
	SaveMessage(ctx context.Context, message domain.Message) error
}

type historyRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewHistoryRepository(db *pgxpool.Pool, log logger.Logger) HistoryRepository {
	return &historyRepository{db: db, log: log}
}

func (r *historyRepository) GetHistory(ctx context.Context, roomID string, before *time.Time, limit int) ([]domain.Message, bool, error) {
	query := `
		SELECT client_message_id, room_id, sender_user_id, sender_username, body, sent_at, kind
		FROM room_messages
		WHERE room_id = $1 AND ($2::timestamptz IS NULL OR sent_at < $2)
		ORDER BY sent_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, roomID, before, limit+1)
	if err != nil {
		r.log.Error("Failed to get history", "error", err, "room_id", roomID)
		return nil, false, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var message domain.Message
		err := rows.Scan(
			&message.ClientMessageID, &message.RoomID, &message.SenderUserID,
			&message.SenderUsername, &message.Body, &message.SentAt, &message.Kind,
		)
		if err != nil {
			r.log.Error("Failed to scan history message", "error", err, "room_id", roomID)
			return nil, false, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Rows arrive newest-first; clients append oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, hasMore, nil
}

func (r *historyRepository) SaveMessage(ctx context.Context, message domain.Message) error {
	query := `
		INSERT INTO room_messages (client_message_id, room_id, sender_user_id, sender_username, body, sent_at, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_message_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		message.ClientMessageID, message.RoomID, message.SenderUserID,
		message.SenderUsername, message.Body, message.SentAt, message.Kind,
	)

	if err != nil {
		r.log.Error("Failed to save message", "error", err, "room_id", message.RoomID, "client_message_id", message.ClientMessageID)
		return err
	}

	return nil
}
