package domain

import (
	"time"
)

// AuditLog records membership-changing events so a failed transition can be
// reconstructed from roomId, userId and operation.
type AuditLog struct {
	ID          int64          `json:"id"`
	EventTime   time.Time      `json:"event_time"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	ActorRole   string         `json:"actor_role"`
	RoomID      string         `json:"room_id,omitempty"`
	EventType   string         `json:"event_type"`
	Payload     map[string]any `json:"payload"`
}

const (
	ActorRoleSystem = "system"
)

const (
	EventTypeRoomJoined      = "ROOM_JOINED"
	EventTypeRoomLeft        = "ROOM_LEFT"
	EventTypeForcedLeave     = "FORCED_LEAVE"
	EventTypeVoteKickStarted = "VOTE_KICK_STARTED"
	EventTypeVoteKickFailed  = "VOTE_KICK_FAILED"
	EventTypeUserKicked      = "USER_KICKED"
)
