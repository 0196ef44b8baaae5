package domain

import (
	"strings"
	"time"
)

// Room is materialized implicitly by the first join and garbage-collected
// once its presence count drops to zero and is not renewed within the TTL.
type Room struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	MemberTTL       time.Duration `json:"member_ttl"`
	MaxParticipants int           `json:"max_participants"`
}

// PresenceRecord is the single live membership record for a (room, user)
// pair. It expires in the store unless refreshed by a heartbeat.
type PresenceRecord struct {
	RoomID          string    `json:"room_id"`
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	Role            string    `json:"role"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Invisible       bool      `json:"invisible"`
}

// Member is the wire shape of a room member in member-list events.
type Member struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (p PresenceRecord) Member() Member {
	return Member{
		UserID:   p.UserID,
		Username: p.Username,
		Role:     p.Role,
	}
}

const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

const (
	StatusOnline    = "online"
	StatusAway      = "away"
	StatusBusy      = "busy"
	StatusOffline   = "offline"
	StatusInvisible = "invisible"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline, StatusInvisible:
		return true
	}
	return false
}

const directRoomPrefix = "dm"

// DirectRoomID composes a deterministic room id for a two-user direct
// conversation. Both orderings of the pair map to the same id.
func DirectRoomID(userA, userB string) string {
	lo, hi := userA, userB
	if strings.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	return directRoomPrefix + ":" + lo + ":" + hi
}

func IsDirectRoom(roomID string) bool {
	return strings.HasPrefix(roomID, directRoomPrefix+":")
}
