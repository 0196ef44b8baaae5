package domain

import (
	"time"
)

// VoteKickSession is the authoritative record of one kick vote. At most one
// session exists per (room, target) at any time. RequiredVotes is computed
// once at session start and never changes for the session's lifetime, even
// if the room grows or shrinks afterwards.
type VoteKickSession struct {
	RoomID        string    `json:"room_id"`
	TargetUserID  string    `json:"target_user_id"`
	TargetName    string    `json:"target_name"`
	StarterUserID string    `json:"starter_user_id"`
	StarterName   string    `json:"starter_name"`
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	RequiredVotes int       `json:"required_votes"`
}

// KickCooldown blocks a new vote against the same target in the same room
// until it expires.
type KickCooldown struct {
	RoomID       string    `json:"room_id"`
	TargetUserID string    `json:"target_user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RequiredVotes returns the quorum for a room of the given size:
// ceil(memberCount / 2). A single-member room still needs one vote.
func RequiredVotes(memberCount int) int {
	if memberCount < 1 {
		return 1
	}
	return (memberCount + 1) / 2
}

// VoteTally is the current state of an open session as broadcast to the room.
type VoteTally struct {
	Session   VoteKickSession `json:"session"`
	Votes     int             `json:"votes"`
	Remaining int             `json:"remaining"`
	TimeLeft  time.Duration   `json:"time_left"`
}
