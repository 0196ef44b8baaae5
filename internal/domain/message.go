package domain

import (
	"time"
)

// Message is an append-only chat message. ClientMessageID is generated by
// the sender and is the sole deduplication key: the same id may arrive once
// as a local optimistic echo and once as a server-confirmed event, and only
// one copy is ever retained.
type Message struct {
	ClientMessageID string    `json:"client_message_id"`
	RoomID          string    `json:"room_id"`
	SenderUserID    string    `json:"sender_user_id"`
	SenderUsername  string    `json:"sender_username"`
	Body            string    `json:"body"`
	SentAt          time.Time `json:"sent_at"`
	Kind            string    `json:"kind"`
}

const (
	MessageKindChat     = "chat"
	MessageKindSystem   = "system"
	MessageKindNotice   = "notice"
	MessageKindCommand  = "command"
	MessageKindPresence = "presence"
)

const (
	SystemMessageVoteKick = "voteKick"
	SystemMessageKick     = "kick"
	SystemMessageGeneric  = "generic"
)
