package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// The wire protocol is a closed set of typed events per direction. Every
// frame is an Envelope carrying the event type tag and its payload; decoding
// switches exhaustively over the tag, so an unknown event is a protocol
// error rather than a silently ignored string.

const (
	EventRoomJoin       = "room.join"
	EventRoomLeave      = "room.leave"
	EventRoomHeartbeat  = "room.heartbeat"
	EventRoomMembersGet = "room.members.get"
	EventChatMessage    = "chat.message"
	EventVoteKickStart  = "vote.kick.start"
	EventVoteKickCast   = "vote.kick.cast"
	EventPresenceUpdate = "presence.update"

	EventRoomJoined         = "room.joined"
	EventRoomMembersUpdated = "room.members.updated"
	EventRoomUserJoined     = "room.user.joined"
	EventRoomUserLeft       = "room.user.left"
	EventRoomForcedLeave    = "room.forced-leave"
	EventChatHistory        = "chat.history"
	EventSystemMessage      = "system.message"
	EventPresenceUpdated    = "presence.updated"
	EventError              = "error"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientEvent is implemented by every client-to-server event.
type ClientEvent interface {
	ClientEventType() string
}

// ServerEvent is implemented by every server-to-client event.
type ServerEvent interface {
	ServerEventType() string
}

// Client-to-server events.

type RoomJoin struct {
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Invisible bool   `json:"invisible"`
}

type RoomLeave struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type RoomHeartbeat struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomMembersGet struct {
	RoomID string `json:"room_id"`
}

// ChatSend carries an outgoing chat message. The server assigns the receipt
// id equal to ClientMessageID; no server-generated id participates in dedup.
type ChatSend struct {
	RoomID          string `json:"room_id"`
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Message         string `json:"message"`
	ClientMessageID string `json:"client_message_id"`
}

type VoteKickStart struct {
	RoomID          string `json:"room_id"`
	StarterUsername string `json:"starter_username"`
	TargetUsername  string `json:"target_username"`
}

type VoteKickCast struct {
	RoomID         string `json:"room_id"`
	VoterUsername  string `json:"voter_username"`
	TargetUsername string `json:"target_username"`
}

type PresenceUpdate struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

func (RoomJoin) ClientEventType() string       { return EventRoomJoin }
func (RoomLeave) ClientEventType() string      { return EventRoomLeave }
func (RoomHeartbeat) ClientEventType() string  { return EventRoomHeartbeat }
func (RoomMembersGet) ClientEventType() string { return EventRoomMembersGet }
func (ChatSend) ClientEventType() string       { return EventChatMessage }
func (VoteKickStart) ClientEventType() string  { return EventVoteKickStart }
func (VoteKickCast) ClientEventType() string   { return EventVoteKickCast }
func (PresenceUpdate) ClientEventType() string { return EventPresenceUpdate }

// Server-to-client events.

type RoomJoined struct {
	RoomID      string    `json:"room_id"`
	Room        Room      `json:"room"`
	Members     []Member  `json:"members"`
	HistoryPage []Message `json:"history_page"`
}

type RoomMembersUpdated struct {
	RoomID  string   `json:"room_id"`
	Members []Member `json:"members"`
}

type RoomUserJoined struct {
	RoomID  string   `json:"room_id"`
	User    Member   `json:"user"`
	Members []Member `json:"members"`
}

type RoomUserLeft struct {
	RoomID   string   `json:"room_id"`
	Username string   `json:"username"`
	Members  []Member `json:"members"`
}

// RoomForcedLeave is unicast so the client can tell an involuntary removal
// apart from its own leave. The client must re-join explicitly.
type RoomForcedLeave struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

const (
	ForcedLeaveExpired = "presence_expired"
	ForcedLeaveKicked  = "kicked"
)

// ChatBroadcast is the server-confirmed copy of a chat message, fanned out
// to every room subscriber including the sender's own connections.
type ChatBroadcast struct {
	RoomID          string    `json:"room_id"`
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	Message         string    `json:"message"`
	ClientMessageID string    `json:"client_message_id"`
	Timestamp       time.Time `json:"timestamp"`
	Kind            string    `json:"kind"`
}

func (b ChatBroadcast) ToMessage() Message {
	return Message{
		ClientMessageID: b.ClientMessageID,
		RoomID:          b.RoomID,
		SenderUserID:    b.UserID,
		SenderUsername:  b.Username,
		Body:            b.Message,
		SentAt:          b.Timestamp,
		Kind:            b.Kind,
	}
}

type ChatHistory struct {
	RoomID   string    `json:"room_id"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type SystemMessage struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type PresenceUpdated struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RoomID  string `json:"room_id,omitempty"`
}

func (RoomJoined) ServerEventType() string         { return EventRoomJoined }
func (RoomMembersUpdated) ServerEventType() string { return EventRoomMembersUpdated }
func (RoomUserJoined) ServerEventType() string     { return EventRoomUserJoined }
func (RoomUserLeft) ServerEventType() string       { return EventRoomUserLeft }
func (RoomForcedLeave) ServerEventType() string    { return EventRoomForcedLeave }
func (ChatBroadcast) ServerEventType() string      { return EventChatMessage }
func (ChatHistory) ServerEventType() string        { return EventChatHistory }
func (SystemMessage) ServerEventType() string      { return EventSystemMessage }
func (PresenceUpdated) ServerEventType() string    { return EventPresenceUpdated }
func (ErrorEvent) ServerEventType() string         { return EventError }

func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	return encodeEnvelope(ev.ClientEventType(), ev)
}

func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	return encodeEnvelope(ev.ServerEventType(), ev)
}

func encodeEnvelope(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case EventRoomJoin:
		return decodePayload[RoomJoin](env)
	case EventRoomLeave:
		return decodePayload[RoomLeave](env)
	case EventRoomHeartbeat:
		return decodePayload[RoomHeartbeat](env)
	case EventRoomMembersGet:
		return decodePayload[RoomMembersGet](env)
	case EventChatMessage:
		return decodePayload[ChatSend](env)
	case EventVoteKickStart:
		return decodePayload[VoteKickStart](env)
	case EventVoteKickCast:
		return decodePayload[VoteKickCast](env)
	case EventPresenceUpdate:
		return decodePayload[PresenceUpdate](env)
	default:
		return nil, fmt.Errorf("unknown client event %q", env.Type)
	}
}

func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case EventRoomJoined:
		return decodePayload[RoomJoined](env)
	case EventRoomMembersUpdated:
		return decodePayload[RoomMembersUpdated](env)
	case EventRoomUserJoined:
		return decodePayload[RoomUserJoined](env)
	case EventRoomUserLeft:
		return decodePayload[RoomUserLeft](env)
	case EventRoomForcedLeave:
		return decodePayload[RoomForcedLeave](env)
	case EventChatMessage:
		return decodePayload[ChatBroadcast](env)
	case EventChatHistory:
		return decodePayload[ChatHistory](env)
	case EventSystemMessage:
		return decodePayload[SystemMessage](env)
	case EventPresenceUpdated:
		return decodePayload[PresenceUpdated](env)
	case EventError:
		return decodePayload[ErrorEvent](env)
	default:
		return nil, fmt.Errorf("unknown server event %q", env.Type)
	}
}

func decodePayload[T any](env Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return payload, nil
}
