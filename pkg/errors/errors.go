package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrInternalServer      = errors.New("internal server error")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room at capacity")
	ErrNotJoined           = errors.New("not joined to room")
	ErrAlreadyJoined       = errors.New("already joined to room")
	ErrPresenceUnavailable = errors.New("presence store unavailable")
	ErrPresenceGone        = errors.New("presence record expired")
	ErrAlreadyVoting       = errors.New("vote already in progress")
	ErrAlreadyVoted        = errors.New("voter already counted")
	ErrNoActiveVote        = errors.New("no active vote")
	ErrCooldownActive      = errors.New("kick cooldown active")
	ErrTargetNotInRoom     = errors.New("target not in room")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInvalidEvent        = errors.New("invalid event")
)

// Wire codes sent in error events so clients can distinguish rejections.
const (
	CodeNotJoined           = "not_joined"
	CodeAlreadyJoined       = "already_joined"
	CodeRoomFull            = "room_full"
	CodePresenceUnavailable = "presence_unavailable"
	CodePresenceGone        = "presence_gone"
	CodeAlreadyVoting       = "already_voting"
	CodeAlreadyVoted        = "already_voted"
	CodeNoActiveVote        = "no_active_vote"
	CodeCooldownActive      = "cooldown_active"
	CodeTargetNotInRoom     = "target_not_in_room"
	CodeRateLimited         = "rate_limited"
	CodeInvalidEvent        = "invalid_event"
	CodeInternal            = "internal"
)

func WireCode(err error) string {
	switch {
	case errors.Is(err, ErrNotJoined):
		return CodeNotJoined
	case errors.Is(err, ErrAlreadyJoined):
		return CodeAlreadyJoined
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrPresenceUnavailable):
		return CodePresenceUnavailable
	case errors.Is(err, ErrPresenceGone):
		return CodePresenceGone
	case errors.Is(err, ErrAlreadyVoting):
		return CodeAlreadyVoting
	case errors.Is(err, ErrAlreadyVoted):
		return CodeAlreadyVoted
	case errors.Is(err, ErrNoActiveVote):
		return CodeNoActiveVote
	case errors.Is(err, ErrCooldownActive):
		return CodeCooldownActive
	case errors.Is(err, ErrTargetNotInRoom):
		return CodeTargetNotInRoom
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInvalidEvent):
		return CodeInvalidEvent
	default:
		return CodeInternal
	}
}

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrPresenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
