package client

import (
	"testing"
	"time"

	"chat_session/internal/domain"

	"github.com/stretchr/testify/require"
)

func chatMessage(id, roomID, sender, body string) domain.Message {
	return domain.Message{
		ClientMessageID: id,
		RoomID:          roomID,
		SenderUserID:    sender,
		Body:            body,
		SentAt:          time.Now(),
		Kind:            domain.MessageKindChat,
	}
}

func TestOpenRoomIsIdempotent(t *testing.T) {
	session := NewSessionManager("me")

	session.OpenRoom("general", "General")
	session.OpenRoom("random", "Random")
	session.OpenRoom("general", "General")

	require.Equal(t, []string{"general", "random"}, session.OpenRooms())
	require.Equal(t, "general", session.ActiveRoom())
}

func TestAddMessageDeduplicatesByClientID(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	optimistic := chatMessage("m1", "general", "me", "hello")
	echo := chatMessage("m1", "general", "me", "hello")

	require.True(t, session.AddMessage("general", optimistic))
	require.False(t, session.AddMessage("general", echo))
	require.Len(t, session.Messages("general"), 1)
}

func TestAddMessageIgnoresClosedRooms(t *testing.T) {
	session := NewSessionManager("me")

	require.False(t, session.AddMessage("general", chatMessage("m1", "general", "u2", "hi")))
	require.Empty(t, session.Messages("general"))
}

func TestUnreadCountsOnlyInactiveForeignMessages(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")
	session.OpenRoom("random", "Random")
	session.SetActiveRoom("general")

	// Active room: no unread regardless of sender.
	session.AddMessage("general", chatMessage("m1", "general", "u2", "hi"))
	require.Equal(t, 0, session.UnreadCount("general"))

	// Inactive room, foreign sender: unread.
	session.AddMessage("random", chatMessage("m2", "random", "u2", "hi"))
	require.Equal(t, 1, session.UnreadCount("random"))

	// Inactive room, own message: no unread.
	session.AddMessage("random", chatMessage("m3", "random", "me", "hi"))
	require.Equal(t, 1, session.UnreadCount("random"))
}

func TestSetActiveRoomResetsUnread(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")
	session.OpenRoom("random", "Random")
	session.SetActiveRoom("general")

	session.AddMessage("random", chatMessage("m1", "random", "u2", "hi"))
	session.AddMessage("random", chatMessage("m2", "random", "u2", "again"))
	require.Equal(t, 2, session.UnreadCount("random"))

	session.SetActiveRoom("random")
	require.Equal(t, 0, session.UnreadCount("random"))
	require.Equal(t, "random", session.ActiveRoom())
}

func TestSetActiveRoomIgnoresUnknownRoom(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	session.SetActiveRoom("nowhere")
	require.Equal(t, "general", session.ActiveRoom())
}

func TestCloseRoomMovesFocusToSameIndex(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("a", "A")
	session.OpenRoom("b", "B")
	session.OpenRoom("c", "C")
	session.SetActiveRoom("b")

	session.CloseRoom("b")
	require.Equal(t, []string{"a", "c"}, session.OpenRooms())
	require.Equal(t, "c", session.ActiveRoom())
}

func TestCloseRoomClampsFocusAtEnd(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("a", "A")
	session.OpenRoom("b", "B")
	session.SetActiveRoom("b")

	session.CloseRoom("b")
	require.Equal(t, "a", session.ActiveRoom())

	session.CloseRoom("a")
	require.Equal(t, "", session.ActiveRoom())
	require.Empty(t, session.OpenRooms())
}

func TestCloseRoomKeepsFocusWhenInactiveTabCloses(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("a", "A")
	session.OpenRoom("b", "B")
	session.SetActiveRoom("a")

	session.CloseRoom("b")
	require.Equal(t, "a", session.ActiveRoom())
}

func TestCloseRoomDropsState(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")
	session.AddMessage("general", chatMessage("m1", "general", "u2", "hi"))

	session.CloseRoom("general")
	require.False(t, session.IsOpen("general"))
	require.Empty(t, session.Messages("general"))

	// Reopening starts clean; the old dedup set is gone too.
	session.OpenRoom("general", "General")
	require.True(t, session.AddMessage("general", chatMessage("m1", "general", "u2", "hi")))
}

func TestComposeAbsorbsServerEcho(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	ev, ok := session.Compose("general", "alice", "hello")
	require.True(t, ok)
	require.NotEmpty(t, ev.ClientMessageID)
	require.Len(t, session.Messages("general"), 1)

	// The server-confirmed copy carries the same id and must not duplicate.
	echo := domain.ChatBroadcast{
		RoomID:          "general",
		UserID:          "me",
		Username:        "alice",
		Message:         "hello",
		ClientMessageID: ev.ClientMessageID,
		Timestamp:       time.Now(),
		Kind:            domain.MessageKindChat,
	}
	require.False(t, session.AddMessage("general", echo.ToMessage()))
	require.Len(t, session.Messages("general"), 1)
}

func TestComposeFailsForClosedRoom(t *testing.T) {
	session := NewSessionManager("me")

	_, ok := session.Compose("general", "alice", "hello")
	require.False(t, ok)
}

func TestMessagesPreserveArrivalOrder(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	session.AddMessage("general", chatMessage("m1", "general", "u2", "first"))
	session.AddMessage("general", chatMessage("m2", "general", "u3", "second"))
	session.AddMessage("general", chatMessage("m3", "general", "u2", "third"))

	messages := session.Messages("general")
	require.Len(t, messages, 3)
	require.Equal(t, "first", messages[0].Body)
	require.Equal(t, "second", messages[1].Body)
	require.Equal(t, "third", messages[2].Body)
}
