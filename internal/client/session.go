package client

import (
	"sync"
	"time"

	"chat_session/internal/domain"

	"github.com/google/uuid"
)

// RoomTab is the client-side view of one open room.
type RoomTab struct {
	RoomID      string
	DisplayName string
	UnreadCount int
	Joined      bool
}

// SessionManager owns the set of open room tabs, their ordered message
// lists and unread counters. It is created by the composition root and
// injected wherever the UI layer needs it; there is no ambient singleton.
//
// AddMessage is the single idempotency gate: a message id is accepted at
// most once per room, which makes the optimistic local echo and the
// server-confirmed echo safe to apply in either order.
type SessionManager struct {
	mu         sync.Mutex
	selfUserID string
	tabs       []*RoomTab
	messages   map[string][]domain.Message
	seen       map[string]map[string]struct{}
	activeRoom string
}

func NewSessionManager(selfUserID string) *SessionManager {
	return &SessionManager{
		selfUserID: selfUserID,
		messages:   make(map[string][]domain.Message),
		seen:       make(map[string]map[string]struct{}),
	}
}

// OpenRoom is idempotent: opening an already open room only switches focus.
func (m *SessionManager) OpenRoom(roomID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tab := m.findTab(roomID); tab != nil {
		m.focus(tab)
		return
	}

	tab := &RoomTab{RoomID: roomID, DisplayName: name}
	m.tabs = append(m.tabs, tab)
	m.messages[roomID] = nil
	m.seen[roomID] = make(map[string]struct{})
	m.focus(tab)
}

// CloseRoom drops the tab and its messages. If the closed tab was active,
// focus moves to the tab now sitting at the same index, clamped to the end
// of the list, or to no active room at all.
func (m *SessionManager) CloseRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, tab := range m.tabs {
		if tab.RoomID == roomID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)
	delete(m.messages, roomID)
	delete(m.seen, roomID)

	if m.activeRoom != roomID {
		return
	}
	if len(m.tabs) == 0 {
		m.activeRoom = ""
		return
	}
	if idx >= len(m.tabs) {
		idx = len(m.tabs) - 1
	}
	m.focus(m.tabs[idx])
}

// AddMessage appends a message to an open room's list. It reports false and
// changes nothing when the room is closed or the id was already accepted.
// A non-own message landing in an open but inactive room bumps its unread
// counter by one.
func (m *SessionManager) AddMessage(roomID string, message domain.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, open := m.seen[roomID]
	if !open {
		return false
	}
	if _, dup := ids[message.ClientMessageID]; dup {
		return false
	}

	ids[message.ClientMessageID] = struct{}{}
	m.messages[roomID] = append(m.messages[roomID], message)

	if roomID != m.activeRoom && message.SenderUserID != m.selfUserID {
		if tab := m.findTab(roomID); tab != nil {
			tab.UnreadCount++
		}
	}
	return true
}

// SetActiveRoom switches focus and zeroes the room's unread counter. It is
// a no-op for rooms that are not open.
func (m *SessionManager) SetActiveRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tab := m.findTab(roomID); tab != nil {
		m.focus(tab)
	}
}

// Compose runs step one of the two-step send protocol: synthesize the
// client message id and append the optimistic local echo. The returned
// event carries the same id, so the server's broadcast echo is absorbed by
// the idempotency gate whichever copy lands first.
func (m *SessionManager) Compose(roomID, username, body string) (domain.ChatSend, bool) {
	message := domain.Message{
		ClientMessageID: uuid.NewString(),
		RoomID:          roomID,
		SenderUserID:    m.selfUserID,
		SenderUsername:  username,
		Body:            body,
		SentAt:          time.Now(),
		Kind:            domain.MessageKindChat,
	}

	if !m.AddMessage(roomID, message) {
		return domain.ChatSend{}, false
	}

	return domain.ChatSend{
		RoomID:          roomID,
		UserID:          m.selfUserID,
		Username:        username,
		Message:         body,
		ClientMessageID: message.ClientMessageID,
	}, true
}

func (m *SessionManager) SetJoined(roomID string, joined bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tab := m.findTab(roomID); tab != nil {
		tab.Joined = joined
	}
}

func (m *SessionManager) ActiveRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRoom
}

// OpenRooms returns the open room ids in tab order.
func (m *SessionManager) OpenRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]string, len(m.tabs))
	for i, tab := range m.tabs {
		rooms[i] = tab.RoomID
	}
	return rooms
}

func (m *SessionManager) Tabs() []RoomTab {
	m.mu.Lock()
	defer m.mu.Unlock()

	tabs := make([]RoomTab, len(m.tabs))
	for i, tab := range m.tabs {
		tabs[i] = *tab
	}
	return tabs
}

func (m *SessionManager) Messages(roomID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := m.messages[roomID]
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}

func (m *SessionManager) UnreadCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tab := m.findTab(roomID); tab != nil {
		return tab.UnreadCount
	}
	return 0
}

func (m *SessionManager) IsOpen(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findTab(roomID) != nil
}

func (m *SessionManager) findTab(roomID string) *RoomTab {
	for _, tab := range m.tabs {
		if tab.RoomID == roomID {
			return tab
		}
	}
	return nil
}

func (m *SessionManager) focus(tab *RoomTab) {
	m.activeRoom = tab.RoomID
	tab.UnreadCount = 0
}
