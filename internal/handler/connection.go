package handler

import (
	"context"
	"sync"
	"time"

	"chat_session/internal/domain"
	"chat_session/internal/middleware"
	"chat_session/internal/service"
	"chat_session/pkg/errors"
	"chat_session/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Per-connection, per-room protocol states.
type roomState int

const (
	stateNotJoined roomState = iota
	stateJoining
	stateJoined
	stateLeaving
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Connection drives one client's multiplexed websocket. Handlers execute
// one at a time per connection (the read loop is the only dispatcher) but
// concurrently across connections.
type Connection struct {
	id       string
	claims   *middleware.Claims
	ws       *websocket.Conn
	send     chan []byte
	services *service.Services
	log      logger.Logger

	mu     sync.Mutex
	states map[string]roomState

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(ws *websocket.Conn, claims *middleware.Claims, services *service.Services, log logger.Logger) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		claims:   claims,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		services: services,
		log:      log.With("conn_id", claims.UserID),
		states:   make(map[string]roomState),
		closed:   make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.claims.UserID }

// Send queues a server event without ever blocking the caller. A client
// that cannot drain its buffer loses events and recovers by re-joining.
func (c *Connection) Send(ev domain.ServerEvent) {
	data, err := domain.EncodeServerEvent(ev)
	if err != nil {
		c.log.Error("Failed to encode server event", "error", err, "event", ev.ServerEventType())
		return
	}

	select {
	case c.send <- data:
	case <-c.closed:
	default:
		c.log.Warn("Send buffer full, dropping event", "event", ev.ServerEventType())
	}
}

// Evict implements the system-initiated Joined -> NotJoined transition. The
// distinct event lets the client tell it apart from its own leave.
func (c *Connection) Evict(roomID, reason string) {
	c.setState(roomID, stateNotJoined)
	c.Send(domain.RoomForcedLeave{RoomID: roomID, Reason: reason})
}

func (c *Connection) state(roomID string) roomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[roomID]
}

func (c *Connection) setState(roomID string, s roomState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == stateNotJoined {
		delete(c.states, roomID)
		return
	}
	c.states[roomID] = s
}

func (c *Connection) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rooms []string
	for roomID, s := range c.states {
		if s == stateJoined || s == stateJoining {
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup(ctx)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Connection read failed", "error", err)
			}
			return
		}

		ev, err := domain.DecodeClientEvent(data)
		if err != nil {
			// Protocol violations never crash the connection.
			c.log.Warn("Rejected malformed event", "error", err)
			c.sendError("", errors.ErrInvalidEvent)
			continue
		}

		c.dispatch(ctx, ev)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// dispatch handles one decoded event. The switch is exhaustive over the
// client event union.
func (c *Connection) dispatch(ctx context.Context, ev domain.ClientEvent) {
	switch ev := ev.(type) {
	case domain.RoomJoin:
		c.handleJoin(ctx, ev)
	case domain.RoomLeave:
		c.handleLeave(ctx, ev)
	case domain.RoomHeartbeat:
		c.handleHeartbeat(ctx, ev)
	case domain.RoomMembersGet:
		c.handleMembersGet(ctx, ev)
	case domain.ChatSend:
		c.handleMessage(ctx, ev)
	case domain.VoteKickStart:
		c.handleVoteStart(ctx, ev)
	case domain.VoteKickCast:
		c.handleVoteCast(ctx, ev)
	case domain.PresenceUpdate:
		c.handlePresenceUpdate(ctx, ev)
	default:
		c.sendError("", errors.ErrInvalidEvent)
	}
}

func (c *Connection) handleJoin(ctx context.Context, ev domain.RoomJoin) {
	if c.state(ev.RoomID) != stateNotJoined {
		c.sendError(ev.RoomID, errors.ErrAlreadyJoined)
		return
	}

	// The token, not the payload, decides who is joining.
	ev.UserID = c.claims.UserID
	ev.Username = c.claims.Username
	if ev.Role == "" {
		ev.Role = c.claims.Role
	}

	c.setState(ev.RoomID, stateJoining)
	if err := c.services.Rooms.Join(ctx, c, ev); err != nil {
		c.setState(ev.RoomID, stateNotJoined)
		c.sendError(ev.RoomID, err)
		return
	}
	c.setState(ev.RoomID, stateJoined)
}

func (c *Connection) handleLeave(ctx context.Context, ev domain.RoomLeave) {
	s := c.state(ev.RoomID)
	if s != stateJoined && s != stateJoining {
		c.sendError(ev.RoomID, errors.ErrNotJoined)
		return
	}

	ev.UserID = c.claims.UserID
	ev.Username = c.claims.Username

	c.setState(ev.RoomID, stateLeaving)
	if err := c.services.Rooms.Leave(ctx, c, ev); err != nil {
		c.sendError(ev.RoomID, err)
	}
	c.setState(ev.RoomID, stateNotJoined)
	c.services.VoteKick.CancelIfTarget(ctx, ev.RoomID, ev.UserID)
}

func (c *Connection) handleHeartbeat(ctx context.Context, ev domain.RoomHeartbeat) {
	if c.state(ev.RoomID) != stateJoined {
		c.sendError(ev.RoomID, errors.ErrNotJoined)
		return
	}

	err := c.services.Rooms.Heartbeat(ctx, ev.RoomID, c.claims.UserID)
	if err == errors.ErrPresenceGone {
		// The record expired between heartbeats; evict this connection and
		// reconcile the room view for everyone else.
		_ = c.services.Rooms.ForceLeave(ctx, ev.RoomID, c.claims.UserID, domain.ForcedLeaveExpired)
		return
	}
	if err != nil {
		c.sendError(ev.RoomID, err)
	}
}

func (c *Connection) handleMembersGet(ctx context.Context, ev domain.RoomMembersGet) {
	members, err := c.services.Rooms.Members(ctx, ev.RoomID)
	if err != nil {
		c.sendError(ev.RoomID, err)
		return
	}
	c.Send(domain.RoomMembersUpdated{RoomID: ev.RoomID, Members: members})
}

func (c *Connection) handleMessage(ctx context.Context, ev domain.ChatSend) {
	if c.state(ev.RoomID) != stateJoined {
		c.sendError(ev.RoomID, errors.ErrNotJoined)
		return
	}
	if ev.ClientMessageID == "" || ev.Message == "" {
		c.sendError(ev.RoomID, errors.ErrInvalidEvent)
		return
	}

	ev.UserID = c.claims.UserID
	ev.Username = c.claims.Username

	if err := c.services.Rooms.Message(ctx, ev); err != nil {
		c.sendError(ev.RoomID, err)
	}
}

func (c *Connection) handleVoteStart(ctx context.Context, ev domain.VoteKickStart) {
	if c.state(ev.RoomID) != stateJoined {
		c.sendError(ev.RoomID, errors.ErrNotJoined)
		return
	}

	ev.StarterUsername = c.claims.Username
	if err := c.services.VoteKick.Start(ctx, ev); err != nil {
		c.sendError(ev.RoomID, err)
	}
}

func (c *Connection) handleVoteCast(ctx context.Context, ev domain.VoteKickCast) {
	if c.state(ev.RoomID) != stateJoined {
		c.sendError(ev.RoomID, errors.ErrNotJoined)
		return
	}

	ev.VoterUsername = c.claims.Username
	if err := c.services.VoteKick.Cast(ctx, ev); err != nil {
		c.sendError(ev.RoomID, err)
	}
}

func (c *Connection) handlePresenceUpdate(ctx context.Context, ev domain.PresenceUpdate) {
	ev.Username = c.claims.Username
	if err := c.services.Rooms.SetStatus(ctx, ev.Username, ev.Status); err != nil {
		c.sendError("", err)
		return
	}
	c.Send(domain.PresenceUpdated{Username: ev.Username, Status: ev.Status})
}

func (c *Connection) sendError(roomID string, err error) {
	c.Send(domain.ErrorEvent{
		Code:    errors.WireCode(err),
		Message: err.Error(),
		RoomID:  roomID,
	})
}

// cleanup leaves every room this connection was in. A disconnect is a
// voluntary leave; TTL expiry covers the case where cleanup never runs.
func (c *Connection) cleanup(ctx context.Context) {
	c.closeOnce.Do(func() { close(c.closed) })

	for _, roomID := range c.joinedRooms() {
		ev := domain.RoomLeave{
			RoomID:   roomID,
			UserID:   c.claims.UserID,
			Username: c.claims.Username,
		}
		if err := c.services.Rooms.Leave(ctx, c, ev); err != nil {
			c.log.Warn("Leave on disconnect failed", "error", err, "room_id", roomID)
		}
		c.setState(roomID, stateNotJoined)
		c.services.VoteKick.CancelIfTarget(ctx, roomID, c.claims.UserID)
	}
}
