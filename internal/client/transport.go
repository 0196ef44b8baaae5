package client

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrDisconnected = errors.New("transport: not connected")
	ErrRoomNotOpen  = errors.New("transport: room not open")
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Conn is the minimal surface the transport needs from a websocket.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a connection to the gateway. Tests substitute their own.
type Dialer interface {
	DialContext(ctx context.Context, rawURL string) (Conn, error)
}

type websocketDialer struct{}

func (websocketDialer) DialContext(ctx context.Context, rawURL string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}

// Transport owns the single multiplexed gateway connection for a client. It
// reconnects with capped exponential backoff and, once reconnected, re-joins
// every open room serially before resuming normal traffic. Heartbeats run on
// their own fixed-period ticker, never queued behind message writes.
type Transport struct {
	gatewayURL        string
	token             string
	username          string
	session           *SessionManager
	dialer            Dialer
	log               logger.Logger
	heartbeatInterval time.Duration

	// OnEvent sees every decoded server event after the session has been
	// updated. OnStateChange fires on connect and disconnect.
	OnEvent       func(domain.ServerEvent)
	OnStateChange func(connected bool)

	mu   sync.Mutex
	conn Conn
}

func NewTransport(
	gatewayURL, token, username string,
	session *SessionManager,
	heartbeatInterval time.Duration,
	log logger.Logger,
) *Transport {
	return &Transport{
		gatewayURL:        gatewayURL,
		token:             token,
		username:          username,
		session:           session,
		dialer:            websocketDialer{},
		log:               log,
		heartbeatInterval: heartbeatInterval,
	}
}

// Run dials and serves the connection until the context is cancelled. Dial
// failures and broken connections surface as a degraded state, never as a
// return; only cancellation ends the loop.
func (t *Transport) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		conn, err := t.dialer.DialContext(ctx, t.dialURL())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.Warn("Dial failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		t.setConn(conn)
		t.notifyState(true)
		t.rejoinOpenRooms()

		hbCtx, stopHeartbeats := context.WithCancel(ctx)
		go t.heartbeatLoop(hbCtx)

		t.readLoop(conn)

		stopHeartbeats()
		t.setConn(nil)
		_ = conn.Close()
		t.notifyState(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.Warn("Connection lost, reconnecting")
	}
}

func (t *Transport) dialURL() string {
	return t.gatewayURL + "?token=" + url.QueryEscape(t.token)
}

func (t *Transport) setConn(conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *Transport) notifyState(connected bool) {
	if t.OnStateChange != nil {
		t.OnStateChange(connected)
	}
}

// rejoinOpenRooms replays room.join for every open tab in order. Duplicate
// history delivered after the re-join is absorbed by the session's
// idempotency gate.
func (t *Transport) rejoinOpenRooms() {
	for _, roomID := range t.session.OpenRooms() {
		if err := t.writeEvent(domain.RoomJoin{RoomID: roomID, Username: t.username}); err != nil {
			t.log.Warn("Re-join failed", "error", err, "room_id", roomID)
			return
		}
	}
}

func (t *Transport) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tab := range t.session.Tabs() {
				if !tab.Joined {
					continue
				}
				hb := domain.RoomHeartbeat{RoomID: tab.RoomID, Timestamp: time.Now()}
				if err := t.writeEvent(hb); err != nil {
					return
				}
			}
		}
	}
}

func (t *Transport) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		ev, err := domain.DecodeServerEvent(data)
		if err != nil {
			t.log.Warn("Dropped undecodable server event", "error", err)
			continue
		}

		t.handleEvent(ev)
	}
}

// handleEvent applies a server event to the session, then hands it to the
// observer callback.
func (t *Transport) handleEvent(ev domain.ServerEvent) {
	switch ev := ev.(type) {
	case domain.RoomJoined:
		t.session.SetJoined(ev.RoomID, true)
		for _, message := range ev.HistoryPage {
			t.session.AddMessage(ev.RoomID, message)
		}
	case domain.ChatHistory:
		for _, message := range ev.Messages {
			t.session.AddMessage(ev.RoomID, message)
		}
	case domain.ChatBroadcast:
		t.session.AddMessage(ev.RoomID, ev.ToMessage())
	case domain.SystemMessage:
		// System messages have no client id; synthesize one so the dedup
		// gate never collapses two of them.
		t.session.AddMessage(ev.RoomID, domain.Message{
			ClientMessageID: uuid.NewString(),
			RoomID:          ev.RoomID,
			Body:            ev.Message,
			SentAt:          time.Now(),
			Kind:            domain.MessageKindSystem,
		})
	case domain.RoomForcedLeave:
		t.session.SetJoined(ev.RoomID, false)
	}

	if t.OnEvent != nil {
		t.OnEvent(ev)
	}
}

func (t *Transport) writeEvent(ev domain.ClientEvent) error {
	data, err := domain.EncodeClientEvent(ev)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrDisconnected
	}
	return t.conn.WriteMessage(data)
}

// JoinRoom opens (or focuses) the tab and asks the gateway to join.
func (t *Transport) JoinRoom(roomID, name string) error {
	t.session.OpenRoom(roomID, name)
	return t.writeEvent(domain.RoomJoin{RoomID: roomID, Username: t.username})
}

// LeaveRoom closes the tab and tells the gateway. The tab is gone either
// way; a failed write just means the server learns via TTL expiry instead.
func (t *Transport) LeaveRoom(roomID string) error {
	t.session.CloseRoom(roomID)
	return t.writeEvent(domain.RoomLeave{RoomID: roomID, Username: t.username})
}

// SendChat runs the two-step send: optimistic local append, then transmit.
func (t *Transport) SendChat(roomID, body string) error {
	ev, ok := t.session.Compose(roomID, t.username, body)
	if !ok {
		return ErrRoomNotOpen
	}
	return t.writeEvent(ev)
}

func (t *Transport) RequestMembers(roomID string) error {
	return t.writeEvent(domain.RoomMembersGet{RoomID: roomID})
}

func (t *Transport) StartVoteKick(roomID, targetUsername string) error {
	return t.writeEvent(domain.VoteKickStart{
		RoomID:          roomID,
		StarterUsername: t.username,
		TargetUsername:  targetUsername,
	})
}

func (t *Transport) CastVote(roomID, targetUsername string) error {
	return t.writeEvent(domain.VoteKickCast{
		RoomID:         roomID,
		VoterUsername:  t.username,
		TargetUsername: targetUsername,
	})
}

func (t *Transport) UpdatePresence(status string) error {
	return t.writeEvent(domain.PresenceUpdate{Username: t.username, Status: status})
}
