package client

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"chat_session/internal/domain"
	"chat_session/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	reads chan []byte

	mu     sync.Mutex
	writes [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.reads:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.EOF
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// serve pushes an encoded server event into the connection's read stream.
func (c *fakeConn) serve(t *testing.T, ev domain.ServerEvent) {
	t.Helper()
	data, err := domain.EncodeServerEvent(ev)
	require.NoError(t, err)
	c.reads <- data
}

// sentEvents decodes everything written to the connection so far.
func (c *fakeConn) sentEvents(t *testing.T) []domain.ClientEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]domain.ClientEvent, 0, len(c.writes))
	for _, data := range c.writes {
		ev, err := domain.DecodeClientEvent(data)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) DialContext(ctx context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	var conn *fakeConn
	if d.dials < len(d.conns) {
		conn = d.conns[d.dials]
		d.dials++
	}
	d.mu.Unlock()

	if conn == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return conn, nil
}

func newTestTransport(dialer *fakeDialer, session *SessionManager) *Transport {
	transport := NewTransport("ws://test/ws", "token", "alice", session, time.Hour, logger.New("error"))
	transport.dialer = dialer
	return transport
}

func joinEvents(events []domain.ClientEvent) []domain.RoomJoin {
	var joins []domain.RoomJoin
	for _, ev := range events {
		if join, ok := ev.(domain.RoomJoin); ok {
			joins = append(joins, join)
		}
	}
	return joins
}

func TestTransportRejoinsOpenRoomsOnReconnect(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")
	session.OpenRoom("random", "Random")

	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}
	transport := newTestTransport(dialer, session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = transport.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(joinEvents(conn1.sentEvents(t))) == 2
	}, time.Second, 5*time.Millisecond)

	joins := joinEvents(conn1.sentEvents(t))
	require.Equal(t, "general", joins[0].RoomID)
	require.Equal(t, "random", joins[1].RoomID)

	// Drop the connection; the transport must dial again and replay both
	// joins in tab order.
	_ = conn1.Close()

	require.Eventually(t, func() bool {
		return len(joinEvents(conn2.sentEvents(t))) == 2
	}, time.Second, 5*time.Millisecond)

	joins = joinEvents(conn2.sentEvents(t))
	require.Equal(t, "general", joins[0].RoomID)
	require.Equal(t, "random", joins[1].RoomID)
}

func TestTransportAbsorbsDuplicateBroadcasts(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	transport := newTestTransport(dialer, session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = transport.Run(ctx) }()

	broadcast := domain.ChatBroadcast{
		RoomID:          "general",
		UserID:          "u2",
		Username:        "bob",
		Message:         "hi",
		ClientMessageID: "m1",
		Timestamp:       time.Now(),
		Kind:            domain.MessageKindChat,
	}
	conn.serve(t, broadcast)
	conn.serve(t, broadcast)

	require.Eventually(t, func() bool {
		return len(session.Messages("general")) == 1
	}, time.Second, 5*time.Millisecond)

	// Give the duplicate time to arrive, then confirm it was dropped.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, session.Messages("general"), 1)
}

func TestTransportMarksJoinedAndForcedLeave(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	transport := newTestTransport(dialer, session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = transport.Run(ctx) }()

	conn.serve(t, domain.RoomJoined{RoomID: "general", HistoryPage: []domain.Message{
		{ClientMessageID: "h1", RoomID: "general", Body: "old", SentAt: time.Now()},
	}})

	require.Eventually(t, func() bool {
		tabs := session.Tabs()
		return len(tabs) == 1 && tabs[0].Joined
	}, time.Second, 5*time.Millisecond)
	require.Len(t, session.Messages("general"), 1)

	conn.serve(t, domain.RoomForcedLeave{RoomID: "general", Reason: domain.ForcedLeaveKicked})

	require.Eventually(t, func() bool {
		tabs := session.Tabs()
		return len(tabs) == 1 && !tabs[0].Joined
	}, time.Second, 5*time.Millisecond)
	require.True(t, session.IsOpen("general"))
}

func TestTransportWriteWithoutConnection(t *testing.T) {
	session := NewSessionManager("me")
	session.OpenRoom("general", "General")

	transport := newTestTransport(&fakeDialer{}, session)

	err := transport.RequestMembers("general")
	require.ErrorIs(t, err, ErrDisconnected)
}
