package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectRoomIDCanonicalOrder(t *testing.T) {
	require.Equal(t, "dm:alice:bob", DirectRoomID("alice", "bob"))
	require.Equal(t, "dm:alice:bob", DirectRoomID("bob", "alice"))
	require.Equal(t, DirectRoomID("u42", "u7"), DirectRoomID("u7", "u42"))
}

func TestIsDirectRoom(t *testing.T) {
	require.True(t, IsDirectRoom(DirectRoomID("alice", "bob")))
	require.False(t, IsDirectRoom("general"))
	require.False(t, IsDirectRoom("dmz"))
}

func TestValidStatus(t *testing.T) {
	for _, status := range []string{StatusOnline, StatusAway, StatusBusy, StatusOffline, StatusInvisible} {
		require.True(t, ValidStatus(status), status)
	}
	require.False(t, ValidStatus("lurking"))
	require.False(t, ValidStatus(""))
}
