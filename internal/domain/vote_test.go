package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiredVotes(t *testing.T) {
	cases := []struct {
		members  int
		expected int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{7, 4},
		{8, 4},
		{9, 5},
		{100, 50},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("members_%d", tc.members), func(t *testing.T) {
			require.Equal(t, tc.expected, RequiredVotes(tc.members))
		})
	}
}

func TestRequiredVotesIsMajority(t *testing.T) {
	for n := 1; n <= 100; n++ {
		votes := RequiredVotes(n)
		require.GreaterOrEqual(t, votes*2, n, "quorum for %d members must cover half the room", n)
		require.Less(t, (votes-1)*2, n, "quorum for %d members must be minimal", n)
	}
}
