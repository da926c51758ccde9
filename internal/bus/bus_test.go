package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSubject(t *testing.T) {
	s, err := UserSubject(FeedPrefix, "42")
	require.NoError(t, err)
	assert.Equal(t, "taskbot.feed.42", s)

	for _, bad := range []string{"", "a.b", "*", ">", "a b"} {
		_, err := UserSubject(FeedPrefix, bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestUserFromSubject(t *testing.T) {
	u, ok := UserFromSubject(FeedPrefix, "taskbot.feed.42")
	assert.True(t, ok)
	assert.Equal(t, "42", u)

	_, ok = UserFromSubject(FeedPrefix, "taskbot.feed.")
	assert.False(t, ok)
	_, ok = UserFromSubject(FeedPrefix, "taskbot.feed.a.b")
	assert.False(t, ok)
	_, ok = UserFromSubject(FeedPrefix, "other.42")
	assert.False(t, ok)
}

func TestDecodeReply(t *testing.T) {
	var out struct {
		ItemID string `json:"item_id"`
	}
	require.NoError(t, DecodeReply([]byte(`{"item_id":"c1"}`), &out))
	assert.Equal(t, "c1", out.ItemID)

	err := DecodeReply([]byte(`{"error":"board archived"}`), &out)
	assert.ErrorContains(t, err, "board archived")

	assert.Error(t, DecodeReply([]byte(`not json`), &out))
}
