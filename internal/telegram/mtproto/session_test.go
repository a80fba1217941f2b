package mtproto

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel_relay/internal/relay/models"
)

func TestConvertMessage(t *testing.T) {
	msg := &tg.Message{ID: 42, Date: 1718020800, Message: "hello"}
	msg.SetMedia(&tg.MessageMediaPhoto{})
	msg.SetGroupedID(777)

	got := convertMessage("@shop", msg)

	assert.Equal(t, "@shop", got.Channel)
	assert.Equal(t, 42, got.ID)
	assert.Equal(t, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), got.Date)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "photo", got.Media)
	assert.Equal(t, int64(777), got.GroupID)
	assert.True(t, got.Grouped())
}

func TestConvertMessageWithoutMedia(t *testing.T) {
	got := convertMessage("@shop", &tg.Message{ID: 1, Date: 1718020800, Message: "text only"})

	assert.Empty(t, got.Media)
	assert.False(t, got.Grouped())
	assert.True(t, got.HasContent())
}

func TestMediaKind(t *testing.T) {
	tests := []struct {
		media tg.MessageMediaClass
		want  string
	}{
		{&tg.MessageMediaPhoto{}, "photo"},
		{&tg.MessageMediaDocument{}, "document"},
		{&tg.MessageMediaWebPage{}, "webpage"},
		{&tg.MessageMediaEmpty{}, ""},
	}
	for _, tt := range tests {
		if got := mediaKind(tt.media); got != tt.want {
			t.Fatalf("mediaKind(%T) = %q, want %q", tt.media, got, tt.want)
		}
	}
}

func TestHistoryOfUnresolvedChannel(t *testing.T) {
	r := newSession(nil, nil)

	it := r.History(context.Background(), models.Channel{Username: "@ghost", PeerID: 99}, 0)
	assert.False(t, it.Next(context.Background()))
	require.Error(t, it.Err())
	assert.Contains(t, it.Err().Error(), "@ghost")
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{AppHash: "hash"})
	require.Error(t, err)

	_, err = NewClient(Config{AppID: 1})
	require.Error(t, err)
}
