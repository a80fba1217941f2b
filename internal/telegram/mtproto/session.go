package mtproto

import (
	"context"
	"strings"
	"sync"
	"time"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/query/messages"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const historyBatchSize = 100

// Session implements platform.Reader and platform.Transport over an authorized user session.
type Session struct {
	api     *tg.Client
	manager *peers.Manager

	mu      sync.Mutex
	inputs  map[int64]tg.InputPeerClass
	targets map[string]tg.InputPeerClass
}

func newSession(api *tg.Client, manager *peers.Manager) *Session {
	return &Session{
		api:     api,
		manager: manager,
		inputs:  make(map[int64]tg.InputPeerClass),
		targets: make(map[string]tg.InputPeerClass),
	}
}

// Resolve 解析频道句柄；遇到 FLOOD_WAIT 时等待后重试一次
func (s *Session) Resolve(ctx context.Context, channel models.Channel) (models.Channel, error) {
	peer, err := s.manager.Resolve(ctx, channel.Username)
	if d, ok := tgerr.AsFloodWait(err); ok {
		logger.L().Warnf("Flood wait %v while resolving %s", d, channel.Username)
		select {
		case <-ctx.Done():
			return models.Channel{}, ctx.Err()
		case <-time.After(d):
		}
		peer, err = s.manager.Resolve(ctx, channel.Username)
	}
	if err != nil {
		return models.Channel{}, errors.Wrapf(err, "resolve %s", channel.Username)
	}

	channel.PeerID = peer.ID()
	if channel.Title == "" {
		channel.Title = peer.VisibleName()
	}

	s.mu.Lock()
	s.inputs[channel.PeerID] = peer.InputPeer()
	s.mu.Unlock()
	return channel, nil
}

// History 按从新到旧迭代 offsetID 之前的消息（offsetID 为 0 表示从最新开始）
func (s *Session) History(ctx context.Context, channel models.Channel, offsetID int) platform.Iterator {
	s.mu.Lock()
	input, ok := s.inputs[channel.PeerID]
	s.mu.Unlock()
	if !ok {
		return &historyIterator{err: errors.Errorf("channel %s is not resolved", channel.Username)}
	}

	iter := messages.NewQueryBuilder(s.api).
		GetHistory(input).
		OffsetID(offsetID).
		BatchSize(historyBatchSize).
		Iter()
	return &historyIterator{channel: channel.Username, iter: iter}
}

type historyIterator struct {
	channel string
	iter    *messages.Iterator
	current models.Message
	err     error
}

func (it *historyIterator) Next(ctx context.Context) bool {
	if it.iter == nil || it.err != nil {
		return false
	}
	for it.iter.Next(ctx) {
		msg, ok := it.iter.Value().Msg.(*tg.Message)
		if !ok {
			// 服务消息（置顶、改名等）不可转发
			continue
		}
		it.current = convertMessage(it.channel, msg)
		return true
	}
	if err := it.iter.Err(); err != nil {
		it.err = errors.Wrapf(err, "get history of %s", it.channel)
	}
	return false
}

func (it *historyIterator) Value() models.Message { return it.current }

func (it *historyIterator) Err() error { return it.err }

// convertMessage 将 tg.Message 映射为平台无关的消息
func convertMessage(channel string, msg *tg.Message) models.Message {
	out := models.Message{
		Channel: channel,
		ID:      msg.ID,
		Date:    time.Unix(int64(msg.Date), 0).UTC(),
		Text:    msg.Message,
	}
	if media, ok := msg.GetMedia(); ok {
		out.Media = mediaKind(media)
	}
	if groupID, ok := msg.GetGroupedID(); ok {
		out.GroupID = groupID
	}
	return out
}

// mediaKind messageMediaPhoto -> photo；空媒体返回空串
func mediaKind(media tg.MessageMediaClass) string {
	if _, empty := media.(*tg.MessageMediaEmpty); empty {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(media.TypeName(), "messageMedia"))
}
