package mtproto

import (
	"context"
	"math/rand/v2"

	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// Forward implements platform.Transport: 以用户身份把 ids 作为一次调用转发到 target。
// target 必须是可解析的 @username 或 t.me 链接。
func (s *Session) Forward(ctx context.Context, from models.Channel, target string, ids []int) platform.Result {
	s.mu.Lock()
	source, ok := s.inputs[from.PeerID]
	s.mu.Unlock()
	if !ok {
		return platform.FailedResult(errors.Errorf("channel %s is not resolved", from.Username))
	}

	to, err := s.targetPeer(ctx, target)
	if err != nil {
		return classify(err)
	}

	randomIDs := make([]int64, len(ids))
	for i := range randomIDs {
		randomIDs[i] = rand.Int64()
	}

	_, err = s.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: source,
		ID:       ids,
		RandomID: randomIDs,
		ToPeer:   to,
	})
	if err != nil {
		return classify(errors.Wrapf(err, "forward %v from %s", ids, from.Username))
	}
	return platform.DeliveredResult()
}

// targetPeer 解析并缓存目标频道
func (s *Session) targetPeer(ctx context.Context, target string) (tg.InputPeerClass, error) {
	s.mu.Lock()
	cached, ok := s.targets[target]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	peer, err := s.manager.Resolve(ctx, target)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve target %s", target)
	}

	input := peer.InputPeer()
	s.mu.Lock()
	s.targets[target] = input
	s.mu.Unlock()
	return input, nil
}

// classify 将 MTProto 错误映射为转发结果
func classify(err error) platform.Result {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return platform.RateLimitedResult(d, err)
	}
	if tgerr.Is(err, "CHAT_FORWARDS_RESTRICTED", "CHANNEL_PRIVATE") {
		return platform.RestrictedResult(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return platform.TimeoutResult(err)
	}
	return platform.FailedResult(err)
}
