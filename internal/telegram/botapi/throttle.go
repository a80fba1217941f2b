package botapi

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultBotRate Bot API 全局发送上限（每秒）
const DefaultBotRate = 30

// Throttle 令牌桶，按距上次取令牌的时间惰性补充，不需要后台 goroutine
type Throttle struct {
	mu     sync.Mutex
	rate   float64 // 每秒补充的令牌数，同时也是桶容量
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewThrottle 创建满桶的限速器；perSecond <= 0 时使用 DefaultBotRate
func NewThrottle(perSecond int) *Throttle {
	if perSecond <= 0 {
		perSecond = DefaultBotRate
	}
	return &Throttle{
		rate:   float64(perSecond),
		tokens: float64(perSecond),
		now:    time.Now,
	}
}

// reserve 尝试取一个令牌，失败时返回还需等待的时长
func (t *Throttle) reserve() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() {
		t.tokens = math.Min(t.rate, t.tokens+now.Sub(t.last).Seconds()*t.rate)
	}
	t.last = now

	if t.tokens >= 1 {
		t.tokens--
		return true, 0
	}
	wait := time.Duration((1 - t.tokens) / t.rate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// Take 阻塞直到拿到令牌或 ctx 结束
func (t *Throttle) Take(ctx context.Context) error {
	for {
		ok, wait := t.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
