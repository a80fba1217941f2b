// Package platform declares the messaging platform capabilities the relay
// depends on. Concrete clients live under internal/telegram.
package platform

import (
	"context"
	"fmt"
	"time"

	"channel_relay/internal/relay/models"
)

// MaxForwardBatch is the largest number of message ids one forward call may carry.
const MaxForwardBatch = 100

// Iterator walks a channel history newest first.
type Iterator interface {
	Next(ctx context.Context) bool
	Value() models.Message
	Err() error
}

// Reader resolves source channels and reads their history.
type Reader interface {
	// Resolve turns a registry handle into a platform entity. PeerID is filled in.
	Resolve(ctx context.Context, channel models.Channel) (models.Channel, error)

	// History iterates messages strictly older than offsetID, newest first.
	// offsetID 0 starts from the latest message.
	History(ctx context.Context, channel models.Channel, offsetID int) Iterator
}

// Transport forwards messages from a source channel to a target channel.
type Transport interface {
	Forward(ctx context.Context, from models.Channel, target string, ids []int) Result
}

// Outcome classifies a forward attempt.
type Outcome int

const (
	Delivered Outcome = iota
	Restricted
	RateLimited
	Timeout
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Restricted:
		return "restricted"
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the tagged result of a single forward call.
type Result struct {
	Outcome Outcome
	Wait    time.Duration // RateLimited only
	Err     error
}

// OK reports whether the platform acknowledged the call.
func (r Result) OK() bool {
	return r.Outcome == Delivered
}

func DeliveredResult() Result {
	return Result{Outcome: Delivered}
}

func RestrictedResult(err error) Result {
	return Result{Outcome: Restricted, Err: err}
}

func RateLimitedResult(wait time.Duration, err error) Result {
	return Result{Outcome: RateLimited, Wait: wait, Err: err}
}

func TimeoutResult(err error) Result {
	return Result{Outcome: Timeout, Err: err}
}

func FailedResult(err error) Result {
	return Result{Outcome: Failed, Err: err}
}
