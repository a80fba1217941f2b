package forward

import (
	"context"
	"errors"
	"testing"
	"time"

	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
	"channel_relay/internal/relay/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ts   = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	shop = models.Channel{Username: "@shop"}
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func single(id int) models.Unit {
	return models.NewSingleUnit(models.Message{Channel: "@shop", ID: id, Date: ts.Add(time.Duration(id) * time.Minute), Text: "post"})
}

func album(group int64, ids ...int) models.Unit {
	msgs := make([]models.Message, len(ids))
	for i, id := range ids {
		msgs[i] = models.Message{Channel: "@shop", ID: id, Date: ts.Add(time.Duration(id) * time.Minute), Media: "photo", GroupID: group}
	}
	return models.NewAlbumUnit(group, msgs, false)
}

func newTestForwarder(mock *platform.MockPlatform, rec *sleepRecorder) *Forwarder {
	return NewForwarder(mock, Options{
		Target:        "@aggregator",
		DeliveryDelay: 500 * time.Millisecond,
		Sleep:         rec.sleep,
	})
}

func TestDeliverInOrderAndRecordsContentTime(t *testing.T) {
	mock := platform.NewMockPlatform()
	rec := &sleepRecorder{}
	records := state.Records{}

	units := []models.Unit{single(1), single(2), single(3)}
	res := newTestForwarder(mock, rec).Deliver(context.Background(), shop, units, records)

	assert.Equal(t, 3, res.Delivered)
	assert.Equal(t, 3, res.Messages)

	calls := mock.CallsFor("@shop")
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, []int{i + 1}, call.IDs)
		assert.Equal(t, "@aggregator", call.Target)
	}

	require.Len(t, records, 3)
	assert.Equal(t, ts.Add(2*time.Minute), records["@shop:2"])
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, rec.waits)
}

func TestDeliverAlbumAsOneCall(t *testing.T) {
	mock := platform.NewMockPlatform()
	records := state.Records{}

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop,
		[]models.Unit{album(7, 43, 41, 42)}, records)

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 3, res.Messages)
	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []int{41, 42, 43}, calls[0].IDs)
	assert.Len(t, records, 3)
}

func TestDeliverSkipsUnitWithAnyRelayedMember(t *testing.T) {
	mock := platform.NewMockPlatform()
	records := state.Records{}
	records.Add("@shop:42", ts)

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop,
		[]models.Unit{album(7, 41, 42, 43)}, records)

	assert.Equal(t, 1, res.Duplicates)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, mock.Calls())
	assert.Len(t, records, 1)
	assert.False(t, records.Has("@shop:41"))
	assert.False(t, records.Has("@shop:43"))
}

func TestDeliverRateLimitWaitsAndRetriesOnce(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.Script("@shop", platform.RateLimitedResult(5*time.Second, errors.New("flood")))
	rec := &sleepRecorder{}
	records := state.Records{}

	res := newTestForwarder(mock, rec).Deliver(context.Background(), shop, []models.Unit{single(1)}, records)

	assert.Equal(t, 1, res.Delivered)
	require.Len(t, mock.Calls(), 2)
	assert.Equal(t, mock.Calls()[0].IDs, mock.Calls()[1].IDs)
	require.NotEmpty(t, rec.waits)
	assert.GreaterOrEqual(t, rec.waits[0], 5*time.Second)
	assert.True(t, records.Has("@shop:1"))
}

func TestDeliverRateLimitRetryOnlyOnce(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.Script("@shop",
		platform.RateLimitedResult(2*time.Second, errors.New("flood")),
		platform.RateLimitedResult(2*time.Second, errors.New("flood again")),
	)
	records := state.Records{}

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop,
		[]models.Unit{single(1), single(2)}, records)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Delivered)
	calls := mock.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []int{2}, calls[2].IDs)
	assert.False(t, records.Has("@shop:1"))
	assert.True(t, records.Has("@shop:2"))
}

func TestDeliverRateLimitWithoutWaitUsesFallback(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.Script("@shop", platform.RateLimitedResult(0, errors.New("flood")))
	rec := &sleepRecorder{}

	newTestForwarder(mock, rec).Deliver(context.Background(), shop, []models.Unit{single(1)}, state.Records{})

	require.NotEmpty(t, rec.waits)
	assert.Equal(t, defaultRateLimitWait, rec.waits[0])
}

func TestDeliverRestrictedAbandonsChannel(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.Script("@shop",
		platform.DeliveredResult(),
		platform.RestrictedResult(errors.New("forwards restricted")),
	)
	records := state.Records{}

	units := []models.Unit{single(1), single(2), single(3), single(4), single(5)}
	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop, units, records)

	assert.True(t, res.Restricted)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 3, res.Abandoned)
	require.Len(t, mock.Calls(), 2)
	assert.Equal(t, []int{2}, mock.Calls()[1].IDs)
	assert.Len(t, records, 1)
}

func TestDeliverTimeoutAndFailureSkipUnit(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.Script("@shop",
		platform.TimeoutResult(context.DeadlineExceeded),
		platform.FailedResult(errors.New("rpc error")),
		platform.FailedResult(context.DeadlineExceeded),
	)
	records := state.Records{}

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop,
		[]models.Unit{single(1), single(2), single(3), single(4)}, records)

	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, res.Delivered)
	assert.Len(t, mock.Calls(), 4)
	assert.Equal(t, state.Records{"@shop:4": ts.Add(4 * time.Minute)}, records)
}

func TestDeliverFailClosedSkipsTruncatedAlbum(t *testing.T) {
	mock := platform.NewMockPlatform()
	truncated := album(9, 5, 6)
	truncated.Truncated = true

	f := NewForwarder(mock, Options{Target: "@aggregator", FailClosed: true, Sleep: (&sleepRecorder{}).sleep})
	res := f.Deliver(context.Background(), shop, []models.Unit{truncated, single(7)}, state.Records{})

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Delivered)
	require.Len(t, mock.Calls(), 1)
	assert.Equal(t, []int{7}, mock.Calls()[0].IDs)
}

func TestDeliverLenientForwardsTruncatedAlbum(t *testing.T) {
	mock := platform.NewMockPlatform()
	truncated := album(9, 5, 6)
	truncated.Truncated = true

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop, []models.Unit{truncated}, state.Records{})
	assert.Equal(t, 1, res.Delivered)
}

func TestDeliverSplitsOversizedUnit(t *testing.T) {
	mock := platform.NewMockPlatform()
	ids := make([]int, 150)
	for i := range ids {
		ids[i] = i + 1
	}
	records := state.Records{}

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(context.Background(), shop, []models.Unit{album(3, ids...)}, records)

	assert.Equal(t, 1, res.Delivered)
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].IDs, platform.MaxForwardBatch)
	assert.Len(t, calls[1].IDs, 50)
	assert.Equal(t, 101, calls[1].IDs[0])
	assert.Len(t, records, 150)
}

func TestDeliverStopsWhenContextCancelled(t *testing.T) {
	mock := platform.NewMockPlatform()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestForwarder(mock, &sleepRecorder{}).Deliver(ctx, shop, []models.Unit{single(1), single(2)}, state.Records{})
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, mock.Calls())
}

type deadlineTransport struct{}

func (deadlineTransport) Forward(ctx context.Context, from models.Channel, target string, ids []int) platform.Result {
	<-ctx.Done()
	return platform.FailedResult(ctx.Err())
}

func TestForwardOnceMapsDeadlineToTimeout(t *testing.T) {
	f := NewForwarder(deadlineTransport{}, Options{Target: "@aggregator", Timeout: 10 * time.Millisecond})

	res := f.forwardOnce(context.Background(), shop, []int{1})
	assert.Equal(t, platform.Timeout, res.Outcome)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
