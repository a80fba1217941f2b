package relay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
	"channel_relay/internal/relay/registry"
	"channel_relay/internal/relay/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type memStore struct {
	records state.Records
	loadErr error
	saves   int
}

func (s *memStore) Load(ctx context.Context) (state.Records, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := state.Records{}
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Save(ctx context.Context, records state.Records) error {
	s.saves++
	s.records = records
	return nil
}

type failingRegistry struct{}

func (failingRegistry) List(ctx context.Context) ([]models.Channel, error) {
	return nil, errors.New("registry unavailable")
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func msg(id int, hoursAgo int) models.Message {
	return models.Message{ID: id, Date: now.Add(-time.Duration(hoursAgo) * time.Hour), Text: "post"}
}

func newTestService(reg registry.Reader, store state.Store, mock *platform.MockPlatform) *Service {
	return NewService(reg, store, mock, mock, Options{
		Target: "@aggregator",
		Window: 7 * 24 * time.Hour,
		Now:    func() time.Time { return now },
		Sleep:  noSleep,
	})
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@alpha", msg(1, 30), msg(2, 20), msg(3, 10))
	store := state.NewFileStore(filepath.Join(t.TempDir(), "forwarded_messages.json"))
	svc := newTestService(registry.NewStatic([]string{"@alpha"}), store, mock)

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Delivered())
	require.Len(t, mock.Calls(), 3)

	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Delivered())
	assert.Equal(t, 3, second.Channels[0].Result.Duplicates)
	assert.Len(t, mock.Calls(), 3)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunForwardsOldestFirstChannelByChannel(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@alpha", msg(10, 5), msg(11, 4))
	mock.AddMessages("@beta", msg(20, 50), msg(21, 1))
	store := &memStore{}

	_, err := newTestService(registry.NewStatic([]string{"@alpha", "@beta"}), store, mock).Run(context.Background())
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 4)
	got := make([]string, len(calls))
	for i, c := range calls {
		got[i] = string(models.NewKey(c.From, c.IDs[0]))
	}
	assert.Equal(t, []string{"@alpha:10", "@alpha:11", "@beta:20", "@beta:21"}, got)
}

func TestRunIgnoresMessagesOutsideWindow(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@alpha", msg(1, 24*8), msg(2, 24*6))
	store := &memStore{}

	summary, err := newTestService(registry.NewStatic([]string{"@alpha"}), store, mock).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Channels[0].Fetched)
	require.Len(t, mock.Calls(), 1)
	assert.Equal(t, []int{2}, mock.Calls()[0].IDs)
}

func TestRunRestrictedChannelDoesNotStopOthers(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@locked", msg(1, 3), msg(2, 2))
	mock.AddMessages("@open", msg(5, 1))
	mock.Script("@locked", platform.RestrictedResult(errors.New("forwards restricted")))
	store := &memStore{}

	summary, err := newTestService(registry.NewStatic([]string{"@locked", "@open"}), store, mock).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"@locked"}, summary.Restricted())
	assert.Len(t, mock.CallsFor("@locked"), 1)
	assert.Len(t, mock.CallsFor("@open"), 1)
	assert.True(t, store.records.Has("@open:5"))
	assert.False(t, store.records.Has("@locked:1"))
}

func TestRunSkipsChannelThatFailsToResolve(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@gone", msg(1, 1))
	mock.FailResolve("@gone", errors.New("username not occupied"))
	mock.AddMessages("@alive", msg(2, 1))
	store := &memStore{}

	summary, err := newTestService(registry.NewStatic([]string{"@gone", "@alive"}), store, mock).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"@gone"}, summary.Failed())
	assert.Empty(t, mock.CallsFor("@gone"))
	assert.Len(t, mock.CallsFor("@alive"), 1)
}

func TestRunPrunesAndSavesOnce(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@alpha", msg(9, 2))
	store := &memStore{records: state.Records{
		"@alpha:1": now.Add(-10 * 24 * time.Hour),
		"@alpha:8": now.Add(-3 * time.Hour),
	}}

	summary, err := newTestService(registry.NewStatic([]string{"@alpha"}), store, mock).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 1, summary.Pruned)
	assert.Equal(t, 2, summary.Records)
	assert.False(t, store.records.Has("@alpha:1"))
	assert.True(t, store.records.Has("@alpha:8"))
	assert.True(t, store.records.Has("@alpha:9"))
}

func TestRunFailsWhenStateCannotLoad(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@alpha", msg(1, 1))
	store := &memStore{loadErr: errors.New("disk on fire")}

	_, err := newTestService(registry.NewStatic([]string{"@alpha"}), store, mock).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load forward state")
	assert.Empty(t, mock.Calls())
	assert.Zero(t, store.saves)
}

func TestRunFailsWhenRegistryUnavailable(t *testing.T) {
	mock := platform.NewMockPlatform()
	store := &memStore{}

	_, err := newTestService(failingRegistry{}, store, mock).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list channels")
	assert.Zero(t, store.saves)
}

func TestSummaryReport(t *testing.T) {
	mock := platform.NewMockPlatform()
	mock.AddMessages("@alpha", msg(1, 2), msg(2, 1))
	mock.FailResolve("@beta", errors.New("not found"))

	summary, err := newTestService(registry.NewStatic([]string{"@alpha", "@beta"}), &memStore{}, mock).Run(context.Background())
	require.NoError(t, err)

	report := summary.Report("@aggregator")
	assert.Contains(t, report, "@aggregator")
	assert.Contains(t, report, "转发: 2 个帖子")
	assert.Contains(t, report, "读取失败: @beta")
}
