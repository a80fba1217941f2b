package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"channel_relay/internal/relay/models"
)

// ForwardCall is one recorded Transport.Forward invocation.
type ForwardCall struct {
	From   string
	Target string
	IDs    []int
}

// MockPlatform implements Reader and Transport in memory for testing. History
// is served from messages added with AddMessages; forward results are scripted
// per channel with Script and default to Delivered.
type MockPlatform struct {
	mu         sync.Mutex
	history    map[string][]models.Message // newest first
	resolveErr map[string]error
	scanErr    map[string]error
	scripts    map[string][]Result
	calls      []ForwardCall
	scans      int
}

// NewMockPlatform creates an empty MockPlatform.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		history:    make(map[string][]models.Message),
		resolveErr: make(map[string]error),
		scanErr:    make(map[string]error),
		scripts:    make(map[string][]Result),
	}
}

// AddMessages appends messages to a channel history. Order does not matter.
func (m *MockPlatform) AddMessages(channel string, msgs ...models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		msg.Channel = channel
		m.history[channel] = append(m.history[channel], msg)
	}
	sort.Slice(m.history[channel], func(i, j int) bool {
		return m.history[channel][i].ID > m.history[channel][j].ID
	})
}

// FailResolve makes Resolve fail for channel.
func (m *MockPlatform) FailResolve(channel string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveErr[channel] = err
}

// FailScan makes offset history reads (offsetID > 0) fail for channel.
func (m *MockPlatform) FailScan(channel string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr[channel] = err
}

// Script queues forward results for channel, consumed one per call.
func (m *MockPlatform) Script(channel string, results ...Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[channel] = append(m.scripts[channel], results...)
}

// Calls returns a copy of all recorded forward calls.
func (m *MockPlatform) Calls() []ForwardCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ForwardCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the forward calls made for a source channel.
func (m *MockPlatform) CallsFor(channel string) []ForwardCall {
	var out []ForwardCall
	for _, call := range m.Calls() {
		if call.From == channel {
			out = append(out, call)
		}
	}
	return out
}

// Scans returns the number of offset history reads.
func (m *MockPlatform) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

// Resolve implements Reader.
func (m *MockPlatform) Resolve(ctx context.Context, channel models.Channel) (models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.resolveErr[channel.Username]; ok {
		return models.Channel{}, err
	}
	if _, ok := m.history[channel.Username]; !ok {
		return models.Channel{}, fmt.Errorf("mock platform: channel %s not found", channel.Username)
	}
	channel.PeerID = int64(len(channel.Username))
	return channel, nil
}

// History implements Reader.
func (m *MockPlatform) History(ctx context.Context, channel models.Channel, offsetID int) Iterator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offsetID > 0 {
		m.scans++
		if err, ok := m.scanErr[channel.Username]; ok {
			return &sliceIterator{err: err}
		}
	}

	var msgs []models.Message
	for _, msg := range m.history[channel.Username] {
		if offsetID == 0 || msg.ID < offsetID {
			msgs = append(msgs, msg)
		}
	}
	return &sliceIterator{msgs: msgs, pos: -1}
}

// Forward implements Transport.
func (m *MockPlatform) Forward(ctx context.Context, from models.Channel, target string, ids []int) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ForwardCall{
		From:   from.Username,
		Target: target,
		IDs:    append([]int(nil), ids...),
	})

	queue := m.scripts[from.Username]
	if len(queue) == 0 {
		return DeliveredResult()
	}
	res := queue[0]
	m.scripts[from.Username] = queue[1:]
	return res
}

type sliceIterator struct {
	msgs []models.Message
	pos  int
	err  error
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	return it.pos < len(it.msgs)
}

func (it *sliceIterator) Value() models.Message {
	return it.msgs[it.pos]
}

func (it *sliceIterator) Err() error {
	return it.err
}
