package service

import (
	"context"
	"sync"

	"github.com/lucylow/kale-ndar-sub000/internal/port/messagequeue"
)

// Ensure the mocks satisfy their interfaces at compile time.
var (
	_ Sender             = (*mockSender)(nil)
	_ messagequeue.Queue = (*mockQueue)(nil)
)

// mockSender records every frame sent per connection.
type mockSender struct {
	mu     sync.Mutex
	frames map[string][]any
}

func newMockSender() *mockSender {
	return &mockSender{frames: make(map[string][]any)}
}

func (m *mockSender) Send(connectionID string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[connectionID] = append(m.frames[connectionID], v)
}

func (m *mockSender) sent(connectionID string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.frames[connectionID]...)
}

func (m *mockSender) count(connectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames[connectionID])
}

// mockQueue records publishes and lets tests inject remote messages into
// registered handlers.
type mockQueue struct {
	mu        sync.Mutex
	published []queuedMsg
	handlers  map[string]messagequeue.Handler

	publishErr error
}

type queuedMsg struct {
	subject string
	data    []byte
}

func newMockQueue() *mockQueue {
	return &mockQueue{handlers: make(map[string]messagequeue.Handler)}
}

func (m *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, queuedMsg{subject: subject, data: data})
	return nil
}

func (m *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = handler
	return func() {}, nil
}

func (m *mockQueue) Drain() error { return nil }

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) IsConnected() bool { return true }

// deliver simulates a message arriving from the broker.
func (m *mockQueue) deliver(subject string, data []byte) error {
	m.mu.Lock()
	handler := m.handlers["events.>"]
	m.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(context.Background(), subject, data)
}

func (m *mockQueue) publishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func (m *mockQueue) lastPublished() (queuedMsg, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return queuedMsg{}, false
	}
	return m.published[len(m.published)-1], true
}
