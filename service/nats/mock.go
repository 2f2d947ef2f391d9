package nats

import (
	"context"
	"sync"
)

// MockPublisher is an in-memory Publisher and Subscriber for testing.
// Published events are recorded and fanned out to matching subscribers.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*ReportEvent
	publishError    error
	subscribeError  error
	subscribers     map[string][]chan *ReportEvent
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*ReportEvent, 0),
		subscribers:     make(map[string][]chan *ReportEvent),
	}
}

// PublishReport records the event and returns any configured error.
func (m *MockPublisher) PublishReport(ctx context.Context, event *ReportEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	for _, ch := range m.subscribers[event.Address] {
		select {
		case ch <- event:
		default: // drop for slow subscribers
		}
	}
	return nil
}

// Subscribe returns a channel receiving events published for address after this call.
func (m *MockPublisher) Subscribe(ctx context.Context, address string) (<-chan *ReportEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribeError != nil {
		return nil, m.subscribeError
	}

	ch := make(chan *ReportEvent, 10)
	m.subscribers[address] = append(m.subscribers[address], ch)

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[address]
		for i, c := range subs {
			if c == ch {
				m.subscribers[address] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// SubscriberCount returns the number of live subscriptions for address.
func (m *MockPublisher) SubscriberCount(address string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[address])
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*ReportEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ReportEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForWallet returns events published for a specific wallet.
func (m *MockPublisher) GetPublishedEventsForWallet(address string) []*ReportEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ReportEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Address == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishReport.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// SetSubscribeError configures the mock to return an error on Subscribe.
func (m *MockPublisher) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*ReportEvent, 0)
	m.publishError = nil
	m.subscribeError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
