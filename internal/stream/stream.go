package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published by the licensing service.
const (
	EventLicenseCreated = "license.created"
	EventLicenseRenewed = "license.renewed"
)

// LicenseEvent describes one observed license lifecycle transition. Events
// are emitted only after the read-model has confirmed visibility, so
// subscribers never see a contract the query surface cannot yet serve.
type LicenseEvent struct {
	Type       string `json:"type"`
	ContractID string `json:"contractId"`
	// Predecessor is set on renewals: the archived contract the successor
	// replaced.
	Predecessor string    `json:"predecessor,omitempty"`
	User        string    `json:"user"`
	ProductID   string    `json:"productId"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream fan-outs license events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan LicenseEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan LicenseEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan LicenseEvent {
	ch := make(chan LicenseEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt LicenseEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
