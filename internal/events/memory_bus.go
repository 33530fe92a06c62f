package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryBus fans events out to in-process subscribers. Slow subscribers drop
// events rather than block publishers.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, sessionID string, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.SessionID = sessionID
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[sessionID] {
		select {
		case s.out <- payload:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	s := &memorySubscription{bus: b, sessionID: sessionID, out: make(chan []byte, subscriptionBuffer)}

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*memorySubscription]struct{})
	}
	b.subs[sessionID][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

type memorySubscription struct {
	bus       *MemoryBus
	sessionID string
	out       chan []byte
	once      sync.Once
}

func (s *memorySubscription) C() <-chan []byte { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.sessionID], s)
		if len(s.bus.subs[s.sessionID]) == 0 {
			delete(s.bus.subs, s.sessionID)
		}
		close(s.out)
	})
	return nil
}
