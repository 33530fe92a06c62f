package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, sessionID string, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.SessionID = sessionID
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(sessionID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, Channel(sessionID))
	// wait for the subscription confirmation so no event published right
	// after this call is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:      ps,
		out:     make(chan []byte, subscriptionBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	ps      *redis.PubSub
	out     chan []byte
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.stopped)
	defer close(s.out)

	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) C() <-chan []byte { return s.out }

// Close stops delivery and returns once the forwarding goroutine has exited,
// whether or not the reader drained C.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		<-s.stopped
	})
	return err
}
