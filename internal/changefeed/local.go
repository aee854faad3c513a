package changefeed

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFeedClosed is returned when subscribing to a closed LocalFeed
var ErrFeedClosed = errors.New("change feed closed")

// LocalFeed is an in-process Feed and Publisher. It only sees changes that
// are published through it, so it suits single-instance deployments where
// every write goes through the admin API.
type LocalFeed struct {
	mu     sync.Mutex
	subs   map[Topic]map[*localSubscription]struct{}
	closed bool
}

// NewLocalFeed creates an empty in-process feed
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[Topic]map[*localSubscription]struct{})}
}

// Subscribe registers a new subscription for topic
func (f *LocalFeed) Subscribe(ctx context.Context, topic Topic) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFeedClosed
	}

	sub := &localSubscription{feed: f, topic: topic, events: make(chan Event, eventBuffer)}
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[*localSubscription]struct{})
	}
	f.subs[topic][sub] = struct{}{}
	return sub, nil
}

// Publish delivers an event to every subscription of topic
func (f *LocalFeed) Publish(ctx context.Context, topic Topic, operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ev := Event{Topic: topic, Operation: operation, ReceivedAt: time.Now()}
	for sub := range f.subs[topic] {
		deliver(sub.events, ev)
	}
	return nil
}

// Close ends every open subscription. Subscribers observe a closed Events
// channel exactly as if the connection had dropped.
func (f *LocalFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for topic, subs := range f.subs {
		for sub := range subs {
			close(sub.events)
		}
		delete(f.subs, topic)
	}
	return nil
}

// Subscribers returns the number of open subscriptions for topic
func (f *LocalFeed) Subscribers(topic Topic) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic])
}

type localSubscription struct {
	feed   *LocalFeed
	topic  Topic
	events chan Event
}

func (s *localSubscription) Topic() Topic         { return s.topic }
func (s *localSubscription) Events() <-chan Event { return s.events }

func (s *localSubscription) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()

	if _, ok := s.feed.subs[s.topic][s]; ok {
		delete(s.feed.subs[s.topic], s)
		close(s.events)
	}
	return nil
}
