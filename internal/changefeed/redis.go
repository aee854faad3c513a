package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChannel returns the pub/sub channel for a topic
func RedisChannel(topic Topic) string {
	return "leaderboard:" + string(topic)
}

// RedisFeed implements Feed and Publisher over Redis pub/sub. Writers must
// call Publish after each mutation since Redis sees no database changes.
type RedisFeed struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisFeed creates a new Redis pub/sub feed
func NewRedisFeed(client *redis.Client, logger *slog.Logger) *RedisFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, logger: logger}
}

// Subscribe subscribes to the topic channel and waits for the confirmation
func (f *RedisFeed) Subscribe(ctx context.Context, topic Topic) (Subscription, error) {
	channel := RedisChannel(topic)

	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		topic:  topic,
		pubsub: pubsub,
		events: make(chan Event, eventBuffer),
	}
	go sub.run()

	f.logger.Info("subscribed to change stream", "topic", string(topic), "channel", channel)
	return sub, nil
}

// Publish announces a change on the topic
func (f *RedisFeed) Publish(ctx context.Context, topic Topic, operation string) error {
	if err := f.client.Publish(ctx, RedisChannel(topic), operation).Err(); err != nil {
		return fmt.Errorf("failed to publish %s change: %w", topic, err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (f *RedisFeed) HealthCheck(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

type redisSubscription struct {
	topic     Topic
	pubsub    *redis.PubSub
	events    chan Event
	closeOnce sync.Once
}

func (s *redisSubscription) Topic() Topic         { return s.topic }
func (s *redisSubscription) Events() <-chan Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}

// run forwards messages until the PubSub is closed, which closes its channel
func (s *redisSubscription) run() {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		deliver(s.events, Event{
			Topic:      s.topic,
			Operation:  msg.Payload,
			ReceivedAt: time.Now(),
		})
	}
}
