package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// PostgresChannel returns the NOTIFY channel the migration triggers use for a topic
func PostgresChannel(topic Topic) string {
	return "leaderboard_" + string(topic)
}

// PostgresConfig holds LISTEN connection settings
type PostgresConfig struct {
	DSN                  string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	ConnectTimeout       time.Duration
}

// PostgresFeed implements Feed on top of PostgreSQL LISTEN/NOTIFY.
// Each subscription holds its own pq.Listener connection.
type PostgresFeed struct {
	cfg    PostgresConfig
	logger *slog.Logger
}

// NewPostgresFeed creates a new LISTEN/NOTIFY feed
func NewPostgresFeed(cfg PostgresConfig, logger *slog.Logger) *PostgresFeed {
	if cfg.MinReconnectInterval <= 0 {
		cfg.MinReconnectInterval = time.Second
	}
	if cfg.MaxReconnectInterval < cfg.MinReconnectInterval {
		cfg.MaxReconnectInterval = time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresFeed{cfg: cfg, logger: logger}
}

// Subscribe opens a LISTEN connection for the topic. It fails if the first
// connection attempt fails or the LISTEN is not acknowledged.
func (f *PostgresFeed) Subscribe(ctx context.Context, topic Topic) (Subscription, error) {
	channel := PostgresChannel(topic)
	logger := f.logger.With("topic", string(topic), "channel", channel)

	first := make(chan error, 1)
	var once sync.Once

	listener := pq.NewListener(f.cfg.DSN, f.cfg.MinReconnectInterval, f.cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnected:
				once.Do(func() { first <- nil })
			case pq.ListenerEventConnectionAttemptFailed:
				once.Do(func() { first <- err })
				logger.Warn("listen connection attempt failed", "error", err)
			case pq.ListenerEventDisconnected:
				logger.Warn("listen connection lost", "error", err)
			case pq.ListenerEventReconnected:
				logger.Info("listen connection re-established")
			}
		})

	connectCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	select {
	case err := <-first:
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to connect listener: %w", err)
		}
	case <-connectCtx.Done():
		listener.Close()
		return nil, fmt.Errorf("failed to connect listener: %w", connectCtx.Err())
	}

	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	sub := &pgSubscription{
		topic:    topic,
		listener: listener,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
	go sub.run(logger)

	logger.Info("subscribed to change stream")
	return sub, nil
}

type pgSubscription struct {
	topic     Topic
	listener  *pq.Listener
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *pgSubscription) Topic() Topic         { return s.topic }
func (s *pgSubscription) Events() <-chan Event { return s.events }

func (s *pgSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	return err
}

// run forwards notifications. pq sends a nil notification after a reconnect;
// anything may have changed while disconnected, so that is forwarded as an
// event too.
func (s *pgSubscription) run(logger *slog.Logger) {
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			ev := Event{Topic: s.topic, ReceivedAt: time.Now()}
			if n != nil {
				ev.Operation = strings.ToUpper(n.Extra)
			} else {
				logger.Debug("forwarding reconnect as change event")
			}
			deliver(s.events, ev)
		}
	}
}
