// Package changefeed delivers "something changed" signals for the watched
// table families. Events carry no row data; consumers always re-read.
package changefeed

import (
	"context"
	"time"
)

// Topic names one watched table family
type Topic string

const (
	TopicTeams       Topic = "teams"
	TopicScoreEvents Topic = "score_events"
	TopicTeamBadges  Topic = "team_badges"
)

// Topics lists every topic the leaderboard watches
var Topics = []Topic{TopicTeams, TopicScoreEvents, TopicTeamBadges}

// Event signals that rows in a topic changed
type Event struct {
	Topic      Topic
	Operation  string // INSERT, UPDATE, DELETE, or empty when unknown
	ReceivedAt time.Time
}

// Subscription is an open change stream for one topic.
// Events is closed when the stream ends, either after Close or because the
// underlying connection was lost for good.
type Subscription interface {
	Topic() Topic
	Events() <-chan Event
	Close() error
}

// Feed opens change streams
type Feed interface {
	Subscribe(ctx context.Context, topic Topic) (Subscription, error)
}

// Publisher emits change signals for writers that are not covered by
// database triggers
type Publisher interface {
	Publish(ctx context.Context, topic Topic, operation string) error
}

// eventBuffer bounds pending events per subscription. Events are
// interchangeable, extras beyond the buffer are dropped.
const eventBuffer = 16

// deliver performs a non-blocking send
func deliver(ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}
