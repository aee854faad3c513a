package livesync

import (
	"errors"
	"fmt"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStopped      = errors.New("live sync stopped")
	ErrStarted      = errors.New("live sync already started")
	ErrStreamClosed = errors.New("change stream closed unexpectedly")
)

// FetchError reports a failed read against the datastore. It is recoverable:
// the previous snapshot stays published.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a team id with no matching row
type NotFoundError struct {
	TeamID string
}

func (e *NotFoundError) Error() string {
	return "team not found: " + e.TeamID
}

// Is makes errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SubscriptionError reports a change stream that could not be opened or
// dropped. Live updates stop but the last snapshot stays available.
type SubscriptionError struct {
	Topic changefeed.Topic
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("change stream %s: %v", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
