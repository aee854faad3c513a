// Package livesync keeps the ranked leaderboard snapshot fresh by re-reading
// the datastore whenever a change stream reports activity.
package livesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
	"github.com/terra-clan/hackathon-leaderboard/internal/ranking"
)

// Source reads the raw rows an aggregation pass needs
type Source interface {
	ListTeams(ctx context.Context) ([]models.Team, error)
	ListBadges(ctx context.Context) ([]models.Badge, error)
	ListTeamBadges(ctx context.Context) ([]models.TeamBadge, error)
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller owns the published leaderboard snapshot.
//
// Notifications from any topic mark the controller dirty. A single worker
// runs passes one after another, so a burst that arrives during a pass costs
// exactly one trailing pass. Every pass takes a generation number when it
// starts and its result is applied only if no pass with a higher generation
// has completed, so a slow pass never overwrites a newer one.
//
// Liveness is all or nothing: the first stream that fails closes the others,
// and its SubscriptionError stays on every later snapshot until a new Start.
type Controller struct {
	source  Source
	feed    changefeed.Feed
	logger  *slog.Logger
	metrics *Metrics

	dirty chan struct{}

	mu        sync.Mutex
	snapshot  models.Snapshot
	memory    ranking.RankMemory
	started   uint64
	applied   uint64
	running   bool
	stopped   bool
	subs      []changefeed.Subscription
	subErr    *SubscriptionError
	listeners map[chan models.Snapshot]struct{}
	cancel    context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewController creates a controller. Nothing is fetched until Start.
func NewController(source Source, feed changefeed.Feed, opts ...Option) *Controller {
	c := &Controller{
		source: source,
		feed:   feed,
		logger: slog.Default(),
		dirty:  make(chan struct{}, 1),
		snapshot: models.Snapshot{
			Entries: []models.LeaderboardEntry{},
			Badges:  []models.Badge{},
			Loading: true,
		},
		memory:    ranking.RankMemory{},
		listeners: make(map[chan models.Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs the initial pass and then opens the three change streams.
// ctx bounds only the initial pass and the subscription handshakes.
//
// A failed initial pass returns a *FetchError and opens nothing; Start may be
// called again. A failed subscription returns a *SubscriptionError: the
// snapshot from the initial pass stays published with Live=false.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.running {
		c.mu.Unlock()
		return ErrStarted
	}
	c.mu.Unlock()

	if err := c.runPass(ctx, "initial"); err != nil {
		return err
	}

	subs := make([]changefeed.Subscription, 0, len(changefeed.Topics))
	for _, topic := range changefeed.Topics {
		sub, err := c.feed.Subscribe(ctx, topic)
		if err != nil {
			closeAll(c.logger, subs)
			serr := &SubscriptionError{Topic: topic, Err: err}
			c.logger.Error("live updates disabled", "topic", string(topic), "error", err)
			c.dropLive(serr)
			return serr
		}
		subs = append(subs, sub)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		cancel()
		closeAll(c.logger, subs)
		return ErrStopped
	}
	c.running = true
	c.subs = subs
	c.subErr = nil
	c.cancel = cancel
	c.snapshot.Live = true
	c.snapshot.Err = nil
	c.snapshot.Error = ""
	c.metrics.setLive(true)
	c.broadcastLocked()
	c.mu.Unlock()

	c.wg.Add(len(subs) + 1)
	for _, sub := range subs {
		go c.forward(loopCtx, sub)
	}
	go c.loop(loopCtx)

	c.logger.Info("live sync started", "topics", len(subs))
	return nil
}

// Stop closes the change streams and waits for the worker to exit. Passes
// still in flight complete but their results are discarded. Stop is
// idempotent.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.snapshot.Live = false
		subs := c.subs
		c.subs = nil
		cancel := c.cancel
		for ch := range c.listeners {
			close(ch)
			delete(c.listeners, ch)
		}
		c.mu.Unlock()

		c.metrics.setLive(false)
		if cancel != nil {
			cancel()
		}
		closeAll(c.logger, subs)
		c.wg.Wait()

		c.logger.Info("live sync stopped")
	})
}

// Snapshot returns the last completed snapshot. The entries slice is shared
// and must not be modified.
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Refetch runs a pass on the calling goroutine. It is the manual retry path
// after a failed pass; there is no automatic retry.
func (c *Controller) Refetch(ctx context.Context) error {
	return c.runPass(ctx, "manual")
}

// Listen returns a channel that receives the current snapshot right away and
// then every published snapshot. Only the latest snapshot is buffered, so a
// slow reader skips intermediate ones. The returned func releases the
// channel; the channel is also closed by Stop.
func (c *Controller) Listen() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		close(ch)
		return ch, func() {}
	}
	c.listeners[ch] = struct{}{}
	ch <- c.snapshot

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.listeners[ch]; ok {
			delete(c.listeners, ch)
			close(ch)
		}
	}
}

// invalidate marks the controller dirty. The buffer of one is what
// coalesces bursts.
func (c *Controller) invalidate() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *Controller) loop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.dirty:
			if err := c.runPass(ctx, "notification"); err != nil && ctx.Err() == nil {
				c.logger.Warn("refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// forward turns events from one stream into dirty marks. When the stream
// ends on its own, liveness is dropped for every topic.
func (c *Controller) forward(ctx context.Context, sub changefeed.Subscription) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				c.dropLive(&SubscriptionError{Topic: sub.Topic(), Err: ErrStreamClosed})
				return
			}
			c.metrics.notification(ev.Topic)
			c.logger.Debug("change notification", "topic", string(ev.Topic), "operation", ev.Operation)
			c.invalidate()
		}
	}
}

// runPass fetches all rows and, if the pass is still the newest, aggregates
// against the held rank memory and publishes the result. Aggregation happens
// under the lock so previous ranks always come from the snapshot being
// replaced.
func (c *Controller) runPass(ctx context.Context, trigger string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.started++
	gen := c.started
	c.mu.Unlock()

	begin := time.Now()
	teams, badges, links, fetchErr := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		c.metrics.pass(outcomeDiscarded, begin)
		return ErrStopped
	}
	if gen < c.applied {
		c.metrics.pass(outcomeStale, begin)
		c.logger.Debug("discarding stale pass", "generation", gen, "applied", c.applied, "trigger", trigger)
		return nil
	}
	c.applied = gen

	if fetchErr != nil {
		c.metrics.pass(outcomeFailed, begin)
		c.snapshot.Loading = false
		c.snapshot.Err = fetchErr
		c.snapshot.Error = fetchErr.Error()
		c.broadcastLocked()
		return fetchErr
	}

	entries, memory := ranking.Aggregate(teams, badges, links, c.memory)
	now := time.Now().UTC()

	c.memory = memory
	c.snapshot = models.Snapshot{
		Entries:    entries,
		Badges:     badges,
		Loading:    false,
		Live:       c.snapshot.Live,
		Generation: gen,
		UpdatedAt:  &now,
	}
	if c.subErr != nil {
		c.snapshot.Err = c.subErr
		c.snapshot.Error = c.subErr.Error()
	}
	c.metrics.pass(outcomeApplied, begin)
	c.metrics.published(len(entries))
	c.broadcastLocked()

	c.logger.Debug("leaderboard refreshed",
		"generation", gen,
		"trigger", trigger,
		"teams", len(entries),
		"duration_ms", time.Since(begin).Milliseconds(),
	)
	return nil
}

// fetch reads the three row sets; any failure aborts the whole pass
func (c *Controller) fetch(ctx context.Context) ([]models.Team, []models.Badge, []models.TeamBadge, error) {
	teams, err := c.source.ListTeams(ctx)
	if err != nil {
		return nil, nil, nil, &FetchError{Resource: "teams", Err: err}
	}

	badges, err := c.source.ListBadges(ctx)
	if err != nil {
		return nil, nil, nil, &FetchError{Resource: "badges", Err: err}
	}
	if badges == nil {
		badges = []models.Badge{}
	}

	links, err := c.source.ListTeamBadges(ctx)
	if err != nil {
		return nil, nil, nil, &FetchError{Resource: "team_badges", Err: err}
	}

	return teams, badges, links, nil
}

// dropLive records the first subscription failure, turns live updates off
// and closes the remaining streams. Later failures, including the streams it
// closes itself, are ignored.
func (c *Controller) dropLive(err *SubscriptionError) {
	c.mu.Lock()
	if c.stopped || c.subErr != nil {
		c.mu.Unlock()
		return
	}
	subs := c.subs
	c.subs = nil
	c.subErr = err
	c.snapshot.Live = false
	c.snapshot.Err = err
	c.snapshot.Error = err.Error()
	c.metrics.setLive(false)
	c.broadcastLocked()
	c.mu.Unlock()

	if len(subs) > 0 {
		c.logger.Error("change stream dropped, live updates disabled", "topic", string(err.Topic), "error", err.Err)
	}
	closeAll(c.logger, subs)
}

// broadcastLocked replaces whatever snapshot a listener has not read yet.
// Only the controller sends on listener channels, and it holds c.mu, so the
// second send cannot block.
func (c *Controller) broadcastLocked() {
	for ch := range c.listeners {
		select {
		case ch <- c.snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.snapshot:
		default:
		}
	}
}

func closeAll(logger *slog.Logger, subs []changefeed.Subscription) {
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			logger.Warn("failed to close change stream", "topic", string(sub.Topic()), "error", err)
		}
	}
}
