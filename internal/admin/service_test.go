package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
	"github.com/terra-clan/hackathon-leaderboard/internal/storage"
)

// memStore mimics the Postgres repository, including the score trigger
type memStore struct {
	mu     sync.Mutex
	teams  map[string]*models.Team
	badges map[string]models.Badge
	awards map[string]bool
	events []models.ScoreEvent
	nextID int
	err    error
}

func newMemStore() *memStore {
	return &memStore{
		teams:  make(map[string]*models.Team),
		badges: map[string]models.Badge{"gold": {ID: "gold", Name: "Gold", CriteriaType: models.CriteriaTopPosition}},
		awards: make(map[string]bool),
	}
}

func (s *memStore) id() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

func (s *memStore) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	t, ok := s.teams[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) CreateTeam(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	team.ID = s.id()
	team.Level = 1
	cp := *team
	s.teams[team.ID] = &cp
	return nil
}

func (s *memStore) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.teams, id)
	return nil
}

func (s *memStore) CreateScoreEvent(ctx context.Context, ev *models.ScoreEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[ev.TeamID]
	if !ok {
		return storage.ErrNotFound
	}
	ev.ID = s.id()
	ev.CreatedAt = time.Now()
	t.TotalPoints += ev.Points
	s.events = append(s.events, *ev)
	return nil
}

func (s *memStore) ListBadgesByIDs(ctx context.Context, ids []string) ([]models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Badge
	for _, id := range ids {
		if b, ok := s.badges[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) AwardBadge(ctx context.Context, tb *models.TeamBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tb.TeamID + "/" + tb.BadgeID
	if s.awards[key] {
		return storage.ErrAlreadyAwarded
	}
	s.awards[key] = true
	tb.ID = s.id()
	tb.AwardedAt = time.Now()
	return nil
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(ctx context.Context, topic changefeed.Topic, operation string) error {
	p.calls++
	return errors.New("redis down")
}

func newService(t *testing.T) (*Service, *memStore, *changefeed.LocalFeed) {
	t.Helper()
	store := newMemStore()
	feed := changefeed.NewLocalFeed()
	t.Cleanup(func() { feed.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, feed, logger), store, feed
}

func subscribe(t *testing.T, feed *changefeed.LocalFeed, topic changefeed.Topic) changefeed.Subscription {
	t.Helper()
	sub, err := feed.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

func expectEvent(t *testing.T, sub changefeed.Subscription, operation string) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		assert.Equal(t, operation, ev.Operation)
	case <-time.After(time.Second):
		t.Fatalf("no %s event on %s", operation, sub.Topic())
	}
}

func TestCreateTeam(t *testing.T) {
	svc, store, feed := newService(t)
	sub := subscribe(t, feed, changefeed.TopicTeams)

	team, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{
		Name:        "  Null Pointers  ",
		Description: "We dereference",
		LogoURL:     "https://example.com/logo.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Null Pointers", team.Name)
	require.NotNil(t, team.Description)
	assert.Equal(t, "We dereference", *team.Description)
	require.NotNil(t, team.LogoURL)
	assert.Equal(t, 0, team.TotalPoints)
	assert.Contains(t, store.teams, team.ID)
	expectEvent(t, sub, "INSERT")

	bare, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "Bare"})
	require.NoError(t, err)
	assert.Nil(t, bare.Description)
	assert.Nil(t, bare.LogoURL)
}

func TestCreateTeam_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   models.CreateTeamRequest
		field string
	}{
		{name: "empty name", req: models.CreateTeamRequest{Name: "   "}, field: "name"},
		{name: "long name", req: models.CreateTeamRequest{Name: strings.Repeat("x", MaxNameLength+1)}, field: "name"},
		{name: "long description", req: models.CreateTeamRequest{Name: "A", Description: strings.Repeat("d", MaxDescriptionLength+1)}, field: "description"},
		{name: "relative logo", req: models.CreateTeamRequest{Name: "A", LogoURL: "/logo.png"}, field: "logo_url"},
		{name: "ftp logo", req: models.CreateTeamRequest{Name: "A", LogoURL: "ftp://example.com/logo.png"}, field: "logo_url"},
		{name: "logo without host", req: models.CreateTeamRequest{Name: "A", LogoURL: "https://"}, field: "logo_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService(t)

			_, err := svc.CreateTeam(context.Background(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, store.teams)
		})
	}

	t.Run("multibyte name at limit", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: strings.Repeat("é", MaxNameLength)})
		assert.NoError(t, err)
	})
}

func TestAddScore(t *testing.T) {
	svc, store, feed := newService(t)
	sub := subscribe(t, feed, changefeed.TopicScoreEvents)

	team, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
	require.NoError(t, err)

	ev, err := svc.AddScore(context.Background(), team.ID, models.ScoreEventRequest{Points: 50, Reason: " demo "})
	require.NoError(t, err)
	assert.Equal(t, "demo", ev.Reason)
	expectEvent(t, sub, "INSERT")

	_, err = svc.AddScore(context.Background(), team.ID, models.ScoreEventRequest{Points: -20, Reason: "penalty"})
	require.NoError(t, err)
	assert.Equal(t, 30, store.teams[team.ID].TotalPoints)

	_, err = svc.AddScore(context.Background(), "missing", models.ScoreEventRequest{Points: 5, Reason: "x"})
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestAddScore_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   models.ScoreEventRequest
		field string
	}{
		{name: "zero", req: models.ScoreEventRequest{Points: 0, Reason: "x"}, field: "points"},
		{name: "too many", req: models.ScoreEventRequest{Points: MaxPointsDelta + 1, Reason: "x"}, field: "points"},
		{name: "too few", req: models.ScoreEventRequest{Points: -MaxPointsDelta - 1, Reason: "x"}, field: "points"},
		{name: "no reason", req: models.ScoreEventRequest{Points: 1}, field: "reason"},
		{name: "long reason", req: models.ScoreEventRequest{Points: 1, Reason: strings.Repeat("r", MaxReasonLength+1)}, field: "reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService(t)
			_, err := svc.AddScore(context.Background(), "any", tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, store.events)
		})
	}

	t.Run("limits are inclusive", func(t *testing.T) {
		svc, _, _ := newService(t)
		team, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
		require.NoError(t, err)
		_, err = svc.AddScore(context.Background(), team.ID, models.ScoreEventRequest{Points: MaxPointsDelta, Reason: "max"})
		assert.NoError(t, err)
		_, err = svc.AddScore(context.Background(), team.ID, models.ScoreEventRequest{Points: -MaxPointsDelta, Reason: "min"})
		assert.NoError(t, err)
	})
}

func TestDeleteTeam(t *testing.T) {
	svc, store, feed := newService(t)
	team, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
	require.NoError(t, err)

	sub := subscribe(t, feed, changefeed.TopicTeams)
	require.NoError(t, svc.DeleteTeam(context.Background(), team.ID))
	assert.NotContains(t, store.teams, team.ID)
	expectEvent(t, sub, "DELETE")

	assert.ErrorIs(t, svc.DeleteTeam(context.Background(), team.ID), ErrTeamNotFound)
}

func TestAwardBadge(t *testing.T) {
	svc, _, feed := newService(t)
	sub := subscribe(t, feed, changefeed.TopicTeamBadges)

	team, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
	require.NoError(t, err)

	tb, err := svc.AwardBadge(context.Background(), team.ID, models.AwardBadgeRequest{BadgeID: "gold"})
	require.NoError(t, err)
	assert.Equal(t, "gold", tb.BadgeID)
	expectEvent(t, sub, "INSERT")

	_, err = svc.AwardBadge(context.Background(), team.ID, models.AwardBadgeRequest{BadgeID: "gold"})
	assert.ErrorIs(t, err, ErrAlreadyAwarded)

	_, err = svc.AwardBadge(context.Background(), team.ID, models.AwardBadgeRequest{BadgeID: "platinum"})
	assert.ErrorIs(t, err, ErrBadgeNotFound)

	_, err = svc.AwardBadge(context.Background(), "missing", models.AwardBadgeRequest{BadgeID: "gold"})
	assert.ErrorIs(t, err, ErrTeamNotFound)

	_, err = svc.AwardBadge(context.Background(), team.ID, models.AwardBadgeRequest{BadgeID: "  "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "badge_id", verr.Field)
}

func TestValidationMessages(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want string
	}{
		{
			name: "zero points",
			call: func() error {
				_, err := svc.AddScore(ctx, "any", models.ScoreEventRequest{Points: 0, Reason: "x"})
				return err
			},
			want: "invalid points: must not be zero",
		},
		{
			name: "points above limit",
			call: func() error {
				_, err := svc.AddScore(ctx, "any", models.ScoreEventRequest{Points: MaxPointsDelta + 1, Reason: "x"})
				return err
			},
			want: "invalid points: must be at most 10000",
		},
		{
			name: "points below limit",
			call: func() error {
				_, err := svc.AddScore(ctx, "any", models.ScoreEventRequest{Points: -MaxPointsDelta - 1, Reason: "x"})
				return err
			},
			want: "invalid points: must be at least -10000",
		},
		{
			name: "blank name",
			call: func() error {
				_, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: " \t"})
				return err
			},
			want: "invalid name: is required",
		},
		{
			name: "long reason",
			call: func() error {
				_, err := svc.AddScore(ctx, "any", models.ScoreEventRequest{Points: 1, Reason: strings.Repeat("r", MaxReasonLength+1)})
				return err
			},
			want: "invalid reason: must be at most 500 characters",
		},
		{
			name: "bad logo",
			call: func() error {
				_, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "A", LogoURL: "logo.png"})
				return err
			},
			want: "invalid logo_url: must be an absolute http(s) URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestCreateTeam_TrimsBeforeStoring(t *testing.T) {
	svc, _, _ := newService(t)

	team, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{
		Name:        "  Rockets ",
		Description: " fast ",
		LogoURL:     " https://example.com/r.png ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rockets", team.Name)
	require.NotNil(t, team.Description)
	assert.Equal(t, "fast", *team.Description)
	require.NotNil(t, team.LogoURL)
	assert.Equal(t, "https://example.com/r.png", *team.LogoURL)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &failingPublisher{}
	svc := NewService(newMemStore(), pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
}

func TestNilPublisher(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)
	_, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
	assert.NoError(t, err)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	svc := NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.CreateTeam(context.Background(), models.CreateTeamRequest{Name: "A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create team")

	_, err = svc.AddScore(context.Background(), "x", models.ScoreEventRequest{Points: 1, Reason: "r"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTeamNotFound)
}
