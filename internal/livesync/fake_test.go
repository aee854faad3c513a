package livesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource is an in-memory Source and DetailSource. hook, when set, runs
// after ListTeams captured its rows, so a blocked pass still returns the
// rows that were current when it started.
type fakeSource struct {
	mu        sync.Mutex
	teams     []models.Team
	badges    []models.Badge
	links     []models.TeamBadge
	events    map[string][]models.ScoreEvent
	teamsErr  error
	badgesErr error
	linksErr  error
	calls     int
	hook      func(ctx context.Context, call int)
}

func (s *fakeSource) setTeams(teams ...models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = teams
}

func (s *fakeSource) setHook(hook func(ctx context.Context, call int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *fakeSource) setErrors(teams, badges, links error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamsErr, s.badgesErr, s.linksErr = teams, badges, links
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) ListTeams(ctx context.Context) ([]models.Team, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	teams := append([]models.Team(nil), s.teams...)
	err := s.teamsErr
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return teams, nil
}

func (s *fakeSource) ListBadges(ctx context.Context) ([]models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.badgesErr != nil {
		return nil, s.badgesErr
	}
	return append([]models.Badge(nil), s.badges...), nil
}

func (s *fakeSource) ListTeamBadges(ctx context.Context) ([]models.TeamBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linksErr != nil {
		return nil, s.linksErr
	}
	return append([]models.TeamBadge(nil), s.links...), nil
}

func (s *fakeSource) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teamsErr != nil {
		return nil, s.teamsErr
	}
	for _, t := range s.teams {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (s *fakeSource) ListScoreEvents(ctx context.Context, teamID string) ([]models.ScoreEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[teamID], nil
}

func (s *fakeSource) ListTeamBadgesByTeam(ctx context.Context, teamID string) ([]models.TeamBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linksErr != nil {
		return nil, s.linksErr
	}
	var out []models.TeamBadge
	for _, l := range s.links {
		if l.TeamID == teamID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeSource) ListBadgesByIDs(ctx context.Context, ids []string) ([]models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.badgesErr != nil {
		return nil, s.badgesErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Badge
	for _, b := range s.badges {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

// failingFeed wraps a LocalFeed and refuses one topic
type failingFeed struct {
	*changefeed.LocalFeed
	fail   changefeed.Topic
	opened []changefeed.Subscription
}

func (f *failingFeed) Subscribe(ctx context.Context, topic changefeed.Topic) (changefeed.Subscription, error) {
	if topic == f.fail {
		return nil, errBoom
	}
	sub, err := f.LocalFeed.Subscribe(ctx, topic)
	if err == nil {
		f.opened = append(f.opened, sub)
	}
	return sub, err
}

func team(id string, points int) models.Team {
	return models.Team{ID: id, Name: "Team " + id, TotalPoints: points}
}

func entryIDs(s models.Snapshot) []string {
	ids := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}
