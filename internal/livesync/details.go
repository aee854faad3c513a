package livesync

import (
	"context"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

// DetailSource reads the rows behind a single team drill-down
type DetailSource interface {
	// GetTeam returns nil, nil when no team has the id
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListScoreEvents(ctx context.Context, teamID string) ([]models.ScoreEvent, error)
	ListTeamBadgesByTeam(ctx context.Context, teamID string) ([]models.TeamBadge, error)
	ListBadgesByIDs(ctx context.Context, ids []string) ([]models.Badge, error)
}

// DetailReader loads one team with its score history and badges. It does
// not go through the Aggregator and keeps no state.
type DetailReader struct {
	source DetailSource
}

// NewDetailReader creates a new DetailReader
func NewDetailReader(source DetailSource) *DetailReader {
	return &DetailReader{source: source}
}

// Get returns the team details, or a *NotFoundError when the team does not
// exist. On any error the returned details are nil, never partial.
func (r *DetailReader) Get(ctx context.Context, teamID string) (*models.TeamDetails, error) {
	team, err := r.source.GetTeam(ctx, teamID)
	if err != nil {
		return nil, &FetchError{Resource: "team", Err: err}
	}
	if team == nil {
		return nil, &NotFoundError{TeamID: teamID}
	}

	events, err := r.source.ListScoreEvents(ctx, teamID)
	if err != nil {
		return nil, &FetchError{Resource: "score_events", Err: err}
	}
	if events == nil {
		events = []models.ScoreEvent{}
	}

	links, err := r.source.ListTeamBadgesByTeam(ctx, teamID)
	if err != nil {
		return nil, &FetchError{Resource: "team_badges", Err: err}
	}

	badges := []models.Badge{}
	if len(links) > 0 {
		ids := make([]string, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.BadgeID)
		}
		found, err := r.source.ListBadgesByIDs(ctx, ids)
		if err != nil {
			return nil, &FetchError{Resource: "badges", Err: err}
		}
		badges = append(badges, found...)
	}

	return &models.TeamDetails{
		Team:        *team,
		ScoreEvents: events,
		Badges:      badges,
	}, nil
}
