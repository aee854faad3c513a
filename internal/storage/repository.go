package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

var (
	// ErrNotFound is returned by writes that target a missing row
	ErrNotFound = errors.New("not found")
	// ErrAlreadyAwarded is returned when a team already holds the badge
	ErrAlreadyAwarded = errors.New("badge already awarded")
)

// Repository defines the interface for leaderboard persistence.
// Single-row getters return nil, nil when the row does not exist.
type Repository interface {
	// Teams
	ListTeams(ctx context.Context) ([]models.Team, error)
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	CreateTeam(ctx context.Context, team *models.Team) error
	DeleteTeam(ctx context.Context, id string) error

	// Score events
	CreateScoreEvent(ctx context.Context, ev *models.ScoreEvent) error
	ListScoreEvents(ctx context.Context, teamID string) ([]models.ScoreEvent, error)

	// Badges
	ListBadges(ctx context.Context) ([]models.Badge, error)
	ListBadgesByIDs(ctx context.Context, ids []string) ([]models.Badge, error)
	UpsertBadge(ctx context.Context, badge *models.Badge) error
	ListTeamBadges(ctx context.Context) ([]models.TeamBadge, error)
	ListTeamBadgesByTeam(ctx context.Context, teamID string) ([]models.TeamBadge, error)
	AwardBadge(ctx context.Context, tb *models.TeamBadge) error

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
