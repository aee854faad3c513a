// Package admin implements the validated write operations behind the admin
// API. Writes go straight to the datastore; the leaderboard picks them up
// through the change feed.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
	"github.com/terra-clan/hackathon-leaderboard/internal/storage"
)

// Limits applied to admin input. The request struct tags in models carry
// the same values.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxReasonLength      = 500
	MaxPointsDelta       = 10000
)

// Store is the subset of storage.Repository the admin service writes through
type Store interface {
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	CreateTeam(ctx context.Context, team *models.Team) error
	DeleteTeam(ctx context.Context, id string) error
	CreateScoreEvent(ctx context.Context, ev *models.ScoreEvent) error
	ListBadgesByIDs(ctx context.Context, ids []string) ([]models.Badge, error)
	AwardBadge(ctx context.Context, tb *models.TeamBadge) error
}

// Service performs admin writes
type Service struct {
	store     Store
	publisher changefeed.Publisher
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService creates an admin service. publisher may be nil when database
// triggers already announce every write.
func NewService(store Store, publisher changefeed.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		validator: newValidator(),
		logger:    logger,
	}
}

// CreateTeam validates and inserts a new team with zero points
func (s *Service) CreateTeam(ctx context.Context, req models.CreateTeamRequest) (*models.Team, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.LogoURL = strings.TrimSpace(req.LogoURL)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	team := &models.Team{Name: req.Name}
	if req.Description != "" {
		team.Description = &req.Description
	}
	if req.LogoURL != "" {
		team.LogoURL = &req.LogoURL
	}

	if err := s.store.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	s.logger.Info("team created", "team_id", team.ID, "name", team.Name)
	s.publish(ctx, changefeed.TopicTeams, "INSERT")

	return team, nil
}

// AddScore appends a score event. Positive points award, negative deduct.
func (s *Service) AddScore(ctx context.Context, teamID string, req models.ScoreEventRequest) (*models.ScoreEvent, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if _, err := s.getTeam(ctx, teamID); err != nil {
		return nil, err
	}

	ev := &models.ScoreEvent{TeamID: teamID, Points: req.Points, Reason: req.Reason}
	if err := s.store.CreateScoreEvent(ctx, ev); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to add score: %w", err)
	}

	s.logger.Info("score event added", "team_id", teamID, "points", ev.Points, "reason", ev.Reason)
	s.publish(ctx, changefeed.TopicScoreEvents, "INSERT")

	return ev, nil
}

// DeleteTeam removes a team with its score history and badges
func (s *Service) DeleteTeam(ctx context.Context, teamID string) error {
	if err := s.store.DeleteTeam(ctx, teamID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to delete team: %w", err)
	}

	s.logger.Info("team deleted", "team_id", teamID)
	s.publish(ctx, changefeed.TopicTeams, "DELETE")

	return nil
}

// AwardBadge links a catalog badge to a team
func (s *Service) AwardBadge(ctx context.Context, teamID string, req models.AwardBadgeRequest) (*models.TeamBadge, error) {
	req.BadgeID = strings.TrimSpace(req.BadgeID)
	if err := s.validate(req); err != nil {
		return nil, err
	}
	badgeID := req.BadgeID

	if _, err := s.getTeam(ctx, teamID); err != nil {
		return nil, err
	}

	found, err := s.store.ListBadgesByIDs(ctx, []string{badgeID})
	if err != nil {
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrBadgeNotFound
	}

	tb := &models.TeamBadge{TeamID: teamID, BadgeID: badgeID}
	if err := s.store.AwardBadge(ctx, tb); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyAwarded):
			return nil, ErrAlreadyAwarded
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to award badge: %w", err)
	}

	s.logger.Info("badge awarded", "team_id", teamID, "badge_id", badgeID)
	s.publish(ctx, changefeed.TopicTeamBadges, "INSERT")

	return tb, nil
}

func (s *Service) getTeam(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	if team == nil {
		return nil, ErrTeamNotFound
	}
	return team, nil
}

// publish announces a committed write. A failure only delays the refresh
// until the next change, so it is logged and not returned.
func (s *Service) publish(ctx context.Context, topic changefeed.Topic, operation string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, operation); err != nil {
		s.logger.Warn("failed to publish change", "topic", string(topic), "error", err)
	}
}
