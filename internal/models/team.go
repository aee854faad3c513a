package models

import (
	"time"
)

// Team represents a hackathon team as persisted
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	LogoURL     *string   `json:"logo_url"`
	TotalPoints int       `json:"total_points"`
	Level       int       `json:"level"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScoreEvent is an append-only points adjustment for a team
type ScoreEvent struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamDetails is the drill-down view of a single team
type TeamDetails struct {
	Team
	ScoreEvents []ScoreEvent `json:"scoreEvents"`
	Badges      []Badge      `json:"badges"`
}

// CreateTeamRequest represents a request to create a team
type CreateTeamRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
	LogoURL     string `json:"logo_url,omitempty" validate:"omitempty,http_url"`
}

// ScoreEventRequest represents a request to award or deduct points
type ScoreEventRequest struct {
	Points int    `json:"points" validate:"required,min=-10000,max=10000"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// AwardBadgeRequest represents a request to link a badge to a team
type AwardBadgeRequest struct {
	BadgeID string `json:"badge_id" validate:"required"`
}
