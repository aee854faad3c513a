package models

import (
	"time"
)

// BadgeCriteriaType names the rule a badge is meant to reward
type BadgeCriteriaType string

const (
	CriteriaTopPosition     BadgeCriteriaType = "TOP_POSITION"
	CriteriaFastProgress    BadgeCriteriaType = "FAST_PROGRESS"
	CriteriaMostImproved    BadgeCriteriaType = "MOST_IMPROVED"
	CriteriaStreak          BadgeCriteriaType = "STREAK"
	CriteriaPointsMilestone BadgeCriteriaType = "POINTS_MILESTONE"
)

// Valid returns true if the criteria type is one of the known values
func (c BadgeCriteriaType) Valid() bool {
	switch c {
	case CriteriaTopPosition, CriteriaFastProgress, CriteriaMostImproved, CriteriaStreak, CriteriaPointsMilestone:
		return true
	}
	return false
}

// Badge is an achievement that can be awarded to teams
type Badge struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description" json:"description"`
	Icon          string            `yaml:"icon" json:"icon"`
	CriteriaType  BadgeCriteriaType `yaml:"criteria_type" json:"criteria_type"`
	CriteriaValue int               `yaml:"criteria_value" json:"criteria_value"`
	CreatedAt     time.Time         `yaml:"-" json:"created_at"`
}

// TeamBadge links a badge to a team
type TeamBadge struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	BadgeID   string    `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}
