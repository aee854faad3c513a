package models

import (
	"strings"
	"time"
)

// Admin permissions
const (
	PermTeamsWrite       = "teams:write"
	PermScoresWrite      = "scores:write"
	PermBadgesWrite      = "badges:write"
	PermLeaderboardWrite = "leaderboard:write"
)

// ApiClient is an admin credential allowed to mutate the leaderboard
type ApiClient struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	ApiKey      string     `json:"-"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Permissions []string   `json:"permissions"`
}

// HasPermission checks if the client holds the permission.
// "teams:*" grants every teams permission and "*" grants everything.
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		if perm == "*" || perm == required {
			return true
		}
		if prefix, ok := strings.CutSuffix(perm, "*"); ok && strings.HasSuffix(prefix, ":") {
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}

	return false
}

// MaskedApiKey returns first 8 characters of API key for logging
func (c *ApiClient) MaskedApiKey() string {
	if len(c.ApiKey) < 8 {
		return "***"
	}
	return c.ApiKey[:8] + "..."
}
