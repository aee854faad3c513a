package models

import (
	"time"
)

// LeaderboardEntry is a team enriched with its computed position.
// Entries are rebuilt on every aggregation pass and never patched in place.
type LeaderboardEntry struct {
	Team
	Badges             []Badge `json:"badges"`
	Rank               int     `json:"rank"`
	PreviousRank       *int    `json:"previousRank,omitempty"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// RankChange returns how many places the team moved up since the previous
// snapshot (negative when it dropped, 0 when there is no previous rank)
func (e *LeaderboardEntry) RankChange() int {
	if e.PreviousRank == nil {
		return 0
	}
	return *e.PreviousRank - e.Rank
}

// Snapshot is the published state of the live leaderboard
type Snapshot struct {
	Entries    []LeaderboardEntry `json:"entries"`
	Badges     []Badge            `json:"badges"`
	Loading    bool               `json:"loading"`
	Error      string             `json:"error,omitempty"`
	Err        error              `json:"-"`
	Live       bool               `json:"live"`
	Generation uint64             `json:"generation"`
	UpdatedAt  *time.Time         `json:"updated_at,omitempty"`
}
