// Package ranking turns raw team, badge and team-badge rows into the ranked
// leaderboard view.
package ranking

import (
	"cmp"
	"slices"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

// emptyMaxPoints is used as the progress denominator when there are no teams
const emptyMaxPoints = 100

// RankMemory maps a team id to the rank it held in the last applied pass.
// It is replaced wholesale after every pass and never mutated in place.
type RankMemory map[string]int

// Aggregate sorts teams by total points (descending, ties broken by ascending
// team id), assigns dense 1-based ranks, resolves badges and looks up the
// previous rank of every team in memory.
//
// It returns the entries together with the rank memory for the next pass,
// which holds exactly the teams present in this pass. Input slices and the
// given memory are not modified. Team badges pointing at unknown badges are
// dropped.
func Aggregate(teams []models.Team, badges []models.Badge, teamBadges []models.TeamBadge, memory RankMemory) ([]models.LeaderboardEntry, RankMemory) {
	sorted := slices.Clone(teams)
	slices.SortStableFunc(sorted, compareTeams)

	maxPoints := emptyMaxPoints
	if len(sorted) > 0 {
		maxPoints = sorted[0].TotalPoints
	}

	badgeByID := make(map[string]models.Badge, len(badges))
	for _, b := range badges {
		badgeByID[b.ID] = b
	}
	badgeIDsByTeam := make(map[string][]string)
	for _, tb := range teamBadges {
		badgeIDsByTeam[tb.TeamID] = append(badgeIDsByTeam[tb.TeamID], tb.BadgeID)
	}

	entries := make([]models.LeaderboardEntry, 0, len(sorted))
	next := make(RankMemory, len(sorted))

	for i, team := range sorted {
		rank := i + 1

		entry := models.LeaderboardEntry{
			Team:   team,
			Badges: resolveBadges(badgeIDsByTeam[team.ID], badgeByID),
			Rank:   rank,
		}
		if prev, ok := memory[team.ID]; ok {
			entry.PreviousRank = &prev
		}
		if maxPoints > 0 {
			entry.ProgressPercentage = float64(team.TotalPoints) / float64(maxPoints) * 100
		}

		entries = append(entries, entry)
		next[team.ID] = rank
	}

	return entries, next
}

func compareTeams(a, b models.Team) int {
	if a.TotalPoints != b.TotalPoints {
		return cmp.Compare(b.TotalPoints, a.TotalPoints)
	}
	return cmp.Compare(a.ID, b.ID)
}

// resolveBadges keeps the order of the team badge rows and drops unknown and
// repeated ids
func resolveBadges(ids []string, badgeByID map[string]models.Badge) []models.Badge {
	out := make([]models.Badge, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if b, ok := badgeByID[id]; ok {
			out = append(out, b)
		}
	}
	return out
}
