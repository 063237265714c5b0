package game

import (
	"sort"

	"github.com/samber/lo"

	"live-quiz-service/internal/protocol"
)

// Leaderboard ranks players by cumulative score, highest first. Ties order by
// join order, earliest joiner first, so the ranking is deterministic.
func Leaderboard(players map[string]*Player) []protocol.LeaderboardEntry {
	ranked := lo.Values(players)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].JoinOrder < ranked[j].JoinOrder
	})

	return lo.Map(ranked, func(p *Player, _ int) protocol.LeaderboardEntry {
		return protocol.LeaderboardEntry{Name: p.Name, Score: p.Score}
	})
}
