// Package store 保存比賽結果：Redis 排行榜與 PostgreSQL 歷史紀錄。
//
// 兩者都實作 game.MatchRecorder，由 game.AsyncRecorder 在背景呼叫，
// 不會出現在房間鎖的路徑上。
package store

import (
	"time"

	"github.com/koopa0/system-design/soccer-server/internal/game"
)

// 排名分數的權重：勝場 > 淨勝球 > 進球
const (
	winWeight      = 1e9
	goalDiffWeight = 1e4
	goalWeight     = 1
)

// PlayerStats 以顯示名稱為鍵的累計戰績
type PlayerStats struct {
	Name         string  `json:"name"`
	Matches      int     `json:"matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	GoalsFor     int     `json:"goals_for"`
	GoalsAgainst int     `json:"goals_against"`
	Score        float64 `json:"score"`
}

// GoalDiff 淨勝球
func (s PlayerStats) GoalDiff() int { return s.GoalsFor - s.GoalsAgainst }

// RankingScore 排名分數 wins·1e9 + goalDiff·1e4 + goalsFor。
// 對戰績是線性的，所以單場增量可以直接累加。
func RankingScore(s PlayerStats) float64 {
	return float64(s.Wins)*winWeight + float64(s.GoalDiff())*goalDiffWeight + float64(s.GoalsFor)*goalWeight
}

// MatchRecord 歷史紀錄中的一場比賽
type MatchRecord struct {
	ID         int64     `json:"id"`
	RoomID     string    `json:"room_id"`
	RedScore   int       `json:"red_score"`
	BlueScore  int       `json:"blue_score"`
	Winner     string    `json:"winner"`
	DurationMS int64     `json:"duration_ms"`
	PlayedAt   time.Time `json:"played_at"`
	Red        []string  `json:"red"`
	Blue       []string  `json:"blue"`
}

// playerDelta 一場比賽對單一球員戰績的增量
type playerDelta struct {
	name  string
	stats PlayerStats
}

// matchDeltas 展開一場比賽的所有球員增量，紅隊在前
func matchDeltas(result game.MatchResult) []playerDelta {
	deltas := make([]playerDelta, 0, len(result.Red)+len(result.Blue))
	for _, team := range []game.Team{game.TeamRed, game.TeamBlue} {
		refs := result.Red
		if team == game.TeamBlue {
			refs = result.Blue
		}

		d := PlayerStats{
			Matches:      1,
			GoalsFor:     result.GoalsFor(team),
			GoalsAgainst: result.GoalsFor(team.Opponent()),
		}
		switch result.OutcomeFor(team) {
		case "win":
			d.Wins = 1
		case "loss":
			d.Losses = 1
		default:
			d.Draws = 1
		}

		for _, ref := range refs {
			delta := d
			delta.Name = ref.Name
			deltas = append(deltas, playerDelta{name: ref.Name, stats: delta})
		}
	}
	return deltas
}

func playerNames(refs []game.PlayerRef) []string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}
