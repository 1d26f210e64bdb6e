package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/soccer-server/internal/game"
)

// Hash 欄位
const (
	fieldMatches      = "matches"
	fieldWins         = "wins"
	fieldLosses       = "losses"
	fieldDraws        = "draws"
	fieldGoalsFor     = "goals_for"
	fieldGoalsAgainst = "goals_against"
)

// RedisRanking 排行榜
//
// 資料結構：
//   - ZSET <key>：member 為顯示名稱，score 為 RankingScore
//   - HASH <key>:player:<name>：累計戰績
//
// 分數對戰績是線性的，每場比賽用 ZINCRBY 加上增量即可，
// 所有寫入放在同一個 MULTI/EXEC 內。
type RedisRanking struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisRanking 創建排行榜
func NewRedisRanking(client *redis.Client, key string, logger *slog.Logger) *RedisRanking {
	return &RedisRanking{
		client: client,
		key:    key,
		logger: logger,
	}
}

func (r *RedisRanking) playerKey(name string) string {
	return fmt.Sprintf("%s:player:%s", r.key, name)
}

// RecordMatch 實作 game.MatchRecorder
func (r *RedisRanking) RecordMatch(ctx context.Context, result game.MatchResult) error {
	deltas := matchDeltas(result)
	if len(deltas) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, d := range deltas {
		key := r.playerKey(d.name)
		pipe.HIncrBy(ctx, key, fieldMatches, int64(d.stats.Matches))
		pipe.HIncrBy(ctx, key, fieldWins, int64(d.stats.Wins))
		pipe.HIncrBy(ctx, key, fieldLosses, int64(d.stats.Losses))
		pipe.HIncrBy(ctx, key, fieldDraws, int64(d.stats.Draws))
		pipe.HIncrBy(ctx, key, fieldGoalsFor, int64(d.stats.GoalsFor))
		pipe.HIncrBy(ctx, key, fieldGoalsAgainst, int64(d.stats.GoalsAgainst))
		pipe.ZIncrBy(ctx, r.key, RankingScore(d.stats), d.name)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("更新排行榜失敗", "room_id", result.RoomID, "error", err)
		return fmt.Errorf("update ranking: %w", err)
	}

	r.logger.Debug("排行榜已更新", "room_id", result.RoomID, "players", len(deltas))
	return nil
}

// Top 分數最高的 limit 位球員
func (r *RedisRanking) Top(ctx context.Context, limit int) ([]PlayerStats, error) {
	if limit <= 0 {
		return []PlayerStats{}, nil
	}

	entries, err := r.client.ZRevRangeWithScores(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read ranking: %w", err)
	}
	if len(entries) == 0 {
		return []PlayerStats{}, nil
	}

	// 使用 pipeline 批量讀取戰績
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(entries))
	for i, z := range entries {
		cmds[i] = pipe.HGetAll(ctx, r.playerKey(fmt.Sprint(z.Member)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read player stats: %w", err)
	}

	result := make([]PlayerStats, 0, len(entries))
	for i, z := range entries {
		stats := parseStats(fmt.Sprint(z.Member), cmds[i].Val())
		stats.Score = z.Score
		result = append(result, stats)
	}
	return result, nil
}

// parseStats 無法解析的欄位視為 0
func parseStats(name string, fields map[string]string) PlayerStats {
	get := func(field string) int {
		n, _ := strconv.Atoi(fields[field])
		return n
	}
	return PlayerStats{
		Name:         name,
		Matches:      get(fieldMatches),
		Wins:         get(fieldWins),
		Losses:       get(fieldLosses),
		Draws:        get(fieldDraws),
		GoalsFor:     get(fieldGoalsFor),
		GoalsAgainst: get(fieldGoalsAgainst),
	}
}
