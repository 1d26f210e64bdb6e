package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/system-design/soccer-server/internal/game"
	apperrors "github.com/koopa0/system-design/soccer-server/pkg/errors"
)

const insertMatchSQL = `
INSERT INTO matches (room_id, red_score, blue_score, winner, duration_ms, played_at, red_players, blue_players)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const upsertPlayerSQL = `
INSERT INTO player_stats (name, matches, wins, losses, draws, goals_for, goals_against)
VALUES ($1, 1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET
	matches       = player_stats.matches + 1,
	wins          = player_stats.wins + EXCLUDED.wins,
	losses        = player_stats.losses + EXCLUDED.losses,
	draws         = player_stats.draws + EXCLUDED.draws,
	goals_for     = player_stats.goals_for + EXCLUDED.goals_for,
	goals_against = player_stats.goals_against + EXCLUDED.goals_against,
	updated_at    = now()`

const recentMatchesSQL = `
SELECT id, room_id, red_score, blue_score, winner, duration_ms, played_at, red_players, blue_players
FROM matches
ORDER BY played_at DESC, id DESC
LIMIT $1`

const playerStatsSQL = `
SELECT name, matches, wins, losses, draws, goals_for, goals_against
FROM player_stats
WHERE name = $1`

// PostgresHistory 比賽歷史與球員戰績
//
// 一場比賽一個交易：寫入 matches，並以 upsert 累加每位球員的 player_stats。
type PostgresHistory struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresHistory 創建歷史紀錄存儲
func NewPostgresHistory(pool *pgxpool.Pool, logger *slog.Logger) *PostgresHistory {
	return &PostgresHistory{
		pool:   pool,
		logger: logger,
	}
}

// RecordMatch 實作 game.MatchRecorder
func (p *PostgresHistory) RecordMatch(ctx context.Context, result game.MatchResult) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertMatchSQL,
		result.RoomID,
		result.RedScore,
		result.BlueScore,
		string(result.Winner),
		result.Duration.Milliseconds(),
		result.PlayedAt,
		playerNames(result.Red),
		playerNames(result.Blue),
	)
	if err != nil {
		p.logger.Error("寫入比賽紀錄失敗", "room_id", result.RoomID, "error", err)
		return fmt.Errorf("insert match: %w", err)
	}

	batch := &pgx.Batch{}
	for _, d := range matchDeltas(result) {
		batch.Queue(upsertPlayerSQL,
			d.name,
			d.stats.Wins,
			d.stats.Losses,
			d.stats.Draws,
			d.stats.GoalsFor,
			d.stats.GoalsAgainst,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			p.logger.Error("更新球員戰績失敗", "room_id", result.RoomID, "error", err)
			return fmt.Errorf("upsert player stats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentMatches 最近 limit 場比賽，新的在前
func (p *PostgresHistory) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := p.pool.Query(ctx, recentMatchesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	matches := []MatchRecord{}
	for rows.Next() {
		var m MatchRecord
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.RedScore,
			&m.BlueScore,
			&m.Winner,
			&m.DurationMS,
			&m.PlayedAt,
			&m.Red,
			&m.Blue,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// PlayerStats 單一球員的累計戰績
func (p *PostgresHistory) PlayerStats(ctx context.Context, name string) (PlayerStats, error) {
	var s PlayerStats
	err := p.pool.QueryRow(ctx, playerStatsSQL, name).Scan(
		&s.Name,
		&s.Matches,
		&s.Wins,
		&s.Losses,
		&s.Draws,
		&s.GoalsFor,
		&s.GoalsAgainst,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerStats{}, apperrors.ErrPlayerNotFound.WithDetails(name)
	}
	if err != nil {
		return PlayerStats{}, fmt.Errorf("query player stats: %w", err)
	}
	s.Score = RankingScore(s)
	return s, nil
}
