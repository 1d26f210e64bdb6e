package game

import (
	"time"

	"github.com/koopa0/system-design/soccer-server/internal/physics"
)

// Tick 推進一步物理模擬，比賽未進行時不做事。
//
// 步驟順序固定：球員移動 → 球員與球碰撞 → 球移動與摩擦 → 牆與切角
// → 進球判定 → 出界保護 → 廣播 update。後面的步驟會看到前面的修正。
func (r *Room) Tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.isPlaying {
		return
	}
	r.step(now)
}

func (r *Room) step(now time.Time) {
	w, h := r.cfg.Width, r.cfg.Height

	for _, p := range r.players {
		v := p.Input.Velocity(PlayerSpeed)
		p.X = physics.Clamp(p.X+v.X, PlayerRadius, w-PlayerRadius)
		p.Y = physics.Clamp(p.Y+v.Y, PlayerRadius, h-PlayerRadius)
	}

	// 多名球員同時碰到球時，最後處理的那一位生效
	for _, p := range r.players {
		physics.Kick(&r.ball, p.Position(), PlayerRadius, p.Input.Velocity(PlayerSpeed), KickSpeed)
	}

	r.ball.Integrate()
	r.ball.ApplyFriction(BallFriction)

	physics.ReflectWalls(&r.ball, w, h, WallDamping)
	physics.ResolveCorners(&r.ball, r.corners, CornerDamping)

	if !r.ballResetInProgress && now.Sub(r.lastGoalTime) > r.cfg.GoalCooldown {
		if team, ok := r.detectGoal(); ok {
			r.scoreGoal(team, now)
		}
	}

	if !r.ballResetInProgress && (r.ball.X < 0 || r.ball.X > w) {
		r.logger.Warn("球出界，強制重置", "x", r.ball.X, "y", r.ball.Y)
		r.resetBall()
	}

	r.broadcast(TopicUpdate, UpdateEvent{
		Players:   r.copyPlayers(),
		Ball:      r.ball,
		Score:     r.score,
		MatchTime: r.matchTime,
		IsPlaying: r.isPlaying,
		Teams:     r.teams.clone(),
		RoomID:    r.id,
	})
}

// detectGoal 返回得分的隊伍。左側球門是藍隊得分，右側是紅隊得分，
// 邊界值（x 恰等於球門深度、y 恰在球門上下緣）不算進球。
func (r *Room) detectGoal() (Team, bool) {
	top := r.cfg.Height/2 - GoalHeight/2
	bottom := r.cfg.Height/2 + GoalHeight/2
	if r.ball.Y <= top || r.ball.Y >= bottom {
		return 0, false
	}

	switch {
	case r.ball.X < GoalWidth:
		return TeamBlue, true
	case r.ball.X > r.cfg.Width-GoalWidth:
		return TeamRed, true
	default:
		return 0, false
	}
}

func (r *Room) scoreGoal(team Team, now time.Time) {
	r.score.add(team)
	r.lastGoalTime = now
	r.ballResetInProgress = true

	r.logger.Info("進球",
		"team", team,
		"score_red", r.score.Red,
		"score_blue", r.score.Blue)

	r.broadcast(TopicGoalScored, GoalScoredEvent{Team: team})
	r.scheduleBallReset()
}
