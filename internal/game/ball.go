package game

import "github.com/koopa0/system-design/soccer-server/internal/physics"

// resetBall 把球放回中央三分之一區域內的隨機位置，速度歸零
func (r *Room) resetBall() {
	r.cancelPendingReset()

	w, h := r.cfg.Width, r.cfg.Height
	minX, maxX := w/2-w/6, w/2+w/6
	minY, maxY := h/2-h/6, h/2+h/6

	r.ball = physics.Ball{
		X:      minX + r.rng.Float64()*(maxX-minX),
		Y:      minY + r.rng.Float64()*(maxY-minY),
		Radius: BallRadius,
	}
	r.ballResetInProgress = false

	r.broadcast(TopicBallReset, BallResetEvent{Ball: r.ball})
}

// scheduleBallReset 進球後延遲 GoalCooldown 再重置，每個房間最多一個待執行
func (r *Room) scheduleBallReset() {
	r.cancelPendingReset()
	gen := r.resetGen
	r.stopReset = r.schedule(r.cfg.GoalCooldown, func() {
		r.fireBallReset(gen)
	})
}

// cancelPendingReset 取消待執行的重置並推進世代，已觸發但還在等鎖的
// 回呼會因為世代不符而放棄
func (r *Room) cancelPendingReset() {
	if r.stopReset != nil {
		r.stopReset()
		r.stopReset = nil
	}
	r.resetGen++
}

func (r *Room) fireBallReset(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || gen != r.resetGen || !r.ballResetInProgress {
		return
	}
	r.stopReset = nil
	r.resetBall()
}
