package game

import "time"

// balanceTeams 兩隊人數差超過 1 時，把大隊最後加入的球員移到小隊。
// 每次只移動一人。
func (r *Room) balanceTeams() {
	red, blue := len(r.teams.Red), len(r.teams.Blue)
	if red-blue <= 1 && blue-red <= 1 {
		return
	}

	from := TeamRed
	if blue > red {
		from = TeamBlue
	}
	to := from.Opponent()

	id, ok := r.teams.popTail(from)
	if !ok {
		return
	}
	r.teams.add(to, id)

	p, ok := r.players[id]
	if !ok {
		return
	}
	p.Team = to
	r.respawn(p)

	r.logger.Info("隊伍平衡", "session_id", id, "from", from, "to", to)

	r.sink.SendToSession(id, TopicTeamChanged, TeamChangedEvent{
		NewTeam:   to,
		GameState: r.buildGameState(),
	})
}

// startNewMatch 開始新比賽：清空準備名單、比分歸零、重置時鐘與球、球員回出生點
func (r *Room) startNewMatch() {
	r.isPlaying = true
	r.waitingForRestart = false
	clear(r.playersReady)
	r.score = Score{}
	r.matchTime = r.cfg.MatchDuration
	r.matchStartedAt = r.now()
	r.resetBall()

	for _, p := range r.players {
		r.respawn(p)
	}

	r.logger.Info("比賽開始", "red", len(r.teams.Red), "blue", len(r.teams.Blue))

	r.broadcast(TopicCleanPreviousMatch, CleanPreviousMatchEvent{})
	r.broadcast(TopicMatchStart, MatchStartEvent{
		GameState: r.buildGameState(),
		CanMove:   true,
	})
}

// CheckRestartConditions 重新評估是否該開始比賽
func (r *Room) CheckRestartConditions() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.checkRestartConditions()
}

// checkRestartConditions 每次加入與離開後執行。
//
//   - 等待重開且有人不在準備名單 → 有新玩家加入，直接開新局
//   - 等待重開且全員已準備 → 開新局
//   - 既不在比賽也不在等待重開 → 第一次湊齊兩隊，開局
//   - 任一隊沒人 → 停止比賽並廣播 waitingForPlayers
func (r *Room) checkRestartConditions() {
	r.balanceTeams()

	for id := range r.playersReady {
		if !r.teams.Contains(id) {
			delete(r.playersReady, id)
		}
	}

	if !r.teams.BothNonEmpty() {
		r.isPlaying = false
		r.broadcast(TopicWaitingForPlayers, WaitingForPlayersEvent{
			RedCount:  len(r.teams.Red),
			BlueCount: len(r.teams.Blue),
		})
		return
	}

	switch {
	case r.waitingForRestart:
		// 清理後準備名單是全員的子集：不是有人尚未準備（新玩家），
		// 就是全員已準備，兩種情況都開新局
		if len(r.playersReady) < len(r.teams.Red)+len(r.teams.Blue) {
			r.logger.Info("新玩家加入，直接開始新比賽")
		}
		r.startNewMatch()
	case !r.isPlaying:
		r.startNewMatch()
	}
}

// TickTimer 比賽時鐘走一秒，比賽未進行時不做事
func (r *Room) TickTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.isPlaying {
		return
	}

	r.matchTime--
	if r.matchTime <= 0 {
		r.endMatch()
	}

	r.broadcast(TopicTimerUpdate, TimerUpdateEvent{MatchTime: r.matchTime})
}

func (r *Room) endMatch() {
	r.matchTime = 0
	r.isPlaying = false
	r.waitingForRestart = true
	winner := r.score.Winner()

	result := r.buildResult(winner)

	for _, p := range r.players {
		p.X, p.Y = OffField, OffField
		p.Input = PlayerInput{}
	}

	r.logger.Info("比賽結束",
		"winner", winner,
		"score_red", r.score.Red,
		"score_blue", r.score.Blue)

	r.broadcast(TopicMatchEnd, MatchEndEvent{
		Winner:    winner,
		GameState: r.buildGameState(),
	})

	if r.onResult != nil {
		r.onResult(result)
	}
}

func (r *Room) buildResult(winner Outcome) MatchResult {
	now := r.now()
	result := MatchResult{
		RoomID:    r.id,
		RedScore:  r.score.Red,
		BlueScore: r.score.Blue,
		Winner:    winner,
		PlayedAt:  now,
	}
	if !r.matchStartedAt.IsZero() {
		result.Duration = now.Sub(r.matchStartedAt).Round(time.Second)
	}

	result.Red = r.playerRefs(r.teams.Red)
	result.Blue = r.playerRefs(r.teams.Blue)
	return result
}

func (r *Room) playerRefs(ids []SessionID) []PlayerRef {
	refs := make([]PlayerRef, 0, len(ids))
	for _, id := range ids {
		ref := PlayerRef{SessionID: id}
		if p, ok := r.players[id]; ok {
			ref.Name = p.Name
		}
		refs = append(refs, ref)
	}
	return refs
}

// requestRestart 賽後準備，只在等待重開時有效
func (r *Room) requestRestart(id SessionID) {
	if r.closed || !r.waitingForRestart {
		return
	}
	p, ok := r.players[id]
	if !ok {
		return
	}

	r.playersReady[id] = struct{}{}
	r.respawn(p)

	all := r.teams.All()
	allReady := len(all) > 0
	for _, pid := range all {
		if _, ok := r.playersReady[pid]; !ok {
			allReady = false
			break
		}
	}

	r.logger.Info("玩家已準備", "session_id", id, "ready", len(r.playersReady), "total", len(all))

	if allReady {
		if r.teams.BothNonEmpty() {
			r.startNewMatch()
		} else {
			r.broadcast(TopicWaitingForOpponent, WaitingForOpponentEvent{})
		}
	}

	r.broadcast(TopicPlayerReadyUpdate, PlayerReadyUpdateEvent{
		Players:      r.copyPlayers(),
		ReadyCount:   len(r.playersReady),
		TotalPlayers: len(all),
		CanMove:      false,
	})
}
