package game

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/koopa0/system-design/soccer-server/internal/physics"
)

// 系統設計問題：
//   多個房間同時比賽，網路事件（加入、離開、輸入、準備）與兩個排程器
//   （物理 tick、比賽計時）會並發修改同一個房間，如何保持狀態一致？
//
// 設計方案：
//   ✅ 每個房間一把 Mutex，所有狀態欄位只在持鎖時讀寫
//   ✅ 事件在持鎖時送出，同一房間的事件順序與 tick 順序一致
//   ✅ 進球後的延遲重置是每房間唯一的計時器，附帶世代編號
//   ✅ 房間被移除後標記 closed，遲到的計時器與請求都成為 no-op

// RoomState 由房間欄位推導出的比賽狀態
type RoomState string

const (
	StateEmpty             RoomState = "empty"
	StateWaitingForPlayers RoomState = "waiting_for_players"
	StatePlaying           RoomState = "playing"
	StateWaitingForRestart RoomState = "waiting_for_restart"
)

// RoomConfig 房間參數
type RoomConfig struct {
	Width         float64
	Height        float64
	Capacity      int
	MatchDuration int // 秒
	GoalCooldown  time.Duration
}

// DefaultRoomConfig 標準球場
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		Width:         FieldWidth,
		Height:        FieldHeight,
		Capacity:      RoomCapacity,
		MatchDuration: MatchDuration,
		GoalCooldown:  GoalCooldown,
	}
}

// scheduleFunc 在 d 之後執行 f，返回取消函式
type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Room 一場獨立的比賽
type Room struct {
	id      string
	seq     uint64 // 建立順序，分配房間時優先選較早的
	cfg     RoomConfig
	corners []physics.Corner

	mu                  sync.Mutex
	players             map[SessionID]*Player
	ball                physics.Ball
	score               Score
	teams               Teams
	matchTime           int
	isPlaying           bool
	ballResetInProgress bool
	lastGoalTime        time.Time
	waitingForRestart   bool
	playersReady        map[SessionID]struct{}
	matchStartedAt      time.Time
	closed              bool

	stopReset func() bool // 待執行的延遲重置
	resetGen  uint64

	schedule scheduleFunc
	now      func() time.Time
	rng      *rand.Rand
	sink     EventSink
	onResult func(MatchResult)
	logger   *slog.Logger
}

// NewRoom 創建新房間
func NewRoom(id string, cfg RoomConfig, sink EventSink, logger *slog.Logger) *Room {
	if sink == nil {
		sink = NopSink{}
	}
	return &Room{
		id:           id,
		cfg:          cfg,
		corners:      physics.Corners(cfg.Width, cfg.Height, CornerSize),
		players:      make(map[SessionID]*Player),
		ball:         physics.Ball{X: cfg.Width / 2, Y: cfg.Height / 2, Radius: BallRadius},
		matchTime:    cfg.MatchDuration,
		playersReady: make(map[SessionID]struct{}),
		schedule:     afterFunc,
		now:          time.Now,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sink:         sink,
		logger:       logger.With("room_id", id),
	}
}

// ID 房間 ID
func (r *Room) ID() string { return r.id }

// Capacity 房間容量
func (r *Room) Capacity() int { return r.cfg.Capacity }

// PlayerCount 目前人數
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// State 目前比賽狀態
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Room) stateLocked() RoomState {
	switch {
	case len(r.players) == 0:
		return StateEmpty
	case r.isPlaying:
		return StatePlaying
	case r.waitingForRestart:
		return StateWaitingForRestart
	default:
		return StateWaitingForPlayers
	}
}

// Snapshot 房間快照
func (r *Room) Snapshot() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildGameState()
}

// RoomInfo 房間列表用的摘要
type RoomInfo struct {
	RoomID            string    `json:"room_id"`
	Players           int       `json:"players"`
	Capacity          int       `json:"capacity"`
	Red               int       `json:"red"`
	Blue              int       `json:"blue"`
	IsPlaying         bool      `json:"is_playing"`
	WaitingForRestart bool      `json:"waiting_for_restart"`
	MatchTime         int       `json:"match_time"`
	Score             Score     `json:"score"`
	State             RoomState `json:"state"`
}

// Info 房間摘要
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		RoomID:            r.id,
		Players:           len(r.players),
		Capacity:          r.cfg.Capacity,
		Red:               len(r.teams.Red),
		Blue:              len(r.teams.Blue),
		IsPlaying:         r.isPlaying,
		WaitingForRestart: r.waitingForRestart,
		MatchTime:         r.matchTime,
		Score:             r.score,
		State:             r.stateLocked(),
	}
}

// Close 標記房間已移除並取消待執行的重置
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelPendingReset()
}

func (r *Room) buildGameState() GameState {
	return GameState{
		Width:     r.cfg.Width,
		Height:    r.cfg.Height,
		Players:   r.copyPlayers(),
		Ball:      r.ball,
		Score:     r.score,
		Teams:     r.teams.clone(),
		MatchTime: r.matchTime,
		IsPlaying: r.isPlaying,
		RoomID:    r.id,
	}
}

func (r *Room) copyPlayers() map[SessionID]Player {
	players := make(map[SessionID]Player, len(r.players))
	for id, p := range r.players {
		players[id] = *p
	}
	return players
}

func (r *Room) spawnPoint(team Team) physics.Point {
	x := SpawnOffset
	if team == TeamBlue {
		x = r.cfg.Width - SpawnOffset
	}
	return physics.Point{X: x, Y: r.cfg.Height / 2}
}

func (r *Room) respawn(p *Player) {
	pos := r.spawnPoint(p.Team)
	p.X, p.Y = pos.X, pos.Y
}

func (r *Room) broadcast(topic string, payload any) {
	r.sink.BroadcastToRoom(r.id, topic, payload)
}

// join 分配隊伍並建立球員。呼叫端已檢查過容量。
func (r *Room) join(id SessionID, name string) Allocation {
	team := TeamRed
	if len(r.teams.Red) > len(r.teams.Blue) {
		team = TeamBlue
	}

	r.teams.add(team, id)
	p := &Player{Team: team, Name: r.displayName(name)}
	r.respawn(p)
	r.players[id] = p

	r.logger.Info("玩家加入房間", "session_id", id, "team", team, "name", p.Name)

	r.sink.SendToSession(id, TopicRoomAssigned, RoomAssignedEvent{
		RoomID:   r.id,
		Capacity: r.cfg.Capacity,
		Players:  len(r.players),
	})
	r.sink.SendToSession(id, TopicInit, InitEvent{
		Team:      team,
		GameState: r.buildGameState(),
		CanMove:   r.isPlaying && r.teams.BothNonEmpty(),
		RoomID:    r.id,
	})

	r.checkRestartConditions()

	return Allocation{
		RoomID:   r.id,
		Team:     team,
		Name:     p.Name,
		Capacity: r.cfg.Capacity,
		Players:  len(r.players),
	}
}

// leave 移除球員，返回房間是否已空
func (r *Room) leave(id SessionID) bool {
	if _, ok := r.players[id]; ok {
		delete(r.players, id)
		r.teams.remove(id)
		delete(r.playersReady, id)

		r.logger.Info("玩家離開房間", "session_id", id)

		r.broadcast(TopicPlayerDisconnected, PlayerDisconnectedEvent{
			PlayerID:  id,
			GameState: r.buildGameState(),
		})
		r.checkRestartConditions()
	}
	return len(r.players) == 0
}

// setInput 只在比賽進行中接受輸入
func (r *Room) setInput(id SessionID, input PlayerInput) {
	if r.closed || !r.isPlaying {
		return
	}
	if p, ok := r.players[id]; ok {
		p.Input = input
	}
}

const guestPrefix = "Guest "

const maxNameLength = 24

// displayName 清理顯示名稱，空白時給 "Guest N"
func (r *Room) displayName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	if name != "" {
		return name
	}

	guests := 0
	for _, p := range r.players {
		if strings.HasPrefix(p.Name, guestPrefix) {
			guests++
		}
	}
	return fmt.Sprintf("%s%d", guestPrefix, guests+1)
}
