package game

import "github.com/koopa0/system-design/soccer-server/internal/physics"

// 房間廣播主題
const (
	TopicBallReset          = "ballReset"
	TopicGoalScored         = "goalScored"
	TopicUpdate             = "update"
	TopicCleanPreviousMatch = "cleanPreviousMatch"
	TopicMatchStart         = "matchStart"
	TopicWaitingForPlayers  = "waitingForPlayers"
	TopicMatchEnd           = "matchEnd"
	TopicTimerUpdate        = "timerUpdate"
	TopicWaitingForOpponent = "waitingForOpponent"
	TopicPlayerReadyUpdate  = "playerReadyUpdate"
	TopicPlayerDisconnected = "playerDisconnected"
)

// 單一連線主題
const (
	TopicRoomFull     = "roomFull"
	TopicRoomAssigned = "roomAssigned"
	TopicInit         = "init"
	TopicTeamChanged  = "teamChanged"
)

// EventSink 事件出口，由傳輸層實作。
//
// 房間在持有自己的鎖時呼叫這兩個方法，實作不能阻塞，也不能回呼 Manager。
type EventSink interface {
	BroadcastToRoom(roomID, topic string, payload any)
	SendToSession(id SessionID, topic string, payload any)
}

// MultiSink 把事件依序轉發給多個 sink
type MultiSink []EventSink

func (m MultiSink) BroadcastToRoom(roomID, topic string, payload any) {
	for _, s := range m {
		s.BroadcastToRoom(roomID, topic, payload)
	}
}

func (m MultiSink) SendToSession(id SessionID, topic string, payload any) {
	for _, s := range m {
		s.SendToSession(id, topic, payload)
	}
}

// NopSink 丟棄所有事件
type NopSink struct{}

func (NopSink) BroadcastToRoom(string, string, any)  {}
func (NopSink) SendToSession(SessionID, string, any) {}

// 事件內容

type BallResetEvent struct {
	Ball physics.Ball `json:"ball"`
}

type GoalScoredEvent struct {
	Team Team `json:"team"`
}

type UpdateEvent struct {
	Players   map[SessionID]Player `json:"players"`
	Ball      physics.Ball         `json:"ball"`
	Score     Score                `json:"score"`
	MatchTime int                  `json:"matchTime"`
	IsPlaying bool                 `json:"isPlaying"`
	Teams     Teams                `json:"teams"`
	RoomID    string               `json:"roomId"`
}

type CleanPreviousMatchEvent struct{}

type MatchStartEvent struct {
	GameState GameState `json:"gameState"`
	CanMove   bool      `json:"canMove"`
}

type WaitingForPlayersEvent struct {
	RedCount  int `json:"redCount"`
	BlueCount int `json:"blueCount"`
}

type MatchEndEvent struct {
	Winner    Outcome   `json:"winner"`
	GameState GameState `json:"gameState"`
}

type TimerUpdateEvent struct {
	MatchTime int `json:"matchTime"`
}

type WaitingForOpponentEvent struct{}

type PlayerReadyUpdateEvent struct {
	Players      map[SessionID]Player `json:"players"`
	ReadyCount   int                  `json:"readyCount"`
	TotalPlayers int                  `json:"totalPlayers"`
	CanMove      bool                 `json:"canMove"`
}

type PlayerDisconnectedEvent struct {
	PlayerID  SessionID `json:"playerId"`
	GameState GameState `json:"gameState"`
}

type RoomFullEvent struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
}

type RoomAssignedEvent struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
	Players  int    `json:"players"`
}

type InitEvent struct {
	Team      Team      `json:"team"`
	GameState GameState `json:"gameState"`
	CanMove   bool      `json:"canMove"`
	RoomID    string    `json:"roomId"`
}

type TeamChangedEvent struct {
	NewTeam   Team      `json:"newTeam"`
	GameState GameState `json:"gameState"`
}
