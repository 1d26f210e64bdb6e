package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/koopa0/system-design/soccer-server/internal/physics"
)

// SessionID 由傳輸層分配的連線識別碼，對核心而言是不透明的
type SessionID string

// Team 隊伍，只有紅藍兩個合法值，零值無效
type Team uint8

const (
	TeamRed Team = iota + 1
	TeamBlue
)

// String 返回 "red" / "blue"
func (t Team) String() string {
	switch t {
	case TeamRed:
		return "red"
	case TeamBlue:
		return "blue"
	default:
		return fmt.Sprintf("Team(%d)", uint8(t))
	}
}

// Valid 是否為紅藍之一
func (t Team) Valid() bool { return t == TeamRed || t == TeamBlue }

// Opponent 對手隊伍
func (t Team) Opponent() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// MarshalText 序列化為 "red" / "blue"
func (t Team) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("無效的隊伍: %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText 只接受 "red" / "blue"
func (t *Team) UnmarshalText(text []byte) error {
	team, err := ParseTeam(string(text))
	if err != nil {
		return err
	}
	*t = team
	return nil
}

// ParseTeam 解析隊伍名稱
func ParseTeam(s string) (Team, error) {
	switch s {
	case "red":
		return TeamRed, nil
	case "blue":
		return TeamBlue, nil
	default:
		return 0, fmt.Errorf("無效的隊伍: %q", s)
	}
}

// PlayerInput 玩家最後一次回報的方向鍵狀態
type PlayerInput struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
}

// Velocity 每 tick 的位移向量。斜向移動不做正規化，兩軸各走 speed。
func (in PlayerInput) Velocity(speed float64) physics.Point {
	var v physics.Point
	if in.Left {
		v.X -= speed
	}
	if in.Right {
		v.X += speed
	}
	if in.Up {
		v.Y -= speed
	}
	if in.Down {
		v.Y += speed
	}
	return v
}

// Player 房間內的球員
type Player struct {
	X     float64     `json:"x"`
	Y     float64     `json:"y"`
	Team  Team        `json:"team"`
	Input PlayerInput `json:"input"`
	Name  string      `json:"name"`
}

// Position 球員座標
func (p *Player) Position() physics.Point { return physics.Point{X: p.X, Y: p.Y} }

// Teams 紅藍隊名單，依加入順序排列
type Teams struct {
	Red  []SessionID `json:"red"`
	Blue []SessionID `json:"blue"`
}

// Count 指定隊伍人數
func (t *Teams) Count(team Team) int {
	return len(*t.list(team))
}

// BothNonEmpty 兩隊都有人
func (t *Teams) BothNonEmpty() bool {
	return len(t.Red) > 0 && len(t.Blue) > 0
}

// Contains 是否在任一隊
func (t *Teams) Contains(id SessionID) bool {
	return slices.Contains(t.Red, id) || slices.Contains(t.Blue, id)
}

// All 紅隊在前、藍隊在後的全部成員
func (t *Teams) All() []SessionID {
	all := make([]SessionID, 0, len(t.Red)+len(t.Blue))
	all = append(all, t.Red...)
	return append(all, t.Blue...)
}

func (t *Teams) list(team Team) *[]SessionID {
	if team == TeamBlue {
		return &t.Blue
	}
	return &t.Red
}

func (t *Teams) add(team Team, id SessionID) {
	l := t.list(team)
	*l = append(*l, id)
}

// remove 從兩隊中移除，返回是否存在
func (t *Teams) remove(id SessionID) bool {
	removed := false
	for _, team := range []Team{TeamRed, TeamBlue} {
		l := t.list(team)
		if i := slices.Index(*l, id); i >= 0 {
			*l = slices.Delete(*l, i, i+1)
			removed = true
		}
	}
	return removed
}

// popTail 移除並返回該隊最後加入的成員
func (t *Teams) popTail(team Team) (SessionID, bool) {
	l := t.list(team)
	if len(*l) == 0 {
		return "", false
	}
	id := (*l)[len(*l)-1]
	*l = (*l)[:len(*l)-1]
	return id, true
}

func (t *Teams) clone() Teams {
	return Teams{
		Red:  append([]SessionID{}, t.Red...),
		Blue: append([]SessionID{}, t.Blue...),
	}
}

// Score 比分
type Score struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

func (s *Score) add(team Team) {
	if team == TeamRed {
		s.Red++
	} else {
		s.Blue++
	}
}

// Outcome 比賽結果：紅勝、藍勝或平手
type Outcome string

const (
	OutcomeRed  Outcome = "red"
	OutcomeBlue Outcome = "blue"
	OutcomeDraw Outcome = "draw"
)

// Winner 比分嚴格較高者獲勝，同分為平手
func (s Score) Winner() Outcome {
	switch {
	case s.Red > s.Blue:
		return OutcomeRed
	case s.Blue > s.Red:
		return OutcomeBlue
	default:
		return OutcomeDraw
	}
}

// GameState 傳給客戶端的房間快照，每次都重新建立，不會被保存
type GameState struct {
	Width     float64              `json:"width"`
	Height    float64              `json:"height"`
	Players   map[SessionID]Player `json:"players"`
	Ball      physics.Ball         `json:"ball"`
	Score     Score                `json:"score"`
	Teams     Teams                `json:"teams"`
	MatchTime int                  `json:"matchTime"`
	IsPlaying bool                 `json:"isPlaying"`
	RoomID    string               `json:"roomId"`
}

// PlayerRef 比賽紀錄中的球員
type PlayerRef struct {
	SessionID SessionID `json:"session_id"`
	Name      string    `json:"name"`
}

// MatchResult 一場比賽結束時的結果
type MatchResult struct {
	RoomID    string        `json:"room_id"`
	RedScore  int           `json:"red_score"`
	BlueScore int           `json:"blue_score"`
	Winner    Outcome       `json:"winner"`
	Duration  time.Duration `json:"duration"`
	PlayedAt  time.Time     `json:"played_at"`
	Red       []PlayerRef   `json:"red"`
	Blue      []PlayerRef   `json:"blue"`
}

// GoalsFor 指定隊伍的進球數
func (r MatchResult) GoalsFor(team Team) int {
	if team == TeamRed {
		return r.RedScore
	}
	return r.BlueScore
}

// OutcomeFor 以指定隊伍角度看的結果："win" / "loss" / "draw"
func (r MatchResult) OutcomeFor(team Team) string {
	switch {
	case r.Winner == OutcomeDraw:
		return "draw"
	case r.Winner == Outcome(team.String()):
		return "win"
	default:
		return "loss"
	}
}
