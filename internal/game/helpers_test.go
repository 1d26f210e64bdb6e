package game

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordedEvent struct {
	RoomID  string
	Session SessionID
	Topic   string
	Payload any
}

// recordingSink 記錄所有事件供斷言
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) BroadcastToRoom(roomID, topic string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{RoomID: roomID, Topic: topic, Payload: payload})
}

func (s *recordingSink) SendToSession(id SessionID, topic string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{Session: id, Topic: topic, Payload: payload})
}

func (s *recordingSink) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.events))
	for _, e := range s.events {
		topics = append(topics, e.Topic)
	}
	return topics
}

func (s *recordingSink) count(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Topic == topic {
			n++
		}
	}
	return n
}

func (s *recordingSink) last(topic string) (recordedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Topic == topic {
			return s.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (s *recordingSink) forSession(id SessionID) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedEvent
	for _, e := range s.events {
		if e.Session == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// manualTimers 取代 time.AfterFunc，由測試決定何時觸發
type manualTimers struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualTimers) schedule(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	m.pending = append(m.pending, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// active 尚未取消的計時器數量
func (m *manualTimers) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// fire 觸發第 i 個計時器，不論是否已被取消（模擬已觸發但還在等鎖的回呼）
func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	t := m.pending[i]
	m.mu.Unlock()
	t.f()
}

// fireActive 觸發所有未取消的計時器
func (m *manualTimers) fireActive() {
	m.mu.Lock()
	var fs []func()
	for _, t := range m.pending {
		if !t.stopped {
			t.stopped = true
			fs = append(fs, t.f)
		}
	}
	m.mu.Unlock()
	for _, f := range fs {
		f()
	}
}

func newTestRoom(t *testing.T) (*Room, *recordingSink, *manualTimers) {
	t.Helper()
	sink := &recordingSink{}
	timers := &manualTimers{}
	r := NewRoom("room-1", DefaultRoomConfig(), sink, testLogger())
	r.schedule = timers.schedule
	r.rng = rand.New(rand.NewPCG(1, 2))
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r, sink, timers
}

// seedPlayers 直接放入球員，不觸發任何狀態轉換
func seedPlayers(r *Room, red, blue int) {
	for i := range red {
		seedPlayer(r, SessionID(fmt.Sprintf("red-%d", i)), TeamRed)
	}
	for i := range blue {
		seedPlayer(r, SessionID(fmt.Sprintf("blue-%d", i)), TeamBlue)
	}
}

func seedPlayer(r *Room, id SessionID, team Team) *Player {
	r.teams.add(team, id)
	p := &Player{Team: team, Name: string(id)}
	r.respawn(p)
	r.players[id] = p
	return p
}

// assertPartition 紅藍兩隊是球員集合的分割
func assertPartition(t *testing.T, r *Room) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[SessionID]Team)
	for _, team := range []Team{TeamRed, TeamBlue} {
		for _, id := range *r.teams.list(team) {
			prev, dup := seen[id]
			assert.False(t, dup, "%s 同時在 %s 與 %s", id, prev, team)
			seen[id] = team
			p, ok := r.players[id]
			if assert.True(t, ok, "%s 在隊伍中但不是球員", id) {
				assert.Equal(t, team, p.Team)
			}
		}
	}
	assert.Len(t, seen, len(r.players))

	for id := range r.playersReady {
		assert.Contains(t, seen, id)
	}
}
