package game

import (
	"cmp"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/koopa0/system-design/soccer-server/pkg/errors"
)

// Allocation 加入房間的結果
type Allocation struct {
	RoomID   string `json:"roomId"`
	Team     Team   `json:"team"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Players  int    `json:"players"`
}

// Stats 全域統計
type Stats struct {
	Rooms    int `json:"rooms"`
	Players  int `json:"players"`
	Playing  int `json:"playing"`
	Sessions int `json:"sessions"`
}

// Option 管理器選項
type Option func(*Manager)

// WithRoomConfig 設定新房間的參數
func WithRoomConfig(cfg RoomConfig) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithResultHandler 比賽結束時呼叫，在房間鎖內執行，不能阻塞
func WithResultHandler(fn func(MatchResult)) Option {
	return func(m *Manager) { m.onResult = fn }
}

// Manager 房間註冊表
//
// 鎖的順序固定為 Manager.mu → Room.mu。加入與離開持有寫鎖，
// 讓容量檢查與空房移除不會和其他加入交錯。
type Manager struct {
	rooms    map[string]*Room     // roomID -> Room
	sessions map[SessionID]string // sessionID -> roomID
	mu       sync.RWMutex

	nextSeq  uint64 // room-N 的 N
	created  uint64
	cfg      RoomConfig
	sink     EventSink
	onResult func(MatchResult)
	logger   *slog.Logger
	closed   bool
}

// NewManager 創建房間管理器
func NewManager(sink EventSink, logger *slog.Logger, opts ...Option) *Manager {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Manager{
		rooms:    make(map[string]*Room),
		sessions: make(map[SessionID]string),
		nextSeq:  1,
		cfg:      DefaultRoomConfig(),
		sink:     sink,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	invalidIDChar = regexp.MustCompile(`[^a-z0-9_-]`)
)

// SanitizeRoomID 正規化房間 ID，結果為空字串代表沒有指定房間
func SanitizeRoomID(roomID string) string {
	id := strings.ToLower(strings.TrimSpace(roomID))
	id = whitespaceRun.ReplaceAllString(id, "-")
	id = invalidIDChar.ReplaceAllString(id, "")
	if len(id) > MaxRoomIDLength {
		id = id[:MaxRoomIDLength]
	}
	return id
}

// Join 把連線分配到房間。
//
// requestedRoomID 為空（或正規化後為空）時加入任一未滿房間，沒有就新建；
// 否則加入或建立該房間，已滿時返回 ROOM_FULL 錯誤且不做任何變更。
func (m *Manager) Join(id SessionID, requestedRoomID, name string) (Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Allocation{}, apperrors.New(apperrors.ErrCodeUnavailable, "server is shutting down")
	}
	if roomID, ok := m.sessions[id]; ok {
		return Allocation{RoomID: roomID}, apperrors.ErrSessionAlreadyJoined.WithDetails(string(id))
	}

	room, err := m.allocateLocked(SanitizeRoomID(requestedRoomID))
	if err != nil {
		if apperrors.IsRoomFull(err) {
			roomID := SanitizeRoomID(requestedRoomID)
			m.logger.Info("房間已滿", "room_id", roomID, "session_id", id)
			m.sink.SendToSession(id, TopicRoomFull, RoomFullEvent{
				RoomID:   roomID,
				Capacity: m.cfg.Capacity,
			})
			return Allocation{RoomID: roomID, Capacity: m.cfg.Capacity}, err
		}
		return Allocation{}, err
	}

	room.mu.Lock()
	alloc := room.join(id, name)
	room.mu.Unlock()

	m.sessions[id] = room.id
	return alloc, nil
}

// allocateLocked 依分配規則找到或建立房間，呼叫端持有寫鎖
func (m *Manager) allocateLocked(roomID string) (*Room, error) {
	if roomID == "" {
		if room := m.availableLocked(); room != nil {
			return room, nil
		}
		return m.createLocked(m.generateRoomID()), nil
	}

	room, ok := m.rooms[roomID]
	if !ok {
		return m.createLocked(roomID), nil
	}
	if room.PlayerCount() >= m.cfg.Capacity {
		return nil, apperrors.ErrRoomFull.WithDetails(
			fmt.Sprintf("room_id=%s capacity=%d", roomID, m.cfg.Capacity))
	}
	return room, nil
}

// availableLocked 最早建立的未滿房間
func (m *Manager) availableLocked() *Room {
	var best *Room
	for _, room := range m.rooms {
		if room.PlayerCount() >= m.cfg.Capacity {
			continue
		}
		if best == nil || room.seq < best.seq {
			best = room
		}
	}
	return best
}

// generateRoomID 遞增序號，跳過已被使用的 ID
func (m *Manager) generateRoomID() string {
	for {
		id := fmt.Sprintf("room-%d", m.nextSeq)
		m.nextSeq++
		if _, exists := m.rooms[id]; !exists {
			return id
		}
	}
}

func (m *Manager) createLocked(roomID string) *Room {
	room := NewRoom(roomID, m.cfg, m.sink, m.logger)
	m.created++
	room.seq = m.created
	room.onResult = m.onResult
	m.rooms[roomID] = room

	m.logger.Info("房間已創建", "room_id", roomID)
	return room
}

// Leave 移除連線，房間空了就立即移除
func (m *Manager) Leave(id SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)

	room, ok := m.rooms[roomID]
	if !ok {
		return
	}

	room.mu.Lock()
	empty := room.leave(id)
	if empty {
		room.closed = true
		room.cancelPendingReset()
	}
	room.mu.Unlock()

	if empty {
		delete(m.rooms, roomID)
		m.logger.Info("房間已移除", "room_id", roomID)
	}
}

// SetInput 更新方向輸入，未知連線或比賽未進行時忽略
func (m *Manager) SetInput(id SessionID, input PlayerInput) {
	room := m.roomOf(id)
	if room == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.setInput(id, input)
}

// RequestRestart 賽後準備，未知連線或不在等待重開時忽略
func (m *Manager) RequestRestart(id SessionID) {
	room := m.roomOf(id)
	if room == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.requestRestart(id)
}

func (m *Manager) roomOf(id SessionID) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomID, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return m.rooms[roomID]
}

// RoomOf 連線所在的房間 ID
func (m *Manager) RoomOf(id SessionID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.sessions[id]
	return roomID, ok
}

// GetRoom 獲取房間
func (m *Manager) GetRoom(roomID string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[roomID]
	m.mu.RUnlock()

	if !exists {
		return nil, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}
	return room, nil
}

// Rooms 依建立順序返回目前所有房間的快照
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b *Room) int { return cmp.Compare(a.seq, b.seq) })
	return rooms
}

// ListRooms 房間摘要列表
func (m *Manager) ListRooms() []RoomInfo {
	rooms := m.Rooms()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	return infos
}

// Stats 獲取統計資訊
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	stats := Stats{
		Rooms:    len(m.rooms),
		Sessions: len(m.sessions),
	}
	m.mu.RUnlock()

	for _, room := range m.Rooms() {
		info := room.Info()
		stats.Players += info.Players
		if info.IsPlaying {
			stats.Playing++
		}
	}
	return stats
}

// Close 關閉所有房間，之後的加入都會失敗
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, room := range m.rooms {
		room.Close()
	}
	m.logger.Info("房間管理器已關閉", "rooms", len(m.rooms))
}
