package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/soccer-server/internal/game"
	apperrors "github.com/koopa0/system-design/soccer-server/pkg/errors"
)

// 系統設計問題：
//   房間在持有自己的鎖時產生事件，如何把它們送到瀏覽器而不拖慢模擬？
//
// 核心挑戰：
//   1. 房間鎖內不能做網路 I/O，也不能阻塞
//   2. 慢客戶端不能拖累同房間的其他人
//   3. 死連接要能被偵測並回收（離開房間）
//
// 設計方案：
//   ✅ Hub 實作 game.EventSink，只做序列化與非阻塞投遞
//   ✅ 每個連線一個緩衝 channel，由 writePump 負責寫出
//   ✅ Ping/Pong 心跳（54s/60s），readPump 結束即離開房間
//   ✅ 房間成員由 roomAssigned 事件得知，傳輸層不需要查詢 Manager

// 傳輸層自己的事件
const (
	TopicPing  = "ping"
	TopicPong  = "pong"
	TopicError = "error"
)

// GameService 連線可以呼叫的遊戲操作，由 *game.Manager 實作
type GameService interface {
	Join(id game.SessionID, requestedRoomID, name string) (game.Allocation, error)
	Leave(id game.SessionID)
	SetInput(id game.SessionID, input game.PlayerInput)
	RequestRestart(id game.SessionID)
}

// HubConfig WebSocket 參數
type HubConfig struct {
	ReadBuffer     int
	WriteBuffer    int
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	LatencyPing    time.Duration // 應用層 ping，0 表示關閉
}

// DefaultHubConfig 預設參數
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ReadBuffer:     1024,
		WriteBuffer:    1024,
		SendBuffer:     256,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		LatencyPing:    time.Second,
	}
}

// Envelope 送往客戶端的訊息格式
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inboundMessage 客戶端送來的訊息
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type latencyPayload struct {
	TS int64 `json:"ts"`
}

// Hub WebSocket 連接中心
//
//  1. 連接映射：sessionID -> Client，以及 roomID -> sessionID -> Client
//  2. 並發安全：RWMutex，廣播拿讀鎖，註冊/註銷/分房拿寫鎖
//  3. 關閉 Send channel 只在寫鎖內且先從映射移除，廣播不會寫入已關閉的 channel
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clients map[game.SessionID]*Client
	rooms   map[string]map[game.SessionID]*Client
	mu      sync.RWMutex
	closed  bool
}

// Client 單一 WebSocket 連線
type Client struct {
	ID     game.SessionID
	RoomID string // 由 hub.mu 保護
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	LastPong  time.Time
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewHub 創建 WebSocket Hub
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  cfg.ReadBuffer,
			WriteBufferSize: cfg.WriteBuffer,
		},
		clients: make(map[game.SessionID]*Client),
		rooms:   make(map[string]map[game.SessionID]*Client),
	}
}

// Handler WebSocket 入口：GET /ws?room=<id>&name=<name>
//
// 升級後立即以新的 session ID 加入房間；加入失敗時先送出錯誤事件
// （房間已滿時是 Manager 送的 roomFull），再關閉連線。
func (h *Hub) Handler(svc GameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("升級 WebSocket 失敗", "error", err)
			return
		}

		c := &Client{
			ID:       game.SessionID(uuid.NewString()),
			Conn:     conn,
			Send:     make(chan []byte, h.cfg.SendBuffer),
			Hub:      h,
			LastPong: time.Now(),
		}
		if !h.register(c) {
			conn.Close()
			return
		}
		go c.writePump()

		query := r.URL.Query()
		alloc, err := svc.Join(c.ID, query.Get("room"), query.Get("name"))
		if err != nil {
			if !apperrors.IsRoomFull(err) {
				h.SendToSession(c.ID, TopicError, apperrors.Wrap(err, apperrors.Code(err), "加入房間失敗"))
			}
			h.logger.Info("加入房間失敗",
				"session_id", c.ID,
				"room", query.Get("room"),
				"error", err)
			h.unregister(c)
			return
		}

		h.logger.Info("WebSocket 連接建立",
			"session_id", c.ID,
			"room_id", alloc.RoomID,
			"team", alloc.Team)

		go c.readPump(svc)
	}
}

// register 註冊連線，Hub 已關閉時返回 false
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.ID] = c
	return true
}

// unregister 移除連線並關閉 Send channel
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if actual, ok := h.clients[c.ID]; !ok || actual != c {
		return
	}
	delete(h.clients, c.ID)

	if members, ok := h.rooms[c.RoomID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, c.RoomID)
		}
	}

	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// assign 記錄連線所在的房間
func (h *Hub) assign(id game.SessionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	if old, ok := h.rooms[c.RoomID]; ok && c.RoomID != roomID {
		delete(old, id)
		if len(old) == 0 {
			delete(h.rooms, c.RoomID)
		}
	}
	c.RoomID = roomID
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[game.SessionID]*Client)
	}
	h.rooms[roomID][id] = c
}

// BroadcastToRoom 實作 game.EventSink
func (h *Hub) BroadcastToRoom(roomID, topic string, payload any) {
	message, ok := h.encode(topic, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[roomID] {
		h.deliver(c, topic, message)
	}
}

// SendToSession 實作 game.EventSink
func (h *Hub) SendToSession(id game.SessionID, topic string, payload any) {
	if topic == game.TopicRoomAssigned {
		if ev, ok := payload.(game.RoomAssignedEvent); ok {
			h.assign(id, ev.RoomID)
		}
	}

	message, ok := h.encode(topic, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, exists := h.clients[id]; exists {
		h.deliver(c, topic, message)
	}
}

func (h *Hub) encode(topic string, payload any) ([]byte, bool) {
	message, err := json.Marshal(Envelope{Event: topic, Data: payload})
	if err != nil {
		h.logger.Error("序列化事件失敗", "topic", topic, "error", err)
		return nil, false
	}
	return message, true
}

// deliver 非阻塞投遞，呼叫端持有讀鎖
func (h *Hub) deliver(c *Client, topic string, message []byte) {
	select {
	case c.Send <- message:
	default:
		// 緩衝區滿了，丟棄這則訊息
		h.logger.Warn("連接緩衝區滿",
			"session_id", c.ID,
			"room_id", c.RoomID,
			"topic", topic)
	}
}

// ConnectionCount 每個房間的連線數
func (h *Hub) ConnectionCount() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]int, len(h.rooms))
	for roomID, members := range h.rooms {
		result[roomID] = len(members)
	}
	return result
}

// Close 關閉所有連線，之後的連線會被拒絕
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	for _, c := range clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket Hub 已停止", "connections", len(clients))
}

// readPump 讀取客戶端消息，結束時離開房間
//
// 心跳（讀取端）：PongWait 內沒有收到任何消息（包括 Pong）就關閉連接，
// 配合 writePump 每 PingInterval 送一次 Ping。
func (c *Client) readPump(svc GameService) {
	cfg := c.Hub.cfg
	defer func() {
		c.Hub.unregister(c)
		svc.Leave(c.ID)
		c.Conn.Close()
		c.Hub.logger.Info("WebSocket 連接關閉", "session_id", c.ID)
	}()

	if cfg.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPong = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"session_id", c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(svc, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 兩個計時器：協議層 Ping（偵測死連接）與應用層 ping{ts}（量測延遲）。
// Send 被關閉時先寫完緩衝中的訊息，再送出關閉幀。
func (c *Client) writePump() {
	cfg := c.Hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)

	var latency <-chan time.Time
	if cfg.LatencyPing > 0 {
		lt := time.NewTicker(cfg.LatencyPing)
		defer lt.Stop()
		latency = lt.C
	}

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// 嘗試發送關閉消息，忽略錯誤（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case now := <-latency:
			message, ok := c.Hub.encode(TopicPing, latencyPayload{TS: now.UnixMilli()})
			if !ok {
				continue
			}
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}

// handleMessage 處理客戶端消息
func (c *Client) handleMessage(svc GameService, message []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Hub.logger.Warn("解析客戶端消息失敗",
			"error", err,
			"session_id", c.ID)
		return
	}

	switch msg.Type {
	case "input":
		var input game.PlayerInput
		if err := json.Unmarshal(msg.Data, &input); err != nil {
			c.Hub.logger.Warn("無效的輸入", "error", err, "session_id", c.ID)
			return
		}
		svc.SetInput(c.ID, input)

	case "requestRestart":
		svc.RequestRestart(c.ID)

	case TopicPong:
		var p latencyPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.TS == 0 {
			return
		}
		rtt := time.Since(time.UnixMilli(p.TS))
		c.Hub.logger.Debug("延遲", "session_id", c.ID, "rtt", rtt)

	case TopicPing:
		c.Hub.SendToSession(c.ID, TopicPong, latencyPayload{TS: time.Now().UnixMilli()})

	default:
		c.Hub.logger.Debug("收到未知消息類型",
			"type", msg.Type,
			"session_id", c.ID)
	}
}
