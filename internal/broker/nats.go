// Package broker 把房間事件與比賽結果轉發到 NATS，
// 讓其他服務（觀戰、統計、通知）不需要連線到遊戲伺服器就能訂閱。
//
// 主題格式：
//
//	<prefix>.room.<roomID>.<topic>
//	<prefix>.session.<sessionID>.<topic>
//	<prefix>.match.<roomID>.result
//
// 使用 Core NATS（fire-and-forget）：事件是即時狀態，遺失一則不影響正確性。
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/koopa0/system-design/soccer-server/internal/game"
)

// Publisher 由 *nats.Conn 實作
type Publisher interface {
	Publish(subject string, data []byte) error
}

// RoomSubject 房間事件主題
func RoomSubject(prefix, roomID, topic string) string {
	return fmt.Sprintf("%s.room.%s.%s", prefix, roomID, topic)
}

// SessionSubject 單一連線事件主題
func SessionSubject(prefix string, id game.SessionID, topic string) string {
	return fmt.Sprintf("%s.session.%s.%s", prefix, id, topic)
}

// MatchSubject 比賽結果主題
func MatchSubject(prefix, roomID string) string {
	return fmt.Sprintf("%s.match.%s.result", prefix, roomID)
}

// Connect 連接 NATS Server
//
// 選項說明：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("soccer-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return conn, nil
}

type outbound struct {
	subject string
	payload any
}

// SinkOption NATSSink 選項
type SinkOption func(*NATSSink)

// WithSkipTopics 不轉發的事件主題
func WithSkipTopics(topics ...string) SinkOption {
	return func(s *NATSSink) {
		for _, t := range topics {
			s.skip[t] = struct{}{}
		}
	}
}

// WithBuffer 佇列長度
func WithBuffer(n int) SinkOption {
	return func(s *NATSSink) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NATSSink 實作 game.EventSink 與 game.MatchRecorder
//
// 事件在房間鎖內產生，這裡只放進佇列；序列化與發送由背景 goroutine 處理，
// 佇列滿時丟棄並記錄警告。
type NATSSink struct {
	conn   Publisher
	prefix string
	skip   map[string]struct{}
	buffer int
	queue  chan outbound
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewNATSSink 創建並啟動轉發器
func NewNATSSink(conn Publisher, prefix string, logger *slog.Logger, opts ...SinkOption) *NATSSink {
	s := &NATSSink{
		conn:   conn,
		prefix: prefix,
		skip:   make(map[string]struct{}),
		buffer: 1024,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = make(chan outbound, s.buffer)

	s.wg.Add(1)
	go s.run()
	return s
}

// BroadcastToRoom 實作 game.EventSink
func (s *NATSSink) BroadcastToRoom(roomID, topic string, payload any) {
	if _, skip := s.skip[topic]; skip {
		return
	}
	s.enqueue(RoomSubject(s.prefix, roomID, topic), payload)
}

// SendToSession 實作 game.EventSink
func (s *NATSSink) SendToSession(id game.SessionID, topic string, payload any) {
	if _, skip := s.skip[topic]; skip {
		return
	}
	s.enqueue(SessionSubject(s.prefix, id, topic), payload)
}

// RecordMatch 實作 game.MatchRecorder，已經在背景 goroutine 中，直接發送
func (s *NATSSink) RecordMatch(_ context.Context, result game.MatchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal match result: %w", err)
	}
	if err := s.conn.Publish(MatchSubject(s.prefix, result.RoomID), data); err != nil {
		return fmt.Errorf("publish match result: %w", err)
	}
	return nil
}

func (s *NATSSink) enqueue(subject string, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.queue <- outbound{subject: subject, payload: payload}:
	default:
		s.logger.Warn("NATS 佇列已滿，丟棄事件", "subject", subject)
	}
}

func (s *NATSSink) run() {
	defer s.wg.Done()

	for msg := range s.queue {
		data, err := json.Marshal(msg.payload)
		if err != nil {
			s.logger.Error("序列化事件失敗", "subject", msg.subject, "error", err)
			continue
		}
		if err := s.conn.Publish(msg.subject, data); err != nil {
			s.logger.Warn("發布事件失敗", "subject", msg.subject, "error", err)
		}
	}
}

// Close 停止接收事件並送完佇列中剩下的
func (s *NATSSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}
