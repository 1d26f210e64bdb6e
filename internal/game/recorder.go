package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MatchRecorder 保存比賽結果（排行榜、歷史紀錄）
type MatchRecorder interface {
	RecordMatch(ctx context.Context, result MatchResult) error
}

// MultiRecorder 依序寫入多個 recorder，回傳第一個錯誤
type MultiRecorder []MatchRecorder

func (m MultiRecorder) RecordMatch(ctx context.Context, result MatchResult) error {
	var first error
	for _, r := range m {
		if err := r.RecordMatch(ctx, result); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AsyncRecorder 在背景 goroutine 寫入比賽結果。
//
// Enqueue 從房間鎖內呼叫，不可阻塞：佇列滿時丟棄並記錄警告。
type AsyncRecorder struct {
	recorder MatchRecorder
	queue    chan MatchResult
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncRecorder 創建並啟動背景寫入
func NewAsyncRecorder(recorder MatchRecorder, buffer int, timeout time.Duration, logger *slog.Logger) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &AsyncRecorder{
		recorder: recorder,
		queue:    make(chan MatchResult, buffer),
		timeout:  timeout,
		logger:   logger,
	}

	a.wg.Add(1)
	go a.run()
	return a
}

// Enqueue 排入一筆結果，佇列已滿或已關閉時丟棄
func (a *AsyncRecorder) Enqueue(result MatchResult) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}
	select {
	case a.queue <- result:
	default:
		a.logger.Warn("比賽結果佇列已滿，丟棄", "room_id", result.RoomID)
	}
}

// Close 停止接收並等待佇列寫完
func (a *AsyncRecorder) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *AsyncRecorder) run() {
	defer a.wg.Done()

	for result := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.recorder.RecordMatch(ctx, result)
		cancel()

		if err != nil {
			a.logger.Error("寫入比賽結果失敗",
				"room_id", result.RoomID,
				"error", err)
			continue
		}
		a.logger.Debug("比賽結果已寫入", "room_id", result.RoomID, "winner", result.Winner)
	}
}
