package game

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler 兩個固定頻率的驅動器：物理 tick 與比賽計時。
// 每次都走訪全部房間，單一房間的 panic 會被記錄而不會中斷驅動器。
type Scheduler struct {
	manager       *Manager
	tickInterval  time.Duration
	timerInterval time.Duration
	logger        *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler 創建排程器，間隔為 0 時使用預設值
func NewScheduler(manager *Manager, tickInterval, timerInterval time.Duration, logger *slog.Logger) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = TickInterval
	}
	if timerInterval <= 0 {
		timerInterval = TimerInterval
	}
	return &Scheduler{
		manager:       manager,
		tickInterval:  tickInterval,
		timerInterval: timerInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start 啟動兩個驅動 goroutine
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.loop(s.tickInterval, s.RunPhysics)
	go s.loop(s.timerInterval, s.RunTimers)

	s.logger.Info("排程器已啟動",
		"tick_interval", s.tickInterval,
		"timer_interval", s.timerInterval)
}

// Stop 停止並等待驅動器結束
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("排程器已停止")
}

func (s *Scheduler) loop(interval time.Duration, run func(time.Time)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			run(now)
		case <-s.stopCh:
			return
		}
	}
}

// RunPhysics 對所有房間執行一次物理 tick
func (s *Scheduler) RunPhysics(now time.Time) {
	for _, room := range s.manager.Rooms() {
		s.safely(room, "physics", func() { room.Tick(now) })
	}
}

// RunTimers 對所有房間的比賽時鐘走一格
func (s *Scheduler) RunTimers(time.Time) {
	for _, room := range s.manager.Rooms() {
		s.safely(room, "timer", room.TickTimer)
	}
}

func (s *Scheduler) safely(room *Room, driver string, fn func()) {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("房間處理發生 panic",
				"room_id", room.ID(),
				"driver", driver,
				"error", err)
		}
	}()
	fn()
}
