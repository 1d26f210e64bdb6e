package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/soccer-server/internal/broker"
	"github.com/koopa0/system-design/soccer-server/internal/config"
	"github.com/koopa0/system-design/soccer-server/internal/game"
	"github.com/koopa0/system-design/soccer-server/internal/store"
	"github.com/koopa0/system-design/soccer-server/internal/store/migrations"
	"github.com/koopa0/system-design/soccer-server/internal/transport"
	"github.com/koopa0/system-design/soccer-server/pkg/logger"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "", "配置檔路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置檔）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}

	// 命令行參數優先於配置檔
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置無效: %v\n", err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(log)

	err = run(cfg, log)
	closer.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "服務器異常結束: %v\n", err)
		os.Exit(1)
	}
}

// run 組裝所有元件並阻塞到收到關閉信號
func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	hub := transport.NewHub(transport.HubConfig{
		ReadBuffer:     cfg.WebSocket.ReadBuffer,
		WriteBuffer:    cfg.WebSocket.WriteBuffer,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		LatencyPing:    cfg.WebSocket.LatencyPing,
	}, log)

	sinks := game.MultiSink{hub}
	var (
		recorders   game.MultiRecorder
		handlerOpts []transport.HandlerOption
	)

	// NATS：事件與比賽結果轉發
	if cfg.NATS.Enabled {
		conn, err := broker.Connect(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		defer conn.Close()

		natsSink := broker.NewNATSSink(conn, cfg.NATS.SubjectPrefix, log,
			broker.WithSkipTopics(cfg.NATS.SkipTopics...),
			broker.WithBuffer(cfg.NATS.Buffer))
		defer natsSink.Close()

		sinks = append(sinks, natsSink)
		recorders = append(recorders, natsSink)
		log.Info("NATS 已連線", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	// Redis：排行榜
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			client.Close()
			return fmt.Errorf("連接 Redis 失敗: %w", err)
		}
		defer client.Close()

		ranking := store.NewRedisRanking(client, cfg.Redis.RankingKey, log)
		recorders = append(recorders, ranking)
		handlerOpts = append(handlerOpts, transport.WithRanking(ranking))
		log.Info("Redis 已連線", "addr", cfg.Redis.Addr)
	}

	// PostgreSQL：比賽歷史
	if cfg.Postgres.Enabled {
		if cfg.Postgres.Migrate {
			if err := runMigrations(cfg.Postgres.DSN, log); err != nil {
				return err
			}
		}

		pgConfig, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("解析 PostgreSQL 配置失敗: %w", err)
		}
		pgConfig.MaxConns = cfg.Postgres.MaxConns

		pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
		if err != nil {
			return fmt.Errorf("連接 PostgreSQL 失敗: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("連接 PostgreSQL 失敗: %w", err)
		}

		history := store.NewPostgresHistory(pool, log)
		recorders = append(recorders, history)
		handlerOpts = append(handlerOpts, transport.WithHistory(history))
		log.Info("PostgreSQL 已連線")
	}

	managerOpts := []game.Option{game.WithRoomConfig(cfg.RoomConfig())}
	if len(recorders) > 0 {
		async := game.NewAsyncRecorder(recorders, cfg.Recorder.Buffer, cfg.Recorder.Timeout, log)
		defer async.Close()
		managerOpts = append(managerOpts, game.WithResultHandler(async.Enqueue))
	}

	manager := game.NewManager(sinks, log, managerOpts...)
	scheduler := game.NewScheduler(manager, cfg.TickInterval(), cfg.Game.TimerInterval, log)
	scheduler.Start()

	handler := transport.NewHandler(manager, hub, log, handlerOpts...)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("足球遊戲服務器啟動",
			"addr", server.Addr,
			"tick_rate", cfg.Game.TickRate,
			"room_capacity", cfg.Game.RoomCapacity)
		serverErrors <- server.ListenAndServe()
	}()

	// 等待中斷信號
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("服務器啟動失敗: %w", err)
		}
	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉...", "signal", sig.String())
	}

	// 優雅關閉：先停止接受新連接，再停止模擬，最後斷開 WebSocket
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服務器關閉失敗", "error", err)
	}
	scheduler.Stop()
	manager.Close()
	hub.Close()

	log.Info("服務器已關閉")
	return serveErr
}

// runMigrations 執行嵌入的資料庫遷移
func runMigrations(dsn string, log *slog.Logger) error {
	m, err := migrations.New(dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
