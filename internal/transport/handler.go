package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/koopa0/system-design/soccer-server/internal/game"
	"github.com/koopa0/system-design/soccer-server/internal/store"
	apperrors "github.com/koopa0/system-design/soccer-server/pkg/errors"
)

// RankingReader 排行榜查詢，由 *store.RedisRanking 實作
type RankingReader interface {
	Top(ctx context.Context, limit int) ([]store.PlayerStats, error)
}

// HistoryReader 歷史紀錄查詢，由 *store.PostgresHistory 實作
type HistoryReader interface {
	RecentMatches(ctx context.Context, limit int) ([]store.MatchRecord, error)
	PlayerStats(ctx context.Context, name string) (store.PlayerStats, error)
}

// HandlerOption Handler 選項
type HandlerOption func(*Handler)

// WithRanking 啟用 /api/v1/ranking
func WithRanking(r RankingReader) HandlerOption {
	return func(h *Handler) { h.ranking = r }
}

// WithHistory 啟用 /api/v1/matches 與 /api/v1/players/{name}
func WithHistory(r HistoryReader) HandlerOption {
	return func(h *Handler) { h.history = r }
}

const (
	defaultLimit = 10
	maxLimit     = 100
	queryTimeout = 3 * time.Second
)

// Handler HTTP 請求處理器
type Handler struct {
	manager *game.Manager
	hub     *Hub
	ranking RankingReader
	history HistoryReader
	logger  *slog.Logger
}

// NewHandler 創建 HTTP 處理器，hub 為 nil 時不提供 WebSocket 入口
func NewHandler(manager *game.Manager, hub *Hub, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		manager: manager,
		hub:     hub,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 房間查詢 API
	mux.HandleFunc("GET /api/v1/rooms", wrap(h.listRooms))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoomDetail))

	// 戰績 API
	mux.HandleFunc("GET /api/v1/ranking", wrap(h.leaderboard))
	mux.HandleFunc("GET /api/v1/matches", wrap(h.recentMatches))
	mux.HandleFunc("GET /api/v1/players/{name}", wrap(h.playerStats))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	// WebSocket 需要 Hijack，不經過包裝 ResponseWriter 的日誌中間件
	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.recoverer(h.hub.Handler(h.manager)))
	}

	return mux
}

// listRooms 列出房間
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.manager.ListRooms()
	h.jsonResponse(w, map[string]any{
		"rooms": rooms,
		"total": len(rooms),
	}, http.StatusOK)
}

// getRoomDetail 房間快照
func (h *Handler) getRoomDetail(w http.ResponseWriter, r *http.Request) {
	room, err := h.manager.GetRoom(r.PathValue("room_id"))
	if err != nil {
		h.appError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"room":       room.Info(),
		"game_state": room.Snapshot(),
	}, http.StatusOK)
}

// leaderboard 排行榜
func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if h.ranking == nil {
		h.appError(w, apperrors.ErrStoreUnavailable.WithDetails("ranking"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	players, err := h.ranking.Top(ctx, parseLimit(r))
	if err != nil {
		h.appError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"players": players,
		"total":   len(players),
	}, http.StatusOK)
}

// recentMatches 最近的比賽
func (h *Handler) recentMatches(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.appError(w, apperrors.ErrStoreUnavailable.WithDetails("history"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	matches, err := h.history.RecentMatches(ctx, parseLimit(r))
	if err != nil {
		h.appError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"matches": matches,
		"total":   len(matches),
	}, http.StatusOK)
}

// playerStats 單一球員戰績
func (h *Handler) playerStats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.appError(w, apperrors.ErrStoreUnavailable.WithDetails("history"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	stats, err := h.history.PlayerStats(ctx, r.PathValue("name"))
	if err != nil {
		h.appError(w, err)
		return
	}

	h.jsonResponse(w, stats, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"game": h.manager.Stats(),
	}
	if h.hub != nil {
		resp["connections"] = h.hub.ConnectionCount()
	}
	h.jsonResponse(w, resp, http.StatusOK)
}

// parseLimit 查詢參數 limit，預設 10，最多 100
func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= maxLimit {
			limit = val
		}
	}
	return limit
}

// statusFor 錯誤碼對應的 HTTP 狀態碼
func statusFor(err error) int {
	switch apperrors.Code(err) {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeRoomFull, apperrors.ErrCodeAlreadyExists:
		return http.StatusConflict
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// appError 依錯誤碼返回錯誤響應，內部錯誤不外洩細節
func (h *Handler) appError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("處理請求失敗", "error", err)
		h.jsonResponse(w, map[string]any{
			"error": "內部伺服器錯誤",
			"code":  apperrors.ErrCodeInternal,
		}, status)
		return
	}

	h.jsonResponse(w, map[string]any{
		"error": err.Error(),
		"code":  apperrors.Code(err),
	}, status)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
