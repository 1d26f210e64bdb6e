package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/soccer-server/internal/game"
	"github.com/koopa0/system-design/soccer-server/internal/store"
	"github.com/koopa0/system-design/soccer-server/internal/transport"
	apperrors "github.com/koopa0/system-design/soccer-server/pkg/errors"
)

type fakeRanking struct {
	players   []store.PlayerStats
	err       error
	lastLimit int
}

func (f *fakeRanking) Top(_ context.Context, limit int) ([]store.PlayerStats, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.players) {
		return f.players[:limit], nil
	}
	return f.players, nil
}

type fakeHistory struct {
	matches   []store.MatchRecord
	stats     map[string]store.PlayerStats
	err       error
	lastLimit int
}

func (f *fakeHistory) RecentMatches(_ context.Context, limit int) ([]store.MatchRecord, error) {
	f.lastLimit = limit
	return f.matches, f.err
}

func (f *fakeHistory) PlayerStats(_ context.Context, name string) (store.PlayerStats, error) {
	if f.err != nil {
		return store.PlayerStats{}, f.err
	}
	s, ok := f.stats[name]
	if !ok {
		return store.PlayerStats{}, apperrors.ErrPlayerNotFound.WithDetails(name)
	}
	return s, nil
}

func newTestHandler(t *testing.T, opts ...transport.HandlerOption) (http.Handler, *game.Manager) {
	t.Helper()
	manager := game.NewManager(nil, testLogger())
	t.Cleanup(manager.Close)
	hub := transport.NewHub(testHubConfig(), testLogger())
	t.Cleanup(hub.Close)
	return transport.NewHandler(manager, hub, testLogger(), opts...).Routes(), manager
}

func doRequest(t *testing.T, router http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHandler_ListRooms(t *testing.T) {
	router, manager := newTestHandler(t)

	code, resp := doRequest(t, router, "/api/v1/rooms")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), resp["total"])

	_, err := manager.Join("a", "arena", "Alice")
	require.NoError(t, err)
	_, err = manager.Join("b", "arena", "Bob")
	require.NoError(t, err)
	_, err = manager.Join("c", "lobby", "")
	require.NoError(t, err)

	code, resp = doRequest(t, router, "/api/v1/rooms")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp["total"])

	rooms := resp["rooms"].([]any)
	first := rooms[0].(map[string]any)
	assert.Equal(t, "arena", first["room_id"])
	assert.Equal(t, float64(2), first["players"])
	assert.Equal(t, float64(game.RoomCapacity), first["capacity"])
	assert.Equal(t, true, first["is_playing"])
	assert.Equal(t, string(game.StatePlaying), first["state"])

	second := rooms[1].(map[string]any)
	assert.Equal(t, "lobby", second["room_id"])
	assert.Equal(t, string(game.StateWaitingForPlayers), second["state"])
}

func TestHandler_GetRoomDetail(t *testing.T) {
	router, manager := newTestHandler(t)
	_, err := manager.Join("a", "arena", "Alice")
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "existing room",
			path:           "/api/v1/rooms/arena",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp map[string]any) {
				state := resp["game_state"].(map[string]any)
				assert.Equal(t, "arena", state["roomId"])
				assert.Equal(t, float64(game.FieldWidth), state["width"])
				assert.Len(t, state["players"], 1)

				room := resp["room"].(map[string]any)
				assert.Equal(t, float64(1), room["red"])
			},
		},
		{
			name:           "missing room",
			path:           "/api/v1/rooms/nowhere",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, apperrors.ErrCodeNotFound, resp["code"])
				assert.Contains(t, resp["error"], "nowhere")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := doRequest(t, router, tt.path)
			assert.Equal(t, tt.expectedStatus, code)
			tt.validate(t, resp)
		})
	}
}

func TestHandler_Ranking(t *testing.T) {
	ranking := &fakeRanking{players: []store.PlayerStats{
		{Name: "Alice", Wins: 3},
		{Name: "Bob", Wins: 2},
		{Name: "Carol", Wins: 1},
	}}
	router, _ := newTestHandler(t, transport.WithRanking(ranking))

	tests := []struct {
		path      string
		wantLimit int
		wantTotal int
	}{
		{"/api/v1/ranking", 10, 3},
		{"/api/v1/ranking?limit=2", 2, 2},
		{"/api/v1/ranking?limit=0", 10, 3},
		{"/api/v1/ranking?limit=500", 10, 3},
		{"/api/v1/ranking?limit=abc", 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, resp := doRequest(t, router, tt.path)
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.wantLimit, ranking.lastLimit)
			assert.Equal(t, float64(tt.wantTotal), resp["total"])
		})
	}

	_, resp := doRequest(t, router, "/api/v1/ranking?limit=1")
	players := resp["players"].([]any)
	assert.Equal(t, "Alice", players[0].(map[string]any)["name"])
}

func TestHandler_StoreErrors(t *testing.T) {
	tests := []struct {
		name           string
		opts           []transport.HandlerOption
		path           string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "ranking not configured",
			path:           "/api/v1/ranking",
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   apperrors.ErrCodeUnavailable,
		},
		{
			name:           "history not configured",
			path:           "/api/v1/matches",
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   apperrors.ErrCodeUnavailable,
		},
		{
			name:           "player stats not configured",
			path:           "/api/v1/players/Alice",
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   apperrors.ErrCodeUnavailable,
		},
		{
			name:           "ranking backend failure is hidden",
			opts:           []transport.HandlerOption{transport.WithRanking(&fakeRanking{err: errors.New("dial tcp: refused")})},
			path:           "/api/v1/ranking",
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   apperrors.ErrCodeInternal,
		},
		{
			name:           "unknown player",
			opts:           []transport.HandlerOption{transport.WithHistory(&fakeHistory{})},
			path:           "/api/v1/players/Nobody",
			expectedStatus: http.StatusNotFound,
			expectedCode:   apperrors.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestHandler(t, tt.opts...)
			code, resp := doRequest(t, router, tt.path)
			assert.Equal(t, tt.expectedStatus, code)
			assert.Equal(t, tt.expectedCode, resp["code"])
			assert.NotContains(t, resp["error"], "refused")
		})
	}
}

func TestHandler_Matches(t *testing.T) {
	history := &fakeHistory{
		matches: []store.MatchRecord{
			{ID: 2, RoomID: "arena", RedScore: 1, Winner: "red", PlayedAt: time.Unix(1_700_000_060, 0).UTC(), Red: []string{"Alice"}},
			{ID: 1, RoomID: "arena", Winner: "draw", PlayedAt: time.Unix(1_700_000_000, 0).UTC()},
		},
		stats: map[string]store.PlayerStats{
			"Alice": {Name: "Alice", Matches: 2, Wins: 1, Draws: 1, GoalsFor: 1},
		},
	}
	router, _ := newTestHandler(t, transport.WithHistory(history))

	code, resp := doRequest(t, router, "/api/v1/matches?limit=5")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, history.lastLimit)
	assert.Equal(t, float64(2), resp["total"])
	first := resp["matches"].([]any)[0].(map[string]any)
	assert.Equal(t, "red", first["winner"])
	assert.Equal(t, []any{"Alice"}, first["red"])

	code, resp = doRequest(t, router, "/api/v1/players/Alice")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp["matches"])
	assert.Equal(t, float64(1), resp["goals_for"])
}

func TestHandler_HealthAndStats(t *testing.T) {
	router, manager := newTestHandler(t)
	_, err := manager.Join("a", "", "")
	require.NoError(t, err)

	code, resp := doRequest(t, router, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp["status"])

	code, resp = doRequest(t, router, "/stats")
	assert.Equal(t, http.StatusOK, code)
	stats := resp["game"].(map[string]any)
	assert.Equal(t, float64(1), stats["rooms"])
	assert.Equal(t, float64(1), stats["players"])
	assert.Equal(t, float64(1), stats["sessions"])
	assert.Contains(t, resp, "connections")
}

func TestHandler_WebSocketRoute(t *testing.T) {
	manager := game.NewManager(nil, testLogger())
	t.Cleanup(manager.Close)
	hub := transport.NewHub(testHubConfig(), testLogger())
	t.Cleanup(hub.Close)

	// 沒有 hub 時不註冊 /ws
	router := transport.NewHandler(manager, nil, testLogger()).Routes()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 有 hub 時，非 WebSocket 請求由 upgrader 拒絕
	router = transport.NewHandler(manager, hub, testLogger()).Routes()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
