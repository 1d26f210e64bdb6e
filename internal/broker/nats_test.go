package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/system-design/soccer-server/internal/broker"
	"github.com/koopa0/system-design/soccer-server/internal/game"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type published struct {
	subject string
	data    []byte
}

// fakePublisher 記錄發布的訊息；block 不為 nil 時第一次發布會等待
type fakePublisher struct {
	mu      sync.Mutex
	msgs    []published
	err     error
	started chan struct{}
	block   chan struct{}
	once    sync.Once
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.block != nil {
		p.once.Do(func() {
			close(p.started)
			<-p.block
		})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.subject)
	}
	return out
}

func TestSubjects(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{"room", broker.RoomSubject("soccer", "room-1", game.TopicGoalScored), "soccer.room.room-1.goalScored"},
		{"session", broker.SessionSubject("soccer", "abc", game.TopicInit), "soccer.session.abc.init"},
		{"match", broker.MatchSubject("eu", "arena"), "eu.match.arena.result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.subject)
		})
	}
}

func TestNATSSink_PublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := broker.NewNATSSink(pub, "soccer", testLogger(), broker.WithSkipTopics(game.TopicUpdate))

	sink.BroadcastToRoom("room-1", game.TopicGoalScored, game.GoalScoredEvent{Team: game.TeamRed})
	sink.BroadcastToRoom("room-1", game.TopicUpdate, game.UpdateEvent{})
	sink.SendToSession("s1", game.TopicRoomAssigned, game.RoomAssignedEvent{RoomID: "room-1", Capacity: 6, Players: 1})
	sink.Close()

	assert.Equal(t, []string{
		"soccer.room.room-1.goalScored",
		"soccer.session.s1.roomAssigned",
	}, pub.subjects())

	var goal map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &goal))
	assert.Equal(t, "red", goal["team"])
}

func TestNATSSink_ClosedSinkDropsEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := broker.NewNATSSink(pub, "soccer", testLogger())
	sink.Close()
	sink.Close()

	assert.NotPanics(t, func() {
		sink.BroadcastToRoom("room-1", game.TopicMatchStart, game.MatchStartEvent{})
	})
	assert.Empty(t, pub.subjects())
}

func TestNATSSink_DropsWhenFull(t *testing.T) {
	pub := &fakePublisher{started: make(chan struct{}), block: make(chan struct{})}
	sink := broker.NewNATSSink(pub, "soccer", testLogger(), broker.WithBuffer(1))

	sink.BroadcastToRoom("r", "first", nil)
	<-pub.started

	sink.BroadcastToRoom("r", "second", nil)
	sink.BroadcastToRoom("r", "third", nil) // 佇列已滿

	close(pub.block)
	sink.Close()

	assert.Equal(t, []string{"soccer.room.r.first", "soccer.room.r.second"}, pub.subjects())
}

func TestNATSSink_PublishErrorDoesNotStopWorker(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	sink := broker.NewNATSSink(pub, "soccer", testLogger())

	sink.BroadcastToRoom("r", "a", nil)
	sink.BroadcastToRoom("r", "b", func() {}) // 無法序列化

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	assert.Eventually(t, func() bool {
		sink.BroadcastToRoom("r", "c", nil)
		for _, s := range pub.subjects() {
			if s == "soccer.room.r.c" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	sink.Close()
}

func TestNATSSink_RecordMatch(t *testing.T) {
	pub := &fakePublisher{}
	sink := broker.NewNATSSink(pub, "soccer", testLogger())
	defer sink.Close()

	result := game.MatchResult{RoomID: "arena", RedScore: 2, BlueScore: 1, Winner: game.OutcomeRed}
	require.NoError(t, sink.RecordMatch(context.Background(), result))

	require.Equal(t, []string{"soccer.match.arena.result"}, pub.subjects())
	var decoded game.MatchResult
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &decoded))
	assert.Equal(t, result.Winner, decoded.Winner)
	assert.Equal(t, 2, decoded.RedScore)

	pub.mu.Lock()
	pub.err = errors.New("down")
	pub.mu.Unlock()
	assert.Error(t, sink.RecordMatch(context.Background(), result))
}

// 需要 Docker，預設略過
func TestNATSSink_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("SOCCER_INTEGRATION") != "1" {
		t.Skip("set SOCCER_INTEGRATION=1 to run container tests")
	}
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tc.TerminateContainer(container) })

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)

	conn, err := broker.Connect(endpoint, testLogger())
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan *nats.Msg, 4)
	sub, err := conn.ChanSubscribe("soccer.room.arena.>", received)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, conn.Flush())

	sink := broker.NewNATSSink(conn, "soccer", testLogger())
	sink.BroadcastToRoom("arena", game.TopicTimerUpdate, game.TimerUpdateEvent{MatchTime: 42})
	sink.Close()
	require.NoError(t, conn.Flush())

	select {
	case msg := <-received:
		assert.Equal(t, "soccer.room.arena.timerUpdate", msg.Subject)
		assert.JSONEq(t, `{"matchTime":42}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
