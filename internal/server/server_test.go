package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cmdunn/go-chatrelay/internal/config"
	"github.com/cmdunn/go-chatrelay/internal/stats"
	"github.com/cmdunn/go-chatrelay/internal/testutil"
)

// newTestChatServer creates a ChatServer for testing purposes.
func newTestChatServer(t *testing.T, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(4)

	cfg, err := config.NewConfig("localhost:8000", "General", 0, true, true, nil)
	if err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, cfg, su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func TestNewChatServer(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(4)

	cfg, err := config.NewConfig("localhost:8000", "General", 0, true, true, nil)
	require.NoError(t, err)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, cfg, su)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.NotNil(t, cs.sessions, "expected session registry to be initialized")
	assert.NotNil(t, cs.rooms, "expected room registry to be initialized")
	assert.NotNil(t, cs.fanout, "expected fanout to be initialized")
	assert.NotNil(t, cs.coord, "expected coordinator to be initialized")
	assert.NotNil(t, cs.inbound, "expected inbound channel to be initialized")
	assert.NotNil(t, cs.registerChan, "expected registerChan to be initialized")
	assert.NotNil(t, cs.deRegisterChan, "expected deRegisterChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")

	assert.True(t, cs.rooms.Exists(DefaultRoomId), "expected default room to exist")
}

func TestNewChatServer_NilConfig(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	cs, err := NewChatServer(testutil.TestLogger(t), nil, su)
	assert.Error(t, err, "expected error for nil config")
	assert.Nil(t, cs, "expected no ChatServer for nil config")
}

func TestChatServer_dispatch(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs := newTestChatServer(t, su)

	conn := &testConn{id: "c1"}
	cs.fanout.Register(conn)
	cs.sessions.Create(conn.id)

	// a populated union member routes to the matching transition
	cs.dispatch(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		SetName:     &SetName{Name: "alice"},
		connId:      conn.id,
	})
	sess, ok := cs.sessions.Get(conn.id)
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Name, "expected set_name to reach the coordinator")
	assert.Equal(t, DefaultRoomId, sess.RoomId, "expected auto-join to run")

	// an empty union is rejected
	conn.clear()
	cs.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, connId: conn.id})
	require.Len(t, conn.msgs, 1, "expected a rejection for an empty message")
	require.NotNil(t, conn.msgs[0].Response)
	assert.Equal(t, http.StatusBadRequest, conn.msgs[0].Response.ResponseCode)
}

func TestChatServer_Submit(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, su)

	ok := cs.Submit(&ClientMessage{BaseMessage: BaseMessage{Id: 1}})
	assert.True(t, ok, "expected submit to succeed with capacity available")
	assert.Len(t, cs.inbound, 1, "expected message to be queued")

	// saturate the queue
	for cs.Submit(&ClientMessage{}) {
	}
	ok = cs.Submit(&ClientMessage{BaseMessage: BaseMessage{Id: 2}})
	assert.False(t, ok, "expected submit to fail when saturated")
}

func TestChatServer_RoomList(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	cs := newTestChatServer(t, su)

	conn := &testConn{id: "c1"}
	cs.fanout.Register(conn)
	cs.sessions.Create(conn.id)
	cs.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, SetName: &SetName{Name: "alice"}, connId: conn.id})

	list := cs.RoomList()
	require.Len(t, list, 1)
	assert.Equal(t, DefaultRoomId, list[0].Id)
	assert.Equal(t, "General", list[0].Name)
	assert.False(t, list[0].RequiresSecret)
	assert.Equal(t, 1, list[0].NumMembers, "expected the auto-joined session to be counted")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-cs.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-cs.stop:
				// do not close req.done to simulate a hang
			case <-time.After(time.Second):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func TestChatServerRun_Integration(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.NumActiveSessions).Once()
	su.On("Decr", stats.NumActiveSessions).Once()
	su.On("Incr", stats.NumMessagesPublished).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, su)
	go cs.Run()

	conn := &testConn{id: "c1"}
	cs.RegisterConn(conn)

	require.Eventually(t, func() bool {
		_, ok := cs.sessions.Get(conn.id)
		return ok
	}, time.Second, 10*time.Millisecond, "expected session to be created")

	ok := cs.Submit(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		SetName:     &SetName{Name: "alice"},
		connId:      conn.id,
	})
	require.True(t, ok, "expected submit to succeed")

	require.Eventually(t, func() bool {
		sess, ok := cs.sessions.Get(conn.id)
		return ok && sess.RoomId == DefaultRoomId
	}, time.Second, 10*time.Millisecond, "expected session to be auto-joined")

	ok = cs.Submit(&ClientMessage{
		BaseMessage: BaseMessage{Id: 2},
		Publish:     &Publish{Content: "hi", Timestamp: Now()},
		connId:      conn.id,
	})
	require.True(t, ok, "expected submit to succeed")

	require.Eventually(t, func() bool {
		return len(cs.rooms.History(DefaultRoomId)) == 2
	}, time.Second, 10*time.Millisecond, "expected join event and message in history")

	cs.DeRegisterConn(conn)
	require.Eventually(t, func() bool {
		_, ok := cs.sessions.Get(conn.id)
		return !ok
	}, time.Second, 10*time.Millisecond, "expected session to be removed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := cs.Shutdown(ctx)
	assert.NoError(t, err, "expected successful shutdown without error")

	// shutdown ordering makes the event-loop writes visible: the initial
	// room list, the claim ack, the list broadcast, the room-joined
	// notification and the chat event
	require.NotEmpty(t, conn.msgs)
	assert.NotNil(t, conn.msgs[0].Notification, "expected initial room list on register")
	assert.NotNil(t, conn.msgs[0].Notification.RoomList)
}
