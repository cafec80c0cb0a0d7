package server

import (
	"context"
	"fmt"
	"log"

	"github.com/cmdunn/go-chatrelay/internal/config"
	"github.com/cmdunn/go-chatrelay/internal/stats"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer owns all mutable membership state. Inbound events from any
// number of connections funnel into one event loop, which is the single
// serialization point for every transition the coordinator runs.
type ChatServer struct {
	log      *log.Logger
	stats    stats.StatsProvider
	sessions *SessionRegistry
	rooms    *RoomRegistry
	fanout   *Fanout
	coord    *Coordinator

	inbound        chan *ClientMessage
	registerChan   chan Conn
	deRegisterChan chan Conn
	stop           chan stopReq
}

func NewChatServer(logger *log.Logger, cfg *config.Config, su stats.StatsProvider) (*ChatServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	sessions := NewSessionRegistry(logger)
	rooms := NewRoomRegistry(logger, cfg.HistoryLimit)
	rooms.EnsureDefaultRoom(cfg.DefaultRoomName)

	fanout := NewFanout(logger, sessions)
	coord := NewCoordinator(logger, sessions, rooms, fanout, su, Policy{
		AutoJoinDefaultRoom:   cfg.AutoJoinDefaultRoom,
		AllowLeaveDefaultRoom: cfg.AllowLeaveDefaultRoom,
	})

	su.RegisterMetric(stats.NumActiveSessions)
	su.RegisterMetric(stats.NumActiveRooms)
	su.RegisterMetric(stats.NumMessagesPublished)
	su.RegisterMetric(stats.NumEventsDropped)

	return &ChatServer{
		log:            logger,
		stats:          su,
		sessions:       sessions,
		rooms:          rooms,
		fanout:         fanout,
		coord:          coord,
		inbound:        make(chan *ClientMessage, 256),
		registerChan:   make(chan Conn),
		deRegisterChan: make(chan Conn),
		stop:           make(chan stopReq),
	}, nil
}

// RoomList exposes a read-only snapshot for the HTTP API.
func (cs *ChatServer) RoomList() []RoomListEntry {
	summaries := cs.rooms.List()
	entries := make([]RoomListEntry, len(summaries))
	for i, s := range summaries {
		entries[i] = RoomListEntry{
			RoomSummary: s,
			NumMembers:  cs.rooms.MemberCount(s.Id),
		}
	}
	return entries
}

// Run processes one inbound event at a time until Shutdown.
func (cs *ChatServer) Run() {
	for {
		select {
		case conn := <-cs.registerChan:
			cs.log.Printf("registering connection %q", conn.Id())
			cs.fanout.Register(conn)
			cs.sessions.Create(conn.Id())
			cs.stats.Incr(stats.NumActiveSessions)
			cs.fanout.ToConn(conn.Id(), cs.coord.roomListMessage())
		case conn := <-cs.deRegisterChan:
			cs.log.Printf("deregistering connection %q", conn.Id())
			cs.coord.Disconnect(conn.Id())
			cs.fanout.Deregister(conn.Id())
			cs.stats.Decr(stats.NumActiveSessions)
		case msg := <-cs.inbound:
			cs.dispatch(msg)
		case req := <-cs.stop:
			cs.log.Println("event loop stopping")
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) dispatch(msg *ClientMessage) {
	switch {
	case msg.SetName != nil:
		cs.coord.ClaimName(msg)
	case msg.Rename != nil:
		cs.coord.Rename(msg)
	case msg.CreateRoom != nil:
		cs.coord.CreateRoomTransition(msg)
	case msg.JoinSecret != nil:
		cs.coord.JoinBySecret(msg)
	case msg.SwitchRoom != nil:
		cs.coord.SwitchRoomTransition(msg)
	case msg.Leave != nil:
		cs.coord.LeaveCurrent(msg)
	case msg.Publish != nil:
		cs.coord.PostMessage(msg)
	case msg.Typing != nil:
		cs.coord.SetTyping(msg)
	default:
		cs.log.Printf("empty message from connection %q", msg.connId)
		cs.fanout.ToConn(msg.connId, ErrInvalidMessage(msg.Id))
	}
}

// RegisterConn hands a new connection to the event loop.
func (cs *ChatServer) RegisterConn(c Conn) {
	cs.registerChan <- c
}

// DeRegisterConn runs the disconnect transition for a closed connection.
func (cs *ChatServer) DeRegisterConn(c Conn) {
	cs.deRegisterChan <- c
}

// Submit queues an inbound event. It reports false when the server is
// saturated; callers surface that to the client.
func (cs *ChatServer) Submit(msg *ClientMessage) bool {
	select {
	case cs.inbound <- msg:
		return true
	default:
		return false
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
