package server

import (
	"log"
	"sync"
)

// Conn is the abstract duplex channel to one connection. Queue must not
// block; it reports false when the message could not be accepted.
type Conn interface {
	Id() string
	Queue(msg *ServerMessage) bool
}

// Fanout delivers coordinator output to connections. A connection that
// cannot accept a message is skipped; delivery to the rest of the set
// always continues.
type Fanout struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	sessions *SessionRegistry
	log      *log.Logger
}

func NewFanout(logger *log.Logger, sessions *SessionRegistry) *Fanout {
	return &Fanout{
		conns:    make(map[string]Conn),
		sessions: sessions,
		log:      logger,
	}
}

func (f *Fanout) Register(c Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conns[c.Id()] = c
}

func (f *Fanout) Deregister(connId string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.conns, connId)
}

func (f *Fanout) ToConn(connId string, msg *ServerMessage) {
	f.mu.RLock()
	c, ok := f.conns[connId]
	f.mu.RUnlock()

	if !ok {
		return
	}
	if !c.Queue(msg) {
		f.log.Printf("dropped message for connection %q", connId)
	}
}

// ToRoom delivers msg to every session currently in roomId.
func (f *Fanout) ToRoom(roomId string, msg *ServerMessage) {
	f.ToRoomExcept(roomId, "", msg)
}

// ToRoomExcept delivers msg to every session in roomId other than
// exceptConn.
func (f *Fanout) ToRoomExcept(roomId, exceptConn string, msg *ServerMessage) {
	for _, connId := range f.sessions.ConnsInRoom(roomId) {
		if connId == exceptConn {
			continue
		}
		f.ToConn(connId, msg)
	}
}

func (f *Fanout) ToAll(msg *ServerMessage) {
	f.mu.RLock()
	conns := make([]Conn, 0, len(f.conns))
	for _, c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.RUnlock()

	for _, c := range conns {
		if !c.Queue(msg) {
			f.log.Printf("dropped message for connection %q", c.Id())
		}
	}
}
