package server

import (
	"log"
	"sync"
)

// Session is the server-side state bound to one live connection. A session
// starts anonymous; a name is claimed before any room can be occupied, and
// an empty RoomId means the session is in the lobby.
type Session struct {
	ConnId string
	Name   string
	RoomId string
}

// SessionRegistry tracks every live connection's identity and current
// room. Mutations only ever arrive from the chat server's event loop; the
// lock exists so read-side snapshots (fanout resolution, the HTTP room
// list) stay consistent.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *log.Logger
}

func NewSessionRegistry(logger *log.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		log:      logger,
	}
}

func (sr *SessionRegistry) Create(connId string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if _, ok := sr.sessions[connId]; ok {
		sr.log.Printf("session %q already exists", connId)
		return
	}
	sr.sessions[connId] = &Session{ConnId: connId}
}

// Get returns a copy of the session. A miss indicates a logic error
// upstream, since every live connection registers a session on connect.
func (sr *SessionRegistry) Get(connId string) (Session, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	s, ok := sr.sessions[connId]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (sr *SessionRegistry) SetName(connId, name string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	s, ok := sr.sessions[connId]
	if !ok {
		return ErrSessionGone
	}
	s.Name = name
	return nil
}

// SetRoom updates the session's current room. An empty roomId returns the
// session to the lobby.
func (sr *SessionRegistry) SetRoom(connId, roomId string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	s, ok := sr.sessions[connId]
	if !ok {
		return ErrSessionGone
	}
	s.RoomId = roomId
	return nil
}

func (sr *SessionRegistry) Remove(connId string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	delete(sr.sessions, connId)
}

// NameInUse reports whether name is held by a session currently occupying
// a room. Lobby and anonymous sessions do not reserve their names.
func (sr *SessionRegistry) NameInUse(name string) bool {
	return sr.NameInUseByOther(name, "")
}

// NameInUseByOther is NameInUse ignoring exceptConnId, so a session moving
// between rooms does not collide with itself.
func (sr *SessionRegistry) NameInUseByOther(name, exceptConnId string) bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	for _, s := range sr.sessions {
		if s.ConnId == exceptConnId {
			continue
		}
		if s.Name == name && s.RoomId != "" {
			return true
		}
	}
	return false
}

// ConnsInRoom returns the connection ids of every session whose current
// room is roomId.
func (sr *SessionRegistry) ConnsInRoom(roomId string) []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	var conns []string
	for _, s := range sr.sessions {
		if s.RoomId == roomId {
			conns = append(conns, s.ConnId)
		}
	}
	return conns
}

func (sr *SessionRegistry) Len() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	return len(sr.sessions)
}
