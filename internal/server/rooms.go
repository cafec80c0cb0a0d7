package server

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/teris-io/shortid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cmdunn/go-chatrelay/internal/types"
)

// DefaultRoomId is the fixed id of the always-present room. It requires no
// secret and is never deleted.
const DefaultRoomId = "default"

// MaxSecretLen is bcrypt's input limit; longer secrets are rejected as
// invalid input before hashing.
const MaxSecretLen = 72

type room struct {
	id         string
	name       string
	secretHash []byte
	members    map[string]struct{}
	history    []types.Event
}

// RoomRegistry tracks room metadata, membership and history. Like the
// session registry, it is mutated only from the serialized event loop; the
// lock covers concurrent read-side queries.
type RoomRegistry struct {
	mu           sync.RWMutex
	rooms        map[string]*room
	historyLimit int
	log          *log.Logger
}

// NewRoomRegistry creates a registry. historyLimit caps retained history
// per room; zero keeps every event.
func NewRoomRegistry(logger *log.Logger, historyLimit int) *RoomRegistry {
	return &RoomRegistry{
		rooms:        make(map[string]*room),
		historyLimit: historyLimit,
		log:          logger,
	}
}

// EnsureDefaultRoom registers the default room if absent. Idempotent;
// called once at startup.
func (rr *RoomRegistry) EnsureDefaultRoom(name string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, ok := rr.rooms[DefaultRoomId]; ok {
		return
	}
	rr.rooms[DefaultRoomId] = &room{
		id:      DefaultRoomId,
		name:    name,
		members: make(map[string]struct{}),
	}
}

// Create registers a new secret-gated room and returns its generated id.
// The secret is stored hashed; it never leaves the registry.
func (rr *RoomRegistry) Create(name, secret string) (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, ok := rr.rooms[id]; ok {
		return "", ErrDuplicateRoom
	}
	rr.rooms[id] = &room{
		id:         id,
		name:       name,
		secretHash: hash,
		members:    make(map[string]struct{}),
	}
	return id, nil
}

func (rr *RoomRegistry) Exists(roomId string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	_, ok := rr.rooms[roomId]
	return ok
}

func (rr *RoomRegistry) NameOf(roomId string) (string, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return "", false
	}
	return r.name, true
}

// FindBySecret scans for the first room whose access secret matches.
func (rr *RoomRegistry) FindBySecret(secret string) (string, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	for _, id := range rr.sortedIds() {
		r := rr.rooms[id]
		if len(r.secretHash) == 0 {
			continue
		}
		if bcrypt.CompareHashAndPassword(r.secretHash, []byte(secret)) == nil {
			return r.id, true
		}
	}
	return "", false
}

func (rr *RoomRegistry) AddMember(roomId, name string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return ErrRoomNotFound
	}
	r.members[name] = struct{}{}
	return nil
}

func (rr *RoomRegistry) RemoveMember(roomId, name string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return ErrRoomNotFound
	}
	delete(r.members, name)
	return nil
}

// SwapMember replaces oldName with newName in one step so a rename never
// shows a transient member-count change.
func (rr *RoomRegistry) SwapMember(roomId, oldName, newName string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return ErrRoomNotFound
	}
	delete(r.members, oldName)
	r.members[newName] = struct{}{}
	return nil
}

func (rr *RoomRegistry) Members(roomId string) []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(r.members))
	for name := range r.members {
		members = append(members, name)
	}
	sort.Strings(members)
	return members
}

func (rr *RoomRegistry) MemberCount(roomId string) int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return 0
	}
	return len(r.members)
}

// AppendHistory appends ev to the room's history, discarding the oldest
// entries when a history limit is configured.
func (rr *RoomRegistry) AppendHistory(roomId string, ev types.Event) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return ErrRoomNotFound
	}
	r.history = append(r.history, ev)
	if rr.historyLimit > 0 && len(r.history) > rr.historyLimit {
		r.history = r.history[len(r.history)-rr.historyLimit:]
	}
	return nil
}

// History returns a copy of the room's history in append order.
func (rr *RoomRegistry) History(roomId string) []types.Event {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	r, ok := rr.rooms[roomId]
	if !ok {
		return nil
	}
	history := make([]types.Event, len(r.history))
	copy(history, r.history)
	return history
}

// Delete removes a room. Deleting the default room is refused.
func (rr *RoomRegistry) Delete(roomId string) error {
	if roomId == DefaultRoomId {
		return fmt.Errorf("cannot delete default room")
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, ok := rr.rooms[roomId]; !ok {
		return ErrRoomNotFound
	}
	delete(rr.rooms, roomId)
	return nil
}

// List returns room summaries, default room first, then by display name.
func (rr *RoomRegistry) List() []types.RoomSummary {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	summaries := make([]types.RoomSummary, 0, len(rr.rooms))
	for _, r := range rr.rooms {
		summaries = append(summaries, types.RoomSummary{
			Id:             r.id,
			Name:           r.name,
			RequiresSecret: len(r.secretHash) > 0,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Id == DefaultRoomId {
			return true
		}
		if summaries[j].Id == DefaultRoomId {
			return false
		}
		if summaries[i].Name != summaries[j].Name {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].Id < summaries[j].Id
	})
	return summaries
}

func (rr *RoomRegistry) Len() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return len(rr.rooms)
}

// sortedIds keeps FindBySecret deterministic when two rooms share a
// secret. Caller must hold the lock.
func (rr *RoomRegistry) sortedIds() []string {
	ids := make([]string, 0, len(rr.rooms))
	for id := range rr.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
