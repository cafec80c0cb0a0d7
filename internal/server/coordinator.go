package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/cmdunn/go-chatrelay/internal/stats"
	"github.com/cmdunn/go-chatrelay/internal/types"
)

// Policy holds the membership rules that differ between deployments.
type Policy struct {
	// AutoJoinDefaultRoom moves a session into the default room as soon as
	// it claims a name.
	AutoJoinDefaultRoom bool
	// AllowLeaveDefaultRoom permits leaving the default room back to the
	// lobby.
	AllowLeaveDefaultRoom bool
}

// Coordinator executes every membership transition as one atomic step over
// the two registries and hands the resulting notifications to the fanout.
// Callers must serialize mutating calls; the chat server's event loop is
// the single entry point at runtime.
type Coordinator struct {
	log      *log.Logger
	sessions *SessionRegistry
	rooms    *RoomRegistry
	fanout   *Fanout
	stats    stats.StatsProvider
	policy   Policy
}

func NewCoordinator(logger *log.Logger, sessions *SessionRegistry, rooms *RoomRegistry, fanout *Fanout, su stats.StatsProvider, policy Policy) *Coordinator {
	return &Coordinator{
		log:      logger,
		sessions: sessions,
		rooms:    rooms,
		fanout:   fanout,
		stats:    su,
		policy:   policy,
	}
}

// feedbackFor maps a rejection to the response sent back to the
// originating connection.
func feedbackFor(id int, err error) *ServerMessage {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrAlreadyInRoom):
		code = http.StatusConflict
	case errors.Is(err, ErrRoomNotFound):
		code = http.StatusNotFound
	}
	return ErrFeedback(id, code, err.Error())
}

// ClaimName assigns a session its first display name.
func (co *Coordinator) ClaimName(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok {
		co.log.Printf("set_name from unknown connection %q", msg.connId)
		return
	}

	name := strings.TrimSpace(msg.SetName.Name)
	if name == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)))
		return
	}
	if sess.Name != "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: name already set, use rename", ErrInvalidInput)))
		return
	}
	if co.sessions.NameInUse(name) {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNameTaken))
		return
	}

	if err := co.sessions.SetName(msg.connId, name); err != nil {
		co.log.Println("SetName:", err)
		co.fanout.ToConn(msg.connId, ErrInternalError(msg.Id))
		return
	}
	sess.Name = name

	co.fanout.ToConn(msg.connId, NoErrOK(msg.Id, map[string]any{"name": name}))
	co.broadcastRoomList()

	if co.policy.AutoJoinDefaultRoom {
		co.join(sess, DefaultRoomId, msg.Id)
	}
}

// Rename changes a session's display name, swapping the member entry in
// its current room if it occupies one.
func (co *Coordinator) Rename(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok {
		co.log.Printf("rename from unknown connection %q", msg.connId)
		return
	}
	if sess.Name == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNotNamedYet))
		return
	}

	name := strings.TrimSpace(msg.Rename.Name)
	if name == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)))
		return
	}
	if name == sess.Name {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: name unchanged", ErrInvalidInput)))
		return
	}
	if co.sessions.NameInUse(name) {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNameTaken))
		return
	}

	oldName := sess.Name
	if err := co.sessions.SetName(msg.connId, name); err != nil {
		co.log.Println("SetName:", err)
		co.fanout.ToConn(msg.connId, ErrInternalError(msg.Id))
		return
	}

	co.fanout.ToConn(msg.connId, NoErrOK(msg.Id, map[string]any{"name": name}))

	if sess.RoomId == "" {
		return
	}

	if err := co.rooms.SwapMember(sess.RoomId, oldName, name); err != nil {
		co.log.Println("SwapMember:", err)
		return
	}

	ev := types.Event{
		Kind:      types.EventSystem,
		Author:    types.SystemAuthor,
		Text:      fmt.Sprintf("%s is now known as %s", oldName, name),
		Timestamp: Now(),
	}
	if err := co.rooms.AppendHistory(sess.RoomId, ev); err != nil {
		co.log.Println("AppendHistory:", err)
	}
	co.fanout.ToRoom(sess.RoomId, eventMessage(sess.RoomId, ev))
	co.fanout.ToRoom(sess.RoomId, co.userListMessage(sess.RoomId))
}

// CreateRoomTransition registers a new secret-gated room and moves the
// creator into it.
func (co *Coordinator) CreateRoomTransition(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok {
		co.log.Printf("create_room from unknown connection %q", msg.connId)
		return
	}
	if sess.Name == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNotNamedYet))
		return
	}

	name := strings.TrimSpace(msg.CreateRoom.Name)
	secret := strings.TrimSpace(msg.CreateRoom.Secret)
	if name == "" || secret == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: room name and secret are required", ErrInvalidInput)))
		return
	}
	if len(secret) > MaxSecretLen {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: secret exceeds %d bytes", ErrInvalidInput, MaxSecretLen)))
		return
	}
	// Checked up front so a rejected join never leaves behind an empty
	// freshly created room.
	if co.sessions.NameInUseByOther(sess.Name, msg.connId) {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNameTaken))
		return
	}

	roomId, err := co.rooms.Create(name, secret)
	if err != nil {
		// A duplicate id means the generator misbehaved, not user error.
		co.log.Println("Create:", err)
		co.fanout.ToConn(msg.connId, ErrInternalError(msg.Id))
		return
	}
	co.stats.Incr(stats.NumActiveRooms)

	co.join(sess, roomId, msg.Id)
	co.broadcastRoomList()
}

// JoinBySecret moves a session into the room whose access secret matches.
func (co *Coordinator) JoinBySecret(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok {
		co.log.Printf("join_secret from unknown connection %q", msg.connId)
		return
	}
	if sess.Name == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNotNamedYet))
		return
	}

	secret := strings.TrimSpace(msg.JoinSecret.Secret)
	if secret == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: secret cannot be empty", ErrInvalidInput)))
		return
	}

	roomId, found := co.rooms.FindBySecret(secret)
	if !found {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrRoomNotFound))
		return
	}
	if sess.RoomId == roomId {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrAlreadyInRoom))
		return
	}

	co.join(sess, roomId, msg.Id)
}

// SwitchRoomTransition moves a session into a room it already knows by id.
// No secret re-check: visibility in the room list implies reachability.
func (co *Coordinator) SwitchRoomTransition(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok {
		co.log.Printf("switch_room from unknown connection %q", msg.connId)
		return
	}
	if sess.Name == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNotNamedYet))
		return
	}
	if !co.rooms.Exists(msg.SwitchRoom.RoomId) {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrRoomNotFound))
		return
	}
	if sess.RoomId == msg.SwitchRoom.RoomId {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrAlreadyInRoom))
		return
	}

	co.join(sess, msg.SwitchRoom.RoomId, msg.Id)
}

// LeaveCurrent returns a session from its current room to the lobby.
func (co *Coordinator) LeaveCurrent(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok {
		co.log.Printf("leave from unknown connection %q", msg.connId)
		return
	}
	if sess.RoomId == "" {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, ErrNotInRoom))
		return
	}
	if sess.RoomId == DefaultRoomId && !co.policy.AllowLeaveDefaultRoom {
		co.fanout.ToConn(msg.connId, feedbackFor(msg.Id, fmt.Errorf("%w: cannot leave the default room", ErrInvalidInput)))
		return
	}

	co.leave(sess)
	co.fanout.ToConn(msg.connId, NoErrOK(msg.Id, nil))
	co.fanout.ToConn(msg.connId, &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Lobby: &LobbyReturn{}},
	})
}

// Disconnect runs the final leave for a connection and removes its
// session.
func (co *Coordinator) Disconnect(connId string) {
	sess, ok := co.sessions.Get(connId)
	if !ok {
		return
	}
	if sess.RoomId != "" {
		co.leave(sess)
	}
	co.sessions.Remove(connId)
}

// PostMessage appends a message or action event to the session's current
// room and broadcasts it, sender included. Messages from sessions not
// named or not in a room are dropped without feedback: the client may
// simply have raced a leave.
func (co *Coordinator) PostMessage(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok || sess.Name == "" || sess.RoomId == "" {
		co.stats.Incr(stats.NumEventsDropped)
		return
	}
	if strings.TrimSpace(msg.Publish.Content) == "" {
		co.stats.Incr(stats.NumEventsDropped)
		return
	}

	kind := types.EventMessage
	if msg.Publish.Action {
		kind = types.EventAction
	}

	ts := msg.Publish.Timestamp
	if ts.IsZero() {
		ts = Now()
	}

	ev := types.Event{
		Kind:      kind,
		Author:    sess.Name,
		Text:      msg.Publish.Content,
		Timestamp: ts,
	}
	if err := co.rooms.AppendHistory(sess.RoomId, ev); err != nil {
		co.log.Println("AppendHistory:", err)
		return
	}

	co.stats.Incr(stats.NumMessagesPublished)
	co.fanout.ToRoom(sess.RoomId, eventMessage(sess.RoomId, ev))
}

// SetTyping notifies the other members of the session's room of a typing
// state change. Ephemeral: nothing is recorded in history.
func (co *Coordinator) SetTyping(msg *ClientMessage) {
	sess, ok := co.sessions.Get(msg.connId)
	if !ok || sess.Name == "" || sess.RoomId == "" || sess.RoomId != msg.Typing.RoomId {
		return
	}

	co.fanout.ToRoomExcept(sess.RoomId, msg.connId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Typing: &TypingState{
				RoomId: sess.RoomId,
				Author: sess.Name,
				Active: msg.Typing.Active,
			},
		},
	})
}

// join is the internal primitive behind create/switch/join-by-secret. The
// session leaves its current room first, so a name never occupies two
// member sets.
func (co *Coordinator) join(sess Session, roomId string, msgId int) {
	// With auto-join disabled two lobby sessions may hold the same name;
	// entering a room is the point where uniqueness must hold.
	if co.sessions.NameInUseByOther(sess.Name, sess.ConnId) {
		co.fanout.ToConn(sess.ConnId, feedbackFor(msgId, ErrNameTaken))
		return
	}

	if sess.RoomId != "" {
		co.leave(sess)
		sess.RoomId = ""
	}

	if err := co.rooms.AddMember(roomId, sess.Name); err != nil {
		co.log.Println("AddMember:", err)
		co.fanout.ToConn(sess.ConnId, ErrInternalError(msgId))
		return
	}
	if err := co.sessions.SetRoom(sess.ConnId, roomId); err != nil {
		co.log.Println("SetRoom:", err)
		co.rooms.RemoveMember(roomId, sess.Name)
		return
	}

	ev := types.Event{
		Kind:      types.EventSystem,
		Author:    types.SystemAuthor,
		Text:      fmt.Sprintf("%s joined the room", sess.Name),
		Timestamp: Now(),
	}
	if err := co.rooms.AppendHistory(roomId, ev); err != nil {
		co.log.Println("AppendHistory:", err)
	}

	roomName, _ := co.rooms.NameOf(roomId)
	co.fanout.ToConn(sess.ConnId, &ServerMessage{
		BaseMessage: BaseMessage{Id: msgId, Timestamp: Now()},
		Notification: &Notification{
			RoomJoined: &RoomJoined{
				RoomId:  roomId,
				Name:    roomName,
				Members: co.rooms.Members(roomId),
				History: co.rooms.History(roomId),
			},
		},
	})

	co.fanout.ToRoomExcept(roomId, sess.ConnId, eventMessage(roomId, ev))
	co.fanout.ToRoomExcept(roomId, sess.ConnId, co.userListMessage(roomId))
}

// leave removes a session from its current room, notifying the remaining
// members and deleting the room if it emptied and is not the default.
func (co *Coordinator) leave(sess Session) {
	roomId := sess.RoomId
	if err := co.rooms.RemoveMember(roomId, sess.Name); err != nil {
		co.log.Println("RemoveMember:", err)
		return
	}
	if err := co.sessions.SetRoom(sess.ConnId, ""); err != nil {
		co.log.Println("SetRoom:", err)
	}

	if roomId != DefaultRoomId && co.rooms.MemberCount(roomId) == 0 {
		if err := co.rooms.Delete(roomId); err != nil {
			co.log.Println("Delete:", err)
		}
		co.stats.Decr(stats.NumActiveRooms)
		co.broadcastRoomList()
		return
	}

	ev := types.Event{
		Kind:      types.EventSystem,
		Author:    types.SystemAuthor,
		Text:      fmt.Sprintf("%s left the room", sess.Name),
		Timestamp: Now(),
	}
	if err := co.rooms.AppendHistory(roomId, ev); err != nil {
		co.log.Println("AppendHistory:", err)
	}
	co.fanout.ToRoom(roomId, eventMessage(roomId, ev))
	co.fanout.ToRoom(roomId, co.userListMessage(roomId))
}

func (co *Coordinator) broadcastRoomList() {
	co.fanout.ToAll(co.roomListMessage())
}

func (co *Coordinator) roomListMessage() *ServerMessage {
	return &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{RoomList: co.rooms.List()},
	}
}

func (co *Coordinator) userListMessage(roomId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			UserList: &UserList{
				RoomId:  roomId,
				Members: co.rooms.Members(roomId),
			},
		},
	}
}

func eventMessage(roomId string, ev types.Event) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: ev.Timestamp},
		Event:       &RoomEvent{RoomId: roomId, Event: ev},
	}
}
