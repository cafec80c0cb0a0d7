package server

import (
	"net/http"
	"time"

	"github.com/cmdunn/go-chatrelay/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the inbound envelope. Exactly one of the operation
// fields is expected to be set per message.
type ClientMessage struct {
	BaseMessage
	SetName    *SetName    `json:"set_name,omitempty"`
	Rename     *Rename     `json:"rename,omitempty"`
	CreateRoom *CreateRoom `json:"create_room,omitempty"`
	JoinSecret *JoinSecret `json:"join_secret,omitempty"`
	SwitchRoom *SwitchRoom `json:"switch_room,omitempty"`
	Leave      *Leave      `json:"leave,omitempty"`
	Publish    *Publish    `json:"publish,omitempty"`
	Typing     *Typing     `json:"typing,omitempty"`

	connId string `json:"-"`
}

type SetName struct {
	Name string `json:"name"`
}

type Rename struct {
	Name string `json:"name"`
}

type CreateRoom struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type JoinSecret struct {
	Secret string `json:"secret"`
}

type SwitchRoom struct {
	RoomId string `json:"room_id"`
}

type Leave struct{}

type Publish struct {
	Content   string    `json:"content"`
	Action    bool      `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Typing struct {
	RoomId string `json:"room_id"`
	Active bool   `json:"active"`
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Event        *RoomEvent    `json:"event,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// RoomEvent is a history entry addressed to a room's members.
type RoomEvent struct {
	RoomId string `json:"room_id"`
	types.Event
}

type Notification struct {
	RoomList   []types.RoomSummary `json:"room_list,omitempty"`
	UserList   *UserList           `json:"user_list,omitempty"`
	RoomJoined *RoomJoined         `json:"room_joined,omitempty"`
	Typing     *TypingState        `json:"typing,omitempty"`
	Lobby      *LobbyReturn        `json:"lobby,omitempty"`
}

type UserList struct {
	RoomId  string   `json:"room_id"`
	Members []string `json:"members"`
}

// RoomJoined is the full room state delivered to a connection that just
// entered a room.
type RoomJoined struct {
	RoomId  string        `json:"room_id"`
	Name    string        `json:"name"`
	Members []string      `json:"members"`
	History []types.Event `json:"history"`
}

type TypingState struct {
	RoomId string `json:"room_id"`
	Author string `json:"author"`
	Active bool   `json:"active"`
}

type LobbyReturn struct{}

// RoomListEntry augments a room summary with its live member count for
// the HTTP listing.
type RoomListEntry struct {
	types.RoomSummary
	NumMembers int `json:"num_members"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrFeedback(id, code int, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        reason,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return ErrFeedback(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return ErrFeedback(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := ErrFeedback(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
