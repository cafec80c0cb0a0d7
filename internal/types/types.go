package types

import (
	"time"
)

// EventKind classifies a room history entry.
type EventKind string

const (
	EventSystem  EventKind = "system"
	EventMessage EventKind = "message"
	EventAction  EventKind = "action"
)

// SystemAuthor is the author recorded on server-generated events.
const SystemAuthor = "system"

// Event is a single entry in a room's history. System events are stamped
// by the server; message and action events carry the client-supplied
// timestamp.
type Event struct {
	Kind      EventKind `json:"kind"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomSummary is the listing view of a room. The access secret itself is
// never exposed, only whether one is required.
type RoomSummary struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	RequiresSecret bool   `json:"requires_secret"`
}
