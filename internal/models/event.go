package models

import "time"

// EventKind is the kind of filesystem change.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventDeleted  EventKind = "deleted"
	EventModified EventKind = "modified"
	EventMoved    EventKind = "moved"
)

// Event is a change notification for one document path. DestPath is only set
// for EventMoved.
type Event struct {
	Kind     EventKind
	Path     string
	DestPath string
	Time     time.Time
}
