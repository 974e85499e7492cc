package model

// EventType is the kind of change carried by a watch event.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
	// EventError terminates a watch stream; Err is set.
	EventError EventType = "ERROR"
)

// WatchEvent is a single item of a watch stream.
type WatchEvent struct {
	Type EventType
	Item ResourceItem
	Err  error
}

// Target names a watch subscription.
type Target struct {
	Context   string
	Namespace string
	Type      ResourceType
}

func (t Target) String() string {
	return t.Context + "/" + t.Namespace + "/" + t.Type.String()
}
