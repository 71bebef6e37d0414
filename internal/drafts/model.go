package drafts

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidConversationID indicates that a conversation identifier is empty or exceeds storage bounds.
	ErrInvalidConversationID = errors.New("drafts: invalid conversation id")
	// ErrVersionNotFound indicates that a version index does not address an existing version.
	ErrVersionNotFound = errors.New("drafts: version not found")
	// ErrEmptySnapshot indicates that a new version was requested without content.
	ErrEmptySnapshot = errors.New("drafts: empty snapshot")
	// ErrUnknownEvent indicates that the reducer received an event it does not handle.
	ErrUnknownEvent = errors.New("drafts: unknown event")
)

// ConversationID represents a validated conversation identifier.
type ConversationID string

// NewConversationID validates raw input and returns a ConversationID.
func NewConversationID(rawInput string) (ConversationID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidConversationID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidConversationID, maxIdentifierLength)
	}
	return ConversationID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ConversationID) String() string {
	return string(id)
}

// Snapshot is an immutable capture of editor markup at one point in time.
type Snapshot string

// String returns the snapshot markup.
func (s Snapshot) String() string {
	return string(s)
}

// EventKind names the history operations recorded for a document.
type EventKind string

const (
	EventNewVersion    EventKind = "new_version"
	EventPushEdit      EventKind = "push_edit"
	EventUndo          EventKind = "undo"
	EventRedo          EventKind = "redo"
	EventSelectVersion EventKind = "select_version"
)

// Event is one history operation applied by Reduce.
type Event interface {
	Kind() EventKind
}

// NewVersion appends a version seeded with Content and makes it active.
type NewVersion struct {
	Content Snapshot
}

// PushEdit records Content as the next state of the addressed version.
type PushEdit struct {
	VersionIndex int
	Content      Snapshot
}

// Undo steps the addressed version back one snapshot.
type Undo struct {
	VersionIndex int
}

// Redo re-applies the most recently undone snapshot of the addressed version.
type Redo struct {
	VersionIndex int
}

// SelectVersion switches the active version.
type SelectVersion struct {
	VersionIndex int
}

func (NewVersion) Kind() EventKind    { return EventNewVersion }
func (PushEdit) Kind() EventKind      { return EventPushEdit }
func (Undo) Kind() EventKind          { return EventUndo }
func (Redo) Kind() EventKind          { return EventRedo }
func (SelectVersion) Kind() EventKind { return EventSelectVersion }

// Transition reports what a reduced event did to the document.
type Transition struct {
	Kind         EventKind
	Changed      bool
	VersionIndex int
	ActiveIndex  int
	// Content is the snapshot the editor should display after the event.
	Content Snapshot
}
