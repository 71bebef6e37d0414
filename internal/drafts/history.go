package drafts

import (
	"fmt"
	"slices"
)

// Version is one independently tracked draft with its own linear history.
// The last undo entry always equals the version's current content.
type Version struct {
	content   Snapshot
	undoStack []Snapshot
	redoStack []Snapshot
}

func newVersion(content Snapshot) Version {
	return Version{content: content, undoStack: []Snapshot{content}}
}

// Content returns the snapshot the version currently shows.
func (v Version) Content() Snapshot {
	return v.content
}

// CanUndo reports whether an earlier snapshot is available.
func (v Version) CanUndo() bool {
	return len(v.undoStack) > 1
}

// CanRedo reports whether an undone snapshot can be re-applied.
func (v Version) CanRedo() bool {
	return len(v.redoStack) > 0
}

// UndoDepth returns the number of entries in the undo stack, current content included.
func (v Version) UndoDepth() int {
	return len(v.undoStack)
}

// RedoDepth returns the number of undone snapshots.
func (v Version) RedoDepth() int {
	return len(v.redoStack)
}

// Document holds every draft version of one conversation and the active selection.
// Values are never mutated in place; Reduce returns a new Document.
type Document struct {
	versions    []Version
	activeIndex int
}

// NewDocument returns an empty document with no active version.
func NewDocument() Document {
	return Document{activeIndex: -1}
}

// ActiveIndex returns the active version index, or -1 when there is none.
func (d Document) ActiveIndex() int {
	return d.activeIndex
}

// Len returns the number of versions.
func (d Document) Len() int {
	return len(d.versions)
}

// Version returns the version at index.
func (d Document) Version(index int) (Version, bool) {
	if index < 0 || index >= len(d.versions) {
		return Version{}, false
	}
	return d.versions[index], true
}

// Versions returns the versions in creation order.
func (d Document) Versions() []Version {
	return slices.Clone(d.versions)
}

// Current returns the active version's content.
func (d Document) Current() (Snapshot, bool) {
	version, ok := d.Version(d.activeIndex)
	if !ok {
		return "", false
	}
	return version.content, true
}

// Reduce applies a history event to state and returns the resulting document.
// Undo and redo with nothing to step over are no-ops rather than errors.
func Reduce(state Document, event Event) (Document, Transition, error) {
	switch typed := event.(type) {
	case NewVersion:
		return reduceNewVersion(state, typed)
	case PushEdit:
		return reducePushEdit(state, typed)
	case Undo:
		return reduceUndo(state, typed)
	case Redo:
		return reduceRedo(state, typed)
	case SelectVersion:
		return reduceSelectVersion(state, typed)
	default:
		return state, Transition{}, fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
}

func reduceNewVersion(state Document, event NewVersion) (Document, Transition, error) {
	if event.Content == "" {
		return state, Transition{}, ErrEmptySnapshot
	}
	versions := make([]Version, len(state.versions), len(state.versions)+1)
	copy(versions, state.versions)
	versions = append(versions, newVersion(event.Content))
	index := len(versions) - 1

	next := Document{versions: versions, activeIndex: index}
	return next, Transition{
		Kind:         EventNewVersion,
		Changed:      true,
		VersionIndex: index,
		ActiveIndex:  index,
		Content:      event.Content,
	}, nil
}

func reducePushEdit(state Document, event PushEdit) (Document, Transition, error) {
	version, err := state.lookup(event.VersionIndex)
	if err != nil {
		return state, Transition{}, err
	}
	if event.Content == version.content {
		return state, state.unchanged(EventPushEdit, event.VersionIndex, version), nil
	}

	updated := Version{
		content:   event.Content,
		undoStack: append(slices.Clip(version.undoStack), event.Content),
	}
	return state.withVersion(EventPushEdit, event.VersionIndex, updated)
}

func reduceUndo(state Document, event Undo) (Document, Transition, error) {
	version, err := state.lookup(event.VersionIndex)
	if err != nil {
		return state, Transition{}, err
	}
	if !version.CanUndo() {
		return state, state.unchanged(EventUndo, event.VersionIndex, version), nil
	}

	last := len(version.undoStack) - 1
	undone := version.undoStack[last]
	undoStack := slices.Clone(version.undoStack[:last])
	updated := Version{
		content:   undoStack[len(undoStack)-1],
		undoStack: undoStack,
		redoStack: append(slices.Clip(version.redoStack), undone),
	}
	return state.withVersion(EventUndo, event.VersionIndex, updated)
}

func reduceRedo(state Document, event Redo) (Document, Transition, error) {
	version, err := state.lookup(event.VersionIndex)
	if err != nil {
		return state, Transition{}, err
	}
	if !version.CanRedo() {
		return state, state.unchanged(EventRedo, event.VersionIndex, version), nil
	}

	last := len(version.redoStack) - 1
	redone := version.redoStack[last]
	updated := Version{
		content:   redone,
		undoStack: append(slices.Clip(version.undoStack), redone),
		redoStack: slices.Clone(version.redoStack[:last]),
	}
	return state.withVersion(EventRedo, event.VersionIndex, updated)
}

func reduceSelectVersion(state Document, event SelectVersion) (Document, Transition, error) {
	version, err := state.lookup(event.VersionIndex)
	if err != nil {
		return state, Transition{}, err
	}
	next := Document{versions: state.versions, activeIndex: event.VersionIndex}
	return next, Transition{
		Kind:         EventSelectVersion,
		Changed:      event.VersionIndex != state.activeIndex,
		VersionIndex: event.VersionIndex,
		ActiveIndex:  event.VersionIndex,
		Content:      version.content,
	}, nil
}

func (d Document) lookup(index int) (Version, error) {
	version, ok := d.Version(index)
	if !ok {
		return Version{}, fmt.Errorf("%w: index %d of %d", ErrVersionNotFound, index, len(d.versions))
	}
	return version, nil
}

func (d Document) unchanged(kind EventKind, index int, version Version) Transition {
	return Transition{
		Kind:         kind,
		VersionIndex: index,
		ActiveIndex:  d.activeIndex,
		Content:      version.content,
	}
}

func (d Document) withVersion(kind EventKind, index int, version Version) (Document, Transition, error) {
	versions := slices.Clone(d.versions)
	versions[index] = version
	next := Document{versions: versions, activeIndex: d.activeIndex}
	return next, Transition{
		Kind:         kind,
		Changed:      true,
		VersionIndex: index,
		ActiveIndex:  d.activeIndex,
		Content:      version.content,
	}, nil
}
