// Package lifecycle reconstructs the history of a single Kubernetes resource from
// its audit events.
//
// Events arrive newest-first. FilterEvents narrows the list that is shown to a user,
// while ResolvePreviousState and BuildTimeline always work against the complete,
// unfiltered chronology so that hiding events never changes which snapshot a change
// is compared with.
package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the normalized verb of a lifecycle event.
type EventType string

const (
	EventTypeCreate EventType = "CREATE"
	EventTypeUpdate EventType = "UPDATE"
	EventTypeDelete EventType = "DELETE"
	EventTypeGet    EventType = "GET"
	EventTypeList   EventType = "LIST"
	EventTypeWatch  EventType = "WATCH"
	EventTypePatch  EventType = "PATCH"
)

var eventTypes = map[string]EventType{
	"create": EventTypeCreate,
	"update": EventTypeUpdate,
	"delete": EventTypeDelete,
	"get":    EventTypeGet,
	"list":   EventTypeList,
	"watch":  EventTypeWatch,
	"patch":  EventTypePatch,
}

// ParseEventType converts a raw verb in any letter case to an EventType.
func ParseEventType(s string) (EventType, error) {
	t, ok := eventTypes[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, ok := eventTypes[strings.ToLower(string(t))]
	return ok
}

// Verb returns the lowercase Kubernetes verb for t.
func (t EventType) Verb() string {
	return strings.ToLower(string(t))
}

// Snapshot is an opaque JSON document holding the state of a resource at one point
// in time. An empty Snapshot means no state was recorded.
type Snapshot []byte

// SnapshotFromObject encodes obj as a Snapshot.
func SnapshotFromObject(obj any) (Snapshot, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotParsing, err)
	}
	return Snapshot(data), nil
}

// IsEmpty reports whether the snapshot carries no document. The JSON literal null
// counts as empty.
func (s Snapshot) IsEmpty() bool {
	trimmed := bytes.TrimSpace(s)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the snapshot into an object map.
func (s Snapshot) Decode() (map[string]any, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(s, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s Snapshot) String() string {
	return string(s)
}

// MarshalJSON embeds the snapshot as a raw JSON value, or null when empty.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return []byte("null"), nil
	}
	if !json.Valid(s) {
		// Keep invalid documents visible to clients instead of failing the response.
		return json.Marshal(string(s))
	}
	return []byte(s), nil
}

// UnmarshalJSON accepts either an embedded JSON document or a JSON string that
// contains one.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		*s = Snapshot(encoded)
		return nil
	}
	*s = append((*s)[:0], trimmed...)
	return nil
}

// FieldChange describes a single modified field. Values are JSON encoded.
type FieldChange struct {
	Path     string `json:"path"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// ResourceDiff is a structured comparison between two snapshots.
type ResourceDiff struct {
	// Added holds flattened dot paths that only exist in the newer snapshot.
	Added Snapshot `json:"added,omitempty"`
	// Removed holds flattened dot paths that only exist in the older snapshot.
	Removed Snapshot `json:"removed,omitempty"`
	// Modified is ordered by path.
	Modified []FieldChange `json:"modified,omitempty"`
}

// IsEmpty reports whether the diff records no change at all.
func (d *ResourceDiff) IsEmpty() bool {
	if d == nil {
		return true
	}
	return isEmptyObject(d.Added) && isEmptyObject(d.Removed) && len(d.Modified) == 0
}

func isEmptyObject(s Snapshot) bool {
	if s.IsEmpty() {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(s), []byte("{}"))
}

// Event is one audit record in a resource's lifecycle.
type Event struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	Timestamp     time.Time     `json:"timestamp"`
	User          string        `json:"user"`
	ResourceState Snapshot      `json:"resourceState,omitempty"`
	Diff          *ResourceDiff `json:"diff,omitempty"`
}

// TimelineEntry pairs an event with the state it should be compared against.
type TimelineEntry struct {
	Event Event
	// PreviousState is only meaningful when HasPreviousState is true.
	PreviousState    Snapshot
	HasPreviousState bool
}
