package lifecycle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"k8s.io/klog/v2"
)

// FromAuditEvent converts an API-server audit event into a lifecycle event.
//
// The resource state is taken from the response object. Creates and updates fall
// back to the request object when the response is empty or only a Status; a patch
// request body is a partial document and is never used. Delete events carry no
// state.
func FromAuditEvent(ev auditv1.Event) (Event, error) {
	verb := strings.ToLower(ev.Verb)
	if verb == "deletecollection" {
		verb = "delete"
	}
	t, err := ParseEventType(verb)
	if err != nil {
		return Event{}, fmt.Errorf("audit event %s: %w", ev.AuditID, err)
	}

	out := Event{
		ID:        string(ev.AuditID),
		Type:      t,
		Timestamp: ev.StageTimestamp.Time,
		User:      ev.User.Username,
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = ev.RequestReceivedTimestamp.Time
	}

	if t != EventTypeDelete {
		out.ResourceState = objectState(ev, t)
	}
	return out, nil
}

// FromAuditEvents converts a newest-first list of audit events, dropping events with
// verbs that do not describe the lifecycle of a resource (for example proxy or
// impersonate). The result is sorted newest-first.
func FromAuditEvents(events []auditv1.Event) []Event {
	out := make([]Event, 0, len(events))
	for i := range events {
		e, err := FromAuditEvent(events[i])
		if err != nil {
			klog.V(4).InfoS("Skipping audit event", "auditID", events[i].AuditID, "verb", events[i].Verb, "err", err)
			continue
		}
		out = append(out, e)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders events by timestamp descending. Events with the same
// timestamp are ordered by ID descending so that the order is stable across
// requests.
func SortNewestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID > events[j].ID
	})
}

func objectState(ev auditv1.Event, t EventType) Snapshot {
	if ev.ResponseObject != nil && len(ev.ResponseObject.Raw) > 0 && !isStatusObject(ev.ResponseObject.Raw) {
		return Snapshot(ev.ResponseObject.Raw)
	}
	if t != EventTypeCreate && t != EventTypeUpdate {
		return nil
	}
	if ev.RequestObject != nil && len(ev.RequestObject.Raw) > 0 && !isStatusObject(ev.RequestObject.Raw) {
		return Snapshot(ev.RequestObject.Raw)
	}
	return nil
}

func isStatusObject(raw []byte) bool {
	var typeMeta struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &typeMeta); err != nil {
		return false
	}
	return typeMeta.Kind == "Status"
}
