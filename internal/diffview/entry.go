package diffview

import (
	"strings"

	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
)

// ForEntry renders a timeline entry received from the dashboard API. A structured
// diff sent by the server is used for changes; creates and deletes show the whole
// object instead.
func ForEntry(entry *v1alpha1.TimelineEntry) View {
	eventType := lifecycle.EventType(strings.ToUpper(entry.Type))
	if view, ok := fixedView(entry, eventType); ok {
		return view
	}
	if entry.Diff != nil && entry.HasPreviousState && eventType != lifecycle.EventTypeDelete {
		return RenderDiff(FromAPIDiff(entry.Diff))
	}
	return renderSnapshots(entry, eventType)
}

// UnifiedForEntry is ForEntry with the diff always computed from the recorded
// snapshots, so Unified holds a line based diff of the whole object.
func UnifiedForEntry(entry *v1alpha1.TimelineEntry) View {
	eventType := lifecycle.EventType(strings.ToUpper(entry.Type))
	if view, ok := fixedView(entry, eventType); ok {
		return view
	}
	return renderSnapshots(entry, eventType)
}

func fixedView(entry *v1alpha1.TimelineEntry, eventType lifecycle.EventType) (View, bool) {
	switch {
	case lifecycle.IsReadOnly(eventType):
		return View{State: StateUnchanged, Summary: "read-only"}, true
	case entry.DiffUnavailable:
		return unavailable(MessageUnavailable), true
	}
	return View{}, false
}

func renderSnapshots(entry *v1alpha1.TimelineEntry, eventType lifecycle.EventType) View {
	return Render(eventType, lifecycle.Snapshot(entry.ResourceState), lifecycle.Snapshot(entry.PreviousState), entry.HasPreviousState)
}

// FromAPIDiff converts a wire diff back into a lifecycle.ResourceDiff.
func FromAPIDiff(d *v1alpha1.ResourceDiff) *lifecycle.ResourceDiff {
	if d == nil {
		return nil
	}
	out := &lifecycle.ResourceDiff{
		Added:   lifecycle.Snapshot(d.Added),
		Removed: lifecycle.Snapshot(d.Removed),
	}
	for _, m := range d.Modified {
		out.Modified = append(out.Modified, lifecycle.FieldChange{
			Path:     m.Path,
			OldValue: m.OldValue,
			NewValue: m.NewValue,
		})
	}
	return out
}
