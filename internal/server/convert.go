package server

import (
	"encoding/json"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.miloapis.com/auditdashboard/internal/dashboard"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/storage"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
)

func toRecentChangeList(result *storage.RecentChangesResult) *v1alpha1.RecentChangeList {
	items := make([]v1alpha1.AuditEventSummary, 0, len(result.Events))
	for _, ev := range result.Events {
		items = append(items, v1alpha1.AuditEventSummary{
			ID:           ev.ID,
			Verb:         ev.Verb,
			APIGroup:     ev.APIGroup,
			APIVersion:   ev.APIVersion,
			Resource:     ev.Resource,
			Kind:         ev.Kind,
			Namespace:    ev.Namespace,
			Name:         ev.Name,
			User:         ev.User,
			UserAgent:    ev.UserAgent,
			Component:    ev.Component,
			ChangeSource: ev.ChangeSource,
			Timestamp:    metav1.NewTime(ev.Timestamp),
			StatusCode:   ev.StatusCode,
		})
	}
	return &v1alpha1.RecentChangeList{
		TypeMeta:        v1alpha1.TypeMetaFor(v1alpha1.KindRecentChangeList),
		Items:           items,
		Total:           result.Total,
		Page:            result.Page,
		PageSize:        result.PageSize,
		TotalPages:      result.TotalPages,
		HasNextPage:     result.HasNextPage,
		HasPreviousPage: result.HasPreviousPage,
	}
}

func toResourceTimeline(timeline *dashboard.Timeline) *v1alpha1.ResourceTimeline {
	entries := make([]v1alpha1.TimelineEntry, 0, len(timeline.Entries))
	for _, e := range timeline.Entries {
		entry := v1alpha1.TimelineEntry{
			ID:               e.Event.ID,
			Type:             string(e.Event.Type),
			Timestamp:        metav1.NewTime(e.Event.Timestamp),
			User:             e.Event.User,
			ResourceState:    rawSnapshot(e.Event.ResourceState),
			HasPreviousState: e.HasPreviousState,
			DiffUnavailable:  e.DiffUnavailable,
		}
		if e.HasPreviousState {
			entry.PreviousState = rawSnapshot(e.PreviousState)
		}
		if e.Event.Diff != nil {
			entry.Diff = toResourceDiff(e.Event.Diff)
		}
		entries = append(entries, entry)
	}

	r := timeline.Resource
	return &v1alpha1.ResourceTimeline{
		TypeMeta: v1alpha1.TypeMetaFor(v1alpha1.KindResourceTimeline),
		Resource: v1alpha1.ResourceReference{
			APIGroup:  r.APIGroup,
			Version:   r.Version,
			Kind:      r.Kind,
			Namespace: r.Namespace,
			Name:      r.Name,
		},
		HideReadOnly: timeline.HideReadOnly,
		TotalEvents:  timeline.TotalEvents,
		HiddenEvents: timeline.HiddenEvents,
		Entries:      entries,
	}
}

func toResourceDiff(d *lifecycle.ResourceDiff) *v1alpha1.ResourceDiff {
	out := &v1alpha1.ResourceDiff{
		Added:   rawSnapshot(d.Added),
		Removed: rawSnapshot(d.Removed),
	}
	for _, m := range d.Modified {
		out.Modified = append(out.Modified, v1alpha1.FieldChange{
			Path:     m.Path,
			OldValue: m.OldValue,
			NewValue: m.NewValue,
		})
	}
	return out
}

// rawSnapshot embeds a snapshot in the response. Invalid documents are sent as
// JSON strings.
func rawSnapshot(s lifecycle.Snapshot) json.RawMessage {
	if s.IsEmpty() {
		return nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return nil
	}
	return data
}

func toEventSummary(query storage.CountQuery, counts *storage.EventCounts) *v1alpha1.EventSummary {
	out := &v1alpha1.EventSummary{
		TypeMeta:       v1alpha1.TypeMetaFor(v1alpha1.KindEventSummary),
		TotalEvents:    counts.Total,
		MutatingEvents: counts.Mutating,
	}
	if !query.Since.IsZero() {
		since := metav1.NewTime(query.Since)
		out.Since = &since
	}
	if !query.Until.IsZero() {
		until := metav1.NewTime(query.Until)
		out.Until = &until
	}
	return out
}

func toPreference(scope string, value bool) *v1alpha1.Preference {
	return &v1alpha1.Preference{
		TypeMeta: v1alpha1.TypeMetaFor(v1alpha1.KindPreference),
		Name:     preferenceHideReadOnly,
		Scope:    scope,
		Value:    value,
	}
}
