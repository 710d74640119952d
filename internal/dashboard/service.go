// Package dashboard implements the operations behind the audit dashboard: the
// recent changes listing, resource lifecycle timelines and the hide read-only
// preference.
package dashboard

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/metrics"
	"go.miloapis.com/auditdashboard/internal/preferences"
	"go.miloapis.com/auditdashboard/internal/storage"
)

// Preferences stores the hide read-only preference per scope.
type Preferences interface {
	HideReadOnly(ctx context.Context, scope string) bool
	SetHideReadOnly(ctx context.Context, scope string, value bool) error
}

// Config holds the query limits of a Service.
type Config struct {
	MaxPageSize        int
	MaxLifecycleEvents int
}

// Service answers dashboard queries.
type Service struct {
	store  storage.EventStore
	prefs  Preferences
	mapper lifecycle.ResourceMapper
	config Config
}

// NewService returns a Service. A nil mapper uses lifecycle.StaticResourceMapper.
func NewService(store storage.EventStore, prefs Preferences, mapper lifecycle.ResourceMapper, config Config) *Service {
	if mapper == nil {
		mapper = lifecycle.StaticResourceMapper{}
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = storage.DefaultMaxPageSize
	}
	if config.MaxLifecycleEvents <= 0 {
		config.MaxLifecycleEvents = storage.DefaultMaxLifecycleEvents
	}
	return &Service{store: store, prefs: prefs, mapper: mapper, config: config}
}

// RecentChanges returns one page of completed RequestResponse audit events.
func (s *Service) RecentChanges(ctx context.Context, query storage.RecentChangesQuery) (*storage.RecentChangesResult, error) {
	if err := lifecycle.NewValidationError(query.Validate()); err != nil {
		return nil, err
	}
	query = query.WithDefaults(s.config.MaxPageSize)

	result, err := s.store.ListRecentChanges(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list recent changes: %w", err)
	}
	metrics.RecentChangesResults.Observe(float64(len(result.Events)))
	return result, nil
}

// Summary returns the overview counts for the time range.
func (s *Service) Summary(ctx context.Context, query storage.CountQuery) (*storage.EventCounts, error) {
	if err := lifecycle.NewValidationError(query.Validate()); err != nil {
		return nil, err
	}
	counts, err := s.store.CountEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	return counts, nil
}

// LifecycleOptions controls how a timeline is built.
type LifecycleOptions struct {
	// HideReadOnly overrides the stored preference when set.
	HideReadOnly *bool
	// Scope selects whose stored preference applies, usually the remote user.
	Scope string
}

// TimelineEntry is one displayed event with the state it is compared against.
type TimelineEntry struct {
	Event            lifecycle.Event    `json:"event"`
	PreviousState    lifecycle.Snapshot `json:"previousState,omitempty"`
	HasPreviousState bool               `json:"hasPreviousState"`
	// DiffUnavailable is set when a mutating event's diff could not be computed.
	DiffUnavailable bool `json:"diffUnavailable,omitempty"`
}

// Timeline is the lifecycle of one resource, newest-first.
type Timeline struct {
	Resource     lifecycle.ResourceIdentifier `json:"resource"`
	HideReadOnly bool                         `json:"hideReadOnly"`
	// TotalEvents counts events before read-only events were hidden.
	TotalEvents  int             `json:"totalEvents"`
	HiddenEvents int             `json:"hiddenEvents"`
	Entries      []TimelineEntry `json:"entries"`
}

// ResourceLifecycle builds the timeline of id.
//
// Hidden read-only events only narrow the displayed list. Every previous state is
// resolved against the complete chronology, so a change is never compared with a
// neighbour that merely happens to be adjacent after filtering.
func (s *Service) ResourceLifecycle(ctx context.Context, id lifecycle.ResourceIdentifier, opts LifecycleOptions) (*Timeline, error) {
	resource, err := s.mapper.ResourceFor(id.GroupVersionKind())
	if err != nil {
		return nil, fmt.Errorf("resolve resource for %s: %w", id.GroupVersionKind(), err)
	}

	auditEvents, err := s.store.ResourceLifecycle(ctx, storage.ResourceQuery{
		APIGroup:  id.APIGroup,
		Resource:  resource,
		Namespace: id.Namespace,
		Name:      id.Name,
		Limit:     s.config.MaxLifecycleEvents,
	})
	if err != nil {
		return nil, fmt.Errorf("load lifecycle of %s: %w", id.String(), err)
	}

	full := lifecycle.FromAuditEvents(auditEvents)
	if len(full) == 0 {
		return nil, fmt.Errorf("%s: %w", id.String(), lifecycle.ErrResourceNotFound)
	}
	metrics.LifecycleEvents.Observe(float64(len(full)))

	hideReadOnly := s.hideReadOnly(ctx, opts)
	display := lifecycle.FilterEvents(full, hideReadOnly)
	hidden := len(full) - len(display)
	metrics.LifecycleHiddenEventsTotal.Add(float64(hidden))

	timeline := lifecycle.BuildTimeline(display, full)
	entries := make([]TimelineEntry, 0, len(timeline))
	for _, te := range timeline {
		entries = append(entries, s.newEntry(id, te))
	}

	klog.V(3).InfoS("Built resource lifecycle",
		"resource", id.String(),
		"events", len(full),
		"hidden", hidden,
		"hideReadOnly", hideReadOnly,
	)

	return &Timeline{
		Resource:     id,
		HideReadOnly: hideReadOnly,
		TotalEvents:  len(full),
		HiddenEvents: hidden,
		Entries:      entries,
	}, nil
}

func (s *Service) newEntry(id lifecycle.ResourceIdentifier, te lifecycle.TimelineEntry) TimelineEntry {
	entry := TimelineEntry{
		Event:            te.Event,
		PreviousState:    te.PreviousState,
		HasPreviousState: te.HasPreviousState,
	}
	// Any diff carried by the source is replaced with one computed from the
	// resolved previous state.
	entry.Event.Diff = nil
	if lifecycle.IsReadOnly(te.Event.Type) {
		return entry
	}
	// Only a create may be compared against nothing.
	if !te.HasPreviousState && te.Event.Type != lifecycle.EventTypeCreate {
		return entry
	}

	diff, err := lifecycle.ComputeDiff(te.PreviousState, te.Event.ResourceState)
	if err != nil {
		metrics.DiffFailuresTotal.Inc()
		klog.ErrorS(err, "Failed to compute diff", "resource", id.String(), "event", te.Event.ID)
		entry.DiffUnavailable = true
		return entry
	}
	entry.Event.Diff = diff
	return entry
}

func (s *Service) hideReadOnly(ctx context.Context, opts LifecycleOptions) bool {
	if opts.HideReadOnly != nil {
		return *opts.HideReadOnly
	}
	if s.prefs == nil {
		return preferences.DefaultHideReadOnly
	}
	return s.prefs.HideReadOnly(ctx, opts.Scope)
}

// HideReadOnly returns the stored preference for scope.
func (s *Service) HideReadOnly(ctx context.Context, scope string) bool {
	if s.prefs == nil {
		return preferences.DefaultHideReadOnly
	}
	return s.prefs.HideReadOnly(ctx, scope)
}

// SetHideReadOnly stores the preference for scope.
func (s *Service) SetHideReadOnly(ctx context.Context, scope string, value bool) error {
	if s.prefs == nil {
		return fmt.Errorf("preferences are not configured")
	}
	return s.prefs.SetHideReadOnly(ctx, scope, value)
}

// Ready reports whether the event store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
