package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"

	"go.miloapis.com/auditdashboard/internal/cel"
)

// MemoryStorage keeps audit events in memory. Filters are evaluated with CEL
// directly instead of being translated to SQL.
type MemoryStorage struct {
	mu                 sync.RWMutex
	events             []auditv1.Event
	maxPageSize        int
	maxLifecycleEvents int
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage(maxPageSize, maxLifecycleEvents int) *MemoryStorage {
	return &MemoryStorage{
		maxPageSize:        maxPageSize,
		maxLifecycleEvents: maxLifecycleEvents,
	}
}

// Add stores events. The store keeps them ordered newest-first.
func (s *MemoryStorage) Add(events ...auditv1.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		s.events = append(s.events, *events[i].DeepCopy())
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		ti, tj := eventTime(&s.events[i]), eventTime(&s.events[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return s.events[i].AuditID > s.events[j].AuditID
	})
}

// LoadAuditLog reads an API-server audit log in JSON lines format, as written by the
// log backend, and adds every event to the store. It returns the number of events
// added.
func (s *MemoryStorage) LoadAuditLog(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var events []auditv1.Event
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var ev auditv1.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read audit log: %w", err)
	}

	s.Add(events...)
	return len(events), nil
}

// ListRecentChanges returns one page of completed RequestResponse events.
func (s *MemoryStorage) ListRecentChanges(ctx context.Context, query RecentChangesQuery) (*RecentChangesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = query.WithDefaults(s.maxPageSize)

	var matcher *cel.EventMatcher
	if query.Filter != "" {
		m, err := cel.NewEventMatcher(query.Filter)
		if err != nil {
			return nil, err
		}
		matcher = m
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []auditv1.Event
	for i := range s.events {
		ev := &s.events[i]
		if string(ev.Level) != levelRequestResponse || string(ev.Stage) != stageResponseComplete {
			continue
		}
		ts := eventTime(ev)
		if !query.Since.IsZero() && ts.Before(query.Since) {
			continue
		}
		if !query.Until.IsZero() && !ts.Before(query.Until) {
			continue
		}
		if matcher != nil {
			ok, err := matcher.Matches(ev)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, *ev)
	}

	start := min(query.Offset(), len(matched))
	end := min(start+query.PageSize, len(matched))
	return NewRecentChangesResult(SummarizeAll(matched[start:end]), len(matched), query), nil
}

// ResourceLifecycle returns the completed events of one resource, newest-first.
func (s *MemoryStorage) ResourceLifecycle(ctx context.Context, query ResourceQuery) ([]auditv1.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query.Limit <= 0 {
		query.Limit = s.maxLifecycleEvents
	}
	limit := query.limit()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []auditv1.Event{}
	for i := range s.events {
		ev := &s.events[i]
		if string(ev.Stage) != stageResponseComplete || !query.matches(ev) {
			continue
		}
		out = append(out, *ev.DeepCopy())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountEvents counts the stored events in the time range.
func (s *MemoryStorage) CountEvents(ctx context.Context, query CountQuery) (*EventCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &EventCounts{}
	for i := range s.events {
		ev := &s.events[i]
		ts := eventTime(ev)
		if !query.Since.IsZero() && ts.Before(query.Since) {
			continue
		}
		if !query.Until.IsZero() && !ts.Before(query.Until) {
			continue
		}
		counts.Total++
		if !isReadOnlyVerb(ev.Verb) {
			counts.Mutating++
		}
	}
	return counts, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStorage) Close() error {
	return nil
}
