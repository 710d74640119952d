// Package storage reads Kubernetes audit events for the dashboard.
//
// Three backends implement EventStore: ClickHouse for production audit pipelines,
// PostgreSQL for smaller installations and an in-memory store for tests and demos.
// All backends return events newest-first.
package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
)

const (
	DefaultPage     = 0
	DefaultPageSize = 10

	// DefaultMaxPageSize caps RecentChangesQuery.PageSize.
	DefaultMaxPageSize = 1000

	// MaxPage is the largest page number accepted. Larger pages would overflow
	// the row offset at DefaultMaxPageSize.
	MaxPage = math.MaxInt / DefaultMaxPageSize

	// DefaultMaxLifecycleEvents caps the number of events loaded for one resource.
	DefaultMaxLifecycleEvents = 5000

	levelRequestResponse  = string(auditv1.LevelRequestResponse)
	stageResponseComplete = string(auditv1.StageResponseComplete)
)

// EventStore reads audit events.
type EventStore interface {
	// ListRecentChanges returns one page of completed RequestResponse events.
	ListRecentChanges(ctx context.Context, query RecentChangesQuery) (*RecentChangesResult, error)

	// ResourceLifecycle returns every completed event for one resource, newest-first.
	// An unknown resource yields an empty, non-nil slice.
	ResourceLifecycle(ctx context.Context, query ResourceQuery) ([]auditv1.Event, error)

	// CountEvents counts every stored event in the time range, and separately the
	// events whose verb can change a resource.
	CountEvents(ctx context.Context, query CountQuery) (*EventCounts, error)

	Ping(ctx context.Context) error
	Close() error
}

// RecentChangesQuery selects a page of recent changes.
type RecentChangesQuery struct {
	Page     int
	PageSize int
	// Filter is an optional CEL expression.
	Filter string
	// Since and Until bound the event timestamp. Zero values are open bounds.
	Since time.Time
	Until time.Time
}

// Validate reports malformed paging parameters.
func (q RecentChangesQuery) Validate() field.ErrorList {
	var errs field.ErrorList
	switch {
	case q.Page < 0:
		errs = append(errs, field.Invalid(field.NewPath("page"), q.Page, "page must be zero or greater"))
	case q.Page > MaxPage:
		errs = append(errs, field.Invalid(field.NewPath("page"), q.Page, fmt.Sprintf("page must be at most %d", MaxPage)))
	}
	if q.PageSize < 0 {
		errs = append(errs, field.Invalid(field.NewPath("pageSize"), q.PageSize, "pageSize must be zero or greater"))
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		errs = append(errs, field.Invalid(field.NewPath("since"), q.Since.Format(time.RFC3339), "since must be before until"))
	}
	return errs
}

// WithDefaults fills in the default page size and applies maxPageSize.
func (q RecentChangesQuery) WithDefaults(maxPageSize int) RecentChangesQuery {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Page < 0 {
		q.Page = DefaultPage
	}
	return q
}

// Offset returns the number of rows skipped before the page. It saturates at
// math.MaxInt instead of overflowing.
func (q RecentChangesQuery) Offset() int {
	if q.Page <= 0 || q.PageSize <= 0 {
		return 0
	}
	if q.Page > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return q.Page * q.PageSize
}

// RecentChangesResult is one page of recent changes.
type RecentChangesResult struct {
	Events          []AuditEventSummary `json:"events"`
	Total           int                 `json:"total"`
	Page            int                 `json:"page"`
	PageSize        int                 `json:"pageSize"`
	TotalPages      int                 `json:"totalPages"`
	HasNextPage     bool                `json:"hasNextPage"`
	HasPreviousPage bool                `json:"hasPreviousPage"`
}

// NewRecentChangesResult computes the paging fields for a page of events.
// query must already have defaults applied.
func NewRecentChangesResult(events []AuditEventSummary, total int, query RecentChangesQuery) *RecentChangesResult {
	if events == nil {
		events = []AuditEventSummary{}
	}
	return &RecentChangesResult{
		Events:          events,
		Total:           total,
		Page:            query.Page,
		PageSize:        query.PageSize,
		TotalPages:      total/query.PageSize + 1,
		HasNextPage:     total-query.PageSize > query.Offset(),
		HasPreviousPage: query.Page > 0,
	}
}

// CountQuery bounds an event count. Zero values are open bounds.
type CountQuery struct {
	Since time.Time
	Until time.Time
}

// Validate reports an inverted time range.
func (q CountQuery) Validate() field.ErrorList {
	var errs field.ErrorList
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		errs = append(errs, field.Invalid(field.NewPath("since"), q.Since.Format(time.RFC3339), "since must be before until"))
	}
	return errs
}

// EventCounts backs the dashboard overview.
type EventCounts struct {
	// Total counts every stored event, including reads and incomplete stages.
	Total int `json:"total"`
	// Mutating excludes get, list and watch.
	Mutating int `json:"mutating"`
}

// readOnlyVerbs never change a resource.
var readOnlyVerbs = []string{"get", "list", "watch"}

func isReadOnlyVerb(verb string) bool {
	for _, v := range readOnlyVerbs {
		if v == verb {
			return true
		}
	}
	return false
}

// ResourceQuery selects the audit events of one resource.
type ResourceQuery struct {
	APIGroup string
	Resource string
	// Namespace is empty for cluster-scoped resources.
	Namespace string
	Name      string
	// Limit defaults to DefaultMaxLifecycleEvents.
	Limit int
}

func (q ResourceQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultMaxLifecycleEvents
	}
	return q.Limit
}

// matches reports whether ev belongs to the resource.
func (q ResourceQuery) matches(ev *auditv1.Event) bool {
	ref := ev.ObjectRef
	if ref == nil {
		return false
	}
	return ref.APIGroup == q.APIGroup &&
		ref.Resource == q.Resource &&
		ref.Namespace == q.Namespace &&
		ref.Name == q.Name
}

func eventTime(ev *auditv1.Event) time.Time {
	if !ev.StageTimestamp.IsZero() {
		return ev.StageTimestamp.Time
	}
	return ev.RequestReceivedTimestamp.Time
}
