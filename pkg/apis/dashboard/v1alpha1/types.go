package v1alpha1

import (
	"encoding/json"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// RecentChangeList is one page of completed audit events, newest first.
//
// Paging is zero-based. TotalPages is always Total/PageSize+1, so an exact
// multiple of the page size reports one trailing empty page.
type RecentChangeList struct {
	metav1.TypeMeta `json:",inline"`

	Items []AuditEventSummary `json:"items"`

	Total           int  `json:"total"`
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// AuditEventSummary is the listing view of one audit event.
type AuditEventSummary struct {
	// ID is the audit ID of the request.
	ID         string `json:"id"`
	Verb       string `json:"verb"`
	APIGroup   string `json:"apiGroup,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
	Resource   string `json:"resource,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	Name       string `json:"name,omitempty"`
	User       string `json:"user"`
	UserAgent  string `json:"userAgent,omitempty"`

	// Component is the client recognised from the user agent, e.g. kubectl or
	// kube-controller-manager.
	Component string `json:"component,omitempty"`

	// ChangeSource is "human" or "system".
	ChangeSource string      `json:"changeSource"`
	Timestamp    metav1.Time `json:"timestamp"`
	StatusCode   int32       `json:"statusCode,omitempty"`
}

// ResourceReference identifies one Kubernetes object.
type ResourceReference struct {
	APIGroup string `json:"apiGroup,omitempty"`
	Version  string `json:"version"`
	Kind     string `json:"kind"`
	// Namespace is empty for cluster-scoped resources.
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// ResourceTimeline is the lifecycle of one resource, newest first.
type ResourceTimeline struct {
	metav1.TypeMeta `json:",inline"`

	Resource ResourceReference `json:"resource"`

	// HideReadOnly reports whether get, list and watch events were left out.
	HideReadOnly bool `json:"hideReadOnly"`

	// TotalEvents counts every event of the resource, including hidden ones.
	TotalEvents  int `json:"totalEvents"`
	HiddenEvents int `json:"hiddenEvents"`

	Entries []TimelineEntry `json:"entries"`
}

// TimelineEntry is one displayed event.
type TimelineEntry struct {
	ID string `json:"id"`
	// Type is one of CREATE, UPDATE, PATCH, DELETE, GET, LIST or WATCH.
	Type      string      `json:"type"`
	Timestamp metav1.Time `json:"timestamp"`
	User      string      `json:"user"`

	// ResourceState is the object as returned by the API server, when recorded.
	ResourceState json.RawMessage `json:"resourceState,omitempty"`

	// PreviousState is the state after the closest earlier mutation. It is
	// resolved over every event of the resource, so hiding read-only events never
	// changes it.
	PreviousState    json.RawMessage `json:"previousState,omitempty"`
	HasPreviousState bool            `json:"hasPreviousState"`

	Diff *ResourceDiff `json:"diff,omitempty"`
	// DiffUnavailable is set when a mutating event's diff could not be computed.
	DiffUnavailable bool `json:"diffUnavailable,omitempty"`
}

// ResourceDiff describes what a mutation changed.
type ResourceDiff struct {
	Added    json.RawMessage `json:"added,omitempty"`
	Removed  json.RawMessage `json:"removed,omitempty"`
	Modified []FieldChange   `json:"modified,omitempty"`
}

// FieldChange is one modified field, addressed by a dotted path.
type FieldChange struct {
	Path     string `json:"path"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// EventSummary holds the overview counts for a time range.
type EventSummary struct {
	metav1.TypeMeta `json:",inline"`

	Since *metav1.Time `json:"since,omitempty"`
	Until *metav1.Time `json:"until,omitempty"`

	// TotalEvents counts every stored audit event, reads included.
	TotalEvents int `json:"totalEvents"`
	// MutatingEvents leaves out get, list and watch.
	MutatingEvents int `json:"mutatingEvents"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// Preference is a stored dashboard setting.
type Preference struct {
	metav1.TypeMeta `json:",inline"`

	// Name is the preference key, e.g. hide-read-only.
	Name string `json:"name,omitempty"`
	// Scope is the user the value applies to. Empty means the shared default.
	Scope string `json:"scope,omitempty"`
	Value bool   `json:"value"`
}
