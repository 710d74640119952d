package storage

import (
	"encoding/json"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
)

// ChangeSource constants for summary classification.
const (
	ChangeSourceHuman  = "human"
	ChangeSourceSystem = "system"
)

// knownComponents are control-plane components recognised from the user agent
// product token.
var knownComponents = []string{
	"kubelet",
	"kube-apiserver",
	"kube-controller-manager",
	"kube-scheduler",
	"kube-proxy",
	"storage-provisioner",
	"kubectl",
}

// AuditEventSummary is the listing view of one audit event.
type AuditEventSummary struct {
	ID           string    `json:"id"`
	Verb         string    `json:"verb"`
	APIGroup     string    `json:"apiGroup,omitempty"`
	APIVersion   string    `json:"apiVersion,omitempty"`
	Resource     string    `json:"resource,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	Namespace    string    `json:"namespace,omitempty"`
	Name         string    `json:"name,omitempty"`
	User         string    `json:"user"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Component    string    `json:"component,omitempty"`
	ChangeSource string    `json:"changeSource"`
	Timestamp    time.Time `json:"timestamp"`
	StatusCode   int32     `json:"statusCode,omitempty"`
}

// Summarize builds the listing view of ev.
func Summarize(ev auditv1.Event) AuditEventSummary {
	s := AuditEventSummary{
		ID:           string(ev.AuditID),
		Verb:         ev.Verb,
		User:         ev.User.Username,
		UserAgent:    ev.UserAgent,
		Component:    DetectComponent(ev.UserAgent),
		ChangeSource: ClassifyChangeSource(ev.User.Username),
		Timestamp:    ev.StageTimestamp.Time,
		Kind:         objectKind(ev),
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = ev.RequestReceivedTimestamp.Time
	}
	if ref := ev.ObjectRef; ref != nil {
		s.APIGroup = ref.APIGroup
		s.APIVersion = ref.APIVersion
		s.Resource = ref.Resource
		s.Namespace = ref.Namespace
		s.Name = ref.Name
	}
	if ev.ResponseStatus != nil {
		s.StatusCode = ev.ResponseStatus.Code
	}
	return s
}

// SummarizeAll summarizes events in order.
func SummarizeAll(events []auditv1.Event) []AuditEventSummary {
	out := make([]AuditEventSummary, 0, len(events))
	for i := range events {
		out = append(out, Summarize(events[i]))
	}
	return out
}

// DetectComponent returns the control-plane component that sent a request, or the
// product token of the user agent when it is not a known component.
//
// User agents look like "kube-controller-manager/v1.29.0 (linux/amd64) kubernetes/abc123/system:serviceaccount:kube-system:deployment-controller".
func DetectComponent(userAgent string) string {
	product := userAgent
	if idx := strings.IndexAny(product, "/ "); idx >= 0 {
		product = product[:idx]
	}
	for _, c := range knownComponents {
		if strings.EqualFold(product, c) {
			return c
		}
	}
	// kubectl plugins and some distributions append the OS to the binary name.
	for _, c := range knownComponents {
		if strings.HasPrefix(strings.ToLower(product), c+".") {
			return c
		}
	}
	return product
}

// ClassifyChangeSource determines whether a change was made by a human or by the
// system (controllers, nodes, service accounts).
//
// Rules are evaluated in priority order:
//  1. system:* usernames (including service accounts) -> system
//  2. email-like usernames -> human
//  3. usernames without a ':' separator -> human
//  4. everything else -> system
func ClassifyChangeSource(username string) string {
	switch {
	case strings.HasPrefix(username, "system:"):
		return ChangeSourceSystem
	case strings.Contains(username, "@"):
		return ChangeSourceHuman
	case username != "" && !strings.Contains(username, ":"):
		return ChangeSourceHuman
	default:
		return ChangeSourceSystem
	}
}

// objectKind reads the kind from the recorded response or request body.
func objectKind(ev auditv1.Event) string {
	for _, obj := range []*runtime.Unknown{ev.ResponseObject, ev.RequestObject} {
		if obj == nil || len(obj.Raw) == 0 {
			continue
		}
		var typeMeta struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(obj.Raw, &typeMeta); err != nil || typeMeta.Kind == "" || typeMeta.Kind == "Status" {
			continue
		}
		return typeMeta.Kind
	}
	return ""
}
