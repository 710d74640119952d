package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
)

// EventMatcher evaluates a filter expression against audit events in memory.
type EventMatcher struct {
	program cel.Program
}

// NewEventMatcher compiles filterExpr. Errors are *FilterError values.
func NewEventMatcher(filterExpr string) (*EventMatcher, error) {
	ast, err := CompileFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	env, err := Environment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, newFilterError(err)
	}
	return &EventMatcher{program: program}, nil
}

// Matches reports whether ev satisfies the filter.
func (m *EventMatcher) Matches(ev *auditv1.Event) (bool, error) {
	out, _, err := m.program.Eval(eventActivation(ev))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, expected bool", out.Value())
	}
	return matched, nil
}

// eventActivation exposes the filterable fields of ev. Every variable is always
// present so expressions never fail on missing keys.
func eventActivation(ev *auditv1.Event) map[string]any {
	objectRef := map[string]any{
		"namespace": "",
		"resource":  "",
		"name":      "",
		"apiGroup":  "",
	}
	if ref := ev.ObjectRef; ref != nil {
		objectRef["namespace"] = ref.Namespace
		objectRef["resource"] = ref.Resource
		objectRef["name"] = ref.Name
		objectRef["apiGroup"] = ref.APIGroup
	}

	var code int64
	if ev.ResponseStatus != nil {
		code = int64(ev.ResponseStatus.Code)
	}

	return map[string]any{
		"auditID":                  string(ev.AuditID),
		"verb":                     ev.Verb,
		"userAgent":                ev.UserAgent,
		"requestReceivedTimestamp": ev.RequestReceivedTimestamp.Time,
		"objectRef":                objectRef,
		"user":                     map[string]any{"username": ev.User.Username},
		"responseStatus":           map[string]any{"code": code},
	}
}
