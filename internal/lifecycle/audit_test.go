package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authnv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
)

func auditEvent(id, verb string, ts time.Time, response, request string) auditv1.Event {
	ev := auditv1.Event{
		AuditID:                  types.UID(id),
		Level:                    auditv1.LevelRequestResponse,
		Stage:                    auditv1.StageResponseComplete,
		Verb:                     verb,
		User:                     authnv1.UserInfo{Username: "alice@example.com"},
		ObjectRef:                &auditv1.ObjectReference{Resource: "deployments", APIGroup: "apps", APIVersion: "v1", Namespace: "default", Name: "web"},
		RequestReceivedTimestamp: metav1.NewMicroTime(ts),
		StageTimestamp:           metav1.NewMicroTime(ts),
	}
	if response != "" {
		ev.ResponseObject = &runtime.Unknown{Raw: []byte(response)}
	}
	if request != "" {
		ev.RequestObject = &runtime.Unknown{Raw: []byte(request)}
	}
	return ev
}

func TestFromAuditEvent(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		event     auditv1.Event
		wantType  EventType
		wantState string
		wantErr   bool
	}{
		{
			name:      "create uses response object",
			event:     auditEvent("a", "create", ts, `{"kind":"Deployment","spec":{"replicas":1}}`, `{"kind":"Deployment"}`),
			wantType:  EventTypeCreate,
			wantState: `{"kind":"Deployment","spec":{"replicas":1}}`,
		},
		{
			name:      "status response falls back to request object",
			event:     auditEvent("b", "UPDATE", ts, `{"kind":"Status","code":200}`, `{"kind":"Deployment","spec":{"replicas":2}}`),
			wantType:  EventTypeUpdate,
			wantState: `{"kind":"Deployment","spec":{"replicas":2}}`,
		},
		{
			name:     "patch never uses the request body",
			event:    auditEvent("p", "patch", ts, `{"kind":"Status","code":200}`, `{"spec":{"replicas":3}}`),
			wantType: EventTypePatch,
		},
		{
			name:      "patch uses response object",
			event:     auditEvent("q", "patch", ts, `{"kind":"Deployment","spec":{"replicas":3}}`, `{"spec":{"replicas":3}}`),
			wantType:  EventTypePatch,
			wantState: `{"kind":"Deployment","spec":{"replicas":3}}`,
		},
		{
			name:     "get ignores request object",
			event:    auditEvent("g", "get", ts, "", `{"kind":"Deployment"}`),
			wantType: EventTypeGet,
		},
		{
			name:     "delete carries no state",
			event:    auditEvent("c", "delete", ts, `{"kind":"Deployment"}`, ""),
			wantType: EventTypeDelete,
		},
		{
			name:     "deletecollection maps to delete",
			event:    auditEvent("d", "deletecollection", ts, "", ""),
			wantType: EventTypeDelete,
		},
		{
			name:     "get without body",
			event:    auditEvent("e", "get", ts, "", ""),
			wantType: EventTypeGet,
		},
		{
			name:    "unsupported verb",
			event:   auditEvent("f", "proxy", ts, "", ""),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAuditEvent(tt.event)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, string(tt.event.AuditID), got.ID)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, "alice@example.com", got.User)
			assert.True(t, got.Timestamp.Equal(ts))
			if tt.wantState == "" {
				assert.True(t, got.ResourceState.IsEmpty())
			} else {
				assert.JSONEq(t, tt.wantState, got.ResourceState.String())
			}
		})
	}
}

func TestFromAuditEvent_TimestampFallback(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := auditEvent("a", "create", ts, "", "")
	ev.StageTimestamp = metav1.MicroTime{}

	got, err := FromAuditEvent(ev)

	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestFromAuditEvents(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	events := []auditv1.Event{
		auditEvent("1", "create", ts, `{"v":1}`, ""),
		auditEvent("3", "patch", ts.Add(2*time.Minute), `{"v":3}`, ""),
		auditEvent("x", "impersonate", ts.Add(3*time.Minute), "", ""),
		auditEvent("2", "get", ts.Add(time.Minute), `{"v":1}`, ""),
	}

	got := FromAuditEvents(events)

	assert.Equal(t, []string{"3", "2", "1"}, ids(got))
}
