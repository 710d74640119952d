package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authnv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"

	"go.miloapis.com/auditdashboard/internal/dashboard"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/preferences"
	"go.miloapis.com/auditdashboard/internal/storage"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func deploymentEvent(id, verb string, minute, replicas int) auditv1.Event {
	ev := auditv1.Event{
		Level:   auditv1.LevelRequestResponse,
		AuditID: types.UID(id),
		Stage:   auditv1.StageResponseComplete,
		Verb:    verb,
		User:    authnv1.UserInfo{Username: "alice@example.com"},
		ObjectRef: &auditv1.ObjectReference{
			Resource:   "deployments",
			Namespace:  "default",
			Name:       "web",
			APIGroup:   "apps",
			APIVersion: "v1",
		},
		ResponseStatus: &metav1.Status{Code: 200},
		StageTimestamp: metav1.NewMicroTime(start.Add(time.Duration(minute) * time.Minute)),
	}
	if replicas > 0 {
		body := `{"apiVersion":"apps/v1","kind":"Deployment","metadata":{"name":"web","namespace":"default"},"spec":{"replicas":` +
			string(rune('0'+replicas)) + `}}`
		ev.ResponseObject = &runtime.Unknown{Raw: []byte(body)}
	}
	return ev
}

func newTestServer(t *testing.T, config Config) *httptest.Server {
	t.Helper()

	store := storage.NewMemoryStorage(0, 0)
	store.Add(
		deploymentEvent("1", "create", 1, 1),
		deploymentEvent("2", "get", 2, 1),
		deploymentEvent("3", "update", 3, 2),
		deploymentEvent("4", "list", 4, 0),
		deploymentEvent("5", "patch", 5, 3),
		deploymentEvent("6", "watch", 6, 0),
	)
	svc := dashboard.NewService(store, preferences.NewCell(nil), nil, dashboard.Config{})
	return newHTTPTestServer(t, svc, config)
}

func newHTTPTestServer(t *testing.T, d Dashboard, config Config) *httptest.Server {
	t.Helper()
	s := New(d, config)
	s.now = func() time.Time { return start.Add(time.Hour) }
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, user, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func timelineIDs(tl v1alpha1.ResourceTimeline) []string {
	ids := make([]string, 0, len(tl.Entries))
	for _, e := range tl.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestListRecentChanges(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/events?pageSize=2&filter="+
		"verb%20in%20%5B%27create%27%2C%20%27patch%27%5D", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	list := decode[v1alpha1.RecentChangeList](t, resp)
	assert.Equal(t, v1alpha1.KindRecentChangeList, list.Kind)
	assert.Equal(t, "dashboard.miloapis.com/v1alpha1", list.APIVersion)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 2, list.PageSize)
	assert.Equal(t, 2, list.TotalPages)
	assert.False(t, list.HasNextPage)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "5", list.Items[0].ID)
	assert.Equal(t, "Deployment", list.Items[0].Kind)
	assert.Equal(t, "1", list.Items[1].ID)
}

func TestListRecentChanges_Errors(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantReason metav1.StatusReason
		wantField  string
	}{
		{name: "non-numeric page size", query: "pageSize=ten", wantCode: 422, wantReason: metav1.StatusReasonInvalid, wantField: "pageSize"},
		{name: "negative page", query: "page=-1", wantCode: 422, wantReason: metav1.StatusReasonInvalid, wantField: "page"},
		{name: "page beyond offset range", query: "page=9300000000000000&pageSize=1000", wantCode: 422, wantReason: metav1.StatusReasonInvalid, wantField: "page"},
		{name: "bad since", query: "since=yesterday", wantCode: 422, wantReason: metav1.StatusReasonInvalid, wantField: "since"},
		{name: "since after until", query: "since=now-1h&until=now-2h", wantCode: 422, wantReason: metav1.StatusReasonInvalid, wantField: "since"},
		{name: "invalid filter", query: "filter=objectRef.uid%20%3D%3D%20%27x%27", wantCode: 400, wantReason: metav1.StatusReasonBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodGet, "/api/v1alpha1/events?"+tt.query, "", "")

			require.Equal(t, tt.wantCode, resp.StatusCode)
			status := decode[metav1.Status](t, resp)
			assert.Equal(t, metav1.StatusFailure, status.Status)
			assert.Equal(t, tt.wantReason, status.Reason)
			if tt.wantField != "" {
				require.NotNil(t, status.Details)
				require.NotEmpty(t, status.Details.Causes)
				assert.Equal(t, tt.wantField, status.Details.Causes[0].Field)
			}
		})
	}
}

func TestGetResourceLifecycle(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/lifecycle/apps-v1-Deployment/default/web", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	tl := decode[v1alpha1.ResourceTimeline](t, resp)
	assert.Equal(t, v1alpha1.KindResourceTimeline, tl.Kind)
	assert.Equal(t, v1alpha1.ResourceReference{APIGroup: "apps", Version: "v1", Kind: "Deployment", Namespace: "default", Name: "web"}, tl.Resource)
	assert.True(t, tl.HideReadOnly)
	assert.Equal(t, 6, tl.TotalEvents)
	assert.Equal(t, 3, tl.HiddenEvents)
	assert.Equal(t, []string{"5", "3", "1"}, timelineIDs(tl))

	patch := tl.Entries[0]
	assert.Equal(t, "PATCH", patch.Type)
	assert.True(t, patch.HasPreviousState)
	assert.Contains(t, string(patch.PreviousState), `"replicas":2`)
	require.NotNil(t, patch.Diff)
	require.Len(t, patch.Diff.Modified, 1)
	assert.Equal(t, v1alpha1.FieldChange{Path: "spec.replicas", OldValue: "2", NewValue: "3"}, patch.Diff.Modified[0])

	create := tl.Entries[2]
	assert.False(t, create.HasPreviousState)
	assert.Nil(t, create.PreviousState)
}

func TestGetResourceLifecycle_ShowReadOnly(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/lifecycle/apps-v1-Deployment/default/web?hideReadOnly=false", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	tl := decode[v1alpha1.ResourceTimeline](t, resp)
	assert.False(t, tl.HideReadOnly)
	assert.Equal(t, []string{"6", "5", "4", "3", "2", "1"}, timelineIDs(tl))
}

func TestGetResourceLifecycle_Errors(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name       string
		path       string
		wantCode   int
		wantReason metav1.StatusReason
	}{
		{name: "unknown resource", path: "apps-v1-Deployment/default/missing", wantCode: 404, wantReason: metav1.StatusReasonNotFound},
		{name: "malformed gvk", path: "Deployment/default/web", wantCode: 400, wantReason: metav1.StatusReasonBadRequest},
		{name: "bad hideReadOnly", path: "apps-v1-Deployment/default/web?hideReadOnly=maybe", wantCode: 422, wantReason: metav1.StatusReasonInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodGet, "/api/v1alpha1/lifecycle/"+tt.path, "", "")

			require.Equal(t, tt.wantCode, resp.StatusCode)
			status := decode[metav1.Status](t, resp)
			assert.Equal(t, tt.wantReason, status.Reason)
		})
	}
}

func TestPreferences(t *testing.T) {
	ts := newTestServer(t, Config{})
	const path = "/api/v1alpha1/preferences/hide-read-only"

	pref := decode[v1alpha1.Preference](t, do(t, ts, http.MethodGet, path, "alice", ""))
	assert.Equal(t, v1alpha1.Preference{
		TypeMeta: v1alpha1.TypeMetaFor(v1alpha1.KindPreference),
		Name:     "hide-read-only",
		Scope:    "alice",
		Value:    true,
	}, pref)

	resp := do(t, ts, http.MethodPut, path, "alice", `{"value": false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[v1alpha1.Preference](t, resp).Value)

	assert.False(t, decode[v1alpha1.Preference](t, do(t, ts, http.MethodGet, path, "alice", "")).Value)
	assert.True(t, decode[v1alpha1.Preference](t, do(t, ts, http.MethodGet, path, "bob", "")).Value)

	// The stored preference applies to alice's timelines only.
	alice := decode[v1alpha1.ResourceTimeline](t, do(t, ts, http.MethodGet, "/api/v1alpha1/lifecycle/apps-v1-Deployment/default/web", "alice", ""))
	assert.Len(t, alice.Entries, 6)
	bob := decode[v1alpha1.ResourceTimeline](t, do(t, ts, http.MethodGet, "/api/v1alpha1/lifecycle/apps-v1-Deployment/default/web", "bob", ""))
	assert.Len(t, bob.Entries, 3)
}

func TestPutPreference_Errors(t *testing.T) {
	ts := newTestServer(t, Config{})
	const path = "/api/v1alpha1/preferences/hide-read-only"

	resp := do(t, ts, http.MethodPut, path, "alice", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, http.MethodPut, path, "alice", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	status := decode[metav1.Status](t, resp)
	require.NotNil(t, status.Details)
	assert.Equal(t, "value", status.Details.Causes[0].Field)
}

func TestGetSummary(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/summary", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[v1alpha1.EventSummary](t, resp)
	assert.Equal(t, v1alpha1.KindEventSummary, summary.Kind)
	assert.Equal(t, 6, summary.TotalEvents)
	assert.Equal(t, 3, summary.MutatingEvents)
	assert.Nil(t, summary.Since)

	resp = do(t, ts, http.MethodGet, "/api/v1alpha1/summary?since=now-55m", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary = decode[v1alpha1.EventSummary](t, resp)
	assert.Equal(t, 2, summary.TotalEvents)
	assert.Equal(t, 1, summary.MutatingEvents)
	require.NotNil(t, summary.Since)
	assert.True(t, summary.Since.Time.Equal(start.Add(5*time.Minute)))
}

func TestGetSummary_Errors(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/summary?since=now-1h&until=now-2h", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	status := decode[metav1.Status](t, resp)
	require.NotNil(t, status.Details)
	assert.Equal(t, "since", status.Details.Causes[0].Field)

	resp = do(t, ts, http.MethodPost, "/api/v1alpha1/summary", "", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	backendErr := lifecycle.NewStorageError("count_events", errors.New("dial tcp 10.0.0.7:9000: connection refused"))
	failing := newHTTPTestServer(t, fakeDashboard{err: backendErr}, Config{})
	resp = do(t, failing, http.MethodGet, "/api/v1alpha1/summary", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodPost, "/api/v1alpha1/events", "", "{}")

	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET", resp.Header.Get("Allow"))
	assert.Equal(t, metav1.StatusReasonMethodNotAllowed, decode[metav1.Status](t, resp).Reason)

	resp = do(t, ts, http.MethodDelete, "/api/v1alpha1/preferences/hide-read-only", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, PUT", resp.Header.Get("Allow"))
}

func TestRequestIDPropagated(t *testing.T) {
	ts := newTestServer(t, Config{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get(HeaderRequestID))
}

// fakeDashboard fails every call with err.
type fakeDashboard struct {
	err error
}

func (f fakeDashboard) RecentChanges(context.Context, storage.RecentChangesQuery) (*storage.RecentChangesResult, error) {
	return nil, f.err
}

func (f fakeDashboard) ResourceLifecycle(context.Context, lifecycle.ResourceIdentifier, dashboard.LifecycleOptions) (*dashboard.Timeline, error) {
	return nil, f.err
}

func (f fakeDashboard) Summary(context.Context, storage.CountQuery) (*storage.EventCounts, error) {
	return nil, f.err
}

func (f fakeDashboard) HideReadOnly(context.Context, string) bool { return true }

func (f fakeDashboard) SetHideReadOnly(context.Context, string, bool) error { return f.err }

func (f fakeDashboard) Ready(context.Context) error { return f.err }

func TestStorageFailure(t *testing.T) {
	backendErr := lifecycle.NewStorageError("list_recent_changes", errors.New("dial tcp 10.0.0.7:9000: connection refused"))
	ts := newHTTPTestServer(t, fakeDashboard{err: backendErr}, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/events", "", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	status := decode[metav1.Status](t, resp)
	assert.Equal(t, metav1.StatusReasonServiceUnavailable, status.Reason)
	assert.NotContains(t, status.Message, "10.0.0.7")

	resp = do(t, ts, http.MethodPut, "/api/v1alpha1/preferences/hide-read-only", "alice", `{"value": true}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnexpectedErrorIsInternal(t *testing.T) {
	ts := newHTTPTestServer(t, fakeDashboard{err: errors.New("boom")}, Config{})

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/lifecycle/v1-ConfigMap/default/cfg", "", "")

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, decode[metav1.Status](t, resp).Message, "boom")
}

func TestProbesAndMetrics(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := do(t, ts, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	do(t, ts, http.MethodGet, "/api/v1alpha1/events", "", "")

	resp = do(t, ts, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `audit_dashboard_http_requests_total{code="200",method="GET",route="list_recent_changes"} 1`)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RequestsPerSecond: 1})

	// A rate of one allows a burst of two.
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/api/v1alpha1/events", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/api/v1alpha1/events", "", "").StatusCode)

	resp := do(t, ts, http.MethodGet, "/api/v1alpha1/events", "", "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, metav1.StatusReasonTooManyRequests, decode[metav1.Status](t, resp).Reason)

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/healthz", "", "").StatusCode)
}

func TestRateLimiter_Allow(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0))

	var disabled *RateLimiter
	ok, _ := disabled.Allow(time.Now())
	assert.True(t, ok)

	rl := NewRateLimiter(10)
	now := time.Now()
	for i := 0; i < 20; i++ {
		ok, _ := rl.Allow(now)
		require.True(t, ok, "request %d", i)
	}
	ok, retryAfter := rl.Allow(now)
	assert.False(t, ok)
	assert.InDelta(t, float64(100*time.Millisecond), float64(retryAfter), float64(time.Millisecond))

	ok, _ = rl.Allow(now.Add(time.Second))
	assert.True(t, ok)
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := New(fakeDashboard{}, Config{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
