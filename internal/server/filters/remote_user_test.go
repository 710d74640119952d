package filters

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apiserver/pkg/authentication/user"
	"k8s.io/apiserver/pkg/endpoints/request"
)

func captureUser(t *testing.T, config RemoteUserConfig, header http.Header) (user.Info, string) {
	t.Helper()

	var got user.Info
	var scope string
	handler := WithRemoteUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = request.UserFrom(r.Context())
		scope = ScopeFromContext(r.Context())
	}), config)

	req := httptest.NewRequest(http.MethodGet, "/api/v1alpha1/events", nil)
	req.Header = header
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got, scope
}

func TestWithRemoteUser(t *testing.T) {
	header := http.Header{}
	header.Set("X-Remote-User", "alice@example.com")
	header.Set("X-Remote-Uid", "u-1")
	header.Add("X-Remote-Group", "admins")
	header.Add("X-Remote-Group", "developers")
	header.Set("X-Remote-Extra-Org%2fid", "acme")

	got, scope := captureUser(t, DefaultRemoteUserConfig(), header)

	require.NotNil(t, got)
	assert.Equal(t, "alice@example.com", got.GetName())
	assert.Equal(t, "u-1", got.GetUID())
	assert.Equal(t, []string{"admins", "developers"}, got.GetGroups())
	assert.Equal(t, map[string][]string{"org/id": {"acme"}}, got.GetExtra())
	assert.Equal(t, "alice@example.com", scope)
}

func TestWithRemoteUser_Anonymous(t *testing.T) {
	got, scope := captureUser(t, DefaultRemoteUserConfig(), http.Header{})

	assert.Nil(t, got)
	assert.Empty(t, scope)
}

func TestWithRemoteUser_CustomHeaders(t *testing.T) {
	header := http.Header{}
	header.Set("X-Forwarded-User", "bob")
	header.Set("X-Remote-User", "ignored")

	got, scope := captureUser(t, RemoteUserConfig{UsernameHeader: "X-Forwarded-User"}, header)

	require.NotNil(t, got)
	assert.Equal(t, "bob", got.GetName())
	assert.Empty(t, got.GetUID())
	assert.Equal(t, "bob", scope)
}
