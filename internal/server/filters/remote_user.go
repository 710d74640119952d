// Package filters provides HTTP filters for the audit dashboard server.
package filters

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"k8s.io/apiserver/pkg/authentication/user"
	"k8s.io/apiserver/pkg/endpoints/request"
	"k8s.io/klog/v2"
)

// Headers set by an authenticating proxy in front of the dashboard.
const (
	HeaderRemoteUser = "X-Remote-User"
	HeaderRemoteUID  = "X-Remote-Uid"
	// HeaderRemoteGroup may appear multiple times.
	HeaderRemoteGroup = "X-Remote-Group"
	// HeaderRemoteExtraPrefix is followed by a URL-encoded attribute key.
	HeaderRemoteExtraPrefix = "X-Remote-Extra-"
)

// RemoteUserConfig names the headers read by WithRemoteUser.
type RemoteUserConfig struct {
	UsernameHeader      string
	UIDHeader           string
	GroupHeaders        []string
	ExtraHeaderPrefixes []string
}

// DefaultRemoteUserConfig returns the X-Remote-* header names.
func DefaultRemoteUserConfig() RemoteUserConfig {
	return RemoteUserConfig{
		UsernameHeader:      HeaderRemoteUser,
		UIDHeader:           HeaderRemoteUID,
		GroupHeaders:        []string{HeaderRemoteGroup},
		ExtraHeaderPrefixes: []string{HeaderRemoteExtraPrefix},
	}
}

// WithRemoteUser stores the user described by the proxy headers in the request
// context. Requests without a username header pass through unchanged and are
// treated as anonymous.
//
// The dashboard trusts these headers only to pick whose preferences apply. It
// makes no authorization decisions.
func WithRemoteUser(handler http.Handler, config RemoteUserConfig) http.Handler {
	if config.UsernameHeader == "" {
		config = DefaultRemoteUserConfig()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		username := req.Header.Get(config.UsernameHeader)
		if username == "" {
			handler.ServeHTTP(w, req)
			return
		}

		var groups []string
		for _, h := range config.GroupHeaders {
			groups = append(groups, req.Header.Values(h)...)
		}
		info := &user.DefaultInfo{
			Name:   username,
			Groups: groups,
			Extra:  extractExtraHeaders(req.Header, config.ExtraHeaderPrefixes),
		}
		if config.UIDHeader != "" {
			info.UID = req.Header.Get(config.UIDHeader)
		}

		klog.V(4).InfoS("Remote user", "user", username, "uid", info.UID, "groups", groups)

		handler.ServeHTTP(w, req.WithContext(request.WithUser(req.Context(), info)))
	})
}

// ScopeFromContext returns the name of the remote user, or "" when the request
// was anonymous.
func ScopeFromContext(ctx context.Context) string {
	u, ok := request.UserFrom(ctx)
	if !ok || u == nil {
		return ""
	}
	return u.GetName()
}

// extractExtraHeaders collects X-Remote-Extra-{key} headers. Keys are URL-decoded.
func extractExtraHeaders(headers http.Header, prefixes []string) map[string][]string {
	extra := make(map[string][]string)

	for key, values := range headers {
		for _, prefix := range prefixes {
			// http.Header canonicalizes names, the configured prefix may not be.
			if len(key) <= len(prefix) || !strings.EqualFold(key[:len(prefix)], prefix) {
				continue
			}
			extraKey := key[len(prefix):]
			decoded, err := url.QueryUnescape(extraKey)
			if err != nil {
				klog.V(4).InfoS("Failed to URL-decode extra header key", "key", extraKey, "error", err)
				decoded = extraKey
			}
			extra[strings.ToLower(decoded)] = values
		}
	}

	return extra
}
