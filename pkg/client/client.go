// Package client is a typed HTTP client for the audit dashboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/rest"

	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
)

// HeaderRemoteUser names the user whose preferences apply. An authenticating
// proxy normally sets it; the client sets it when Config.User is not empty.
const HeaderRemoteUser = "X-Remote-User"

const defaultTimeout = 30 * time.Second

// Interface is the audit dashboard API.
type Interface interface {
	RecentChanges(ctx context.Context, opts RecentChangesOptions) (*v1alpha1.RecentChangeList, error)
	ResourceLifecycle(ctx context.Context, ref v1alpha1.ResourceReference, opts LifecycleOptions) (*v1alpha1.ResourceTimeline, error)
	Summary(ctx context.Context, opts SummaryOptions) (*v1alpha1.EventSummary, error)
	GetHideReadOnly(ctx context.Context) (*v1alpha1.Preference, error)
	SetHideReadOnly(ctx context.Context, value bool) (*v1alpha1.Preference, error)
}

// RecentChangesOptions selects a page of recent changes. Zero values use the
// server defaults.
type RecentChangesOptions struct {
	Page     int
	PageSize int
	// Filter is a CEL expression over audit event fields.
	Filter string
	// Since and Until accept RFC3339 or relative times such as now-2h.
	Since string
	Until string
}

// LifecycleOptions controls a timeline request.
type LifecycleOptions struct {
	// HideReadOnly overrides the stored preference when set.
	HideReadOnly *bool
}

// SummaryOptions bounds the overview counts. Empty values are open bounds.
type SummaryOptions struct {
	Since string
	Until string
}

// Config configures a Client.
type Config struct {
	// Server is the base URL of the dashboard, e.g. http://localhost:8080.
	Server string
	// User is sent as X-Remote-User when set.
	User string
	// Timeout applies to each request. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client implements Interface over HTTP.
type Client struct {
	base *url.URL
	user string
	http *http.Client
}

var _ Interface = (*Client)(nil)

// New returns a Client for config.
func New(config Config) (*Client, error) {
	if config.Server == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(config.Server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", config.Server, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", config.Server)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{base: base, user: config.User, http: httpClient}, nil
}

// NewForRESTConfig reaches the dashboard through the Kubernetes API server, e.g.
// with a service proxy path such as
// /api/v1/namespaces/audit/services/audit-dashboard:http/proxy. Credentials and
// TLS settings come from restConfig.
func NewForRESTConfig(restConfig *rest.Config, proxyPath string) (*Client, error) {
	httpClient, err := rest.HTTPClientFor(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client from kubeconfig: %w", err)
	}
	host := strings.TrimSuffix(restConfig.Host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return New(Config{
		Server:     host + "/" + strings.Trim(proxyPath, "/"),
		HTTPClient: httpClient,
	})
}

// RecentChanges lists completed audit events, newest first.
func (c *Client) RecentChanges(ctx context.Context, opts RecentChangesOptions) (*v1alpha1.RecentChangeList, error) {
	params := url.Values{}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	setIfNotEmpty(params, "filter", opts.Filter)
	setIfNotEmpty(params, "since", opts.Since)
	setIfNotEmpty(params, "until", opts.Until)

	out := &v1alpha1.RecentChangeList{}
	if err := c.do(ctx, http.MethodGet, "/events", params, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResourceLifecycle returns the timeline of one resource.
func (c *Client) ResourceLifecycle(ctx context.Context, ref v1alpha1.ResourceReference, opts LifecycleOptions) (*v1alpha1.ResourceTimeline, error) {
	id := lifecycle.ResourceIdentifier{
		APIGroup:  ref.APIGroup,
		Version:   ref.Version,
		Kind:      ref.Kind,
		Namespace: ref.Namespace,
		Name:      ref.Name,
	}
	gvk, namespace, name := id.URLSegments()

	params := url.Values{}
	if opts.HideReadOnly != nil {
		params.Set("hideReadOnly", strconv.FormatBool(*opts.HideReadOnly))
	}

	out := &v1alpha1.ResourceTimeline{}
	if err := c.do(ctx, http.MethodGet, "/lifecycle/"+gvk+"/"+namespace+"/"+name, params, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary returns the total and mutating event counts.
func (c *Client) Summary(ctx context.Context, opts SummaryOptions) (*v1alpha1.EventSummary, error) {
	params := url.Values{}
	setIfNotEmpty(params, "since", opts.Since)
	setIfNotEmpty(params, "until", opts.Until)

	out := &v1alpha1.EventSummary{}
	if err := c.do(ctx, http.MethodGet, "/summary", params, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHideReadOnly returns the caller's hide read-only preference.
func (c *Client) GetHideReadOnly(ctx context.Context) (*v1alpha1.Preference, error) {
	out := &v1alpha1.Preference{}
	if err := c.do(ctx, http.MethodGet, "/preferences/hide-read-only", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetHideReadOnly stores the caller's hide read-only preference.
func (c *Client) SetHideReadOnly(ctx context.Context, value bool) (*v1alpha1.Preference, error) {
	out := &v1alpha1.Preference{}
	body := &v1alpha1.Preference{Value: value}
	if err := c.do(ctx, http.MethodPut, "/preferences/hide-read-only", nil, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := *c.base
	// path segments are already escaped.
	u.RawPath = c.base.EscapedPath() + v1alpha1.APIPrefix + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = params.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(HeaderRemoteUser, c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError turns an error response into an apimachinery StatusError, so
// callers can use apierrors.IsNotFound and friends.
func statusError(code int, data []byte) error {
	status := &metav1.Status{}
	if err := json.Unmarshal(data, status); err != nil || status.Kind != "Status" {
		message := strings.TrimSpace(string(data))
		if message == "" {
			message = http.StatusText(code)
		}
		return apierrors.NewGenericServerResponse(code, "", v1alpha1.Resource(""), "", message, 0, false)
	}
	return apierrors.FromObject(status)
}

func setIfNotEmpty(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
