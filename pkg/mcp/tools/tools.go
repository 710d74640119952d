// Package tools provides MCP (Model Context Protocol) tools for browsing the
// audit dashboard. These tools can be used standalone or embedded into an
// external MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"go.miloapis.com/auditdashboard/internal/diffview"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/timeutil"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
	"go.miloapis.com/auditdashboard/pkg/client"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ToolProvider exposes the dashboard API as MCP tools.
type ToolProvider struct {
	client client.Interface
	now    func() time.Time
}

// Config contains configuration for the ToolProvider.
type Config struct {
	// Server is the URL of the dashboard. When set the kubeconfig is not used.
	Server string

	// User is sent as X-Remote-User when Server is set.
	User string

	// Kubeconfig is the path to a kubeconfig file.
	// If empty, uses in-cluster config or default kubeconfig location.
	Kubeconfig string

	// Context is the kubeconfig context to use.
	// If empty, uses the current context.
	Context string

	// ServiceProxy is the API server proxy path of the dashboard service.
	ServiceProxy string
}

// NewToolProvider creates a new ToolProvider with the given configuration.
func NewToolProvider(cfg Config) (*ToolProvider, error) {
	if cfg.Server != "" {
		c, err := client.New(client.Config{Server: cfg.Server, User: cfg.User})
		if err != nil {
			return nil, fmt.Errorf("failed to create dashboard client: %w", err)
		}
		return NewToolProviderWithClient(c), nil
	}

	restConfig, err := loadRESTConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}
	if cfg.ServiceProxy == "" {
		return nil, fmt.Errorf("a service proxy path is required when no server URL is given")
	}

	c, err := client.NewForRESTConfig(restConfig, cfg.ServiceProxy)
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard client: %w", err)
	}
	return NewToolProviderWithClient(c), nil
}

func loadRESTConfig(cfg Config) (*rest.Config, error) {
	overrides := &clientcmd.ConfigOverrides{}
	if cfg.Context != "" {
		overrides.CurrentContext = cfg.Context
	}

	if cfg.Kubeconfig != "" {
		loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: cfg.Kubeconfig}
		return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	}

	// Try in-cluster config first, fall back to default kubeconfig
	if restConfig, err := rest.InClusterConfig(); err == nil {
		return restConfig, nil
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
}

// NewToolProviderWithClient creates a ToolProvider with an existing client.
// This is useful for embedding the tools into an existing application.
func NewToolProviderWithClient(c client.Interface) *ToolProvider {
	return &ToolProvider{client: c, now: time.Now}
}

// Close releases resources held by the ToolProvider.
func (p *ToolProvider) Close() error {
	return nil
}

// ListRecentChangesArgs contains the arguments for the list_recent_changes tool.
type ListRecentChangesArgs struct {
	Since string `json:"since,omitempty" jsonschema:"Only events at or after this time. Relative (e.g. 'now-7d') or RFC3339."`
	Until string `json:"until,omitempty" jsonschema:"Only events before this time. Relative (e.g. 'now-1h') or RFC3339."`

	Filter string `json:"filter,omitempty" jsonschema:"CEL filter expression. Available fields: auditID, verb, userAgent, requestReceivedTimestamp, user.username, objectRef.namespace, objectRef.resource, objectRef.name, objectRef.apiGroup, responseStatus.code. Example: verb == 'delete' && objectRef.namespace == 'production'"`

	Page     int `json:"page,omitempty" jsonschema:"Zero-based page number"`
	PageSize int `json:"pageSize,omitempty" jsonschema:"Results per page (default: 50, max: 200)"`
}

func (p *ToolProvider) handleListRecentChanges(ctx context.Context, req *mcp.CallToolRequest, args ListRecentChangesArgs) (*mcp.CallToolResult, any, error) {
	if _, err := timeutil.ParseRange(args.Since, args.Until, p.now()); err != nil {
		return errorResult(fmt.Sprintf("Invalid time range: %v", err)), nil, nil
	}
	if args.Page < 0 {
		return errorResult("page must be zero or greater"), nil, nil
	}

	pageSize := args.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	result, err := p.client.RecentChanges(ctx, client.RecentChangesOptions{
		Page:     args.Page,
		PageSize: pageSize,
		Filter:   args.Filter,
		Since:    args.Since,
		Until:    args.Until,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}

	return jsonResult(map[string]any{
		"count":       len(result.Items),
		"total":       result.Total,
		"page":        result.Page,
		"totalPages":  result.TotalPages,
		"hasNextPage": result.HasNextPage,
		"events":      result.Items,
	})
}

// GetResourceLifecycleArgs contains the arguments for the get_resource_lifecycle tool.
type GetResourceLifecycleArgs struct {
	APIGroup  string `json:"apiGroup,omitempty" jsonschema:"API group, empty for the core group (e.g. 'apps')"`
	Version   string `json:"version" jsonschema:"API version (e.g. 'v1'). Required."`
	Kind      string `json:"kind" jsonschema:"Kind (e.g. 'Deployment'). Required."`
	Namespace string `json:"namespace,omitempty" jsonschema:"Namespace, empty for cluster-scoped resources"`
	Name      string `json:"name" jsonschema:"Resource name. Required."`

	ShowReadOnly  *bool `json:"showReadOnly,omitempty" jsonschema:"Include get, list and watch events. Defaults to the user's preference."`
	IncludeStates bool  `json:"includeStates,omitempty" jsonschema:"Include the full resource state and previous state of every entry"`
}

// lifecycleEntry is the per-event output of get_resource_lifecycle.
type lifecycleEntry struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	User      string                 `json:"user"`
	Change    string                 `json:"change"`
	Summary   string                 `json:"summary,omitempty"`
	Diff      *v1alpha1.ResourceDiff `json:"diff,omitempty"`

	ResourceState json.RawMessage `json:"resourceState,omitempty"`
	PreviousState json.RawMessage `json:"previousState,omitempty"`
}

func (p *ToolProvider) handleGetResourceLifecycle(ctx context.Context, req *mcp.CallToolRequest, args GetResourceLifecycleArgs) (*mcp.CallToolResult, any, error) {
	if args.Version == "" || args.Kind == "" || args.Name == "" {
		return errorResult("version, kind and name are required"), nil, nil
	}

	var opts client.LifecycleOptions
	if args.ShowReadOnly != nil {
		hide := !*args.ShowReadOnly
		opts.HideReadOnly = &hide
	}

	ref := v1alpha1.ResourceReference{
		APIGroup:  args.APIGroup,
		Version:   args.Version,
		Kind:      args.Kind,
		Namespace: args.Namespace,
		Name:      args.Name,
	}
	timeline, err := p.client.ResourceLifecycle(ctx, ref, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}

	entries := make([]lifecycleEntry, 0, len(timeline.Entries))
	for i := range timeline.Entries {
		entries = append(entries, toLifecycleEntry(&timeline.Entries[i], args.IncludeStates))
	}

	return jsonResult(map[string]any{
		"resource":     timeline.Resource,
		"hideReadOnly": timeline.HideReadOnly,
		"totalEvents":  timeline.TotalEvents,
		"hiddenEvents": timeline.HiddenEvents,
		"entries":      entries,
	})
}

func toLifecycleEntry(entry *v1alpha1.TimelineEntry, includeStates bool) lifecycleEntry {
	out := lifecycleEntry{
		ID:        entry.ID,
		Type:      entry.Type,
		Timestamp: entry.Timestamp.UTC(),
		User:      entry.User,
		Diff:      entry.Diff,
	}

	view := diffview.ForEntry(entry)
	switch {
	case lifecycle.IsReadOnly(lifecycle.EventType(entry.Type)):
		out.Change = "read-only"
	default:
		out.Change = string(view.State)
		out.Summary = view.Summary
		if view.Message != "" {
			out.Summary = view.Message
		}
	}

	if includeStates {
		out.ResourceState = entry.ResourceState
		out.PreviousState = entry.PreviousState
	}
	return out
}

// GetEventSummaryArgs contains the arguments for the get_event_summary tool.
type GetEventSummaryArgs struct {
	Since string `json:"since,omitempty" jsonschema:"Only count events at or after this time. Relative (e.g. 'now-24h') or RFC3339."`
	Until string `json:"until,omitempty" jsonschema:"Only count events before this time. Relative (e.g. 'now-1h') or RFC3339."`
}

func (p *ToolProvider) handleGetEventSummary(ctx context.Context, req *mcp.CallToolRequest, args GetEventSummaryArgs) (*mcp.CallToolResult, any, error) {
	if _, err := timeutil.ParseRange(args.Since, args.Until, p.now()); err != nil {
		return errorResult(fmt.Sprintf("Invalid time range: %v", err)), nil, nil
	}

	summary, err := p.client.Summary(ctx, client.SummaryOptions{Since: args.Since, Until: args.Until})
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}
	return jsonResult(map[string]any{
		"totalEvents":    summary.TotalEvents,
		"mutatingEvents": summary.MutatingEvents,
	})
}

// GetHideReadOnlyPreferenceArgs takes no arguments.
type GetHideReadOnlyPreferenceArgs struct{}

func (p *ToolProvider) handleGetHideReadOnlyPreference(ctx context.Context, req *mcp.CallToolRequest, args GetHideReadOnlyPreferenceArgs) (*mcp.CallToolResult, any, error) {
	pref, err := p.client.GetHideReadOnly(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}
	return jsonResult(map[string]any{
		"hideReadOnly": pref.Value,
		"scope":        pref.Scope,
	})
}

// Helper functions

func jsonResult(output any) (*mcp.CallToolResult, any, error) {
	jsonBytes, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to format results: %v", err)), nil, nil
	}
	return textResult(string(jsonBytes)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
	}
}
