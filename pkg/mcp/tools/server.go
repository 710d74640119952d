package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"go.miloapis.com/auditdashboard/internal/version"
)

const defaultInstructions = `Tools for reading the Kubernetes audit log.
Start with list_recent_changes to find who changed what, then call
get_resource_lifecycle with the apiGroup, version, kind, namespace and name of
an event's object to see its full change history. get_event_summary counts
stored events, in total and excluding reads.`

// ServerConfig contains configuration for creating an MCP server.
type ServerConfig struct {
	// Name is the server name reported to clients. Defaults to "audit-dashboard".
	Name string

	// Version defaults to the build version.
	Version string

	// Instructions are sent to clients during initialization.
	Instructions string
}

// NewMCPServer creates an MCP server with all dashboard tools registered.
func (p *ToolProvider) NewMCPServer(cfg ServerConfig) *mcp.Server {
	if cfg.Name == "" {
		cfg.Name = "audit-dashboard"
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().GitVersion
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
		&mcp.ServerOptions{Instructions: cfg.Instructions},
	)
	p.RegisterTools(server)
	return server
}

// RegisterTools registers all dashboard tools with an MCP server.
func (p *ToolProvider) RegisterTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_recent_changes",
		Description: "List completed Kubernetes API requests recorded in the audit log, newest first. Use this to find out who changed what and when. Supports CEL filters and paging.",
	}, p.handleListRecentChanges)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_resource_lifecycle",
		Description: "Show every recorded event of one Kubernetes resource, newest first, with what each change modified. Reads (get, list, watch) are hidden unless showReadOnly is true or the user's preference says otherwise.",
	}, p.handleGetResourceLifecycle)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_event_summary",
		Description: "Count the audit events stored for a time range: every event, and the events other than get, list and watch.",
	}, p.handleGetEventSummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_hide_read_only_preference",
		Description: "Report whether read-only events are hidden from resource lifecycles for the current user.",
	}, p.handleGetHideReadOnlyPreference)
}
