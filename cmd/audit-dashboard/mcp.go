package main

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.miloapis.com/auditdashboard/internal/version"
	"go.miloapis.com/auditdashboard/pkg/cmd/common"
	"go.miloapis.com/auditdashboard/pkg/mcp/tools"
)

// MCPServerOptions contains configuration for the MCP server.
type MCPServerOptions struct {
	// Dashboard reached directly
	Server string
	User   string

	// Kubernetes client configuration, used when Server is empty
	Kubeconfig   string
	Context      string
	ServiceProxy string
}

// NewMCPServerOptions creates options with default values.
func NewMCPServerOptions() *MCPServerOptions {
	return &MCPServerOptions{
		ServiceProxy: common.NewClientFlags().ServiceProxy,
	}
}

// AddFlags adds MCP server flags to the flag set.
func (o *MCPServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server, "dashboard-server", o.Server,
		"URL of the dashboard API. When set the kubeconfig is not used.")
	fs.StringVar(&o.User, "dashboard-user", o.User,
		"User whose preferences apply when --dashboard-server is set")
	fs.StringVar(&o.Kubeconfig, "kubeconfig", o.Kubeconfig,
		"Path to kubeconfig file. If not set, uses in-cluster config or default kubeconfig location (~/.kube/config)")
	fs.StringVar(&o.Context, "context", o.Context,
		"Kubeconfig context to use. If not set, uses the current context")
	fs.StringVar(&o.ServiceProxy, "service-proxy", o.ServiceProxy,
		"API server proxy path of the dashboard service")
}

// NewMCPCommand creates the mcp subcommand that starts the MCP server.
func NewMCPCommand() *cobra.Command {
	options := NewMCPServerOptions()

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI tool integration",
		Long: `Start an MCP (Model Context Protocol) server that exposes the audit
dashboard to AI assistants.

The server communicates via stdio. It reaches the dashboard either directly
with --dashboard-server or through the Kubernetes API server service proxy
using the kubeconfig.

Available tools:
    - list_recent_changes: Recent completed changes, newest first
    - get_resource_lifecycle: Change timeline of one resource with diffs
    - get_hide_read_only_preference: Whether read-only events are hidden

Example configuration for Claude Desktop (claude_desktop_config.json):
  {
    "mcpServers": {
      "audit-dashboard": {
        "command": "audit-dashboard",
        "args": ["mcp", "--kubeconfig", "~/.kube/config"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunMCPServer(options)
		},
	}

	flags := cmd.Flags()
	options.AddFlags(flags)

	return cmd
}

// RunMCPServer starts the MCP server with the given options.
func RunMCPServer(options *MCPServerOptions) error {
	provider, err := tools.NewToolProvider(tools.Config{
		Server:       options.Server,
		User:         options.User,
		Kubeconfig:   options.Kubeconfig,
		Context:      options.Context,
		ServiceProxy: options.ServiceProxy,
	})
	if err != nil {
		return fmt.Errorf("failed to create tool provider: %w", err)
	}
	defer provider.Close()

	mcpServer := provider.NewMCPServer(tools.ServerConfig{
		Name:    "audit-dashboard",
		Version: version.Get().GitVersion,
	})

	fmt.Fprintln(os.Stderr, "Starting audit dashboard MCP server...")
	switch {
	case options.Server != "":
		fmt.Fprintln(os.Stderr, "Using dashboard:", options.Server)
	case options.Kubeconfig != "":
		fmt.Fprintln(os.Stderr, "Using kubeconfig:", options.Kubeconfig)
	default:
		fmt.Fprintln(os.Stderr, "Using default kubeconfig")
	}
	if options.Context != "" {
		fmt.Fprintln(os.Stderr, "Using context:", options.Context)
	}

	return mcpServer.Run(context.Background(), &mcp.StdioTransport{})
}
