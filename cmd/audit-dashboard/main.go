package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	utilfeature "k8s.io/apiserver/pkg/util/feature"
	"k8s.io/component-base/cli"
	logsapi "k8s.io/component-base/logs/api/v1"

	"go.miloapis.com/auditdashboard/internal/version"

	// Register JSON logging format
	_ "k8s.io/component-base/logs/json/register"
)

func init() {
	utilruntime.Must(logsapi.AddFeatureGates(utilfeature.DefaultMutableFeatureGate))
	utilruntime.Must(utilfeature.DefaultMutableFeatureGate.Set("LoggingBetaOptions=true"))
}

func main() {
	cmd := NewAuditDashboardCommand()
	code := cli.Run(cmd)
	os.Exit(code)
}

// NewAuditDashboardCommand creates the root command with subcommands for the dashboard.
func NewAuditDashboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit-dashboard",
		Short: "Audit dashboard - browse Kubernetes audit events",
		Long: `Audit dashboard serves recent changes and per-resource lifecycles built
from Kubernetes audit events stored in ClickHouse or PostgreSQL.`,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMCPCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewServeCommand creates the serve subcommand that starts the HTTP API.
func NewServeCommand() *cobra.Command {
	options := NewServeOptions()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		Long: `Start the dashboard API server and begin serving requests.

The server reads audit events from the configured storage backend and keeps
per-user preferences in memory, in a file or in a NATS JetStream bucket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := options.Complete(); err != nil {
				return err
			}
			if err := options.Validate(); err != nil {
				return err
			}
			return Run(options)
		},
	}

	flags := cmd.Flags()
	options.AddFlags(flags)

	// Add logging flags - this includes the -v flag for verbosity
	logsapi.AddFlags(options.Logs, flags)

	return cmd
}

// NewVersionCommand creates the version subcommand to display build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Show the version, git commit, and build details.`,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Audit Dashboard\n")
			fmt.Fprintf(out, "  Version:       %s\n", info.GitVersion)
			fmt.Fprintf(out, "  Git Commit:    %s\n", info.GitCommit)
			fmt.Fprintf(out, "  Git Tree:      %s\n", info.GitTreeState)
			fmt.Fprintf(out, "  Build Date:    %s\n", info.BuildDate)
			fmt.Fprintf(out, "  Go Version:    %s\n", info.GoVersion)
			fmt.Fprintf(out, "  Go Compiler:   %s\n", info.Compiler)
			fmt.Fprintf(out, "  Platform:      %s\n", info.Platform)
		},
	}
}
