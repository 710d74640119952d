package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/kubectl/pkg/util/templates"

	"go.miloapis.com/auditdashboard/pkg/client"
	"go.miloapis.com/auditdashboard/pkg/cmd/common"
)

// ClientFunc returns the dashboard client used by a command.
type ClientFunc func() (client.Interface, error)

// AuditDashboardCommandOptions contains options for creating the audit dashboard command
type AuditDashboardCommandOptions struct {
	// Factory is the kubectl factory to use for building clients.
	// If nil, a default factory will be created.
	Factory util.Factory

	// IOStreams for command input/output.
	// If not set, defaults to os.Stdin/Stdout/Stderr.
	IOStreams genericclioptions.IOStreams

	// ConfigFlags for kubeconfig management.
	// If nil and Factory is nil, default ConfigFlags will be created.
	// This field is ignored if Factory is provided.
	ConfigFlags *genericclioptions.ConfigFlags

	// NewClient overrides how the dashboard client is built. When nil the
	// --dashboard-server and --service-proxy flags decide.
	NewClient ClientFunc
}

// NewAuditDashboardCommand creates the root command for the audit dashboard CLI.
// Pass an empty AuditDashboardCommandOptions{} to use defaults.
func NewAuditDashboardCommand(opts AuditDashboardCommandOptions) *cobra.Command {
	ioStreams := opts.IOStreams
	if ioStreams.In == nil {
		ioStreams.In = os.Stdin
	}
	if ioStreams.Out == nil {
		ioStreams.Out = os.Stdout
	}
	if ioStreams.ErrOut == nil {
		ioStreams.ErrOut = os.Stderr
	}

	var f util.Factory
	var kubeConfigFlags *genericclioptions.ConfigFlags

	if opts.Factory != nil {
		f = opts.Factory
	} else {
		if opts.ConfigFlags != nil {
			kubeConfigFlags = opts.ConfigFlags
		} else {
			kubeConfigFlags = genericclioptions.NewConfigFlags(true)
		}
		f = util.NewFactory(util.NewMatchVersionFlags(kubeConfigFlags))
	}

	cmd := &cobra.Command{
		Use:   "audit-dashboard",
		Short: "Browse Kubernetes audit events",
		Long: templates.LongDesc(`
			The audit-dashboard plugin lists recent changes recorded in the Kubernetes
			audit log, counts stored events and shows the lifecycle of a single resource,
			with a diff for every change.

			The dashboard is reached through the API server's service proxy using your
			kubeconfig credentials, or directly with --dashboard-server.`),
		SilenceUsage: true,
	}

	if kubeConfigFlags != nil {
		kubeConfigFlags.AddFlags(cmd.PersistentFlags())
	}

	clientFlags := common.NewClientFlags()
	newClient := opts.NewClient
	if newClient == nil {
		clientFlags.AddFlags(cmd.PersistentFlags())
		newClient = func() (client.Interface, error) {
			return clientFlags.NewClient(f)
		}
	}

	cmd.AddCommand(NewEventsCommand(newClient, ioStreams))
	cmd.AddCommand(NewLifecycleCommand(newClient, ioStreams))
	cmd.AddCommand(NewSummaryCommand(newClient, ioStreams))
	cmd.AddCommand(NewPreferencesCommand(newClient, ioStreams))

	return cmd
}

// namespaceFlag returns the value of --namespace when the user set it.
func namespaceFlag(cmd *cobra.Command) string {
	flag := cmd.Flags().Lookup("namespace")
	if flag == nil || !flag.Changed {
		return ""
	}
	return flag.Value.String()
}
