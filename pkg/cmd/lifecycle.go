package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/util/templates"

	"go.miloapis.com/auditdashboard/internal/diffview"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
	"go.miloapis.com/auditdashboard/pkg/client"
	"go.miloapis.com/auditdashboard/pkg/cmd/common"
)

var (
	lifecycleLong = templates.LongDesc(`
		Show the lifecycle of one resource, newest first.

		The resource type is given as group/version/kind (apps/v1/Deployment), or
		version/kind for the core group (v1/ConfigMap). The dashboard URL form
		(apps-v1-Deployment) is accepted as well.

		Use -n/--namespace for namespaced resources. Without it the resource is treated
		as cluster-scoped.

		Reads (get, list, watch) are hidden unless --show-read-only is set or your
		stored preference says otherwise. Each change is diffed with the state left by
		the previous change, whether or not reads are shown.

		The default table lists time, type, user and a summary of what changed.
		--diff prints a unified diff against the previous state for every change, and
		-o json or -o yaml prints the timeline as returned by the dashboard.`)

	lifecycleExample = templates.Examples(`
		# Lifecycle of a deployment
		kubectl audit-dashboard lifecycle apps/v1/Deployment web -n default

		# Include reads
		kubectl audit-dashboard lifecycle v1/ConfigMap app-config -n default --show-read-only

		# Unified diff of every change
		kubectl audit-dashboard lifecycle apps/v1/Deployment web -n default --diff

		# Cluster-scoped resource as YAML
		kubectl audit-dashboard lifecycle rbac.authorization.k8s.io/v1/ClusterRole admin -o yaml`)
)

// LifecycleOptions contains the options for showing the lifecycle of a resource
type LifecycleOptions struct {
	Resource v1alpha1.ResourceReference

	ShowReadOnly bool
	ShowDiff     bool

	// showReadOnlySet is true when --show-read-only was given. Otherwise the
	// stored preference decides.
	showReadOnlySet bool

	Output     common.OutputFlags
	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	NewClient ClientFunc

	useColor bool
}

// NewLifecycleOptions creates a new LifecycleOptions with default values
func NewLifecycleOptions(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *LifecycleOptions {
	return &LifecycleOptions{
		IOStreams:  ioStreams,
		NewClient:  newClient,
		PrintFlags: genericclioptions.NewPrintFlags(""),
	}
}

// NewLifecycleCommand creates the lifecycle command
func NewLifecycleCommand(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewLifecycleOptions(newClient, ioStreams)

	cmd := &cobra.Command{
		Use:          "lifecycle GROUP/VERSION/KIND NAME",
		Short:        "Show every recorded change of a resource",
		Long:         lifecycleLong,
		Example:      lifecycleExample,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	common.AddOutputFlags(cmd, &o.Output)
	cmd.Flags().BoolVar(&o.ShowReadOnly, "show-read-only", false, "Show get, list and watch events (overrides the stored preference)")
	cmd.Flags().BoolVar(&o.ShowDiff, "diff", false, "Show a unified diff for every change")

	o.PrintFlags.AddFlags(cmd)

	return cmd
}

// Complete fills in missing options
func (o *LifecycleOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("exactly two arguments are required: GROUP/VERSION/KIND NAME")
	}

	ref, err := parseResourceType(args[0])
	if err != nil {
		return err
	}
	ref.Name = args[1]
	ref.Namespace = namespaceFlag(cmd)
	o.Resource = ref

	o.showReadOnlySet = cmd.Flags().Changed("show-read-only")
	o.useColor = common.SupportsColor(o.Out)
	return nil
}

// Validate checks that required options are set correctly
func (o *LifecycleOptions) Validate() error {
	if o.Resource.Kind == "" || o.Resource.Version == "" {
		return fmt.Errorf("resource type must include a version and a kind")
	}
	if o.Resource.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	if o.ShowDiff && !common.IsDefaultOutputFormat(o.PrintFlags) {
		return fmt.Errorf("--diff cannot be combined with --output")
	}
	return nil
}

// Run executes the lifecycle command
func (o *LifecycleOptions) Run(ctx context.Context) error {
	c, err := o.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create dashboard client: %w", err)
	}

	var opts client.LifecycleOptions
	if o.showReadOnlySet {
		hide := !o.ShowReadOnly
		opts.HideReadOnly = &hide
	}

	timeline, err := c.ResourceLifecycle(ctx, o.Resource, opts)
	if err != nil {
		return fmt.Errorf("failed to load lifecycle: %w", err)
	}

	switch {
	case !common.IsDefaultOutputFormat(o.PrintFlags):
		printer, err := o.PrintFlags.ToPrinter()
		if err != nil {
			return fmt.Errorf("failed to create printer: %w", err)
		}
		return printer.PrintObj(timeline, o.Out)
	case o.ShowDiff:
		o.printDiff(timeline)
	default:
		if err := common.CreateTablePrinter(o.Output.NoHeaders).PrintObj(timelineToTable(timeline), o.Out); err != nil {
			return err
		}
	}

	o.printSummary(timeline)
	return nil
}

func (o *LifecycleOptions) printSummary(timeline *v1alpha1.ResourceTimeline) {
	_, _ = fmt.Fprintf(o.ErrOut, "\nShowing %d of %d events.", len(timeline.Entries), timeline.TotalEvents)
	if timeline.HiddenEvents > 0 {
		_, _ = fmt.Fprintf(o.ErrOut, " %d read-only events hidden; use --show-read-only to include them.", timeline.HiddenEvents)
	}
	_, _ = fmt.Fprintln(o.ErrOut)
}

// printDiff prints each entry with the diff against its previous state
func (o *LifecycleOptions) printDiff(timeline *v1alpha1.ResourceTimeline) {
	for i := range timeline.Entries {
		entry := &timeline.Entries[i]
		view := diffview.UnifiedForEntry(entry)
		o.printEntryHeader(entry, view)

		body := view.Unified
		if body == "" {
			body = view.Object
		}
		if body == "" {
			body = view.Message
		}
		if body == "" {
			body = view.Summary
		}
		if view.State == diffview.StateChanged && o.useColor {
			body = diffview.Colorize(body)
		}
		printBody(o.Out, body)
	}
}

func (o *LifecycleOptions) printEntryHeader(entry *v1alpha1.TimelineEntry, view diffview.View) {
	const rule = "----------------------------------------------------------------"
	title := fmt.Sprintf("%s  %s  %s", entry.Type, entry.Timestamp.UTC().Format(time.RFC3339), entry.User)
	if o.useColor {
		title = "\033[1;36m" + title + "\033[0m"
	}
	_, _ = fmt.Fprintf(o.Out, "\n%s\n%s\n", rule, title)
	if view.State == diffview.StateChanged {
		_, _ = fmt.Fprintf(o.Out, "Changed: %s\n", view.Summary)
	}
	_, _ = fmt.Fprintln(o.Out, rule)
}

func printBody(w io.Writer, body string) {
	if body == "" {
		return
	}
	_, _ = fmt.Fprint(w, body)
	if !strings.HasSuffix(body, "\n") {
		_, _ = fmt.Fprintln(w)
	}
}

// timelineToTable converts a timeline to a Table object
func timelineToTable(timeline *v1alpha1.ResourceTimeline) *metav1.Table {
	rows := make([]metav1.TableRow, 0, len(timeline.Entries))
	for i := range timeline.Entries {
		entry := &timeline.Entries[i]
		view := diffview.ForEntry(entry)
		changes := view.Summary
		if changes == "" {
			changes = strings.ToLower(string(view.State))
		}
		if view.Message != "" {
			changes = view.Message
		}
		rows = append(rows, metav1.TableRow{
			Cells: []interface{}{
				entry.Timestamp.UTC().Format(time.RFC3339),
				entry.Type,
				entry.User,
				changes,
			},
		})
	}

	return &metav1.Table{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Table",
			APIVersion: "meta.k8s.io/v1",
		},
		ColumnDefinitions: []metav1.TableColumnDefinition{
			{Name: "Time", Type: "string"},
			{Name: "Type", Type: "string", Description: "CREATE, UPDATE, PATCH, DELETE or a read"},
			{Name: "User", Type: "string"},
			{Name: "Changes", Type: "string", Description: "Fields changed since the previous state"},
		},
		Rows: rows,
	}
}

// parseResourceType accepts group/version/kind, version/kind or the dashboard
// URL form such as apps-v1-Deployment.
func parseResourceType(value string) (v1alpha1.ResourceReference, error) {
	if strings.Contains(value, "/") {
		parts := strings.Split(value, "/")
		switch len(parts) {
		case 2:
			return v1alpha1.ResourceReference{Version: parts[0], Kind: parts[1]}, nil
		case 3:
			return v1alpha1.ResourceReference{APIGroup: parts[0], Version: parts[1], Kind: parts[2]}, nil
		}
		return v1alpha1.ResourceReference{}, fmt.Errorf("invalid resource type %q: expected GROUP/VERSION/KIND or VERSION/KIND", value)
	}

	// The name is validated separately; a placeholder keeps the parser happy.
	id, err := lifecycle.ParseFromURL(value, "", "placeholder")
	if err != nil {
		return v1alpha1.ResourceReference{}, fmt.Errorf("invalid resource type %q: %w", value, err)
	}
	return v1alpha1.ResourceReference{APIGroup: id.APIGroup, Version: id.Version, Kind: id.Kind}, nil
}
