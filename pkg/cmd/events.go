package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/printers"
	"k8s.io/kubectl/pkg/util/templates"

	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
	"go.miloapis.com/auditdashboard/pkg/client"
	"go.miloapis.com/auditdashboard/pkg/cmd/common"
)

var (
	eventsLong = templates.LongDesc(`
		List completed audit events, newest first.

		Only events recorded at the RequestResponse level are shown, so every entry
		carries the object as the API server returned it.

		--since and --until accept relative times such as now-7d, now-2h or now-30m
		(units: s, m, h, d, w) and absolute RFC3339 times such as 2024-01-01T00:00:00Z.

		--filter takes a CEL expression over audit event fields, for example
		verb in ['create', 'delete'] && objectRef.namespace.startsWith('prod').
		The shorthand flags are combined with it using &&.`)

	eventsExample = templates.Examples(`
		# Most recent changes
		kubectl audit-dashboard events

		# Deletions in the production namespace during the last week
		kubectl audit-dashboard events -n production --verb delete --since now-7d

		# Everything alice changed, all pages
		kubectl audit-dashboard events --user alice@example.com --all-pages

		# Raw JSON
		kubectl audit-dashboard events -o json`)
)

// maxAllPages bounds --all-pages so a store that keeps growing cannot keep the
// command running forever.
const maxAllPages = 1000

// EventsOptions contains the options for listing recent changes
type EventsOptions struct {
	Namespace string
	User      string
	Verb      string
	Resource  string
	Filter    string

	// Common flags
	TimeRange  common.TimeRangeFlags
	Pagination common.PaginationFlags
	Output     common.OutputFlags

	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	NewClient ClientFunc

	now func() time.Time
}

// NewEventsOptions creates a new EventsOptions with default values
func NewEventsOptions(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *EventsOptions {
	return &EventsOptions{
		IOStreams:  ioStreams,
		NewClient:  newClient,
		PrintFlags: genericclioptions.NewPrintFlags(""),
		Pagination: common.PaginationFlags{PageSize: 25},
		now:        time.Now,
	}
}

// NewEventsCommand creates the events command
func NewEventsCommand(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := NewEventsOptions(newClient, ioStreams)

	cmd := &cobra.Command{
		Use:          "events [flags]",
		Short:        "List recent changes recorded in the audit log",
		Long:         eventsLong,
		Example:      eventsExample,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	common.AddTimeRangeFlags(cmd, &o.TimeRange, "")
	common.AddPaginationFlags(cmd, &o.Pagination, 25)
	common.AddOutputFlags(cmd, &o.Output)

	cmd.Flags().StringVar(&o.User, "user", "", "Filter by username")
	cmd.Flags().StringVar(&o.Verb, "verb", "", "Filter by verb (create, update, patch, delete, ...)")
	cmd.Flags().StringVar(&o.Resource, "resource", "", "Filter by resource (e.g., deployments, configmaps)")
	cmd.Flags().StringVar(&o.Filter, "filter", "", "CEL filter expression over audit event fields")

	o.PrintFlags.AddFlags(cmd)
	common.RegisterCompletions(cmd)

	return cmd
}

// Complete fills in missing options
func (o *EventsOptions) Complete(cmd *cobra.Command) error {
	o.Namespace = namespaceFlag(cmd)
	if o.now == nil {
		o.now = time.Now
	}
	return nil
}

// Validate checks that required options are set correctly
func (o *EventsOptions) Validate() error {
	if err := o.TimeRange.Validate(o.now()); err != nil {
		return err
	}
	if err := o.Pagination.Validate(); err != nil {
		return err
	}
	return common.ValidateVerb(o.Verb)
}

// Run executes the query
func (o *EventsOptions) Run(ctx context.Context) error {
	c, err := o.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create dashboard client: %w", err)
	}

	if o.Pagination.AllPages {
		return o.runAllPages(ctx, c)
	}
	return o.runSinglePage(ctx, c)
}

// buildFilter creates a CEL expression from the shorthand flags
func (o *EventsOptions) buildFilter() string {
	var clauses []string
	if o.Namespace != "" {
		clauses = append(clauses, fmt.Sprintf("objectRef.namespace == '%s'", common.EscapeCELString(o.Namespace)))
	}
	if o.User != "" {
		clauses = append(clauses, fmt.Sprintf("user.username == '%s'", common.EscapeCELString(o.User)))
	}
	if o.Verb != "" {
		clauses = append(clauses, fmt.Sprintf("verb == '%s'", o.Verb))
	}
	if o.Resource != "" {
		clauses = append(clauses, fmt.Sprintf("objectRef.resource == '%s'", common.EscapeCELString(o.Resource)))
	}
	clauses = append(clauses, o.Filter)
	return common.AndFilters(clauses...)
}

func (o *EventsOptions) query(page int) client.RecentChangesOptions {
	return client.RecentChangesOptions{
		Page:     page,
		PageSize: o.Pagination.PageSize,
		Filter:   o.buildFilter(),
		Since:    o.TimeRange.Since,
		Until:    o.TimeRange.Until,
	}
}

func (o *EventsOptions) runSinglePage(ctx context.Context, c client.Interface) error {
	result, err := c.RecentChanges(ctx, o.query(o.Pagination.Page))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if !common.IsDefaultOutputFormat(o.PrintFlags) {
		printer, err := o.PrintFlags.ToPrinter()
		if err != nil {
			return fmt.Errorf("failed to create printer: %w", err)
		}
		return printer.PrintObj(result, o.Out)
	}

	if err := common.CreateTablePrinter(o.Output.NoHeaders).PrintObj(changesToTable(result.Items), o.Out); err != nil {
		return err
	}
	tp := common.NewTablePrinter(o.PrintFlags, o.IOStreams, o.Output.NoHeaders)
	tp.PrintPaginationInfo(result.Page, result.TotalPages, result.Total, result.HasNextPage)
	return nil
}

// runAllPages fetches all pages of results
func (o *EventsOptions) runAllPages(ctx context.Context, c client.Interface) error {
	isTableOutput := common.IsDefaultOutputFormat(o.PrintFlags)
	var tablePrinter printers.ResourcePrinter
	if isTableOutput {
		tablePrinter = common.CreateTablePrinter(o.Output.NoHeaders)
	}

	var all *v1alpha1.RecentChangeList
	for page := 0; page < maxAllPages; page++ {
		result, err := c.RecentChanges(ctx, o.query(page))
		if err != nil {
			return fmt.Errorf("query failed on page %d: %w", page, err)
		}

		if all == nil {
			all = result.DeepCopy()
		} else {
			all.Items = append(all.Items, result.Items...)
		}

		if isTableOutput && len(result.Items) > 0 {
			// Only the first page prints the column headers.
			tp := tablePrinter
			if page > 0 {
				tp = common.CreateTablePrinter(true)
			}
			if err := tp.PrintObj(changesToTable(result.Items), o.Out); err != nil {
				return err
			}
		}

		if !result.HasNextPage {
			break
		}
	}

	if !isTableOutput {
		all.Page = 0
		all.PageSize = len(all.Items)
		all.TotalPages = 1
		all.HasNextPage = false
		all.HasPreviousPage = false
		printer, err := o.PrintFlags.ToPrinter()
		if err != nil {
			return fmt.Errorf("failed to create printer: %w", err)
		}
		return printer.PrintObj(all, o.Out)
	}

	tp := common.NewTablePrinter(o.PrintFlags, o.IOStreams, o.Output.NoHeaders)
	tp.PrintAllPagesInfo(len(all.Items))
	return nil
}

// changesToTable converts recent changes to a Table object
func changesToTable(items []v1alpha1.AuditEventSummary) *metav1.Table {
	return &metav1.Table{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Table",
			APIVersion: "meta.k8s.io/v1",
		},
		ColumnDefinitions: []metav1.TableColumnDefinition{
			{Name: "Time", Type: "string", Description: "When the request completed"},
			{Name: "Verb", Type: "string"},
			{Name: "Resource", Type: "string", Description: "Namespace, resource and name"},
			{Name: "User", Type: "string"},
			{Name: "Source", Type: "string", Description: "human or system"},
			{Name: "Code", Type: "integer", Description: "Response status code"},
		},
		Rows: changesToRows(items),
	}
}

func changesToRows(items []v1alpha1.AuditEventSummary) []metav1.TableRow {
	rows := make([]metav1.TableRow, 0, len(items))
	for i := range items {
		item := &items[i]
		rows = append(rows, metav1.TableRow{
			Cells: []interface{}{
				item.Timestamp.UTC().Format(time.RFC3339),
				item.Verb,
				resourceColumn(item),
				item.User,
				item.ChangeSource,
				item.StatusCode,
			},
		})
	}
	return rows
}

func resourceColumn(item *v1alpha1.AuditEventSummary) string {
	out := item.Resource
	if item.APIGroup != "" {
		out += "." + item.APIGroup
	}
	if item.Name != "" {
		out += "/" + item.Name
	}
	if item.Namespace != "" {
		out = item.Namespace + "/" + out
	}
	return out
}
