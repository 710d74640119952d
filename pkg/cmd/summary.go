package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/util/templates"

	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
	"go.miloapis.com/auditdashboard/pkg/client"
	"go.miloapis.com/auditdashboard/pkg/cmd/common"
)

var (
	summaryLong = templates.LongDesc(`
		Show how many audit events are stored, and how many of them could have
		changed a resource.

		Every stored event is counted, whatever its level or stage. Mutating events
		leave out get, list and watch.`)

	summaryExample = templates.Examples(`
		# Counts over everything stored
		kubectl audit-dashboard summary

		# Counts for the last day
		kubectl audit-dashboard summary --since now-24h`)
)

// SummaryOptions contains the options for the overview counts
type SummaryOptions struct {
	TimeRange common.TimeRangeFlags
	Output    common.OutputFlags

	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	NewClient ClientFunc

	now func() time.Time
}

// NewSummaryCommand creates the summary command
func NewSummaryCommand(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := &SummaryOptions{
		IOStreams:  ioStreams,
		NewClient:  newClient,
		PrintFlags: genericclioptions.NewPrintFlags(""),
		now:        time.Now,
	}

	cmd := &cobra.Command{
		Use:          "summary [flags]",
		Short:        "Show total and mutating event counts",
		Long:         summaryLong,
		Example:      summaryExample,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.TimeRange.Validate(o.now()); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	common.AddTimeRangeFlags(cmd, &o.TimeRange, "")
	common.AddOutputFlags(cmd, &o.Output)
	o.PrintFlags.AddFlags(cmd)

	return cmd
}

// Run fetches and prints the counts
func (o *SummaryOptions) Run(ctx context.Context) error {
	c, err := o.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create dashboard client: %w", err)
	}

	result, err := c.Summary(ctx, client.SummaryOptions{Since: o.TimeRange.Since, Until: o.TimeRange.Until})
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
	return common.CreateTablePrinter(o.Output.NoHeaders).PrintObj(summaryToTable(result), o.Out)
}

func summaryToTable(s *v1alpha1.EventSummary) *metav1.Table {
	return &metav1.Table{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Table",
			APIVersion: "meta.k8s.io/v1",
		},
		ColumnDefinitions: []metav1.TableColumnDefinition{
			{Name: "Total Events", Type: "integer", Description: "Every stored audit event"},
			{Name: "Mutating Events", Type: "integer", Description: "Events other than get, list and watch"},
		},
		Rows: []metav1.TableRow{{Cells: []interface{}{s.TotalEvents, s.MutatingEvents}}},
	}
}
