package common

import (
	"fmt"
	"io"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/printers"

	"go.miloapis.com/auditdashboard/internal/diffview"
)

// TablePrinter wraps the Kubernetes table printer with helper methods
type TablePrinter struct {
	PrintFlags *genericclioptions.PrintFlags
	IOStreams  genericclioptions.IOStreams
	NoHeaders  bool
}

// NewTablePrinter creates a new table printer
func NewTablePrinter(printFlags *genericclioptions.PrintFlags, ioStreams genericclioptions.IOStreams, noHeaders bool) *TablePrinter {
	return &TablePrinter{
		PrintFlags: printFlags,
		IOStreams:  ioStreams,
		NoHeaders:  noHeaders,
	}
}

// PrintTable prints a table to the output stream
func (p *TablePrinter) PrintTable(table *metav1.Table) error {
	return CreateTablePrinter(p.NoHeaders).PrintObj(table, p.IOStreams.Out)
}

// PrintPaginationInfo tells the user how to reach the neighbouring pages.
// page is zero-based.
func (p *TablePrinter) PrintPaginationInfo(page, totalPages, total int, hasNext bool) {
	if total == 0 {
		return
	}
	_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "\nPage %d of %d (%d results).\n", page+1, totalPages, total)
	if hasNext {
		_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "More results available. Use --page %d to get the next page.\n", page+1)
		_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "Or use --all-pages to fetch all results automatically.\n")
	}
}

// PrintAllPagesInfo prints info about fetched results
func (p *TablePrinter) PrintAllPagesInfo(totalCount int) {
	_, _ = fmt.Fprintf(p.IOStreams.ErrOut, "\nShowing %d results.\n", totalCount)
}

// SupportsColor checks if the output stream supports ANSI color codes
func SupportsColor(out io.Writer) bool {
	return diffview.SupportsColor(out)
}

// IsDefaultOutputFormat checks if using default (table) output
func IsDefaultOutputFormat(printFlags *genericclioptions.PrintFlags) bool {
	outputFormat := printFlags.OutputFormat
	return outputFormat == nil || *outputFormat == ""
}

// CreateTablePrinter creates a configured table printer for consistent table output
func CreateTablePrinter(noHeaders bool) printers.ResourcePrinter {
	return printers.NewTablePrinter(printers.PrintOptions{
		WithNamespace: false,
		Wide:          true,
		NoHeaders:     noHeaders,
	})
}
