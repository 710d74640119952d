package common

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/cli-runtime/pkg/genericclioptions"

	"go.miloapis.com/auditdashboard/internal/timeutil"
	"go.miloapis.com/auditdashboard/pkg/client"
)

// MaxPageSize is the largest page the server returns.
const MaxPageSize = 1000

// TimeRangeFlags contains common time range flags
type TimeRangeFlags struct {
	Since string
	Until string
}

// AddTimeRangeFlags adds time range flags to a command
func AddTimeRangeFlags(cmd *cobra.Command, flags *TimeRangeFlags, defaultSince string) {
	cmd.Flags().StringVar(&flags.Since, "since", defaultSince, "Only show events at or after this time (relative: 'now-7d' or absolute: RFC3339)")
	cmd.Flags().StringVar(&flags.Until, "until", "", "Only show events before this time (relative: 'now-1h' or absolute: RFC3339)")
}

// Validate checks that the bounds parse and are ordered. The server evaluates
// them again against its own clock.
func (f *TimeRangeFlags) Validate(now time.Time) error {
	if _, err := timeutil.ParseRange(f.Since, f.Until, now); err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}
	return nil
}

// PaginationFlags contains common pagination flags
type PaginationFlags struct {
	Page     int
	PageSize int
	AllPages bool
}

// AddPaginationFlags adds pagination flags to a command
func AddPaginationFlags(cmd *cobra.Command, flags *PaginationFlags, defaultPageSize int) {
	cmd.Flags().IntVar(&flags.Page, "page", 0, "Zero-based page number")
	cmd.Flags().IntVar(&flags.PageSize, "page-size", defaultPageSize, fmt.Sprintf("Results per page (1-%d)", MaxPageSize))
	cmd.Flags().BoolVar(&flags.AllPages, "all-pages", false, "Fetch all pages of results")
}

// Validate checks that pagination flags are valid
func (f *PaginationFlags) Validate() error {
	if f.PageSize < 1 || f.PageSize > MaxPageSize {
		return fmt.Errorf("--page-size must be between 1 and %d", MaxPageSize)
	}
	if f.Page < 0 {
		return fmt.Errorf("--page must be zero or greater")
	}
	if f.AllPages && f.Page != 0 {
		return fmt.Errorf("--all-pages and --page are mutually exclusive")
	}
	return nil
}

// OutputFlags contains common output flags
type OutputFlags struct {
	NoHeaders bool
}

// AddOutputFlags adds output flags to a command
func AddOutputFlags(cmd *cobra.Command, flags *OutputFlags) {
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Omit table headers")
}

// ClientFlags select the dashboard to talk to.
//
// With --server the dashboard is called directly. Otherwise the request goes
// through the Kubernetes API server's service proxy using the kubeconfig
// credentials.
type ClientFlags struct {
	Server       string
	User         string
	ServiceProxy string
	Timeout      time.Duration
}

// NewClientFlags returns the defaults.
func NewClientFlags() *ClientFlags {
	return &ClientFlags{
		ServiceProxy: "/api/v1/namespaces/audit-dashboard/services/audit-dashboard:http/proxy",
		Timeout:      30 * time.Second,
	}
}

// AddFlags registers the flags on fs.
func (f *ClientFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Server, "dashboard-server", f.Server, "URL of the audit dashboard (e.g. http://localhost:8080). Overrides --service-proxy.")
	fs.StringVar(&f.User, "dashboard-user", f.User, "User sent as X-Remote-User when talking to the dashboard directly")
	fs.StringVar(&f.ServiceProxy, "service-proxy", f.ServiceProxy, "API server proxy path of the dashboard service")
	fs.DurationVar(&f.Timeout, "request-timeout-dashboard", f.Timeout, "Timeout for direct dashboard requests")
}

// NewClient builds a client from the flags. getter is only used without
// --dashboard-server.
func (f *ClientFlags) NewClient(getter genericclioptions.RESTClientGetter) (client.Interface, error) {
	if f.Server != "" {
		c, err := client.New(client.Config{Server: f.Server, User: f.User, Timeout: f.Timeout})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	if getter == nil {
		return nil, fmt.Errorf("either --dashboard-server or a kubeconfig is required")
	}
	restConfig, err := getter.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}
	c, err := client.NewForRESTConfig(restConfig, f.ServiceProxy)
	if err != nil {
		return nil, err
	}
	return c, nil
}
