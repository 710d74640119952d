package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/util/templates"

	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
	"go.miloapis.com/auditdashboard/pkg/cmd/common"
)

// preferenceHideReadOnly is the only preference the dashboard stores.
const preferenceHideReadOnly = "hide-read-only"

// PreferencesOptions contains the options for reading and writing preferences
type PreferencesOptions struct {
	Name  string
	Value *bool

	PrintFlags *genericclioptions.PrintFlags
	genericclioptions.IOStreams
	NewClient ClientFunc
}

// NewPreferencesCommand creates the preferences command with its get and set subcommands
func NewPreferencesCommand(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Read or change your dashboard preferences",
		Long: templates.LongDesc(`
			Read or change your dashboard preferences.

			Preferences are stored per user. The user is the one your requests are
			authenticated as, or --dashboard-user when talking to the dashboard directly.

			The only preference is hide-read-only, which hides get, list and watch
			events in lifecycles and defaults to true.`),
		Example: templates.Examples(`
			kubectl audit-dashboard preferences get hide-read-only
			kubectl audit-dashboard preferences set hide-read-only false`),
		SilenceUsage: true,
	}

	cmd.AddCommand(newPreferencesGetCommand(newClient, ioStreams))
	cmd.AddCommand(newPreferencesSetCommand(newClient, ioStreams))
	return cmd
}

func newPreferencesGetCommand(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := &PreferencesOptions{IOStreams: ioStreams, NewClient: newClient, PrintFlags: genericclioptions.NewPrintFlags("")}

	cmd := &cobra.Command{
		Use:       "get NAME",
		Short:     "Show a preference",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{preferenceHideReadOnly},
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Name = args[0]
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}
	o.PrintFlags.AddFlags(cmd)
	return cmd
}

func newPreferencesSetCommand(newClient ClientFunc, ioStreams genericclioptions.IOStreams) *cobra.Command {
	o := &PreferencesOptions{IOStreams: ioStreams, NewClient: newClient, PrintFlags: genericclioptions.NewPrintFlags("")}

	cmd := &cobra.Command{
		Use:       "set NAME VALUE",
		Short:     "Change a preference",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{preferenceHideReadOnly},
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Name = args[0]
			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: must be true or false", args[1])
			}
			o.Value = &value
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}
	o.PrintFlags.AddFlags(cmd)
	return cmd
}

// Validate checks that the preference exists
func (o *PreferencesOptions) Validate() error {
	if o.Name != preferenceHideReadOnly {
		return fmt.Errorf("unknown preference %q: only %s is supported", o.Name, preferenceHideReadOnly)
	}
	return nil
}

// Run reads the preference, or writes it when Value is set
func (o *PreferencesOptions) Run(ctx context.Context) error {
	c, err := o.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create dashboard client: %w", err)
	}

	var pref *v1alpha1.Preference
	if o.Value != nil {
		pref, err = c.SetHideReadOnly(ctx, *o.Value)
	} else {
		pref, err = c.GetHideReadOnly(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to access preference %s: %w", o.Name, err)
	}

	if !common.IsDefaultOutputFormat(o.PrintFlags) {
		printer, err := o.PrintFlags.ToPrinter()
		if err != nil {
			return fmt.Errorf("failed to create printer: %w", err)
		}
		return printer.PrintObj(pref, o.Out)
	}

	scope := pref.Scope
	if scope == "" {
		scope = "shared default"
	}
	_, err = fmt.Fprintf(o.Out, "%s: %t (%s)\n", o.Name, pref.Value, scope)
	return err
}
