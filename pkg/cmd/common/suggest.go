package common

import (
	"strings"

	"github.com/spf13/cobra"

	"go.miloapis.com/auditdashboard/internal/cel"
)

// CompleteVerbs completes --verb values.
func CompleteVerbs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return withPrefix(KnownVerbs, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// CompleteFilterFields completes the field names usable in --filter expressions.
func CompleteFilterFields(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return withPrefix(cel.AvailableFields(), toComplete), cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// RegisterCompletions wires completion functions for the flags cmd defines.
// Flags the command does not have are skipped.
func RegisterCompletions(cmd *cobra.Command) {
	completions := map[string]func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective){
		"verb":   CompleteVerbs,
		"filter": CompleteFilterFields,
	}
	for name, fn := range completions {
		if cmd.Flags().Lookup(name) == nil {
			continue
		}
		_ = cmd.RegisterFlagCompletionFunc(name, fn)
	}
}

func withPrefix(values []string, prefix string) []string {
	var out []string
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	return out
}
