package main

import (
	"fmt"
	"os"

	"go.miloapis.com/auditdashboard/pkg/cmd"
)

func main() {
	rootCmd := cmd.NewAuditDashboardCommand(cmd.AuditDashboardCommandOptions{})
	rootCmd.Use = "kubectl-audit-dashboard"

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
