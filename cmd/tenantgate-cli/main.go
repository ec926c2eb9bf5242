package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plexary/tenantgate/cmd/tenantgate-cli/commands"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tenantgate-cli",
		Short: "TenantGate CLI - request gate administration client",
		Long: `TenantGate CLI administers a running TenantGate instance over its
admin API: rate-limit rules, cache management, tenant records, and
gate statistics.

Configure the endpoint and token via environment variables:
  TENANTGATE_ADMIN_URL    (default http://localhost:8081)
  TENANTGATE_ADMIN_TOKEN  (super-admin bearer token)`,
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
	}

	rootCmd.AddCommand(commands.NewRulesCmd())
	rootCmd.AddCommand(commands.NewStatsCmd())
	rootCmd.AddCommand(commands.NewCacheCmd())
	rootCmd.AddCommand(commands.NewTenantsCmd())
	rootCmd.AddCommand(commands.NewResolveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
