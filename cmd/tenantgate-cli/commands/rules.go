package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexary/tenantgate/internal/store"
)

// NewRulesCmd creates the rate-limit rule command group.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rate limit rules",
	}

	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesGetCmd())
	cmd.AddCommand(newRulesCreateCmd())
	cmd.AddCommand(newRulesDeleteCmd())
	cmd.AddCommand(newRulesViolationsCmd())

	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rate limit rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules []store.Rule
			if err := NewClient().Do("GET", "/rate-limit/rules", nil, &rules); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tWINDOW\tMAX\tACTIVE")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%t\n",
					r.ID, r.Name, r.Priority,
					(time.Duration(r.WindowMs) * time.Millisecond).String(),
					r.MaxRequests, r.Active)
			}
			return w.Flush()
		},
	}
}

func newRulesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <rule-id>",
		Short: "Show one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rule store.Rule
			if err := NewClient().Do("GET", "/rate-limit/rules/"+args[0], nil, &rule); err != nil {
				return err
			}
			return printJSON(rule)
		},
	}
}

func newRulesCreateCmd() *cobra.Command {
	var (
		name     string
		tenantID string
		endpoint string
		method   string
		window   time.Duration
		max      int
		priority int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rate limit rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := store.Rule{
				Name:        name,
				TenantID:    tenantID,
				Endpoint:    endpoint,
				Method:      method,
				WindowMs:    window.Milliseconds(),
				MaxRequests: max,
				Priority:    priority,
				Active:      true,
			}

			var created store.Rule
			if err := NewClient().Do("POST", "/rate-limit/rules", rule, &created); err != nil {
				return err
			}

			fmt.Printf("Rule '%s' created (id: %s)\n", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Rule name (required)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Scope to a tenant id")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Scope to an endpoint path (trailing * for prefix)")
	cmd.Flags().StringVar(&method, "method", "", "Scope to an HTTP method")
	cmd.Flags().DurationVar(&window, "window", time.Minute, "Window duration")
	cmd.Flags().IntVar(&max, "max", 100, "Max requests per window")
	cmd.Flags().IntVar(&priority, "priority", 0, "Rule priority, higher wins")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewClient().Do("DELETE", "/rate-limit/rules/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Printf("Rule '%s' deleted\n", args[0])
			return nil
		},
	}
}

func newRulesViolationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "violations",
		Short: "List recent rate limit violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var violations []map[string]interface{}
			if err := NewClient().Do("GET", "/rate-limit/violations", nil, &violations); err != nil {
				return err
			}
			return printJSON(violations)
		},
	}
}
