package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plexary/tenantgate/internal/store"
)

// NewTenantsCmd creates the tenant record command group.
func NewTenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenant records",
	}

	cmd.AddCommand(newTenantsListCmd())
	cmd.AddCommand(newTenantsGetCmd())
	cmd.AddCommand(newTenantsCreateCmd())
	cmd.AddCommand(newTenantsDeleteCmd())

	return cmd
}

func newTenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tenants []store.Tenant
			if err := NewClient().Do("GET", "/tenants", nil, &tenants); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tSTATUS\tUSERS")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.ID, t.Name, t.Domain, t.Status, t.UserCount)
			}
			return w.Flush()
		},
	}
}

func newTenantsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tenant store.Tenant
			if err := NewClient().Do("GET", "/tenants/"+args[0], nil, &tenant); err != nil {
				return err
			}
			return printJSON(tenant)
		},
	}
}

func newTenantsCreateCmd() *cobra.Command {
	var (
		name   string
		domain string
		status string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant record",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := store.Tenant{
				Name:   name,
				Domain: domain,
				Status: store.TenantStatus(status),
			}

			var created store.Tenant
			if err := NewClient().Do("POST", "/tenants", tenant, &created); err != nil {
				return err
			}

			fmt.Printf("Tenant '%s' created (id: %s)\n", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Tenant display name (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "Tenant primary domain (required)")
	cmd.Flags().StringVar(&status, "status", "trial", "Initial status: active or trial")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

func newTenantsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Mark a tenant deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewClient().Do("DELETE", "/tenants/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Printf("Tenant '%s' deleted\n", args[0])
			return nil
		},
	}
}
