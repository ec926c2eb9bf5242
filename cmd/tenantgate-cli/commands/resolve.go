package commands

import (
	"github.com/spf13/cobra"
)

// NewResolveCmd creates the resolution test command.
func NewResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <host>",
		Short: "Test how a host resolves to a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result map[string]interface{}
			body := map[string]string{"host": args[0]}
			if err := NewClient().Do("POST", "/tenant-resolution/test", body, &result); err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}
