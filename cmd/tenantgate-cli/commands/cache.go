package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage gate caches",
	}

	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var which string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the resolution or validation cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch which {
			case "resolution":
				path = "/tenant-resolution/cache"
			case "validation":
				path = "/tenant-validation/cache"
			default:
				return fmt.Errorf("unknown cache %q, expected resolution or validation", which)
			}

			var result struct {
				Cleared int `json:"cleared"`
			}
			if err := NewClient().Do("DELETE", path, nil, &result); err != nil {
				return err
			}

			fmt.Printf("Cleared %d %s cache entries\n", result.Cleared, which)
			return nil
		},
	}

	cmd.Flags().StringVar(&which, "cache", "resolution", "Which cache to clear: resolution or validation")
	return cmd
}
