package commands

import (
	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command group.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show gate statistics",
	}

	cmd.AddCommand(newStatsResolutionCmd())
	cmd.AddCommand(newStatsRateLimitCmd())

	return cmd
}

func newStatsResolutionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolution",
		Short: "Show tenant resolution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats map[string]interface{}
			if err := NewClient().Do("GET", "/tenant-resolution/stats", nil, &stats); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func newStatsRateLimitCmd() *cobra.Command {
	var timeframe string

	cmd := &cobra.Command{
		Use:   "rate-limit",
		Short: "Show rate limit violation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/rate-limit/stats"
			if timeframe != "" {
				path += "?timeframe=" + timeframe
			}

			var stats map[string]interface{}
			if err := NewClient().Do("GET", path, nil, &stats); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "", "Aggregation window (e.g. 1h, 24h)")
	return cmd
}
