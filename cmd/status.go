package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfarrar/ytscribe/internal"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health: breaker, proxy, and counters",
	Example: `  # Show pipeline health
  ytscribe status

  # Machine-readable output
  ytscribe status --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := internal.NewApp(config)
		report := app.Status()

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding status: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Circuit breaker: %s", report.Breaker.State)
		if report.Breaker.State == internal.BreakerOpen {
			fmt.Printf(" (retry in %s)", report.Breaker.RetryIn.Round(time.Second))
		}
		fmt.Printf(" [%d consecutive failures]\n", report.Breaker.Failures)

		if report.ProxyConfigured {
			fmt.Printf("Proxy: configured (user %s)\n", report.ProxyUsername)
		} else {
			fmt.Println("Proxy: not configured")
		}

		fmt.Println("Strategies:")
		for _, name := range []string{
			string(internal.SourceCaptionsAPI),
			string(internal.SourceTimedText),
			string(internal.SourceBrowser),
			string(internal.SourceAudioASR),
		} {
			state := "disabled"
			if report.Strategies[name] {
				state = "enabled"
			}
			fmt.Printf("  %-13s %s\n", name, state)
		}

		fmt.Println("Counters:")
		keys := make([]string, 0, len(report.Metrics))
		for k := range report.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s %d\n", k, report.Metrics[k])
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
