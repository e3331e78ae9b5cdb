package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/db"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/runstore"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize recorded run metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		store := runstore.NewStore(cfg.Autofix.RunsDir)
		all, err := store.ReadMetrics()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No metrics recorded.")
			return nil
		}

		counts := map[string]int{}
		var confSum float64
		var confN int
		var durSum float64
		for _, m := range all {
			counts[m.Status]++
			if m.Status == "success" {
				confSum += m.AggregateConfidence
				confN++
			}
			durSum += m.DurationSeconds
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Runs: %d\n", len(all))
		for _, status := range []string{"success", "skipped", "blocked", "failed"} {
			if n := counts[status]; n > 0 {
				fmt.Fprintf(w, "  %-8s %d\n", status, n)
			}
		}
		if confN > 0 {
			fmt.Fprintf(w, "Mean confidence (successful runs): %.2f\n", confSum/float64(confN))
		}
		fmt.Fprintf(w, "Mean duration: %.1fs\n", durSum/float64(len(all)))

		// Cost comes from the event database when available.
		if path, err := db.DefaultPath(cfg.Autofix.RunsDir); err == nil {
			if d, err := db.Open(path); err == nil {
				defer d.Close()
				if cost, err := d.TotalCost(); err == nil && cost > 0 {
					fmt.Fprintf(w, "Total agent cost: $%.2f\n", cost)
				}
			}
		}
		return nil
	},
}
