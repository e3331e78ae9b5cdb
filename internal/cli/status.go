package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/runstore"
)

var statusCmd = &cobra.Command{
	Use:   "status [issue]",
	Short: "Show recorded pipeline runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		issue := 0
		if len(args) == 1 {
			issue, err = strconv.Atoi(args[0])
			if err != nil || issue <= 0 {
				return fmt.Errorf("invalid issue number %q", args[0])
			}
		}

		store := runstore.NewStore(cfg.Autofix.RunsDir)
		dirs, err := store.ListRuns(issue)
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		format, _ := cmd.Flags().GetString("format")

		type runInfo struct {
			Issue      int     `json:"issue"`
			Status     string  `json:"status"`
			Agents     string  `json:"agents"`
			Confidence float64 `json:"aggregate_confidence"`
			Dir        string  `json:"run_dir"`
		}

		var infos []runInfo
		for _, dir := range dirs {
			run, err := store.OpenRun(dir)
			if err != nil {
				continue
			}
			info := runInfo{Issue: run.IssueNumber, Status: "running", Dir: dir}
			if snap, err := run.PipelineState(); err == nil {
				if s, ok := snap["status"].(string); ok {
					info.Status = s
				}
				if c, ok := snap["aggregate_confidence"].(float64); ok {
					info.Confidence = c
				}
				if agents, ok := snap["agents_completed"].([]any); ok {
					var names []string
					for _, a := range agents {
						if s, ok := a.(string); ok {
							names = append(names, s)
						}
					}
					info.Agents = strings.Join(names, ",")
				}
			}
			infos = append(infos, info)
		}

		if format == "json" {
			data, _ := json.MarshalIndent(infos, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-8s %-10s %-6s %-40s %s\n", "ISSUE", "STATUS", "CONF", "AGENTS", "RUN DIR")
		for _, info := range infos {
			agents := info.Agents
			if len(agents) > 40 {
				agents = agents[:37] + "..."
			}
			fmt.Fprintf(w, "%-8d %-10s %-6.2f %-40s %s\n", info.Issue, info.Status, info.Confidence, agents, info.Dir)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "table", "output format: table or json")
}
