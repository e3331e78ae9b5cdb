package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/claude"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/config"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/db"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/gitops"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/githost"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/orchestrator"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/pipeline"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/runstore"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run <issue>...",
	Short: "Run the auto-fix pipeline for one or more issues",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issues := make([]int, 0, len(args))
		for _, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid issue number %q", a)
			}
			issues = append(issues, n)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "[ERROR] %s\n", e)
			}
			return fmt.Errorf("invalid configuration (%d error(s))", len(errs))
		}
		a := &cfg.Autofix

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "==================================================")
		fmt.Fprintln(out, "  STRATO Fix All The Things - Multi-Agent Pipeline")
		fmt.Fprintln(out, "==================================================")

		git := &gitops.ExecGit{}
		workDir, err := workspace.EnsureClone(git, a.ToolCloneDir, a.ProjectDir, a.Repo)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "[INFO] Repository: %s\n", a.Repo)
		fmt.Fprintf(out, "[INFO] Work repo: %s\n", workDir)
		fmt.Fprintf(out, "[INFO] Issues to process: %d\n", len(issues))

		// One lock per tool clone, held for the whole batch.
		lock, err := workspace.AcquireLock(workDir, a.LockTimeoutDuration())
		if err != nil {
			return err
		}
		defer lock.Release()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := os.MkdirAll(a.RunsDir, 0o755); err != nil {
			return fmt.Errorf("create runs dir: %w", err)
		}
		store := runstore.NewStore(a.RunsDir)

		events := openEventLog(cmd, a.RunsDir)
		if events != nil {
			defer events.Close()
		}

		runner := claude.NewRunner(&claude.ExecRunner{}, a.Claude.Bin, a.Claude.MaxRetries, a.Claude.RetryBaseDelayDuration())
		runner.SetProgress(out)

		orch := orchestrator.New(
			a,
			githost.NewClient(&githost.ExecRunner{}, a.Repo),
			gitops.NewRepo(git, workDir),
			store,
			runner,
			eventLogOrNil(events),
			out,
		)

		result := orch.ProcessBatch(ctx, issues)
		if !result.Ok() {
			return fmt.Errorf("%d issue(s) failed", len(result.Failed))
		}
		return nil
	},
}

// openEventLog opens the run event database. Event logging is best effort:
// a broken database is reported and the run continues without it.
func openEventLog(cmd *cobra.Command, runsDir string) *db.DB {
	path, err := db.DefaultPath(runsDir)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "[WARNING] event log unavailable: %v\n", err)
		return nil
	}
	d, err := db.Open(path)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "[WARNING] event log unavailable: %v\n", err)
		return nil
	}
	if err := d.Migrate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "[WARNING] event log migration failed: %v\n", err)
		d.Close()
		return nil
	}
	return d
}

// eventLogOrNil avoids handing the orchestrator a typed nil.
func eventLogOrNil(d *db.DB) pipeline.EventLog {
	if d == nil {
		return nil
	}
	return d
}
