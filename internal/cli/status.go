package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/console"
	"github.com/thruflo/ralph/internal/loop"
	"github.com/thruflo/ralph/internal/provider"
)

// statusOptions are passed to loop.Status. Tests override provider lookup.
var statusOptions []provider.Option

var statusCmd = &cobra.Command{
	Use:   "status [project_dir]",
	Short: "Show task progress without running the loop",
	Long: `Shows the task title, checklist progress, provider availability and the
most recent iteration for project_dir (default: current directory).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(args)
	if err != nil {
		return err
	}

	report, err := loop.Status(dir, statusOptions...)
	if err != nil {
		return err
	}

	con := console.New(cmd.OutOrStdout(), nil)
	printStatus(con, report)
	if !report.TaskFound {
		return fmt.Errorf("no RALPH_TASK.md in %s", dir)
	}
	return nil
}

func printStatus(con *console.Console, r *loop.StatusReport) {
	if !r.TaskFound {
		con.Warn("No RALPH_TASK.md found in %s", r.ProjectDir)
		con.Detail("Run 'ralph init %s' to create one", r.ProjectDir)
		return
	}

	con.Header("%s", r.Title)
	con.Detail("Path: %s", r.ProjectDir)
	if r.Branch != "" {
		con.Detail("Branch: %s", r.Branch)
	}
	con.Detail("Max iterations: %d", r.MaxIterations)

	pct := 0
	if r.Total > 0 {
		pct = r.Done * 100 / r.Total
	}
	switch {
	case r.Total == 0:
		con.Warn("No criteria defined")
	case r.Done == r.Total:
		con.Success("COMPLETE (%d/%d)", r.Done, r.Total)
	default:
		con.Info("Progress: %d/%d criteria (%d%%), %d remaining", r.Done, r.Total, pct, r.Total-r.Done)
	}
	for _, c := range r.Criteria {
		mark := " "
		if c.Done {
			mark = "x"
		}
		con.Info("  [%s] %s", mark, c.Text)
	}

	con.Header("Providers")
	for _, p := range r.Providers {
		if p.Available {
			con.Success("%s (%s)", p.DisplayName, p.Name)
		} else {
			con.Error("%s (%s not found)", p.DisplayName, p.Name)
		}
	}

	var work int
	for _, h := range r.History {
		if !h.Verification {
			work++
		}
	}
	if n := len(r.History); n > 0 {
		last := r.History[n-1]
		con.Header("History")
		con.Info("%d iteration(s) recorded, %.1f criteria per iteration recently", work, r.Rate)
		con.Info("Last: iteration %d on %s ended with %s (%d/%d, ~%d tokens)",
			last.Iteration, last.Provider, last.Signal, last.CriteriaDone, last.CriteriaTotal, last.Tokens)
	}
	if len(r.Archived) > 0 {
		con.Detail("%d archived task(s); latest %s", len(r.Archived), filepath.Base(r.Archived[len(r.Archived)-1]))
	}
}
