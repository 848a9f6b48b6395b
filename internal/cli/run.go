package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/console"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/loop"
	"github.com/thruflo/ralph/internal/telemetry"
)

var (
	runIterations      int
	runWarnThreshold   int
	runRotateThreshold int
	runTimeout         int
	runOnce            bool
	runBranch          string
)

// runLoop executes the loop. It can be overridden in tests.
var runLoop = loop.Run

// ErrIncomplete is returned when the loop stops before the task is done.
var ErrIncomplete = errors.New("task incomplete")

var runCmd = &cobra.Command{
	Use:   "run [project_dir]",
	Short: "Run the agent loop on a project",
	Long: `Runs agents against RALPH_TASK.md in project_dir (default: current
directory) until every criterion is checked and a second provider verifies
the work, or the iteration limit is reached.

Providers are rotated when the context estimate reaches the rotate
threshold, when an agent times out, crashes or reports GUTTER, and when an
agent asks for a fresh context. Limits left unset come from the task header,
then .ralph/config.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runIterations, "iterations", "n", 0, "maximum iterations (default: task header, then config)")
	runCmd.Flags().IntVar(&runWarnThreshold, "warn-threshold", 0, "token estimate at which the agent is warned (default: config)")
	runCmd.Flags().IntVar(&runRotateThreshold, "rotate-threshold", 0, "token estimate at which the provider is rotated (default: config)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "per-session timeout in seconds (default: config)")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single iteration")
	runCmd.Flags().StringVarP(&runBranch, "branch", "b", "", "create or check out this branch before starting")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return err
	}

	con := console.New(cmd.OutOrStdout(), cmd.InOrStdin())

	report, err := loop.Status(dir)
	if err != nil {
		return err
	}
	if !report.TaskFound {
		return fmt.Errorf("no RALPH_TASK.md in %s (run 'ralph init' to create one)", dir)
	}
	printRunSummary(con, report)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "ralph",
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logging.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	res, err := runLoop(ctx, runOptions(dir, cfg, con))
	if err != nil {
		if res != nil && res.Reason == loop.ExitReasonInterrupted {
			con.Warn("Interrupted after %d iteration(s)", res.Iterations)
		}
		return err
	}
	return reportResult(con, res)
}

func runOptions(dir string, cfg *config.Config, con *console.Console) loop.RunOptions {
	return loop.RunOptions{
		ProjectDir:      dir,
		MaxIterations:   runIterations,
		WarnThreshold:   runWarnThreshold,
		RotateThreshold: runRotateThreshold,
		Timeout:         time.Duration(runTimeout) * time.Second,
		Once:            runOnce,
		Branch:          runBranch,
		Config:          cfg,
		Console:         con,
		Logger:          logging.Default(),
	}
}

func printRunSummary(con *console.Console, report *loop.StatusReport) {
	var available []string
	for _, p := range report.Providers {
		if p.Available {
			available = append(available, p.DisplayName)
		}
	}
	providers := "none"
	if len(available) > 0 {
		providers = strings.Join(available, ", ")
	}
	maxIterations := report.MaxIterations
	if runIterations > 0 {
		maxIterations = runIterations
	}

	con.Header("Ralph: %s", report.Title)
	con.Info("Workspace: %s", report.ProjectDir)
	con.Info("Providers: %s", providers)
	con.Info("Max iter:  %d", maxIterations)
	if runBranch != "" {
		con.Info("Branch:    %s", runBranch)
	}
	if runOnce {
		con.Info("Mode:      single iteration")
	}
	con.Info("Progress:  %d / %d criteria complete (%d remaining)", report.Done, report.Total, report.Total-report.Done)
}

func reportResult(con *console.Console, res *loop.Result) error {
	switch res.Reason {
	case loop.ExitReasonVerified:
		con.Success("Task verified after %d iteration(s)", res.Iterations)
		if res.ArchivePath != "" {
			con.Detail("Archived to %s", res.ArchivePath)
		}
	case loop.ExitReasonAlreadyComplete:
	case loop.ExitReasonCompletedWithWarning:
		con.Warn("Checklist complete but verification failed %d time(s); review the work before merging", res.State.VerificationFailures)
	case loop.ExitReasonOnce:
		con.Info("Single iteration complete")
	default:
		return fmt.Errorf("%w after %d iteration(s) (%s)", ErrIncomplete, res.Iterations, res.Reason)
	}
	return nil
}

// projectDir resolves the optional project directory argument.
func projectDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to open project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
