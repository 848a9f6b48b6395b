package cli

import (
	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	verbose  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Autonomous agent loop for checklist-driven development",
	Long: `Ralph drives command-line coding agents (cursor, claude, gemini, codex)
against RALPH_TASK.md until every criterion is checked and an independent
agent verifies the work. Context is rotated between providers as it fills
up or when an agent gets stuck; git commits carry the memory.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("ralph version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if verbose {
		level = logging.LevelDebug
	}
	logging.SetLevel(level)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
