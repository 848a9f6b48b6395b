package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/console"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/task"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [project_dir]",
	Short: "Initialize .ralph/ and a template RALPH_TASK.md",
	Long: `Creates the .ralph/ directory in project_dir (default: current directory).

This command sets up:
  - config.yaml with operational limits and the provider rotation
  - .env placeholder for variables passed to every agent (gitignored)
  - progress.md, guardrails.md, errors.log and activity.log
  - RALPH_TASK.md from a template, unless one already exists`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(args)
	if err != nil {
		return err
	}
	con := console.New(cmd.OutOrStdout(), nil)

	configPath := config.Path(dir)
	configExists := fileExists(configPath)
	if configExists && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	store := state.NewStore(dir)
	if err := store.Init(); err != nil {
		return err
	}

	if err := writeConfigYAML(configPath); err != nil {
		return err
	}
	if err := writeIfMissing(filepath.Join(store.Dir(), ".env"), envContent); err != nil {
		return err
	}
	if err := writeIfMissing(filepath.Join(store.Dir(), ".gitignore"), gitignoreContent); err != nil {
		return err
	}

	taskPath := task.PathIn(dir)
	createdTask := !fileExists(taskPath)
	if createdTask {
		if err := os.WriteFile(taskPath, []byte(taskTemplate), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", task.FileName, err)
		}
	}

	if configExists {
		con.Success("Overwrote %s", configPath)
	} else {
		con.Success("Initialized %s", store.Dir())
	}
	if createdTask {
		con.Info("Created %s; edit the criteria, then run 'ralph run'", task.FileName)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func writeIfMissing(path, content string) error {
	if fileExists(path) {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeConfigYAML(path string) error {
	content := fmt.Sprintf(`# Ralph configuration

limits:
  # Iterations before giving up (a task's max_iterations takes precedence)
  max_iterations: %d

  # Wall-clock limit for one agent session, in seconds
  timeout_seconds: %d

  # Estimated context tokens at which the agent is warned, and rotated
  warn_threshold: %d
  rotate_threshold: %d

  # How long to wait for an answer when an agent asks a question
  question_timeout_seconds: %d
  max_questions_per_iteration: %d

  # Rotate after this many iterations without a newly checked criterion (0 = off)
  no_progress_threshold: 0

# Rotation order; unavailable providers are skipped
providers: [cursor, claude, gemini, codex]

# "heuristic" or a tiktoken encoding such as cl100k_base
tokenizer: %s

progress:
  max_lines: %d
  keep_lines: %d

telemetry:
  # OTLP/HTTP endpoint for traces, e.g. localhost:4318 (empty disables)
  endpoint: ""
  insecure: false
`,
		config.DefaultMaxIterations,
		config.DefaultTimeoutSeconds,
		config.DefaultWarnThreshold,
		config.DefaultRotateThreshold,
		config.DefaultQuestionTimeoutSeconds,
		config.DefaultMaxQuestionsPerIteration,
		config.DefaultTokenizer,
		config.DefaultProgressMaxLines,
		config.DefaultProgressKeepLines,
	)
	return os.WriteFile(path, []byte(content), 0644)
}

const envContent = `# Variables added to every agent's environment (gitignored)
# ANTHROPIC_API_KEY=...
# OPENAI_API_KEY=...
`

const gitignoreContent = `# Credentials
.env
`

const taskTemplate = `---
task: Describe the task in one line
test_command: "make test"
max_iterations: 20
---

# Task

Describe what should be built, with any constraints the agents must respect.

## Success criteria

- [ ] First criterion
- [ ] Second criterion
- [ ] Tests pass
`
