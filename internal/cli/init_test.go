package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/task"
)

func runInitIn(t *testing.T, dir string, force bool) (string, error) {
	t.Helper()
	var out bytes.Buffer
	initCmd.SetOut(&out)
	defer initCmd.SetOut(nil)
	initForce = force
	defer func() { initForce = false }()

	err := runInit(initCmd, []string{dir})
	return out.String(), err
}

func TestInitCommand(t *testing.T) {
	tmpDir := t.TempDir()

	out, err := runInitIn(t, tmpDir, false)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized")
	assert.Contains(t, out, "Created RALPH_TASK.md")

	ralphDir := filepath.Join(tmpDir, ".ralph")

	t.Run("creates state files", func(t *testing.T) {
		assertDirExists(t, ralphDir)
		for _, name := range []string{state.ProgressFile, state.GuardrailsFile, state.ErrorsFile, state.ActivityFile} {
			assertFileExists(t, filepath.Join(ralphDir, name))
		}
	})

	t.Run("creates config.yaml with defaults", func(t *testing.T) {
		assertFileExists(t, config.Path(tmpDir))

		cfg, err := config.LoadConfig(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultConfig(), *cfg)
	})

	t.Run("creates .env placeholder and .gitignore", func(t *testing.T) {
		assertFileExists(t, filepath.Join(ralphDir, ".env"))

		content, err := os.ReadFile(filepath.Join(ralphDir, ".gitignore"))
		require.NoError(t, err)
		assert.Contains(t, string(content), ".env")

		env, err := config.LoadEnvFile(tmpDir)
		require.NoError(t, err)
		assert.Empty(t, env)
	})

	t.Run("creates a parseable task template", func(t *testing.T) {
		tk, err := task.Load(task.PathIn(tmpDir))
		require.NoError(t, err)
		done, total := tk.CountCriteria()
		assert.Equal(t, 0, done)
		assert.Equal(t, 3, total)
		assert.Equal(t, "make test", tk.TestCommand())
	})
}

func TestInitCommandKeepsExistingTask(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(task.PathIn(tmpDir), []byte("- [ ] mine\n"), 0644))

	out, err := runInitIn(t, tmpDir, false)
	require.NoError(t, err)
	assert.NotContains(t, out, "Created RALPH_TASK.md")

	content, err := os.ReadFile(task.PathIn(tmpDir))
	require.NoError(t, err)
	assert.Equal(t, "- [ ] mine\n", string(content))
}

func TestInitCommandFailsIfExists(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := runInitIn(t, tmpDir, false)
	require.NoError(t, err)

	_, err = runInitIn(t, tmpDir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitCommandForce(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := runInitIn(t, tmpDir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(config.Path(tmpDir), []byte("limits:\n  max_iterations: 3\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".ralph", state.GuardrailsFile), []byte("kept\n"), 0644))

	out, err := runInitIn(t, tmpDir, true)
	require.NoError(t, err)
	assert.Contains(t, out, "Overwrote")

	cfg, err := config.LoadConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMaxIterations, cfg.Limits.MaxIterations)

	guardrails, err := os.ReadFile(filepath.Join(tmpDir, ".ralph", state.GuardrailsFile))
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(guardrails))
}

func TestInitCommandRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := runInitIn(t, path, false)
	assert.Error(t, err)
}

func assertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err, "directory should exist: %s", path)
	assert.True(t, info.IsDir(), "should be a directory: %s", path)
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err, "file should exist: %s", path)
	assert.False(t, info.IsDir(), "should be a file: %s", path)
}
