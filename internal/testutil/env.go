package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/task"
)

// SetupTestDir creates a temporary project with an initialized .ralph
// directory and a config.yaml with short test limits. Returns the project
// path and a Store. The directory is cleaned up when the test completes.
func SetupTestDir(t *testing.T) (string, *state.Store) {
	t.Helper()

	tmpDir := t.TempDir()
	store := state.NewStore(tmpDir)
	require.NoError(t, store.Init())

	configContent := `limits:
  max_iterations: 10
  timeout_seconds: 30
  warn_threshold: 7000
  rotate_threshold: 8000
  question_timeout_seconds: 1
providers: [claude, codex]
`
	WriteTestFile(t, tmpDir, filepath.Join(".ralph", "config.yaml"), []byte(configContent))

	return tmpDir, store
}

// WriteTaskFile writes content as RALPH_TASK.md in projectDir and returns
// its path.
func WriteTaskFile(t *testing.T, projectDir, content string) string {
	t.Helper()
	path := task.PathIn(projectDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// FindProjectRoot walks up from the current directory to the directory
// holding go.mod.
func FindProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above working directory")
		}
		dir = parent
	}
}

// MustMarshalJSON marshals a value to JSON, failing the test on error.
// Uses indented format for readability.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	return data
}

// MustUnmarshalJSON unmarshals JSON data into v, failing the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

// WriteTestFile writes content to a file in the test directory.
// Creates parent directories as needed.
func WriteTestFile(t *testing.T, basePath, relativePath string, content []byte) {
	t.Helper()
	fullPath := filepath.Join(basePath, relativePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, content, 0o644))
}
