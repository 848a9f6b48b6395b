package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStateFile(t *testing.T, basePath, name, content string) {
	t.Helper()
	dir := filepath.Join(basePath, StateDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
	assert.Equal(t, DefaultWarnThreshold, cfg.Limits.WarnThreshold)
	assert.Equal(t, DefaultRotateThreshold, cfg.Limits.RotateThreshold)
	assert.Equal(t, 300*time.Second, cfg.Limits.Timeout())
	assert.Equal(t, 0, cfg.Limits.NoProgressThreshold)
	assert.Equal(t, DefaultProviders, cfg.Providers)
	assert.Equal(t, DefaultTokenizer, cfg.Tokenizer)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeStateFile(t, tmpDir, "config.yaml", `limits:
  max_iterations: 7
  timeout_seconds: 60
  warn_threshold: 1000
  rotate_threshold: 2000
  question_timeout_seconds: 5
  no_progress_threshold: 4
providers: [claude, codex]
tokenizer: cl100k_base
telemetry:
  endpoint: localhost:4318
  insecure: true
`)

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Limits.MaxIterations)
	assert.Equal(t, time.Minute, cfg.Limits.Timeout())
	assert.Equal(t, 5*time.Second, cfg.Limits.QuestionTimeout())
	assert.Equal(t, 4, cfg.Limits.NoProgressThreshold)
	assert.Equal(t, []string{"claude", "codex"}, cfg.Providers)
	assert.Equal(t, "cl100k_base", cfg.Tokenizer)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	// untouched sections keep defaults
	assert.Equal(t, DefaultProgressMaxLines, cfg.Progress.MaxLines)
	assert.Equal(t, DefaultMaxQuestionsPerIteration, cfg.Limits.MaxQuestionsPerIteration)
}

func TestLoadConfig_EmptyProvidersFallsBack(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeStateFile(t, tmpDir, "config.yaml", "providers: []\n")

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, DefaultProviders, cfg.Providers)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeStateFile(t, tmpDir, "config.yaml", `limits: [`)

	_, err := LoadConfig(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"zero max_iterations", "limits:\n  max_iterations: 0\n", "limits.max_iterations"},
		{"zero timeout", "limits:\n  timeout_seconds: 0\n", "limits.timeout_seconds"},
		{"warn above rotate", "limits:\n  warn_threshold: 90000\n", "limits.warn_threshold"},
		{"negative question timeout", "limits:\n  question_timeout_seconds: -1\n", "limits.question_timeout_seconds"},
		{"negative no progress", "limits:\n  no_progress_threshold: -2\n", "limits.no_progress_threshold"},
		{"duplicate provider", "providers: [claude, Claude]\n", "providers"},
		{"blank provider", "providers: [claude, \"\"]\n", "providers"},
		{"keep above max", "progress:\n  max_lines: 10\n  keep_lines: 20\n", "progress.keep_lines"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmpDir := t.TempDir()
			writeStateFile(t, tmpDir, "config.yaml", tt.content)

			_, err := LoadConfig(tmpDir)
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Providers = []string{"gemini"}

	data, err := Marshal(cfg)
	require.NoError(t, err)
	writeStateFile(t, tmpDir, "config.yaml", string(data))

	loaded, err := LoadConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestLoadEnvFile_Valid(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeStateFile(t, tmpDir, ".env", `# agent credentials
ANTHROPIC_API_KEY=sk-test
export GEMINI_API_KEY="quoted value"
EMPTY=
WITH_EQUALS=a=b
`)

	env, err := LoadEnvFile(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", env["ANTHROPIC_API_KEY"])
	assert.Equal(t, "quoted value", env["GEMINI_API_KEY"])
	assert.Equal(t, "", env["EMPTY"])
	assert.Equal(t, "a=b", env["WITH_EQUALS"])
	assert.Len(t, env, 4)
}

func TestLoadEnvFile_NotFound(t *testing.T) {
	t.Parallel()

	env, err := LoadEnvFile(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "limits.max_iterations", Message: "must be positive"}
	assert.Equal(t, "validation error: limits.max_iterations: must be positive", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(ValidationError{Field: "x", Message: "y"}))
	assert.False(t, IsValidationError(errors.New("other")))
	assert.False(t, IsValidationError(nil))
}
