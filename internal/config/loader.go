package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StateDir is the per-project directory holding ralph state and config.
const StateDir = ".ralph"

// Default values for Config.
const (
	DefaultMaxIterations            = 20
	DefaultTimeoutSeconds           = 300
	DefaultWarnThreshold            = 72000
	DefaultRotateThreshold          = 80000
	DefaultQuestionTimeoutSeconds   = 300
	DefaultMaxQuestionsPerIteration = 3
	DefaultProgressMaxLines         = 2000
	DefaultProgressKeepLines        = 500
	DefaultTokenizer                = "heuristic"
)

// DefaultProviders is the rotation order used when none is configured.
var DefaultProviders = []string{"cursor", "claude", "gemini", "codex"}

// DefaultLimits returns limits with sensible default values.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations:            DefaultMaxIterations,
		TimeoutSeconds:           DefaultTimeoutSeconds,
		WarnThreshold:            DefaultWarnThreshold,
		RotateThreshold:          DefaultRotateThreshold,
		QuestionTimeoutSeconds:   DefaultQuestionTimeoutSeconds,
		MaxQuestionsPerIteration: DefaultMaxQuestionsPerIteration,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Limits:    DefaultLimits(),
		Providers: append([]string(nil), DefaultProviders...),
		Tokenizer: DefaultTokenizer,
		Progress: Progress{
			MaxLines:  DefaultProgressMaxLines,
			KeepLines: DefaultProgressKeepLines,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Path returns the location of config.yaml under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, StateDir, "config.yaml")
}

// LoadConfig reads and parses .ralph/config.yaml from the given base path.
// If the file doesn't exist, returns default config.
// Applies defaults for any missing fields.
func LoadConfig(basePath string) (*Config, error) {
	data, err := os.ReadFile(Path(basePath))
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = append([]string(nil), DefaultProviders...)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Marshal renders cfg as YAML suitable for config.yaml.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	l := cfg.Limits
	if l.MaxIterations <= 0 {
		return ValidationError{Field: "limits.max_iterations", Message: "must be positive"}
	}
	if l.TimeoutSeconds <= 0 {
		return ValidationError{Field: "limits.timeout_seconds", Message: "must be positive"}
	}
	if l.WarnThreshold <= 0 {
		return ValidationError{Field: "limits.warn_threshold", Message: "must be positive"}
	}
	if l.RotateThreshold <= 0 {
		return ValidationError{Field: "limits.rotate_threshold", Message: "must be positive"}
	}
	if l.WarnThreshold > l.RotateThreshold {
		return ValidationError{Field: "limits.warn_threshold", Message: "must not exceed rotate_threshold"}
	}
	if l.QuestionTimeoutSeconds < 0 {
		return ValidationError{Field: "limits.question_timeout_seconds", Message: "must not be negative"}
	}
	if l.MaxQuestionsPerIteration < 0 {
		return ValidationError{Field: "limits.max_questions_per_iteration", Message: "must not be negative"}
	}
	if l.NoProgressThreshold < 0 {
		return ValidationError{Field: "limits.no_progress_threshold", Message: "must not be negative"}
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for _, name := range cfg.Providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return ValidationError{Field: "providers", Message: "contains an empty name"}
		}
		if seen[key] {
			return ValidationError{Field: "providers", Message: fmt.Sprintf("duplicate provider %q", name)}
		}
		seen[key] = true
	}

	if cfg.Progress.MaxLines <= 0 {
		return ValidationError{Field: "progress.max_lines", Message: "must be positive"}
	}
	if cfg.Progress.KeepLines <= 0 || cfg.Progress.KeepLines >= cfg.Progress.MaxLines {
		return ValidationError{Field: "progress.keep_lines", Message: "must be positive and below max_lines"}
	}

	return nil
}

// LoadEnvFile parses .ralph/.env into a map of key-value pairs. The values
// are added to the environment of every agent process. A missing file
// yields an empty map.
func LoadEnvFile(basePath string) (map[string]string, error) {
	envPath := filepath.Join(basePath, StateDir, ".env")

	if _, err := os.Stat(envPath); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to stat env file: %w", err)
	}

	env, err := godotenv.Read(envPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file: %w", err)
	}
	return env, nil
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
