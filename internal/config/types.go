package config

import "time"

// Limits defines operational boundaries for a ralph run.
type Limits struct {
	MaxIterations            int `yaml:"max_iterations"`
	TimeoutSeconds           int `yaml:"timeout_seconds"`
	WarnThreshold            int `yaml:"warn_threshold"`
	RotateThreshold          int `yaml:"rotate_threshold"`
	QuestionTimeoutSeconds   int `yaml:"question_timeout_seconds"`
	MaxQuestionsPerIteration int `yaml:"max_questions_per_iteration"`
	// NoProgressThreshold is the number of iterations without a newly
	// checked criterion before a stall is reported. Zero disables it.
	NoProgressThreshold int `yaml:"no_progress_threshold"`
}

// Timeout returns the per-session wall-clock limit.
func (l Limits) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// QuestionTimeout returns how long a QUESTION pause waits for an answer.
func (l Limits) QuestionTimeout() time.Duration {
	return time.Duration(l.QuestionTimeoutSeconds) * time.Second
}

// Progress controls compression of the progress log.
type Progress struct {
	MaxLines  int `yaml:"max_lines"`
	KeepLines int `yaml:"keep_lines"`
}

// Telemetry configures OTLP trace export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Config represents the .ralph/config.yaml file.
type Config struct {
	Limits    Limits    `yaml:"limits"`
	Providers []string  `yaml:"providers"`
	Tokenizer string    `yaml:"tokenizer"`
	Progress  Progress  `yaml:"progress"`
	Telemetry Telemetry `yaml:"telemetry"`
}
