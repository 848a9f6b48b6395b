// Package state manages the .ralph directory: the progress, guardrail,
// error and activity logs the agent reads between iterations, the
// question/answer side channel, iteration history and archival of
// completed tasks.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/fsutil"
)

// Store handles reads and writes under <project>/.ralph.
type Store struct {
	basePath string

	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a new Store with the given base path.
// The base path should be the project root; state lives in .ralph/.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath, now: time.Now}
}

// BasePath returns the project root.
func (s *Store) BasePath() string {
	return s.basePath
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return filepath.Join(s.basePath, config.StateDir)
}

// Path returns the location of a file inside the state directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir(), name)
}

// Init creates the state directory and any missing state files with their
// default content. Existing files are left alone.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	for _, name := range []string{ProgressFile, GuardrailsFile, ErrorsFile, ActivityFile} {
		path := s.Path(name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(defaultContents[name]), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// Exists reports whether the state directory has been initialized.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Dir())
	return err == nil && info.IsDir()
}

// LogProgress appends a timestamped entry to progress.md.
func (s *Store) LogProgress(message string) error {
	ts := s.now().Format("2006-01-02 15:04:05")
	return s.appendFile(ProgressFile, fmt.Sprintf("\n### %s\n%s\n", ts, message))
}

// LogError appends a timestamped line to errors.log.
func (s *Store) LogError(message string) error {
	return s.appendFile(ErrorsFile, s.stamp(message))
}

// LogActivity appends a timestamped line to activity.log.
func (s *Store) LogActivity(message string) error {
	return s.appendFile(ActivityFile, s.stamp(message))
}

// AppendOutput appends raw agent output to activity.log.
func (s *Store) AppendOutput(p []byte) error {
	return s.appendFile(ActivityFile, string(p))
}

func (s *Store) stamp(message string) string {
	return fmt.Sprintf("[%s] %s\n", s.now().Format("15:04:05"), message)
}

func (s *Store) appendFile(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	f, err := os.OpenFile(s.Path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of a state file, or "" if it is missing.
func (s *Store) ReadFile(name string) (string, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

// ReadQuestion returns the agent's pending question from question.md.
// The second result is false when there is no question.
func (s *Store) ReadQuestion() (string, bool, error) {
	q, err := s.ReadFile(QuestionFile)
	if err != nil {
		return "", false, err
	}
	q = strings.TrimSpace(q)
	return q, q != "", nil
}

// WriteAnswer writes the operator's answer to answer.md.
func (s *Store) WriteAnswer(answer string) error {
	if err := fsutil.WriteFileAtomic(s.Path(AnswerFile), []byte(answer), 0o644); err != nil {
		return fmt.Errorf("failed to write answer: %w", err)
	}
	return nil
}

// RemoveAnswer deletes answer.md if present.
func (s *Store) RemoveAnswer() error {
	if err := os.Remove(s.Path(AnswerFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", AnswerFile, err)
	}
	return nil
}

// HasAnswer reports whether answer.md exists.
func (s *Store) HasAnswer() bool {
	_, err := os.Stat(s.Path(AnswerFile))
	return err == nil
}

// ClearExchange removes question.md and answer.md.
func (s *Store) ClearExchange() error {
	for _, name := range []string{QuestionFile, AnswerFile} {
		if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// SaveHistory writes history.json.
func (s *Store) SaveHistory(history []History) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.Path(HistoryFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// LoadHistory reads history.json.
func (s *Store) LoadHistory() ([]History, error) {
	data, err := os.ReadFile(s.Path(HistoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No history file yet
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var history []History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}

	return history, nil
}

// AppendHistory adds a new history entry to history.json.
func (s *Store) AppendHistory(entry History) error {
	history, err := s.LoadHistory()
	if err != nil {
		return err
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	history = append(history, entry)
	return s.SaveHistory(history)
}
