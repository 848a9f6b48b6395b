package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thruflo/ralph/internal/fsutil"
)

// ArchiveTimestampFormat names archived files.
const ArchiveTimestampFormat = "20060102_150405"

// archivedLogs are copied into the archive and reset. guardrails.md is
// kept across tasks.
var archivedLogs = []string{ProgressFile, ActivityFile, ErrorsFile}

// Archive moves the task file at taskPath to
// .ralph/completed/RALPH_TASK_<timestamp>.md, copies the progress, activity
// and error logs alongside it with the same timestamp and resets them to
// their initial content. It returns the archived task path, or "" when
// there is no task file.
func (s *Store) Archive(taskPath string) (string, error) {
	if _, err := os.Stat(taskPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat task file: %w", err)
	}

	completed := s.Path(CompletedDir)
	if err := os.MkdirAll(completed, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	ts := s.now().Format(ArchiveTimestampFormat)
	ext := filepath.Ext(taskPath)
	base := strings.TrimSuffix(filepath.Base(taskPath), ext)
	archived := filepath.Join(completed, fmt.Sprintf("%s_%s%s", base, ts, ext))

	if err := os.Rename(taskPath, archived); err != nil {
		return "", fmt.Errorf("failed to archive task file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range archivedLogs {
		data, err := os.ReadFile(s.Path(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return archived, fmt.Errorf("failed to read %s: %w", name, err)
		}

		ext := filepath.Ext(name)
		target := filepath.Join(completed, fmt.Sprintf("%s_%s%s", strings.TrimSuffix(name, ext), ts, ext))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", name, err)
		}
		if err := fsutil.WriteFileAtomic(s.Path(name), []byte(defaultContents[name]), 0o644); err != nil {
			return archived, fmt.Errorf("failed to reset %s: %w", name, err)
		}
	}

	return archived, nil
}

// ListArchived returns archived task files, oldest first.
func (s *Store) ListArchived() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Path(CompletedDir), "RALPH_TASK_*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return matches, nil
}
