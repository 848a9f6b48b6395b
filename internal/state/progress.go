package state

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thruflo/ralph/internal/fsutil"
)

// progressTokenLimit is the estimated size above which progress.md is
// compressed regardless of its line count. Lines are assumed to average
// 100 bytes and a token 4 bytes.
const progressTokenLimit = 20000

var entryHeading = regexp.MustCompile(`^### \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// CompressProgress trims progress.md when it has more than maxLines lines
// (or is estimated above ~20k tokens). The header and the last keepLines
// lines are kept, separated by a [Compressed] note. It reports whether
// the file was rewritten.
func (s *Store) CompressProgress(maxLines, keepLines int) (bool, error) {
	content, err := s.ReadFile(ProgressFile)
	if err != nil || content == "" {
		return false, err
	}

	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)
	estimated := total * 100 / 4
	if total <= maxLines && estimated <= progressTokenLimit {
		return false, nil
	}

	headerEnd := progressHeaderEnd(lines)

	recent := lines[headerEnd:]
	if keepLines > 0 && total-keepLines > headerEnd {
		recent = lines[total-keepLines:]
	}

	var b strings.Builder
	for _, l := range lines[:headerEnd] {
		b.WriteString(l)
	}
	fmt.Fprintf(&b, "\n### [Compressed] %s\n", s.now().Format("2006-01-02 15:04:05"))
	b.WriteString("> Older entries compressed to reduce file size. Recent entries preserved below.\n\n")
	for _, l := range recent {
		b.WriteString(l)
	}

	if err := fsutil.WriteFileAtomic(s.Path(ProgressFile), []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("failed to write compressed progress: %w", err)
	}
	_ = s.LogActivity(fmt.Sprintf("Compressed progress.md: %d -> %d lines (kept %d recent lines)",
		total, headerEnd+3+len(recent), len(recent)))
	return true, nil
}

// progressHeaderEnd finds the first timestamped entry, falling back to the
// line after a "## ... Session" heading and then to the first ten lines.
func progressHeaderEnd(lines []string) int {
	for i, l := range lines {
		if entryHeading.MatchString(l) {
			return i
		}
	}
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "## ") && strings.Contains(t, "Session") {
			return i + 1
		}
	}
	if len(lines) < 10 {
		return len(lines)
	}
	return 10
}
