// Package task reads and updates RALPH_TASK.md, the task description an
// agent works against: a YAML frontmatter header followed by markdown with
// a checklist of completion criteria.
package task

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/thruflo/ralph/internal/fsutil"
)

// FileName is the task description's name at the project root.
const FileName = "RALPH_TASK.md"

// Header field names and their defaults.
const (
	FieldTask                    = "task"
	FieldCompletionCriteria      = "completion_criteria"
	FieldMaxIterations           = "max_iterations"
	FieldTestCommand             = "test_command"
	FieldMaxVerificationFailures = "max_verification_failures"

	DefaultTitle                   = "Unnamed task"
	DefaultMaxIterations           = 20
	DefaultTestCommand             = "make test"
	DefaultMaxVerificationFailures = 3
)

var fieldDefaults = map[string]interface{}{
	FieldTask:                    DefaultTitle,
	FieldMaxIterations:           DefaultMaxIterations,
	FieldTestCommand:             DefaultTestCommand,
	FieldMaxVerificationFailures: DefaultMaxVerificationFailures,
}

// Header is the typed view of the frontmatter. Zero values mean the field
// was absent.
type Header struct {
	Task                    string   `yaml:"task"`
	CompletionCriteria      []string `yaml:"completion_criteria"`
	MaxIterations           int      `yaml:"max_iterations"`
	TestCommand             string   `yaml:"test_command"`
	MaxVerificationFailures int      `yaml:"max_verification_failures"`
}

// Criterion is one checklist item.
type Criterion struct {
	Index int
	// Line is 1-based.
	Line int
	Text string
	Done bool

	// mark is the byte offset of the character between the brackets.
	mark int
}

// Task is a parsed task description.
type Task struct {
	Path     string
	Header   Header
	Criteria []Criterion

	fields  map[string]interface{}
	content []byte
	body    int
}

// ParseError reports a malformed header or checklist.
type ParseError struct {
	Path string
	// Line is 1-based, 0 when the error is not tied to a line.
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

var (
	checkboxPattern  = regexp.MustCompile(`^\s*(?:[-*]|[0-9]+\.)\s+\[([ xX])\]`)
	malformedPattern = regexp.MustCompile(`^\s*(?:[-*]|[0-9]+\.)\s+\[(\s*|[^\]\sxX])\](?:\s|$)`)
)

// PathIn returns the task description's path inside projectDir.
func PathIn(projectDir string) string {
	return filepath.Join(projectDir, FileName)
}

// Load reads and parses the task description at path.
func Load(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	return Parse(path, data)
}

// Parse parses task description content. path is used for error messages
// and later writes.
func Parse(path string, content []byte) (*Task, error) {
	t := &Task{Path: path, content: content, fields: map[string]interface{}{}}

	if err := t.parseHeader(); err != nil {
		return nil, err
	}
	if err := t.parseChecklist(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) parseHeader() error {
	lines := splitLines(t.content)
	if len(lines) == 0 || string(trimEOL(lines[0].text)) != "---" {
		return nil
	}

	closing := -1
	for i := 1; i < len(lines); i++ {
		if string(trimEOL(lines[i].text)) == "---" {
			closing = i
			break
		}
	}
	if closing < 0 {
		return &ParseError{Path: t.Path, Line: 1, Msg: "frontmatter is not closed with ---"}
	}

	raw := t.content[lines[1].start:lines[closing].start]
	t.body = lines[closing].start + len(lines[closing].text)

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return &ParseError{Path: t.Path, Line: 2, Msg: "invalid frontmatter", Err: err}
	}
	if len(node.Content) == 0 {
		return nil
	}
	if node.Content[0].Kind != yaml.MappingNode {
		return &ParseError{Path: t.Path, Line: 2, Msg: "frontmatter must be a mapping"}
	}
	if err := node.Decode(&t.fields); err != nil {
		return &ParseError{Path: t.Path, Line: 2, Msg: "invalid frontmatter", Err: err}
	}
	if err := node.Decode(&t.Header); err != nil {
		return &ParseError{Path: t.Path, Line: 2, Msg: "invalid frontmatter field", Err: err}
	}

	if t.Header.MaxIterations < 0 {
		return &ParseError{Path: t.Path, Msg: FieldMaxIterations + " must not be negative"}
	}
	if t.Header.MaxVerificationFailures < 0 {
		return &ParseError{Path: t.Path, Msg: FieldMaxVerificationFailures + " must not be negative"}
	}
	if _, ok := t.fields[FieldMaxIterations]; ok && t.Header.MaxIterations == 0 {
		return &ParseError{Path: t.Path, Msg: FieldMaxIterations + " must be positive"}
	}
	if _, ok := t.fields[FieldMaxVerificationFailures]; ok && t.Header.MaxVerificationFailures == 0 {
		return &ParseError{Path: t.Path, Msg: FieldMaxVerificationFailures + " must be positive"}
	}
	return nil
}

func (t *Task) parseChecklist() error {
	t.Criteria = nil
	for n, l := range splitLines(t.content) {
		if l.start < t.body {
			continue
		}
		text := trimEOL(l.text)
		if m := checkboxPattern.FindSubmatchIndex(text); m != nil {
			mark := text[m[2]]
			t.Criteria = append(t.Criteria, Criterion{
				Index: len(t.Criteria),
				Line:  n + 1,
				Text:  string(bytes.TrimSpace(text[m[1]:])),
				Done:  mark == 'x' || mark == 'X',
				mark:  l.start + m[2],
			})
			continue
		}
		if malformedPattern.Match(text) {
			return &ParseError{Path: t.Path, Line: n + 1, Msg: fmt.Sprintf("malformed checklist item %q", string(text))}
		}
	}
	return nil
}

// CountCriteria returns how many checklist items are done and the total.
func (t *Task) CountCriteria() (done, total int) {
	for _, c := range t.Criteria {
		if c.Done {
			done++
		}
	}
	return done, len(t.Criteria)
}

// IsComplete reports whether the checklist is non-empty and fully done.
func (t *Task) IsComplete() bool {
	done, total := t.CountCriteria()
	return total > 0 && done == total
}

// Remaining returns the criteria not yet done.
func (t *Task) Remaining() []Criterion {
	var out []Criterion
	for _, c := range t.Criteria {
		if !c.Done {
			out = append(out, c)
		}
	}
	return out
}

// Content returns the raw document.
func (t *Task) Content() []byte {
	return t.content
}

// Body returns the document after the frontmatter.
func (t *Task) Body() string {
	return string(t.content[t.body:])
}

// SetCriterion marks the index-th checklist item done or not done.
//
// The file is re-read first so edits made since Load are kept; only the
// one marker byte changes and the result is written atomically.
func (t *Task) SetCriterion(index int, done bool) error {
	current, err := Load(t.Path)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(current.Criteria) {
		return fmt.Errorf("criterion %d out of range (%d items)", index, len(current.Criteria))
	}

	c := current.Criteria[index]
	if c.Done != done {
		updated := make([]byte, len(current.content))
		copy(updated, current.content)
		if done {
			updated[c.mark] = 'x'
		} else {
			updated[c.mark] = ' '
		}
		if err := fsutil.WriteFileAtomic(t.Path, updated, 0o644); err != nil {
			return fmt.Errorf("failed to write task file: %w", err)
		}
		current.content = updated
		current.Criteria[index].Done = done
	}

	*t = *current
	return nil
}

// Field returns a frontmatter value, falling back to the documented
// default for optional fields. The second result is false when the field
// is neither present nor defaulted.
func (t *Task) Field(name string) (interface{}, bool) {
	if v, ok := t.fields[name]; ok && v != nil {
		return v, true
	}
	v, ok := fieldDefaults[name]
	return v, ok
}

// Title returns the task title.
func (t *Task) Title() string {
	if t.Header.Task != "" {
		return t.Header.Task
	}
	return DefaultTitle
}

// MaxIterations returns the iteration cap declared by the task.
func (t *Task) MaxIterations() int {
	if t.Header.MaxIterations > 0 {
		return t.Header.MaxIterations
	}
	return DefaultMaxIterations
}

// HasMaxIterations reports whether the task declares its own cap.
func (t *Task) HasMaxIterations() bool {
	return t.Header.MaxIterations > 0
}

// TestCommand returns the command verification re-runs.
func (t *Task) TestCommand() string {
	if t.Header.TestCommand != "" {
		return t.Header.TestCommand
	}
	return DefaultTestCommand
}

// MaxVerificationFailures returns how many failed verifications are
// tolerated before the loop completes with a warning.
func (t *Task) MaxVerificationFailures() int {
	if t.Header.MaxVerificationFailures > 0 {
		return t.Header.MaxVerificationFailures
	}
	return DefaultMaxVerificationFailures
}

type line struct {
	start int
	text  []byte // includes the trailing newline, if any
}

func splitLines(content []byte) []line {
	var out []line
	for start := 0; start < len(content); {
		end := bytes.IndexByte(content[start:], '\n')
		if end < 0 {
			out = append(out, line{start: start, text: content[start:]})
			break
		}
		out = append(out, line{start: start, text: content[start : start+end+1]})
		start += end + 1
	}
	return out
}

func trimEOL(b []byte) []byte {
	return bytes.TrimRight(b, "\r\n")
}
