package loop

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/thruflo/ralph/internal/task"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// PromptData is the input to the prompt templates.
type PromptData struct {
	Iteration     int
	MaxIterations int
	Title         string
	TestCommand   string
	Remaining     []string

	// Resumed is set when the iteration continues after a QUESTION.
	Resumed   bool
	HasAnswer bool

	LastVerificationFailed bool
}

func newPromptData(tk *task.Task, iteration, max int) PromptData {
	d := PromptData{
		Iteration:     iteration,
		MaxIterations: max,
		Title:         tk.Title(),
		TestCommand:   tk.TestCommand(),
	}
	for _, c := range tk.Remaining() {
		d.Remaining = append(d.Remaining, c.Text)
	}
	return d
}

// IterationPrompt renders the prompt for a work iteration.
func IterationPrompt(d PromptData) (string, error) {
	return render("iterate.md.tmpl", d)
}

// VerificationPrompt renders the prompt for a verification session.
func VerificationPrompt(d PromptData) (string, error) {
	return render("verify.md.tmpl", d)
}

func render(name string, d PromptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
