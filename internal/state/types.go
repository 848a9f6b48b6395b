package state

import "time"

// File names inside the state directory.
const (
	ProgressFile   = "progress.md"
	GuardrailsFile = "guardrails.md"
	ErrorsFile     = "errors.log"
	ActivityFile   = "activity.log"
	QuestionFile   = "question.md"
	AnswerFile     = "answer.md"
	HistoryFile    = "history.json"
	CompletedDir   = "completed"
)

// Initial content for the state files.
const (
	DefaultProgressContent = "# Progress Log\n\n" +
		"> Updated by the agent after significant work.\n\n" +
		"---\n\n" +
		"## Session History\n\n"

	DefaultGuardrailsContent = "# Ralph Guardrails (Signs)\n\n" +
		"> Lessons learned from past failures. READ THESE BEFORE ACTING.\n\n" +
		"## Core Signs\n\n" +
		"### Sign: Read Before Writing\n" +
		"- **Trigger**: Before modifying any file\n" +
		"- **Instruction**: Always read the existing file first\n" +
		"- **Added after**: Core principle\n\n" +
		"### Sign: Test After Changes\n" +
		"- **Trigger**: After any code change\n" +
		"- **Instruction**: Run tests to verify nothing broke\n" +
		"- **Added after**: Core principle\n\n" +
		"### Sign: Commit Checkpoints\n" +
		"- **Trigger**: Before risky changes\n" +
		"- **Instruction**: Commit current working state first\n" +
		"- **Added after**: Core principle\n\n" +
		"---\n\n" +
		"## Learned Signs\n\n"

	DefaultErrorsContent = "# Error Log\n\n> Failures detected during sessions. Use to update guardrails.\n\n"

	DefaultActivityContent = "# Activity Log\n\n> Session lifecycle, signals and raw agent output.\n\n"
)

// defaultContents maps each state file to its initial content.
var defaultContents = map[string]string{
	ProgressFile:   DefaultProgressContent,
	GuardrailsFile: DefaultGuardrailsContent,
	ErrorsFile:     DefaultErrorsContent,
	ActivityFile:   DefaultActivityContent,
}

// History represents a single iteration record in history.json.
type History struct {
	Iteration     int       `json:"iteration"`
	Provider      string    `json:"provider"`
	Signal        string    `json:"signal"`
	CriteriaDone  int       `json:"criteria_done"`
	CriteriaTotal int       `json:"criteria_total"`
	Tokens        int       `json:"tokens"`
	Verification  bool      `json:"verification,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
