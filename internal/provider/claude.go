package provider

import (
	"encoding/json"

	"github.com/thruflo/ralph/internal/signal"
)

// Claude Code stream-json event types.
const (
	eventSystem    = "system"
	eventAssistant = "assistant"
	eventUser      = "user"
	eventResult    = "result"
)

// streamEvent is one line of `claude --output-format stream-json`. Cursor's
// agent CLI emits the same envelope plus tool_call events.
type streamEvent struct {
	Type    string         `json:"type"`
	Subtype string         `json:"subtype,omitempty"`
	Message *streamMessage `json:"message,omitempty"`
	Usage   *claudeUsage   `json:"usage,omitempty"`
	Result  string         `json:"result,omitempty"`

	// cursor tool calls
	ToolCall *cursorToolCall `json:"tool_call,omitempty"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
	Usage   *claudeUsage   `json:"usage,omitempty"`
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// contextTokens is the context window occupied after the message.
func (u *claudeUsage) contextTokens() int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.OutputTokens
}

type claude struct{ base }

func newClaude(opts []Option) *claude {
	return &claude{newBase(KindClaude, "claude", "", opts)}
}

func (c *claude) Command(workspace, prompt string) Command {
	// --verbose is required for stream-json in print mode
	return c.stdinCommand(workspace, prompt, "-p", "--output-format", "stream-json", "--verbose")
}

func (c *claude) Decode(line []byte) signal.Decoded {
	var ev streamEvent
	d, ok := decodeJSON(line, &ev)
	if !ok {
		return d
	}
	return decodeStreamEvent(&ev)
}

func decodeStreamEvent(ev *streamEvent) signal.Decoded {
	var d signal.Decoded
	switch ev.Type {
	case eventAssistant:
		if ev.Message == nil {
			return d
		}
		var text []string
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				text = append(text, block.Text)
			case "tool_use":
				d.Chars += len(block.Input)
			}
		}
		d.Text = joinText(text)
		d.Usage = ev.Message.Usage.contextTokens()
	case eventUser:
		if ev.Message == nil {
			return d
		}
		for _, block := range ev.Message.Content {
			if block.Type == "tool_result" {
				d.Chars += rawLen(block.Content)
			}
		}
	case eventResult:
		d.Usage = ev.Usage.contextTokens()
	}
	return d
}
