package provider

import (
	"encoding/json"

	"github.com/thruflo/ralph/internal/signal"
)

// geminiEvent is one line of `gemini --output-format stream-json`.
type geminiEvent struct {
	Type    string          `json:"type"`
	Role    string          `json:"role,omitempty"`
	Content string          `json:"content,omitempty"`
	Delta   bool            `json:"delta,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	Stats   *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"stats,omitempty"`
}

type gemini struct{ base }

func newGemini(opts []Option) *gemini {
	return &gemini{newBase(KindGemini, "gemini", "", opts)}
}

func (g *gemini) Command(workspace, prompt string) Command {
	return g.stdinCommand(workspace, prompt, "--output-format", "stream-json")
}

func (g *gemini) Decode(line []byte) signal.Decoded {
	var ev geminiEvent
	d, ok := decodeJSON(line, &ev)
	if !ok {
		return d
	}
	switch ev.Type {
	case "message":
		if ev.Role == "assistant" {
			d.Text = ev.Content
			d.Partial = ev.Delta
		}
	case "tool_result":
		d.Chars = rawLen(ev.Output)
	case "result":
		if ev.Stats != nil {
			d.Usage = ev.Stats.TotalTokens
		}
	}
	return d
}
