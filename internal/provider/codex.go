package provider

import "github.com/thruflo/ralph/internal/signal"

// codexEvent is one line of `codex exec --json`.
type codexEvent struct {
	Type string `json:"type"`
	Item *struct {
		Type             string `json:"type"`
		Text             string `json:"text"`
		Command          string `json:"command"`
		AggregatedOutput string `json:"aggregated_output"`
		ExitCode         *int   `json:"exit_code"`
	} `json:"item,omitempty"`
	Usage *struct {
		InputTokens       int `json:"input_tokens"`
		CachedInputTokens int `json:"cached_input_tokens"`
		OutputTokens      int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

type codex struct{ base }

func newCodex(opts []Option) *codex {
	return &codex{newBase(KindCodex, "codex", "", opts)}
}

func (c *codex) Command(workspace, prompt string) Command {
	return c.stdinCommand(workspace, prompt, "exec", "--json")
}

func (c *codex) Decode(line []byte) signal.Decoded {
	var ev codexEvent
	d, ok := decodeJSON(line, &ev)
	if !ok {
		return d
	}
	switch ev.Type {
	case "item.completed":
		if ev.Item == nil {
			return d
		}
		switch ev.Item.Type {
		case "agent_message":
			d.Text = ev.Item.Text
		case "command_execution":
			d.Chars = len(ev.Item.AggregatedOutput)
			if ev.Item.ExitCode != nil && *ev.Item.ExitCode != 0 {
				d.Failed = ev.Item.Command
			}
		}
	case "turn.completed":
		if ev.Usage != nil {
			d.Usage = ev.Usage.InputTokens + ev.Usage.OutputTokens
		}
	}
	return d
}
