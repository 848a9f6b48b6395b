package provider

import "github.com/thruflo/ralph/internal/signal"

// Cursor's agent CLI reports completed tool calls as separate events.
type cursorToolCall struct {
	Read *struct {
		Args struct {
			Path string `json:"path"`
		} `json:"args"`
		Result struct {
			Success *struct {
				TotalLines  int `json:"totalLines"`
				ContentSize int `json:"contentSize"`
			} `json:"success"`
		} `json:"result"`
	} `json:"readToolCall,omitempty"`

	Write *struct {
		Args struct {
			Path string `json:"path"`
		} `json:"args"`
		Result struct {
			Success *struct {
				LinesCreated int `json:"linesCreated"`
				FileSize     int `json:"fileSize"`
			} `json:"success"`
		} `json:"result"`
	} `json:"writeToolCall,omitempty"`

	Shell *struct {
		Args struct {
			Command string `json:"command"`
		} `json:"args"`
		Result struct {
			ExitCode int    `json:"exitCode"`
			Stdout   string `json:"stdout"`
			Stderr   string `json:"stderr"`
		} `json:"result"`
	} `json:"shellToolCall,omitempty"`
}

// approxLineBytes sizes a read when the CLI reports only a line count.
const approxLineBytes = 100

type cursor struct{ base }

func newCursor(opts []Option) *cursor {
	return &cursor{newBase(KindCursor, "agent", "cursor", opts)}
}

func (c *cursor) Command(workspace, prompt string) Command {
	return c.stdinCommand(workspace, prompt,
		"-p", "--force", "--output-format", "stream-json", "--directory", workspace)
}

func (c *cursor) Decode(line []byte) signal.Decoded {
	var ev streamEvent
	d, ok := decodeJSON(line, &ev)
	if !ok {
		return d
	}
	if ev.Type != "tool_call" {
		return decodeStreamEvent(&ev)
	}
	if ev.Subtype != "completed" || ev.ToolCall == nil {
		return d
	}

	tc := ev.ToolCall
	if tc.Read != nil && tc.Read.Result.Success != nil {
		s := tc.Read.Result.Success
		if s.ContentSize > 0 {
			d.Chars += s.ContentSize
		} else {
			d.Chars += s.TotalLines * approxLineBytes
		}
	}
	if tc.Write != nil && tc.Write.Result.Success != nil {
		d.Chars += tc.Write.Result.Success.FileSize
		d.Wrote = tc.Write.Args.Path
	}
	if tc.Shell != nil {
		r := tc.Shell.Result
		d.Chars += len(r.Stdout) + len(r.Stderr)
		if r.ExitCode != 0 {
			d.Failed = tc.Shell.Args.Command
		}
	}
	return d
}
