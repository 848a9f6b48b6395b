package provider

import (
	"encoding/json"
	"strings"

	"github.com/thruflo/ralph/internal/signal"
)

// decodeJSON unmarshals a stream-json line into v. Lines that are not JSON
// (stderr noise, banners) still count toward the token estimate but are
// never matched for markers.
func decodeJSON(line []byte, v interface{}) (signal.Decoded, bool) {
	if err := json.Unmarshal(line, v); err != nil {
		return signal.Decoded{Chars: len(line)}, false
	}
	return signal.Decoded{}, true
}

// rawLen returns the length of a JSON value's textual content: the string
// itself for JSON strings, the encoded form otherwise.
func rawLen(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return len(s)
	}
	return len(raw)
}

func joinText(parts []string) string {
	return strings.Join(parts, "\n")
}
