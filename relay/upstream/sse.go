package upstream

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DataPrefix = "data: "
	Done       = "[DONE]"

	maxLineSize = 1024 * 1024
)

// NormalizeDataLine accepts both "data:x" and "data: x".
func NormalizeDataLine(line string) string {
	if strings.HasPrefix(line, "data:") {
		return DataPrefix + strings.TrimLeft(line[len("data:"):], " ")
	}
	return line
}

type chunk struct {
	delta    string
	errorMsg string
}

// parseChunk extracts the first choice delta from one SSE payload.
// ok is false for payloads that are not JSON objects.
func parseChunk(payload string) (chunk, bool) {
	if !gjson.Valid(payload) {
		return chunk{}, false
	}
	res := gjson.Parse(payload)
	if !res.IsObject() {
		return chunk{}, false
	}

	fields := res.GetMany("choices.0.delta.content", "error.message")
	return chunk{
		delta:    fields[0].String(),
		errorMsg: fields[1].String(),
	}, true
}
