// Package thinking splits streamed model output into visible content and
// <think>...</think> reasoning, independent of how the upstream chunks it.
package thinking

import (
	"strings"
	"unicode"

	"github.com/one-chat/one-chat/relay/model"
)

const (
	OpenTag  = "<think>"
	CloseTag = "</think>"
)

type State int

const (
	StateNormal State = iota
	StateThinking
)

func (s State) String() string {
	if s == StateThinking {
		return "thinking"
	}
	return "normal"
}

// Classifier is a per-stream state machine; it is not safe for concurrent use.
//
// Only text that could still turn into the awaited marker is held back.
// Inside a block, whitespace right after <think> is dropped and trailing
// whitespace is held until the next non-space text shows it is interior.
type Classifier struct {
	state State
	buf   string
	// fresh is true until the current block has emitted any text.
	fresh bool
}

func NewClassifier() *Classifier {
	return &Classifier{}
}

func (c *Classifier) State() State { return c.state }

// Feed consumes one delta and returns the events that are now unambiguous.
func (c *Classifier) Feed(delta string) []model.StreamEvent {
	if delta == "" {
		return nil
	}
	c.buf += delta

	var out []model.StreamEvent
	for {
		switch c.state {
		case StateNormal:
			if idx := indexFold(c.buf, OpenTag); idx >= 0 {
				out = appendEvent(out, model.EventContent, c.buf[:idx])
				c.buf = c.buf[idx+len(OpenTag):]
				c.state = StateThinking
				c.fresh = true
				continue
			}
			hold := partialSuffix(c.buf, OpenTag)
			out = appendEvent(out, model.EventContent, c.buf[:len(c.buf)-hold])
			c.buf = c.buf[len(c.buf)-hold:]
			return out

		case StateThinking:
			if c.fresh {
				c.buf = strings.TrimLeftFunc(c.buf, unicode.IsSpace)
			}
			if idx := indexFold(c.buf, CloseTag); idx >= 0 {
				out = appendEvent(out, model.EventThinking, strings.TrimRightFunc(c.buf[:idx], unicode.IsSpace))
				c.buf = c.buf[idx+len(CloseTag):]
				c.state = StateNormal
				c.fresh = false
				continue
			}
			hold := partialSuffix(c.buf, CloseTag)
			ready := c.buf[:len(c.buf)-hold]
			text := strings.TrimRightFunc(ready, unicode.IsSpace)
			if text != "" {
				out = appendEvent(out, model.EventThinking, text)
				c.fresh = false
			}
			c.buf = c.buf[len(text):]
			return out
		}
	}
}

// Flush emits whatever is buffered, tagged by the current state, and resets
// the classifier. An unterminated block ends as thinking.
func (c *Classifier) Flush() []model.StreamEvent {
	var out []model.StreamEvent
	switch c.state {
	case StateNormal:
		out = appendEvent(out, model.EventContent, c.buf)
	case StateThinking:
		rest := strings.TrimRightFunc(c.buf, unicode.IsSpace)
		if c.fresh {
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		}
		out = appendEvent(out, model.EventThinking, rest)
	}
	c.state, c.buf, c.fresh = StateNormal, "", false
	return out
}

// Strip removes complete <think>...</think> spans for non-streaming responses.
// An unterminated open tag is left untouched.
func Strip(text string) string {
	var b strings.Builder
	for {
		open := indexFold(text, OpenTag)
		if open < 0 {
			break
		}
		closeIdx := indexFold(text[open+len(OpenTag):], CloseTag)
		if closeIdx < 0 {
			break
		}
		b.WriteString(text[:open])
		text = text[open+len(OpenTag)+closeIdx+len(CloseTag):]
	}
	b.WriteString(text)
	return b.String()
}

func appendEvent(out []model.StreamEvent, kind model.EventKind, text string) []model.StreamEvent {
	if text == "" {
		return out
	}
	return append(out, model.StreamEvent{Kind: kind, Text: text})
}

// indexFold is strings.Index with ASCII case folding. Markers are ASCII, so
// byte offsets in s stay valid.
func indexFold(s, marker string) int {
	n := len(marker)
	for i := 0; i+n <= len(s); i++ {
		if equalFoldASCII(s[i:i+n], marker) {
			return i
		}
	}
	return -1
}

// partialSuffix returns the length of the longest proper suffix of s that is
// a prefix of marker.
func partialSuffix(s, marker string) int {
	for k := min(len(s), len(marker)-1); k > 0; k-- {
		if equalFoldASCII(s[len(s)-k:], marker[:k]) {
			return k
		}
	}
	return 0
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
