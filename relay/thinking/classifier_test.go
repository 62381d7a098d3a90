package thinking

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/relay/model"
)

func run(deltas ...string) []model.StreamEvent {
	c := NewClassifier()
	var out []model.StreamEvent
	for _, d := range deltas {
		out = append(out, c.Feed(d)...)
	}
	return append(out, c.Flush()...)
}

// merge concatenates adjacent events of the same kind.
func merge(events []model.StreamEvent) []model.StreamEvent {
	var out []model.StreamEvent
	for _, ev := range events {
		if n := len(out); n > 0 && out[n-1].Kind == ev.Kind {
			out[n-1].Text += ev.Text
			continue
		}
		out = append(out, ev)
	}
	return out
}

func TestClassifierSplitMarkers(t *testing.T) {
	got := run("Hello <th", "ink>reasoning here</thi", "nk> world")
	require.Equal(t, []model.StreamEvent{
		model.ContentEvent("Hello "),
		model.ThinkingEvent("reasoning here"),
		model.ContentEvent(" world"),
	}, got)
}

func TestClassifierCaseInsensitive(t *testing.T) {
	got := merge(run("a<THINK>", "b</Think>c"))
	require.Equal(t, []model.StreamEvent{
		model.ContentEvent("a"),
		model.ThinkingEvent("b"),
		model.ContentEvent("c"),
	}, got)
}

func TestClassifierTrimsOnlyAtBlockBoundaries(t *testing.T) {
	got := merge(run("<think>\n  ", "step one  ", "\n", "step two\n", "</think>\n\nAnswer"))
	require.Equal(t, []model.StreamEvent{
		model.ThinkingEvent("step one  \nstep two"),
		model.ContentEvent("\n\nAnswer"),
	}, got)
}

func TestClassifierUnterminatedBlockFlushesAsThinking(t *testing.T) {
	c := NewClassifier()
	require.Equal(t, []model.StreamEvent{model.ContentEvent("pre ")}, c.Feed("pre <think>partial"[:4]))
	got := append(c.Feed("<think>partial"), c.Flush()...)
	require.Equal(t, []model.StreamEvent{model.ThinkingEvent("partial")}, got)
	require.Equal(t, StateNormal, c.State())

	// a dangling close-marker prefix is ordinary text once the stream ends
	require.Equal(t, []model.StreamEvent{model.ThinkingEvent("x </th")}, merge(run("<think>x </th")))
	require.Equal(t, []model.StreamEvent{model.ContentEvent("a <thi")}, merge(run("a <thi")))
}

func TestClassifierStreamsThinkingIncrementally(t *testing.T) {
	c := NewClassifier()
	c.Feed("<think>")
	require.Equal(t, []model.StreamEvent{model.ThinkingEvent("first")}, c.Feed("first"))
	require.Equal(t, []model.StreamEvent{model.ThinkingEvent(" second")}, c.Feed(" second"))
	require.Equal(t, StateThinking, c.State())
}

func TestClassifierKeepsNonMarkerAngleBrackets(t *testing.T) {
	got := merge(run("if a <b and <", "thinker> then"))
	require.Equal(t, []model.StreamEvent{model.ContentEvent("if a <b and <thinker> then")}, got)
}

var splitCorpus = []string{
	"Hello <think>reasoning here</think> world",
	"<think>\n\nplan\n</think>\nAnswer: 42",
	"a<think>b</think>c<THINK>  d  e  </THINK>f",
	"no markers at all, just < and > and </ think>",
	"<think>never closed  ",
	"x</think>y<think>z",
	"<think></think><think> </think>done",
	"tạo ảnh <think>suy nghĩ</think> xong",
}

func TestClassifierSplitInvariantSingleCut(t *testing.T) {
	for _, text := range splitCorpus {
		want := merge(run(text))
		for cut := 0; cut <= len(text); cut++ {
			require.Equal(t, want, merge(run(text[:cut], text[cut:])), "text %q cut %d", text, cut)
		}
	}
}

func TestClassifierSplitInvariantRandomCuts(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	for _, text := range splitCorpus {
		want := merge(run(text))
		for range 300 {
			var deltas []string
			rest := text
			for rest != "" {
				n := 1 + r.IntN(4)
				if n > len(rest) {
					n = len(rest)
				}
				deltas = append(deltas, rest[:n])
				rest = rest[n:]
			}
			require.Equal(t, want, merge(run(deltas...)), "deltas %q", deltas)
		}
	}
}

func TestClassifierBlockRemoval(t *testing.T) {
	// removing k well formed blocks from the content stream leaves the rest in order
	parts := []string{"alpha ", " beta ", " gamma", ""}
	blocks := []string{"one", "two", "three"}
	var b strings.Builder
	for i, p := range parts {
		b.WriteString(p)
		if i < len(blocks) {
			b.WriteString("<think>" + blocks[i] + "</think>")
		}
	}

	var content, thoughts []string
	for _, ev := range run(b.String()) {
		switch ev.Kind {
		case model.EventContent:
			content = append(content, ev.Text)
		case model.EventThinking:
			thoughts = append(thoughts, ev.Text)
		}
	}
	require.Equal(t, strings.Join(parts, ""), strings.Join(content, ""))
	require.Equal(t, blocks, thoughts)
}

func TestStrip(t *testing.T) {
	require.Equal(t, "Hello  world", Strip("Hello <think>a\nb</think> world"))
	require.Equal(t, "ab", Strip("a<THINK>x</think>b"))
	require.Equal(t, "a<think>open", Strip("a<think>open"))
	require.Equal(t, "12", Strip("<think>x</think>1<think>y</think>2"))
	require.Equal(t, "", Strip(""))
}
