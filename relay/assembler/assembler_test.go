package assembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/tokenizer"
)

var est = tokenizer.Heuristic{}

// turn costs roughly n/4+20 tokens under the heuristic estimator.
func turn(role model.Role, n int) model.Message {
	return model.NewTextMessage(role, strings.Repeat("x", n))
}

func TestAssemblePlainTurn(t *testing.T) {
	history := []model.Message{
		model.NewTextMessage(model.RoleUser, "hi"),
		model.NewTextMessage(model.RoleAssistant, "hello"),
	}
	out := Assemble(Input{History: history, Text: "next", Estimator: est})

	require.Len(t, out.Upstream, 3)
	require.Equal(t, model.RoleUser, out.Upstream[2].Role)
	require.Equal(t, "next", out.Upstream[2].StringContent())
	require.Equal(t, []model.Message{model.NewTextMessage(model.RoleUser, "next")}, out.Pending)
	require.False(t, out.HasImage)
	require.False(t, out.DocumentContext)
	require.False(t, out.DocumentInjected)
	require.Zero(t, out.Stats.Dropped)
}

func TestAssembleAttachesImageToUserTurnOnly(t *testing.T) {
	history := []model.Message{model.NewUserMessage("earlier", "")}
	url := "data:image/jpeg;base64,AAAA"
	out := Assemble(Input{History: history, Text: "what is this", ImageURL: url, Estimator: est})

	last := out.Upstream[len(out.Upstream)-1]
	require.True(t, last.Content.IsMultimodal())
	require.Equal(t, 1, last.Content.ImageCount())
	require.Equal(t, "what is this", last.StringContent())
	require.True(t, out.HasImage)
	require.False(t, out.Upstream[0].Content.IsMultimodal())

	total := 0
	for _, m := range out.Upstream {
		total += m.Content.ImageCount()
	}
	require.Equal(t, 1, total)

	require.Len(t, out.Pending, 1)
	require.False(t, out.Pending[0].Content.IsMultimodal(), "image is not persisted")
}

func TestAssembleInjectsDocumentOnce(t *testing.T) {
	doc := &Document{Filename: "notes.pdf", FileType: "pdf", Content: "page one"}
	out := Assemble(Input{
		History:   []model.Message{model.NewTextMessage(model.RoleUser, "hi")},
		Text:      "summarize",
		Document:  doc,
		Budget:    100000,
		Limited:   true,
		Estimator: est,
	})

	require.True(t, out.DocumentInjected)
	require.True(t, out.DocumentContext)
	require.Len(t, out.Pending, 2)
	require.Equal(t, model.KindDocument, out.Pending[0].Kind)
	require.Equal(t, model.RoleSystem, out.Pending[0].Role)
	require.Contains(t, out.Pending[0].StringContent(), "--- DOCUMENT CONTENT START ---\npage one\n--- DOCUMENT CONTENT END ---")
	require.Contains(t, out.Pending[0].StringContent(), "named 'notes.pdf' (type: pdf)")

	require.Len(t, out.Upstream, 3)
	require.Equal(t, model.KindDocument, out.Upstream[1].Kind)
	require.Equal(t, model.RoleUser, out.Upstream[2].Role)
}

func TestAssembleDocumentCompetesForBudget(t *testing.T) {
	// available = 3000 - 2000 reserved = 1000 tokens
	history := []model.Message{
		turn(model.RoleUser, 1600),      // 420
		turn(model.RoleAssistant, 1600), // 420
	}
	doc := &Document{Filename: "a.txt", FileType: "docx", Content: strings.Repeat("y", 1200)}

	out := Assemble(Input{History: history, Text: "q", Document: doc, Budget: 3000, Limited: true, Estimator: est})
	require.True(t, out.DocumentContext)
	require.Len(t, out.Upstream, 3, "one history message, the document and the user turn")
	require.Equal(t, model.RoleAssistant, out.Upstream[0].Role)
	require.Equal(t, 1, out.Stats.Dropped)
}

func TestAssembleOversizeDocumentIsPersistedButNotSent(t *testing.T) {
	doc := &Document{Filename: "big.pdf", FileType: "pdf", Content: strings.Repeat("z", 20000)}
	out := Assemble(Input{
		History:   []model.Message{turn(model.RoleUser, 40)},
		Text:      "q",
		Document:  doc,
		Budget:    3000,
		Limited:   true,
		Estimator: est,
	})

	require.True(t, out.DocumentInjected)
	require.False(t, out.DocumentContext)
	require.Len(t, out.Upstream, 1)
	require.Equal(t, model.KindDocument, out.Pending[0].Kind)
}

func TestAssembleDocumentFromHistoryDisablesSearch(t *testing.T) {
	history := []model.Message{
		DocumentMessage(Document{Filename: "a.pdf", FileType: "pdf", Content: "c"}),
		model.NewTextMessage(model.RoleUser, "hi"),
	}
	out := Assemble(Input{History: history, Text: "more", Estimator: est})
	require.True(t, out.DocumentContext)
	require.False(t, out.DocumentInjected)

	notice := []model.Message{NoticeMessage()}
	require.False(t, Assemble(Input{History: notice, Text: "x", Estimator: est}).DocumentContext)
}

func TestAssembleDoesNotMutateHistory(t *testing.T) {
	history := make([]model.Message, 2, 8)
	history[0] = model.NewTextMessage(model.RoleUser, "a")
	history[1] = model.NewTextMessage(model.RoleAssistant, "b")
	snapshot := append([]model.Message(nil), history...)

	out := Assemble(Input{History: history, Text: "c", Document: &Document{Content: "d"}, Estimator: est})
	require.Equal(t, snapshot, history)
	require.Len(t, history, 2)
	out.Upstream[0] = model.NewTextMessage(model.RoleUser, "changed")
	require.Equal(t, "a", history[0].StringContent())
}

func TestImageRequestDetection(t *testing.T) {
	require.True(t, IsImageRequest("Please GENERATE IMAGE of a cat"))
	require.True(t, IsImageRequest("tạo logo cho quán"))
	require.False(t, IsImageRequest("describe this image"))

	require.True(t, HasImagePrefix("Gen pic of a dog"))
	require.False(t, HasImagePrefix("please gen pic of a dog"))
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "hello\tworld\nok", Sanitize("  hello\x00\tworld\nok\x07  ", 100))
	require.Equal(t, "héll", Sanitize("héllo", 4))
	require.Equal(t, "", Sanitize(" \x00 ", 10))
	require.Equal(t, "abc", Sanitize("abc", 0))
}
