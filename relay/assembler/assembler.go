// Package assembler builds the message list sent upstream for one chat turn.
package assembler

import (
	"fmt"
	"slices"

	"github.com/one-chat/one-chat/relay/contextwindow"
	"github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/tokenizer"
)

// DocumentRemovedNotice is appended as a system message when a user clears their document.
const DocumentRemovedNotice = "The previously uploaded document has been removed. " +
	"Ignore it for future answers, but keep prior conversation context."

// Document is the user's uploaded document awaiting injection.
type Document struct {
	Filename string
	FileType string
	Content  string
}

// DocumentSystemText frames doc as the system message stored in history.
func DocumentSystemText(doc Document) string {
	return fmt.Sprintf("The user has uploaded a document named '%s' (type: %s). "+
		"Here is its content for reference. Use it to answer future questions "+
		"until the user uploads a new document or asks to ignore it.\n\n"+
		"--- DOCUMENT CONTENT START ---\n%s\n--- DOCUMENT CONTENT END ---",
		doc.Filename, doc.FileType, doc.Content)
}

// DocumentMessage is the system message carrying doc.
func DocumentMessage(doc Document) model.Message {
	m := model.NewTextMessage(model.RoleSystem, DocumentSystemText(doc))
	m.Kind = model.KindDocument
	return m
}

// NoticeMessage is the system message recorded when a document is removed.
func NoticeMessage() model.Message {
	m := model.NewTextMessage(model.RoleSystem, DocumentRemovedNotice)
	m.Kind = model.KindNotice
	return m
}

type Input struct {
	// History is the stored conversation; it is never modified.
	History []model.Message
	Text    string
	// ImageURL is a data URI attached to the user turn, if any.
	ImageURL string
	// Document is set only when the user's document has not yet been
	// injected into this conversation.
	Document *Document

	Budget    int
	Limited   bool
	Estimator tokenizer.Estimator
}

type Output struct {
	// Upstream always ends with the user turn.
	Upstream []model.Message
	// Pending are the messages to append to history once the turn completes,
	// in order. The user turn is stored as text only.
	Pending []model.Message

	DocumentInjected bool
	// DocumentContext is true when a document message is part of Upstream.
	DocumentContext bool
	HasImage        bool
	Stats           contextwindow.Stats
}

// Assemble limits history, folds in the pending document and appends the user turn.
// The limit runs again after injection so the document competes with history
// for the same budget.
func Assemble(in Input) Output {
	est := in.Estimator
	if est == nil {
		est = tokenizer.Default()
	}

	var out Output
	window, stats := contextwindow.Apply(in.History, in.Budget, in.Limited, est)

	if in.Document != nil {
		docMsg := DocumentMessage(*in.Document)
		out.Pending = append(out.Pending, docMsg)
		out.DocumentInjected = true

		window, stats = contextwindow.Apply(append(window, docMsg), in.Budget, in.Limited, est)
	}

	out.DocumentContext = slices.ContainsFunc(window, func(m model.Message) bool {
		return m.Kind == model.KindDocument
	})
	out.Stats = stats
	out.Stats.Dropped = len(in.History) + len(out.Pending) - stats.Kept

	out.Upstream = append(window, model.NewUserMessage(in.Text, in.ImageURL))
	out.HasImage = in.ImageURL != ""
	out.Pending = append(out.Pending, model.NewTextMessage(model.RoleUser, in.Text))
	return out
}
