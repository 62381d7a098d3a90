package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three roles the upstream accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// MessageKind marks system messages the relay injected itself. It is stored
// with the message but never sent upstream.
type MessageKind string

const (
	KindPlain MessageKind = ""
	// KindDocument is the system message carrying an uploaded document.
	KindDocument MessageKind = "document"
	// KindNotice is the system message telling the model a document was removed.
	KindNotice MessageKind = "notice"
)

const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

type ImageURL struct {
	Url string `json:"url"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

// ImagePart builds an image_url content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: ContentTypeImageURL, ImageURL: &ImageURL{Url: url}}
}

// Content is either plain text or an ordered list of parts. The variant is
// fixed at construction and decides the wire shape.
type Content struct {
	text       string
	parts      []ContentPart
	multimodal bool
}

func TextContent(text string) Content {
	return Content{text: text}
}

func MultimodalContent(parts ...ContentPart) Content {
	return Content{parts: parts, multimodal: true}
}

func (c Content) IsMultimodal() bool { return c.multimodal }

// Parts returns the content as parts; text content yields a single text part.
func (c Content) Parts() []ContentPart {
	if !c.multimodal {
		return []ContentPart{TextPart(c.text)}
	}
	return c.parts
}

// Text returns the text portion only; images contribute nothing.
func (c Content) Text() string {
	if !c.multimodal {
		return c.text
	}
	var texts []string
	for _, p := range c.parts {
		if p.Type == ContentTypeText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ImageCount counts image_url parts.
func (c Content) ImageCount() int {
	n := 0
	for _, p := range c.parts {
		if p.Type == ContentTypeImageURL {
			n++
		}
	}
	return n
}

func (c Content) MarshalJSON() ([]byte, error) {
	if !c.multimodal {
		return json.Marshal(c.text)
	}
	if c.parts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.parts)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = TextContent("")
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "unmarshal text content")
		}
		*c = TextContent(s)
		return nil
	case data[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return errors.Wrap(err, "unmarshal content parts")
		}
		*c = MultimodalContent(parts...)
		return nil
	default:
		return errors.Errorf("unsupported content encoding %q", string(data[:1]))
	}
}

// Message is one chat turn. Kind is local bookkeeping and is dropped from the wire.
type Message struct {
	Role    Role        `json:"role"`
	Content Content     `json:"content"`
	Kind    MessageKind `json:"-"`
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: TextContent(text)}
}

// NewUserMessage builds the user turn, attaching imageURL as the only image part when set.
func NewUserMessage(text, imageURL string) Message {
	if imageURL == "" {
		return NewTextMessage(RoleUser, text)
	}
	return Message{
		Role:    RoleUser,
		Content: MultimodalContent(TextPart(text), ImagePart(imageURL)),
	}
}

func (m Message) StringContent() string {
	return m.Content.Text()
}
