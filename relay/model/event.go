package model

// EventKind classifies a segment of streamed output.
type EventKind string

const (
	EventContent  EventKind = "content"
	EventThinking EventKind = "thinking"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// StreamEvent is one unit of output delivered to the client, in order.
type StreamEvent struct {
	Kind EventKind
	Text string
}

func ContentEvent(text string) StreamEvent  { return StreamEvent{Kind: EventContent, Text: text} }
func ThinkingEvent(text string) StreamEvent { return StreamEvent{Kind: EventThinking, Text: text} }
