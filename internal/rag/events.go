package rag

import "github.com/google/uuid"

type EventKind string

const (
	EventToken    EventKind = "token"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Complete is the payload of the single successful terminal event.
type Complete struct {
	MessageID     uuid.UUID  `json:"message_id"`
	Content       string     `json:"content"`
	Citations     []Citation `json:"citations"`
	LowConfidence bool       `json:"low_confidence"`
	InputTokens   int        `json:"input_tokens,omitempty"`
	OutputTokens  int        `json:"output_tokens,omitempty"`
}

// StreamEvent is the orchestrator's only output. A turn yields zero or
// more token events followed by exactly one terminal event: either
// Complete or Error is set, never both, and never alongside Token.
type StreamEvent struct {
	Kind     EventKind `json:"type"`
	Token    string    `json:"token,omitempty"`
	Complete *Complete `json:"complete,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func tokenEvent(delta string) StreamEvent {
	return StreamEvent{Kind: EventToken, Token: delta}
}

func completeEvent(c Complete) StreamEvent {
	return StreamEvent{Kind: EventComplete, Complete: &c}
}

func errorEvent(safeMessage string) StreamEvent {
	return StreamEvent{Kind: EventError, Error: safeMessage}
}
