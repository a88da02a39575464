package rag

import (
	"strings"
	"testing"
)

func testRetrievalResult() *RetrievalResult {
	chunks := []RetrievedChunk{
		{DocID: "lft", ChunkID: "art_47", Text: "El patrón podrá rescindir...", Score: 0.9,
			Metadata: map[string]any{"source": "Ley Federal del Trabajo", "jurisdiction": "MX"}},
		{DocID: "scjn", ChunkID: "tesis_12", Text: "La Segunda Sala sostiene...", Score: 0.7},
	}
	return &RetrievalResult{
		Chunks:    chunks,
		Citations: BuildCitations(chunks),
	}
}

func TestAssembleMessagesShape(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: "Pregunta anterior"},
		{Role: "assistant", Content: "Respuesta anterior"},
	}
	msgs := AssembleMessages(history, testRetrievalResult(), "¿Procede la rescisión?")

	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "legal research assistant") {
		t.Fatalf("first message must be the guardrail system prompt: %+v", msgs[0])
	}
	if msgs[1].Role != "system" || !strings.HasPrefix(msgs[1].Content, "CONTEXT:") {
		t.Fatalf("second message must be the context block: %+v", msgs[1])
	}
	if !strings.Contains(msgs[1].Content, "[lft:art_47]") || !strings.Contains(msgs[1].Content, "[scjn:tesis_12]") {
		t.Fatalf("context block missing citation tags:\n%s", msgs[1].Content)
	}
	if !strings.Contains(msgs[1].Content, "Ley Federal del Trabajo") {
		t.Fatalf("context block missing source label:\n%s", msgs[1].Content)
	}
	if msgs[2].Role != "user" || msgs[2].Content != "Pregunta anterior" {
		t.Fatalf("history out of order: %+v", msgs[2])
	}
	if msgs[3].Role != "assistant" {
		t.Fatalf("history out of order: %+v", msgs[3])
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "¿Procede la rescisión?" {
		t.Fatalf("question must be the final message: %+v", last)
	}
}

func TestAssembleMessagesWithoutContext(t *testing.T) {
	msgs := AssembleMessages(nil, nil, "question")
	if len(msgs) != 2 {
		t.Fatalf("expected system + user only, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
}

func TestAssembleMessagesSkipsToolAndSystemHistory(t *testing.T) {
	history := []HistoryMessage{
		{Role: "system", Content: "internal"},
		{Role: "tool", Content: "tool output"},
		{Role: "user", Content: "real question"},
	}
	msgs := AssembleMessages(history, nil, "next question")
	for _, m := range msgs[1 : len(msgs)-1] {
		if m.Role == "tool" || m.Content == "internal" {
			t.Fatalf("tool/system history must not leak into the prompt: %+v", m)
		}
	}
}

func TestLowConfidenceNoteAppended(t *testing.T) {
	res := testRetrievalResult()
	res.LowConfidence = true
	msgs := AssembleMessages(nil, res, "q")
	if !strings.Contains(msgs[1].Content, "confidence is low") {
		t.Fatalf("low-confidence note missing:\n%s", msgs[1].Content)
	}
}

func TestTrimHistoryKeepsMostRecent(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: strings.Repeat("old ", 400)},
		{Role: "user", Content: "recent"},
	}
	kept := trimHistory(history, 10)
	if len(kept) != 1 || kept[0].Content != "recent" {
		t.Fatalf("expected only the recent turn, got %+v", kept)
	}
}
