package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/amparolegal/amparo-backend/internal/platform/openai"
)

type fakeAI struct {
	deltas []string
	text   string
	usage  openai.Usage
	err    error
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeAI) StreamChat(ctx context.Context, messages []openai.Message, onDelta func(string)) (openai.StreamResult, error) {
	if f.err != nil {
		return openai.StreamResult{}, f.err
	}
	for _, d := range f.deltas {
		if onDelta != nil {
			onDelta(d)
		}
	}
	return openai.StreamResult{Text: f.text, Usage: f.usage}, nil
}

// disconnectingAI simulates a client that drops mid-stream: one delta
// lands, then the request context is cancelled under the stream.
type disconnectingAI struct {
	fakeAI
	cancel context.CancelFunc
}

func (d *disconnectingAI) StreamChat(ctx context.Context, messages []openai.Message, onDelta func(string)) (openai.StreamResult, error) {
	if onDelta != nil {
		onDelta("El despido")
	}
	d.cancel()
	<-ctx.Done()
	return openai.StreamResult{}, ctx.Err()
}

type fakeRetriever struct {
	res *RetrievalResult
	err error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, filters map[string]any, topK int) (*RetrievalResult, error) {
	return f.res, f.err
}

type storedMessage struct {
	Role    string
	Content string
}

type fakeStore struct {
	mu              sync.Mutex
	messages        []storedMessage
	retrievalEvents int
	failRole        string
	failRetrieval   bool
}

func (s *fakeStore) AppendMessage(ctx context.Context, conversationID, userID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error) {
	if role == s.failRole {
		return uuid.Nil, errors.New("db down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, storedMessage{Role: role, Content: content})
	return uuid.New(), nil
}

func (s *fakeStore) AppendRetrievalEvent(ctx context.Context, conversationID, userID uuid.UUID, query, queryType string, results *RetrievalResult) error {
	if s.failRetrieval {
		return errors.New("db down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrievalEvents++
	return nil
}

func (s *fakeStore) roles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Role)
	}
	return out
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) AppendEvent(ctx context.Context, conversationID, userID *uuid.UUID, eventType string, payload map[string]any) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return uuid.New(), nil
}

func (f *fakeAudit) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestOrchestrator(t *testing.T, ai openai.Client, r Retriever, s ConversationStore, a AuditSink) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(testLogger(t), ai, r, s, a)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// checkEventInvariant enforces the stream contract: zero or more token
// events, then exactly one terminal event, then nothing.
func checkEventInvariant(t *testing.T, events []StreamEvent) StreamEvent {
	t.Helper()
	if len(events) == 0 {
		t.Fatalf("turn emitted no events")
	}
	for i, ev := range events[:len(events)-1] {
		if ev.Kind != EventToken {
			t.Fatalf("event %d is %s before the terminal event", i, ev.Kind)
		}
	}
	last := events[len(events)-1]
	if last.Kind != EventComplete && last.Kind != EventError {
		t.Fatalf("final event %s is not terminal", last.Kind)
	}
	return last
}

func turnInput() TurnInput {
	return TurnInput{
		ConversationID: uuid.New(),
		UserID:         uuid.New(),
		UserText:       "¿Qué es el despido indirecto?",
		TopK:           2,
	}
}

func TestHandleTurnSuccess(t *testing.T) {
	ai := &fakeAI{
		deltas: []string{"El despido", " indirecto", " es..."},
		text:   "El despido indirecto es...",
		usage:  openai.Usage{InputTokens: 120, OutputTokens: 30},
	}
	store := &fakeStore{}
	audit := &fakeAudit{}
	o := newTestOrchestrator(t, ai, &fakeRetriever{res: testRetrievalResult()}, store, audit)

	events := collect(t, o.HandleTurn(context.Background(), turnInput()))
	last := checkEventInvariant(t, events)

	if last.Kind != EventComplete {
		t.Fatalf("expected complete, got %s (%q)", last.Kind, last.Error)
	}
	if got := len(events) - 1; got != 3 {
		t.Fatalf("expected 3 token events, got %d", got)
	}
	if last.Complete.Content != "El despido indirecto es..." {
		t.Fatalf("unexpected content %q", last.Complete.Content)
	}
	if len(last.Complete.Citations) != 2 {
		t.Fatalf("citations missing from complete event: %+v", last.Complete)
	}
	if last.Complete.MessageID == uuid.Nil {
		t.Fatalf("complete event must carry the assistant message id")
	}

	roles := store.roles()
	if len(roles) != 2 || roles[0] != "user" || roles[1] != "assistant" {
		t.Fatalf("expected user then assistant appended, got %v", roles)
	}
	if store.retrievalEvents != 1 {
		t.Fatalf("retrieval event not recorded")
	}
	found := false
	for _, e := range audit.types() {
		if e == "turn_completed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("turn_completed audit event missing: %v", audit.types())
	}
}

func TestHandleTurnRetrievalFailure(t *testing.T) {
	store := &fakeStore{}
	audit := &fakeAudit{}
	retriever := &fakeRetriever{err: &RetrievalError{Stage: "search", Err: errors.New("index down")}}
	o := newTestOrchestrator(t, &fakeAI{text: "unused"}, retriever, store, audit)

	events := collect(t, o.HandleTurn(context.Background(), turnInput()))
	last := checkEventInvariant(t, events)

	if last.Kind != EventError {
		t.Fatalf("expected error event, got %s", last.Kind)
	}
	if last.Error == "" || last.Error != "We could not search the legal corpus right now. Please try again." {
		t.Fatalf("unexpected safe message %q", last.Error)
	}
	roles := store.roles()
	if len(roles) != 1 || roles[0] != "user" {
		t.Fatalf("only the user message may persist on failure, got %v", roles)
	}
	found := false
	for _, e := range audit.types() {
		if e == "turn_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("turn_failed audit event missing: %v", audit.types())
	}
}

func TestHandleTurnGenerationFailure(t *testing.T) {
	store := &fakeStore{}
	o := newTestOrchestrator(t, &fakeAI{err: errors.New("stream broke")},
		&fakeRetriever{res: testRetrievalResult()}, store, &fakeAudit{})

	events := collect(t, o.HandleTurn(context.Background(), turnInput()))
	last := checkEventInvariant(t, events)

	if last.Kind != EventError {
		t.Fatalf("expected error event, got %s", last.Kind)
	}
	for _, role := range store.roles() {
		if role == "assistant" {
			t.Fatalf("assistant message must never persist on generation failure")
		}
	}
}

func TestHandleTurnCancelledMidStreamPersistsOnlyUserMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &fakeStore{}
	audit := &fakeAudit{}
	o := newTestOrchestrator(t, &disconnectingAI{cancel: cancel},
		&fakeRetriever{res: testRetrievalResult()}, store, audit)

	events := collect(t, o.HandleTurn(ctx, turnInput()))

	// Emission races the cancelled context, so the terminal event may
	// never reach a disconnected client. What must hold: the stream
	// terminates, nothing completes, and any error carries the
	// interruption message.
	if len(events) == 0 || events[0].Kind != EventToken {
		t.Fatalf("the delta streamed before the disconnect must be emitted, got %v", events)
	}
	for _, ev := range events {
		if ev.Kind == EventComplete {
			t.Fatalf("cancelled turn must not complete")
		}
		if ev.Kind == EventError && ev.Error != "The answer was interrupted before it finished." {
			t.Fatalf("unexpected safe message %q", ev.Error)
		}
	}

	roles := store.roles()
	if len(roles) != 1 || roles[0] != "user" {
		t.Fatalf("only the user message may persist after a disconnect, got %v", roles)
	}
	if store.retrievalEvents != 1 {
		t.Fatalf("retrieval event must be durable even when the caller disconnects")
	}
	found := false
	for _, e := range audit.types() {
		if e == "turn_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("turn_failed audit event missing: %v", audit.types())
	}
}

func TestHandleTurnAssistantPersistFailure(t *testing.T) {
	store := &fakeStore{failRole: "assistant"}
	o := newTestOrchestrator(t, &fakeAI{deltas: []string{"x"}, text: "x"},
		&fakeRetriever{res: testRetrievalResult()}, store, &fakeAudit{})

	events := collect(t, o.HandleTurn(context.Background(), turnInput()))
	last := checkEventInvariant(t, events)

	if last.Kind != EventError {
		t.Fatalf("expected error event after persistence failure, got %s", last.Kind)
	}
	if last.Error != "Your message was received but the reply could not be saved. Please try again." {
		t.Fatalf("unexpected safe message %q", last.Error)
	}
}

func TestHandleTurnRetrievalEventPersistFailure(t *testing.T) {
	store := &fakeStore{failRetrieval: true}
	o := newTestOrchestrator(t, &fakeAI{deltas: []string{"x"}, text: "x"},
		&fakeRetriever{res: testRetrievalResult()}, store, &fakeAudit{})

	events := collect(t, o.HandleTurn(context.Background(), turnInput()))
	last := checkEventInvariant(t, events)

	if last.Kind != EventError {
		t.Fatalf("a turn is not successful until the retrieval event is durable")
	}
}

func TestHandleTurnSafeMessagesNeverLeakInternals(t *testing.T) {
	internal := "pq: connection refused host=10.0.0.8 password=hunter2"
	store := &fakeStore{}
	retriever := &fakeRetriever{err: &RetrievalError{Stage: "search", Err: errors.New(internal)}}
	o := newTestOrchestrator(t, &fakeAI{}, retriever, store, &fakeAudit{})

	events := collect(t, o.HandleTurn(context.Background(), turnInput()))
	last := checkEventInvariant(t, events)

	if last.Error == internal || len(last.Error) == 0 {
		t.Fatalf("raw error must not reach the caller: %q", last.Error)
	}
	for _, frag := range []string{"10.0.0.8", "hunter2", "pq:"} {
		if strings.Contains(last.Error, frag) {
			t.Fatalf("safe message leaks %q: %q", frag, last.Error)
		}
	}
}
