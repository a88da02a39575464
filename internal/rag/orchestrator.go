package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/amparolegal/amparo-backend/internal/observability"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/platform/envutil"
	"github.com/amparolegal/amparo-backend/internal/platform/openai"
)

// Retriever is the search capability as the orchestrator sees it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters map[string]any, topK int) (*RetrievalResult, error)
}

// ConversationStore is the slice of conversation storage the
// orchestrator needs: append-only writes, never reads.
type ConversationStore interface {
	AppendMessage(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, role string, content string, metadata map[string]any) (uuid.UUID, error)
	AppendRetrievalEvent(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, query string, queryType string, results *RetrievalResult) error
}

// AuditSink records turn outcomes with full error detail. Audit writes
// are best effort and never fail a turn.
type AuditSink interface {
	AppendEvent(ctx context.Context, conversationID *uuid.UUID, userID *uuid.UUID, eventType string, payload map[string]any) (uuid.UUID, error)
}

type TurnInput struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	UserText       string
	History        []HistoryMessage
	Filters        map[string]any
	TopK           int
	Model          string
}

// Orchestrator sequences one chat turn: resolve the effective query,
// retrieve context, assemble the prompt, stream generation, persist.
// Its only output is the StreamEvent channel; per turn that channel
// carries zero or more token events and exactly one terminal event.
type Orchestrator struct {
	log        *logger.Logger
	ai         openai.Client
	retriever  Retriever
	store      ConversationStore
	audit      AuditSink
	topK       int
	genTimeout time.Duration
}

func NewOrchestrator(log *logger.Logger, ai openai.Client, retriever Retriever, store ConversationStore, audit AuditSink) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever required")
	}
	if store == nil {
		return nil, fmt.Errorf("conversation store required")
	}
	return &Orchestrator{
		log:        log.With("service", "ChatOrchestrator"),
		ai:         ai,
		retriever:  retriever,
		store:      store,
		audit:      audit,
		topK:       envutil.GetEnvAsInt("CHAT_TOP_K", 5),
		genTimeout: envutil.GetEnvAsSeconds("CHAT_GENERATION_TIMEOUT_SECONDS", 120*time.Second),
	}, nil
}

// HandleTurn runs one turn asynchronously. The returned channel is
// closed after the terminal event. If the caller's context is
// cancelled mid-stream the generation call is cancelled too and no
// assistant message is persisted; the user message, once appended,
// stays.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		o.runTurn(ctx, in, events)
	}()
	return events
}

func (o *Orchestrator) runTurn(ctx context.Context, in TurnInput, events chan<- StreamEvent) {
	ctx, span := observability.Tracer().Start(ctx, "chat.handle_turn")
	defer span.End()
	span.SetAttributes(attribute.String("conversation_id", in.ConversationID.String()))

	// Persistence must survive a transport disconnect; cancellation
	// only gates generation and event emission.
	persistCtx := context.WithoutCancel(ctx)

	emit := func(ev StreamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	fail := func(err error) {
		kind, safe := classifyError(err)
		o.log.Error("turn failed",
			"conversation_id", in.ConversationID,
			"kind", kind,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		o.auditEvent(persistCtx, in, "turn_failed", map[string]any{
			"kind":  kind,
			"error": err.Error(),
		})
		emit(errorEvent(safe))
	}

	topK := in.TopK
	if topK <= 0 {
		topK = o.topK
	}

	resolution := ResolveEffectiveQuery(in.UserText, in.History)
	span.SetAttributes(
		attribute.Bool("retry_intent", resolution.IsRetryIntent),
		attribute.String("resolution", string(resolution.Resolution)),
	)

	if _, err := o.store.AppendMessage(persistCtx, in.ConversationID, in.UserID, "user", in.UserText, map[string]any{
		"resolution":     string(resolution.Resolution),
		"is_retry":       resolution.IsRetryIntent,
		"suffix_applied": resolution.SuffixApplied,
	}); err != nil {
		fail(&PersistenceError{Op: "append user message", Err: err})
		return
	}

	retrieved, err := o.retriever.Retrieve(ctx, resolution.EffectiveQuery, in.Filters, topK)
	if err != nil {
		fail(err)
		return
	}

	// The retrieval event is recorded for every turn regardless of how
	// generation ends. It runs alongside streaming; the turn only
	// completes once the write has landed.
	g, _ := errgroup.WithContext(persistCtx)
	g.Go(func() error {
		return o.store.AppendRetrievalEvent(persistCtx, in.ConversationID, in.UserID,
			resolution.EffectiveQuery, string(resolution.Resolution), retrieved)
	})

	messages := AssembleMessages(in.History, retrieved, resolution.EffectiveQuery)

	genCtx, cancel := context.WithTimeout(ctx, o.genTimeout)
	defer cancel()
	ai := o.ai
	if in.Model != "" {
		ai = openai.WithModel(o.ai, in.Model)
	}
	streamed, err := ai.StreamChat(genCtx, messages, func(delta string) {
		emit(tokenEvent(delta))
	})
	if err != nil {
		_ = g.Wait()
		fail(&GenerationError{Cancelled: ctx.Err() != nil, Err: err})
		return
	}
	if ctx.Err() != nil {
		_ = g.Wait()
		fail(&GenerationError{Cancelled: true, Err: ctx.Err()})
		return
	}

	if err := g.Wait(); err != nil {
		fail(&PersistenceError{Op: "append retrieval event", Err: err})
		return
	}

	messageID, err := o.store.AppendMessage(persistCtx, in.ConversationID, in.UserID, "assistant", streamed.Text, map[string]any{
		"citations":      retrieved.Citations,
		"low_confidence": retrieved.LowConfidence,
		"input_tokens":   streamed.Usage.InputTokens,
		"output_tokens":  streamed.Usage.OutputTokens,
	})
	if err != nil {
		fail(&PersistenceError{Op: "append assistant message", Err: err})
		return
	}

	o.auditEvent(persistCtx, in, "turn_completed", map[string]any{
		"resolution":     string(resolution.Resolution),
		"chunks":         len(retrieved.Chunks),
		"low_confidence": retrieved.LowConfidence,
		"input_tokens":   streamed.Usage.InputTokens,
		"output_tokens":  streamed.Usage.OutputTokens,
	})
	emit(completeEvent(Complete{
		MessageID:     messageID,
		Content:       streamed.Text,
		Citations:     retrieved.Citations,
		LowConfidence: retrieved.LowConfidence,
		InputTokens:   streamed.Usage.InputTokens,
		OutputTokens:  streamed.Usage.OutputTokens,
	}))
}

func (o *Orchestrator) auditEvent(ctx context.Context, in TurnInput, eventType string, payload map[string]any) {
	if o.audit == nil {
		return
	}
	convID := in.ConversationID
	userID := in.UserID
	if _, err := o.audit.AppendEvent(ctx, &convID, &userID, eventType, payload); err != nil {
		o.log.Warn("audit append failed (continuing)", "event_type", eventType, "error", err)
	}
}

// classifyError maps an internal failure to its audit kind and the
// sanitized message shown to the caller. Raw error text never crosses
// this boundary.
func classifyError(err error) (string, string) {
	var rerank *RerankerError
	var retrieval *RetrievalError
	var generation *GenerationError
	var persistence *PersistenceError
	switch {
	case errors.As(err, &rerank):
		return "reranker_error", "We could not rank the retrieved sources for this question. Please try again."
	case errors.As(err, &retrieval):
		return "retrieval_error", "We could not search the legal corpus right now. Please try again."
	case errors.As(err, &generation):
		if generation.Cancelled {
			return "generation_cancelled", "The answer was interrupted before it finished."
		}
		return "generation_error", "The answer could not be generated. Please try again."
	case errors.As(err, &persistence):
		return "persistence_error", "Your message was received but the reply could not be saved. Please try again."
	default:
		return "internal_error", "Something went wrong handling this request. Please try again."
	}
}
