package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/platform/envutil"
)

// JSONGenerator is the model capability the reranker consumes. It must
// honor the strict JSON schema passed to it; the reranker owns parsing
// of the returned text.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (string, error)
}

type Reranker struct {
	log     *logger.Logger
	ai      JSONGenerator
	timeout time.Duration
	excerpt int
}

func NewReranker(log *logger.Logger, ai JSONGenerator) (*Reranker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("json generator required")
	}
	return &Reranker{
		log:     log.With("service", "Reranker"),
		ai:      ai,
		timeout: envutil.GetEnvAsSeconds("RERANK_TIMEOUT_SECONDS", 20*time.Second),
		excerpt: envutil.GetEnvAsInt("RERANK_EXCERPT_CHARS", 420),
	}, nil
}

const rerankSystemPrompt = "You rank retrieved legal text passages by relevance to a research question.\n" +
	"Return only JSON matching the schema.\n" +
	"Pick the ids of the most relevant passages, best first.\n" +
	"Never invent ids that are not in the candidate list."

var rerankSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"selected_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"selected_ids"},
}

type rerankSelection struct {
	SelectedIDs []string `json:"selected_ids"`
}

// Rerank asks the model to pick the best finalTopK candidates. The
// model only ever sees opaque handles (cand_1..cand_n) assigned in
// original vector-score order, so it cannot fabricate document ids.
// Unknown and duplicate handles in the response are dropped; if fewer
// than finalTopK survive, unselected candidates fill the remaining
// slots in original order; the returned flag reports whether that
// fill-in path ran, so callers can track degraded responses. A
// response that is not valid JSON of the agreed shape is a hard
// RerankerError, never a degraded result.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []RetrievedChunk, finalTopK int) ([]RetrievedChunk, bool, error) {
	if finalTopK <= 0 || len(candidates) == 0 {
		return nil, false, nil
	}
	if finalTopK > len(candidates) {
		finalTopK = len(candidates)
	}

	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "- id: cand_%d\n  excerpt: %s\n", i+1, trimToChars(c.Text, r.excerpt))
	}

	user := strings.TrimSpace(strings.Join([]string{
		"QUESTION:",
		strings.TrimSpace(query),
		"",
		fmt.Sprintf("Select up to %d ids.", finalTopK),
		"",
		"CANDIDATES:",
		sb.String(),
	}, "\n"))

	rerankCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	raw, err := r.ai.GenerateJSON(rerankCtx, rerankSystemPrompt, user, "rerank_select_v1", rerankSchema)
	if err != nil {
		return nil, false, fmt.Errorf("rerank call failed: %w", err)
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		return nil, false, &RerankerError{Reason: "model returned invalid JSON", Raw: raw, Err: err}
	}
	rawIDs, ok := shape["selected_ids"]
	if !ok {
		return nil, false, &RerankerError{Reason: "model response missing selected_ids", Raw: raw}
	}
	var dec rerankSelection
	if err := json.Unmarshal(rawIDs, &dec.SelectedIDs); err != nil {
		return nil, false, &RerankerError{Reason: "selected_ids is not a string array", Raw: raw, Err: err}
	}

	handles := make(map[string]int, len(candidates))
	for i := range candidates {
		handles[fmt.Sprintf("cand_%d", i+1)] = i
	}

	picked := make([]RetrievedChunk, 0, finalTopK)
	used := make(map[int]bool, finalTopK)
	for _, id := range dec.SelectedIDs {
		if len(picked) >= finalTopK {
			break
		}
		i, ok := handles[strings.TrimSpace(id)]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		picked = append(picked, candidates[i])
	}
	modelSelected := len(picked)

	fallbackUsed := false
	for i := range candidates {
		if len(picked) >= finalTopK {
			break
		}
		if used[i] {
			continue
		}
		used[i] = true
		picked = append(picked, candidates[i])
		fallbackUsed = true
	}

	r.log.Info("rerank completed",
		"candidates", len(candidates),
		"selected", modelSelected,
		"returned", len(picked),
		"fallback_used", fallbackUsed,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return picked, fallbackUsed, nil
}
