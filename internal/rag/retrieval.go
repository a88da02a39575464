package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/platform/envutil"
	"github.com/amparolegal/amparo-backend/internal/platform/pinecone"
)

// Embedder turns query text into vectors. Satisfied by the OpenAI client.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// EmbeddingCache memoizes query vectors. A nil-backed implementation
// that always misses is acceptable.
type EmbeddingCache interface {
	Get(ctx context.Context, model string, query string) ([]float32, bool)
	Put(ctx context.Context, model string, query string, vec []float32)
}

// Coordinator produces a RetrievalResult for a query: embed, vector
// search, rerank, citations. It owns the candidate pool sizing and the
// low-confidence judgement; callers only see the final topK chunks.
type Coordinator struct {
	log        *logger.Logger
	embedder   Embedder
	index      pinecone.VectorStore
	cache      EmbeddingCache
	reranker   *Reranker
	embedModel string
	candidateK int
	minScore   float64
	timeout    time.Duration
}

func NewCoordinator(log *logger.Logger, embedder Embedder, index pinecone.VectorStore, cache EmbeddingCache, reranker *Reranker) (*Coordinator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if index == nil {
		return nil, fmt.Errorf("vector store required")
	}
	return &Coordinator{
		log:        log.With("service", "RetrievalCoordinator"),
		embedder:   embedder,
		index:      index,
		cache:      cache,
		reranker:   reranker,
		embedModel: envutil.GetEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		candidateK: envutil.GetEnvAsInt("RETRIEVAL_CANDIDATE_K", 24),
		minScore:   envutil.GetEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.25),
		timeout:    envutil.GetEnvAsSeconds("RETRIEVAL_TIMEOUT_SECONDS", 30*time.Second),
	}, nil
}

// Retrieve implements the search capability: scored chunks for a query,
// best first, at most topK of them, with index-aligned citations.
func (c *Coordinator) Retrieve(ctx context.Context, query string, filters map[string]any, topK int) (*RetrievalResult, error) {
	if topK <= 0 {
		topK = 5
	}
	start := time.Now()

	searchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vec, err := c.embedQuery(searchCtx, query)
	if err != nil {
		return nil, &RetrievalError{Stage: "embed", Err: err}
	}

	poolK := c.candidateK
	if poolK < topK {
		poolK = topK
	}
	matches, err := c.index.QueryMatches(searchCtx, vec, poolK, filters)
	if err != nil {
		return nil, &RetrievalError{Stage: "search", Err: err}
	}

	candidates := chunksFromMatches(matches)
	chunks := candidates
	fallbackUsed := false
	if c.reranker != nil && len(candidates) > 0 {
		chunks, fallbackUsed, err = c.reranker.Rerank(ctx, query, candidates, topK)
		if err != nil {
			// A RerankerError stays typed so callers can tell a model
			// contract violation from infrastructure failure.
			if _, ok := err.(*RerankerError); ok {
				return nil, err
			}
			return nil, &RetrievalError{Stage: "rerank", Err: err}
		}
	}
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	res := &RetrievalResult{
		Chunks:        chunks,
		Citations:     BuildCitations(chunks),
		LatencyMs:     time.Since(start).Milliseconds(),
		LowConfidence: lowConfidence(chunks, c.minScore),
	}
	c.log.Info("retrieval completed",
		"candidates", len(candidates),
		"chunks", len(res.Chunks),
		"fallback_used", fallbackUsed,
		"low_confidence", res.LowConfidence,
		"latency_ms", res.LatencyMs,
	)
	return res, nil
}

func (c *Coordinator) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if c.cache != nil {
		if vec, ok := c.cache.Get(ctx, c.embedModel, query); ok {
			return vec, nil
		}
	}
	vecs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	if c.cache != nil {
		c.cache.Put(ctx, c.embedModel, query, vecs[0])
	}
	return vecs[0], nil
}

func chunksFromMatches(matches []pinecone.Match) []RetrievedChunk {
	out := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		ch := RetrievedChunk{Score: m.Score, Metadata: m.Metadata}
		if v, ok := m.Metadata["doc_id"].(string); ok {
			ch.DocID = v
		}
		if v, ok := m.Metadata["chunk_id"].(string); ok {
			ch.ChunkID = v
		}
		if v, ok := m.Metadata["text"].(string); ok {
			ch.Text = v
		}
		if ch.DocID == "" || ch.ChunkID == "" {
			docID, chunkID := splitMatchID(m.ID)
			if ch.DocID == "" {
				ch.DocID = docID
			}
			if ch.ChunkID == "" {
				ch.ChunkID = chunkID
			}
		}
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// splitMatchID recovers (doc, chunk) from vector ids shaped "doc#chunk"
// or "doc:chunk". Ids without a separator become the doc id alone.
func splitMatchID(id string) (string, string) {
	for _, sep := range []string{"#", ":"} {
		if i := strings.Index(id, sep); i > 0 {
			return id[:i], id[i+len(sep):]
		}
	}
	return id, ""
}

func lowConfidence(chunks []RetrievedChunk, minScore float64) bool {
	if len(chunks) == 0 {
		return true
	}
	best := chunks[0].Score
	for _, ch := range chunks[1:] {
		if ch.Score > best {
			best = ch.Score
		}
	}
	return best < minScore
}
