package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/amparolegal/amparo-backend/internal/platform/pinecone"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vec}, nil
}

type fakeIndex struct {
	matches []pinecone.Match
	err     error
	gotTopK int
}

func (f *fakeIndex) QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]pinecone.Match, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeEmbedCache struct {
	store map[string][]float32
	puts  int
}

func (f *fakeEmbedCache) Get(ctx context.Context, model, query string) ([]float32, bool) {
	v, ok := f.store[model+"|"+query]
	return v, ok
}

func (f *fakeEmbedCache) Put(ctx context.Context, model, query string, vec []float32) {
	f.puts++
	f.store[model+"|"+query] = vec
}

func matchFixture(doc, chunk, text string, score float64) pinecone.Match {
	return pinecone.Match{
		ID:    doc + "#" + chunk,
		Score: score,
		Metadata: map[string]any{
			"doc_id":   doc,
			"chunk_id": chunk,
			"text":     text,
		},
	}
}

func newTestCoordinator(t *testing.T, emb *fakeEmbedder, idx *fakeIndex, cache EmbeddingCache, rr *Reranker) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(testLogger(t), emb, idx, cache, rr)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func TestRetrieveWithoutReranker(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	idx := &fakeIndex{matches: []pinecone.Match{
		matchFixture("lft", "a", "texto uno", 0.9),
		matchFixture("lft", "b", "texto dos", 0.8),
		matchFixture("lft", "c", "texto tres", 0.7),
	}}
	c := newTestCoordinator(t, emb, idx, nil, nil)

	res, err := c.Retrieve(context.Background(), "despido", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("topK not applied: %d chunks", len(res.Chunks))
	}
	if len(res.Citations) != len(res.Chunks) {
		t.Fatalf("citations not aligned: %d vs %d", len(res.Citations), len(res.Chunks))
	}
	if res.Citations[0].ID != "lft:a" {
		t.Fatalf("unexpected first citation %q", res.Citations[0].ID)
	}
	if res.LowConfidence {
		t.Fatalf("high scores should not be low confidence")
	}
	if idx.gotTopK < 2 {
		t.Fatalf("candidate pool must be at least topK, got %d", idx.gotTopK)
	}
}

func TestRetrieveEmptyIndexIsLowConfidence(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1}}
	idx := &fakeIndex{}
	c := newTestCoordinator(t, emb, idx, nil, nil)

	res, err := c.Retrieve(context.Background(), "q", nil, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 0 || !res.LowConfidence {
		t.Fatalf("empty retrieval must be low confidence: %+v", res)
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embedding api down")}
	c := newTestCoordinator(t, emb, &fakeIndex{}, nil, nil)

	_, err := c.Retrieve(context.Background(), "q", nil, 3)
	var retrievalErr *RetrievalError
	if !errors.As(err, &retrievalErr) || retrievalErr.Stage != "embed" {
		t.Fatalf("expected embed-stage RetrievalError, got %v", err)
	}
}

func TestRetrieveSearchFailure(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1}}
	idx := &fakeIndex{err: errors.New("index unavailable")}
	c := newTestCoordinator(t, emb, idx, nil, nil)

	_, err := c.Retrieve(context.Background(), "q", nil, 3)
	var retrievalErr *RetrievalError
	if !errors.As(err, &retrievalErr) || retrievalErr.Stage != "search" {
		t.Fatalf("expected search-stage RetrievalError, got %v", err)
	}
}

func TestRetrieveUsesEmbeddingCache(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.5}}
	idx := &fakeIndex{matches: []pinecone.Match{matchFixture("d", "c", "texto", 0.9)}}
	cache := &fakeEmbedCache{store: map[string][]float32{}}
	c := newTestCoordinator(t, emb, idx, cache, nil)

	if _, err := c.Retrieve(context.Background(), "misma consulta", nil, 1); err != nil {
		t.Fatalf("first retrieve: %v", err)
	}
	if _, err := c.Retrieve(context.Background(), "misma consulta", nil, 1); err != nil {
		t.Fatalf("second retrieve: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("expected a single embedding call, got %d", emb.calls)
	}
	if cache.puts != 1 {
		t.Fatalf("expected a single cache write, got %d", cache.puts)
	}
}

func TestRetrieveRerankerContractViolationPropagates(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.5}}
	idx := &fakeIndex{matches: []pinecone.Match{
		matchFixture("d", "a", "uno", 0.9),
		matchFixture("d", "b", "dos", 0.8),
	}}
	rr := newTestReranker(t, &fakeJSONGen{resp: "not json"})
	c := newTestCoordinator(t, emb, idx, nil, rr)

	_, err := c.Retrieve(context.Background(), "q", nil, 2)
	var rerankErr *RerankerError
	if !errors.As(err, &rerankErr) {
		t.Fatalf("RerankerError must stay typed, got %v", err)
	}
}

func TestChunksFromMatchesIDFallback(t *testing.T) {
	chunks := chunksFromMatches([]pinecone.Match{
		{ID: "doc9#chunk3", Score: 0.5, Metadata: map[string]any{"text": "contenido"}},
		{ID: "orphan", Score: 0.4, Metadata: map[string]any{"text": "otro"}},
		{ID: "empty#x", Score: 0.3, Metadata: map[string]any{}},
	})
	if len(chunks) != 2 {
		t.Fatalf("textless matches must be dropped, got %d", len(chunks))
	}
	if chunks[0].DocID != "doc9" || chunks[0].ChunkID != "chunk3" {
		t.Fatalf("id split failed: %+v", chunks[0])
	}
	if chunks[1].DocID != "orphan" || chunks[1].ChunkID != "" {
		t.Fatalf("separator-less id handling failed: %+v", chunks[1])
	}
}
