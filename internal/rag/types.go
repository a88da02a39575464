package rag

// RetrievedChunk is one scored passage returned by the vector search.
// Identity is (DocID, ChunkID); the same identity may legitimately recur
// in one result set when the corpus contains re-chunked duplicates.
type RetrievedChunk struct {
	DocID    string         `json:"doc_id"`
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Citation is the stable, user-visible reference for one chunk. ID is
// derived from (DocID, ChunkID) plus an occurrence counter so it is
// unique within a single response.
type Citation struct {
	ID            string  `json:"id"`
	DocID         string  `json:"doc_id"`
	ChunkID       string  `json:"chunk_id"`
	Source        string  `json:"source,omitempty"`
	Jurisdiction  string  `json:"jurisdiction,omitempty"`
	EffectiveDate string  `json:"effective_date,omitempty"`
	Score         float64 `json:"score"`
}

// RetrievalResult bundles the chunks chosen for a turn with their
// index-aligned citations. Citations[i] always describes Chunks[i].
type RetrievalResult struct {
	Chunks        []RetrievedChunk `json:"chunks"`
	Citations     []Citation       `json:"citations"`
	LatencyMs     int64            `json:"latency_ms"`
	LowConfidence bool             `json:"low_confidence"`
}

// HistoryMessage is one prior turn as seen by this package. The
// orchestrator treats the slice it receives as an immutable snapshot.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
