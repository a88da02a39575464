package rag

import (
	"fmt"
	"regexp"
)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeID(s string) string {
	return unsafeIDChars.ReplaceAllString(s, "_")
}

// BuildCitations derives one citation per chunk, in order. Citation ids
// are unique within the output: a repeated (doc_id, chunk_id) identity
// gets an occurrence suffix (":2", ":3", ...) in encounter order.
func BuildCitations(chunks []RetrievedChunk) []Citation {
	citations := make([]Citation, 0, len(chunks))
	seen := make(map[string]int, len(chunks))

	for _, ch := range chunks {
		base := sanitizeID(ch.DocID) + ":" + sanitizeID(ch.ChunkID)
		seen[base]++
		id := base
		if n := seen[base]; n > 1 {
			id = fmt.Sprintf("%s:%d", base, n)
		}

		c := Citation{
			ID:      id,
			DocID:   ch.DocID,
			ChunkID: ch.ChunkID,
			Score:   ch.Score,
		}
		if v, ok := ch.Metadata["source"].(string); ok {
			c.Source = v
		}
		if v, ok := ch.Metadata["jurisdiction"].(string); ok {
			c.Jurisdiction = v
		}
		if v, ok := ch.Metadata["effective_date"].(string); ok {
			c.EffectiveDate = v
		}
		citations = append(citations, c)
	}
	return citations
}
