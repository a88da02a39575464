package rag

import "fmt"

// RerankerError means the rerank model violated its output contract
// (non-JSON or wrong shape). It is a hard failure of the retrieval
// call, never silently degraded into a fallback result.
type RerankerError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *RerankerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reranker: %s: %v", e.Reason, e.Err)
	}
	return "reranker: " + e.Reason
}

func (e *RerankerError) Unwrap() error { return e.Err }

// RetrievalError means the embedding or vector search call failed
// after its own retry policy.
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError means the token stream failed or was cancelled.
type GenerationError struct {
	Cancelled bool
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("generation cancelled: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError means a storage append failed after the turn's
// content had already been produced.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
