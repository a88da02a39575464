package rag

import (
	"math"
	"strings"
)

func trimToChars(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" || n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

// crude token estimate (~4 chars/token English)
func estimateTokens(s string) int {
	r := []rune(s)
	return int(math.Ceil(float64(len(r)) / 4.0))
}

func trimToTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if estimateTokens(s) <= n {
		return s
	}
	return trimToChars(s, n*4)
}
