package rag

import (
	"strings"

	"github.com/amparolegal/amparo-backend/internal/platform/envutil"
	"github.com/amparolegal/amparo-backend/internal/platform/openai"
)

const answerSystemPrompt = "You are a legal research assistant. Answer using only the " +
	"provided context passages and cite them inline with their bracketed ids, " +
	"for example [ley_federal:art_123].\n" +
	"If the context does not support an answer, say so plainly instead of guessing.\n" +
	"Answer in the language of the question (English or Spanish).\n" +
	"Never give definitive legal advice; describe what the sources say."

// AssembleMessages builds the outbound prompt for a turn: system
// guardrails, a citation-tagged context block, recent history, then
// the question itself. Context and history are trimmed to rough token
// budgets so the prompt stays inside the model window.
func AssembleMessages(history []HistoryMessage, res *RetrievalResult, question string) []openai.Message {
	contextBudget := envutil.GetEnvAsInt("PROMPT_CONTEXT_TOKENS", 6000)
	historyBudget := envutil.GetEnvAsInt("PROMPT_HISTORY_TOKENS", 2000)

	msgs := make([]openai.Message, 0, len(history)+3)
	msgs = append(msgs, openai.Message{Role: "system", Content: answerSystemPrompt})

	if block := renderContextBlock(res, contextBudget); block != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: "CONTEXT:\n" + block})
	}

	for _, h := range trimHistory(history, historyBudget) {
		msgs = append(msgs, openai.Message{Role: h.Role, Content: h.Content})
	}

	msgs = append(msgs, openai.Message{Role: "user", Content: strings.TrimSpace(question)})
	return msgs
}

// renderContextBlock emits one tagged passage per chunk, skipping
// whatever no longer fits the budget. Citations stay index-aligned
// with chunks, so citation i labels chunk i.
func renderContextBlock(res *RetrievalResult, maxTokens int) string {
	if res == nil || len(res.Chunks) == 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	for i, ch := range res.Chunks {
		header := "[" + res.Citations[i].ID + "]"
		if src := res.Citations[i].Source; src != "" {
			header += " " + src
		}
		if j := res.Citations[i].Jurisdiction; j != "" {
			header += " (" + j + ")"
		}
		block := header + "\n" + strings.TrimSpace(ch.Text) + "\n"
		blockTokens := estimateTokens(block)
		if used+blockTokens > maxTokens {
			remaining := maxTokens - used
			if remaining <= estimateTokens(header)+8 {
				break
			}
			block = header + "\n" + trimToTokens(strings.TrimSpace(ch.Text), remaining-estimateTokens(header)) + "\n"
			blockTokens = estimateTokens(block)
		}
		b.WriteString(block)
		b.WriteString("\n")
		used += blockTokens
		if used >= maxTokens {
			break
		}
	}
	block := strings.TrimSpace(b.String())
	if res.LowConfidence && block != "" {
		block += "\n\n" + "NOTE: retrieval confidence is low; qualify the answer accordingly."
	}
	return block
}

// trimHistory keeps the most recent turns that fit the budget,
// preserving order. System and tool turns are dropped; the prompt
// carries its own system framing.
func trimHistory(history []HistoryMessage, maxTokens int) []HistoryMessage {
	kept := make([]HistoryMessage, 0, len(history))
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Role != "user" && h.Role != "assistant" {
			continue
		}
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		t := estimateTokens(content)
		if used+t > maxTokens {
			break
		}
		used += t
		kept = append(kept, HistoryMessage{Role: h.Role, Content: content})
	}
	// kept is newest-first; reverse into chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
