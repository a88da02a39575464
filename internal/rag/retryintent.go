package rag

import (
	"regexp"
	"strings"
)

type Resolution string

const (
	ResolutionRawUserMessage      Resolution = "raw_user_message"
	ResolutionPreviousUserMessage Resolution = "previous_user_message"
	ResolutionFallbackRaw         Resolution = "fallback_raw"
)

// RetryIntentResolution is recomputed every turn and never persisted.
type RetryIntentResolution struct {
	EffectiveQuery string
	IsRetryIntent  bool
	Resolution     Resolution
	SuffixApplied  bool
}

// retryPattern recognizes "try again" style commands in English and
// Spanish: an optional politeness prefix, one of the retry phrasings,
// and an optional refinement suffix after a separator or conjunction.
var retryPattern = regexp.MustCompile(`(?i)^(?:(?:please|por favor)[,\s]+)?` +
	`(?:try again|retry|vuelve a intentar|intenta de nuevo|int[ée]ntalo de nuevo|otra vez)` +
	`(?:\s*(?:[,:;]|[-–—]+|\b(?:but|and|que|pero|y)\b)\s*(.*\S))?\s*[.!]?$`)

var leadingConjunction = regexp.MustCompile(`(?i)^(?:but|and|que|pero|y)\b\s*`)

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isRetryCommand(normalized string) bool {
	return normalized != "" && retryPattern.MatchString(normalized)
}

// ResolveEffectiveQuery decides what question the user is actually
// asking. A retry-phrased message resolves to the most recent prior
// user message that was itself a real question, optionally refined by
// the suffix of the retry command ("vuelve a intentar pero ...").
func ResolveEffectiveQuery(rawUserText string, previous []HistoryMessage) RetryIntentResolution {
	normalized := normalizeWhitespace(rawUserText)

	m := retryPattern.FindStringSubmatch(normalized)
	if normalized == "" || m == nil {
		return RetryIntentResolution{
			EffectiveQuery: rawUserText,
			IsRetryIntent:  false,
			Resolution:     ResolutionRawUserMessage,
		}
	}

	suffix := normalizeWhitespace(leadingConjunction.ReplaceAllString(m[1], ""))

	// Walk history backward for the last user turn that is not itself
	// a retry command. Consecutive retry-only turns are skipped.
	base := ""
	for i := len(previous) - 1; i >= 0; i-- {
		if previous[i].Role != "user" {
			continue
		}
		content := normalizeWhitespace(previous[i].Content)
		if content == "" || isRetryCommand(content) {
			continue
		}
		base = content
		break
	}

	if base == "" {
		return RetryIntentResolution{
			EffectiveQuery: rawUserText,
			IsRetryIntent:  true,
			Resolution:     ResolutionFallbackRaw,
		}
	}
	if suffix == "" {
		return RetryIntentResolution{
			EffectiveQuery: base,
			IsRetryIntent:  true,
			Resolution:     ResolutionPreviousUserMessage,
		}
	}
	return RetryIntentResolution{
		EffectiveQuery: base + "\n" + suffix,
		IsRetryIntent:  true,
		Resolution:     ResolutionPreviousUserMessage,
		SuffixApplied:  true,
	}
}
