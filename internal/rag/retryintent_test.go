package rag

import "testing"

func TestResolveEffectiveQueryNonRetry(t *testing.T) {
	history := []HistoryMessage{{Role: "user", Content: "Plazo de prescripción laboral"}}
	got := ResolveEffectiveQuery("¿Qué es el despido injustificado?", history)
	if got.IsRetryIntent {
		t.Fatalf("expected non-retry, got %+v", got)
	}
	if got.Resolution != ResolutionRawUserMessage {
		t.Fatalf("expected raw_user_message, got %s", got.Resolution)
	}
	if got.EffectiveQuery != "¿Qué es el despido injustificado?" {
		t.Fatalf("unexpected effective query %q", got.EffectiveQuery)
	}
}

func TestResolveEffectiveQuerySpanishSuffix(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: "Despido indirecto y salarios impagos"},
	}
	got := ResolveEffectiveQuery("vuelve a intentar pero enfócate en jurisprudencia reciente", history)

	want := "Despido indirecto y salarios impagos\nenfócate en jurisprudencia reciente"
	if got.EffectiveQuery != want {
		t.Fatalf("effective query = %q, want %q", got.EffectiveQuery, want)
	}
	if !got.IsRetryIntent || got.Resolution != ResolutionPreviousUserMessage || !got.SuffixApplied {
		t.Fatalf("unexpected resolution %+v", got)
	}
}

func TestResolveEffectiveQueryFallbackRaw(t *testing.T) {
	history := []HistoryMessage{{Role: "assistant", Content: "no user history"}}
	got := ResolveEffectiveQuery("retry", history)

	if got.EffectiveQuery != "retry" {
		t.Fatalf("effective query = %q, want %q", got.EffectiveQuery, "retry")
	}
	if !got.IsRetryIntent || got.Resolution != ResolutionFallbackRaw || got.SuffixApplied {
		t.Fatalf("unexpected resolution %+v", got)
	}
}

func TestResolveEffectiveQuerySkipsConsecutiveRetries(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: "Requisitos del amparo directo"},
		{Role: "assistant", Content: "..."},
		{Role: "user", Content: "try again"},
		{Role: "assistant", Content: "..."},
	}
	got := ResolveEffectiveQuery("please try again", history)
	if got.Resolution != ResolutionPreviousUserMessage {
		t.Fatalf("expected previous_user_message, got %s", got.Resolution)
	}
	if got.EffectiveQuery != "Requisitos del amparo directo" {
		t.Fatalf("unexpected effective query %q", got.EffectiveQuery)
	}
	if got.SuffixApplied {
		t.Fatalf("no suffix expected")
	}
}

func TestResolveEffectiveQueryEnglishSuffixSeparators(t *testing.T) {
	history := []HistoryMessage{{Role: "user", Content: "Statute of limitations for wage claims"}}
	for _, raw := range []string{
		"try again, but only federal cases",
		"try again: but only federal cases",
		"try again - but only federal cases",
		"try again but only federal cases",
	} {
		got := ResolveEffectiveQuery(raw, history)
		want := "Statute of limitations for wage claims\nonly federal cases"
		if got.EffectiveQuery != want {
			t.Fatalf("%q: effective query = %q, want %q", raw, got.EffectiveQuery, want)
		}
		if !got.SuffixApplied {
			t.Fatalf("%q: expected suffix applied", raw)
		}
	}
}

func TestResolveEffectiveQueryEmptyInput(t *testing.T) {
	got := ResolveEffectiveQuery("   ", nil)
	if got.IsRetryIntent || got.Resolution != ResolutionRawUserMessage {
		t.Fatalf("whitespace input should be non-retry, got %+v", got)
	}
}

func TestResolveEffectiveQueryNormalizesWhitespace(t *testing.T) {
	history := []HistoryMessage{{Role: "user", Content: "  Contrato   de  obra  "}}
	got := ResolveEffectiveQuery("  VUELVE   A  INTENTAR ", history)
	if got.Resolution != ResolutionPreviousUserMessage {
		t.Fatalf("expected previous_user_message, got %+v", got)
	}
	if got.EffectiveQuery != "Contrato de obra" {
		t.Fatalf("unexpected effective query %q", got.EffectiveQuery)
	}
}
