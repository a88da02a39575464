package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTitleFromFirstMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain question keeps casing",
			in:   "What is indirect dismissal under Mexican labor law?",
			want: "What is indirect dismissal under Mexican",
		},
		{
			name: "lowercase spanish gets title case and greeting dropped",
			in:   "hola, necesito ayuda con un despido injustificado",
			want: "Necesito Ayuda Con Un Despido Injustificado",
		},
		{
			name: "code fence stripped",
			in:   "```sql\nselect 1\n```\nhow do i cite case law",
			want: "How Do I Cite Case Law",
		},
		{
			name: "first sentence only",
			in:   "Plazos de apelación. Además quiero saber sobre costas.",
			want: "Plazos de apelación",
		},
		{
			name: "stopword-only input keeps words",
			in:   "hola hola",
			want: "Hola Hola",
		},
		{
			name: "empty falls back",
			in:   "   ",
			want: "New session",
		},
		{
			name: "punctuation only falls back",
			in:   "!!! ??? ...",
			want: "New session",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFromFirstMessage(tc.in); got != tc.want {
				t.Fatalf("TitleFromFirstMessage(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTitleBounds(t *testing.T) {
	long := strings.Repeat("jurisprudencia ", 20)
	got := TitleFromFirstMessage(long)
	if utf8.RuneCountInString(got) > 60 {
		t.Fatalf("title exceeds 60 chars: %q", got)
	}
	if len(strings.Fields(got)) > 6 {
		t.Fatalf("title exceeds 6 words: %q", got)
	}
	if strings.HasSuffix(got, " ") || strings.HasSuffix(got, ",") {
		t.Fatalf("trailing junk in title: %q", got)
	}
}

func TestTitleDeterministic(t *testing.T) {
	in := "buenas, como impugno una multa administrativa?"
	if TitleFromFirstMessage(in) != TitleFromFirstMessage(in) {
		t.Fatalf("title heuristic must be deterministic")
	}
}
