package rag

import (
	"regexp"
	"strings"
	"unicode"
)

const defaultSessionTitle = "New session"

const (
	titleMaxWords = 6
	titleMaxChars = 60
)

var (
	codeFencePattern = regexp.MustCompile("(?s)```.*?(```|$)")
	inlineCodeMarks  = regexp.MustCompile("[`#*_>~]")
	sentenceSplit    = regexp.MustCompile(`[.!?\n]+`)
)

// titleStopwords are greeting and filler words worth dropping from the
// front of a first message, in both supported languages.
var titleStopwords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "please": true,
	"ok": true, "okay": true, "so": true, "well": true, "um": true,
	"hola": true, "buenas": true, "buenos": true, "oye": true,
	"bueno": true, "por": true, "favor": true, "gracias": true,
}

// TitleFromFirstMessage derives a short session title from the first
// user message. Pure and deterministic; at most 6 words and 60
// characters, falling back to a fixed default when nothing usable
// remains.
func TitleFromFirstMessage(text string) string {
	cleaned := codeFencePattern.ReplaceAllString(text, " ")
	cleaned = inlineCodeMarks.ReplaceAllString(cleaned, " ")

	fragment := ""
	for _, part := range sentenceSplit.Split(cleaned, -1) {
		part = normalizeWhitespace(part)
		if part != "" {
			fragment = part
			break
		}
	}
	if fragment == "" {
		return defaultSessionTitle
	}

	words := strings.Fields(fragment)
	trimmed := words
	for len(trimmed) > 0 && titleStopwords[strings.ToLower(strings.Trim(trimmed[0], ",;:"))] {
		trimmed = trimmed[1:]
	}
	if len(trimmed) > 0 {
		words = trimmed
	}
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}

	title := strings.Join(words, " ")
	if r := []rune(title); len(r) > titleMaxChars {
		cut := string(r[:titleMaxChars])
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
		title = cut
	}
	title = strings.TrimRight(title, " ,.;:!?-–—…")
	if title == "" {
		return defaultSessionTitle
	}

	if strings.ToLower(text) == text {
		title = titleCase(title)
	}
	return title
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
