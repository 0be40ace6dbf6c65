package transcribe

import (
	"strings"
	"unicode/utf8"

	"github.com/snarg/transcriptor/internal/transcript"
)

// restorePunctuation rewrites the text of word-grouped segments by slicing
// the provider's full transcript, which keeps punctuation that bare word
// tokens lack. Segments without words, or an empty fullText, are left as is.
func restorePunctuation(segments []transcript.Segment, fullText string) {
	if fullText == "" || len(segments) == 0 {
		return
	}

	var words []string
	firsts := make([]int, len(segments))
	for i, s := range segments {
		if len(s.Words) == 0 {
			return
		}
		firsts[i] = len(words)
		for _, w := range s.Words {
			words = append(words, w.Word)
		}
	}

	positions := mapWordPositions(words, fullText)
	for i := range segments {
		start := positions[firsts[i]]
		end := len(fullText)
		if i+1 < len(segments) {
			end = positions[firsts[i+1]]
		}
		if end < start {
			continue
		}
		if text := strings.TrimSpace(fullText[start:end]); text != "" {
			segments[i].Text = text
		}
	}
}

// mapWordPositions maps each word token to its byte offset in fullText using
// sequential case-insensitive forward scanning. Each word is matched only once,
// advancing past previous matches to handle repeated words correctly.
// Offsets always fall on rune boundaries of fullText.
func mapWordPositions(words []string, fullText string) []int {
	positions := make([]int, len(words))
	searchFrom := 0

	for i, w := range words {
		w = strings.TrimSpace(w)
		start, end := indexFold(fullText[searchFrom:], w)
		if w != "" && start >= 0 {
			positions[i] = searchFrom + start
			searchFrom += end
		} else {
			// Word not found, use current search position as best guess
			positions[i] = searchFrom
		}
	}
	return positions
}

// indexFold finds the first case-insensitive match of sub in s and returns
// its byte range in s, or -1, -1. Matching runs on s itself since case
// mapping can change the encoded length of a rune.
func indexFold(s, sub string) (start, end int) {
	if sub == "" {
		return -1, -1
	}
	for i := range s {
		if n, ok := prefixFold(s[i:], sub); ok {
			return i, i + n
		}
	}
	return -1, -1
}

// prefixFold reports whether s starts with sub under Unicode case folding,
// and the byte length of the matching prefix of s.
func prefixFold(s, sub string) (int, bool) {
	n := 0
	for _, want := range sub {
		if n >= len(s) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(s[n:])
		if got != want && !strings.EqualFold(string(got), string(want)) {
			return 0, false
		}
		n += size
	}
	return n, true
}
