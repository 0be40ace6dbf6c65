package transcribe

import (
	"testing"

	"github.com/snarg/transcriptor/internal/transcript"
)

func grouped(words ...transcript.SpeakerWord) []transcript.Segment {
	return transcript.GroupWords(words)
}

func sw(text string, start, end float64, speaker string) transcript.SpeakerWord {
	return transcript.SpeakerWord{
		WordTimestamp: transcript.WordTimestamp{Word: text, StartTime: start, EndTime: end},
		Speaker:       speaker,
	}
}

func TestRestorePunctuation_SingleSegment(t *testing.T) {
	segs := grouped(
		sw("hello", 0, 0.5, ""),
		sw("world", 0.5, 1.0, ""),
	)
	restorePunctuation(segs, "Hello, world!")

	if segs[0].Text != "Hello, world!" {
		t.Errorf("expected %q, got %q", "Hello, world!", segs[0].Text)
	}
}

func TestRestorePunctuation_MultiSegment(t *testing.T) {
	// Long pause splits the words into two segments; punctuation should
	// land in the correct one.
	segs := grouped(
		sw("Air", 0.0, 0.3, ""),
		sw("2", 0.3, 0.5, ""),
		sw("pilot", 0.5, 0.9, ""),
		sw("weather", 4.0, 4.4, ""),
		sw("check", 4.4, 4.8, ""),
	)
	restorePunctuation(segs, "Air 2 pilot, weather check.")

	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Text != "Air 2 pilot," {
		t.Errorf("segment 0: expected %q, got %q", "Air 2 pilot,", segs[0].Text)
	}
	if segs[1].Text != "weather check." {
		t.Errorf("segment 1: expected %q, got %q", "weather check.", segs[1].Text)
	}
}

func TestRestorePunctuation_RepeatedWords(t *testing.T) {
	segs := grouped(
		sw("go", 0, 0.2, "A"),
		sw("go", 0.3, 0.5, "B"),
		sw("go", 0.6, 0.8, "A"),
	)
	restorePunctuation(segs, "Go! Go? Go.")

	want := []string{"Go!", "Go?", "Go."}
	for i, w := range want {
		if segs[i].Text != w {
			t.Errorf("segment %d: expected %q, got %q", i, w, segs[i].Text)
		}
	}
}

func TestRestorePunctuation_EmptyFullText(t *testing.T) {
	segs := grouped(sw("hello", 0, 0.5, ""), sw("world", 0.5, 1, ""))
	restorePunctuation(segs, "")
	if segs[0].Text != "hello world" {
		t.Errorf("expected word join, got %q", segs[0].Text)
	}
}

func TestMapWordPositions_MissingWord(t *testing.T) {
	pos := mapWordPositions([]string{"alpha", "zulu", "bravo"}, "alpha bravo")
	if pos[0] != 0 || pos[1] != 5 || pos[2] != 6 {
		t.Errorf("positions = %v, want [0 5 6]", pos)
	}
}

func TestRestorePunctuation_CaseFoldingChangesLength(t *testing.T) {
	// "Ⱥ" is two bytes but lowers to the three-byte "ⱥ".
	segs := grouped(
		sw("ȺȺȺȺȺȺȺȺȺȺ", 0, 1, ""),
		sw("one", 1, 2, ""),
		sw("two", 5, 6, ""),
		sw("three", 9, 10, ""),
	)
	restorePunctuation(segs, "ȺȺȺȺȺȺȺȺȺȺ one. two three")

	want := []string{"ȺȺȺȺȺȺȺȺȺȺ one.", "two", "three"}
	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(segs))
	}
	for i, w := range want {
		if segs[i].Text != w {
			t.Errorf("segment %d: expected %q, got %q", i, w, segs[i].Text)
		}
	}
}

func TestMapWordPositions_FoldsOnOriginalText(t *testing.T) {
	pos := mapWordPositions([]string{"ⱥⱥ", "X", "straße"}, "ȺȺ x STRASSE straße")
	// "ȺȺ" spans bytes 0-3, "x" is at 5, "straße" at 15.
	if pos[0] != 0 || pos[1] != 5 || pos[2] != 15 {
		t.Errorf("positions = %v, want [0 5 15]", pos)
	}
}
