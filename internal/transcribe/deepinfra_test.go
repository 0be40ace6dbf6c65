package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snarg/transcriptor/internal/transcript"
)

func newTestDeepInfra(t *testing.T, body string) (*DeepInfra, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Header.Get("Authorization") != "Bearer di-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("missing audio field: %v", err)
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	di, err := NewDeepInfra(DeepInfraConfig{APIKey: "di-key", BaseURL: srv.URL + "/v1/inference/"})
	if err != nil {
		t.Fatalf("NewDeepInfra: %v", err)
	}
	return di, &path
}

func TestDeepInfra_SegmentsMappedDirectly(t *testing.T) {
	di, path := newTestDeepInfra(t, `{
		"text": "one two. three four.",
		"language": "en",
		"duration": 6,
		"segments": [
			{"text": " one two.", "start": 0, "end": 2},
			{"text": " three four.", "start": 5, "end": 6}
		]
	}`)
	res, err := di.Transcribe(context.Background(), mp3(10), transcript.Settings{EnableWordTimestamps: true}, nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if *path != "/v1/inference/openai/whisper-large-v3-turbo" {
		t.Errorf("path = %q", *path)
	}
	if len(res.Segments) != 2 || res.Segments[0].Text != "one two." || res.Segments[1].StartTime != 5 {
		t.Fatalf("segments = %+v", res.Segments)
	}
	// No provider words: interpolated evenly across the segment.
	w := res.Segments[0].Words
	if len(w) != 2 || w[0].EndTime != 1 || w[1].StartTime != 1 || w[1].EndTime != 2 {
		t.Errorf("words = %+v", w)
	}
}

func TestDeepInfra_WordsOnlyAreGrouped(t *testing.T) {
	di, _ := newTestDeepInfra(t, `{
		"text": "Hello, world. Again.",
		"words": [
			{"text": "Hello", "start": 0, "end": 0.5},
			{"text": "world", "start": 0.6, "end": 1.0},
			{"text": "Again", "start": 5.0, "end": 5.5}
		]
	}`)
	res, err := di.Transcribe(context.Background(), mp3(10), transcript.Settings{}, nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[0].Text != "Hello, world." || res.Segments[1].Text != "Again." {
		t.Errorf("texts = %q, %q", res.Segments[0].Text, res.Segments[1].Text)
	}
	if res.Segments[0].Words != nil {
		t.Error("words kept without word timestamps")
	}
}

func TestWordsFromSegment(t *testing.T) {
	words := wordsFromSegment(deepInfraSegment{Text: "a b c d", Start: 10, End: 12})
	if len(words) != 4 {
		t.Fatalf("got %d words", len(words))
	}
	if words[0].StartTime != 10 || words[3].EndTime != 12 || words[1].StartTime != 10.5 {
		t.Errorf("words = %+v", words)
	}
	if wordsFromSegment(deepInfraSegment{Text: "  "}) != nil {
		t.Error("blank segment should yield no words")
	}
}
