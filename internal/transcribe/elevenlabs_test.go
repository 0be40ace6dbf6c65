package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snarg/transcriptor/internal/transcript"
)

const elevenLabsBody = `{
  "language_code": "eng",
  "language_probability": 0.98,
  "text": "Hi there. Bye.",
  "words": [
    {"text": "Hi", "type": "word", "start": 0.0, "end": 0.4, "speaker_id": "speaker_0", "logprob": 0},
    {"text": " ", "type": "spacing", "start": 0.4, "end": 0.45, "speaker_id": "speaker_0"},
    {"text": "there.", "type": "word", "start": 0.45, "end": 0.9, "speaker_id": "speaker_0", "logprob": 0},
    {"text": "(laughs)", "type": "audio_event", "start": 0.9, "end": 1.0, "speaker_id": "speaker_0"},
    {"text": "Bye.", "type": "word", "start": 1.0, "end": 1.5, "speaker_id": "speaker_1", "logprob": 0}
  ]
}`

func TestElevenLabs_Transcribe(t *testing.T) {
	var gotKey, gotDiarize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		r.ParseMultipartForm(1 << 20)
		gotDiarize = r.FormValue("diarize")
		io.WriteString(w, elevenLabsBody)
	}))
	defer srv.Close()

	el, err := NewElevenLabs(ElevenLabsConfig{APIKey: "xi-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	res, err := el.Transcribe(context.Background(), mp3(10),
		transcript.Settings{EnableDiarization: true, EnableWordTimestamps: true}, nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotKey != "xi-key" || gotDiarize != "true" {
		t.Errorf("key=%q diarize=%q", gotKey, gotDiarize)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[0].Speaker != "Speaker 0" || res.Segments[0].Text != "Hi there." {
		t.Errorf("segment 0 = %+v", res.Segments[0])
	}
	if res.Segments[1].Speaker != "Speaker 1" {
		t.Errorf("segment 1 speaker = %q", res.Segments[1].Speaker)
	}
	if c := res.Segments[0].Confidence; c == nil || *c != 1 {
		t.Errorf("confidence = %v, want 1 for logprob 0", c)
	}
	if res.Duration != 1.5 || res.Language != "eng" {
		t.Errorf("result = %+v", res)
	}
}

func TestElevenLabs_WithoutDiarizationHasNoSpeakers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, elevenLabsBody)
	}))
	defer srv.Close()

	el, _ := NewElevenLabs(ElevenLabsConfig{APIKey: "xi-key", Endpoint: srv.URL})
	res, err := el.Transcribe(context.Background(), mp3(10), transcript.Settings{}, nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].Speaker != "" {
		t.Errorf("segments = %+v", res.Segments)
	}
	if res.Segments[0].Words != nil {
		t.Error("words kept without word timestamps")
	}
}

func TestElevenLabs_NoKey(t *testing.T) {
	if _, err := NewElevenLabs(ElevenLabsConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestElevenLabsWord_LegacyMilliseconds(t *testing.T) {
	w := elevenlabsWord{StartTimeMs: 1500, EndTimeMs: 2000}
	s, e := w.span()
	if s != 1.5 || e != 2.0 {
		t.Errorf("span = %v, %v", s, e)
	}
}

func TestBuildKeyterms(t *testing.T) {
	el := &ElevenLabs{cfg: ElevenLabsConfig{Keyterms: "Kubernetes, , gRPC"}}
	if got := el.buildKeyterms(); got != `[{"text":"Kubernetes"},{"text":"gRPC"}]` {
		t.Errorf("keyterms = %s", got)
	}
	if got := (&ElevenLabs{}).buildKeyterms(); got != "" {
		t.Errorf("empty keyterms = %q", got)
	}
}

func TestSpeakerLabel(t *testing.T) {
	tests := map[string]string{"speaker_2": "Speaker 2", "B": "Speaker B", "": ""}
	for in, want := range tests {
		if got := speakerLabel(in); got != want {
			t.Errorf("speakerLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
