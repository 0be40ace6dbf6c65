package transcribe

import (
	"errors"
	"strings"
	"testing"

	"github.com/snarg/transcriptor/internal/transcript"
)

func TestCheckFile(t *testing.T) {
	caps := Capabilities{
		MaxFileSize:      10 * 1024 * 1024,
		SupportedFormats: []string{"mp3", "wav"},
	}
	tests := []struct {
		name    string
		audio   Audio
		wantErr string
	}{
		{"ok mp3", Audio{Data: make([]byte, 10), ContentType: "audio/mp3"}, ""},
		{"ok x-wav", Audio{Data: make([]byte, 10), ContentType: "audio/x-wav"}, ""},
		{"too big", Audio{Data: make([]byte, 10*1024*1024+1), ContentType: "audio/mp3"}, "file size exceeds maximum limit of 10MB"},
		{"bad type", Audio{Data: make([]byte, 10), ContentType: "audio/ogg"}, "file type audio/ogg is not supported. Supported formats: mp3, wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFile(caps, tt.audio)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *FileError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FileError, got %T %v", err, err)
			}
			if fe.Msg != tt.wantErr {
				t.Errorf("error = %q, want %q", fe.Msg, tt.wantErr)
			}
		})
	}
}

func TestReport_SwallowsPanics(t *testing.T) {
	var got []float64
	p := ProgressFunc(func(v float64) {
		got = append(got, v)
		panic("observer blew up")
	})
	report(p, 10)
	report(p, 20)
	report(nil, 30)
	if len(got) != 2 || got[1] != 20 {
		t.Errorf("observer calls = %v, want [10 20]", got)
	}
}

func TestChannelProgress_NeverBlocks(t *testing.T) {
	ch := make(chan float64, 1)
	p := ChannelProgress(ch)
	p.Report(10)
	p.Report(20) // buffer full, dropped
	if v := <-ch; v != 10 {
		t.Errorf("received %v, want 10", v)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected second value %v", v)
	default:
	}
}

func TestFailedWrapsCause(t *testing.T) {
	err := failed(ErrTimeout)
	if !errors.Is(err, ErrTimeout) {
		t.Error("wrapped error lost ErrTimeout")
	}
	if err.Error() != "transcription failed: transcription timed out" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestNotConfiguredMentionsAPIKey(t *testing.T) {
	err := notConfigured("AssemblyAI")
	if !errors.Is(err, ErrNotConfigured) || !strings.Contains(err.Error(), "API key") {
		t.Errorf("got %v", err)
	}
}

func TestCheckFeatures(t *testing.T) {
	noDiar := Capabilities{Features: Features{Translation: true}}
	noTransl := Capabilities{Features: Features{Diarization: true}}

	if err := CheckFeatures(noDiar, transcript.Settings{EnableDiarization: true}); err == nil ||
		err.Error() != "Selected backend does not support speaker diarization" {
		t.Errorf("diarization: got %v", err)
	}
	if err := CheckFeatures(noTransl, transcript.Settings{EnableTranslation: true}); err == nil ||
		err.Error() != "Selected backend does not support translation" {
		t.Errorf("translation: got %v", err)
	}
	if err := CheckFeatures(noDiar, transcript.Settings{EnableTranslation: true}); err != nil {
		t.Errorf("supported feature rejected: %v", err)
	}
}

func TestLanguageOr(t *testing.T) {
	tests := []struct{ lang, fallback, want string }{
		{"de", "en", "de"},
		{"", "fr", "fr"},
		{"", "auto", "en"},
		{"", "", "en"},
	}
	for _, tt := range tests {
		if got := languageOr(tt.lang, tt.fallback); got != tt.want {
			t.Errorf("languageOr(%q, %q) = %q, want %q", tt.lang, tt.fallback, got, tt.want)
		}
	}
}
