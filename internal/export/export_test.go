package export

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

func twoSpeakerResult() *transcript.Result {
	return &transcript.Result{
		ID:       "r1",
		Text:     "Hello there. General Kenobi.",
		Language: "en",
		Duration: 4.5,
		Segments: []transcript.Segment{
			{
				ID: "segment-0", Text: "Hello there.", StartTime: 0, EndTime: 1.5,
				Speaker: "A", Confidence: transcript.Float(0.9),
				Words: []transcript.WordTimestamp{
					{Word: "Hello", StartTime: 0, EndTime: 0.6},
					{Word: "there.", StartTime: 0.7, EndTime: 1.5},
				},
			},
			{ID: "segment-1", Text: "General Kenobi.", StartTime: 2.25, EndTime: 4.5, Speaker: "B"},
		},
		Metadata: transcript.Metadata{
			Filename: "talk.mp3", FileSize: 2048, ProcessingTime: 1200,
			Backend: "assemblyai", Features: []string{"transcription", "speaker-diarization"},
		},
	}
}

func emptyResult() *transcript.Result {
	return &transcript.Result{Text: "just text", Duration: 61.5}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"txt", "SRT", " vtt ", "json"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "docx", "pdf"} {
		if _, err := ParseFormat(s); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseFormat(%q) err = %v, want ErrUnsupportedFormat", s, err)
		}
	}
}

func TestExport_UnsupportedFormat(t *testing.T) {
	out, err := Exporter{}.Export(twoSpeakerResult(), Format("docx"), Options{}, "a.mp3")
	if !errors.Is(err, ErrUnsupportedFormat) || out != nil {
		t.Errorf("got (%v, %v), want (nil, ErrUnsupportedFormat)", out, err)
	}
}

func TestExport_Metadata(t *testing.T) {
	tests := []struct {
		format   Format
		mime     string
		filename string
	}{
		{FormatTXT, "text/plain", "talk.txt"},
		{FormatSRT, "application/x-subrip", "talk.srt"},
		{FormatVTT, "text/vtt", "talk.vtt"},
		{FormatJSON, "application/json", "talk.json"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := Exporter{Now: fixedNow}.Export(twoSpeakerResult(), tt.format, Options{}, "talk.mp3")
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if out.MimeType != tt.mime || out.Filename != tt.filename || out.Extension != "."+string(tt.format) {
				t.Errorf("got %+v", out)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := map[string]string{
		"talk.mp3":        "talk.srt",
		"my.talk.webm":    "my.talk.srt",
		"noext":           "noext.srt",
		"dir.d/recording": "dir.d/recording.srt",
	}
	for in, want := range tests {
		if got := Filename(in, FormatSRT); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTXT(t *testing.T) {
	r := twoSpeakerResult()
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"plain", Options{}, r.Text},
		{"timestamps", Options{IncludeTimestamps: true}, "[00:00] Hello there.\n[00:02] General Kenobi."},
		{"speakers", Options{IncludeSpeakers: true}, "A: Hello there.\nB: General Kenobi."},
		{"both", Options{IncludeTimestamps: true, IncludeSpeakers: true}, "[00:00] A: Hello there.\n[00:02] B: General Kenobi."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TXT(r, tt.opts); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTXT_EmptySegments(t *testing.T) {
	r := emptyResult()
	for _, opts := range []Options{{}, {IncludeTimestamps: true, IncludeSpeakers: true}} {
		if got := TXT(r, opts); got != r.Text {
			t.Errorf("TXT(%+v) = %q, want %q", opts, got, r.Text)
		}
	}
}

func TestSRT(t *testing.T) {
	r := twoSpeakerResult()

	want := "1\n00:00:00,000 --> 00:00:01,500\nHello there.\n" +
		"\n" +
		"2\n00:00:02,250 --> 00:00:04,500\nGeneral Kenobi.\n"
	if got := SRT(r, Options{}); got != want {
		t.Errorf("SRT without speakers:\n%q\nwant\n%q", got, want)
	}

	got := SRT(r, Options{IncludeSpeakers: true})
	if !strings.Contains(got, "\nA: Hello there.\n") || !strings.Contains(got, "\nB: General Kenobi.\n") {
		t.Errorf("SRT with speakers missing prefixes:\n%s", got)
	}
}

func TestSRT_EmptySegments(t *testing.T) {
	r := emptyResult()
	if got := SRT(r, Options{IncludeSpeakers: true}); got != r.Text {
		t.Errorf("got %q, want %q", got, r.Text)
	}
}

func TestVTT(t *testing.T) {
	r := twoSpeakerResult()
	want := "WEBVTT\n\n" +
		"00:00.000 --> 00:01.500\n<v A>Hello there.\n" +
		"\n" +
		"00:02.250 --> 00:04.500\n<v B>General Kenobi.\n"
	if got := VTT(r, Options{IncludeSpeakers: true}); got != want {
		t.Errorf("got\n%q\nwant\n%q", got, want)
	}
	if got := VTT(r, Options{}); strings.Contains(got, "<v ") {
		t.Errorf("voice tags rendered without speakers option:\n%s", got)
	}
}

func TestVTT_EmptySegments(t *testing.T) {
	want := "WEBVTT\n\n00:00.000 --> 01:01.500\njust text\n"
	if got := VTT(emptyResult(), Options{}); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJSON_ConditionalKeys(t *testing.T) {
	tests := []struct {
		name           string
		opts           Options
		wantSpeaker    bool
		wantConfidence bool
	}{
		{"none", Options{}, false, false},
		{"speakers", Options{IncludeSpeakers: true}, true, false},
		{"confidence", Options{IncludeConfidence: true}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := JSON(twoSpeakerResult(), tt.opts, fixedNow())
			if err != nil {
				t.Fatalf("JSON: %v", err)
			}
			var doc struct {
				Segments []map[string]json.RawMessage `json:"segments"`
			}
			if err := json.Unmarshal([]byte(content), &doc); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			for i, seg := range doc.Segments {
				for _, k := range []string{"id", "text", "startTime", "endTime"} {
					if _, ok := seg[k]; !ok {
						t.Errorf("segment %d missing %q", i, k)
					}
				}
				if _, ok := seg["speaker"]; ok != tt.wantSpeaker {
					t.Errorf("segment %d speaker present = %v, want %v", i, ok, tt.wantSpeaker)
				}
				_, hasConf := seg["confidence"]
				// segment-1 has no confidence so it is never rendered.
				if wantConf := tt.wantConfidence && i == 0; hasConf != wantConf {
					t.Errorf("segment %d confidence present = %v, want %v", i, hasConf, wantConf)
				}
				_, hasWords := seg["words"]
				if hasWords != (i == 0) {
					t.Errorf("segment %d words present = %v", i, hasWords)
				}
				if strings.Contains(string(seg["speaker"]), "null") {
					t.Errorf("segment %d has null speaker", i)
				}
			}
		})
	}
}

func TestJSON_Layout(t *testing.T) {
	content, err := JSON(twoSpeakerResult(), Options{IncludeTimestamps: true}, fixedNow())
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if strings.HasSuffix(content, "\n") {
		t.Error("trailing newline")
	}
	if !strings.HasPrefix(content, "{\n  \"text\": ") {
		t.Errorf("unexpected prefix: %q", content[:20])
	}

	order := []string{`"text"`, `"language"`, `"duration"`, `"segments"`, `"metadata"`}
	last := -1
	for _, k := range order {
		idx := strings.Index(content, k)
		if idx <= last {
			t.Fatalf("key %s out of order", k)
		}
		last = idx
	}

	var doc struct {
		Metadata struct {
			Filename      string `json:"filename"`
			Backend       string `json:"backend"`
			ExportedAt    string `json:"exportedAt"`
			ExportOptions struct {
				Format            string `json:"format"`
				IncludeTimestamps bool   `json:"includeTimestamps"`
			} `json:"exportOptions"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	md := doc.Metadata
	if md.Filename != "talk.mp3" || md.Backend != "assemblyai" {
		t.Errorf("original metadata lost: %+v", md)
	}
	if md.ExportedAt != "2024-03-01T09:30:00.000Z" {
		t.Errorf("exportedAt = %q", md.ExportedAt)
	}
	if md.ExportOptions.Format != "json" || !md.ExportOptions.IncludeTimestamps {
		t.Errorf("exportOptions = %+v", md.ExportOptions)
	}
}

func TestJSON_NoHTMLEscaping(t *testing.T) {
	r := &transcript.Result{Text: "a <b> & c", Segments: []transcript.Segment{}}
	content, err := JSON(r, Options{}, fixedNow())
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(content, `"a <b> & c"`) {
		t.Errorf("text was escaped: %s", content)
	}
	if !strings.Contains(content, `"segments": []`) {
		t.Errorf("empty segments should render as []: %s", content)
	}
}

func TestExport_Deterministic(t *testing.T) {
	e := Exporter{Now: fixedNow}
	for _, f := range Formats {
		a, err := e.Export(twoSpeakerResult(), f, Options{IncludeSpeakers: true, IncludeConfidence: true}, "x.wav")
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		b, _ := e.Export(twoSpeakerResult(), f, Options{IncludeSpeakers: true, IncludeConfidence: true}, "x.wav")
		if a.Content != b.Content {
			t.Errorf("%s output differs between runs", f)
		}
	}
}
