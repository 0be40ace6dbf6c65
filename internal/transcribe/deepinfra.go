package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraConfig configures the DeepInfra Whisper backend.
type DeepInfraConfig struct {
	APIKey  string
	Model   string // e.g. "openai/whisper-large-v3-turbo"
	BaseURL string // empty = public API
	Timeout time.Duration
}

var deepInfraInfo = Capabilities{
	ID:               "deepinfra",
	Name:             "DeepInfra Whisper",
	Description:      "Hosted Whisper large-v3 inference on DeepInfra",
	MaxFileSize:      100 * 1024 * 1024,
	MaxDuration:      2 * 60 * 60,
	SupportedFormats: []string{"mp3", "mp4", "m4a", "wav", "webm", "flac", "ogg", "mpeg"},
	Features: Features{
		WordTimestamps:    true,
		Diarization:       false,
		Translation:       false,
		LanguageDetection: true,
	},
}

// DeepInfra calls DeepInfra's native inference API for Whisper models.
// Segments come back formed and are mapped directly.
type DeepInfra struct {
	cfg    DeepInfraConfig
	client *http.Client
}

// NewDeepInfra builds the backend, failing with ErrNotConfigured without an
// API key.
func NewDeepInfra(cfg DeepInfraConfig) (*DeepInfra, error) {
	if cfg.APIKey == "" {
		return nil, notConfigured("DeepInfra")
	}
	if cfg.Model == "" {
		cfg.Model = "openai/whisper-large-v3-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = deepInfraBaseURL
	}
	return &DeepInfra{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (di *DeepInfra) Info() Capabilities { return deepInfraInfo }

// deepInfraResponse is the JSON response from the DeepInfra inference API.
type deepInfraResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Words    []deepInfraWord    `json:"words"`
	Segments []deepInfraSegment `json:"segments"`
}

// deepInfraWord is a word with timestamps from DeepInfra.
// DeepInfra uses "text" for the word field, not "word" like OpenAI.
type deepInfraWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type deepInfraSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (di *DeepInfra) Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error) {
	if err := checkFile(deepInfraInfo, audio); err != nil {
		return nil, err
	}

	start := time.Now()
	report(progress, 10)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// DeepInfra uses "audio", not "file"
	part, err := w.CreateFormFile("audio", uploadName(audio, "audio"))
	if err != nil {
		return nil, failed(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, failed(fmt.Errorf("copy audio data: %w", err))
	}
	if specificLanguage(settings) {
		w.WriteField("language", settings.Language)
	}
	w.Close()
	report(progress, 30)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, di.cfg.BaseURL+di.cfg.Model, &buf)
	if err != nil {
		return nil, failed(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+di.cfg.APIKey)

	resp, err := di.client.Do(req)
	if err != nil {
		return nil, failed(fmt.Errorf("deepinfra request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failed(fmt.Errorf("deepinfra API error (status %d): %s", resp.StatusCode, string(body)))
	}
	report(progress, 80)

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, failed(fmt.Errorf("decode response: %w", err))
	}

	var segments []transcript.Segment
	if len(result.Segments) > 0 {
		segments = deepInfraSegments(result, settings.EnableWordTimestamps)
	} else {
		words := make([]transcript.SpeakerWord, len(result.Words))
		for i, dw := range result.Words {
			words[i] = transcript.SpeakerWord{WordTimestamp: transcript.WordTimestamp{
				Word: dw.Text, StartTime: dw.Start, EndTime: dw.End,
			}}
		}
		segments = transcript.GroupWords(words)
		restorePunctuation(segments, result.Text)
		if !settings.EnableWordTimestamps {
			for i := range segments {
				segments[i].Words = nil
			}
		}
	}
	report(progress, 95)

	out := &transcript.Result{
		ID:         newResultID(),
		Text:       strings.TrimSpace(result.Text),
		Segments:   segments,
		Language:   languageOr(result.Language, settings.Language),
		Confidence: 1.0,
		Duration:   result.Duration,
		Metadata: transcript.Metadata{
			Filename:       uploadName(audio, "audio"),
			FileSize:       audio.Size(),
			ProcessingTime: time.Since(start).Milliseconds(),
			Backend:        deepInfraInfo.ID,
			Features:       features(settings.EnableWordTimestamps, false, false),
		},
	}
	report(progress, 100)
	return out, nil
}

// deepInfraSegments maps provider segments one-to-one. With word timestamps
// requested, each segment gets the provider words inside its span, or when
// there are none, words interpolated evenly across the segment.
func deepInfraSegments(r deepInfraResponse, withWords bool) []transcript.Segment {
	segments := make([]transcript.Segment, len(r.Segments))
	next := 0
	for i, s := range r.Segments {
		seg := transcript.Segment{
			ID:        fmt.Sprintf("segment-%d", i),
			Text:      strings.TrimSpace(s.Text),
			StartTime: s.Start,
			EndTime:   s.End,
		}
		if withWords {
			for next < len(r.Words) && r.Words[next].Start < s.End {
				if w := r.Words[next]; w.Start >= s.Start {
					seg.Words = append(seg.Words, transcript.WordTimestamp{
						Word: strings.TrimSpace(w.Text), StartTime: w.Start, EndTime: w.End,
					})
				}
				next++
			}
			if len(r.Words) == 0 {
				seg.Words = wordsFromSegment(s)
			}
		}
		segments[i] = seg
	}
	return segments
}

// wordsFromSegment synthesizes word-level entries from a segment. The text is
// split into words and timestamps are interpolated evenly across the span.
func wordsFromSegment(seg deepInfraSegment) []transcript.WordTimestamp {
	tokens := strings.Fields(seg.Text)
	if len(tokens) == 0 {
		return nil
	}
	wordDur := (seg.End - seg.Start) / float64(len(tokens))
	words := make([]transcript.WordTimestamp, len(tokens))
	for i, tok := range tokens {
		words[i] = transcript.WordTimestamp{
			Word:      tok,
			StartTime: seg.Start + float64(i)*wordDur,
			EndTime:   seg.Start + float64(i+1)*wordDur,
		}
	}
	return words
}
