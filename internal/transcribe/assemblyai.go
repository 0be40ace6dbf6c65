package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

const assemblyAIBaseURL = "https://api.assemblyai.com"

// AssemblyAIConfig configures the AssemblyAI backend.
type AssemblyAIConfig struct {
	APIKey       string
	BaseURL      string        // empty = public API
	PollInterval time.Duration // default 5s
	MaxAttempts  int           // default 120
	Timeout      time.Duration // per HTTP request
}

var assemblyAIInfo = Capabilities{
	ID:               "assemblyai",
	Name:             "AssemblyAI",
	Description:      "Advanced AI transcription with speaker diarization and analysis",
	MaxFileSize:      100 * 1024 * 1024,
	MaxDuration:      4 * 60 * 60,
	SupportedFormats: []string{"mp3", "mp4", "m4a", "wav", "webm", "flac", "aac"},
	Features: Features{
		WordTimestamps:    true,
		Diarization:       true,
		Translation:       false,
		LanguageDetection: true,
	},
}

// AssemblyAI uploads audio, submits a transcript job and polls it until the
// provider finishes. Results are word-level only and get grouped.
type AssemblyAI struct {
	cfg    AssemblyAIConfig
	client *http.Client
}

// NewAssemblyAI builds the backend, failing with ErrNotConfigured without an
// API key.
func NewAssemblyAI(cfg AssemblyAIConfig) (*AssemblyAI, error) {
	if cfg.APIKey == "" {
		return nil, notConfigured("AssemblyAI")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = assemblyAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 120
	}
	return &AssemblyAI{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (a *AssemblyAI) Info() Capabilities { return assemblyAIInfo }

type assemblyAIUpload struct {
	UploadURL string `json:"upload_url"`
}

type assemblyAIRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
	LanguageCode      string `json:"language_code,omitempty"`
	SpeakerLabels     bool   `json:"speaker_labels,omitempty"`
}

type assemblyAITranscript struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"` // queued, processing, completed, error
	Text          string           `json:"text"`
	Error         string           `json:"error"`
	LanguageCode  string           `json:"language_code"`
	Confidence    float64          `json:"confidence"`
	AudioDuration float64          `json:"audio_duration"` // seconds
	Words         []assemblyAIWord `json:"words"`
}

type assemblyAIWord struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"` // ms
	End        float64 `json:"end"`   // ms
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker"`
}

func (a *AssemblyAI) Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error) {
	if err := checkFile(assemblyAIInfo, audio); err != nil {
		return nil, err
	}

	start := time.Now()
	report(progress, 5)

	var upload assemblyAIUpload
	if err := a.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", audio.Data, &upload); err != nil {
		return nil, failed(fmt.Errorf("upload: %w", err))
	}
	report(progress, 20)

	req := assemblyAIRequest{
		AudioURL:          upload.UploadURL,
		LanguageDetection: settings.Language == transcript.AutoLanguage,
		SpeakerLabels:     settings.EnableDiarization,
	}
	if specificLanguage(settings) {
		req.LanguageCode = mapAssemblyAILanguage(settings.Language)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, failed(err)
	}
	report(progress, 30)

	var job assemblyAITranscript
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", "application/json", body, &job); err != nil {
		return nil, failed(fmt.Errorf("submit: %w", err))
	}
	report(progress, 40)

	result, err := a.poll(ctx, job.ID, progress)
	if err != nil {
		return nil, failed(err)
	}
	report(progress, 95)

	words := make([]transcript.SpeakerWord, len(result.Words))
	for i, w := range result.Words {
		words[i] = transcript.SpeakerWord{
			WordTimestamp: transcript.WordTimestamp{
				Word:       w.Text,
				StartTime:  w.Start / 1000,
				EndTime:    w.End / 1000,
				Confidence: transcript.Float(w.Confidence),
			},
		}
		if w.Speaker != "" {
			words[i].Speaker = "Speaker " + w.Speaker
		}
	}

	out := &transcript.Result{
		ID:         newResultID(),
		Text:       result.Text,
		Segments:   transcript.GroupWords(words),
		Language:   languageOr(result.LanguageCode, settings.Language),
		Confidence: result.Confidence,
		Duration:   result.AudioDuration,
		Metadata: transcript.Metadata{
			Filename:       uploadName(audio, "audio"),
			FileSize:       audio.Size(),
			ProcessingTime: time.Since(start).Milliseconds(),
			Backend:        assemblyAIInfo.ID,
			Features:       features(true, settings.EnableDiarization, false),
		},
	}
	report(progress, 100)
	return out, nil
}

// poll fetches the transcript until it leaves the queued/processing states.
// After MaxAttempts sleeps it gives up with ErrTimeout.
func (a *AssemblyAI) poll(ctx context.Context, id string, progress Progress) (*assemblyAITranscript, error) {
	var t assemblyAITranscript
	if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+id, "", nil, &t); err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}

	attempts := 0
	for t.Status == "queued" || t.Status == "processing" {
		if attempts >= a.cfg.MaxAttempts {
			return nil, ErrTimeout
		}

		timer := time.NewTimer(a.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		t = assemblyAITranscript{}
		if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+id, "", nil, &t); err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		attempts++

		if t.Status == "processing" {
			report(progress, math.Min(40+float64(attempts)/float64(a.cfg.MaxAttempts)*50, 90))
		}
	}

	if t.Status == "error" {
		if t.Error == "" {
			return nil, errors.New("provider reported a failure without a message")
		}
		return nil, errors.New(t.Error)
	}
	return &t, nil
}

func (a *AssemblyAI) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("assemblyai request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("assemblyai API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var assemblyAILanguages = map[string]string{
	"en": "en_us",
	"es": "es",
	"fr": "fr",
	"de": "de",
	"it": "it",
	"pt": "pt",
	"ru": "ru",
	"ja": "ja",
	"ko": "ko",
	"zh": "zh",
}

// mapAssemblyAILanguage converts a UI language code to AssemblyAI's codes,
// defaulting to en_us for anything unknown.
func mapAssemblyAILanguage(lang string) string {
	if code, ok := assemblyAILanguages[lang]; ok {
		return code
	}
	return "en_us"
}
