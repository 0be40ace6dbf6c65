package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsConfig configures the ElevenLabs Scribe backend.
type ElevenLabsConfig struct {
	APIKey   string
	Model    string // "scribe_v1" or "scribe_v2"
	Keyterms string // comma-separated boost terms
	Endpoint string // empty = public API
	Timeout  time.Duration
}

var elevenLabsInfo = Capabilities{
	ID:               "elevenlabs",
	Name:             "ElevenLabs Scribe",
	Description:      "Speech-to-text with word timing and speaker diarization from ElevenLabs",
	MaxFileSize:      1024 * 1024 * 1024,
	MaxDuration:      8 * 60 * 60,
	SupportedFormats: []string{"mp3", "mp4", "m4a", "wav", "webm", "flac", "ogg", "aac", "mpeg"},
	Features: Features{
		WordTimestamps:    true,
		Diarization:       true,
		Translation:       false,
		LanguageDetection: true,
	},
}

// ElevenLabs calls the ElevenLabs Speech-to-Text API. It returns only
// word-level timing, which is grouped into segments.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabs builds the backend, failing with ErrNotConfigured without an
// API key.
func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, notConfigured("ElevenLabs")
	}
	if cfg.Model == "" {
		cfg.Model = "scribe_v1"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = elevenLabsSTTEndpoint
	}
	return &ElevenLabs{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (el *ElevenLabs) Info() Capabilities { return elevenLabsInfo }

// elevenlabsResponse is the JSON response from the ElevenLabs STT API.
type elevenlabsResponse struct {
	LanguageCode        string           `json:"language_code"`
	LanguageProbability float64          `json:"language_probability"`
	Text                string           `json:"text"`
	Words               []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word, spacing or audio-event entry from ElevenLabs.
type elevenlabsWord struct {
	Text        string   `json:"text"`
	Type        string   `json:"type"` // "word", "spacing" or "audio_event"
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	StartTimeMs float64  `json:"start_time_ms"`
	EndTimeMs   float64  `json:"end_time_ms"`
	SpeakerID   string   `json:"speaker_id"`
	Logprob     *float64 `json:"logprob"`
}

// span returns the word's timing in seconds. Older responses carried
// millisecond fields instead of seconds.
func (w elevenlabsWord) span() (float64, float64) {
	if w.Start == 0 && w.End == 0 && (w.StartTimeMs > 0 || w.EndTimeMs > 0) {
		return w.StartTimeMs / 1000.0, w.EndTimeMs / 1000.0
	}
	return w.Start, w.End
}

func (el *ElevenLabs) Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error) {
	if err := checkFile(elevenLabsInfo, audio); err != nil {
		return nil, err
	}

	start := time.Now()
	report(progress, 10)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", uploadName(audio, "audio"))
	if err != nil {
		return nil, failed(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, failed(fmt.Errorf("copy audio data: %w", err))
	}

	w.WriteField("model_id", el.cfg.Model)
	if specificLanguage(settings) {
		w.WriteField("language_code", settings.Language)
	}
	w.WriteField("timestamps_granularity", "word")
	diarize := settings.EnableDiarization
	if diarize {
		w.WriteField("diarize", "true")
	}
	if keyterms := el.buildKeyterms(); keyterms != "" {
		w.WriteField("keyterms", keyterms)
	}
	w.Close()
	report(progress, 20)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.cfg.Endpoint, &buf)
	if err != nil {
		return nil, failed(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.cfg.APIKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, failed(fmt.Errorf("elevenlabs request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failed(fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(body)))
	}
	report(progress, 80)

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, failed(fmt.Errorf("decode response: %w", err))
	}

	// Spacing and audio-event entries carry no words.
	var words []transcript.SpeakerWord
	var confSum float64
	for _, ew := range result.Words {
		if ew.Type != "word" {
			continue
		}
		s, e := ew.span()
		word := transcript.SpeakerWord{WordTimestamp: transcript.WordTimestamp{
			Word:      ew.Text,
			StartTime: s,
			EndTime:   e,
		}}
		if ew.Logprob != nil {
			c := math.Min(1, math.Exp(*ew.Logprob))
			word.Confidence = transcript.Float(c)
			confSum += c
		}
		if diarize {
			word.Speaker = speakerLabel(ew.SpeakerID)
		}
		words = append(words, word)
	}
	segments := transcript.GroupWords(words)
	if !settings.EnableWordTimestamps {
		for i := range segments {
			segments[i].Words = nil
		}
	}
	report(progress, 95)

	var duration, confidence float64
	if n := len(words); n > 0 {
		duration = words[n-1].EndTime
		confidence = confSum / float64(n)
	}

	out := &transcript.Result{
		ID:         newResultID(),
		Text:       strings.TrimSpace(result.Text),
		Segments:   segments,
		Language:   languageOr(result.LanguageCode, settings.Language),
		Confidence: confidence,
		Duration:   duration,
		Metadata: transcript.Metadata{
			Filename:       uploadName(audio, "audio"),
			FileSize:       audio.Size(),
			ProcessingTime: time.Since(start).Milliseconds(),
			Backend:        elevenLabsInfo.ID,
			Features:       features(true, diarize, false),
		},
	}
	report(progress, 100)
	return out, nil
}

// speakerLabel turns provider ids like "speaker_1" into "Speaker 1".
func speakerLabel(id string) string {
	if id == "" {
		return ""
	}
	if n, ok := strings.CutPrefix(id, "speaker_"); ok {
		return "Speaker " + n
	}
	return "Speaker " + id
}

// buildKeyterms turns the comma-separated config string into the JSON array
// of {"text": "term"} objects the API expects.
func (el *ElevenLabs) buildKeyterms() string {
	type keyterm struct {
		Text string `json:"text"`
	}
	var terms []keyterm
	for _, t := range strings.Split(el.cfg.Keyterms, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, keyterm{Text: t})
		}
	}
	if len(terms) == 0 {
		return ""
	}
	b, _ := json.Marshal(terms)
	return string(b)
}
