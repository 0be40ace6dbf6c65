package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/transcript"
)

// WhisperServerConfig configures a self-hosted OpenAI-compatible Whisper
// endpoint (speaches, whisper.cpp server, faster-whisper-server).
type WhisperServerConfig struct {
	URL         string // full /v1/audio/transcriptions URL
	Model       string
	Timeout     time.Duration
	Temperature float64
	Prompt      string // initial_prompt / domain vocabulary
	Hotwords    string // vocabulary boost terms
	BeamSize    int    // 0 = server default
	VadFilter   bool
	Preprocess  bool // run sox cleanup before upload
	Log         zerolog.Logger
}

var whisperServerInfo = Capabilities{
	ID:               "whisper-server",
	Name:             "Self-hosted Whisper",
	Description:      "OpenAI-compatible Whisper server running on your own hardware",
	MaxFileSize:      500 * 1024 * 1024,
	MaxDuration:      4 * 60 * 60,
	SupportedFormats: []string{"mp3", "mp4", "m4a", "wav", "webm", "flac", "ogg", "aac", "mpeg"},
	Features: Features{
		WordTimestamps:    true,
		Diarization:       false,
		Translation:       false,
		LanguageDetection: true,
	},
}

// WhisperServer calls a self-hosted /v1/audio/transcriptions endpoint with a
// hand-built multipart form. Only non-default parameters are sent, so it
// works with servers that reject unknown fields.
type WhisperServer struct {
	cfg    WhisperServerConfig
	client *http.Client
}

// NewWhisperServer builds the backend. No credential is needed, only a URL.
func NewWhisperServer(cfg WhisperServerConfig) (*WhisperServer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("whisper server URL not configured")
	}
	return &WhisperServer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (ws *WhisperServer) Info() Capabilities { return whisperServerInfo }

// whisperServerResponse is the verbose_json body of the server.
type whisperServerResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Duration float64                `json:"duration"`
	Words    []verboseWord          `json:"words"`
	Segments []whisperServerSegment `json:"segments"`
}

type whisperServerSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (ws *WhisperServer) Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error) {
	if err := checkFile(whisperServerInfo, audio); err != nil {
		return nil, err
	}

	start := time.Now()
	report(progress, 10)

	data, name := audio.Data, uploadName(audio, "audio.wav")
	if ws.cfg.Preprocess {
		if cleaned, err := ws.preprocess(ctx, audio); err != nil {
			ws.cfg.Log.Warn().Err(err).Msg("preprocessing failed, using original audio")
		} else {
			data, name = cleaned, strings.TrimSuffix(name, filepath.Ext(name))+".wav"
		}
	}
	report(progress, 30)

	resp, err := ws.post(ctx, data, name, settings)
	if err != nil {
		return nil, failed(err)
	}
	report(progress, 80)

	var segments []transcript.Segment
	if len(resp.Words) > 0 {
		words := make([]transcript.SpeakerWord, len(resp.Words))
		for i, w := range resp.Words {
			words[i] = transcript.SpeakerWord{WordTimestamp: transcript.WordTimestamp{
				Word:      w.Word,
				StartTime: w.Start,
				EndTime:   w.End,
			}}
		}
		segments = transcript.GroupWords(words)
		restorePunctuation(segments, resp.Text)
		if !settings.EnableWordTimestamps {
			for i := range segments {
				segments[i].Words = nil
			}
		}
	} else {
		segments = make([]transcript.Segment, len(resp.Segments))
		for i, s := range resp.Segments {
			segments[i] = transcript.Segment{
				ID:        fmt.Sprintf("segment-%d", i),
				Text:      strings.TrimSpace(s.Text),
				StartTime: s.Start,
				EndTime:   s.End,
			}
		}
	}
	report(progress, 95)

	result := &transcript.Result{
		ID:         newResultID(),
		Text:       strings.TrimSpace(resp.Text),
		Segments:   segments,
		Language:   languageOr(resp.Language, settings.Language),
		Confidence: 1.0,
		Duration:   resp.Duration,
		Metadata: transcript.Metadata{
			Filename:       uploadName(audio, "audio.wav"),
			FileSize:       audio.Size(),
			ProcessingTime: time.Since(start).Milliseconds(),
			Backend:        whisperServerInfo.ID,
			Features:       features(settings.EnableWordTimestamps && len(resp.Words) > 0, false, false),
		},
	}
	report(progress, 100)
	return result, nil
}

func (ws *WhisperServer) post(ctx context.Context, data []byte, name string, settings transcript.Settings) (*whisperServerResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if ws.cfg.Model != "" {
		w.WriteField("model", ws.cfg.Model)
	}
	if specificLanguage(settings) {
		w.WriteField("language", settings.Language)
	}
	w.WriteField("temperature", fmt.Sprintf("%.2f", ws.cfg.Temperature))
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "word")
	w.WriteField("timestamp_granularities[]", "segment")

	if ws.cfg.Prompt != "" {
		w.WriteField("prompt", ws.cfg.Prompt)
	}
	if ws.cfg.Hotwords != "" {
		w.WriteField("hotwords", ws.cfg.Hotwords)
	}
	if ws.cfg.BeamSize > 0 {
		w.WriteField("beam_size", fmt.Sprintf("%d", ws.cfg.BeamSize))
	}
	if ws.cfg.VadFilter {
		w.WriteField("vad_filter", "true")
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := ws.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result whisperServerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// preprocess round-trips the audio through sox via temp files.
func (ws *WhisperServer) preprocess(ctx context.Context, audio Audio) ([]byte, error) {
	in, err := os.CreateTemp("", "transcriptor-in-*"+filepath.Ext(uploadName(audio, "audio.wav")))
	if err != nil {
		return nil, err
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(audio.Data); err != nil {
		in.Close()
		return nil, err
	}
	in.Close()

	out, cleanup, err := Preprocess(ctx, in.Name())
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if out == in.Name() {
		return audio.Data, nil
	}
	return os.ReadFile(out)
}
