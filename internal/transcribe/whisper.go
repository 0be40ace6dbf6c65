package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/snarg/transcriptor/internal/transcript"
)

// WhisperConfig configures the OpenAI Whisper backend.
type WhisperConfig struct {
	APIKey     string
	BaseURL    string // empty = api.openai.com
	Timeout    time.Duration
	MaxRetries int
}

var whisperInfo = Capabilities{
	ID:               "whisper",
	Name:             "OpenAI Whisper",
	Description:      "High-quality transcription using OpenAI Whisper API",
	MaxFileSize:      25 * 1024 * 1024,
	MaxDuration:      30 * 60,
	SupportedFormats: []string{"mp3", "mp4", "m4a", "wav", "webm", "flac", "ogg"},
	Features: Features{
		WordTimestamps:    true,
		Diarization:       false,
		Translation:       true,
		LanguageDetection: true,
	},
}

// Whisper transcribes through the OpenAI audio API. Segments come back from
// the provider already formed and are mapped without regrouping.
type Whisper struct {
	client openai.Client
}

// NewWhisper builds the backend. It fails with ErrNotConfigured when no API
// key is set and never touches the network.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, notConfigured("OpenAI")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &Whisper{client: openai.NewClient(opts...)}, nil
}

func (w *Whisper) Info() Capabilities { return whisperInfo }

// verboseTranscription is the verbose_json body shared by the transcription
// and translation endpoints.
type verboseTranscription struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []verboseSegment `json:"segments"`
	Words    []verboseWord    `json:"words"`
}

type verboseSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []verboseWord `json:"words"`
}

type verboseWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (w *Whisper) Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error) {
	if err := checkFile(whisperInfo, audio); err != nil {
		return nil, err
	}

	start := time.Now()
	report(progress, 10)

	file := openai.File(bytes.NewReader(audio.Data), uploadName(audio, "audio.wav"), audio.ContentType)
	report(progress, 30)

	translate := settings.EnableTranslation && settings.Language != "en"
	report(progress, 50)

	var raw string
	if translate {
		resp, err := w.client.Audio.Translations.New(ctx, openai.AudioTranslationNewParams{
			File:           file,
			Model:          openai.AudioModelWhisper1,
			ResponseFormat: openai.AudioTranslationNewParamsResponseFormatVerboseJSON,
		})
		if err != nil {
			return nil, failed(err)
		}
		raw = resp.RawJSON()
	} else {
		params := openai.AudioTranscriptionNewParams{
			File:                   file,
			Model:                  openai.AudioModelWhisper1,
			ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
			TimestampGranularities: []string{"segment"},
		}
		if settings.EnableWordTimestamps {
			params.TimestampGranularities = []string{"word", "segment"}
		}
		if specificLanguage(settings) {
			params.Language = openai.String(settings.Language)
		}
		resp, err := w.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return nil, failed(err)
		}
		raw = resp.RawJSON()
	}
	report(progress, 80)

	var vt verboseTranscription
	if err := json.Unmarshal([]byte(raw), &vt); err != nil {
		return nil, failed(fmt.Errorf("decode response: %w", err))
	}

	result := &transcript.Result{
		ID:         newResultID(),
		Text:       vt.Text,
		Segments:   whisperSegments(vt, settings.EnableWordTimestamps),
		Language:   languageOr(vt.Language, settings.Language),
		Confidence: 1.0,
		Duration:   vt.Duration,
		Metadata: transcript.Metadata{
			Filename:       uploadName(audio, "audio.wav"),
			FileSize:       audio.Size(),
			ProcessingTime: time.Since(start).Milliseconds(),
			Backend:        whisperInfo.ID,
			Features:       features(settings.EnableWordTimestamps, false, translate),
		},
	}
	report(progress, 100)
	return result, nil
}

// whisperSegments maps provider segments one-to-one. Whisper reports no
// confidence, so every segment and word gets 1.0. Words sit either inside
// each segment or at the top level, in which case they are placed into the
// segment whose span contains their start.
func whisperSegments(vt verboseTranscription, withWords bool) []transcript.Segment {
	segments := make([]transcript.Segment, len(vt.Segments))
	next := 0
	for i, s := range vt.Segments {
		seg := transcript.Segment{
			ID:         fmt.Sprintf("segment-%d", i),
			Text:       strings.TrimSpace(s.Text),
			StartTime:  s.Start,
			EndTime:    s.End,
			Confidence: transcript.Float(1.0),
		}
		if withWords {
			words := s.Words
			if len(words) == 0 {
				for next < len(vt.Words) && vt.Words[next].Start < s.End {
					if vt.Words[next].Start >= s.Start {
						words = append(words, vt.Words[next])
					}
					next++
				}
			}
			seg.Words = make([]transcript.WordTimestamp, len(words))
			for j, w := range words {
				seg.Words[j] = transcript.WordTimestamp{
					Word:       strings.TrimSpace(w.Word),
					StartTime:  w.Start,
					EndTime:    w.End,
					Confidence: transcript.Float(1.0),
				}
			}
		}
		segments[i] = seg
	}
	return segments
}

// uploadName is the filename sent to a provider.
func uploadName(a Audio, fallback string) string {
	if a.Filename != "" {
		return a.Filename
	}
	return fallback
}
