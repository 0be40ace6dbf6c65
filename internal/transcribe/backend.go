// Package transcribe adapts third-party speech-to-text providers to the
// canonical transcript model and keeps the registry of usable backends.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/snarg/transcriptor/internal/transcript"
)

// Backend is one transcription provider.
type Backend interface {
	Info() Capabilities
	Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error)
}

// Capabilities describe a backend to clients choosing one.
type Capabilities struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	MaxFileSize      int64    `json:"maxFileSize"` // bytes
	MaxDuration      int      `json:"maxDuration"` // seconds
	SupportedFormats []string `json:"supportedFormats"`
	Features         Features `json:"features"`
}

// Features are the optional abilities of a backend.
type Features struct {
	WordTimestamps    bool `json:"wordTimestamps"`
	Diarization       bool `json:"diarization"`
	Translation       bool `json:"translation"`
	LanguageDetection bool `json:"languageDetection"`
}

// Audio is an in-memory audio file handed to a backend.
type Audio struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Size returns the audio length in bytes.
func (a Audio) Size() int64 { return int64(len(a.Data)) }

var (
	// ErrNotConfigured means a backend is missing its credential. The message
	// carries the "API key" marker that callers map to 503.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrTimeout means polling a provider exceeded its attempt ceiling.
	ErrTimeout = errors.New("transcription timed out")
)

// FileError rejects audio a backend cannot accept.
type FileError struct {
	Msg string
}

func (e *FileError) Error() string { return e.Msg }

// notConfigured returns ErrNotConfigured prefixed with the provider name.
func notConfigured(provider string) error {
	return fmt.Errorf("%s %w", provider, ErrNotConfigured)
}

// failed wraps a provider or timeout error the way every backend reports it.
func failed(err error) error {
	return fmt.Errorf("transcription failed: %w", err)
}

// checkFile enforces the backend's size limit and format list.
func checkFile(c Capabilities, a Audio) error {
	if a.Size() > c.MaxFileSize {
		return &FileError{Msg: fmt.Sprintf("file size exceeds maximum limit of %dMB",
			int64(math.Round(float64(c.MaxFileSize)/(1024*1024))))}
	}
	fileType := strings.ToLower(a.ContentType)
	for _, f := range c.SupportedFormats {
		if strings.Contains(fileType, strings.ToLower(f)) {
			return nil
		}
	}
	return &FileError{Msg: fmt.Sprintf("file type %s is not supported. Supported formats: %s",
		fileType, strings.Join(c.SupportedFormats, ", "))}
}

// Progress observes transcription progress as a percentage.
type Progress interface {
	Report(percent float64)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(percent float64)

func (f ProgressFunc) Report(percent float64) { f(percent) }

// ChannelProgress delivers progress on a channel, dropping values the
// receiver is not ready for.
type ChannelProgress chan<- float64

func (c ChannelProgress) Report(percent float64) {
	select {
	case c <- percent:
	default:
	}
}

// report notifies p, swallowing any panic from the observer.
func report(p Progress, percent float64) {
	if p == nil {
		return
	}
	defer func() { _ = recover() }()
	p.Report(percent)
}

// newResultID returns a fresh result identifier.
func newResultID() string { return uuid.NewString() }

// features builds the feature tag list recorded on a result.
func features(words, diarization, translation bool) []string {
	out := []string{transcript.FeatureTranscription}
	if words {
		out = append(out, transcript.FeatureWordTimestamps)
	}
	if diarization {
		out = append(out, transcript.FeatureDiarization)
	}
	if translation {
		out = append(out, transcript.FeatureTranslation)
	}
	return out
}

// languageOr returns lang unless it is empty or auto, in which case fallback.
func languageOr(lang, fallback string) string {
	if lang != "" {
		return lang
	}
	if fallback != "" && fallback != transcript.AutoLanguage {
		return fallback
	}
	return "en"
}

// specificLanguage reports whether the user picked a language instead of
// asking for detection.
func specificLanguage(s transcript.Settings) bool {
	return s.Language != "" && s.Language != transcript.AutoLanguage
}
