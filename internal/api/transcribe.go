package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/transcript"
	"github.com/snarg/transcriptor/internal/validation"
)

// multipartMemory is how much of a form is kept in memory before spilling
// to temp files.
const multipartMemory = 32 << 20

// audioIntake reads the multipart form shared by synchronous and queued
// transcription: an "audio" file and a "settings" JSON field.
type audioIntake struct {
	maxSize int64
	flags   FeatureFlags
}

// read parses and validates the request. On failure it has already written
// the error response.
func (in audioIntake) read(w http.ResponseWriter, r *http.Request) (transcribe.Audio, transcript.Settings, bool) {
	var settings transcript.Settings

	// Headroom for the settings field and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, in.maxSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusBadRequest, validation.SizeLimitMessage(in.maxSize))
			return transcribe.Audio{}, settings, false
		}
		WriteError(w, http.StatusBadRequest, "No audio file provided")
		return transcribe.Audio{}, settings, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "No audio file provided")
		return transcribe.Audio{}, settings, false
	}
	defer file.Close()

	raw := r.FormValue("settings")
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "No transcription settings provided")
		return transcribe.Audio{}, settings, false
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid settings format")
		return transcribe.Audio{}, settings, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = validation.ContentTypeFor(header.Filename)
	}
	if res := validateAudioPart(header.Filename, header.Size, contentType, in.maxSize); !res.IsValid {
		WriteError(w, http.StatusBadRequest, res.Error)
		return transcribe.Audio{}, settings, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read audio file")
		return transcribe.Audio{}, settings, false
	}

	return transcribe.Audio{Data: data, Filename: header.Filename, ContentType: contentType}, in.apply(settings), true
}

// validateAudioPart runs the request checks, then the full file checks
// (MIME type, extension and filename characters).
func validateAudioPart(filename string, size int64, contentType string, maxSize int64) validation.Result {
	if res := validation.ValidateUploadRequest(validation.Blob{Size: size, Type: contentType}, filename, maxSize); !res.IsValid {
		return res
	}
	return validation.ValidateAudioFile(
		validation.File{Size: size, Type: contentType, Name: filename},
		validation.Options{MaxSize: maxSize, AllowedTypes: validation.AllowedAudioTypes},
	)
}

// apply switches off features disabled globally.
func (in audioIntake) apply(s transcript.Settings) transcript.Settings {
	if !in.flags.EnableDiarization {
		s.EnableDiarization = false
	}
	if !in.flags.EnableTranslation {
		s.EnableTranslation = false
	}
	return s
}

type TranscribeHandler struct {
	backends Backends
	intake   audioIntake
	log      zerolog.Logger
}

func NewTranscribeHandler(backends Backends, intake audioIntake, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		backends: backends,
		intake:   intake,
		log:      log.With().Str("handler", "transcribe").Logger(),
	}
}

// Routes registers the backend listing. POST /transcribe is registered by
// the server under its own rate limit.
func (h *TranscribeHandler) Routes(r chi.Router) {
	r.Get("/backends", h.ListBackends)
	r.Get("/transcribe", h.ListBackends)
}

// ListBackends returns the capability descriptors of every available backend.
func (h *TranscribeHandler) ListBackends(w http.ResponseWriter, r *http.Request) {
	available := h.backends.Available()
	caps := make([]transcribe.Capabilities, 0, len(available))
	for _, b := range available {
		caps = append(caps, b.Info())
	}
	WriteJSON(w, http.StatusOK, map[string]any{"backends": caps})
}

// Transcribe runs a transcription within the request and returns the result.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, settings, ok := h.intake.read(w, r)
	if !ok {
		return
	}

	backend, err := h.backends.Resolve(settings)
	if err != nil {
		writeTranscribeError(w, r, settings.Backend, err)
		return
	}

	id := backend.Info().ID
	result, err := backend.Transcribe(r.Context(), audio, settings, transcribe.ProgressFunc(func(p float64) {
		h.log.Debug().Str("backend", id).Float64("progress", p).Msg("transcription progress")
	}))
	if err != nil {
		writeTranscribeError(w, r, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}
