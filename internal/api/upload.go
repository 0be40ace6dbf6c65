package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/metrics"
	"github.com/snarg/transcriptor/internal/storage"
	"github.com/snarg/transcriptor/internal/validation"
)

// UploadHandler stores audio files ahead of transcription, whole or in chunks.
type UploadHandler struct {
	store   storage.Store
	maxSize int64
	now     func() time.Time
	log     zerolog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(store storage.Store, maxSize int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		store:   store,
		maxSize: maxSize,
		now:     time.Now,
		log:     log.With().Str("handler", "upload").Logger(),
	}
}

// Routes registers the upload endpoints.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Put("/upload", h.UploadChunk)
}

// DownloadRoutes registers the download endpoint for stored uploads.
func (h *UploadHandler) DownloadRoutes(r chi.Router) {
	r.Get("/uploads/{key}", h.Download)
}

// Upload handles POST /api/v1/upload with a multipart "file" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusBadRequest, validation.SizeLimitMessage(h.maxSize))
			return
		}
		WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = validation.ContentTypeFor(header.Filename)
	}
	if res := validateAudioPart(header.Filename, header.Size, contentType, h.maxSize); !res.IsValid {
		WriteError(w, http.StatusBadRequest, res.Error)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("read upload failed")
		WriteError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	key := storage.UploadKey(header.Filename, h.now())
	if err := h.store.Save(r.Context(), key, data, contentType); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("store upload failed")
		WriteError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	u, err := h.store.URL(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("upload url failed")
		WriteError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	metrics.UploadBytesTotal.Add(float64(len(data)))

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"url":      u,
		"filename": key,
		"size":     len(data),
	})
}

// UploadChunk handles PUT /api/v1/upload?chunk=&totalChunks=&uploadId=&filename=.
// The body is the raw chunk. The last chunk assembles the file.
func (h *UploadHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uploadID, filename := q.Get("uploadId"), q.Get("filename")
	if uploadID == "" || filename == "" {
		WriteError(w, http.StatusBadRequest, "Missing uploadId or filename")
		return
	}

	index, total := 0, 1
	var err error
	if v := q.Get("chunk"); v != "" {
		if index, err = strconv.Atoi(v); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid chunk parameters")
			return
		}
	}
	if v := q.Get("totalChunks"); v != "" {
		if total, err = strconv.Atoi(v); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid chunk parameters")
			return
		}
	}
	if index < 0 || total < 1 || total > storage.MaxChunks || index >= total {
		WriteError(w, http.StatusBadRequest, "Invalid chunk parameters")
		return
	}
	if !validation.HasAllowedExtension(filename) {
		WriteError(w, http.StatusBadRequest, validation.ExtensionMessage())
		return
	}

	chunkKey, err := storage.ChunkKey(uploadID, index)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid uploadId")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusBadRequest, validation.SizeLimitMessage(h.maxSize))
			return
		}
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("read chunk failed")
		WriteError(w, http.StatusInternalServerError, "Chunked upload failed")
		return
	}

	ctx := r.Context()
	if err := h.store.Save(ctx, chunkKey, data, "application/octet-stream"); err != nil {
		h.log.Error().Err(err).Str("key", chunkKey).Msg("store chunk failed")
		WriteError(w, http.StatusInternalServerError, "Chunked upload failed")
		return
	}
	metrics.UploadBytesTotal.Add(float64(len(data)))

	if index < total-1 {
		chunkURL, err := h.store.URL(ctx, chunkKey)
		if err != nil {
			h.log.Error().Err(err).Str("key", chunkKey).Msg("chunk url failed")
			WriteError(w, http.StatusInternalServerError, "Chunked upload failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"completed":  false,
			"chunkIndex": index,
			"chunkUrl":   chunkURL,
		})
		return
	}

	finalKey := storage.UploadKey(filename, h.now())
	size, err := storage.AssembleChunks(ctx, h.store, uploadID, total, finalKey, validation.ContentTypeFor(filename), h.maxSize)
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Int("total", total).Msg("chunk assembly failed")
		WriteError(w, http.StatusInternalServerError, "Chunked upload failed")
		return
	}
	u, err := h.store.URL(ctx, finalKey)
	if err != nil {
		h.log.Error().Err(err).Str("key", finalKey).Msg("upload url failed")
		WriteError(w, http.StatusInternalServerError, "Chunked upload failed")
		return
	}
	h.log.Info().Str("upload_id", uploadID).Str("key", finalKey).Int64("size", size).Msg("chunked upload completed")

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"completed": true,
		"url":       u,
		"filename":  finalKey,
		"size":      size,
		"message":   "Upload completed",
	})
}

// Download serves a stored upload.
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid upload key")
		return
	}
	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Upload not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", validation.ContentTypeFor(key))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}
