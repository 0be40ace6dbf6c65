package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snarg/transcriptor/internal/export"
	"github.com/snarg/transcriptor/internal/metrics"
	"github.com/snarg/transcriptor/internal/transcript"
)

type ExportHandler struct {
	exporter export.Exporter
}

func NewExportHandler(e export.Exporter) *ExportHandler {
	return &ExportHandler{exporter: e}
}

func (h *ExportHandler) Routes(r chi.Router) {
	r.Post("/export", h.Export)
}

type exportRequest struct {
	Result   *transcript.Result `json:"result"`
	Format   string             `json:"format"`
	Options  export.Options     `json:"options"`
	Filename string             `json:"filename"`
}

// Export renders a client-supplied result as a file download.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Result == nil || req.Format == "" || req.Filename == "" {
		WriteError(w, http.StatusBadRequest, "Missing required fields: result, format, filename")
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Unsupported export format: "+req.Format)
		return
	}

	out, err := h.exporter.Export(req.Result, format, req.Options, req.Filename)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			WriteError(w, http.StatusBadRequest, "Unsupported export format: "+req.Format)
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to export transcript")
		return
	}
	writeExport(w, format, out)
}

// writeExport sends a rendered export as an attachment.
func writeExport(w http.ResponseWriter, format export.Format, out *export.Output) {
	metrics.ExportsTotal.WithLabelValues(string(format)).Inc()
	w.Header().Set("Content-Type", out.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out.Content))
}
