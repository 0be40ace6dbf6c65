package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/transcriptor/internal/config"
	"github.com/snarg/transcriptor/internal/transcribe"
)

// FeatureFlags are the global switches reported by health and applied to
// every transcription request.
type FeatureFlags struct {
	EnableWhisperBackend       bool `json:"enableWhisperBackend"`
	EnableAssemblyAIBackend    bool `json:"enableAssemblyAIBackend"`
	EnableElevenLabsBackend    bool `json:"enableElevenLabsBackend"`
	EnableDeepInfraBackend     bool `json:"enableDeepInfraBackend"`
	EnableWhisperServerBackend bool `json:"enableWhisperServerBackend"`
	EnableDiarization          bool `json:"enableDiarization"`
	EnableTranslation          bool `json:"enableTranslation"`
	EnableWordTimestamps       bool `json:"enableWordTimestamps"`
}

func FeatureFlagsFrom(cfg *config.Config) FeatureFlags {
	return FeatureFlags{
		EnableWhisperBackend:       cfg.EnableWhisper,
		EnableAssemblyAIBackend:    cfg.EnableAssemblyAI,
		EnableElevenLabsBackend:    cfg.EnableElevenLabs,
		EnableDeepInfraBackend:     cfg.EnableDeepInfra,
		EnableWhisperServerBackend: cfg.EnableWhisperServer,
		EnableDiarization:          cfg.EnableDiarization,
		EnableTranslation:          cfg.EnableTranslation,
		EnableWordTimestamps:       true,
	}
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Backends      BackendSummary    `json:"backends"`
	Features      FeatureFlags      `json:"features"`
	Limits        Limits            `json:"limits"`
	Services      map[string]any    `json:"services"`
	Checks        map[string]string `json:"checks"`
}

type BackendSummary struct {
	Available  int                 `json:"available"`
	Configured []ConfiguredBackend `json:"configured"`
}

type ConfiguredBackend struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Features transcribe.Features `json:"features"`
}

type Limits struct {
	MaxFileSize     int `json:"maxFileSize"` // MB
	MaxFilesPerHour int `json:"maxFilesPerHour"`
	MaxDuration     int `json:"maxDuration"` // minutes
}

type HealthHandler struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

func NewHealthHandler(cfg *config.Config, deps Deps) *HealthHandler {
	return &HealthHandler{cfg: cfg, deps: deps, now: time.Now}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	backends := h.deps.Backends.Available()
	if len(backends) == 0 {
		status = "degraded"
	}
	summary := BackendSummary{Available: len(backends), Configured: make([]ConfiguredBackend, 0, len(backends))}
	for _, b := range backends {
		info := b.Info()
		summary.Configured = append(summary.Configured, ConfiguredBackend{ID: info.ID, Name: info.Name, Features: info.Features})
	}

	// Database check
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.deps.DB.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	// MQTT check
	if h.deps.MQTT != nil {
		if h.deps.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Watch folder check
	if h.deps.Watcher != nil {
		checks["watcher"] = h.deps.Watcher.Status().Status
	} else {
		checks["watcher"] = "not_configured"
	}

	services := map[string]any{
		"openai":        h.cfg.OpenAIAPIKey != "",
		"assemblyai":    h.cfg.AssemblyAIAPIKey != "",
		"elevenlabs":    h.cfg.ElevenLabsAPIKey != "",
		"deepinfra":     h.cfg.DeepInfraAPIKey != "",
		"whisperServer": h.cfg.WhisperURL != "",
	}
	if h.deps.Uploads != nil {
		services["storage"] = h.deps.Uploads.Type()
	}

	now := h.now()
	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Timestamp:     now.UTC().Format(time.RFC3339Nano),
		Version:       h.deps.Version,
		UptimeSeconds: int64(now.Sub(h.deps.StartTime).Seconds()),
		Backends:      summary,
		Features:      FeatureFlagsFrom(h.cfg),
		Limits: Limits{
			MaxFileSize:     h.cfg.MaxFileSizeMB,
			MaxFilesPerHour: h.cfg.MaxFilesPerHour,
			MaxDuration:     h.cfg.MaxDurationMinutes,
		},
		Services: services,
		Checks:   checks,
	})
}
