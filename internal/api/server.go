package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/config"
	"github.com/snarg/transcriptor/internal/events"
	"github.com/snarg/transcriptor/internal/export"
	"github.com/snarg/transcriptor/internal/ingest"
	"github.com/snarg/transcriptor/internal/metrics"
	"github.com/snarg/transcriptor/internal/storage"
	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/transcript"
)

// Backends is the backend registry as the HTTP layer uses it.
// *transcribe.Registry satisfies it.
type Backends interface {
	Available() []transcribe.Backend
	Resolve(transcript.Settings) (transcribe.Backend, error)
}

// JobService runs asynchronous jobs. *jobs.Manager satisfies it.
type JobService interface {
	Submit(transcribe.Audio, transcript.Settings) (*transcript.Job, error)
	Get(id string) (*transcript.Job, error)
	List() []*transcript.Job
	Remaining(id string, now time.Time) string
	Cancel(id string) (*transcript.Job, error)
	Delete(id string) error
	EditSegment(id, segmentID, text string) (*transcript.Job, error)
}

// EventSource streams job events. *events.Bus satisfies it.
type EventSource interface {
	Subscribe(events.Filter) (<-chan events.Event, func())
	ReplaySince(lastEventID string, filter events.Filter) []events.Event
}

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionChecker is a client with a live connection state.
type ConnectionChecker interface {
	IsConnected() bool
}

// WatcherStatusSource reports the watch folder state.
type WatcherStatusSource interface {
	Status() ingest.WatcherStatus
}

// Deps are the services behind the HTTP API. DB, MQTT and Watcher are nil
// when not configured.
type Deps struct {
	Backends  Backends
	Jobs      JobService
	Events    EventSource
	Uploads   storage.Store
	DB        HealthChecker
	MQTT      ConnectionChecker
	Watcher   WatcherStatusSource
	Version   string
	StartTime time.Time
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg, deps, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter builds the full route tree.
func NewRouter(cfg *config.Config, deps Deps, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(SecurityHeaders)
	r.Use(CORSWithOrigins(cfg.Origins()))

	r.Handle("/metrics", promhttp.Handler())

	flags := FeatureFlagsFrom(cfg)
	intake := audioIntake{maxSize: cfg.MaxFileSize(), flags: flags}

	health := NewHealthHandler(cfg, deps)
	transcribeH := NewTranscribeHandler(deps.Backends, intake, log)
	jobsH := NewJobsHandler(deps.Jobs, deps.Events, intake, cfg.Origins(), log)
	eventsH := NewEventsHandler(deps.Events)
	exportH := NewExportHandler(export.Exporter{})
	uploadH := NewUploadHandler(deps.Uploads, cfg.MaxFileSize(), log)

	general := NewRateLimit(BucketGeneral, cfg.RequestsPerMinute, time.Minute)
	transcribeLimit := NewRateLimit(BucketTranscribe, cfg.MaxFilesPerHour, time.Hour)
	uploadLimit := NewRateLimit(BucketUpload, cfg.MaxUploadsPerHour, time.Hour)
	auth := BearerAuth(cfg.AuthToken)

	r.Route("/api/v1", func(r chi.Router) {
		// Health is public
		r.With(general.Middleware).Get("/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(transcribeLimit.Middleware, auth)
			r.Post("/transcribe", transcribeH.Transcribe)
			r.Post("/jobs", jobsH.Create)
		})

		r.Group(func(r chi.Router) {
			r.Use(uploadLimit.Middleware, auth)
			uploadH.Routes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(general.Middleware, auth)
			transcribeH.Routes(r)
			jobsH.Routes(r)
			eventsH.Routes(r)
			exportH.Routes(r)
			uploadH.DownloadRoutes(r)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
