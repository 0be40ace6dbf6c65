package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/transcriptor/internal/api"
	"github.com/snarg/transcriptor/internal/config"
	"github.com/snarg/transcriptor/internal/database"
	"github.com/snarg/transcriptor/internal/events"
	"github.com/snarg/transcriptor/internal/ingest"
	"github.com/snarg/transcriptor/internal/jobs"
	"github.com/snarg/transcriptor/internal/metrics"
	"github.com/snarg/transcriptor/internal/mqttclient"
	"github.com/snarg/transcriptor/internal/storage"
	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/transcript"
)

var version = "dev"

const eventRingSize = 1000

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL URL for job persistence (overrides DATABASE_URL)")
	flag.StringVar(&overrides.UploadDir, "upload-dir", "", "upload directory (overrides UPLOAD_DIR)")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "folder to watch for audio files (overrides WATCH_DIR)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("transcriptor starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backends
	registry := transcribe.Initialize(backendConfig(cfg, log), log)
	log.Info().Strs("registered", registry.IDs()).Int("available", len(registry.Available())).Msg("backends initialized")
	if cfg.PreprocessAudio && !transcribe.CheckSox() {
		log.Warn().Msg("PREPROCESS_AUDIO is set but sox was not found; audio is sent unprocessed")
	}

	deps := api.Deps{
		Backends:  registry,
		Version:   version,
		StartTime: startTime,
	}

	// Database (optional)
	var store jobs.Store = jobs.NewMemoryStore()
	var db *database.DB
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		store = db
		deps.DB = db
	}

	// Events
	bus := events.NewBus(eventRingSize)
	deps.Events = bus

	// MQTT (optional)
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			QoS:         1,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		bus.AddSink(mqtt)
		deps.MQTT = mqtt
	}

	// Jobs
	manager := jobs.NewManager(jobs.Options{
		Resolver:   registry,
		Store:      store,
		Events:     bus,
		Workers:    cfg.TranscribeWorkers,
		QueueSize:  cfg.TranscribeQueueSize,
		JobTimeout: cfg.JobTimeout,
		Log:        log.With().Str("component", "jobs").Logger(),
	})
	if err := manager.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore jobs")
	}
	manager.Start()
	defer manager.Stop()
	deps.Jobs = manager

	if mqtt != nil {
		mqtt.SetCancelHandler(func(jobID string) {
			if _, err := manager.Cancel(jobID); err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Msg("mqtt cancel rejected")
			}
		})
	}

	// Upload storage
	uploads, err := storage.New(cfg.S3, cfg.UploadDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload storage")
	}
	deps.Uploads = uploads
	if p, ok := uploads.(storage.Pruner); ok && cfg.UploadRetention > 0 {
		pruner := storage.NewRetentionPruner(p, cfg.UploadRetention, log.With().Str("component", "pruner").Logger())
		pruner.Start()
		defer pruner.Stop()
	}

	// Watch folder (optional)
	if cfg.WatchDir != "" {
		watcher := ingest.NewFolderWatcher(ingest.Options{
			Dir:     cfg.WatchDir,
			MaxSize: cfg.MaxFileSize(),
			Settings: transcript.Settings{
				Backend:  cfg.WatchBackend,
				Language: cfg.WatchLanguage,
			},
			Submitter: manager,
			Log:       log.With().Str("component", "watcher").Logger(),
		})
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start watch folder")
		}
		defer watcher.Stop()
		deps.Watcher = watcher
	}

	// Metrics
	var collector *metrics.Collector
	if db != nil {
		collector = metrics.NewCollector(db.Pool, manager)
	} else {
		collector = metrics.NewCollector(nil, manager)
	}
	prometheus.MustRegister(collector)

	// HTTP Server
	srv := api.NewServer(cfg, deps, log.With().Str("component", "http").Logger())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	if db != nil && cfg.JobRetention > 0 {
		g.Go(func() error {
			db.RunMaintenance(gctx, cfg.JobRetention, time.Hour)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")

		// Graceful shutdown with 10s timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("http server error")
	}

	log.Info().Msg("transcriptor stopped")
}

// backendConfig maps the environment onto the backend registry.
func backendConfig(cfg *config.Config, log zerolog.Logger) transcribe.BackendConfig {
	return transcribe.BackendConfig{
		Flags: transcribe.Flags{
			Whisper:       cfg.EnableWhisper,
			AssemblyAI:    cfg.EnableAssemblyAI,
			ElevenLabs:    cfg.EnableElevenLabs,
			DeepInfra:     cfg.EnableDeepInfra,
			WhisperServer: cfg.EnableWhisperServer,
		},
		Whisper: transcribe.WhisperConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.ProviderTimeout,
		},
		AssemblyAI: transcribe.AssemblyAIConfig{
			APIKey:       cfg.AssemblyAIAPIKey,
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.PollMaxAttempts,
			Timeout:      cfg.ProviderTimeout,
		},
		ElevenLabs: transcribe.ElevenLabsConfig{
			APIKey:   cfg.ElevenLabsAPIKey,
			Model:    cfg.ElevenLabsModel,
			Keyterms: cfg.ElevenLabsTerms,
			Timeout:  cfg.ProviderTimeout,
		},
		DeepInfra: transcribe.DeepInfraConfig{
			APIKey:  cfg.DeepInfraAPIKey,
			Model:   cfg.DeepInfraModel,
			Timeout: cfg.ProviderTimeout,
		},
		WhisperServer: transcribe.WhisperServerConfig{
			URL:         cfg.WhisperURL,
			Model:       cfg.WhisperModel,
			Timeout:     cfg.ProviderTimeout,
			Temperature: cfg.WhisperTemperature,
			Prompt:      cfg.WhisperPrompt,
			Hotwords:    cfg.WhisperHotwords,
			BeamSize:    cfg.WhisperBeamSize,
			VadFilter:   cfg.WhisperVadFilter,
			Preprocess:  cfg.PreprocessAudio,
			Log:         log,
		},
	}
}
