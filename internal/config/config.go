package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5m"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"35m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`
	CORSOrigins  string        `env:"CORS_ORIGINS"` // comma-separated; empty = any origin
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`

	// Provider credentials. A backend without its credential is unavailable.
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	AssemblyAIAPIKey string `env:"ASSEMBLYAI_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel  string `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	ElevenLabsTerms  string `env:"ELEVENLABS_KEYTERMS"`
	DeepInfraAPIKey  string `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel   string `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`

	// Self-hosted Whisper server.
	WhisperURL         string  `env:"WHISPER_URL"`
	WhisperModel       string  `env:"WHISPER_MODEL"`
	WhisperTemperature float64 `env:"WHISPER_TEMPERATURE" envDefault:"0"`
	WhisperPrompt      string  `env:"WHISPER_PROMPT"`
	WhisperHotwords    string  `env:"WHISPER_HOTWORDS"`
	WhisperBeamSize    int     `env:"WHISPER_BEAM_SIZE" envDefault:"0"`
	WhisperVadFilter   bool    `env:"WHISPER_VAD_FILTER" envDefault:"false"`
	PreprocessAudio    bool    `env:"PREPROCESS_AUDIO" envDefault:"false"`

	EnableWhisper       bool `env:"ENABLE_WHISPER_BACKEND" envDefault:"true"`
	EnableAssemblyAI    bool `env:"ENABLE_ASSEMBLYAI_BACKEND" envDefault:"true"`
	EnableElevenLabs    bool `env:"ENABLE_ELEVENLABS_BACKEND" envDefault:"true"`
	EnableDeepInfra     bool `env:"ENABLE_DEEPINFRA_BACKEND" envDefault:"true"`
	EnableWhisperServer bool `env:"ENABLE_WHISPER_SERVER_BACKEND" envDefault:"true"`
	EnableDiarization   bool `env:"ENABLE_DIARIZATION" envDefault:"true"`
	EnableTranslation   bool `env:"ENABLE_TRANSLATION" envDefault:"true"`

	MaxFileSizeMB      int `env:"MAX_FILE_SIZE_MB" envDefault:"100"`
	MaxFilesPerHour    int `env:"MAX_FILES_PER_HOUR" envDefault:"10"`
	MaxUploadsPerHour  int `env:"MAX_UPLOADS_PER_HOUR" envDefault:"20"`
	RequestsPerMinute  int `env:"MAX_REQUESTS_PER_MINUTE" envDefault:"100"`
	MaxDurationMinutes int `env:"MAX_DURATION_MINUTES" envDefault:"30"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"120"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10m"`

	TranscribeWorkers   int           `env:"TRANSCRIBE_WORKERS" envDefault:"2"`
	TranscribeQueueSize int           `env:"TRANSCRIBE_QUEUE_SIZE" envDefault:"100"`
	JobTimeout          time.Duration `env:"JOB_TIMEOUT" envDefault:"30m"`

	UploadDir       string        `env:"UPLOAD_DIR" envDefault:"./uploads"`
	UploadRetention time.Duration `env:"UPLOAD_RETENTION" envDefault:"24h"`
	S3              S3Config      `envPrefix:"S3_"`

	DatabaseURL  string        `env:"DATABASE_URL"`
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"0"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"transcriptor"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"transcriptor"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	WatchDir      string `env:"WATCH_DIR"`
	WatchBackend  string `env:"WATCH_BACKEND"`
	WatchLanguage string `env:"WATCH_LANGUAGE" envDefault:"auto"`
}

// S3Config configures S3-compatible upload storage. Storage is local-only
// unless a bucket is set.
type S3Config struct {
	Bucket        string        `env:"BUCKET"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	Endpoint      string        `env:"ENDPOINT"` // custom endpoint for MinIO, R2, etc.
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	Prefix        string        `env:"PREFIX"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	LocalCache    bool          `env:"LOCAL_CACHE" envDefault:"false"` // keep a local copy (tiered mode)
}

// Enabled reports whether S3 storage is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// MaxFileSize returns the upload size limit in bytes.
func (c *Config) MaxFileSize() int64 { return int64(c.MaxFileSizeMB) * 1024 * 1024 }

// Origins returns the CORS allow-list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxFileSizeMB <= 0:
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", c.MaxFileSizeMB)
	case c.TranscribeWorkers <= 0:
		return fmt.Errorf("TRANSCRIBE_WORKERS must be positive, got %d", c.TranscribeWorkers)
	case c.TranscribeQueueSize <= 0:
		return fmt.Errorf("TRANSCRIBE_QUEUE_SIZE must be positive, got %d", c.TranscribeQueueSize)
	case c.PollInterval <= 0 || c.PollMaxAttempts <= 0:
		return fmt.Errorf("POLL_INTERVAL and POLL_MAX_ATTEMPTS must be positive")
	case c.MaxFilesPerHour <= 0 || c.MaxUploadsPerHour <= 0 || c.RequestsPerMinute <= 0:
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	UploadDir   string
	WatchDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.UploadDir != "" {
		cfg.UploadDir = overrides.UploadDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
