package transcribe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrBackendNotRegistered is returned by Get for unknown ids.
	ErrBackendNotRegistered = errors.New("backend not registered")

	// ErrBackendDisabled is returned by Get for a backend switched off by its
	// feature flag.
	ErrBackendDisabled = errors.New("backend disabled")
)

// Factory constructs a backend. Factories must not do network I/O, so
// calling one repeatedly is cheap and yields the same outcome.
type Factory func() (Backend, error)

// Flags switch individual backends on or off.
type Flags struct {
	Whisper       bool
	AssemblyAI    bool
	ElevenLabs    bool
	DeepInfra     bool
	WhisperServer bool
}

// AllEnabled turns every backend on.
func AllEnabled() Flags {
	return Flags{Whisper: true, AssemblyAI: true, ElevenLabs: true, DeepInfra: true, WhisperServer: true}
}

// BackendConfig carries every credential and flag the registry needs. It is
// built once at startup; nothing below main reads the environment.
type BackendConfig struct {
	Flags         Flags
	Whisper       WhisperConfig
	AssemblyAI    AssemblyAIConfig
	ElevenLabs    ElevenLabsConfig
	DeepInfra     DeepInfraConfig
	WhisperServer WhisperServerConfig
}

type registration struct {
	id      string
	enabled bool
	factory Factory
}

// Registry is the single source of truth for which backends are usable.
// Backends are constructed lazily on every lookup. It is safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	index   map[string]int
	log     zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{index: make(map[string]int), log: log}
}

// Initialize registers the built-in backends in their documented order:
// whisper, assemblyai, elevenlabs, deepinfra, whisper-server.
func Initialize(cfg BackendConfig, log zerolog.Logger) *Registry {
	r := NewRegistry(log.With().Str("component", "registry").Logger())

	r.Register(whisperInfo.ID, cfg.Flags.Whisper, func() (Backend, error) {
		return NewWhisper(cfg.Whisper)
	})
	r.Register(assemblyAIInfo.ID, cfg.Flags.AssemblyAI, func() (Backend, error) {
		return NewAssemblyAI(cfg.AssemblyAI)
	})
	r.Register(elevenLabsInfo.ID, cfg.Flags.ElevenLabs, func() (Backend, error) {
		return NewElevenLabs(cfg.ElevenLabs)
	})
	r.Register(deepInfraInfo.ID, cfg.Flags.DeepInfra, func() (Backend, error) {
		return NewDeepInfra(cfg.DeepInfra)
	})
	r.Register(whisperServerInfo.ID, cfg.Flags.WhisperServer, func() (Backend, error) {
		ws := cfg.WhisperServer
		ws.Log = log.With().Str("component", "whisper-server").Logger()
		return NewWhisperServer(ws)
	})

	return r
}

// Register adds a backend factory. Registering an id again replaces the
// earlier factory but keeps its position.
func (r *Registry) Register(id string, enabled bool, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := registration{id: id, enabled: enabled, factory: factory}
	if i, ok := r.index[id]; ok {
		r.entries[i] = reg
		return
	}
	r.index[id] = len(r.entries)
	r.entries = append(r.entries, reg)
}

// Get constructs the backend registered under id.
func (r *Registry) Get(id string) (Backend, error) {
	r.mu.RLock()
	i, ok := r.index[id]
	var reg registration
	if ok {
		reg = r.entries[i]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, id)
	}
	if !reg.enabled {
		return nil, fmt.Errorf("%w: %s", ErrBackendDisabled, id)
	}
	b, err := reg.factory()
	if err != nil {
		return nil, err
	}
	return instrument(b), nil
}

// Available returns the enabled backends whose construction succeeds, in
// registration order. Construction failures are logged and skipped.
func (r *Registry) Available() []Backend {
	r.mu.RLock()
	entries := append([]registration(nil), r.entries...)
	r.mu.RUnlock()

	var out []Backend
	for _, reg := range entries {
		if !reg.enabled {
			continue
		}
		b, err := reg.factory()
		if err != nil {
			r.log.Debug().Err(err).Str("backend", reg.id).Msg("backend unavailable")
			continue
		}
		out = append(out, instrument(b))
	}
	return out
}

// IsAvailable reports whether id is registered and currently available.
func (r *Registry) IsAvailable(id string) bool {
	for _, b := range r.Available() {
		if b.Info().ID == id {
			return true
		}
	}
	return false
}

// Default returns the first available backend, or nil if none is.
func (r *Registry) Default() Backend {
	if av := r.Available(); len(av) > 0 {
		return av[0]
	}
	return nil
}

// Capabilities describes every available backend.
func (r *Registry) Capabilities() []Capabilities {
	av := r.Available()
	out := make([]Capabilities, len(av))
	for i, b := range av {
		out[i] = b.Info()
	}
	return out
}

// IDs returns every registered id, available or not, in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, reg := range r.entries {
		out[i] = reg.id
	}
	return out
}
