package transcribe

import (
	"fmt"

	"github.com/snarg/transcriptor/internal/transcript"
)

// FeatureError rejects settings that ask a backend for something it cannot do.
type FeatureError struct {
	Msg string
}

func (e *FeatureError) Error() string { return e.Msg }

// CheckFeatures verifies the backend supports every optional feature the
// settings request.
func CheckFeatures(c Capabilities, s transcript.Settings) error {
	if s.EnableDiarization && !c.Features.Diarization {
		return &FeatureError{Msg: "Selected backend does not support speaker diarization"}
	}
	if s.EnableTranslation && !c.Features.Translation {
		return &FeatureError{Msg: "Selected backend does not support translation"}
	}
	return nil
}

// Resolve picks the backend named in settings, or the default backend when
// none is named, and checks it against the requested features.
func (r *Registry) Resolve(s transcript.Settings) (Backend, error) {
	var b Backend
	if s.Backend == "" {
		if b = r.Default(); b == nil {
			return nil, fmt.Errorf("%w: no backend available", ErrBackendNotRegistered)
		}
	} else {
		var err error
		if b, err = r.Get(s.Backend); err != nil {
			return nil, err
		}
	}
	if err := CheckFeatures(b.Info(), s); err != nil {
		return nil, err
	}
	return b, nil
}
