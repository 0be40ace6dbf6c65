package transcribe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snarg/transcriptor/internal/metrics"
	"github.com/snarg/transcriptor/internal/transcript"
)

const tracerName = "github.com/snarg/transcriptor/internal/transcribe"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// instrumented wraps a Backend with a tracing span and Prometheus metrics.
type instrumented struct {
	Backend
}

func instrument(b Backend) Backend {
	if _, ok := b.(instrumented); ok {
		return b
	}
	return instrumented{Backend: b}
}

func (b instrumented) Transcribe(ctx context.Context, audio Audio, settings transcript.Settings, progress Progress) (*transcript.Result, error) {
	id := b.Info().ID
	ctx, span := tracer().Start(ctx, "transcribe."+id, trace.WithAttributes(
		attribute.String("backend", id),
		attribute.Int64("audio.size", audio.Size()),
		attribute.String("audio.content_type", audio.ContentType),
		attribute.String("language", settings.Language),
	))
	defer span.End()

	start := time.Now()
	res, err := b.Backend.Transcribe(ctx, audio, settings, progress)
	metrics.TranscriptionDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.TranscriptionsTotal.WithLabelValues(id, metrics.OutcomeSuccess).Inc()
		span.SetAttributes(attribute.Int("segments", len(res.Segments)))
	case errors.Is(err, ErrTimeout):
		metrics.TranscriptionsTotal.WithLabelValues(id, metrics.OutcomeTimeout).Inc()
	default:
		metrics.TranscriptionsTotal.WithLabelValues(id, metrics.OutcomeError).Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}
