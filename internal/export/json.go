package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

// Field order in these structs is the key order of the rendered document.

type jsonDocument struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Segments []jsonSegment `json:"segments"`
	Metadata jsonMetadata  `json:"metadata"`
}

type jsonSegment struct {
	ID         string                     `json:"id"`
	Text       string                     `json:"text"`
	StartTime  float64                    `json:"startTime"`
	EndTime    float64                    `json:"endTime"`
	Speaker    string                     `json:"speaker,omitempty"`
	Confidence *float64                   `json:"confidence,omitempty"`
	Words      []transcript.WordTimestamp `json:"words,omitempty"`
}

type jsonMetadata struct {
	transcript.Metadata
	ExportOptions jsonOptions `json:"exportOptions"`
	ExportedAt    string      `json:"exportedAt"`
}

type jsonOptions struct {
	Format Format `json:"format"`
	Options
}

// JSON renders the structured export. Optional segment keys are omitted
// rather than set to null.
func JSON(r *transcript.Result, opts Options, now time.Time) (string, error) {
	doc := jsonDocument{
		Text:     r.Text,
		Language: r.Language,
		Duration: r.Duration,
		Segments: make([]jsonSegment, len(r.Segments)),
		Metadata: jsonMetadata{
			Metadata:      r.Metadata,
			ExportOptions: jsonOptions{Format: FormatJSON, Options: opts},
			ExportedAt:    now.UTC().Format("2006-01-02T15:04:05.000Z"),
		},
	}
	if doc.Metadata.Features == nil {
		doc.Metadata.Features = []string{}
	}

	for i, seg := range r.Segments {
		js := jsonSegment{
			ID:        seg.ID,
			Text:      seg.Text,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Words:     seg.Words,
		}
		if opts.IncludeSpeakers {
			js.Speaker = seg.Speaker
		}
		if opts.IncludeConfidence {
			js.Confidence = seg.Confidence
		}
		doc.Segments[i] = js
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
