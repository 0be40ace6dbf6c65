// Package transcript holds the canonical transcription model shared by every
// backend adapter, the job manager and the export engine.
package transcript

import "strings"

// WordTimestamp is a single recognized word with its position in the audio.
type WordTimestamp struct {
	Word       string   `json:"word"`
	StartTime  float64  `json:"startTime"` // seconds
	EndTime    float64  `json:"endTime"`   // seconds
	Confidence *float64 `json:"confidence,omitempty"`
}

// Segment is a contiguous, time-bounded span of transcript text.
type Segment struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	StartTime  float64         `json:"startTime"`
	EndTime    float64         `json:"endTime"`
	Confidence *float64        `json:"confidence,omitempty"`
	Speaker    string          `json:"speaker,omitempty"`
	Words      []WordTimestamp `json:"words,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	Filename       string   `json:"filename"`
	FileSize       int64    `json:"fileSize"`
	ProcessingTime int64    `json:"processingTime"` // milliseconds
	Backend        string   `json:"backend"`
	Features       []string `json:"features"`
}

// Result is the canonical transcription result every backend converges to.
type Result struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Segments   []Segment `json:"segments"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
	Duration   float64   `json:"duration"` // seconds
	Metadata   Metadata  `json:"metadata"`
}

// Settings are the per-request transcription options chosen by the user.
type Settings struct {
	Language             string `json:"language"`
	Backend              string `json:"backend"`
	EnableTranslation    bool   `json:"enableTranslation"`
	EnableDiarization    bool   `json:"enableDiarization"`
	EnableWordTimestamps bool   `json:"enableWordTimestamps"`
}

// AutoLanguage asks the backend to detect the spoken language.
const AutoLanguage = "auto"

// Feature tags recorded in Metadata.Features.
const (
	FeatureTranscription  = "transcription"
	FeatureWordTimestamps = "word-timestamps"
	FeatureDiarization    = "speaker-diarization"
	FeatureTranslation    = "translation"
)

// Float returns a pointer to v, for optional confidence fields.
func Float(v float64) *float64 { return &v }

// Clone returns a deep copy of the result so callers can edit segments
// without touching the original.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Segments != nil {
		out.Segments = make([]Segment, len(r.Segments))
		for i, s := range r.Segments {
			if s.Words != nil {
				s.Words = append([]WordTimestamp(nil), s.Words...)
			}
			out.Segments[i] = s
		}
	}
	if r.Metadata.Features != nil {
		out.Metadata.Features = append([]string(nil), r.Metadata.Features...)
	}
	return &out
}

// JoinSegmentText rebuilds the full transcript from segment texts.
func JoinSegmentText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
