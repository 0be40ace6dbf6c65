package transcript

import (
	"fmt"
	"strings"
)

// MaxSegmentGap is the pause, in seconds, after which a new segment starts
// even when the speaker has not changed.
const MaxSegmentGap = 2.0

// SpeakerWord is a word-level detection with an optional speaker label, as
// returned by providers that have no segment structure of their own.
type SpeakerWord struct {
	WordTimestamp
	Speaker string
}

// GroupWords folds a flat, ordered word stream into segments. A new segment
// starts whenever the speaker changes or the pause since the previous word
// exceeds MaxSegmentGap.
//
// Segment confidence is the mean of the word confidences, with a missing
// confidence counted as zero.
func GroupWords(words []SpeakerWord) []Segment {
	if len(words) == 0 {
		return []Segment{}
	}

	var segments []Segment
	cur := openSegment(len(segments), words[0])

	for i := 1; i < len(words); i++ {
		w := words[i]
		gap := w.StartTime - words[i-1].EndTime
		if w.Speaker != cur.Speaker || gap > MaxSegmentGap {
			segments = append(segments, closeSegment(cur))
			cur = openSegment(len(segments), w)
			continue
		}
		cur.Words = append(cur.Words, w.WordTimestamp)
		cur.EndTime = w.EndTime
	}
	segments = append(segments, closeSegment(cur))
	return segments
}

func openSegment(index int, w SpeakerWord) Segment {
	return Segment{
		ID:        fmt.Sprintf("segment-%d", index),
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
		Speaker:   w.Speaker,
		Words:     []WordTimestamp{w.WordTimestamp},
	}
}

func closeSegment(s Segment) Segment {
	texts := make([]string, len(s.Words))
	var sum float64
	for i, w := range s.Words {
		texts[i] = strings.TrimSpace(w.Word)
		if w.Confidence != nil {
			sum += *w.Confidence
		}
	}
	s.Text = strings.Join(texts, " ")
	s.Confidence = Float(sum / float64(len(s.Words)))
	return s
}
