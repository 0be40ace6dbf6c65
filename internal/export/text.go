package export

import (
	"fmt"
	"strings"

	"github.com/snarg/transcriptor/internal/transcript"
)

// TXT renders plain text. Without timestamps or speakers, or without
// segments, the full transcript text is returned unchanged.
func TXT(r *transcript.Result, opts Options) string {
	if !opts.IncludeTimestamps && !opts.IncludeSpeakers {
		return r.Text
	}
	if len(r.Segments) == 0 {
		return r.Text
	}

	lines := make([]string, len(r.Segments))
	for i, seg := range r.Segments {
		var b strings.Builder
		if opts.IncludeTimestamps {
			fmt.Fprintf(&b, "[%s] ", FormatClock(seg.StartTime))
		}
		if opts.IncludeSpeakers && seg.Speaker != "" {
			b.WriteString(seg.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(seg.Text)
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

// SRT renders SubRip cues separated by blank lines.
func SRT(r *transcript.Result, opts Options) string {
	if len(r.Segments) == 0 {
		return r.Text
	}

	cues := make([]string, len(r.Segments))
	for i, seg := range r.Segments {
		text := seg.Text
		if opts.IncludeSpeakers && seg.Speaker != "" {
			text = seg.Speaker + ": " + text
		}
		cues[i] = fmt.Sprintf("%d\n%s --> %s\n%s\n",
			i+1, FormatSRTTime(seg.StartTime), FormatSRTTime(seg.EndTime), text)
	}
	return strings.Join(cues, "\n")
}

// VTT renders a WebVTT document. Speakers use voice tags. A result with no
// segments becomes a single cue spanning the whole duration.
func VTT(r *transcript.Result, opts Options) string {
	const header = "WEBVTT\n\n"

	if len(r.Segments) == 0 {
		return header + fmt.Sprintf("%s --> %s\n%s\n", FormatVTTTime(0), FormatVTTTime(r.Duration), r.Text)
	}

	cues := make([]string, len(r.Segments))
	for i, seg := range r.Segments {
		text := seg.Text
		if opts.IncludeSpeakers && seg.Speaker != "" {
			text = "<v " + seg.Speaker + ">" + text
		}
		cues[i] = fmt.Sprintf("%s --> %s\n%s\n",
			FormatVTTTime(seg.StartTime), FormatVTTTime(seg.EndTime), text)
	}
	return header + strings.Join(cues, "\n")
}
