// Package export serializes transcription results into subtitle and text
// formats. Every function here is pure; the same result, format and options
// always produce byte-identical output for a fixed clock.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/snarg/transcriptor/internal/transcript"
)

// Format is an export target.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatTXT, FormatSRT, FormatVTT, FormatJSON}

// ErrUnsupportedFormat is returned for any format outside Formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat maps a user-supplied string to a Format. Matching is exact
// after trimming and lowercasing; nothing falls back to a default.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatTXT, FormatSRT, FormatVTT, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// MimeType returns the Content-Type for the format.
func (f Format) MimeType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain"
	}
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string { return "." + string(f) }

// Options control which optional fields are rendered.
type Options struct {
	IncludeTimestamps bool `json:"includeTimestamps"`
	IncludeSpeakers   bool `json:"includeSpeakers"`
	IncludeConfidence bool `json:"includeConfidence"`
}

// Output is a rendered export ready to be served as a download.
type Output struct {
	Content   string
	MimeType  string
	Extension string
	Filename  string
}

// Exporter renders results. Now stamps JSON exports; nil means time.Now.
type Exporter struct {
	Now func() time.Time
}

// Export renders result in format. The output filename is filename with its
// extension replaced by the format's.
func (e Exporter) Export(result *transcript.Result, format Format, opts Options, filename string) (*Output, error) {
	if result == nil {
		return nil, errors.New("export: nil result")
	}

	var content string
	switch format {
	case FormatTXT:
		content = TXT(result, opts)
	case FormatSRT:
		content = SRT(result, opts)
	case FormatVTT:
		content = VTT(result, opts)
	case FormatJSON:
		var err error
		content, err = JSON(result, opts, e.now())
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return &Output{
		Content:   content,
		MimeType:  format.MimeType(),
		Extension: format.Extension(),
		Filename:  Filename(filename, format),
	}, nil
}

func (e Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

var trailingExt = regexp.MustCompile(`\.[^/.]+$`)

// Filename swaps the extension of name for the format's extension.
func Filename(name string, format Format) string {
	return trailingExt.ReplaceAllString(name, "") + format.Extension()
}
