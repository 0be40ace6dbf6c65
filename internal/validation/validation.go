// Package validation gates audio files before they reach a transcription
// backend or the upload store.
package validation

import (
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFilenameLength caps sanitized filenames, in characters.
	MaxFilenameLength = 255

	mb = 1024 * 1024
)

// AllowedExtensions are the only file extensions accepted for audio.
var AllowedExtensions = []string{".mp3", ".wav", ".m4a", ".webm", ".ogg", ".flac", ".aac", ".mp4"}

// AllowedAudioTypes is the default MIME allow-list for uploads.
var AllowedAudioTypes = []string{
	"audio/mpeg",
	"audio/mp3",
	"audio/wav",
	"audio/x-wav",
	"audio/mp4",
	"audio/m4a",
	"audio/x-m4a",
	"audio/webm",
	"audio/ogg",
	"audio/flac",
	"audio/aac",
}

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespace   = regexp.MustCompile(`[\s\p{Z}]+`)
	underscores  = regexp.MustCompile(`_+`)
)

// File describes an uploaded file without its content.
type File struct {
	Size int64
	Type string // MIME type
	Name string
}

// Options bound what ValidateAudioFile accepts.
type Options struct {
	MaxSize      int64
	AllowedTypes []string
}

// Result is the outcome of a validation check. Error is empty when IsValid.
type Result struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

// Err returns the failure as an *Error, or nil when the check passed.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &Error{Msg: r.Error}
}

// Error is a user-correctable rejection of an input file.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func ok() Result { return Result{IsValid: true} }

func fail(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// SizeLimitMessage is the rejection text for files over maxSize bytes.
func SizeLimitMessage(maxSize int64) string {
	return fmt.Sprintf("File size exceeds maximum limit of %dMB", int64(math.Round(float64(maxSize)/mb)))
}

// ExtensionMessage is the rejection text for a filename outside
// AllowedExtensions.
func ExtensionMessage() string {
	return "File extension not supported. Supported extensions: " + strings.Join(AllowedExtensions, ", ")
}

// ValidateAudioFile checks size, MIME type, extension and filename
// characters, in that order. The first failing check wins.
func ValidateAudioFile(f File, opts Options) Result {
	if f.Size > opts.MaxSize {
		return Result{Error: SizeLimitMessage(opts.MaxSize)}
	}

	fileType := strings.ToLower(f.Type)
	if !typeAllowed(fileType, opts.AllowedTypes) {
		return fail("File type %s is not supported. Supported types: %s",
			fileType, strings.Join(opts.AllowedTypes, ", "))
	}

	if !HasAllowedExtension(f.Name) {
		return Result{Error: ExtensionMessage()}
	}

	if invalidChars.MatchString(f.Name) {
		return fail("Filename contains invalid characters")
	}

	return ok()
}

// typeAllowed accepts an exact match or any type sharing the major type of
// an allowed entry ("audio/x-foo" passes when "audio/mp3" is allowed).
func typeAllowed(fileType string, allowed []string) bool {
	for _, t := range allowed {
		major, _, _ := strings.Cut(t, "/")
		if fileType == t || strings.HasPrefix(fileType, major+"/") {
			return true
		}
	}
	return false
}

// HasAllowedExtension reports whether name ends in one of AllowedExtensions,
// ignoring case.
func HasAllowedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// SanitizeFilename replaces forbidden characters and whitespace runs with
// underscores, collapses and trims underscores, and caps the length while
// keeping the extension. An empty result becomes "untitled".
func SanitizeFilename(name string) string {
	s := invalidChars.ReplaceAllString(name, "_")
	s = whitespace.ReplaceAllString(s, "_")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "untitled"
	}

	if utf8.RuneCountInString(s) <= MaxFilenameLength {
		return s
	}
	dot := strings.LastIndex(s, ".")
	if dot < 0 {
		return string([]rune(s)[:MaxFilenameLength])
	}
	base, ext := []rune(s[:dot]), []rune(s[dot:])
	keep := MaxFilenameLength - len(ext)
	if keep < 0 {
		// Extension alone is over the cap.
		return string(ext[:MaxFilenameLength])
	}
	if keep > len(base) {
		keep = len(base)
	}
	return string(base[:keep]) + string(ext)
}

// Blob is an upload body of known size and MIME type.
type Blob struct {
	Size int64
	Type string
}

// ValidateUploadRequest rejects empty or oversized bodies and missing
// filenames before an upload is stored.
func ValidateUploadRequest(b Blob, filename string, maxSize int64) Result {
	if b.Size == 0 {
		return fail("File is empty")
	}
	if b.Size > maxSize {
		return Result{Error: SizeLimitMessage(maxSize)}
	}
	if strings.TrimSpace(filename) == "" {
		return fail("Filename is required")
	}
	if SanitizeFilename(filename) == "" {
		return fail("Invalid filename")
	}
	return ok()
}

var extensionTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".mp4":  "audio/mp4",
}

// ContentTypeFor guesses an audio MIME type from a filename extension.
// Unknown extensions yield "application/octet-stream".
func ContentTypeFor(name string) string {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}
