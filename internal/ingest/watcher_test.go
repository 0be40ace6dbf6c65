package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/transcript"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	audio []transcribe.Audio
	err   error
}

func (s *fakeSubmitter) Submit(a transcribe.Audio, settings transcript.Settings) (*transcript.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.audio = append(s.audio, a)
	return transcript.NewJob(a.Size(), a.Filename, settings), nil
}

func (s *fakeSubmitter) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.audio {
		out = append(out, a.Filename)
	}
	return out
}

func newTestWatcher(t *testing.T, sub Submitter) (*FolderWatcher, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFolderWatcher(Options{
		Dir:       dir,
		MaxSize:   1024,
		Submitter: sub,
		Debounce:  10 * time.Millisecond,
		Log:       zerolog.Nop(),
	}), dir
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestProcessFile_SubmitsAndMoves(t *testing.T) {
	sub := &fakeSubmitter{}
	fw, dir := newTestWatcher(t, sub)
	path := filepath.Join(dir, "memo.wav")
	os.WriteFile(path, []byte("RIFFdata"), 0o644)

	fw.processFile(path)

	if names := sub.names(); len(names) != 1 || names[0] != "memo.wav" {
		t.Fatalf("submitted = %v", names)
	}
	if sub.audio[0].ContentType != "audio/wav" || string(sub.audio[0].Data) != "RIFFdata" {
		t.Errorf("audio = %+v", sub.audio[0])
	}
	if exists(path) || !exists(filepath.Join(dir, ProcessedDir, "memo.wav")) {
		t.Error("file not moved to processed/")
	}
	if st := fw.Status(); st.FilesSubmitted != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestProcessFile_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"notes.txt", []byte("x")},
		{"huge.mp3", make([]byte, 2048)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			fw, dir := newTestWatcher(t, sub)
			path := filepath.Join(dir, tt.name)
			os.WriteFile(path, tt.data, 0o644)

			fw.processFile(path)

			if len(sub.names()) != 0 {
				t.Error("invalid file submitted")
			}
			if !exists(filepath.Join(dir, RejectedDir, tt.name)) {
				t.Error("file not moved to rejected/")
			}
			if fw.Status().FilesRejected != 1 {
				t.Errorf("status = %+v", fw.Status())
			}
		})
	}
}

func TestProcessFile_SubmitErrorLeavesFile(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("transcription queue is full")}
	fw, dir := newTestWatcher(t, sub)
	path := filepath.Join(dir, "memo.mp3")
	os.WriteFile(path, []byte("ID3"), 0o644)

	fw.processFile(path)

	if !exists(path) {
		t.Error("file moved despite failed submit")
	}
}

func TestProcessFile_IgnoresHiddenFiles(t *testing.T) {
	sub := &fakeSubmitter{}
	fw, dir := newTestWatcher(t, sub)
	path := filepath.Join(dir, ".partial.mp3")
	os.WriteFile(path, []byte("ID3"), 0o644)

	fw.processFile(path)

	if len(sub.names()) != 0 || !exists(path) {
		t.Error("hidden file was handled")
	}
}

func TestFolderWatcher_BackfillAndWatch(t *testing.T) {
	sub := &fakeSubmitter{}
	fw, dir := newTestWatcher(t, sub)

	older := filepath.Join(dir, "first.mp3")
	newer := filepath.Join(dir, "second.mp3")
	os.WriteFile(newer, []byte("ID3"), 0o644)
	os.WriteFile(older, []byte("ID3"), 0o644)
	past := time.Now().Add(-time.Hour)
	os.Chtimes(older, past, past)

	if err := fw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	eventually(t, func() bool { return len(sub.names()) == 2 })
	if names := sub.names(); names[0] != "first.mp3" {
		t.Errorf("backfill order = %v, want oldest first", names)
	}
	eventually(t, func() bool { return fw.Status().Status == "watching" })

	os.WriteFile(filepath.Join(dir, "third.ogg"), []byte("OggS"), 0o644)
	eventually(t, func() bool { return len(sub.names()) == 3 })
}
